package script

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenIdent
	TokenNumber
	TokenString
	TokenTemplate
	TokenPunct
	TokenIllegal
)

func (k TokenKind) String() string {
	switch k {
	case TokenEOF:
		return "end of script"
	case TokenIdent:
		return "identifier"
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenTemplate:
		return "template literal"
	case TokenPunct:
		return "punctuation"
	}
	return "illegal token"
}

// TemplatePart is the source of one ${} interpolation.
type TemplatePart struct {
	Text string
	Line int
}

// Token is one lexeme. Line is already in artifact coordinates.
type Token struct {
	Kind          TokenKind
	Text          string
	Value         string
	Line          int
	Col           int
	SpaceBefore   bool
	NewlineBefore bool
	Parts         []TemplatePart
}

// punctuators are matched longest first.
var punctuators = []string{
	"...", "===", "!==", "**=", "&&=", "||=", "??=",
	"**", "&&", "||", "??", "?.", "==", "!=", "<=", ">=", "=>", "++", "--",
	"+=", "-=", "*=", "/=", "%=", "<<", ">>",
	"{", "}", "(", ")", "[", "]", ";", ",", ".", "<", ">", "+", "-", "*", "/",
	"%", "!", "?", ":", "=", "&", "|", "^", "~",
}

type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

// Lex tokenizes text whose first line is artifact line startLine.
func Lex(text string, startLine int) []Token {
	if startLine < 1 {
		startLine = 1
	}
	l := &lexer{src: text, line: startLine, col: 1}
	var tokens []Token
	for {
		tok := l.next()
		tokens = append(tokens, tok)
		if tok.Kind == TokenEOF {
			return tokens
		}
	}
}

func (l *lexer) peekByte(offset int) byte {
	if l.pos+offset < len(l.src) {
		return l.src[l.pos+offset]
	}
	return 0
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

// skipTrivia consumes whitespace and comments.
func (l *lexer) skipTrivia() (space, newline bool) {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			space, newline = true, true
			l.advance(1)
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			space = true
			l.advance(1)
		case c == '/' && l.peekByte(1) == '/':
			space = true
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance(1)
			}
		case c == '/' && l.peekByte(1) == '*':
			space = true
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				end = len(l.src) - l.pos - 2
			} else {
				end += 2
			}
			chunk := l.src[l.pos : l.pos+2+end]
			if strings.Contains(chunk, "\n") {
				newline = true
			}
			l.advance(2 + end)
		default:
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if r == 0xFEFF || r == 0xA0 {
				space = true
				l.pos += size
				l.col++
				continue
			}
			return space, newline
		}
	}
	return space, newline
}

func (l *lexer) next() Token {
	space, newline := l.skipTrivia()
	tok := Token{Line: l.line, Col: l.col, SpaceBefore: space, NewlineBefore: newline}
	if l.pos >= len(l.src) {
		tok.Kind = TokenEOF
		return tok
	}

	start := l.pos
	c := l.src[l.pos]
	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	switch {
	case isIdentStart(r):
		for l.pos < len(l.src) {
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if !isIdentPart(r) {
				break
			}
			l.pos += size
			l.col++
		}
		tok.Kind = TokenIdent
	case isDigit(c) || (c == '.' && isDigit(l.peekByte(1))):
		l.scanNumber()
		tok.Kind = TokenNumber
	case c == '"' || c == '\'':
		tok.Value, tok.Kind = l.scanString(c)
	case c == '`':
		tok.Parts, tok.Kind = l.scanTemplate()
	default:
		tok.Kind = TokenIllegal
		for _, p := range punctuators {
			if strings.HasPrefix(l.src[l.pos:], p) {
				// "?." before a digit is a conditional followed by a number.
				if p == "?." && isDigit(l.peekByte(2)) {
					continue
				}
				tok.Kind = TokenPunct
				l.advance(len(p))
				break
			}
		}
		if tok.Kind == TokenIllegal {
			_, size := utf8.DecodeRuneInString(l.src[l.pos:])
			l.advance(size)
		}
	}
	tok.Text = l.src[start:l.pos]
	return tok
}

func (l *lexer) scanNumber() {
	if l.src[l.pos] == '0' && (l.peekByte(1) == 'x' || l.peekByte(1) == 'X') {
		l.advance(2)
		for l.pos < len(l.src) && isHex(l.src[l.pos]) {
			l.advance(1)
		}
		return
	}
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
		l.advance(1)
	}
	if l.peekByte(0) == '.' && isDigit(l.peekByte(1)) {
		l.advance(1)
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.advance(1)
		}
	}
	if e := l.peekByte(0); e == 'e' || e == 'E' {
		n := 1
		if s := l.peekByte(1); s == '+' || s == '-' {
			n = 2
		}
		if isDigit(l.peekByte(n)) {
			l.advance(n)
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.advance(1)
			}
		}
	}
}

// scanString reads a quoted string; strings may not span lines.
func (l *lexer) scanString(quote byte) (string, TokenKind) {
	l.advance(1)
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == quote:
			l.advance(1)
			return b.String(), TokenString
		case c == '\n':
			return b.String(), TokenIllegal
		case c == '\\' && l.pos+1 < len(l.src):
			esc := l.src[l.pos+1]
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\n':
				// line continuation
			default:
				b.WriteByte(esc)
			}
			l.advance(2)
		default:
			b.WriteByte(c)
			l.advance(1)
		}
	}
	return b.String(), TokenIllegal
}

// scanTemplate reads a backtick literal, capturing each ${} body with the
// line it starts on. Nested strings, templates and braces are balanced.
func (l *lexer) scanTemplate() ([]TemplatePart, TokenKind) {
	l.advance(1)
	var parts []TemplatePart
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '`':
			l.advance(1)
			return parts, TokenTemplate
		case c == '\\':
			l.advance(2)
		case c == '$' && l.peekByte(1) == '{':
			l.advance(2)
			line := l.line
			start := l.pos
			if !l.skipInterpolation() {
				return parts, TokenIllegal
			}
			parts = append(parts, TemplatePart{Text: l.src[start : l.pos-1], Line: line})
		default:
			l.advance(1)
		}
	}
	return parts, TokenIllegal
}

// skipInterpolation advances past the closing brace of a ${ block.
func (l *lexer) skipInterpolation() bool {
	depth := 1
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case '{':
			depth++
			l.advance(1)
		case '}':
			depth--
			l.advance(1)
			if depth == 0 {
				return true
			}
		case '"', '\'':
			if _, kind := l.scanString(c); kind == TokenIllegal {
				return false
			}
		case '`':
			if _, kind := l.scanTemplate(); kind == TokenIllegal {
				return false
			}
		default:
			l.advance(1)
		}
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
