package structure

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// ValueKind is the JSON type of a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "null"
}

// Value is a JSON node annotated with the 1-based line where it starts.
// Rows holds the artifact line of each line of a multi-line string and is nil
// when the string fits on one line.
type Value struct {
	Kind   ValueKind
	Line   int
	Str    string
	Num    float64
	Raw    string
	Rows   []int
	Bool   bool
	Keys   []string
	Fields map[string]*Value
	Items  []*Value
}

// Get returns the field named key, or nil.
func (v *Value) Get(key string) *Value {
	if v == nil || v.Kind != KindObject {
		return nil
	}
	return v.Fields[key]
}

// Lookup follows a dotted path of object keys.
func (v *Value) Lookup(path string) *Value {
	cur := v
	for _, part := range strings.Split(path, ".") {
		cur = cur.Get(part)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// AsString returns the string content when v is a string.
func (v *Value) AsString() (string, bool) {
	if v == nil || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// StringList returns the string members of an array.
func (v *Value) StringList() []string {
	if v == nil || v.Kind != KindArray {
		return nil
	}
	var out []string
	for _, item := range v.Items {
		if s, ok := item.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}

// ParseError reports a malformed artifact document.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
}

// parseDocument parses JSON text with the tree-sitter JavaScript grammar.
// The document is wrapped in parentheses so that a top-level object is read
// as an expression; only the first line's columns shift.
func parseDocument(ctx context.Context, path string, text string) (*Value, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Path: path, Line: 1, Msg: "empty document"}
	}
	source := []byte("(" + escapeRawNewlines(text) + "\n)")

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, &ParseError{Path: path, Line: firstErrorLine(root), Msg: "malformed JSON"}
	}

	expr := unwrapExpression(root)
	if expr == nil {
		return nil, &ParseError{Path: path, Line: 1, Msg: "document is not a single JSON value"}
	}

	c := converter{path: path, source: source}
	return c.convert(expr)
}

// escapeRawNewlines turns line breaks inside string literals into line
// continuations, so multi-line <% %> values parse while every row keeps its
// position.
func escapeRawNewlines(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 16)
	inString := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case inString && ch == '\\':
			b.WriteByte(ch)
			if i+1 < len(text) {
				i++
				b.WriteByte(text[i])
			}
			if text[i] == '\r' && i+1 < len(text) && text[i+1] == '\n' {
				i++
				b.WriteByte('\n')
			}
			continue
		case inString && ch == '"':
			inString = false
		case inString && ch == '\n':
			b.WriteByte('\\')
		case inString && ch == '\r' && i+1 < len(text) && text[i+1] == '\n':
			b.WriteString("\\\r\n")
			i++
			continue
		case !inString && ch == '"':
			inString = true
		case !inString && ch == '/' && i+1 < len(text) && (text[i+1] == '/' || text[i+1] == '*'):
			end := commentEnd(text, i)
			b.WriteString(text[i:end])
			i = end - 1
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// commentEnd returns the index just past the comment starting at i.
func commentEnd(text string, i int) int {
	if text[i+1] == '/' {
		if j := strings.IndexByte(text[i:], '\n'); j >= 0 {
			return i + j
		}
		return len(text)
	}
	if j := strings.Index(text[i+2:], "*/"); j >= 0 {
		return i + 2 + j + 2
	}
	return len(text)
}

// unwrapExpression digs program -> expression_statement -> parenthesized_expression.
func unwrapExpression(root *sitter.Node) *sitter.Node {
	if root.NamedChildCount() != 1 {
		return nil
	}
	stmt := root.NamedChild(0)
	if stmt.Type() != "expression_statement" || stmt.NamedChildCount() != 1 {
		return nil
	}
	paren := stmt.NamedChild(0)
	if paren.Type() != "parenthesized_expression" {
		return nil
	}
	for i := 0; i < int(paren.NamedChildCount()); i++ {
		if child := paren.NamedChild(i); child.Type() != "comment" {
			return child
		}
	}
	return nil
}

func firstErrorLine(n *sitter.Node) int {
	line := int(n.StartPoint().Row) + 1
	var visit func(*sitter.Node) bool
	visit = func(cur *sitter.Node) bool {
		if cur.Type() == "ERROR" || cur.IsMissing() {
			line = int(cur.StartPoint().Row) + 1
			return true
		}
		for i := 0; i < int(cur.ChildCount()); i++ {
			child := cur.Child(i)
			if child.HasError() || child.IsMissing() || child.Type() == "ERROR" {
				if visit(child) {
					return true
				}
			}
		}
		return false
	}
	visit(n)
	return line
}

type converter struct {
	path   string
	source []byte
}

func (c *converter) fail(n *sitter.Node, format string, args ...interface{}) error {
	return &ParseError{Path: c.path, Line: int(n.StartPoint().Row) + 1, Msg: fmt.Sprintf(format, args...)}
}

func (c *converter) convert(n *sitter.Node) (*Value, error) {
	line := int(n.StartPoint().Row) + 1
	switch n.Type() {
	case "object":
		v := &Value{Kind: KindObject, Line: line, Fields: make(map[string]*Value)}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "comment" {
				continue
			}
			if child.Type() != "pair" {
				return nil, c.fail(child, "unexpected %s in object", child.Type())
			}
			keyNode := child.ChildByFieldName("key")
			valueNode := child.ChildByFieldName("value")
			if keyNode == nil || valueNode == nil || keyNode.Type() != "string" {
				return nil, c.fail(child, "object keys must be strings")
			}
			key, _, err := c.decodeString(keyNode)
			if err != nil {
				return nil, err
			}
			val, err := c.convert(valueNode)
			if err != nil {
				return nil, err
			}
			if _, dup := v.Fields[key]; !dup {
				v.Keys = append(v.Keys, key)
			}
			v.Fields[key] = val
		}
		return v, nil
	case "array":
		v := &Value{Kind: KindArray, Line: line}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "comment" {
				continue
			}
			item, err := c.convert(child)
			if err != nil {
				return nil, err
			}
			v.Items = append(v.Items, item)
		}
		return v, nil
	case "string":
		s, rows, err := c.decodeString(n)
		if err != nil {
			return nil, err
		}
		return &Value{Kind: KindString, Line: line, Str: s, Raw: n.Content(c.source), Rows: rows}, nil
	case "number":
		return c.number(n, n.Content(c.source), line)
	case "unary_expression":
		op := n.ChildByFieldName("operator")
		arg := n.ChildByFieldName("argument")
		if op == nil || arg == nil || op.Content(c.source) != "-" || arg.Type() != "number" {
			return nil, c.fail(n, "unsupported expression")
		}
		return c.number(n, "-"+arg.Content(c.source), line)
	case "true", "false":
		return &Value{Kind: KindBool, Line: line, Bool: n.Type() == "true", Raw: n.Type()}, nil
	case "null":
		return &Value{Kind: KindNull, Line: line, Raw: "null"}, nil
	}
	return nil, c.fail(n, "unsupported JSON value %s", n.Type())
}

func (c *converter) number(n *sitter.Node, raw string, line int) (*Value, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, c.fail(n, "invalid number %s", raw)
	}
	return &Value{Kind: KindNumber, Line: line, Num: f, Raw: raw}, nil
}

// decodeString unescapes a JSON string. A line continuation stands for a raw
// line break. rows maps each line of the result to its artifact line, so an
// escaped \n starts a new line of text on the same row.
func (c *converter) decodeString(n *sitter.Node) (string, []int, error) {
	raw := n.Content(c.source)
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return "", nil, c.fail(n, "strings must be double-quoted")
	}
	body := raw[1 : len(raw)-1]
	row := int(n.StartPoint().Row) + 1
	rows := []int{row}

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		ch := body[i]
		if ch == '\r' {
			continue
		}
		if ch == '\n' {
			row++
			rows = append(rows, row)
			b.WriteByte('\n')
			continue
		}
		if ch != '\\' {
			b.WriteByte(ch)
			continue
		}
		i++
		if i >= len(body) {
			return "", nil, c.fail(n, "invalid string literal: trailing backslash")
		}
		switch e := body[i]; e {
		case '"', '\\', '/':
			b.WriteByte(e)
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			rows = append(rows, row)
			b.WriteByte('\n')
		case '\r', '\n':
			if e == '\r' && i+1 < len(body) && body[i+1] == '\n' {
				i++
			}
			row++
			rows = append(rows, row)
			b.WriteByte('\n')
		case 'u':
			r, width, ok := decodeUnicodeEscape(body[i-1:])
			if !ok {
				return "", nil, c.fail(n, "invalid string literal: bad \\u escape")
			}
			b.WriteRune(r)
			i += width - 2
		default:
			return "", nil, c.fail(n, "invalid string literal: unknown escape \\%c", e)
		}
	}
	if len(rows) == 1 {
		rows = nil
	}
	return b.String(), rows, nil
}

// decodeUnicodeEscape reads \uXXXX, or a surrogate pair of two, from the
// start of s. width is the number of bytes consumed.
func decodeUnicodeEscape(s string) (r rune, width int, ok bool) {
	first, ok := hex4(s)
	if !ok {
		return 0, 0, false
	}
	if utf16.IsSurrogate(rune(first)) {
		if second, ok := hex4(s[6:]); ok {
			if pair := utf16.DecodeRune(rune(first), rune(second)); pair != '\uFFFD' {
				return pair, 12, true
			}
		}
	}
	return rune(first), 6, true
}

func hex4(s string) (uint64, bool) {
	if len(s) < 6 || s[0] != '\\' || s[1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(s[2:6], 16, 32)
	return v, err == nil
}
