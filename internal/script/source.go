package script

import (
	"fmt"
	"strings"
)

// Source is a script to parse: either embedded in a structural artifact
// field or a standalone .script file.
type Source struct {
	// Path of the owning artifact; findings are reported against it.
	Path string
	// FieldPath locates an embedded script inside its artifact; empty for standalone.
	FieldPath string
	// StartLine is the artifact line where local line 1 begins.
	StartLine int
	// Rows maps each local line to its artifact line when the text was
	// decoded from a string whose escapes do not match the physical rows.
	Rows     []int
	Text     string
	Embedded bool
}

// Embedded wraps a <% %> field value found at line of its owner artifact.
func Embedded(owner, fieldPath string, line int, text string) Source {
	return Source{Path: owner, FieldPath: fieldPath, StartLine: line, Text: text, Embedded: true}
}

// WithRows attaches the artifact row of each line of the script text.
func (s Source) WithRows(rows []int) Source {
	s.Rows = rows
	return s
}

// Row converts a line counted through the decoded text into the artifact
// line it sits on.
func (s Source) Row(line int) int {
	if len(s.Rows) == 0 {
		return line
	}
	start := s.StartLine
	if start < 1 {
		start = 1
	}
	i := line - start
	if i < 0 {
		i = 0
	}
	if i >= len(s.Rows) {
		i = len(s.Rows) - 1
	}
	return s.Rows[i]
}

// remap moves token lines onto artifact rows. Template parts keep their
// decoded lines; they are remapped when lexed.
func (s Source) remap(toks []Token) []Token {
	if len(s.Rows) == 0 {
		return toks
	}
	for i := range toks {
		toks[i].Line = s.Row(toks[i].Line)
	}
	return toks
}

// Standalone wraps the full contents of a .script file.
func Standalone(path, text string) Source {
	return Source{Path: path, StartLine: 1, Text: text}
}

// Offset is the value added to a local line to get the artifact line.
func (s Source) Offset() int {
	if s.StartLine < 1 {
		return 0
	}
	return s.StartLine - 1
}

// Name identifies the script in messages.
func (s Source) Name() string {
	if s.FieldPath == "" {
		return s.Path
	}
	return s.Path + "#" + s.FieldPath
}

// body returns the text to lex. The <% and %> wrappers of an embedded
// script are blanked out in place so lines and columns stay put.
func (s Source) body() string {
	if !s.Embedded {
		return s.Text
	}
	text := s.Text
	open := strings.Index(text, "<%")
	close := strings.LastIndex(text, "%>")
	if open < 0 || close < open+2 {
		return text
	}
	return text[:open] + "  " + text[open+2:close] + "  " + text[close+2:]
}

// ParseWarning records a construct the parser skipped over.
type ParseWarning struct {
	Line int
	Msg  string
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Msg)
}

// ParseError is returned when nothing in a script could be parsed.
type ParseError struct {
	Source   Source
	Line     int
	Msg      string
	Warnings []ParseWarning
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Source.Name(), e.Line, e.Msg)
}
