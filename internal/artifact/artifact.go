package artifact

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind identifies one of the Workday Extend artifact types.
type Kind string

const (
	KindPage         Kind = "Page"
	KindPod          Kind = "Pod"
	KindAppMetadata  Kind = "AppMetadata"
	KindSiteMetadata Kind = "SiteMetadata"
	KindScript       Kind = "Script"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindPage, KindPod, KindAppMetadata, KindSiteMetadata, KindScript}

var extensions = map[string]Kind{
	".pmd":    KindPage,
	".pod":    KindPod,
	".amd":    KindAppMetadata,
	".smd":    KindSiteMetadata,
	".script": KindScript,
}

// Extension returns the file extension that carries the kind.
func (k Kind) Extension() string {
	for ext, kind := range extensions {
		if kind == k {
			return ext
		}
	}
	return ""
}

// IsStructural reports whether the kind is a JSON document.
func (k Kind) IsStructural() bool {
	return k != KindScript && k != ""
}

// Classify maps a file path to its artifact kind by extension.
func Classify(path string) (Kind, bool) {
	kind, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return kind, ok
}

// ParseKind accepts either a kind name or an extension.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	if k, ok := extensions["."+strings.TrimPrefix(strings.ToLower(s), ".")]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown artifact kind: %s", s)
}

// Source is one input file of an analysis run.
type Source struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
	Text string `json:"-"`
}

// NewSource classifies path and wraps its contents.
func NewSource(path string, text string) (Source, error) {
	kind, ok := Classify(path)
	if !ok {
		return Source{}, fmt.Errorf("unsupported artifact extension: %s", path)
	}
	return Source{Path: filepath.ToSlash(path), Kind: kind, Text: text}, nil
}

// Stem returns the file name without its extension.
func (s Source) Stem() string {
	base := filepath.Base(s.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
