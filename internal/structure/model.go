package structure

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"extendaudit/internal/artifact"
)

// DefaultExemptWidgetTypes are the widget types that never need an id.
// They are layout or templating containers the platform addresses by position.
var DefaultExemptWidgetTypes = []string{
	"bpExtender",
	"card",
	"cardContainer",
	"column",
	"editTasks",
	"footer",
	"group",
	"hub",
	"instanceList",
	"item",
	"multiSelectCalendar",
	"pod",
	"taskReference",
	"title",
}

// Options tunes how a model is built.
type Options struct {
	// ExemptWidgetTypes replaces DefaultExemptWidgetTypes when non-nil.
	ExemptWidgetTypes []string
}

func (o Options) exemptSet() map[string]bool {
	list := o.ExemptWidgetTypes
	if list == nil {
		list = DefaultExemptWidgetTypes
	}
	set := make(map[string]bool, len(list))
	for _, t := range list {
		set[t] = true
	}
	return set
}

// Widget is one UI element of a page or pod presentation tree.
type Widget struct {
	Type       string
	ID         string
	HasID      bool
	Path       string
	Line       int
	IDLine     int
	IDExempt   bool
	Children   []*Widget
	Attributes map[string]*Value
}

// Endpoint is a data endpoint or an AppMetadata data provider.
type Endpoint struct {
	Name                 string
	URL                  string
	FailOnStatusCodes    []string
	HasFailOnStatusCodes bool
	DataProvider         bool
	Extra                map[string]*Value
	Path                 string
	Line                 int
	NameLine             int
	URLLine              int
}

// ScriptField is a string field whose value is wrapped in <% %>. Rows maps
// each line of Text to its artifact line.
type ScriptField struct {
	Path string
	Line int
	Text string
	Rows []int
}

// StringField is any string value with its provenance.
type StringField struct {
	Path  string
	Line  int
	Value string
}

// Model is the typed view of one structural artifact.
type Model struct {
	Kind  artifact.Kind
	Path  string
	Root  *Value
	Lines map[string]int

	Widgets         []*Widget
	Endpoints       []*Endpoint
	Scripts         []ScriptField
	Strings         []StringField
	SecurityDomains []string
	Includes        []string
	PageID          string
	MicroConclusion bool
	ApplicationID   string
	ErrorPageIDs    []string
}

// Line returns the recorded line of a field path, or 0.
func (m *Model) Line(path string) int {
	if m == nil {
		return 0
	}
	return m.Lines[path]
}

// Build parses a structural artifact into its model.
func Build(ctx context.Context, src artifact.Source, opts Options) (*Model, error) {
	if !src.Kind.IsStructural() {
		return nil, fmt.Errorf("%s is not a structural artifact (%s)", src.Path, src.Kind)
	}

	root, err := parseDocument(ctx, src.Path, src.Text)
	if err != nil {
		return nil, err
	}
	if root.Kind != KindObject {
		return nil, &ParseError{Path: src.Path, Line: root.Line, Msg: "top-level value must be an object"}
	}

	m := &Model{
		Kind:  src.Kind,
		Path:  src.Path,
		Root:  root,
		Lines: make(map[string]int),
	}

	// 1. Provenance and leaf collections
	m.record(root, "")

	// 2. Widgets
	b := widgetBuilder{exempt: opts.exemptSet(), model: m}
	b.walk(root, "", "", false, nil)

	// 3. Kind-specific fields
	switch src.Kind {
	case artifact.KindPage:
		m.PageID, _ = root.Get("id").AsString()
		m.SecurityDomains = root.Get("securityDomains").StringList()
		m.Includes = root.Get("include").StringList()
		if mc := root.Lookup("presentation.microConclusion"); mc != nil && mc.Kind == KindBool {
			m.MicroConclusion = mc.Bool
		}
		m.collectEndpoints(root.Get("endPoints"), "endPoints")
		m.collectEndpoints(root.Lookup("outboundData.outboundEndPoints"), "outboundData.outboundEndPoints")
	case artifact.KindPod:
		m.collectEndpoints(root.Lookup("seed.endPoints"), "seed.endPoints")
	case artifact.KindAppMetadata:
		m.ApplicationID, _ = root.Get("applicationId").AsString()
		m.collectDataProviders(root.Get("dataProviders"))
	case artifact.KindSiteMetadata:
		m.ApplicationID, _ = root.Get("applicationId").AsString()
		if pages := root.Get("errorPageConfigurations"); pages != nil && pages.Kind == KindArray {
			for _, p := range pages.Items {
				if id, ok := p.Get("pageId").AsString(); ok && id != "" {
					m.ErrorPageIDs = append(m.ErrorPageIDs, id)
				}
			}
		}
		sort.Strings(m.ErrorPageIDs)
	}

	return m, nil
}

// record walks the whole tree, storing the line of every value by path.
func (m *Model) record(v *Value, path string) {
	m.Lines[path] = v.Line
	switch v.Kind {
	case KindObject:
		for _, key := range v.Keys {
			m.record(v.Fields[key], joinPath(path, key))
		}
	case KindArray:
		for i, item := range v.Items {
			m.record(item, fmt.Sprintf("%s[%d]", path, i))
		}
	case KindString:
		m.Strings = append(m.Strings, StringField{Path: path, Line: v.Line, Value: v.Str})
		if IsScript(v.Str) {
			m.Scripts = append(m.Scripts, ScriptField{Path: path, Line: v.Line, Text: v.Str, Rows: v.Rows})
		}
	}
}

func (m *Model) collectEndpoints(list *Value, base string) {
	if list == nil || list.Kind != KindArray {
		return
	}
	for i, item := range list.Items {
		if item.Kind != KindObject {
			continue
		}
		path := fmt.Sprintf("%s[%d]", base, i)
		ep := &Endpoint{Path: path, Line: item.Line, Extra: make(map[string]*Value)}
		for _, key := range item.Keys {
			val := item.Fields[key]
			switch key {
			case "name":
				ep.Name, _ = val.AsString()
				ep.NameLine = val.Line
			case "url":
				ep.URL, _ = val.AsString()
				ep.URLLine = val.Line
			case "failOnStatusCodes":
				ep.HasFailOnStatusCodes = true
				ep.FailOnStatusCodes = statusCodes(val)
			default:
				ep.Extra[key] = val
			}
		}
		m.Endpoints = append(m.Endpoints, ep)
	}
}

func (m *Model) collectDataProviders(list *Value) {
	if list == nil || list.Kind != KindArray {
		return
	}
	for i, item := range list.Items {
		key := item.Get("key")
		value := item.Get("value")
		if key == nil || value == nil {
			continue
		}
		ep := &Endpoint{
			Path:         fmt.Sprintf("dataProviders[%d]", i),
			Line:         item.Line,
			DataProvider: true,
			NameLine:     key.Line,
			URLLine:      value.Line,
		}
		ep.Name, _ = key.AsString()
		ep.URL, _ = value.AsString()
		m.Endpoints = append(m.Endpoints, ep)
	}
}

// statusCodes reads failOnStatusCodes entries given as strings, numbers or
// objects of the form {"code": "400"}.
func statusCodes(v *Value) []string {
	if v == nil || v.Kind != KindArray {
		return nil
	}
	var codes []string
	for _, item := range v.Items {
		switch item.Kind {
		case KindString:
			codes = append(codes, item.Str)
		case KindNumber:
			codes = append(codes, item.Raw)
		case KindObject:
			if c := item.Get("code"); c != nil {
				if s, ok := c.AsString(); ok {
					codes = append(codes, s)
				} else if c.Kind == KindNumber {
					codes = append(codes, c.Raw)
				}
			}
		}
	}
	return codes
}

// IsScript reports whether a string field holds an embedded script.
func IsScript(s string) bool {
	t := strings.TrimSpace(s)
	return strings.HasPrefix(t, "<%") && strings.HasSuffix(t, "%>")
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

var widgetContainerKeys = map[string]bool{
	"body":         true,
	"header":       true,
	"footer":       true,
	"template":     true,
	"cellTemplate": true,
}

type widgetBuilder struct {
	exempt map[string]bool
	model  *Model
}

// walk visits every object; parent is the nearest enclosing widget.
func (b *widgetBuilder) walk(v *Value, path, key string, inChildren bool, parent *Widget) {
	switch v.Kind {
	case KindArray:
		for i, item := range v.Items {
			b.walk(item, fmt.Sprintf("%s[%d]", path, i), key, key == "children", parent)
		}
	case KindObject:
		if w := b.widget(v, path, key, inChildren); w != nil {
			if parent != nil {
				parent.Children = append(parent.Children, w)
			}
			b.model.Widgets = append(b.model.Widgets, w)
			parent = w
		}
		for _, k := range v.Keys {
			b.walk(v.Fields[k], joinPath(path, k), k, false, parent)
		}
	}
}

func (b *widgetBuilder) widget(v *Value, path, key string, inChildren bool) *Widget {
	typ, ok := v.Get("type").AsString()
	if !ok || typ == "" {
		return nil
	}
	if v.Get("children") == nil && !inChildren && !widgetContainerKeys[key] {
		return nil
	}
	w := &Widget{
		Type:       typ,
		Path:       path,
		Line:       v.Line,
		IDExempt:   b.exempt[typ],
		Attributes: make(map[string]*Value),
	}
	for _, k := range v.Keys {
		switch k {
		case "type", "children":
		case "id":
			w.HasID = true
			w.IDLine = v.Fields[k].Line
			w.ID, _ = v.Fields[k].AsString()
		default:
			w.Attributes[k] = v.Fields[k]
		}
	}
	return w
}
