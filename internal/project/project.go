package project

import (
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"sort"
	"strings"

	"extendaudit/internal/artifact"
	"extendaudit/internal/script"
	"extendaudit/internal/structure"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoArtifacts is returned when a run has nothing to analyze.
var ErrNoArtifacts = errors.New("no readable artifacts")

// Options configures project assembly.
type Options struct {
	// Workers bounds parallel parsing; values below 1 mean GOMAXPROCS.
	Workers   int
	Structure structure.Options
	Logger    *zap.Logger
}

// Script is one parsed script of a file.
type Script struct {
	Source  script.Source
	Program *script.Program
	// Err is set when nothing in the script could be parsed.
	Err *script.ParseError
}

// File is one analyzed artifact with everything parsed from it.
type File struct {
	Source artifact.Source
	// Model is nil for standalone scripts and for documents that failed to parse.
	Model   *structure.Model
	Scripts []*Script
	// ParseErr is the structural parse failure of a JSON document.
	ParseErr *structure.ParseError
}

// Path returns the artifact path.
func (f *File) Path() string { return f.Source.Path }

// Kind returns the artifact kind.
func (f *File) Kind() artifact.Kind { return f.Source.Kind }

// Include is one entry of a Page's include list.
type Include struct {
	Name string
	Line int
	// Script is the standalone script the entry names, nil when absent from the run.
	Script *File
}

// Context is the aggregate of one analysis run. It is read-only once built.
type Context struct {
	// Files are ordered by path.
	Files []*File
	// Present holds kinds with at least one usable file. A kind whose only
	// files failed to parse is in Unparsed instead and counts as missing.
	Present      map[artifact.Kind]bool
	Unparsed     map[artifact.Kind]bool
	FilesMissing []artifact.Kind

	// ErrorPageIDs are the page ids a SiteMetadata routes errors to.
	ErrorPageIDs   map[string]bool
	IncludesByPage map[string][]Include
	ApplicationID  string

	// Warnings collect non-fatal problems found while assembling.
	Warnings []string
}

// Has reports whether at least one artifact of kind is present and parsed.
func (c *Context) Has(kind artifact.Kind) bool {
	return c.Present[kind]
}

// IsUnparsed reports whether kind has files but none of them parsed.
func (c *Context) IsUnparsed(kind artifact.Kind) bool {
	return c.Unparsed[kind] && !c.Present[kind]
}

// FilesOf returns the files of a kind, ordered by path.
func (c *Context) FilesOf(kind artifact.Kind) []*File {
	var out []*File
	for _, f := range c.Files {
		if f.Kind() == kind {
			out = append(out, f)
		}
	}
	return out
}

// File returns the file at path, or nil.
func (c *Context) File(p string) *File {
	i := sort.Search(len(c.Files), func(i int) bool { return c.Files[i].Path() >= p })
	if i < len(c.Files) && c.Files[i].Path() == p {
		return c.Files[i]
	}
	return nil
}

// Paths lists every analyzed file path.
func (c *Context) Paths() []string {
	out := make([]string, len(c.Files))
	for i, f := range c.Files {
		out[i] = f.Path()
	}
	return out
}

// requiredKinds are the only kinds other rules may hard-depend on.
var requiredKinds = []artifact.Kind{artifact.KindAppMetadata, artifact.KindSiteMetadata}

// Build parses every source and links the results into a Context.
// Per-file parse failures are recorded on the file, never returned.
func Build(ctx context.Context, sources []artifact.Source, opts Options) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// 1. Classify
	pc := &Context{
		Present:        make(map[artifact.Kind]bool),
		Unparsed:       make(map[artifact.Kind]bool),
		ErrorPageIDs:   make(map[string]bool),
		IncludesByPage: make(map[string][]Include),
	}
	var accepted []artifact.Source
	for _, src := range sources {
		if src.Kind == "" {
			kind, ok := artifact.Classify(src.Path)
			if !ok {
				pc.Warnings = append(pc.Warnings, fmt.Sprintf("%s: unsupported artifact type, skipped", src.Path))
				continue
			}
			src.Kind = kind
		}
		accepted = append(accepted, src)
	}
	if len(accepted) == 0 {
		return nil, ErrNoArtifacts
	}
	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].Path < accepted[j].Path })

	// 2. Parse in parallel into index-addressed slots. Slots left nil were
	// not parsed before ctx was cancelled.
	files := make([]*File, len(accepted))
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, src := range accepted {
		i, src := i, src
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			files[i] = parseFile(ctx, src, opts.Structure)
			return nil
		})
	}
	_ = g.Wait()
	for i, f := range files {
		if f == nil {
			pc.Warnings = append(pc.Warnings, fmt.Sprintf("%s: not parsed: %v", accepted[i].Path, ctx.Err()))
			continue
		}
		pc.Files = append(pc.Files, f)
	}
	if len(pc.Files) == 0 {
		return nil, fmt.Errorf("failed to parse artifacts: %w", ctx.Err())
	}
	if skipped := len(accepted) - len(pc.Files); skipped > 0 {
		logger.Warn("parsing cancelled; continuing with the parsed files", zap.Int("unparsed", skipped), zap.Error(ctx.Err()))
	}

	// 3. Present, unparsed and missing kinds
	for _, f := range pc.Files {
		if f.Model != nil || f.Kind() == artifact.KindScript {
			pc.Present[f.Kind()] = true
		} else {
			pc.Unparsed[f.Kind()] = true
		}
		if f.ParseErr != nil {
			logger.Warn("artifact parse failed", zap.String("path", f.Path()), zap.Int("line", f.ParseErr.Line), zap.String("error", f.ParseErr.Msg))
		}
		for _, s := range f.Scripts {
			if s.Err != nil {
				logger.Warn("script parse failed", zap.String("script", s.Source.Name()), zap.Int("line", s.Err.Line))
				continue
			}
			for _, w := range s.Program.Warnings {
				logger.Debug("script construct skipped", zap.String("script", s.Source.Name()), zap.Int("line", w.Line), zap.String("reason", w.Msg))
			}
		}
	}
	for _, kind := range requiredKinds {
		if pc.Present[kind] {
			continue
		}
		pc.FilesMissing = append(pc.FilesMissing, kind)
		if pc.Unparsed[kind] {
			pc.Warnings = append(pc.Warnings, fmt.Sprintf("%s file could not be parsed; treated as missing", kind))
		}
	}

	// 4. Cross-file links
	pc.link()

	logger.Debug("project assembled",
		zap.Int("files", len(pc.Files)),
		zap.Int("error_pages", len(pc.ErrorPageIDs)),
		zap.Any("missing", pc.FilesMissing))
	return pc, nil
}

// parseFile returns nil when ctx was cancelled before the file was parsed.
func parseFile(ctx context.Context, src artifact.Source, opts structure.Options) *File {
	f := &File{Source: src}
	if src.Kind == artifact.KindScript {
		f.Scripts = []*Script{parseScript(script.Standalone(src.Path, src.Text))}
		return f
	}

	model, err := structure.Build(ctx, src, opts)
	if err != nil {
		var perr *structure.ParseError
		if !errors.As(err, &perr) {
			if ctx.Err() != nil {
				return nil
			}
			perr = &structure.ParseError{Path: src.Path, Line: 1, Msg: err.Error()}
		}
		f.ParseErr = perr
		return f
	}
	f.Model = model
	for _, field := range model.Scripts {
		f.Scripts = append(f.Scripts, parseScript(script.Embedded(src.Path, field.Path, field.Line, field.Text).WithRows(field.Rows)))
	}
	return f
}

func parseScript(src script.Source) *Script {
	prog, err := script.Parse(src)
	s := &Script{Source: src, Program: prog}
	if err != nil {
		var perr *script.ParseError
		if errors.As(err, &perr) {
			s.Err = perr
		} else {
			s.Err = &script.ParseError{Source: src, Line: src.StartLine, Msg: err.Error()}
		}
		s.Program = nil
	}
	return s
}

func (c *Context) link() {
	scriptsByName := make(map[string]*File)
	for _, f := range c.FilesOf(artifact.KindScript) {
		base := path.Base(f.Path())
		if _, dup := scriptsByName[base]; !dup {
			scriptsByName[base] = f
		}
	}

	for _, f := range c.Files {
		if f.Model == nil {
			continue
		}
		switch f.Kind() {
		case artifact.KindSiteMetadata:
			for _, id := range f.Model.ErrorPageIDs {
				c.ErrorPageIDs[id] = true
			}
		case artifact.KindAppMetadata:
			if c.ApplicationID == "" {
				c.ApplicationID = f.Model.ApplicationID
			}
		case artifact.KindPage:
			includes := f.Model.Root.Get("include")
			if includes == nil {
				continue
			}
			for _, item := range includes.Items {
				name, ok := item.AsString()
				if !ok || strings.TrimSpace(name) == "" {
					continue
				}
				inc := Include{Name: name, Line: item.Line}
				inc.Script = scriptsByName[path.Base(strings.TrimSpace(name))]
				c.IncludesByPage[f.Path()] = append(c.IncludesByPage[f.Path()], inc)
			}
		}
	}
}

// OK reports whether the script parsed.
func (s *Script) OK() bool { return s.Program != nil }
