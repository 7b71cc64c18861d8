package crawler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"extendaudit/internal/artifact"
)

// Crawler scans a directory for Extend artifacts.
type Crawler struct {
	ignored []string
	// MaxFileSize skips larger files; zero means no limit.
	MaxFileSize int64
}

// NewCrawler creates a new crawler instance.
func NewCrawler() *Crawler {
	return &Crawler{
		ignored: []string{".git", "node_modules", "vendor", ".idea", ".vscode"},
	}
}

// Ignored reports whether a directory name is never descended into.
func (c *Crawler) Ignored(name string) bool {
	for _, ign := range c.ignored {
		if name == ign {
			return true
		}
	}
	return false
}

// Skipped is a file the crawler saw but did not load.
type Skipped struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ScanProject walks root and loads every supported artifact. Paths are
// relative to root with forward slashes, ordered by path.
func (c *Crawler) ScanProject(root string) ([]artifact.Source, []Skipped, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	if !info.IsDir() {
		src, err := c.load(filepath.Dir(root), root)
		if err != nil {
			return nil, nil, err
		}
		return []artifact.Source{src}, nil, nil
	}

	var sources []artifact.Source
	var skipped []Skipped
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip ignored directories
		if d.IsDir() {
			if path != root && c.Ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		// Only process artifact files
		if _, ok := artifact.Classify(d.Name()); !ok {
			return nil
		}
		if c.MaxFileSize > 0 {
			if fi, err := d.Info(); err == nil && fi.Size() > c.MaxFileSize {
				skipped = append(skipped, Skipped{Path: path, Reason: "file too large"})
				return nil
			}
		}

		src, err := c.load(root, path)
		if err != nil {
			// Log and continue instead of failing the whole scan
			skipped = append(skipped, Skipped{Path: path, Reason: err.Error()})
			return nil
		}
		sources = append(sources, src)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })
	return sources, skipped, nil
}

func (c *Crawler) load(root, path string) (artifact.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return artifact.Source{}, err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return artifact.NewSource(filepath.ToSlash(rel), string(data))
}
