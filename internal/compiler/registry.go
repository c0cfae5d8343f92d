package compiler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// SourceExt is the extension of the files the registry discovers
const SourceExt = ".cs"

// skippedDirs are build output and tool directories never searched for sources
var skippedDirs = map[string]bool{
	"bin":          true,
	"obj":          true,
	"node_modules": true,
}

// SourceRegistry resolves command line arguments to the source files to compile.
// Files are taken as given; directories are walked for SourceExt files.
type SourceRegistry struct {
	roots   []string
	files   []string
	sources map[string]string // absolute file path -> contents
}

// NewSourceRegistry creates a registry for the given files and directories.
// Every root is resolved to an absolute path.
func NewSourceRegistry(roots ...string) (*SourceRegistry, error) {
	r := &SourceRegistry{sources: make(map[string]string)}
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
		}
		r.roots = append(r.roots, abs)
	}
	return r, nil
}

// Discover walks every root and reads each source file found. Files are returned
// sorted and without duplicates. A root that does not exist is an error.
func (r *SourceRegistry) Discover() ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, root := range r.roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("source not found: %w", err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && (strings.HasPrefix(d.Name(), ".") || skippedDirs[d.Name()]) {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) == SourceExt {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	slices.Sort(files)
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f, err)
		}
		r.sources[f] = string(data)
	}
	r.files = files
	return files, nil
}

// Files returns the discovered files in order
func (r *SourceRegistry) Files() []string {
	return r.files
}

// Source returns the contents of a discovered file
func (r *SourceRegistry) Source(path string) (string, bool) {
	s, ok := r.sources[path]
	return s, ok
}

// Watched returns the directories to watch for changes: every directory root and the
// parent of every file root
func (r *SourceRegistry) Watched() []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, root := range r.roots {
		dir := root
		if info, err := os.Stat(root); err == nil && !info.IsDir() {
			dir = filepath.Dir(root)
		}
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
