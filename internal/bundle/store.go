// ABOUTME: Bundle Store: where static template files (descriptor base, icons, strings) come from
// ABOUTME: DirStore reads .pass/.order directories from disk, MemStore serves fixed files for tests and tooling

package bundle

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/2389/wallet-gateway/internal/signing"
)

// Store provides template files by template name.
type Store interface {
	Template(ctx context.Context, name string) ([]signing.File, error)
}

// DirStore serves templates from directories under root. The empty name
// selects root itself.
type DirStore struct {
	root   string
	logger *slog.Logger
}

// NewDirStore creates a DirStore rooted at root.
func NewDirStore(root string) *DirStore {
	return &DirStore{root: root, logger: slog.Default()}
}

// WithLogger sets the logger that reports skipped template entries.
func (s *DirStore) WithLogger(logger *slog.Logger) *DirStore {
	if logger != nil {
		s.logger = logger.With("component", "template-store")
	}
	return s
}

// Template walks the template directory and returns its files with
// slash-separated names relative to the template root. Hidden files and
// leftover manifest/signature entries are skipped.
func (s *DirStore) Template(ctx context.Context, name string) ([]signing.File, error) {
	dir := s.root
	if name != "" {
		if err := signing.ValidateName(name); err != nil {
			return nil, fmt.Errorf("template %q: %w", name, err)
		}
		dir = filepath.Join(s.root, filepath.FromSlash(name))
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: template directory %s", ErrMissingTemplateFile, dir)
		}
		return nil, fmt.Errorf("stat template: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template %s is not a directory", dir)
	}

	var files []signing.File
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if signing.IsReserved(rel) {
			s.logger.WarnContext(ctx, "skipping signed leftover in template; it is regenerated on every build",
				"template", dir, "file", rel)
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, signing.File{Name: rel, Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading template %s: %w", dir, err)
	}
	return files, nil
}

// MemStore holds templates in memory.
type MemStore struct {
	mu        sync.RWMutex
	templates map[string][]signing.File
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{templates: make(map[string][]signing.File)}
}

// Put stores a copy of files under name.
func (s *MemStore) Put(name string, files []signing.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[name] = copyFiles(files)
}

// Template returns a copy of the named template's files in name order.
func (s *MemStore) Template(ctx context.Context, name string) ([]signing.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	files, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: template %q", ErrMissingTemplateFile, name)
	}
	out := copyFiles(files)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func copyFiles(files []signing.File) []signing.File {
	out := make([]signing.File, len(files))
	for i, f := range files {
		out[i] = signing.File{Name: f.Name, Data: append([]byte(nil), f.Data...)}
	}
	return out
}
