package track

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNoSuchFile is returned when a local track name is not in the library.
var ErrNoSuchFile = errors.New("no such file")

// Library indexes the audio files of a single directory by file name.
type Library struct {
	dir   string
	mu    sync.RWMutex
	files map[string]string
}

// OpenLibrary indexes dir. An empty dir yields an empty library.
func OpenLibrary(dir string) (*Library, error) {
	l := &Library{dir: dir, files: make(map[string]string)}
	if dir == "" {
		return l, nil
	}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Library) Reload() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("read audio directory: %w", err)
	}

	files := make(map[string]string, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		files[e.Name()] = filepath.Join(l.dir, e.Name())
	}

	l.mu.Lock()
	l.files = files
	l.mu.Unlock()
	return nil
}

func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.files)
}

// Match returns up to limit file names containing partial, case-insensitively,
// in lexical order.
func (l *Library) Match(partial string, limit int) []string {
	needle := strings.ToLower(partial)

	l.mu.RLock()
	names := make([]string, 0, len(l.files))
	for name := range l.files {
		if strings.Contains(strings.ToLower(name), needle) {
			names = append(names, name)
		}
	}
	l.mu.RUnlock()

	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names
}

// Lookup builds a playable source for the file called name.
func (l *Library) Lookup(name string) (*Source, Metadata, error) {
	l.mu.RLock()
	path, ok := l.files[name]
	l.mu.RUnlock()
	if !ok {
		return nil, Metadata{}, fmt.Errorf("%w: %s", ErrNoSuchFile, name)
	}

	src, err := NewFileSource(path)
	if err != nil {
		return nil, Metadata{}, err
	}
	return src, Metadata{Title: name, StreamURL: path}, nil
}
