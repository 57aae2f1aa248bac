// Package adapters is the on-disk store of LoRA adapter artifacts. It answers
// existence, size and host-path questions and never caches: a file can be
// replaced between two requests.
package adapters

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lorad/internal/common/fsutil"
	"lorad/pkg/types"
)

// DefaultPlaceholderMinBytes is the size below which an adapter file is
// treated as a placeholder rather than real weights.
const DefaultPlaceholderMinBytes int64 = 1 << 20

// Classification describes what an adapter file is usable for.
type Classification int

const (
	Missing Classification = iota
	Placeholder
	Real
)

func (c Classification) String() string {
	switch c {
	case Real:
		return "real"
	case Placeholder:
		return "placeholder"
	default:
		return "missing"
	}
}

// ErrNotFound is returned when an adapter file does not exist.
var ErrNotFound = errors.New("adapter not found")

// Store is a directory of adapter files. HostDir is the same directory as seen
// by the inference service, which may live in another filesystem namespace.
type Store struct {
	dir                 string
	hostDir             string
	placeholderMinBytes int64
}

// New builds a Store rooted at dir. An empty hostDir means the inference
// service sees the same path; minBytes <= 0 selects DefaultPlaceholderMinBytes.
func New(dir, hostDir string, minBytes int64) (*Store, error) {
	d, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(d)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	if hostDir == "" {
		hostDir = abs
	}
	if minBytes <= 0 {
		minBytes = DefaultPlaceholderMinBytes
	}
	return &Store{dir: abs, hostDir: hostDir, placeholderMinBytes: minBytes}, nil
}

// Dir returns the local adapters directory.
func (s *Store) Dir() string { return s.dir }

// Classify stats the named adapter and classifies it by size.
func (s *Store) Classify(name string) (Classification, error) {
	p, ok := s.localPath(name)
	if !ok {
		return Missing, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	size, err := fsutil.RegularFileSize(p)
	if err != nil {
		if fsutil.IsNotExist(err) {
			return Missing, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Missing, fmt.Errorf("stat adapter %s: %w", name, err)
	}
	return s.classifySize(size), nil
}

// ResolvePath returns the adapter path as visible to the inference service.
func (s *Store) ResolvePath(name string) string {
	return filepath.ToSlash(filepath.Join(s.hostDir, name))
}

// LocalPath returns the adapter path on this host.
func (s *Store) LocalPath(name string) string {
	return filepath.Join(s.dir, name)
}

// List returns every regular file in the store sorted by name.
func (s *Store) List() ([]types.AdapterInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if fsutil.IsNotExist(err) {
			return []types.AdapterInfo{}, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	out := make([]types.AdapterInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		size, err := fsutil.RegularFileSize(filepath.Join(s.dir, e.Name()))
		if err != nil {
			// removed or replaced while listing
			continue
		}
		out = append(out, types.AdapterInfo{
			Name:           e.Name(),
			SizeBytes:      size,
			Classification: s.classifySize(size).String(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) classifySize(size int64) Classification {
	if size < s.placeholderMinBytes {
		return Placeholder
	}
	return Real
}

// localPath rejects names that would escape the store directory.
func (s *Store) localPath(name string) (string, bool) {
	if name == "" || name == "." || name == ".." {
		return "", false
	}
	if strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", false
	}
	return filepath.Join(s.dir, name), true
}
