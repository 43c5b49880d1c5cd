package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Whisker2257/casa/internal/core/domain"
)

// Storage implements ports.ObjectStore on the local filesystem. Keys are
// /-delimited; any key that would resolve outside the storage root is
// rejected before touching disk.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

// cleanKey normalizes a /-delimited key. The result may still carry a
// leading ".."; resolve decides whether that escapes the root.
func cleanKey(key string) string {
	clean := path.Clean(strings.TrimLeft(key, "/"))
	if clean == "." {
		return ""
	}
	return clean
}

// resolve maps a key onto the storage root. Keys whose cleaned form
// climbs above the root fail with ErrValidation; stripping the traversal
// instead would silently alias a different object.
func (s *Storage) resolve(key string) (string, error) {
	full := filepath.Join(s.basePath, filepath.FromSlash(cleanKey(key)))
	rel, err := filepath.Rel(s.basePath, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.WrapError(domain.ErrValidation, "resolve object key",
			fmt.Errorf("key %q escapes the storage root", key))
	}
	return full, nil
}

func (s *Storage) Write(_ context.Context, key string, data []byte) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write object: %w", err)
	}
	return nil
}

func (s *Storage) Read(_ context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "read object", err)
		}
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (s *Storage) Stat(_ context.Context, key string) (domain.ObjectInfo, error) {
	path, err := s.resolve(key)
	if err != nil {
		return domain.ObjectInfo{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ObjectInfo{}, domain.WrapError(domain.ErrNotFound, "stat object", err)
		}
		return domain.ObjectInfo{}, fmt.Errorf("stat object: %w", err)
	}
	return domain.ObjectInfo{Key: cleanKey(key), Size: info.Size()}, nil
}

// Delete is best-effort: a missing key is not an error.
func (s *Storage) Delete(_ context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// List returns one level under prefix, hiding internal chunk-cache
// artifacts. Directories come first, like an object-store delimiter
// listing.
func (s *Storage) List(_ context.Context, prefix string) ([]domain.ObjectEntry, error) {
	cleanPrefix := cleanKey(prefix)
	dir, err := s.resolve(cleanPrefix)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list objects: %w", err)
	}

	var dirs, files []domain.ObjectEntry
	for _, entry := range entries {
		path := entry.Name()
		if cleanPrefix != "" {
			path = cleanPrefix + "/" + path
		}
		if entry.IsDir() {
			dirs = append(dirs, domain.ObjectEntry{Path: path + "/", IsDir: true})
			continue
		}
		if domain.IsInternalArtifact(path) {
			continue
		}
		files = append(files, domain.ObjectEntry{Path: path, IsDir: false})
	}
	return append(dirs, files...), nil
}

// ListRecursive walks every object under prefix. Internal chunk-cache
// artifacts are hidden unless includeInternal is set.
func (s *Storage) ListRecursive(_ context.Context, prefix string, includeInternal bool) ([]domain.ObjectEntry, error) {
	root, err := s.resolve(prefix)
	if err != nil {
		return nil, err
	}

	var items []domain.ObjectEntry
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !includeInternal && domain.IsInternalArtifact(key) {
			return nil
		}
		items = append(items, domain.ObjectEntry{Path: key, IsDir: false})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list objects recursively: %w", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items, nil
}
