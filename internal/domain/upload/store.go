package upload

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var errOutsideRoot = errors.New("path escapes storage root")

// probeDir holds scratch files from CheckWritable. Dot-prefixed entries are
// never served or walked.
const probeDir = ".probe"

// DiskStore keeps uploaded files under a single root directory. All paths
// it accepts are slash-separated and relative to that root.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root %s: %w", root, err)
	}
	return &DiskStore{root: abs}, nil
}

func (s *DiskStore) Root() string { return s.root }

// EnsureRoot creates the storage root if it doesn't exist.
func (s *DiskStore) EnsureRoot() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create storage root %s: %w", s.root, err)
	}
	return nil
}

// EnsureDir creates root/folder recursively and returns its absolute path.
// Concurrent callers racing on a new folder all succeed.
func (s *DiskStore) EnsureDir(folder string) (string, error) {
	dir, err := s.Resolve(folder)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory %s: %w", dir, err)
	}
	return dir, nil
}

// Save writes r to relPath. It refuses to overwrite an existing file and
// removes whatever it wrote if the copy fails.
func (s *DiskStore) Save(relPath string, r io.Reader) (int64, error) {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create file %s: %w", relPath, err)
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(abs)
		return 0, fmt.Errorf("write file %s: %w", relPath, err)
	}

	return n, nil
}

// Remove unlinks relPath. existed is false when the file was already gone,
// which is not an error.
func (s *DiskStore) Remove(relPath string) (existed bool, err error) {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return false, err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return true, fmt.Errorf("delete file %s: %w", relPath, err)
	}
	return true, nil
}

// Stat returns file info for a regular, non-hidden file at relPath.
func (s *DiskStore) Stat(relPath string) (string, fs.FileInfo, error) {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return "", nil, err
	}
	if isHidden(relPath) {
		return "", nil, fs.ErrNotExist
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", nil, err
	}
	if !info.Mode().IsRegular() {
		return "", nil, fs.ErrNotExist
	}
	return abs, info, nil
}

// Exists reports whether a regular file is present at relPath.
func (s *DiskStore) Exists(relPath string) (bool, error) {
	_, _, err := s.Stat(relPath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Walk calls fn with the relative path of every regular file under the root.
func (s *DiskStore) Walk(fn func(relPath string) error) error {
	return filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == s.root && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if p != s.root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
}

// CheckWritable creates and removes a scratch file under the probe directory.
func (s *DiskStore) CheckWritable() error {
	dir := filepath.Join(s.root, probeDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create probe directory: %w", err)
	}
	f, err := os.CreateTemp(dir, "probe-*")
	if err != nil {
		return fmt.Errorf("create probe file: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func isHidden(relPath string) bool {
	for _, seg := range strings.Split(path.Clean(relPath), "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// Resolve maps a relative slash path to an absolute path inside the root.
func (s *DiskStore) Resolve(relPath string) (string, error) {
	if relPath == "" || strings.Contains(relPath, "\\") || path.IsAbs(relPath) {
		return "", fmt.Errorf("%w: %q", errOutsideRoot, relPath)
	}
	clean := path.Clean(relPath)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", errOutsideRoot, relPath)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}
