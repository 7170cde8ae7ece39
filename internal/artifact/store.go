// Package artifact stores video files and derived media on the local
// filesystem, addressed by relative object paths such as "videos/abc.mp4".
package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"reel/internal/config"
	"reel/internal/services"
)

// Store reads and writes objects under a single root directory.
type Store struct {
	root    string
	scratch string
}

// NewStore builds a store rooted at the configured storage directory.
func NewStore(cfg *config.Config) *Store {
	return New(cfg.Paths.StorageDir, cfg.Paths.ScratchDir)
}

// New builds a store with explicit root and scratch directories.
func New(root, scratch string) *Store {
	return &Store{root: root, scratch: scratch}
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// resolve maps an object path onto the root and rejects paths that would
// escape it.
func (s *Store) resolve(objectPath string) (string, error) {
	cleaned := path.Clean(strings.TrimSpace(objectPath))
	if cleaned == "" || cleaned == "." || strings.HasPrefix(cleaned, "..") || path.IsAbs(cleaned) {
		return "", services.Wrap(services.ErrValidation, "artifact", "resolve", fmt.Sprintf("invalid object path %q", objectPath), nil)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// Exists reports whether an object is present.
func (s *Store) Exists(objectPath string) (bool, error) {
	full, err := s.resolve(objectPath)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, services.Wrap(services.ErrExternalTool, "artifact", "stat", "stat object", err)
	}
	return true, nil
}

// Open returns a reader over a stored object along with its size.
func (s *Store) Open(objectPath string) (io.ReadSeekCloser, int64, error) {
	full, err := s.resolve(objectPath)
	if err != nil {
		return nil, 0, err
	}
	file, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, services.Wrap(services.ErrNotFound, "artifact", "open", fmt.Sprintf("object %s not found", objectPath), err)
		}
		return nil, 0, services.Wrap(services.ErrExternalTool, "artifact", "open", "open object", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, 0, services.Wrap(services.ErrExternalTool, "artifact", "open", "stat object", err)
	}
	return file, info.Size(), nil
}

// Download copies an object into a fresh scratch file and returns its path.
// The caller owns the scratch file and removes it when done.
func (s *Store) Download(ctx context.Context, objectPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	full, err := s.resolve(objectPath)
	if err != nil {
		return "", err
	}
	src, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", services.Wrap(services.ErrNotFound, "artifact", "download", fmt.Sprintf("object %s not found", objectPath), err)
		}
		return "", services.Wrap(services.ErrExternalTool, "artifact", "download", "open object", err)
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(s.scratch, 0o755); err != nil {
		return "", services.Wrap(services.ErrExternalTool, "artifact", "download", "ensure scratch dir", err)
	}
	ext := path.Ext(objectPath)
	if ext == "" {
		ext = ".mp4"
	}
	dstPath := filepath.Join(s.scratch, uuid.NewString()+ext)
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "artifact", "download", "create scratch file", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dstPath)
		return "", services.Wrap(services.ErrExternalTool, "artifact", "download", "copy object", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(dstPath)
		return "", services.Wrap(services.ErrExternalTool, "artifact", "download", "close scratch file", err)
	}
	return dstPath, nil
}

// Upload stores a local file at the given object path, replacing any
// existing object. The write goes through a temp file and rename so a
// crash never leaves a partial object behind.
func (s *Store) Upload(ctx context.Context, localPath, objectPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "artifact", "upload", "open local file", err)
	}
	defer func() { _ = src.Close() }()
	return s.write(objectPath, src)
}

// Save streams content into the store at the given object path.
func (s *Store) Save(objectPath string, content io.Reader) error {
	return s.write(objectPath, content)
}

func (s *Store) write(objectPath string, content io.Reader) error {
	full, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return services.Wrap(services.ErrExternalTool, "artifact", "write", "ensure object dir", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "artifact", "write", "create temp file", err)
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrExternalTool, "artifact", "write", "copy content", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrExternalTool, "artifact", "write", "close temp file", err)
	}
	if err := os.Rename(tmpPath, full); err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrExternalTool, "artifact", "write", "rename into place", err)
	}
	return nil
}

// Remove deletes an object. Missing objects are not an error.
func (s *Store) Remove(objectPath string) error {
	full, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return services.Wrap(services.ErrExternalTool, "artifact", "remove", "remove object", err)
	}
	return nil
}
