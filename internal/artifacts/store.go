// Package artifacts stores pipeline byproducts (media, audio, transcripts,
// summaries) on the local filesystem. Files live under
// <root>/<content key>/<name>; the job store only keeps their paths.
package artifacts

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WorkDirName is the root subdirectory holding per-job scratch space.
const WorkDirName = ".work"

// Store is a path-addressable blob store rooted at a directory.
type Store struct {
	root string
}

// New creates the root directory when missing.
func New(root string) (*Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("artifact root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store root.
func (s *Store) Root() string {
	return s.root
}

// Dir returns (and creates) the directory for a content key.
func (s *Store) Dir(contentKey string) (string, error) {
	key := SanitizeKey(contentKey)
	if key == "" {
		return "", errors.New("content key is required")
	}
	dir := filepath.Join(s.root, key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	return dir, nil
}

// Path returns the location of a named artifact for a content key.
func (s *Store) Path(contentKey, name string) (string, error) {
	dir, err := s.Dir(contentKey)
	if err != nil {
		return "", err
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", errors.New("artifact name is required")
	}
	return filepath.Join(dir, name), nil
}

// WorkDir returns a scratch directory for a job whose content key is not yet
// known.
func (s *Store) WorkDir(jobID int64) (string, error) {
	dir := s.workDirPath(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	return dir, nil
}

// RemoveWorkDir deletes a job's scratch directory.
func (s *Store) RemoveWorkDir(jobID int64) error {
	return os.RemoveAll(s.workDirPath(jobID))
}

func (s *Store) workDirPath(jobID int64) string {
	return filepath.Join(s.root, WorkDirName, "job-"+strconv.FormatInt(jobID, 10))
}

// Promote moves src into the content key directory under name. It renames
// when possible and falls back to a verified copy across filesystems.
func (s *Store) Promote(src, contentKey, name string) (string, error) {
	dst, err := s.Path(contentKey, name)
	if err != nil {
		return "", err
	}
	if filepath.Clean(src) == dst {
		return dst, nil
	}
	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	}
	if _, err := CopyVerified(src, dst); err != nil {
		return "", fmt.Errorf("promote %s: %w", name, err)
	}
	_ = os.Remove(src)
	return dst, nil
}

// WriteText atomically writes text to a named artifact.
func (s *Store) WriteText(contentKey, name, text string) (string, error) {
	dst, err := s.Path(contentKey, name)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.WriteString(tmp, text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("commit artifact: %w", err)
	}
	return dst, nil
}

// ReadText returns the content of an artifact path.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read artifact: %w", err)
	}
	return string(data), nil
}

// Exists reports whether path names a regular file.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// SanitizeKey maps a content key to a safe directory name.
func SanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), ".")
}

// CopyVerified streams src to dst, checks the byte count, and returns the
// SHA-256 of the written bytes. dst is removed on mismatch.
func CopyVerified(src, dst string) (string, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = out.Close()
	}()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, hasher), in)
	if err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	if written != srcInfo.Size() {
		_ = os.Remove(dst)
		return "", fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
