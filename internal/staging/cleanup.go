package staging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"recap/internal/artifacts"
	"recap/internal/logging"
)

// CleanResult contains the outcome of a cleanup pass.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStaleWorkDirs removes job scratch directories older than maxAge.
func CleanStaleWorkDirs(ctx context.Context, root string, maxAge time.Duration, logger *zap.Logger) CleanResult {
	root = strings.TrimSpace(root)
	if root == "" {
		return CleanResult{}
	}
	cutoff := time.Now().Add(-maxAge)
	return removeDirs(ctx, filepath.Join(root, artifacts.WorkDirName), logger, "stale work directory", func(_ string, info os.FileInfo) bool {
		return info.ModTime().Before(cutoff)
	})
}

// CleanOrphaned removes content key directories that no job references and
// that have not been touched within minAge. activeKeys holds sanitized keys
// as produced by artifacts.SanitizeKey.
func CleanOrphaned(ctx context.Context, root string, activeKeys map[string]struct{}, minAge time.Duration, logger *zap.Logger) CleanResult {
	root = strings.TrimSpace(root)
	if root == "" {
		return CleanResult{}
	}
	cutoff := time.Now().Add(-minAge)
	return removeDirs(ctx, root, logger, "orphaned artifact directory", func(name string, info os.FileInfo) bool {
		if name == artifacts.WorkDirName {
			return false
		}
		if _, active := activeKeys[name]; active {
			return false
		}
		return info.ModTime().Before(cutoff)
	})
}

func removeDirs(ctx context.Context, dir string, logger *zap.Logger, what string, match func(name string, info os.FileInfo) bool) CleanResult {
	if logger == nil {
		logger = logging.NewNop()
	}
	result := CleanResult{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		}
		return result
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			continue
		}
		if !match(entry.Name(), info) {
			continue
		}
		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logging.WarnWithContext(logger, "failed to remove "+what, "artifact_cleanup_failed",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check artifact_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed "+what,
			logging.String("path", dirPath),
			logging.Duration("age", time.Since(info.ModTime())),
			logging.String(logging.FieldEventType, "artifact_cleanup"),
		)
	}
	return result
}

// DirInfo contains metadata about an artifact directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// ListDirectories returns the content key directories under root with their
// total size. Scratch space is excluded.
func ListDirectories(root string) ([]DirInfo, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == artifacts.WorkDirName {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(root, entry.Name())
		size, _ := dirSize(dirPath)
		dirs = append(dirs, DirInfo{
			Name:    entry.Name(),
			Path:    dirPath,
			ModTime: info.ModTime(),
			Size:    size,
		})
	}
	return dirs, nil
}

// dirSize sums regular file sizes below path, skipping unreadable entries.
func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
