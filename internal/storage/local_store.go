package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/TheMichaelB/taskcrypt/internal/events"
)

// DefaultMaxFileSize bounds a single attachment write.
const DefaultMaxFileSize = 100 * 1024 * 1024

// LocalStore implements BlobStore on the local file system.
type LocalStore struct {
	baseDir          string
	conflictStrategy ConflictStrategy
	logger           *events.Logger

	// Security settings
	allowSymlinks bool
	maxPathLength int
	maxFileSize   int64
}

// NewLocalStore creates a local file store rooted at baseDir.
func NewLocalStore(baseDir string, logger *events.Logger) (*LocalStore, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &LocalStore{
		baseDir:          absPath,
		conflictStrategy: ConflictRename,
		logger:           logger.WithField("component", "local_store"),
		maxPathLength:    260, // Windows compatibility
		maxFileSize:      DefaultMaxFileSize,
	}, nil
}

// SetConflictStrategy sets the conflict resolution strategy.
func (s *LocalStore) SetConflictStrategy(strategy ConflictStrategy) {
	s.conflictStrategy = strategy
}

// SetMaxFileSize sets the maximum file size limit. Zero or less keeps the
// current limit.
func (s *LocalStore) SetMaxFileSize(size int64) {
	if size > 0 {
		s.maxFileSize = size
	}
}

// BaseDir returns the absolute base directory.
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

// Write saves data atomically. With ConflictRename an existing file is kept
// and the data goes to a new name, reported in Written.Path.
func (s *LocalStore) Write(path string, data []byte, mode os.FileMode) (Written, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return Written{}, err
	}

	if int64(len(data)) > s.maxFileSize {
		return Written{}, fmt.Errorf("%w: %d bytes (max: %d)", ErrTooLarge, len(data), s.maxFileSize)
	}

	if err := os.MkdirAll(filepath.Dir(safePath), 0700); err != nil {
		return Written{}, fmt.Errorf("create parent directory: %w", err)
	}

	// Handle conflicts
	if _, err := os.Lstat(safePath); err == nil {
		switch s.conflictStrategy {
		case ConflictError:
			return Written{}, fmt.Errorf("%w: %s", ErrExists, path)
		case ConflictSkip:
			s.logger.WithField("path", path).Debug("Kept existing file")
			return Written{Path: s.relative(safePath), Skipped: true}, nil
		case ConflictRename:
			safePath = s.generateConflictPath(safePath)
		}
	}

	hash := sha256.Sum256(data)
	written := Written{
		Path:   s.relative(safePath),
		Size:   len(data),
		SHA256: hex.EncodeToString(hash[:]),
	}

	s.logger.WithFields(map[string]interface{}{
		"path": written.Path,
		"size": written.Size,
		"hash": written.SHA256,
	}).Debug("Writing file")

	// Write atomically using temp file
	tempPath := fmt.Sprintf("%s.tmp.%d", safePath, time.Now().UnixNano())
	if err := writeFileSynced(tempPath, data, mode); err != nil {
		_ = os.Remove(tempPath)
		return Written{}, fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tempPath, safePath); err != nil {
		_ = os.Remove(tempPath)
		return Written{}, fmt.Errorf("rename temp file: %w", err)
	}

	return written, nil
}

// Read retrieves file contents. Symlinks are refused.
func (s *LocalStore) Read(path string) ([]byte, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return nil, err
	}

	if !s.allowSymlinks {
		stat, err := os.Lstat(safePath)
		if err == nil && stat.Mode()&os.ModeSymlink != 0 {
			return nil, fmt.Errorf("symlinks not allowed: %s", path)
		}
	}

	data, err := os.ReadFile(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", path)
		}
		return nil, fmt.Errorf("read file: %w", err)
	}

	return data, nil
}

// Delete removes a file and any parent directories left empty.
func (s *LocalStore) Delete(path string) error {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return err
	}

	s.logger.WithField("path", path).Debug("Deleting file")

	if err := os.Remove(safePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("delete file: %w", err)
	}

	s.cleanEmptyDirs(filepath.Dir(safePath))
	return nil
}

// Exists checks if a file exists.
func (s *LocalStore) Exists(path string) (bool, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return false, err
	}

	_, err = os.Lstat(safePath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Stat returns file information without following symlinks.
func (s *LocalStore) Stat(path string) (FileInfo, error) {
	safePath, err := s.sanitizePath(path)
	if err != nil {
		return FileInfo{}, err
	}

	stat, err := os.Lstat(safePath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat file: %w", err)
	}

	info := FileInfo{
		Path:      path,
		Size:      stat.Size(),
		Mode:      stat.Mode(),
		ModTime:   stat.ModTime(),
		IsDir:     stat.IsDir(),
		IsSymlink: stat.Mode()&os.ModeSymlink != 0,
	}

	if info.IsSymlink {
		if target, err := os.Readlink(safePath); err == nil {
			info.LinkTarget = target
		}
	}

	return info, nil
}

// ListDir returns directory contents. An empty path lists the base
// directory.
func (s *LocalStore) ListDir(path string) ([]FileInfo, error) {
	safePath := s.baseDir
	if path != "" {
		var err error
		if safePath, err = s.sanitizePath(path); err != nil {
			return nil, err
		}
	}

	entries, err := os.ReadDir(safePath)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var files []FileInfo
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, FileInfo{
			Path:      filepath.ToSlash(filepath.Join(path, entry.Name())),
			Size:      info.Size(),
			Mode:      info.Mode(),
			ModTime:   info.ModTime(),
			IsDir:     info.IsDir(),
			IsSymlink: info.Mode()&os.ModeSymlink != 0,
		})
	}

	return files, nil
}

// Helper methods

// sanitizePath validates a relative path and returns it joined to the
// base directory.
func (s *LocalStore) sanitizePath(path string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: path contains null bytes", ErrInvalidPath)
	}

	cleaned := filepath.Clean(filepath.FromSlash(path))

	// Check for directory traversal
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("%w: path contains '..'", ErrInvalidPath)
		}
	}

	cleaned = strings.TrimLeft(cleaned, string(filepath.Separator))
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	fullPath := filepath.Join(s.baseDir, cleaned)

	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes base directory", ErrInvalidPath)
	}

	if len(fullPath) > s.maxPathLength {
		return "", fmt.Errorf("%w: path too long: %d characters (max: %d)", ErrInvalidPath, len(fullPath), s.maxPathLength)
	}

	if err := validatePlatformPath(cleaned); err != nil {
		return "", err
	}

	return fullPath, nil
}

func (s *LocalStore) relative(fullPath string) string {
	rel, err := filepath.Rel(s.baseDir, fullPath)
	if err != nil {
		return fullPath
	}
	return filepath.ToSlash(rel)
}

// validatePlatformPath checks platform-specific path restrictions.
func validatePlatformPath(path string) error {
	if runtime.GOOS != "windows" {
		return nil
	}

	reserved := []string{"CON", "PRN", "AUX", "NUL", "COM1", "COM2", "COM3", "COM4",
		"COM5", "COM6", "COM7", "COM8", "COM9", "LPT1", "LPT2", "LPT3",
		"LPT4", "LPT5", "LPT6", "LPT7", "LPT8", "LPT9"}

	for _, part := range strings.Split(path, string(filepath.Separator)) {
		upperName := strings.ToUpper(strings.TrimSuffix(part, filepath.Ext(part)))
		for _, r := range reserved {
			if upperName == r {
				return fmt.Errorf("%w: contains reserved name '%s'", ErrInvalidPath, part)
			}
		}

		if i := strings.IndexAny(part, `<>:"|?*`); i >= 0 {
			return fmt.Errorf("%w: contains character '%c'", ErrInvalidPath, part[i])
		}
	}

	return nil
}

// generateConflictPath returns a free sibling path carrying a timestamp
// and, when needed, a counter.
func (s *LocalStore) generateConflictPath(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	timestamp := time.Now().Format("20060102-150405")

	candidate := filepath.Join(dir, fmt.Sprintf("%s.conflict-%s%s", name, timestamp, ext))
	for i := 2; ; i++ {
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s.conflict-%s-%d%s", name, timestamp, i, ext))
	}
}

// cleanEmptyDirs removes empty parent directories.
func (s *LocalStore) cleanEmptyDirs(dirPath string) {
	for dirPath != s.baseDir && strings.HasPrefix(dirPath, s.baseDir) {
		entries, err := os.ReadDir(dirPath)
		if err != nil || len(entries) > 0 {
			break
		}

		if err := os.Remove(dirPath); err != nil {
			break
		}

		dirPath = filepath.Dir(dirPath)
	}
}

func writeFileSynced(path string, data []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
