// Package storage writes downloaded attachments under a base directory.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// BlobStore saves and reads attachment files.
type BlobStore interface {
	// Write saves data to a path relative to the base directory.
	Write(path string, data []byte, mode os.FileMode) (Written, error)

	// Read retrieves file contents.
	Read(path string) ([]byte, error)

	// Delete removes a file.
	Delete(path string) error

	// Exists checks if a file exists.
	Exists(path string) (bool, error)

	// Stat returns file information.
	Stat(path string) (FileInfo, error)

	// ListDir returns directory contents.
	ListDir(path string) ([]FileInfo, error)
}

// Written describes a completed Write.
type Written struct {
	Path    string // relative to the base directory
	Size    int
	SHA256  string
	Skipped bool // an existing file was kept
}

// FileInfo contains file metadata.
type FileInfo struct {
	Path       string
	Size       int64
	Mode       os.FileMode
	ModTime    time.Time
	IsDir      bool
	IsSymlink  bool
	LinkTarget string
}

// ConflictStrategy defines how to handle file conflicts.
type ConflictStrategy int

const (
	// ConflictOverwrite replaces existing files.
	ConflictOverwrite ConflictStrategy = iota

	// ConflictRename creates a new file with suffix.
	ConflictRename

	// ConflictError returns an error on conflict.
	ConflictError

	// ConflictSkip ignores the new file.
	ConflictSkip
)

// Errors
var (
	ErrExists      = errors.New("file already exists")
	ErrTooLarge    = errors.New("file too large")
	ErrInvalidPath = errors.New("invalid path")
)

// ParseConflictStrategy maps a flag value to a strategy.
func ParseConflictStrategy(s string) (ConflictStrategy, error) {
	switch strings.ToLower(s) {
	case "", "rename":
		return ConflictRename, nil
	case "overwrite":
		return ConflictOverwrite, nil
	case "error":
		return ConflictError, nil
	case "skip":
		return ConflictSkip, nil
	default:
		return 0, fmt.Errorf("unknown conflict strategy %q", s)
	}
}

func (c ConflictStrategy) String() string {
	switch c {
	case ConflictOverwrite:
		return "overwrite"
	case ConflictRename:
		return "rename"
	case ConflictError:
		return "error"
	case ConflictSkip:
		return "skip"
	default:
		return "unknown"
	}
}

const maxFileNameLength = 200

// SanitizeFileName turns a remote attachment name into a single safe path
// element. Separators and control characters become underscores, leading
// dots are dropped, and an empty result becomes fallback.
func SanitizeFileName(name, fallback string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == 0 || unicode.IsControl(r):
			b.WriteRune('_')
		case strings.ContainsRune(`<>:"|?*`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	clean := strings.TrimSpace(strings.TrimLeft(b.String(), "."))
	if clean == "" {
		return fallback
	}

	if len(clean) > maxFileNameLength {
		ext := filepath.Ext(clean)
		if len(ext) > 20 {
			ext = ""
		}
		clean = truncateUTF8(strings.TrimSuffix(clean, ext), maxFileNameLength-len(ext)) + ext
	}
	return clean
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
