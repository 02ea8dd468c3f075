// Package docs loads API documentation used to ground request generation.
package docs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// SupportedExtensions lists the documentation formats the loader reads
var SupportedExtensions = []string{".txt", ".md", ".mdx"}

const separator = "\n\n"

// Loader reads documentation files
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a loader
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{logger: logger.With(zap.String("component", "docs"))}
}

// Load reads every supported file in order and joins their contents with a blank line.
// Missing files, unsupported extensions and unreadable files are skipped with a warning.
func (l *Loader) Load(paths ...string) string {
	contents := make([]string, 0, len(paths))

	for _, path := range paths {
		content, err := l.read(path)
		if err != nil {
			l.logger.Warn("skipping documentation file", zap.String("path", path), zap.Error(err))
			continue
		}
		contents = append(contents, content)
	}

	return strings.Join(contents, separator)
}

func (l *Loader) read(path string) (string, error) {
	if !Supported(path) {
		return "", fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	l.logger.Debug("loaded documentation", zap.String("path", path), zap.Int("bytes", len(data)))
	return string(data), nil
}

// Supported reports whether path has a documentation extension, ignoring case
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}

// Load reads paths with a default loader
func Load(logger *zap.Logger, paths ...string) string {
	return NewLoader(logger).Load(paths...)
}
