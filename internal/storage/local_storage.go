package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalSourceFetcher reads source images from an assets directory. Paths
// are resolved relative to the root and must stay inside it.
type LocalSourceFetcher struct {
	root     string
	maxBytes int64
}

// NewLocalSourceFetcher creates a local fetcher rooted at dir.
func NewLocalSourceFetcher(dir string, maxBytes int64) *LocalSourceFetcher {
	return &LocalSourceFetcher{root: dir, maxBytes: maxBytes}
}

func (l *LocalSourceFetcher) Fetch(_ context.Context, source string) ([]byte, error) {
	cleaned := filepath.Clean("/" + source) // normalize, strip any traversal
	full := filepath.Join(l.root, cleaned)

	rootAbs, err := filepath.Abs(l.root)
	if err != nil {
		return nil, fmt.Errorf("invalid assets root: %w", err)
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return nil, fmt.Errorf("invalid source path: %w", err)
	}
	if !strings.HasPrefix(fullAbs, rootAbs+string(filepath.Separator)) {
		return nil, fmt.Errorf("source path escapes the assets directory")
	}

	info, err := os.Stat(fullAbs)
	if err != nil {
		return nil, fmt.Errorf("source not found: %w", err)
	}
	if l.maxBytes > 0 && info.Size() > l.maxBytes {
		return nil, fmt.Errorf("image exceeds the %d byte limit", l.maxBytes)
	}

	data, err := os.ReadFile(fullAbs)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	return data, nil
}
