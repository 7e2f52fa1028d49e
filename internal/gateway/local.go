package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalFetcher serves relative asset URLs straight from a shared uploads
// directory before falling back to another fetcher. Useful when the worker
// runs on the same disk as the upload provider and can skip the network hop.
type LocalFetcher struct {
	baseDir  string
	fallback ByteFetcher
}

// NewLocalFetcher creates a fetcher rooted at baseDir. fallback handles
// absolute URLs and relative URLs with no file on disk; it may be nil, in
// which case misses are errors.
func NewLocalFetcher(baseDir string, fallback ByteFetcher) (*LocalFetcher, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return &LocalFetcher{baseDir: baseDir, fallback: fallback}, nil
}

// FetchBytes reads a relative URL from the uploads directory when the file
// exists, otherwise delegates.
func (f *LocalFetcher) FetchBytes(ctx context.Context, fileURL string) ([]byte, error) {
	if strings.HasPrefix(fileURL, "/") {
		path := filepath.Join(f.baseDir, strings.TrimLeft(fileURL, "/"))

		// Security: prevent directory traversal
		if !strings.HasPrefix(filepath.Clean(path), filepath.Clean(f.baseDir)) {
			return nil, fmt.Errorf("invalid url: path traversal detected")
		}

		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read local file: %w", err)
		}
	}

	if f.fallback == nil {
		return nil, fmt.Errorf("file not found locally and no fallback configured: %s", fileURL)
	}
	return f.fallback.FetchBytes(ctx, fileURL)
}
