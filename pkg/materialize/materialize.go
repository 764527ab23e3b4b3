// Package materialize writes a resolved sketch project to disk.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jareddonovan/creative-coding-showcase/pkg/platforms"
	"github.com/jareddonovan/creative-coding-showcase/pkg/tree"
)

// DefaultDownloadTimeout bounds a single file download.
const DefaultDownloadTimeout = 60 * time.Second

// ErrFileExists is returned when a downloaded file would overwrite a file
// already written during the same import.
var ErrFileExists = errors.New("file already exists")

// ErrUnsafeDest is returned when the destination is not strictly inside
// the imports directory.
var ErrUnsafeDest = errors.New("destination is not inside the imports directory")

// Stats summarises one materialization.
type Stats struct {
	Folders         int
	InlineFiles     int
	DownloadedFiles int
	BytesWritten    int64

	// Replaced is set once a previous import at the destination has been
	// removed, whether or not the new one then succeeds.
	Replaced bool
}

type Materializer struct {
	Downloader      platforms.Downloader
	DownloadTimeout time.Duration

	// ImportsDir, if set, is the directory every destination must lie
	// strictly below.
	ImportsDir string

	// OnDownload, if set, is called after every successful download.
	OnDownload func(url string, bytes int64, took time.Duration)
}

// Materialize replaces whatever is at r.DestRoot() with the project's
// folders and files. Folders are created before anything inside them. On
// failure the partially written destination is removed.
func (m *Materializer) Materialize(ctx context.Context, r *tree.Resolved) (stats Stats, err error) {
	dest := r.DestRoot()
	if err := m.checkDest(dest); err != nil {
		return stats, err
	}

	if _, statErr := os.Lstat(dest); statErr == nil {
		if err := os.RemoveAll(dest); err != nil {
			return stats, fmt.Errorf("removing previous import at %s: %w", dest, err)
		}
		stats.Replaced = true
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dest)
		}
	}()
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return stats, fmt.Errorf("creating %s: %w", dest, err)
	}

	for _, id := range r.Ordered() {
		n, _ := r.Node(id)
		path, _ := r.Path(id)

		switch {
		case n.IsFolder():
			if err := os.MkdirAll(path, 0o755); err != nil {
				return stats, fmt.Errorf("creating folder %s: %w", path, err)
			}
			stats.Folders++

		case n.URL != "":
			written, err := m.download(ctx, n.URL, path)
			if err != nil {
				return stats, fmt.Errorf("downloading %s: %w", n.Name, err)
			}
			stats.DownloadedFiles++
			stats.BytesWritten += written

		default:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return stats, fmt.Errorf("creating folder for %s: %w", path, err)
			}
			if err := os.WriteFile(path, []byte(n.Content), 0o644); err != nil {
				return stats, fmt.Errorf("writing %s: %w", path, err)
			}
			stats.InlineFiles++
			stats.BytesWritten += int64(len(n.Content))
		}
	}
	return stats, nil
}

func (m *Materializer) checkDest(dest string) error {
	dest = filepath.Clean(dest)
	if dest == "." || dest == string(filepath.Separator) || dest == "" {
		return fmt.Errorf("%w: %q", ErrUnsafeDest, dest)
	}
	if m.ImportsDir == "" {
		return nil
	}
	rel, err := filepath.Rel(filepath.Clean(m.ImportsDir), dest)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrUnsafeDest, dest)
	}
	return nil
}

func (m *Materializer) download(ctx context.Context, url, path string) (int64, error) {
	if m.Downloader == nil {
		return 0, fmt.Errorf("no downloader configured")
	}
	timeout := m.DownloadTimeout
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return 0, fmt.Errorf("%w: %s", ErrFileExists, path)
	}
	if err != nil {
		return 0, err
	}

	start := time.Now()
	written, err := m.Downloader.Download(ctx, url, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return written, err
	}
	if m.OnDownload != nil {
		m.OnDownload(url, written, time.Since(start))
	}
	return written, nil
}
