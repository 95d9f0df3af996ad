package crowdin

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/minios-linux/modloc/inifile"
)

const buildInProgress = "inProgress"

// Bundle is an extracted translation build:
//
//	<Root>/<language>/<directory name>/<file>.ini
type Bundle struct {
	Root string
}

// Close removes the extracted files.
func (b *Bundle) Close() error {
	return os.RemoveAll(b.Root)
}

// DownloadAllTranslations builds the whole project, waits for the build,
// downloads and extracts it, then drops files without translations.
// The build is polled without an upper bound; cancel ctx to give up.
func (c *Client) DownloadAllTranslations(ctx context.Context) (*Bundle, error) {
	buildID, err := c.BuildTranslations(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting build: %w", err)
	}
	if err := c.waitForBuild(ctx, buildID); err != nil {
		return nil, err
	}
	archiveURL, err := c.BuildDownloadURL(ctx, buildID)
	if err != nil {
		return nil, fmt.Errorf("build %d download url: %w", buildID, err)
	}

	archive, err := os.CreateTemp("", "modloc-build-*.zip")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(archive.Name())
	defer archive.Close()

	if err := c.fetch(ctx, archiveURL, archive); err != nil {
		return nil, err
	}
	size, err := archive.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("sizing archive: %w", err)
	}

	root, err := os.MkdirTemp("", "modloc-translations-")
	if err != nil {
		return nil, fmt.Errorf("creating bundle directory: %w", err)
	}
	bundle := &Bundle{Root: root}
	if err := ExtractZip(archive, size, root); err != nil {
		bundle.Close()
		return nil, err
	}
	removed, err := RemoveEmptyFiles(root)
	if err != nil {
		bundle.Close()
		return nil, err
	}
	log.Infof("downloaded translations build %d (%d empty files dropped)", buildID, removed)
	return bundle, nil
}

func (c *Client) waitForBuild(ctx context.Context, buildID int64) error {
	interval := c.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	for {
		status, err := c.BuildStatus(ctx, buildID)
		if err != nil {
			return fmt.Errorf("build %d status: %w", buildID, err)
		}
		if status != buildInProgress {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// ExtractZip unpacks an archive into dir. Entries that would land outside
// dir are rejected.
func ExtractZip(r io.ReaderAt, size int64, dir string) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes extraction directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("extracting %s: %w", f.Name, err)
	}
	return out.Close()
}

// RemoveEmptyFiles deletes <language>/<directory>/<file> entries of an
// extracted build that carry no translated line, and returns how many
// were removed.
func RemoveEmptyFiles(root string) (int, error) {
	removed := 0
	langs, err := subdirs(root)
	if err != nil {
		return 0, err
	}
	for _, lang := range langs {
		dirs, err := subdirs(lang)
		if err != nil {
			return removed, err
		}
		for _, dir := range dirs {
			entries, err := os.ReadDir(dir)
			if err != nil {
				return removed, err
			}
			for _, e := range entries {
				if !e.Type().IsRegular() {
					continue
				}
				path := filepath.Join(dir, e.Name())
				data, err := os.ReadFile(path)
				if err != nil {
					return removed, err
				}
				if !inifile.IsEmpty(string(data)) {
					continue
				}
				if err := os.Remove(path); err != nil {
					return removed, err
				}
				removed++
			}
		}
	}
	return removed, nil
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}
