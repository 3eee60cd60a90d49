package ingest

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// maxExpandedBytes caps how much a single archive may inflate to. Oversized
// members fail expansion rather than exhaust disk.
const maxExpandedBytes = 8 << 30

// ExpandArchive unpacks .zip and .gz uploads into destDir and returns the
// extracted file paths. Non-archive inputs are returned unchanged so callers
// can stage every path in the result the same way.
func ExpandArchive(sourcePath, destDir string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(sourcePath)) {
	case ".zip":
		return expandZip(sourcePath, destDir)
	case ".gz":
		path, err := expandGzip(sourcePath, destDir)
		if err != nil {
			return nil, err
		}
		return []string{path}, nil
	default:
		return []string{sourcePath}, nil
	}
}

func expandZip(sourcePath, destDir string) ([]string, error) {
	reader, err := zip.OpenReader(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create expansion directory: %w", err)
	}

	var paths []string
	var total int64
	for _, member := range reader.File {
		if member.FileInfo().IsDir() {
			continue
		}
		name := filepath.Base(member.Name)
		if name == "" || strings.HasPrefix(name, ".") {
			continue
		}
		target := filepath.Join(destDir, name)

		rc, err := member.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip member %s: %w", member.Name, err)
		}
		written, err := writeLimited(target, rc, maxExpandedBytes-total)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("extract %s: %w", member.Name, err)
		}
		total += written
		paths = append(paths, target)
	}
	return paths, nil
}

func expandGzip(sourcePath, destDir string) (string, error) {
	in, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("open gzip: %w", err)
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("read gzip header: %w", err)
	}
	defer gz.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create expansion directory: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	if gz.Name != "" {
		name = filepath.Base(gz.Name)
	}
	target := filepath.Join(destDir, name)
	if _, err := writeLimited(target, gz, maxExpandedBytes); err != nil {
		return "", fmt.Errorf("extract %s: %w", sourcePath, err)
	}
	return target, nil
}

func writeLimited(target string, r io.Reader, limit int64) (int64, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("archive exceeds expansion limit")
	}
	out, err := os.Create(target)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	written, err := io.Copy(out, io.LimitReader(r, limit))
	if err != nil {
		_ = os.Remove(target)
		return 0, err
	}
	if written == limit {
		_ = os.Remove(target)
		return 0, fmt.Errorf("archive member exceeds expansion limit")
	}
	return written, out.Close()
}
