package artifact

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// WriteZip writes files into a ZIP archive on w, in order. Names are
// reduced to their base name.
func WriteZip(w io.Writer, files []File) error {
	zw := zip.NewWriter(w)
	now := time.Now()
	for _, f := range files {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     filepath.Base(f.Name),
			Method:   zip.Deflate,
			Modified: now,
		})
		if err != nil {
			return fmt.Errorf("artifact: zip %s: %w", f.Name, err)
		}
		if _, err := fw.Write(f.Content); err != nil {
			return fmt.Errorf("artifact: zip %s: %w", f.Name, err)
		}
	}
	return zw.Close()
}

// DirSink writes files into a directory.
type DirSink struct {
	Dir string
}

// Write creates Dir if needed and writes every file under its base name.
// It returns the written paths.
func (s DirSink) Write(files []File) ([]string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: mkdir: %w", err)
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		p := filepath.Join(s.Dir, filepath.Base(f.Name))
		if err := os.WriteFile(p, f.Content, 0o644); err != nil {
			return paths, fmt.Errorf("artifact: write %s: %w", p, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
