// Package export builds downloadable archives of workspace documents and
// optionally offloads them to object storage.
package export

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/capmd/capmd/pkg/models"
)

// Format selects the archive container.
type Format string

const (
	FormatZip  Format = "zip"
	FormatGzip Format = "gzip"
)

// ParseFormat maps a query-string value to a Format. Empty defaults to zip.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "zip":
		return FormatZip, nil
	case "gzip", "tar.gz", "tgz":
		return FormatGzip, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", models.ErrInvalidRequest, s)
	}
}

// Archive is a finished export ready to serve or upload.
type Archive struct {
	Name        string
	ContentType string
	Data        []byte
	// Checksum is the hex SHA-256 of Data, served as X-Export-Checksum.
	Checksum string
}

// buildArchive packs files into the requested container. Entry names drop
// the leading slash so archives unpack into a subdirectory cleanly.
func buildArchive(files []*models.File, format Format, now time.Time) (*Archive, error) {
	var (
		buf bytes.Buffer
		err error
	)
	switch format {
	case FormatZip:
		err = writeZip(&buf, files, now)
	case FormatGzip:
		err = writeTarGz(&buf, files, now)
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", models.ErrInvalidRequest, format)
	}
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(buf.Bytes())
	a := &Archive{
		Data:     buf.Bytes(),
		Checksum: hex.EncodeToString(sum[:]),
	}
	stamp := now.UTC().Format("20060102-150405")
	switch format {
	case FormatZip:
		a.Name = "export-" + stamp + ".zip"
		a.ContentType = "application/zip"
	case FormatGzip:
		a.Name = "export-" + stamp + ".tar.gz"
		a.ContentType = "application/gzip"
	}
	return a, nil
}

func entryName(path string) string {
	return strings.TrimPrefix(path, "/")
}

func writeZip(buf *bytes.Buffer, files []*models.File, now time.Time) error {
	w := zip.NewWriter(buf)
	for _, f := range files {
		hdr := &zip.FileHeader{
			Name:     entryName(f.Path),
			Method:   zip.Deflate,
			Modified: f.UpdatedAt,
		}
		if hdr.Modified.IsZero() {
			hdr.Modified = now
		}
		fw, err := w.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", f.Path, err)
		}
		if _, err := fw.Write([]byte(f.Content)); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}
	return w.Close()
}

func writeTarGz(buf *bytes.Buffer, files []*models.File, now time.Time) error {
	gz := gzip.NewWriter(buf)
	tw := tar.NewWriter(gz)
	for _, f := range files {
		mod := f.UpdatedAt
		if mod.IsZero() {
			mod = now
		}
		hdr := &tar.Header{
			Name:    entryName(f.Path),
			Mode:    0o644,
			Size:    int64(len(f.Content)),
			ModTime: mod,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", f.Path, err)
		}
		if _, err := tw.Write([]byte(f.Content)); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}
