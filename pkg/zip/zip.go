// Package zip bundles stored artifacts into a single archive.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"time"
)

// Entry is one file in the archive. Open is called lazily so entries are
// streamed one at a time.
type Entry struct {
	Filename string
	Modified time.Time
	Open     func() (io.ReadCloser, error)
}

// WriteArchive streams entries into w. The archive is only finalized when
// every entry was copied; on error w holds a truncated archive.
func WriteArchive(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, entry := range entries {
		if err := writeEntry(zw, entry); err != nil {
			return fmt.Errorf("zip %s: %w", entry.Filename, err)
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, entry Entry) error {
	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	hdr := &zip.FileHeader{Name: entry.Filename, Method: zip.Store, Modified: entry.Modified}
	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, rc)
	return err
}
