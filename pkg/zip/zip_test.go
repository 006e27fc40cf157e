package zip

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func entry(name, body string) Entry {
	return Entry{
		Filename: name,
		Modified: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

func TestWriteArchive(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteArchive(&buf, []Entry{entry("a_raw.jpg", "aaa"), entry("b_book.pdf", "%PDF")}); err != nil {
		t.Fatalf("WriteArchive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "a_raw.jpg" || zr.File[1].Name != "b_book.pdf" {
		t.Fatalf("unexpected entries %+v", zr.File)
	}
	rc, err := zr.File[1].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "%PDF" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestWriteArchiveOpenError(t *testing.T) {
	bad := Entry{Filename: "gone.jpg", Open: func() (io.ReadCloser, error) { return nil, errors.New("not found") }}
	err := WriteArchive(io.Discard, []Entry{entry("a.jpg", "a"), bad})
	if err == nil || !strings.Contains(err.Error(), "gone.jpg") {
		t.Fatalf("expected error naming entry, got %v", err)
	}
}
