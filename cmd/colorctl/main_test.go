package main

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jung-kurt/gofpdf"

	"customcolors/internal/domain"
	"customcolors/internal/storage"
)

func TestInspectPDF(t *testing.T) {
	doc := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: 200, Ht: 300}})
	doc.AddPage()
	doc.AddPageFormat("P", gofpdf.SizeType{Wd: 640, Ht: 480})
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("render: %v", err)
	}

	var out bytes.Buffer
	if err := inspectPDF(&out, bytes.NewReader(buf.Bytes()), int64(buf.Len())); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	got := out.String()
	for _, want := range []string{"pages: 2", "1  200x300", "2  640x480"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output %q missing %q", got, want)
		}
	}
}

func TestInspectRejectsGarbage(t *testing.T) {
	data := []byte("not a pdf")
	if err := inspectPDF(&bytes.Buffer{}, bytes.NewReader(data), int64(len(data))); err == nil {
		t.Fatal("expected error")
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"sweep", "assemble", "inspect", "export", "config"} {
		if !names[want] {
			t.Fatalf("missing subcommand %q", want)
		}
	}
}

func newExportStore(t *testing.T) *storage.ArtifactStore {
	t.Helper()
	fs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewArtifactStore(storage.Options{
		Backend:       fs,
		Retention:     time.Hour,
		PublicBaseURL: "https://colors.example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestExportArtifacts(t *testing.T) {
	store := newExportStore(t)
	ctx := context.Background()
	raw, err := store.Put(ctx, domain.ArtifactRaw, []byte("raw-bytes"), "jpg")
	if err != nil {
		t.Fatal(err)
	}
	book, err := store.Put(ctx, domain.ArtifactAssembled, []byte("%PDF-1.3"), "pdf")
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := exportArtifacts(ctx, &buf, store, []string{raw.ID, book.ID}); err != nil {
		t.Fatalf("export: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != raw.ID || zr.File[1].Name != book.ID {
		t.Fatalf("unexpected entries %v", zr.File)
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "raw-bytes" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestExportMissingArtifactWritesNothing(t *testing.T) {
	store := newExportStore(t)
	var buf bytes.Buffer
	err := exportArtifacts(context.Background(), &buf, store, []string{"nope_raw.jpg"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected empty output, got %d bytes", buf.Len())
	}
}
