package book

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"customcolors/internal/domain"
	"customcolors/internal/infra/clocktest"
	"customcolors/internal/storage"
)

const publicBase = "https://colors.example.com"

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(w, h, color.White), nil))
	return buf.Bytes()
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h, color.Black)))
	return buf.Bytes()
}

type fixture struct {
	store     *storage.ArtifactStore
	files     *storage.FileStore
	server    *httptest.Server
	hits      atomic.Int32
	assembler *Assembler
}

func newFixture(t *testing.T, images map[string][]byte) *fixture {
	t.Helper()
	f := &fixture{}
	fs, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	f.files = fs
	f.store, err = storage.NewArtifactStore(storage.Options{
		Backend:       fs,
		Retention:     time.Hour,
		PublicBaseURL: publicBase,
		Clock:         clocktest.New(time.Now()),
	})
	require.NoError(t, err)

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		data, ok := images[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(data))
		_, _ = w.Write(data)
	}))
	t.Cleanup(f.server.Close)

	host, err := url.Parse(f.server.URL)
	require.NoError(t, err)
	fetcher := NewFetcher(f.store, f.server.Client(), []string{host.Hostname()})
	f.assembler, err = NewAssembler(Options{Source: fetcher, Sink: f.store, Concurrency: 2})
	require.NoError(t, err)
	return f
}

func readPDF(t *testing.T, store *storage.ArtifactStore, id string) *pdf.Reader {
	t.Helper()
	data, _, err := store.ReadAll(context.Background(), id)
	require.NoError(t, err)
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return r
}

func mediaBox(p pdf.Page) (float64, float64) {
	box := p.V.Key("MediaBox")
	if box.Kind() == pdf.Null {
		box = p.V.Key("Parent").Key("MediaBox")
	}
	return box.Index(2).Float64() - box.Index(0).Float64(), box.Index(3).Float64() - box.Index(1).Float64()
}

func TestAssemblePreservesOrderAndSizes(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"/a.jpg": encodeJPEG(t, 30, 40),
		"/b.png": encodePNG(t, 50, 20),
		"/c.jpg": encodeJPEG(t, 64, 64),
	})
	ctx := context.Background()
	local, err := f.store.Put(ctx, domain.ArtifactRaw, encodePNG(t, 12, 90), "png")
	require.NoError(t, err)

	urls := []string{
		f.server.URL + "/a.jpg",
		f.server.URL + "/b.png",
		f.store.URL(local),
		f.server.URL + "/c.jpg",
	}
	artifact, err := f.assembler.Assemble(ctx, urls)
	require.NoError(t, err)
	assert.Equal(t, domain.ArtifactAssembled, artifact.Kind)
	assert.Regexp(t, `_book\.pdf$`, artifact.ID)
	assert.Equal(t, int32(3), f.hits.Load())

	r := readPDF(t, f.store, artifact.ID)
	require.Equal(t, len(urls), r.NumPage())
	want := [][2]float64{{30, 40}, {50, 20}, {12, 90}, {64, 64}}
	for i, size := range want {
		w, h := mediaBox(r.Page(i + 1))
		assert.InDelta(t, size[0], w, 0.01, "page %d width", i+1)
		assert.InDelta(t, size[1], h, 0.01, "page %d height", i+1)
	}
}

func encodeGray16PNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: uint16(x * y * 257)})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeGIF(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, solid(w, h, color.White), nil))
	return buf.Bytes()
}

func TestAssembleNormalizesDeepAndPalettedPages(t *testing.T) {
	f := newFixture(t, map[string][]byte{
		"/deep.png": encodeGray16PNG(t, 40, 30),
		"/wide.png": encodePNG(t, 300, 100),
		"/tall.gif": encodeGIF(t, 100, 300),
	})

	artifact, err := f.assembler.Assemble(context.Background(), []string{
		f.server.URL + "/deep.png",
		f.server.URL + "/wide.png",
		f.server.URL + "/tall.gif",
	})
	require.NoError(t, err)

	r := readPDF(t, f.store, artifact.ID)
	require.Equal(t, 3, r.NumPage())
	want := [][2]float64{{40, 30}, {300, 100}, {100, 300}}
	for i, size := range want {
		w, h := mediaBox(r.Page(i + 1))
		assert.InDelta(t, size[0], w, 0.01, "page %d width", i+1)
		assert.InDelta(t, size[1], h, 0.01, "page %d height", i+1)
	}
}

func TestEmbeddablePNG(t *testing.T) {
	plain := encodePNG(t, 4, 4)
	assert.True(t, embeddablePNG(plain))
	assert.False(t, embeddablePNG(encodeGray16PNG(t, 4, 4)))

	interlaced := append([]byte(nil), plain...)
	interlaced[28] = 1
	assert.False(t, embeddablePNG(interlaced))
	assert.False(t, embeddablePNG(plain[:20]))
}

func TestAssembleSinglePage(t *testing.T) {
	f := newFixture(t, map[string][]byte{"/only.jpg": encodeJPEG(t, 100, 150)})

	artifact, err := f.assembler.Assemble(context.Background(), []string{f.server.URL + "/only.jpg"})
	require.NoError(t, err)

	r := readPDF(t, f.store, artifact.ID)
	require.Equal(t, 1, r.NumPage())
	w, h := mediaBox(r.Page(1))
	assert.InDelta(t, 100, w, 0.01)
	assert.InDelta(t, 150, h, 0.01)
}

func TestAssembleRejectsEmptyInput(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.assembler.Assemble(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.EqualError(t, err, "No images provided.")

	objects, err := f.files.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestAssembleAbortsOnAnyFetchFailure(t *testing.T) {
	f := newFixture(t, map[string][]byte{"/a.jpg": encodeJPEG(t, 10, 10)})

	_, err := f.assembler.Assemble(context.Background(), []string{
		f.server.URL + "/a.jpg",
		f.server.URL + "/missing.jpg",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Contains(t, err.Error(), "page 2")

	objects, err := f.files.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestAssembleRejectsHostOutsideAllowlist(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.assembler.Assemble(context.Background(), []string{"https://evil.example.net/x.jpg"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Zero(t, f.hits.Load())
}

func TestAssembleRejectsNonImage(t *testing.T) {
	f := newFixture(t, map[string][]byte{"/note.txt": []byte("hello")})

	_, err := f.assembler.Assemble(context.Background(), []string{f.server.URL + "/note.txt"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAssembleMissingLocalArtifactIsNotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.assembler.Assemble(context.Background(), []string{publicBase + "/images/nope_raw.png"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestFetcherRejectsBadScheme(t *testing.T) {
	fetcher := NewFetcher(nil, nil, []string{"example.com"})
	for _, raw := range []string{"ftp://example.com/a.jpg", "not a url", "file:///etc/passwd"} {
		_, err := fetcher.Fetch(context.Background(), raw)
		assert.ErrorIs(t, err, domain.ErrValidation, raw)
	}
}
