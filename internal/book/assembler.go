// Package book turns an ordered list of page images into a single PDF.
package book

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"customcolors/internal/domain"
	"customcolors/internal/infra"
)

const defaultConcurrency = 4

// PageSource fetches a page image by URL.
type PageSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Sink persists the rendered document.
type Sink interface {
	PutStream(ctx context.Context, kind domain.ArtifactKind, ext string, write func(io.Writer) error) (domain.Artifact, error)
}

// Options wires an Assembler.
type Options struct {
	Source      PageSource
	Sink        Sink
	Concurrency int
	Logger      *infra.Logger
}

// Assembler builds one PDF page per image, in input order.
type Assembler struct {
	source      PageSource
	sink        Sink
	concurrency int
	logger      *infra.Logger
}

type page struct {
	data      []byte
	imageType string
	width     float64
	height    float64
}

// NewAssembler validates wiring.
func NewAssembler(opts Options) (*Assembler, error) {
	if opts.Source == nil || opts.Sink == nil {
		return nil, errors.New("book: source and sink are required")
	}
	n := opts.Concurrency
	if n <= 0 {
		n = defaultConcurrency
	}
	return &Assembler{
		source:      opts.Source,
		sink:        opts.Sink,
		concurrency: n,
		logger:      infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// Assemble fetches every URL and stores the resulting PDF. Any failure aborts
// the whole assembly and nothing is persisted.
func (a *Assembler) Assemble(ctx context.Context, urls []string) (domain.Artifact, error) {
	if len(urls) == 0 {
		return domain.Artifact{}, domain.Invalid("No images provided.")
	}

	pages := make([]page, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			data, err := a.source.Fetch(gctx, u)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			p, err := preparePage(data)
			if err != nil {
				return fmt.Errorf("page %d: %w", i+1, err)
			}
			pages[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Artifact{}, err
	}

	pdf, err := render(pages)
	if err != nil {
		return domain.Artifact{}, err
	}
	artifact, err := a.sink.PutStream(ctx, domain.ArtifactAssembled, "pdf", pdf.Output)
	if err != nil {
		return domain.Artifact{}, err
	}
	a.logger.Info().Str("artifact", artifact.ID).Int("pages", len(pages)).Int64("bytes", artifact.Size).Msg("book: assembled")
	return artifact, nil
}

// preparePage reads the pixel size and re-encodes anything gofpdf cannot
// embed directly as an 8-bit PNG.
func preparePage(data []byte) (page, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return page{}, domain.Invalid("Page is not a supported image.")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return page{}, domain.Invalid("Page image has no pixels.")
	}
	p := page{data: data, width: float64(cfg.Width), height: float64(cfg.Height)}
	switch {
	case format == "jpeg":
		p.imageType = "JPG"
	case format == "png" && embeddablePNG(data):
		p.imageType = "PNG"
	default:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return page{}, domain.Invalid("Page is not a supported image.")
		}
		flat := image.NewNRGBA(img.Bounds())
		draw.Draw(flat, flat.Bounds(), img, img.Bounds().Min, draw.Src)
		var buf bytes.Buffer
		if err := png.Encode(&buf, flat); err != nil {
			return page{}, err
		}
		p.data, p.imageType = buf.Bytes(), "PNG"
	}
	return p, nil
}

// embeddablePNG reports whether gofpdf can embed the PNG as is: at most 8
// bits per sample and no interlacing.
func embeddablePNG(data []byte) bool {
	const (
		bitDepthOffset  = 24
		interlaceOffset = 28
	)
	if len(data) <= interlaceOffset || string(data[12:16]) != "IHDR" {
		return false
	}
	return data[bitDepthOffset] <= 8 && data[interlaceOffset] == 0
}

// render lays out pages in points so one pixel maps to one point.
func render(pages []page) (*gofpdf.Fpdf, error) {
	first := pages[0]
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: first.width, Ht: first.height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("customcolors", true)

	for i, p := range pages {
		name := "page-" + strconv.Itoa(i)
		opts := gofpdf.ImageOptions{ImageType: p.imageType, ReadDpi: false}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(p.data))
		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: p.width, Ht: p.height})
		pdf.ImageOptions(name, 0, 0, p.width, p.height, false, opts, 0, "")
		if err := pdf.Error(); err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
	}
	return pdf, nil
}
