package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"customcolors/internal/domain"
	"customcolors/internal/infra"
	"customcolors/internal/providers/replicate"
)

const maxPromptLength = 500

// ArtifactWriter persists blobs and turns them into public URLs.
type ArtifactWriter interface {
	Put(ctx context.Context, kind domain.ArtifactKind, data []byte, ext string) (domain.Artifact, error)
	URL(a domain.Artifact) string
}

// PostProcessor derives a preview from the raw image bytes.
type PostProcessor interface {
	Apply(data []byte) ([]byte, string, error)
}

// Options wires a Service.
type Options struct {
	Client    PredictionService
	Poller    *Poller
	Store     ArtifactWriter
	Watermark PostProcessor
	Clock     infra.Clock
	Logger    *infra.Logger
}

// Request is a generation request. Exactly one of Prompt and Image is set.
type Request struct {
	Prompt string
	Image  []byte
}

// Result is the preview/raw pair produced by a successful run.
type Result struct {
	Job        domain.GenerationJob
	Raw        domain.Artifact
	Preview    domain.Artifact
	RawURL     string
	PreviewURL string
}

// Service runs submit, poll, fetch, store raw, watermark, store preview.
type Service struct {
	client    PredictionService
	poller    *Poller
	store     ArtifactWriter
	watermark PostProcessor
	clock     infra.Clock
	logger    *infra.Logger
}

// NewService validates wiring.
func NewService(opts Options) (*Service, error) {
	if opts.Client == nil || opts.Poller == nil || opts.Store == nil || opts.Watermark == nil {
		return nil, errors.New("generation: client, poller, store and watermark are required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = infra.SystemClock{}
	}
	return &Service{
		client:    opts.Client,
		poller:    opts.Poller,
		store:     opts.Store,
		watermark: opts.Watermark,
		clock:     clock,
		logger:    infra.LoggerOrDiscard(opts.Logger),
	}, nil
}

// ColoringPrompt wraps the user's subject in the line-art style instructions.
func ColoringPrompt(subject string) string {
	return fmt.Sprintf("CLOR image of %s. Style sketched. No shading. Only use black and white. Not realistic.", subject)
}

// Generate runs the whole pipeline. Nothing is reported as success unless both
// artifacts were stored. When watermarking fails after the raw image is
// stored, the raw artifact is left for the reaper.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	job := domain.GenerationJob{
		Prompt:     strings.TrimSpace(req.Prompt),
		InputImage: req.Image,
		StartedAt:  s.clock.Now(),
	}
	if err := job.Validate(); err != nil {
		return Result{Job: job}, err
	}
	if len(job.InputImage) > 0 {
		return Result{Job: job}, fmt.Errorf("image-to-image generation is not available yet: %w", domain.ErrUnsupported)
	}
	if utf8.RuneCountInString(job.Prompt) > maxPromptLength {
		return Result{Job: job}, domain.Invalid(fmt.Sprintf("Prompt must be at most %d characters.", maxPromptLength))
	}

	pred, err := s.client.Create(ctx, replicate.Input{Prompt: ColoringPrompt(job.Prompt), OutputFormat: "jpg"})
	if err != nil {
		job.Status = domain.JobStatusFailed
		return Result{Job: job}, err
	}
	job.ExternalJobID = pred.ID
	job.StatusURL = pred.URLs.Get
	log := s.logger.With().Str("prediction_id", pred.ID).Logger()
	log.Info().Msg("generation: prediction submitted")

	pred, err = s.poller.Await(ctx, &job, pred)
	if err != nil {
		log.Warn().Err(err).Str("status", string(job.Status)).Int("attempts", job.Attempts).Msg("generation: prediction did not succeed")
		return Result{Job: job}, err
	}

	outputs := pred.OutputURLs()
	if len(outputs) == 0 {
		return Result{Job: job}, &domain.UpstreamError{Service: "prediction", Status: pred.Status, Message: "no output returned"}
	}
	job.OutputURL = outputs[0]
	data, contentType, err := s.client.Download(ctx, job.OutputURL)
	if err != nil {
		return Result{Job: job}, err
	}

	raw, err := s.store.Put(ctx, domain.ArtifactRaw, data, rasterExt(data, contentType))
	if err != nil {
		return Result{Job: job}, err
	}
	marked, ext, err := s.watermark.Apply(data)
	if err != nil {
		log.Error().Err(err).Str("raw", raw.ID).Msg("generation: watermark failed, raw artifact left for reaper")
		return Result{Job: job}, fmt.Errorf("watermark preview: %w", err)
	}
	preview, err := s.store.Put(ctx, domain.ArtifactPreview, marked, ext)
	if err != nil {
		return Result{Job: job}, err
	}

	log.Info().
		Str("raw", raw.ID).
		Str("preview", preview.ID).
		Int("attempts", job.Attempts).
		Dur("took", s.clock.Now().Sub(job.StartedAt)).
		Msg("generation: completed")
	return Result{
		Job:        job,
		Raw:        raw,
		Preview:    preview,
		RawURL:     s.store.URL(raw),
		PreviewURL: s.store.URL(preview),
	}, nil
}

func rasterExt(data []byte, contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	switch {
	case strings.HasPrefix(ct, "image/png"):
		return "png"
	case strings.HasPrefix(ct, "image/webp"):
		return "webp"
	default:
		return "jpg"
	}
}
