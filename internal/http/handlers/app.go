package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"customcolors/internal/domain"
	"customcolors/internal/generation"
	"customcolors/internal/infra"
	"customcolors/internal/middleware"
)

const maxJSONBody = 1 << 20

// Generator runs the generation pipeline.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (generation.Result, error)
}

// Checkout opens payment sessions and resolves paid ones.
type Checkout interface {
	CustomOrder(ctx context.Context, pageURLs []string) (domain.CheckoutSession, error)
	CatalogOrder(ctx context.Context, b domain.Book) (domain.CheckoutSession, error)
	Deliverable(ctx context.Context, sessionID string) (domain.Deliverable, error)
}

// Downloads mints and redeems download tokens.
type Downloads interface {
	Issue(ctx context.Context, target string) (domain.DownloadToken, error)
	Redeem(ctx context.Context, token string) (string, error)
	Link(t domain.DownloadToken) string
}

// Catalog lists pre-made books.
type Catalog interface {
	Books(ctx context.Context) ([]domain.Book, error)
}

// Artifacts serves stored blobs.
type Artifacts interface {
	Open(ctx context.Context, id string) (io.ReadCloser, domain.Artifact, error)
}

// App holds the collaborators every handler needs.
type App struct {
	Generator Generator
	Checkout  Checkout
	Downloads Downloads
	Catalog   Catalog
	Artifacts Artifacts
	Logger    *infra.Logger

	// StorageBackend names the artifact backend reported by Health.
	StorageBackend string

	// MaxUploadBytes caps multipart uploads; zero means 10 MiB.
	MaxUploadBytes int64
}

type errorResponse struct {
	Error string `json:"error"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, errorResponse{Error: message})
}

// fail maps err onto a status and a client-safe message. fallback is used
// for upstream and internal failures whose detail should stay in the logs.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		infra.LoggerOrDiscard(a.Logger).Error().
			Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Int("status", code).
			Msg("request failed")
	}
	a.error(w, code, messageFor(err, fallback))
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		a.error(w, http.StatusBadRequest, "Invalid request body.")
		return false
	}
	return true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, domain.ErrGenerationTimedOut):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrTokenExpired):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrGenerationFailed), errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error, fallback string) string {
	var ve *domain.ValidationError
	var ue *domain.UpstreamError
	switch {
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, domain.ErrUnsupported):
		return "Image-to-image generation is not supported yet."
	case errors.Is(err, domain.ErrGenerationTimedOut):
		return "Image generation timed out. Please try again."
	case errors.Is(err, domain.ErrGenerationFailed):
		if errors.As(err, &ue) && ue.Message != "" {
			return "Image generation failed: " + ue.Message
		}
		return "Image generation failed."
	case errors.Is(err, domain.ErrTokenExpired):
		return "Download link expired"
	case errors.Is(err, domain.ErrNotFound):
		return "Not found."
	case errors.Is(err, domain.ErrStorage):
		return "Storage is unavailable. Please try again later."
	default:
		return fallback
	}
}
