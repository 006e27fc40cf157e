package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"customcolors/internal/domain"
	"customcolors/internal/infra"
)

type downloadLinkRequest struct {
	DownloadURL string `json:"downloadUrl"`
}

// GenerateDownloadLink mints a short-lived link to a deliverable.
func (a *App) GenerateDownloadLink(w http.ResponseWriter, r *http.Request) {
	var req downloadLinkRequest
	if !a.decode(w, r, &req) {
		return
	}
	token, err := a.Downloads.Issue(r.Context(), req.DownloadURL)
	if err != nil {
		a.fail(w, r, err, "Failed to create download link.")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"link": a.Downloads.Link(token)})
}

// Download redirects a live token to its target.
func (a *App) Download(w http.ResponseWriter, r *http.Request) {
	target, err := a.Downloads.Redeem(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "Download link not found")
			return
		}
		a.fail(w, r, err, "Failed to resolve download link.")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, target, http.StatusFound)
}

// Artifact streams a stored artifact.
func (a *App) Artifact(w http.ResponseWriter, r *http.Request) {
	rc, artifact, err := a.Artifacts.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err, "Failed to read artifact.")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", artifact.ContentType)
	if artifact.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	if artifact.Kind == domain.ArtifactAssembled {
		w.Header().Set("Content-Disposition", `attachment; filename="coloring-book.pdf"`)
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		infra.LoggerOrDiscard(a.Logger).Warn().Err(err).Str("artifact", artifact.ID).Msg("artifact stream interrupted")
	}
}
