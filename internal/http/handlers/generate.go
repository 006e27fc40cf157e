package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"customcolors/internal/generation"
)

const defaultMaxUpload = 10 << 20

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Output string `json:"output"`
	Final  string `json:"final"`
}

// Generate runs prompt-to-page generation. The pipeline is detached from the
// request context, so a client disconnect does not abort polling.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !a.decode(w, r, &req) {
		return
	}
	res, err := a.Generator.Generate(context.WithoutCancel(r.Context()), generation.Request{Prompt: req.Prompt})
	if err != nil {
		a.fail(w, r, err, "Failed to generate image.")
		return
	}
	a.json(w, http.StatusOK, generateResponse{Output: res.PreviewURL, Final: res.RawURL})
}

// ImageToImage accepts a multipart "image" upload. The upstream model does
// not support it yet, so the generator answers with ErrUnsupported.
func (a *App) ImageToImage(w http.ResponseWriter, r *http.Request) {
	limit := a.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "Image is too large.")
			return
		}
		a.error(w, http.StatusBadRequest, "No image uploaded.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "No image uploaded.")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		a.error(w, http.StatusBadRequest, "No image uploaded.")
		return
	}

	res, err := a.Generator.Generate(context.WithoutCancel(r.Context()), generation.Request{Image: data})
	if err != nil {
		a.fail(w, r, err, "Failed to generate image.")
		return
	}
	a.json(w, http.StatusOK, generateResponse{Output: res.PreviewURL, Final: res.RawURL})
}
