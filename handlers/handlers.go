// Package handlers implements the HTTP API for generating images and
// removing their backgrounds.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"imagegen/filestore"
	"imagegen/metrics"
	"imagegen/providers"
)

const (
	operationGenerate         = "generate"
	operationRemoveBackground = "remove_background"

	// multipartOverhead is the allowance for form fields and boundaries on top
	// of the maximum file size.
	multipartOverhead = 1 << 20
	maxDownloadBody   = 64 << 10
)

// Recorder receives the outcome of each vendor call.
type Recorder interface {
	RecordGeneration(provider, operation, outcome string, duration time.Duration)
}

// Handler serves the image API.
type Handler struct {
	store    *filestore.Store
	registry *providers.Registry
	recorder Recorder
	logger   *zap.Logger
}

// New creates a Handler. recorder may be nil.
func New(store *filestore.Store, registry *providers.Registry, recorder Recorder, logger *zap.Logger) *Handler {
	return &Handler{
		store:    store,
		registry: registry,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "handlers")),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/upload", h.Upload)
	mux.HandleFunc("/api/download", h.Download)
	mux.HandleFunc("/api/models", h.Models)
	mux.HandleFunc("/healthz", h.Health)
}

// Upload stores an optional reference image, resolves the requested model
// and returns the public path of the generated image.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.store.MaxFileSize()+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, filestore.ErrSizeExceeded.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, "Could not parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	prompt := strings.TrimSpace(r.FormValue("prompt"))
	model := strings.TrimSpace(r.FormValue("model"))
	if prompt == "" {
		h.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if model == "" {
		h.writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	input := providers.GenerationInput{Prompt: prompt}

	file, header, err := r.FormFile("file")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		h.writeError(w, http.StatusBadRequest, "Could not retrieve file from form")
		return
	}
	if err == nil {
		defer file.Close()
		path, err := h.storeUpload(file, header.Filename)
		if err != nil {
			h.writeError(w, statusFor(err), err.Error())
			return
		}
		input.ImagePath = path
	}

	gen, err := h.registry.Resolve(model)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.logger.Info("generating image",
		zap.String("provider", gen.GetName()),
		zap.String("model", gen.GetModel()),
		zap.Bool("with_image", input.ImagePath != ""),
	)
	start := time.Now()
	out, err := gen.Generate(r.Context(), input)
	h.record(gen.GetName(), operationGenerate, err, time.Since(start))
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, UploadResponse{
		Success:    true,
		Message:    "Image generated successfully",
		ResultPath: h.store.ResultURL(out.Path),
	})
}

func (h *Handler) storeUpload(file io.Reader, filename string) (string, error) {
	if !h.store.Allowed(filename) {
		return "", fmt.Errorf("%w: %s", filestore.ErrInvalidFileType, filename)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	return h.store.SaveUpload(filename, data)
}

// Download removes the background of a previously generated result and
// returns the public path of the new image.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "Only POST method is allowed")
		return
	}

	var req DownloadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDownloadBody)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		h.writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	src, err := h.store.ResolveResult(req.Path)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Image not found: "+req.Path)
		return
	}

	remover, err := h.registry.BackgroundRemover(req.Model)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	name := providerName(remover)
	h.logger.Info("removing background", zap.String("provider", name), zap.String("image", src))
	start := time.Now()
	out, err := remover.RemoveBackground(r.Context(), src)
	h.record(name, operationRemoveBackground, err, time.Since(start))
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, DownloadResponse{
		Success: true,
		Message: "Background removed successfully. Image ready for download.",
		Path:    h.store.ResultURL(out.Path),
	})
}

// Models lists every known model and whether it is usable.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "Only GET method is allowed")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"models": h.registry.Models()})
}

// Health reports that the process is serving.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) record(provider, operation string, err error, d time.Duration) {
	if h.recorder == nil {
		return
	}
	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(err, providers.ErrNoImage):
		outcome = metrics.OutcomeNoImage
	case err != nil:
		outcome = metrics.OutcomeError
	}
	h.recorder.RecordGeneration(provider, operation, outcome, d)
}

func providerName(v any) string {
	if named, ok := v.(interface{ GetName() string }); ok {
		return named.GetName()
	}
	return "unknown"
}
