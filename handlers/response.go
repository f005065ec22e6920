package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"imagegen/filestore"
	"imagegen/providers"
)

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	ResultPath string `json:"result_path"`
}

// DownloadRequest names a previously generated result.
type DownloadRequest struct {
	Path  string `json:"path"`
	Model string `json:"model,omitempty"`
}

// DownloadResponse is returned after a background was removed.
type DownloadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Int("status", status), zap.String("detail", detail))
	} else {
		h.logger.Info("request rejected", zap.Int("status", status), zap.String("detail", detail))
	}
	WriteJSON(w, status, ErrorResponse{Detail: detail})
}

// statusFor maps a sentinel error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, filestore.ErrInvalidFileType),
		errors.Is(err, providers.ErrUnsupportedModel),
		errors.Is(err, providers.ErrBackgroundRemovalUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, filestore.ErrSizeExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, filestore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, providers.ErrModelNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
