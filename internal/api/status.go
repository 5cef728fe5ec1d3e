package api

import (
	"errors"
	"net/http"
	"time"

	"titantag/internal/label"
)

type statusResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	Version       string `json:"version"`
	PrinterPrefix string `json:"printer_prefix"`
	QueuedPrints  int    `json:"queued_prints"`
	Clients       int    `json:"clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:        "ok",
		Uptime:        time.Since(s.Started).Truncate(time.Second).String(),
		Version:       s.Version,
		PrinterPrefix: s.NamePrefix,
		QueuedPrints:  s.Bridge.QueueLen(),
		Clients:       s.Hub.Len(),
	})
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	png, err := s.Bridge.PreviewPNG(r.URL.Query().Get("text"))
	if err != nil {
		var encErr *label.EncodingError
		switch {
		case errors.Is(err, label.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "text query parameter is required")
		case errors.As(err, &encErr):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
