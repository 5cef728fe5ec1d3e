package api

import (
	"net/http"
	"strings"

	"titantag/internal/bridge"
)

type textRequest struct {
	Text     string `json:"text"`
	Callback string `json:"callback,omitempty"`
}

type printRequest struct {
	ID string `json:"id"`
}

type callbackRequest struct {
	Callback string `json:"callback"`
}

type permissionRequest struct {
	Capability string `json:"capability"`
	Granted    bool   `json:"granted"`
}

func (s *Server) handleRenderQRPreview(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"data_url": s.Bridge.RenderQRPreview(req.Text)})
}

// handlePrintLabel accepts any id, blank included; the bridge reports the
// outcome as a toast.
func (s *Server) handlePrintLabel(w http.ResponseWriter, r *http.Request) {
	var req printRequest
	if !decode(w, r, &req) {
		return
	}
	s.Bridge.PrintLabel(req.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	s.Bridge.Speak(req.Text)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSpeakWithCallback(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Callback == "" {
		writeError(w, http.StatusBadRequest, "callback is required")
		return
	}
	s.Bridge.SpeakWithCallback(req.Text, req.Callback)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIsSpeechAvailable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"available": s.Bridge.IsSpeechAvailable()})
}

func (s *Server) handleStartTranscription(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if !decode(w, r, &req) {
		return
	}
	s.Bridge.StartTranscription(req.Callback)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStopTranscription(w http.ResponseWriter, r *http.Request) {
	s.Bridge.StopTranscription()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if !decode(w, r, &req) {
		return
	}
	switch strings.TrimSpace(req.Capability) {
	case bridge.CapabilityBluetooth, bridge.CapabilityMicrophone:
	default:
		writeError(w, http.StatusBadRequest, "unknown capability")
		return
	}
	s.Bridge.OnPermissionResult(strings.TrimSpace(req.Capability), req.Granted)
	w.WriteHeader(http.StatusNoContent)
}
