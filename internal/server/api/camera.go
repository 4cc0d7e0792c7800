package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/crabwatch/internal/app"
	"github.com/ayusman/crabwatch/internal/capture"
	"github.com/ayusman/crabwatch/internal/pipeline"
)

// Controller is the command surface of the pipeline. *app.App implements it.
type Controller interface {
	Status() app.Status
	ToggleFreeze() bool
	CaptureStill() (string, error)
	ToggleRecording() (string, error)
	StartDetection(source string) error
	StopDetection()
}

// CameraHandler serves /api/camera and its commands.
type CameraHandler struct {
	ctl Controller
}

// NewCameraHandler creates a new CameraHandler.
func NewCameraHandler(ctl Controller) *CameraHandler {
	return &CameraHandler{ctl: ctl}
}

type pathResponse struct {
	Path   string     `json:"path"`
	Status app.Status `json:"status"`
}

// ServeHTTP routes /api/camera, /api/camera/freeze, /api/camera/capture and
// /api/camera/record.
func (h *CameraHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/api/camera")
	action = strings.TrimPrefix(action, "/")

	if action == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.ctl.Status())
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "freeze":
		h.ctl.ToggleFreeze()
		writeJSON(w, http.StatusOK, h.ctl.Status())
	case "capture":
		path, err := h.ctl.CaptureStill()
		if err != nil {
			writeCommandError(w, err)
			return
		}
		// no frame read yet
		if path == "" {
			writeError(w, http.StatusConflict, "No frame available")
			return
		}
		writeJSON(w, http.StatusCreated, pathResponse{Path: path, Status: h.ctl.Status()})
	case "record":
		path, err := h.ctl.ToggleRecording()
		if err != nil {
			writeCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, pathResponse{Path: path, Status: h.ctl.Status()})
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// DetectionHandler serves /api/detection.
type DetectionHandler struct {
	ctl Controller
}

// NewDetectionHandler creates a new DetectionHandler.
func NewDetectionHandler(ctl Controller) *DetectionHandler {
	return &DetectionHandler{ctl: ctl}
}

type startDetectionRequest struct {
	Source string `json:"source"`
}

// ServeHTTP handles GET (state), POST (start or replace) and DELETE (stop).
func (h *DetectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.ctl.Status())
	case http.MethodPost:
		var req startDetectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Source == "" {
			writeError(w, http.StatusBadRequest, "Source is required")
			return
		}
		if err := h.ctl.StartDetection(req.Source); err != nil {
			writeCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, h.ctl.Status())
	case http.MethodDelete:
		h.ctl.StopDetection()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// writeCommandError maps pipeline errors to HTTP statuses.
func writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidSource):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, capture.ErrSourceUnavailable):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrNoFrame), errors.Is(err, capture.ErrEndOfStream):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrNotRunning), errors.Is(err, app.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
