package api

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ayusman/crabwatch/internal/store"
)

// ArtifactHandler serves the catalog of saved stills and recordings.
type ArtifactHandler struct {
	store *store.Store
}

// NewArtifactHandler creates a new ArtifactHandler with the given store.
func NewArtifactHandler(s *store.Store) *ArtifactHandler {
	return &ArtifactHandler{store: s}
}

// ServeHTTP routes /api/artifacts and /api/artifacts/{id}.
func (h *ArtifactHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/artifacts")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type artifactResponse struct {
	ID        string `json:"id"`
	Path      string `json:"path"`
	Kind      string `json:"kind"`
	Camera    string `json:"camera"`
	CreatedAt string `json:"created_at"`
}

type listArtifactsResponse struct {
	Artifacts []artifactResponse `json:"artifacts"`
}

func toResponse(a *store.Artifact) artifactResponse {
	return artifactResponse{
		ID:        a.ID,
		Path:      a.Path,
		Kind:      a.Kind,
		Camera:    a.Camera,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
}

// list handles GET /api/artifacts[?kind=image|video], newest first.
func (h *ArtifactHandler) list(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind != "" && kind != store.KindImage && kind != store.KindVideo {
		writeError(w, http.StatusBadRequest, "Invalid artifact kind")
		return
	}

	artifacts, err := h.store.Artifacts().List(kind)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list artifacts")
		return
	}

	response := listArtifactsResponse{
		Artifacts: make([]artifactResponse, 0, len(artifacts)),
	}
	for _, a := range artifacts {
		response.Artifacts = append(response.Artifacts, toResponse(a))
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *ArtifactHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	artifact, err := h.store.Artifacts().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Artifact not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get artifact")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(artifact))
}

// delete removes the catalog entry and the file behind it. A file that is
// already gone is not an error.
func (h *ArtifactHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	artifact, err := h.store.Artifacts().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Artifact not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get artifact")
		return
	}

	if err := os.Remove(artifact.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		writeError(w, http.StatusInternalServerError, "Failed to remove artifact file")
		return
	}

	if err := h.store.Artifacts().Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete artifact")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
