package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/crabwatch/internal/app"
	"github.com/ayusman/crabwatch/internal/capture"
	"github.com/ayusman/crabwatch/internal/pipeline"
	"github.com/ayusman/crabwatch/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// mockController records commands and returns canned results.
type mockController struct {
	status    app.Status
	stillPath string
	stillErr  error
	recPath   string
	recErr    error
	startErr  error
	sources   []string
	stops     int
}

func (m *mockController) Status() app.Status { return m.status }

func (m *mockController) ToggleFreeze() bool {
	m.status.Frozen = !m.status.Frozen
	return m.status.Frozen
}

func (m *mockController) CaptureStill() (string, error) { return m.stillPath, m.stillErr }

func (m *mockController) ToggleRecording() (string, error) {
	if m.recErr != nil {
		return "", m.recErr
	}
	m.status.Recording = !m.status.Recording
	return m.recPath, nil
}

func (m *mockController) StartDetection(source string) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.sources = append(m.sources, source)
	m.status.Detecting = true
	m.status.DetectionSource = source
	return nil
}

func (m *mockController) StopDetection() {
	m.stops++
	m.status.Detecting = false
	m.status.DetectionSource = ""
}

func serve(h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) app.Status {
	t.Helper()
	var st app.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	return st
}

func TestArtifactHandler_List(t *testing.T) {
	s := newTestStore(t)
	handler := NewArtifactHandler(s)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, a := range []*store.Artifact{
		{Path: "a.jpg", Kind: store.KindImage, Camera: "cam0"},
		{Path: "b.avi", Kind: store.KindVideo, Camera: "cam0"},
	} {
		a.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.Artifacts().Create(a); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		target string
		code   int
		want   []string
	}{
		{"all", "/api/artifacts", http.StatusOK, []string{"b.avi", "a.jpg"}},
		{"images", "/api/artifacts?kind=image", http.StatusOK, []string{"a.jpg"}},
		{"videos", "/api/artifacts?kind=video", http.StatusOK, []string{"b.avi"}},
		{"bad kind", "/api/artifacts?kind=gif", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(handler, http.MethodGet, tt.target, nil)
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d", rec.Code, tt.code)
			}
			if tt.want == nil {
				return
			}

			var resp listArtifactsResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(resp.Artifacts) != len(tt.want) {
				t.Fatalf("got %d artifacts, want %d", len(resp.Artifacts), len(tt.want))
			}
			for i, p := range tt.want {
				if resp.Artifacts[i].Path != p {
					t.Errorf("artifacts[%d] = %s, want %s", i, resp.Artifacts[i].Path, p)
				}
			}
		})
	}
}

func TestArtifactHandler_GetAndDelete(t *testing.T) {
	s := newTestStore(t)
	handler := NewArtifactHandler(s)

	path := filepath.Join(t.TempDir(), "cam0_capture_20240501_100000.jpg")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	a := &store.Artifact{Path: path, Kind: store.KindImage, Camera: "cam0"}
	if err := s.Artifacts().Create(a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec := serve(handler, http.MethodGet, "/api/artifacts/"+a.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", rec.Code)
	}
	var got artifactResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Path != path || got.Kind != store.KindImage {
		t.Errorf("GET = %+v", got)
	}

	rec = serve(handler, http.MethodDelete, "/api/artifacts/"+a.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", rec.Code)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file should be removed, stat error = %v", err)
	}

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec = serve(handler, method, "/api/artifacts/"+a.ID, nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s after delete status = %d, want 404", method, rec.Code)
		}
	}
}

func TestArtifactHandler_DeleteMissingFile(t *testing.T) {
	s := newTestStore(t)
	handler := NewArtifactHandler(s)

	a := &store.Artifact{Path: filepath.Join(t.TempDir(), "gone.avi"), Kind: store.KindVideo}
	if err := s.Artifacts().Create(a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rec := serve(handler, http.MethodDelete, "/api/artifacts/"+a.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", rec.Code)
	}
}

func TestArtifactHandler_MethodNotAllowed(t *testing.T) {
	handler := NewArtifactHandler(newTestStore(t))

	tests := []struct {
		method string
		target string
	}{
		{http.MethodPost, "/api/artifacts"},
		{http.MethodDelete, "/api/artifacts"},
		{http.MethodPut, "/api/artifacts/abc"},
	}
	for _, tt := range tests {
		rec := serve(handler, tt.method, tt.target, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want 405", tt.method, tt.target, rec.Code)
		}
	}
}

func TestCameraHandler(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		ctl := &mockController{status: app.Status{Running: true, LastCount: 2}}
		rec := serve(NewCameraHandler(ctl), http.MethodGet, "/api/camera", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		st := decodeStatus(t, rec)
		if !st.Running || st.LastCount != 2 {
			t.Errorf("status = %+v", st)
		}
	})

	t.Run("freeze", func(t *testing.T) {
		ctl := &mockController{}
		rec := serve(NewCameraHandler(ctl), http.MethodPost, "/api/camera/freeze", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if !decodeStatus(t, rec).Frozen {
			t.Error("response should report frozen")
		}
	})

	t.Run("capture", func(t *testing.T) {
		ctl := &mockController{stillPath: "captured_images/cam0_capture_20240501_100000.jpg"}
		rec := serve(NewCameraHandler(ctl), http.MethodPost, "/api/camera/capture", nil)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", rec.Code)
		}
		var resp pathResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Path != ctl.stillPath {
			t.Errorf("path = %s, want %s", resp.Path, ctl.stillPath)
		}
	})

	t.Run("capture without frame", func(t *testing.T) {
		rec := serve(NewCameraHandler(&mockController{}), http.MethodPost, "/api/camera/capture", nil)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("record", func(t *testing.T) {
		ctl := &mockController{recPath: "recorded_videos/cam0_video_20240501_100000.avi"}
		rec := serve(NewCameraHandler(ctl), http.MethodPost, "/api/camera/record", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp pathResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Path != ctl.recPath || !resp.Status.Recording {
			t.Errorf("response = %+v", resp)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		rec := serve(NewCameraHandler(&mockController{}), http.MethodPost, "/api/camera/zoom", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("wrong methods", func(t *testing.T) {
		h := NewCameraHandler(&mockController{})
		if rec := serve(h, http.MethodPost, "/api/camera", nil); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST /api/camera status = %d, want 405", rec.Code)
		}
		if rec := serve(h, http.MethodGet, "/api/camera/freeze", nil); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET /api/camera/freeze status = %d, want 405", rec.Code)
		}
	})
}

func TestCameraHandler_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"no frame", pipeline.ErrNoFrame, http.StatusConflict},
		{"stream ended", capture.ErrEndOfStream, http.StatusConflict},
		{"not running", pipeline.ErrNotRunning, http.StatusServiceUnavailable},
		{"sink failure", &pipeline.WorkerError{Worker: "capture", Kind: pipeline.ErrSinkCreateFailed, Err: errors.New("disk full")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &mockController{recErr: tt.err}
			rec := serve(NewCameraHandler(ctl), http.MethodPost, "/api/camera/record", nil)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestDetectionHandler(t *testing.T) {
	ctl := &mockController{}
	h := NewDetectionHandler(ctl)

	rec := serve(h, http.MethodPost, "/api/detection", []byte(`{"source": "videos/tank.mp4"}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("POST status = %d, want 202", rec.Code)
	}
	st := decodeStatus(t, rec)
	if !st.Detecting || st.DetectionSource != "videos/tank.mp4" {
		t.Errorf("status = %+v", st)
	}

	rec = serve(h, http.MethodGet, "/api/detection", nil)
	if !decodeStatus(t, rec).Detecting {
		t.Error("GET should report detecting")
	}

	rec = serve(h, http.MethodDelete, "/api/detection", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", rec.Code)
	}
	if ctl.stops != 1 || ctl.status.Detecting {
		t.Errorf("stops = %d, detecting = %v", ctl.stops, ctl.status.Detecting)
	}
}

func TestDetectionHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		code     int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"missing source", `{}`, nil, http.StatusBadRequest},
		{"invalid source", `{"source": " "}`, fmt.Errorf("%w: blank", app.ErrInvalidSource), http.StatusBadRequest},
		{"unavailable", `{"source": "missing.mp4"}`, fmt.Errorf("open: %w", capture.ErrSourceUnavailable), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl := &mockController{startErr: tt.startErr}
			rec := serve(NewDetectionHandler(ctl), http.MethodPost, "/api/detection", []byte(tt.body))
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
		})
	}

	rec := serve(NewDetectionHandler(&mockController{}), http.MethodPut, "/api/detection", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT status = %d, want 405", rec.Code)
	}
}
