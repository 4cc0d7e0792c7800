package pipeline

import (
	"time"

	"github.com/ayusman/crabwatch/internal/capture"
	"github.com/ayusman/crabwatch/internal/detector"
)

// ArtifactKind is the type of a saved artifact.
type ArtifactKind string

// Artifact kinds.
const (
	KindImage ArtifactKind = "image"
	KindVideo ArtifactKind = "video"
)

// Artifact describes a file written by the capture worker.
type Artifact struct {
	Path      string       `json:"path"`
	Kind      ArtifactKind `json:"kind"`
	Camera    string       `json:"camera"`
	CreatedAt time.Time    `json:"created_at"`
}

// Handlers receive worker output. They are called on the worker goroutine
// and must not block. Frames passed to OnFrame and OnAnnotatedFrame are owned
// by the handler, which must Close them. Nil handlers are skipped.
type Handlers struct {
	OnFrame          func(f *capture.Frame)
	OnAnnotatedFrame func(a *detector.AnnotatedFrame)
	OnArtifactSaved  func(a Artifact)
	OnSourceError    func(err error)
}

func (h Handlers) frame(f *capture.Frame) {
	if h.OnFrame == nil {
		f.Close()
		return
	}
	h.OnFrame(f)
}

func (h Handlers) annotated(a *detector.AnnotatedFrame) {
	if h.OnAnnotatedFrame == nil {
		a.Close()
		return
	}
	h.OnAnnotatedFrame(a)
}

func (h Handlers) artifact(a Artifact) {
	if h.OnArtifactSaved != nil {
		h.OnArtifactSaved(a)
	}
}

func (h Handlers) sourceError(err error) {
	if h.OnSourceError != nil {
		h.OnSourceError(err)
	}
}
