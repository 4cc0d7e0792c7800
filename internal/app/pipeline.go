package app

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/crabwatch/internal/capture"
	"github.com/ayusman/crabwatch/internal/detector"
	"github.com/ayusman/crabwatch/internal/pipeline"
	"github.com/ayusman/crabwatch/internal/store"
)

// EventType names a published event.
type EventType string

// Event types.
const (
	EventArtifact  EventType = "artifact_saved"
	EventError     EventType = "source_error"
	EventDetection EventType = "detection"
	EventState     EventType = "state"
)

// SubscriberBuffer is the channel capacity of each subscriber.
const SubscriberBuffer = 32

// Event is published to subscribers.
type Event struct {
	Type   EventType              `json:"type"`
	Path   string                 `json:"path,omitempty"`
	Kind   string                 `json:"kind,omitempty"`
	Reason string                 `json:"reason,omitempty"`
	Count  int                    `json:"count"`
	Boxes  []detector.BoundingBox `json:"boxes,omitempty"`
	Status *Status                `json:"status,omitempty"`
	Time   time.Time              `json:"time"`
}

// Subscribe registers a subscriber. Sends never block: a subscriber that
// falls SubscriberBuffer events behind misses events. The channel is closed
// by Unsubscribe or Stop.
func (a *App) Subscribe() (string, <-chan Event) {
	id := uuid.New().String()
	ch := make(chan Event, SubscriberBuffer)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		close(ch)
		return id, ch
	}
	a.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (a *App) Unsubscribe(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ch, ok := a.subs[id]; ok {
		close(ch)
		delete(a.subs, id)
	}
}

func (a *App) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, ch := range a.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (a *App) publishState() {
	st := a.Status()
	a.publish(Event{Type: EventState, Count: st.LastCount, Status: &st})
}

// onFrame fans a camera frame out to every display slot.
func (a *App) onFrame(f *capture.Frame) {
	last := len(a.displays) - 1
	for i, mb := range a.displays {
		if i == last {
			mb.Put(f)
		} else {
			mb.Put(f.Clone())
		}
	}
}

// onAnnotated hands the detection output to its mailbox and publishes
// count changes.
func (a *App) onAnnotated(af *detector.AnnotatedFrame) {
	prev := a.lastCount.Swap(int64(af.Count))
	boxes := af.Boxes
	a.annotated.Put(af.Frame)

	if prev != int64(af.Count) {
		a.publish(Event{Type: EventDetection, Count: af.Count, Boxes: boxes})
	}
}

func (a *App) onArtifact(art pipeline.Artifact) {
	log := a.log.WithFields(logrus.Fields{"path": art.Path, "kind": art.Kind})

	if a.config.Store != nil {
		err := a.config.Store.Artifacts().Create(&store.Artifact{
			Path:      art.Path,
			Kind:      string(art.Kind),
			Camera:    art.Camera,
			CreatedAt: art.CreatedAt,
		})
		if err != nil {
			log.WithError(err).Warn("Failed to catalog artifact")
		}
	}

	log.Info("Artifact saved")
	a.publish(Event{
		Type: EventArtifact,
		Path: art.Path,
		Kind: string(art.Kind),
		Time: art.CreatedAt,
	})
}

func (a *App) onSourceError(err error) {
	a.log.WithError(err).Warn("Source error")
	a.publish(Event{Type: EventError, Reason: err.Error()})
}
