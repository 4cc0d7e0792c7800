package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFPSHistory(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewFPSHistory(3, time.Second)

	// 5 events in the first second, 2 in the second
	for i := 0; i < 5; i++ {
		h.Tick(start.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	for i := 0; i < 2; i++ {
		h.Tick(start.Add(1200*time.Millisecond + time.Duration(i)*time.Millisecond))
	}

	got := h.Values(start.Add(2100 * time.Millisecond))
	want := []int{5, 2}
	if !equal(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
	if h.Last() != 2 {
		t.Errorf("Last() = %d, want 2", h.Last())
	}

	// idle seconds are recorded as zero and the history is capped
	got = h.Values(start.Add(5500 * time.Millisecond))
	want = []int{0, 0, 0}
	if !equal(got, want) {
		t.Errorf("Values() after idle = %v, want %v", got, want)
	}
}

func TestFPSHistory_LongGap(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h := NewFPSHistory(DefaultHistoryLen, time.Second)
	h.Tick(start)

	got := h.Values(start.Add(time.Hour))
	if len(got) != DefaultHistoryLen {
		t.Fatalf("len(Values()) = %d, want %d", len(got), DefaultHistoryLen)
	}
	for i, v := range got {
		if v != 0 {
			t.Errorf("Values()[%d] = %d, want 0", i, v)
		}
	}
}

func equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics

	// none of these may panic
	m.FrameRead()
	m.FrameDelivered()
	m.ReadError()
	m.Detection(3)
	m.SetRecording(true)
	m.ImageSaved()
	m.VideoSaved()
	if err := m.RegisterDrops("0", func() uint64 { return 0 }); err != nil {
		t.Errorf("RegisterDrops() on nil error = %v", err)
	}
	if m.FPS() != nil {
		t.Error("FPS() on nil should be nil")
	}
	if m.Handler() == nil {
		t.Error("Handler() on nil should not be nil")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.FrameRead()
	m.FrameRead()
	m.Detection(4)
	m.SetRecording(true)
	if err := m.RegisterDrops("display-0", func() uint64 { return 7 }); err != nil {
		t.Fatalf("RegisterDrops() error = %v", err)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		"crabwatch_frames_read_total 2",
		"crabwatch_objects_detected 4",
		"crabwatch_recording_active 1",
		`crabwatch_mailbox_drops_total{slot="display-0"} 7`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
