package capture

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"
)

func TestMockSource_Playback(t *testing.T) {
	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	src := NewMockSource(File("clip.avi"), []gocv.Mat{frame1, frame2}, false)
	defer src.Close()

	for i := 0; i < 2; i++ {
		f, err := src.Read()
		if err != nil {
			t.Fatalf("Read() %d error = %v", i, err)
		}
		if f.Seq != uint64(i+1) {
			t.Errorf("Seq = %d, want %d", f.Seq, i+1)
		}
		f.Close()
	}

	// Third read ends the stream (no loop)
	if _, err := src.Read(); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("Read() after last frame error = %v, want ErrEndOfStream", err)
	}
}

func TestMockSource_Loop(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	src := NewMockSource(Device(0), []gocv.Mat{frame}, true)
	defer src.Close()

	for i := 0; i < 5; i++ {
		f, err := src.Read()
		if err != nil {
			t.Fatalf("Read() iteration %d error = %v", i, err)
		}
		f.Close()
	}
	if src.Reads() != 5 {
		t.Errorf("Reads() = %d, want 5", src.Reads())
	}
}

func TestMockSource_FailReads(t *testing.T) {
	frame := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer frame.Close()

	src := NewMockSource(Device(0), []gocv.Mat{frame}, true)
	src.FailReads(2)

	for i := 0; i < 2; i++ {
		if _, err := src.Read(); !errors.Is(err, ErrReadFailed) {
			t.Errorf("Read() %d error = %v, want ErrReadFailed", i, err)
		}
	}
	f, err := src.Read()
	if err != nil {
		t.Fatalf("Read() after failures error = %v", err)
	}
	f.Close()

	src.Close()
	if _, err := src.Read(); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("Read() after Close error = %v, want ErrSourceClosed", err)
	}
}

func TestMockOpener_Events(t *testing.T) {
	opener := &MockOpener{
		Fail: func(id SourceID) bool { return id.Path == "broken.avi" },
	}

	a, err := opener.Open(File("a.avi"))
	if err != nil {
		t.Fatalf("Open(a) error = %v", err)
	}
	a.Close()
	a.Close()

	if _, err := opener.Open(File("broken.avi")); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("Open(broken) error = %v, want ErrSourceUnavailable", err)
	}

	b, _ := opener.Open(Device(1))
	b.Close()

	want := []string{"open a.avi", "close a.avi", "open 1", "close 1"}
	got := opener.Events()
	if len(got) != len(want) {
		t.Fatalf("Events() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Events()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if len(opener.Sources()) != 2 {
		t.Errorf("Sources() = %d, want 2", len(opener.Sources()))
	}
}
