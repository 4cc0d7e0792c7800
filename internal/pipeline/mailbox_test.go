package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayusman/crabwatch/internal/capture"
	"github.com/ayusman/crabwatch/testdata"
)

func levelFrame(level uint8) *capture.Frame {
	return capture.NewFrame(testdata.SolidFrame(4, 4, level), uint64(level))
}

func TestMailbox_LatestWins(t *testing.T) {
	m := NewMailbox()
	defer m.Close()

	first, second, third := levelFrame(1), levelFrame(2), levelFrame(3)
	m.Put(first)
	m.Put(second)
	m.Put(third)

	if m.Drops() != 2 {
		t.Errorf("Drops() = %d, want 2", m.Drops())
	}
	if !first.Empty() || !second.Empty() {
		t.Error("replaced frames should be closed")
	}

	got, err := m.Take(context.Background())
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	defer got.Close()
	if got != third {
		t.Errorf("Take() returned seq %d, want 3", got.Seq)
	}
}

func TestMailbox_TakeWaits(t *testing.T) {
	m := NewMailbox()
	defer m.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Put(levelFrame(7))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := m.Take(ctx)
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	defer got.Close()
	if got.Seq != 7 {
		t.Errorf("Take() seq = %d, want 7", got.Seq)
	}
}

func TestMailbox_TakeContext(t *testing.T) {
	m := NewMailbox()
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	if _, err := m.Take(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Take() error = %v, want DeadlineExceeded", err)
	}
}

func TestMailbox_Close(t *testing.T) {
	m := NewMailbox()
	held := levelFrame(1)
	m.Put(held)

	done := make(chan error, 1)
	m.Close()
	go func() {
		_, err := m.Take(context.Background())
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, ErrMailboxClosed) {
			t.Errorf("Take() error = %v, want ErrMailboxClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Take() did not return after Close")
	}

	if !held.Empty() {
		t.Error("held frame should be released by Close")
	}

	late := levelFrame(2)
	m.Put(late)
	if !late.Empty() {
		t.Error("Put after Close should release the frame")
	}
	m.Close()
}

func TestMailbox_CloseWakesWaiter(t *testing.T) {
	m := NewMailbox()

	done := make(chan error, 1)
	go func() {
		_, err := m.Take(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	m.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrMailboxClosed) {
			t.Errorf("Take() error = %v, want ErrMailboxClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiting Take() was not woken by Close")
	}
}
