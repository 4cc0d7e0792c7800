package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ayusman/crabwatch/internal/capture"
)

// ErrMailboxClosed is returned by Take after Close.
var ErrMailboxClosed = errors.New("mailbox closed")

// Mailbox hands the newest frame from a producer to one consumer.
// Put never blocks; an unconsumed frame is replaced and closed.
type Mailbox struct {
	mu     sync.Mutex
	frame  *capture.Frame
	closed bool
	notify chan struct{}
	done   chan struct{}
	drops  atomic.Uint64
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Put stores f, taking ownership of it.
func (m *Mailbox) Put(f *capture.Frame) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		f.Close()
		return
	}
	if m.frame != nil {
		m.frame.Close()
		m.drops.Add(1)
	}
	m.frame = f
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Take waits for a frame. The caller owns the returned frame.
func (m *Mailbox) Take(ctx context.Context) (*capture.Frame, error) {
	for {
		m.mu.Lock()
		if f := m.frame; f != nil {
			m.frame = nil
			m.mu.Unlock()
			return f, nil
		}
		closed := m.closed
		m.mu.Unlock()

		if closed {
			return nil, ErrMailboxClosed
		}

		select {
		case <-m.notify:
		case <-m.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Drops returns how many frames were replaced before being taken.
func (m *Mailbox) Drops() uint64 {
	return m.drops.Load()
}

// Close releases the held frame and wakes waiting consumers.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	if m.frame != nil {
		m.frame.Close()
		m.frame = nil
	}
	close(m.done)
}
