package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/crabwatch/internal/capture"
	"github.com/ayusman/crabwatch/internal/pipeline"
)

// MailboxFunc picks the mailbox a stream request reads from.
type MailboxFunc func(r *http.Request) (*pipeline.Mailbox, error)

var errNoSlot = errors.New("no such display slot")

// displaySlot selects a camera view with ?slot=N, defaulting to 0.
func displaySlot(ctl Controller) MailboxFunc {
	return func(r *http.Request) (*pipeline.Mailbox, error) {
		n := 0
		if v := r.URL.Query().Get("slot"); v != "" {
			var err error
			if n, err = strconv.Atoi(v); err != nil {
				return nil, errNoSlot
			}
		}
		mb, ok := ctl.Display(n)
		if !ok {
			return nil, errNoSlot
		}
		return mb, nil
	}
}

func annotated(ctl Controller) MailboxFunc {
	return func(*http.Request) (*pipeline.Mailbox, error) {
		return ctl.Annotated(), nil
	}
}

// StreamHandler serves MJPEG frames taken from a mailbox. Each mailbox has
// one consumer; concurrent clients on the same mailbox share its frames.
type StreamHandler struct {
	pick MailboxFunc
	log  logrus.FieldLogger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(pick MailboxFunc, log logrus.FieldLogger) *StreamHandler {
	return &StreamHandler{pick: pick, log: log}
}

// ServeHTTP streams MJPEG frames until the client goes away or the
// mailbox is closed.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mb, err := h.pick(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for {
		frame, err := mb.Take(r.Context())
		if err != nil {
			return
		}

		err = writePart(w, frame)
		frame.Close()
		if err != nil {
			h.log.WithError(err).Debug("Stream ended")
			return
		}

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

// writePart JPEG-encodes f and writes it as one multipart section.
func writePart(w io.Writer, f *capture.Frame) error {
	// JPEG encoding expects BGR
	bgr, err := f.Convert(capture.FormatBGR)
	if err != nil {
		return err
	}
	defer bgr.Close()

	buf, err := gocv.IMEncode(".jpg", bgr.Mat)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", buf.Len()); err != nil {
		return err
	}
	if _, err := w.Write(buf.GetBytes()); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\r\n")
	return err
}
