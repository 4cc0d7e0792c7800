package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/crabwatch/internal/app"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// EventsHandler forwards pipeline events to websocket clients as JSON.
type EventsHandler struct {
	ctl Controller
	log logrus.FieldLogger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(ctl Controller, log logrus.FieldLogger) *EventsHandler {
	return &EventsHandler{ctl: ctl, log: log}
}

// ServeHTTP upgrades the connection, sends the current state and then every
// published event until either side goes away.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	id, events := h.ctl.Subscribe()
	defer h.ctl.Unsubscribe(id)

	log := h.log.WithField("subscriber", id)
	log.Debug("Event client connected")

	// The read side only detects the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	st := h.ctl.Status()
	if err := h.send(conn, app.Event{Type: app.EventState, Count: st.LastCount, Status: &st, Time: time.Now()}); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if err := h.send(conn, ev); err != nil {
				log.WithError(err).Debug("Event client write failed")
				return
			}
		case <-gone:
			log.Debug("Event client disconnected")
			return
		}
	}
}

func (h *EventsHandler) send(conn *websocket.Conn, ev app.Event) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}
