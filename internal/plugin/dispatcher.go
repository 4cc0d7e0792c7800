package plugin

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/crabwatch/internal/app"
)

// Dispatcher runs the plugins subscribed to each pipeline event.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
	log      logrus.FieldLogger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(m *Manager, e *Executor, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{manager: m, executor: e, log: log}
}

// Run dispatches events until the channel closes or ctx is done. Plugins
// run one at a time in name order; events arriving meanwhile queue in the
// subscription buffer and overflow is dropped by the publisher.
func (d *Dispatcher) Run(ctx context.Context, events <-chan app.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.Dispatch(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch runs every plugin handling ev and returns how many succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, ev app.Event) int {
	ok := 0
	for _, p := range d.manager.For(string(ev.Type)) {
		log := d.log.WithFields(logrus.Fields{"plugin": p.Manifest.Name, "event": ev.Type})

		resp, err := d.executor.Execute(ctx, p, &Request{
			Event:  string(ev.Type),
			Path:   ev.Path,
			Kind:   ev.Kind,
			Reason: ev.Reason,
			Count:  ev.Count,
			Time:   ev.Time,
		})
		if err != nil {
			log.WithError(err).Warn("Plugin failed")
			continue
		}
		if !resp.Success {
			log.WithField("error", resp.Error).Warn("Plugin reported failure")
			continue
		}
		log.Debug("Plugin handled event")
		ok++
	}
	return ok
}
