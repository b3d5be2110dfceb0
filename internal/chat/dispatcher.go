package chat

import (
	"context"
	"log/slog"

	"github.com/johndosdos/recipechat/internal/model"
)

// Dispatcher hands broadcast events to receivers connected to this instance.
type Dispatcher struct {
	instance string
	registry *Registry
	metrics  *Metrics
}

func NewDispatcher(instance string, registry *Registry, metrics *Metrics) *Dispatcher {
	return &Dispatcher{
		instance: instance,
		registry: registry,
		metrics:  metrics,
	}
}

// HandleEvent pushes ev to its receiver if they are connected here. Events
// this instance published were already delivered locally by the relay and
// are skipped. Nothing is ever republished.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev model.Event) {
	if ev.Origin == d.instance {
		d.metrics.incEchoSkipped()
		return
	}

	pushed, err := push(d.registry, ev.Sender, ev.Receiver, ev.Body)
	if err != nil {
		d.metrics.incPushFailure()
		slog.WarnContext(ctx, "failed to push broadcast message",
			"error", err,
			"message_id", ev.ID.String(),
			"origin", ev.Origin,
			"receiver", ev.Receiver)
		return
	}
	if pushed {
		d.metrics.incBroadcast()
	}
}
