package command

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/trena/core/events"
	"github.com/kilianp07/trena/core/logger"
	"github.com/kilianp07/trena/core/monitoring"
	"github.com/kilianp07/trena/core/sensor"
	"github.com/kilianp07/trena/internal/eventbus"
)

// Handler answers measure commands with one reading each.
type Handler struct {
	ranger sensor.Ranger
	pub    Publisher
	topic  string
	log    logger.Logger
	bus    eventbus.Publisher[events.Event]

	mu  sync.Mutex
	now func() time.Time
}

// NewHandler creates a Handler publishing results on resultTopic.
// A nil logger or bus disables logging or event publication.
func NewHandler(r sensor.Ranger, pub Publisher, resultTopic string, log logger.Logger, bus eventbus.Publisher[events.Event]) (*Handler, error) {
	if r == nil {
		return nil, fmt.Errorf("ranger is required")
	}
	if pub == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if resultTopic == "" {
		return nil, fmt.Errorf("result topic is required")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if bus == nil {
		bus = eventbus.Nop[events.Event]{}
	}
	return &Handler{ranger: r, pub: pub, topic: resultTopic, log: log, bus: bus, now: time.Now}, nil
}

// Handle processes one inbound payload. It returns false for ignored payloads.
// For a measure command it returns true together with any measurement or
// publish error. A failed measurement is answered with OutOfRange.
func (h *Handler) Handle(ctx context.Context, payload []byte) (bool, error) {
	if !IsMeasure(payload) {
		h.log.Debugw("ignoring payload", map[string]any{"payload": string(payload)})
		return false, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ev := events.MeasurementEvent{CommandID: uuid.NewString()}
	start := h.now()
	h.log.Infof("measuring (command %s)", ev.CommandID)
	reading, err := h.ranger.Measure(ctx)
	ev.Duration = h.now().Sub(start)
	ev.Reading = reading
	if err != nil {
		// The controller still gets its single reply; no distance is available.
		ev.Err = fmt.Errorf("measure: %w", err)
		ev.Payload = OutOfRange
		monitoring.CaptureException(err, map[string]string{"component": "command", "command_id": ev.CommandID})
		if perr := h.pub.Publish(ctx, h.topic, []byte(ev.Payload)); perr != nil {
			ev.Err = errors.Join(ev.Err, fmt.Errorf("publish: %w", perr))
		}
		ev.Time = h.now()
		h.bus.Publish(ev)
		return true, ev.Err
	}

	ev.Payload = Result(reading)
	h.log.Infow("distance", map[string]any{
		"command_id": ev.CommandID,
		"result":     ev.Payload,
		"status":     reading.Status.String(),
		"range_mm":   reading.RangeMilliMeter,
	})
	if err := h.pub.Publish(ctx, h.topic, []byte(ev.Payload)); err != nil {
		ev.Err = fmt.Errorf("publish: %w", err)
		ev.Time = h.now()
		h.bus.Publish(ev)
		return true, ev.Err
	}
	ev.Time = h.now()
	h.bus.Publish(ev)
	return true, nil
}
