package metrics

import (
	"context"

	"github.com/kilianp07/trena/core/events"
	"github.com/kilianp07/trena/core/logger"
	coremetrics "github.com/kilianp07/trena/core/metrics"
	"github.com/kilianp07/trena/core/sensor"
	"github.com/kilianp07/trena/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// events. The returned channel is closed once the collector has stopped,
// which happens when ctx is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.Event], sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("record %T: %v", ev, err)
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev events.Event) error {
	switch e := ev.(type) {
	case events.MeasurementEvent:
		return sink.RecordMeasurement(toMeasurement(e))
	case events.ConnectionEvent:
		if r, ok := sink.(coremetrics.ConnectionRecorder); ok {
			return r.RecordConnection(coremetrics.ConnectionEvent{
				ClientID:  e.ClientID,
				Attempt:   e.Attempt,
				Connected: e.Connected,
				Error:     errString(e.Err),
				Time:      e.Time,
			})
		}
	case events.ConnectionLostEvent:
		if r, ok := sink.(coremetrics.ConnectionLossRecorder); ok {
			return r.RecordConnectionLost(e.Time)
		}
	}
	return nil
}

func toMeasurement(e events.MeasurementEvent) coremetrics.MeasurementEvent {
	out := coremetrics.MeasurementEvent{
		CommandID:  e.CommandID,
		DistanceMM: e.Reading.RangeMilliMeter,
		Status:     uint8(e.Reading.Status),
		Outcome:    coremetrics.OutcomeOK,
		Payload:    e.Payload,
		Duration:   e.Duration,
		Error:      errString(e.Err),
		Time:       e.Time,
	}
	switch {
	case e.Err != nil:
		out.Outcome = coremetrics.OutcomeError
	case e.Reading.Status == sensor.StatusOutOfRange:
		out.Outcome = coremetrics.OutcomeOutOfRange
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
