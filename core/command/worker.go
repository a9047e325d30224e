package command

import (
	"context"

	"github.com/kilianp07/trena/core/logger"
)

const defaultQueueSize = 8

// Worker serializes inbound payloads so that measurements never overlap.
// The transport callback only blocks when more commands are pending than
// the queue holds.
type Worker struct {
	h     *Handler
	queue chan []byte
	log   logger.Logger
}

// NewWorker creates a Worker with a bounded queue.
func NewWorker(h *Handler, queueSize int, log logger.Logger) *Worker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Worker{h: h, queue: make(chan []byte, queueSize), log: log}
}

// Enqueue copies payload onto the queue, waiting while the queue is full.
// It returns false only when ctx is done before the payload was queued.
func (w *Worker) Enqueue(ctx context.Context, payload []byte) bool {
	p := make([]byte, len(payload))
	copy(p, payload)
	select {
	case w.queue <- p:
		return true
	default:
	}
	w.log.Debugf("command queue full, waiting")
	select {
	case w.queue <- p:
		return true
	case <-ctx.Done():
		w.log.Warnf("dropping payload %q: %v", string(payload), ctx.Err())
		return false
	}
}

// Run handles queued payloads one at a time until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-w.queue:
			if _, err := w.h.Handle(ctx, p); err != nil {
				w.log.Errorf("command failed: %v", err)
			}
		}
	}
}
