package monitoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/trena/config"
	coremon "github.com/kilianp07/trena/core/monitoring"
)

func TestNewSentryMonitorWithoutDSN(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestNewSentryMonitorInvalidDSN(t *testing.T) {
	_, err := NewSentryMonitor(config.SentryConfig{DSN: "::not a dsn"})
	assert.Error(t, err)
}

func TestSentryMonitorCapturesWithTags(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []*sentry.Event
	)
	m, err := newSentryMonitor(config.SentryConfig{DSN: "https://public@example.com/1", Environment: "test"},
		func(ev *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			sent = append(sent, ev)
			mu.Unlock()
			return nil
		})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sentry.Init(sentry.ClientOptions{}) })

	m.CaptureException(nil, nil)
	m.CaptureException(errors.New("i2c nack"), map[string]string{"component": "sensor"})
	m.CapturePanic("boom")
	m.Flush(time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 2)
	assert.Equal(t, "sensor", sent[0].Tags["component"])
	assert.Equal(t, "test", sent[0].Environment)
}
