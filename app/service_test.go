package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/trena/config"
	"github.com/kilianp07/trena/core/events"
	"github.com/kilianp07/trena/core/factory"
	coremetrics "github.com/kilianp07/trena/core/metrics"
	coremqtt "github.com/kilianp07/trena/core/mqtt"
	"github.com/kilianp07/trena/core/sensor"
	"github.com/kilianp07/trena/infra/logger"
	"github.com/kilianp07/trena/infra/sensors"
	"github.com/kilianp07/trena/internal/eventbus"
)

type published struct {
	topic   string
	payload string
}

// fakeBroker stands in for the MQTT client: Run exposes the handler so the
// test can inject commands.
type fakeBroker struct {
	mu      sync.Mutex
	handler coremqtt.MessageHandler
	pubs    []published
	ready   chan struct{}
}

func newFakeBroker() *fakeBroker { return &fakeBroker{ready: make(chan struct{})} }

func (f *fakeBroker) Run(ctx context.Context, h coremqtt.MessageHandler) error {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
	close(f.ready)
	<-ctx.Done()
	return nil
}

func (f *fakeBroker) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pubs = append(f.pubs, published{topic: topic, payload: string(payload)})
	return nil
}

func (f *fakeBroker) Disconnect() {}

func (f *fakeBroker) deliver(payload string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h("projeto_trena/comando", []byte(payload))
}

func (f *fakeBroker) published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.pubs...)
}

type countingSink struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *countingSink) RecordMeasurement(ev coremetrics.MeasurementEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, ev.Outcome)
	return nil
}

func (c *countingSink) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.outcomes...)
}

func testConfig() *config.Config {
	cfg := &config.Config{Sensor: factory.ModuleConfig{Type: "fake"}}
	cfg.SetDefaults()
	return cfg
}

// startService runs a service against a fakeBroker. The returned stop
// function cancels Run and returns its error; it may be called repeatedly.
func startService(t *testing.T, ranger sensor.Ranger) (*fakeBroker, *countingSink, func() error) {
	t.Helper()
	broker := newFakeBroker()
	sink := &countingSink{}
	svc, err := newService(testConfig(), ranger, broker, sink, eventbus.New[events.Event](16), logger.NopLogger{})
	require.NoError(t, err)
	svc.waitNetwork = func(context.Context) error { return nil }

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	var runErr error
	go func() {
		runErr = svc.Run(ctx)
		close(finished)
	}()
	stop := func() error {
		cancel()
		select {
		case <-finished:
		case <-time.After(time.Second):
			t.Fatal("Run did not return")
		}
		return runErr
	}
	t.Cleanup(func() {
		_ = stop()
		_ = svc.Close()
	})
	select {
	case <-broker.ready:
	case <-time.After(time.Second):
		t.Fatal("client not started")
	}
	return broker, sink, stop
}

func TestServiceAnswersMeasureCommand(t *testing.T) {
	broker, sink, _ := startService(t, sensors.NewFake(sensors.FakeConfig{DistanceMM: 457}))

	broker.deliver("MEDIR")
	require.Eventually(t, func() bool { return len(broker.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, published{topic: "projeto_trena/resultado", payload: "457"}, broker.published()[0])
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{coremetrics.OutcomeOK}, sink.all())
}

func TestServiceIgnoresOtherPayloads(t *testing.T) {
	broker, _, _ := startService(t, sensors.NewFake(sensors.FakeConfig{}))

	for _, p := range []string{"medir", "MEDIR ", "", "LER"} {
		broker.deliver(p)
	}
	broker.deliver("MEDIR")
	require.Eventually(t, func() bool { return len(broker.published()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, broker.published(), 1)
}

func TestServiceOutOfRange(t *testing.T) {
	broker, sink, _ := startService(t, sensors.NewFake(sensors.FakeConfig{OutOfRange: true}))

	broker.deliver("MEDIR")
	require.Eventually(t, func() bool { return len(broker.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Objeto fora de alcance", broker.published()[0].payload)
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, coremetrics.OutcomeOutOfRange, sink.all()[0])
}

func TestServiceUnavailableSensorStillReplies(t *testing.T) {
	broker, sink, _ := startService(t, sensor.Unavailable{Cause: errors.New("no device")})

	broker.deliver("MEDIR")
	require.Eventually(t, func() bool { return len(broker.published()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, published{topic: "projeto_trena/resultado", payload: "Objeto fora de alcance"}, broker.published()[0])
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, coremetrics.OutcomeError, sink.all()[0])
}

func TestServiceBurstRepliesOncePerCommand(t *testing.T) {
	broker, _, _ := startService(t, sensors.NewFake(sensors.FakeConfig{DistanceMM: 300}))

	const burst = 30
	for i := 0; i < burst; i++ {
		broker.deliver("MEDIR")
	}
	require.Eventually(t, func() bool { return len(broker.published()) == burst }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, broker.published(), burst)
}

// failingBroker returns from Run immediately, like a client whose options
// cannot be built.
type failingBroker struct{ err error }

func (f failingBroker) Run(context.Context, coremqtt.MessageHandler) error { return f.err }
func (failingBroker) Publish(context.Context, string, []byte) error       { return nil }
func (failingBroker) Disconnect()                                          {}

func TestServiceRunReturnsClientError(t *testing.T) {
	clientErr := errors.New("client options: read ca bundle: no such file")
	svc, err := newService(testConfig(), sensors.NewFake(sensors.FakeConfig{}), failingBroker{err: clientErr}, coremetrics.NopSink{}, eventbus.New[events.Event](1), logger.NopLogger{})
	require.NoError(t, err)
	svc.waitNetwork = func(context.Context) error { return nil }

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, clientErr)
	case <-time.After(time.Second):
		t.Fatal("Run still blocked after the client failed")
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	_, _, stop := startService(t, sensors.NewFake(sensors.FakeConfig{}))
	assert.NoError(t, stop())
}

func TestServiceNetworkWaitCancelled(t *testing.T) {
	svc, err := newService(testConfig(), sensors.NewFake(sensors.FakeConfig{}), newFakeBroker(), coremetrics.NopSink{}, eventbus.New[events.Event](1), logger.NopLogger{})
	require.NoError(t, err)
	svc.waitNetwork = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, svc.Run(ctx))
}

func TestNewFallsBackToUnavailableSensor(t *testing.T) {
	cfg := testConfig()
	cfg.Sensor = factory.ModuleConfig{Type: "laser9000"}
	svc, err := New(cfg)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.ranger.Measure(context.Background())
	assert.ErrorIs(t, err, sensor.ErrNotInitialized)
}

func TestNewRejectsUnknownSink(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "statsd"}}
	_, err := New(cfg)
	assert.ErrorContains(t, err, "metrics sink")
}
