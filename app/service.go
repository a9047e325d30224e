// Package app composes the sensor, the broker client and the command worker
// into the running service.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/trena/config"
	"github.com/kilianp07/trena/core/command"
	"github.com/kilianp07/trena/core/events"
	"github.com/kilianp07/trena/core/factory"
	coremetrics "github.com/kilianp07/trena/core/metrics"
	coremon "github.com/kilianp07/trena/core/monitoring"
	coremqtt "github.com/kilianp07/trena/core/mqtt"
	"github.com/kilianp07/trena/core/sensor"
	"github.com/kilianp07/trena/infra/logger"
	"github.com/kilianp07/trena/infra/metrics"
	"github.com/kilianp07/trena/infra/monitoring"
	"github.com/kilianp07/trena/infra/mqtt"
	"github.com/kilianp07/trena/infra/network"
	"github.com/kilianp07/trena/internal/eventbus"

	// sensor drivers
	_ "github.com/kilianp07/trena/infra/sensors"
)

const busBuffer = 64

// transport is the broker side of the service.
type transport interface {
	coremqtt.Client
	command.Publisher
}

// Service answers measure commands received from the broker.
type Service struct {
	cfg    *config.Config
	log    logger.Logger
	ranger sensor.Ranger
	client transport
	sink   coremetrics.MetricsSink
	bus    *eventbus.Bus[events.Event]
	worker *command.Worker

	waitNetwork func(ctx context.Context) error
	closeOnce   sync.Once
}

// New creates a Service from the configuration. A sensor that fails to
// initialize does not prevent start-up; every measurement then fails.
func New(cfg *config.Config) (*Service, error) {
	if err := logger.Configure(cfg.Logging); err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	log := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	ranger := openSensor(cfg.Sensor, log)

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = ranger.Close()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	bus := eventbus.New[events.Event](busBuffer)
	client, err := mqtt.NewPahoClient(cfg.MQTT, bus)
	if err != nil {
		_ = ranger.Close()
		return nil, fmt.Errorf("mqtt client: %w", err)
	}
	return newService(cfg, ranger, client, sink, bus, log)
}

func newService(cfg *config.Config, ranger sensor.Ranger, client transport, sink coremetrics.MetricsSink, bus *eventbus.Bus[events.Event], log logger.Logger) (*Service, error) {
	h, err := command.NewHandler(ranger, client, cfg.MQTT.ResultTopic, logger.New("command"), bus)
	if err != nil {
		return nil, fmt.Errorf("command handler: %w", err)
	}
	s := &Service{
		cfg:    cfg,
		log:    log,
		ranger: ranger,
		client: client,
		sink:   sink,
		bus:    bus,
		worker: command.NewWorker(h, cfg.Command.QueueSize, logger.New("command_worker")),
	}
	s.waitNetwork = func(ctx context.Context) error {
		return network.WaitReady(ctx, cfg.Network, cfg.MQTT.BrokerHost(), logger.New("network"))
	}
	return s, nil
}

func openSensor(mc factory.ModuleConfig, log logger.Logger) sensor.Ranger {
	r, err := sensor.New(mc)
	if err != nil {
		log.Errorf("sensor init failed, measurements will fail: %v", err)
		coremon.CaptureException(err, map[string]string{"component": "sensor", "driver": mc.Type})
		return sensor.Unavailable{Cause: err}
	}
	log.Infof("sensor %s ready", mc.Type)
	return r
}

// Run waits for the network, then serves commands until ctx is done or the
// broker client fails.
func (s *Service) Run(ctx context.Context) error {
	defer coremon.Recover()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	collected := metrics.StartEventCollector(runCtx, s.bus, s.sink, logger.New("metrics"))
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(runCtx, addr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	if err := s.waitNetwork(runCtx); err != nil {
		cancel()
		<-collected
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.worker.Run(runCtx)
	}()

	err := s.client.Run(runCtx, func(_ string, payload []byte) {
		s.worker.Enqueue(runCtx, payload)
	})
	cancel()
	wg.Wait()
	<-collected
	if err != nil {
		s.log.Errorf("mqtt client stopped: %v", err)
		coremon.CaptureException(err, map[string]string{"component": "mqtt"})
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.client.Disconnect()
		err = s.ranger.Close()
		s.bus.Close()
		closeSink(s.sink)
		coremon.Flush(2 * time.Second)
		if lerr := logger.Close(); err == nil {
			err = lerr
		}
	})
	return err
}

func closeSink(s coremetrics.MetricsSink) {
	switch v := s.(type) {
	case *coremetrics.MultiSink:
		for _, inner := range v.Sinks {
			closeSink(inner)
		}
	case interface{ Close() }:
		v.Close()
	}
}
