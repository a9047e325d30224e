package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/trena/core/events"
	coremqtt "github.com/kilianp07/trena/core/mqtt"
	"github.com/kilianp07/trena/infra/logger"
	"github.com/kilianp07/trena/internal/eventbus"
)

// pahoClient is the subset of paho.Client used here.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoClient implements core mqtt.Client using Eclipse Paho. Paho's own
// auto-reconnect is disabled: Run owns the reconnect loop so that every
// attempt uses a fresh client ID and a fixed delay.
type PahoClient struct {
	cfg    Config
	logger logger.Logger
	bus    eventbus.Publisher[events.Event]
	sleep  func(ctx context.Context, d time.Duration) error

	mu      sync.RWMutex
	cli     pahoClient
	gen     uint64 // current connect attempt; callbacks of older attempts are stale
	handler coremqtt.MessageHandler
	lost    chan error
}

var _ coremqtt.Client = (*PahoClient)(nil)

// NewPahoClient validates the configuration. It does not connect; see Run.
func NewPahoClient(cfg Config, bus eventbus.Publisher[events.Event]) (*PahoClient, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if bus == nil {
		bus = eventbus.Nop[events.Event]{}
	}
	return &PahoClient{
		cfg:    cfg,
		logger: logger.New("mqtt_client"),
		bus:    bus,
		sleep:  sleepCtx,
		lost:   make(chan error, 1),
	}, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config, clientID string) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(cfg.connectTimeout())
	opts.SetKeepAlive(time.Duration(cfg.KeepAliveSeconds) * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// Connect blocks until a session is established or ctx is done. Failed
// attempts are retried after the fixed reconnect delay, without limit.
func (p *PahoClient) Connect(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		clientID := p.cfg.NewClientID()
		opts, err := NewClientOptions(p.cfg, clientID)
		if err != nil {
			return fmt.Errorf("client options: %w", err)
		}
		gen := p.nextGen()
		opts.SetOnConnectHandler(func(c paho.Client) { p.onConnect(gen, c) })
		opts.SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(gen, err) })

		p.logger.Infof("connecting to %s as %s (attempt %d)", p.cfg.Broker, clientID, attempt)
		cli := newMQTTClient(opts)
		err = waitToken(cli.Connect(), p.cfg.connectTimeout())
		p.bus.Publish(events.ConnectionEvent{
			ClientID:  clientID,
			Attempt:   attempt,
			Connected: err == nil,
			Err:       err,
			Time:      time.Now(),
		})
		if err == nil {
			p.mu.Lock()
			p.cli = cli
			p.mu.Unlock()
			p.logger.Infof("MQTT connected")
			return nil
		}
		// A timed-out attempt may still complete inside paho; abandon it.
		p.nextGen()
		p.mu.Lock()
		if p.cli == cli {
			p.cli = nil
		}
		p.mu.Unlock()
		cli.Disconnect(0)
		p.logger.Warnf("connect failed: %v, retrying in %s", err, p.cfg.reconnectDelay())
		if err := p.sleep(ctx, p.cfg.reconnectDelay()); err != nil {
			return err
		}
	}
}

// Run keeps the session alive until ctx is done. The handler receives every
// message on the command topic.
func (p *PahoClient) Run(ctx context.Context, h coremqtt.MessageHandler) error {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
	for {
		p.drainLost()
		if err := p.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			p.Disconnect()
			return nil
		case err := <-p.lost:
			p.logger.Warnf("session lost: %v", err)
			p.dropClient()
		}
	}
}

// Publish sends payload on topic with the result QoS.
func (p *PahoClient) Publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.RLock()
	cli := p.cli
	p.mu.RUnlock()
	if cli == nil || !cli.IsConnected() {
		return coremqtt.ErrNotConnected
	}
	token := cli.Publish(topic, p.cfg.qos("result"), false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	p.mu.Lock()
	cli := p.cli
	p.cli = nil
	p.gen++
	p.mu.Unlock()
	if cli != nil && cli.IsConnected() {
		cli.Disconnect(250)
	}
}

func (p *PahoClient) nextGen() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	return p.gen
}

func (p *PahoClient) current(gen uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.gen == gen
}

func (p *PahoClient) onConnect(gen uint64, c paho.Client) {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		p.logger.Warnf("closing late session of an abandoned connect attempt")
		c.Disconnect(0)
		return
	}
	// Publishing must work as soon as the subscription can deliver.
	p.cli = c
	p.mu.Unlock()

	qos := p.cfg.qos("command")
	token := c.Subscribe(p.cfg.CommandTopic, qos, p.onMessage)
	if err := waitToken(token, p.cfg.connectTimeout()); err != nil {
		p.logger.Errorf("subscribe error: %v", err)
		p.signalLost(gen, fmt.Errorf("subscribe %s: %w", p.cfg.CommandTopic, err))
		return
	}
	p.logger.Infof("subscribed to %s", p.cfg.CommandTopic)
}

func (p *PahoClient) onConnectionLost(gen uint64, err error) {
	if !p.current(gen) {
		p.logger.Debugf("ignoring loss of a stale session: %v", err)
		return
	}
	p.logger.Errorf("connection lost: %v", err)
	p.bus.Publish(events.ConnectionLostEvent{Err: err, Time: time.Now()})
	p.signalLost(gen, err)
}

func (p *PahoClient) onMessage(_ paho.Client, msg paho.Message) {
	p.logger.Infow("message received", map[string]any{
		"topic":   msg.Topic(),
		"payload": string(msg.Payload()),
	})
	p.mu.RLock()
	h := p.handler
	p.mu.RUnlock()
	if h != nil {
		h(msg.Topic(), msg.Payload())
	}
}

func (p *PahoClient) signalLost(gen uint64, err error) {
	if !p.current(gen) {
		return
	}
	select {
	case p.lost <- err:
	default:
	}
}

func (p *PahoClient) drainLost() {
	for {
		select {
		case <-p.lost:
		default:
			return
		}
	}
}

func (p *PahoClient) dropClient() {
	p.mu.Lock()
	cli := p.cli
	p.cli = nil
	p.gen++
	p.mu.Unlock()
	if cli != nil {
		cli.Disconnect(0)
	}
}

func waitToken(t paho.Token, timeout time.Duration) error {
	if !t.WaitTimeout(timeout) {
		return coremqtt.ErrTimeout
	}
	return t.Error()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
