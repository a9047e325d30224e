package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type mockToken struct{ err error }

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(_ time.Duration) bool { return true }
func (t *mockToken) Error() error                     { return t.err }
func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// stalledToken never completes, like a CONNECT the broker does not answer.
type stalledToken struct{ done chan struct{} }

func (t *stalledToken) Wait() bool                       { return false }
func (t *stalledToken) WaitTimeout(_ time.Duration) bool { return false }
func (t *stalledToken) Error() error                     { return nil }
func (t *stalledToken) Done() <-chan struct{}            { return t.done }

type mockMessage struct {
	topic   string
	payload []byte
}

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return m.topic }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.payload }
func (m mockMessage) Ack()              {}

type pubRecord struct {
	topic   string
	qos     byte
	payload string
}

// mockBroker hands out mockClients and decides the outcome of each Connect.
type mockBroker struct {
	mu          sync.Mutex
	clients     []*mockClient
	connectErrs []error
	stalled     int // number of leading Connect calls that never complete
	subErr      error
	onPublish   func(c *mockClient, topic string, payload string)
	onSubscribe func(c *mockClient, topic string)
}

func useMockBroker(t *testing.T, b *mockBroker) {
	t.Helper()
	orig := newMQTTClient
	newMQTTClient = b.newClient
	t.Cleanup(func() { newMQTTClient = orig })
}

func (b *mockBroker) newClient(o *paho.ClientOptions) pahoClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &mockClient{broker: b, opts: o, subs: map[string]paho.MessageHandler{}, subQoS: map[string]byte{}}
	b.clients = append(b.clients, c)
	return c
}

func (b *mockBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *mockBroker) client(i int) *mockClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clients[i]
}

func (b *mockBroker) stall() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stalled == 0 {
		return false
	}
	b.stalled--
	return true
}

func (b *mockBroker) nextConnectErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.connectErrs) == 0 {
		return nil
	}
	err := b.connectErrs[0]
	b.connectErrs = b.connectErrs[1:]
	return err
}

// mockClient implements paho.Client for tests.
type mockClient struct {
	broker *mockBroker
	opts   *paho.ClientOptions

	mu           sync.Mutex
	connected    bool
	disconnected bool
	subs         map[string]paho.MessageHandler
	subQoS       map[string]byte
	published    []pubRecord
}

func (m *mockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockClient) IsConnectionOpen() bool { return m.IsConnected() }

func (m *mockClient) Connect() paho.Token {
	if m.broker.stall() {
		return &stalledToken{done: make(chan struct{})}
	}
	if err := m.broker.nextConnectErr(); err != nil {
		return &mockToken{err: err}
	}
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &mockToken{}
}

func (m *mockClient) Disconnect(uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnected = true
}

func (m *mockClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	var p string
	switch v := payload.(type) {
	case string:
		p = v
	case []byte:
		p = string(v)
	}
	m.mu.Lock()
	m.published = append(m.published, pubRecord{topic: topic, qos: qos, payload: p})
	m.mu.Unlock()
	if m.broker.onPublish != nil {
		m.broker.onPublish(m, topic, p)
	}
	return &mockToken{}
}

func (m *mockClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	if m.broker.subErr != nil {
		return &mockToken{err: m.broker.subErr}
	}
	m.mu.Lock()
	m.subs[topic] = cb
	m.subQoS[topic] = qos
	m.mu.Unlock()
	if m.broker.onSubscribe != nil {
		m.broker.onSubscribe(m, topic)
	}
	return &mockToken{}
}

func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &mockToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &mockToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

func (m *mockClient) subscribed(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[topic]
	return ok
}

func (m *mockClient) deliver(topic, payload string) {
	m.mu.Lock()
	cb := m.subs[topic]
	m.mu.Unlock()
	if cb != nil {
		cb(m, mockMessage{topic: topic, payload: []byte(payload)})
	}
}

func (m *mockClient) lose(err error) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	if m.opts.OnConnectionLost != nil {
		m.opts.OnConnectionLost(m, err)
	}
}

// connectLate completes a connect attempt after the caller gave up on it.
func (m *mockClient) connectLate() {
	m.mu.Lock()
	m.connected = true
	m.disconnected = false
	m.mu.Unlock()
	if m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
}

func (m *mockClient) wasDisconnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnected
}

func (m *mockClient) publishes() []pubRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pubRecord(nil), m.published...)
}

var errRefused = errors.New("not Authorized")
