package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults matching the public broker and topics used by the remote app.
const (
	DefaultBroker         = "tcp://broker.hivemq.com:1883"
	DefaultClientIDPrefix = "trena-"
	DefaultCommandTopic   = "projeto_trena/comando"
	DefaultResultTopic    = "projeto_trena/resultado"
	DefaultReconnectDelay = 5 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultKeepAlive      = 15 * time.Second
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker string `json:"broker"`
	// ClientIDPrefix is completed with a random suffix on every connect attempt.
	ClientIDPrefix string          `json:"client_id_prefix"`
	Username       string          `json:"username"`
	Password       string          `json:"password"`
	UseTLS         bool            `json:"use_tls"`
	ClientCert     string          `json:"client_cert"`
	ClientKey      string          `json:"client_key"`
	CABundle       string          `json:"ca_bundle"`
	CommandTopic   string          `json:"command_topic"`
	ResultTopic    string          `json:"result_topic"`
	QoS            map[string]byte `json:"qos"`
	LWTTopic       string          `json:"lwt_topic"`
	LWTPayload     string          `json:"lwt_payload"`
	LWTQoS         byte            `json:"lwt_qos"`
	LWTRetain      bool            `json:"lwt_retain"`
	// ReconnectDelayMS is the fixed wait between connection attempts.
	ReconnectDelayMS int         `json:"reconnect_delay_ms"`
	ConnectTimeoutMS int         `json:"connect_timeout_ms"`
	KeepAliveSeconds int         `json:"keep_alive_seconds"`
	TLSConfig        *tls.Config `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Broker == "" {
		c.Broker = DefaultBroker
	}
	if c.ClientIDPrefix == "" {
		c.ClientIDPrefix = DefaultClientIDPrefix
	}
	if c.CommandTopic == "" {
		c.CommandTopic = DefaultCommandTopic
	}
	if c.ResultTopic == "" {
		c.ResultTopic = DefaultResultTopic
	}
	if c.ReconnectDelayMS <= 0 {
		c.ReconnectDelayMS = int(DefaultReconnectDelay / time.Millisecond)
	}
	if c.ConnectTimeoutMS <= 0 {
		c.ConnectTimeoutMS = int(DefaultConnectTimeout / time.Millisecond)
	}
	if c.KeepAliveSeconds <= 0 {
		c.KeepAliveSeconds = int(DefaultKeepAlive / time.Second)
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	u, err := url.Parse(c.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid broker address %q", c.Broker)
	}
	switch u.Scheme {
	case "tcp", "mqtt", "ssl", "tls", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
	if c.CommandTopic == "" || c.ResultTopic == "" {
		return fmt.Errorf("command_topic and result_topic are required")
	}
	if strings.ContainsAny(c.ResultTopic, "+#") {
		return fmt.Errorf("result_topic must not contain wildcards")
	}
	for k, q := range c.QoS {
		if q > 2 {
			return fmt.Errorf("invalid qos %d for %s", q, k)
		}
	}
	return nil
}

// BrokerHost returns the host name of the broker address.
func (c Config) BrokerHost() string {
	u, err := url.Parse(c.Broker)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// NewClientID returns the prefix followed by a random suffix.
func (c Config) NewClientID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return c.ClientIDPrefix + suffix
}

func (c Config) reconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

func (c Config) connectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

func (c Config) qos(name string) byte {
	if q, ok := c.QoS[name]; ok {
		return q
	}
	return 0
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
// Without client certificates only the CA bundle (or the system pool) is used.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.CABundle != "" {
		caBytes, err := os.ReadFile(c.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read ca: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, fmt.Errorf("no certificates in %s", c.CABundle)
		}
		cfg.RootCAs = pool
	}
	if c.ClientCert != "" || c.ClientKey != "" {
		if c.ClientCert == "" || c.ClientKey == "" {
			return nil, fmt.Errorf("tls config requires both client_cert and client_key")
		}
		cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}
