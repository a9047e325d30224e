package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `mqtt:
  broker: "tcp://localhost:1883"
  client_id_prefix: "bench-"
  username: "user"
  password: "pass"
  command_topic: "lab/cmd"
  result_topic: "lab/res"
  reconnect_delay_ms: 2000
  qos:
    result: 1
sensor:
  type: "fake"
  conf:
    distance_mm: 250
network:
  interface: "wlan0"
command:
  queue_size: 4
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: "prometheus"
logging:
  level: "debug"
sentry:
  environment: "bench"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id_prefix", cfg.MQTT.ClientIDPrefix, "bench-"},
		{"username", cfg.MQTT.Username, "user"},
		{"password", cfg.MQTT.Password, "pass"},
		{"command_topic", cfg.MQTT.CommandTopic, "lab/cmd"},
		{"result_topic", cfg.MQTT.ResultTopic, "lab/res"},
		{"reconnect_delay_ms", cfg.MQTT.ReconnectDelayMS, 2000},
		{"qos.result", cfg.MQTT.QoS["result"], byte(1)},
		{"sensor.type", cfg.Sensor.Type, "fake"},
		{"network.interface", cfg.Network.Interface, "wlan0"},
		{"network.poll_interval_ms", cfg.Network.PollIntervalMS, 500},
		{"command.queue_size", cfg.Command.QueueSize, 4},
		{"metrics.prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "prometheus", true},
		{"logging.level", cfg.Logging.Level, "debug"},
		{"sentry.environment", cfg.Sentry.Environment, "bench"},
	}
	for _, c := range checks {
		assert.EqualValues(t, c.want, c.got, c.name)
	}
	assert.EqualValues(t, 250, cfg.Sensor.Conf["distance_mm"])
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.json", `{}`))
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker.hivemq.com:1883", cfg.MQTT.Broker)
	assert.Equal(t, "trena-", cfg.MQTT.ClientIDPrefix)
	assert.Equal(t, "projeto_trena/comando", cfg.MQTT.CommandTopic)
	assert.Equal(t, "projeto_trena/resultado", cfg.MQTT.ResultTopic)
	assert.Equal(t, 5000, cfg.MQTT.ReconnectDelayMS)
	assert.Equal(t, DefaultSensorType, cfg.Sensor.Type)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Metrics.Sinks)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("K_MQTT__BROKER", "tcp://10.0.0.5:1883")
	t.Setenv("K_MQTT__COMMAND_TOPIC", "env/cmd")
	t.Setenv("K_SENSOR__CONF__ADDRESS", "0x30")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.5:1883", cfg.MQTT.Broker)
	assert.Equal(t, "env/cmd", cfg.MQTT.CommandTopic)
	assert.Equal(t, "0x30", cfg.Sensor.Conf["address"])
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "mqtt:\n  broker: tcp://file:1883\n  reconnect_delay_ms: 2000\n")
	t.Setenv("K_MQTT__BROKER", "tcp://env:1883")
	t.Setenv("K_MQTT__RECONNECT_DELAY_MS", "750")
	t.Setenv("K_NETWORK__POLL_INTERVAL_MS", "250")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://env:1883", cfg.MQTT.Broker)
	assert.Equal(t, 750, cfg.MQTT.ReconnectDelayMS)
	assert.Equal(t, 250, cfg.Network.PollIntervalMS)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "config.toml", ""))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "mqtt:\n  broker: \"localhost\"\n"))
	assert.ErrorContains(t, err, "mqtt")

	_, err = Load(writeFile(t, "bad.yaml", "logging:\n  level: \"chatty\"\n"))
	assert.ErrorContains(t, err, "logging")

	_, err = Load(writeFile(t, "bad.yaml", "sentry:\n  traces_sample_rate: 2\n"))
	assert.ErrorContains(t, err, "sentry")

	_, err = Load(writeFile(t, "bad.yaml", "metrics:\n  sinks:\n    - conf: {}\n"))
	assert.ErrorContains(t, err, "sink 0")
}

func TestLoadExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "config.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "vl53l0x", cfg.Sensor.Type)
	assert.Equal(t, "projeto_trena/comando", cfg.MQTT.CommandTopic)
	assert.Equal(t, 5000, cfg.MQTT.ReconnectDelayMS)
	assert.Equal(t, 500, cfg.Network.PollIntervalMS)
	require.Len(t, cfg.Metrics.Sinks, 1)
	assert.Equal(t, "prometheus", cfg.Metrics.Sinks[0].Type)
}
