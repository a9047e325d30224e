package metrics

import "github.com/kilianp07/trena/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
	// PrometheusAddr starts a /metrics endpoint when set, e.g. ":9100".
	PrometheusAddr string `json:"prometheus_addr"`
}
