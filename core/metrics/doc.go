// Package metrics defines interfaces for recording measurement and broker
// connection metrics. Sinks like PromSink and InfluxSink live in infra and can
// be combined with NewMultiSink. The factory helpers return a MultiSink
// automatically when multiple sinks are configured.
package metrics
