package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/trena/core/metrics"
	"github.com/kilianp07/trena/infra/logger"
)

const influxWriteTimeout = 5 * time.Second

// InfluxSink writes measurement and connection events to an InfluxDB
// instance using the official client. Points are write-only.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

var (
	_ coremetrics.MetricsSink            = (*InfluxSink)(nil)
	_ coremetrics.ConnectionRecorder     = (*InfluxSink)(nil)
	_ coremetrics.ConnectionLossRecorder = (*InfluxSink)(nil)
)

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: influxWriteTimeout}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx_sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), influxWriteTimeout)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordMeasurement writes one point per handled command.
func (s *InfluxSink) RecordMeasurement(ev coremetrics.MeasurementEvent) error {
	p := write.NewPointWithMeasurement("measurement").
		AddTag("outcome", ev.Outcome).
		AddTag("status", strconv.Itoa(int(ev.Status))).
		AddField("command_id", ev.CommandID).
		AddField("distance_mm", int64(ev.DistanceMM)).
		AddField("duration_ms", round3(ev.Duration.Seconds()*1000))
	if ev.Error != "" {
		p = p.AddField("error", ev.Error)
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordConnection writes a broker connection attempt.
func (s *InfluxSink) RecordConnection(ev coremetrics.ConnectionEvent) error {
	p := write.NewPointWithMeasurement("mqtt_connection").
		AddTag("connected", strconv.FormatBool(ev.Connected)).
		AddField("attempt", int64(ev.Attempt)).
		AddField("client_id", ev.ClientID)
	if ev.Error != "" {
		p = p.AddField("error", ev.Error)
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordConnectionLost writes a dropped session marker.
func (s *InfluxSink) RecordConnectionLost(at time.Time) error {
	p := write.NewPointWithMeasurement("mqtt_connection_lost").
		AddField("count", int64(1)).
		SetTime(at)
	return s.write(p)
}

// Close flushes and releases the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), influxWriteTimeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
