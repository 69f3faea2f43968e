// Package metrics records request counters and latencies on an in-memory
// sink. An operator can dump the sink with SIGUSR1 (see cmd/pipekv).
package metrics

import (
	"strings"
	"time"

	gometrics "github.com/armon/go-metrics"
)

// Recorder wraps a go-metrics instance that is private to one server.
type Recorder struct {
	service string
	m       *gometrics.Metrics
	sink    *gometrics.InmemSink
}

// New creates a Recorder whose keys are prefixed by service.
func New(service string) (*Recorder, error) {
	sink := gometrics.NewInmemSink(10*time.Second, time.Minute)
	cfg := gometrics.DefaultConfig(service)
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	m, err := gometrics.New(cfg, sink)
	if err != nil {
		return nil, err
	}
	return &Recorder{service: service, m: m, sink: sink}, nil
}

// Sink exposes the underlying sink, e.g. for gometrics.DefaultInmemSignal.
func (r *Recorder) Sink() *gometrics.InmemSink {
	return r.sink
}

// Request counts one handled request by command and status and samples
// how long it took since start.
func (r *Recorder) Request(command, status string, start time.Time) {
	if command == "" {
		command = "unknown"
	}
	r.m.IncrCounter([]string{"request", command, status}, 1)
	r.m.MeasureSince([]string{"request", command}, start)
}

// Evicted counts records removed by capacity enforcement.
func (r *Recorder) Evicted(strategy string) {
	r.m.IncrCounter([]string{"evicted", strategy}, 1)
}

// Connections reports the number of open client connections.
func (r *Recorder) Connections(n int) {
	r.m.SetGauge([]string{"connections"}, float32(n))
}

// ProtocolError counts connections torn down for undecodable frames.
func (r *Recorder) ProtocolError() {
	r.m.IncrCounter([]string{"protocol_error"}, 1)
}

// Counter sums a counter across every retained interval.
func (r *Recorder) Counter(key ...string) float64 {
	name := strings.Join(append([]string{r.service}, key...), ".")
	var total float64
	for _, interval := range r.sink.Data() {
		if v, ok := interval.Counters[name]; ok && v.AggregateSample != nil {
			total += v.Sum
		}
	}
	return total
}
