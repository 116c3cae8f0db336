// Package metrics counts what the synthesis passes did. Every Recorder owns a
// private registry so concurrent runs and tests never share collectors.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "streamsynth"

// Recorder holds the synthesis collectors. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	fixes       *prometheus.CounterVec
	sweeps      prometheus.Counter
	rounds      *prometheus.GaugeVec
	channels    *prometheus.CounterVec
	maxRotation *prometheus.GaugeVec
	graphs      *prometheus.CounterVec
}

// New registers the synthesis collectors on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "fixes_total",
			Help:      "Buffering fixes applied by the multiplicity balancer.",
		}, []string{"kind"}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "balance",
			Name:      "sweeps_total",
			Help:      "Input-port sweeps performed by the multiplicity balancer.",
		}),
		rounds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "primepump",
			Name:      "rounds",
			Help:      "Prime-pump rounds in the latest schedule of a graph.",
		}, []string{"graph"}),
		channels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "channels_total",
			Help:      "Channels sized, by layout.",
		}, []string{"layout"}),
		maxRotation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "max_rotation",
			Help:      "Largest rotation length among the channels of a graph.",
		}, []string{"graph"}),
		graphs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graphs_total",
			Help:      "Graphs synthesized, by result.",
		}, []string{"result"}),
	}
	r.registry.MustRegister(r.fixes, r.sweeps, r.rounds, r.channels, r.maxRotation, r.graphs)
	return r
}

// Registry exposes the underlying registry, for example to serve it.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Fix counts one applied balancer fix.
func (r *Recorder) Fix(kind string) {
	if r == nil {
		return
	}
	r.fixes.WithLabelValues(kind).Inc()
}

// Sweep counts one balancer input sweep.
func (r *Recorder) Sweep() {
	if r == nil {
		return
	}
	r.sweeps.Inc()
}

// Rounds records the prime-pump round count of a graph.
func (r *Recorder) Rounds(graphID string, rounds int) {
	if r == nil {
		return
	}
	r.rounds.WithLabelValues(graphID).Set(float64(rounds))
}

// Channel counts one sized channel and tracks the largest rotation.
func (r *Recorder) Channel(graphID, layout string, rotation int) {
	if r == nil {
		return
	}
	r.channels.WithLabelValues(layout).Inc()
	gauge := r.maxRotation.WithLabelValues(graphID)
	var current dto.Metric
	if err := gauge.Write(&current); err == nil && current.GetGauge().GetValue() >= float64(rotation) {
		return
	}
	gauge.Set(float64(rotation))
}

// Graph counts one synthesized graph; result is "ok" or "error".
func (r *Recorder) Graph(result string) {
	if r == nil {
		return
	}
	r.graphs.WithLabelValues(result).Inc()
}

// Snapshot gathers every sample as name{labels} -> value.
func (r *Recorder) Snapshot() (map[string]float64, error) {
	out := map[string]float64{}
	if r == nil {
		return out, nil
	}
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("metrics: gather: %w", err)
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			out[sampleName(family.GetName(), metric.GetLabel())] = sampleValue(family.GetType(), metric)
		}
	}
	return out, nil
}

// Summary renders the snapshot as sorted key=value pairs for a log line.
func (r *Recorder) Summary() string {
	snapshot, err := r.Snapshot()
	if err != nil {
		return err.Error()
	}
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", key, snapshot[key]))
	}
	return strings.Join(parts, " ")
}

func sampleName(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	pairs := make([]string, 0, len(labels))
	for _, label := range labels {
		pairs = append(pairs, fmt.Sprintf("%s=%q", label.GetName(), label.GetValue()))
	}
	return name + "{" + strings.Join(pairs, ",") + "}"
}

func sampleValue(kind dto.MetricType, metric *dto.Metric) float64 {
	switch kind {
	case dto.MetricType_COUNTER:
		return metric.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return metric.GetGauge().GetValue()
	default:
		return metric.GetUntyped().GetValue()
	}
}
