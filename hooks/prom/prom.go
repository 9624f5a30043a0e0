// Package prom exports cache events as Prometheus metrics.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	mongocache "github.com/drgatoxd/mongo-cache"
)

// Hooks holds all Prometheus metrics for a set of caches, labelled by namespace.
type Hooks struct {
	Hits         *prometheus.CounterVec
	Misses       *prometheus.CounterVec
	Creates      *prometheus.CounterVec
	Resyncs      *prometheus.CounterVec
	Evictions    *prometheus.CounterVec
	MirrorErrors *prometheus.CounterVec
	MirrorSize   *prometheus.GaugeVec
}

var _ mongocache.Hooks = (*Hooks)(nil)

// New creates and registers all metrics with the provided registry.
func New(reg prometheus.Registerer) *Hooks {
	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mongocache",
			Name:      name,
			Help:      help,
		}, []string{"ns"})
	}
	h := &Hooks{
		Hits:         counter("mirror_hits_total", "Point lookups answered from the mirror"),
		Misses:       counter("mirror_misses_total", "Point lookups that consulted the store"),
		Creates:      counter("created_total", "Documents inserted by the cache"),
		Resyncs:      counter("resyncs_total", "Mirror clear-and-repopulate cycles"),
		Evictions:    counter("evicted_total", "Documents removed from the mirror"),
		MirrorErrors: counter("mirror_errors_total", "Failed mirror writes"),
		MirrorSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mongocache",
			Name:      "mirror_resync_size",
			Help:      "Mirror size after the last resync",
		}, []string{"ns"}),
	}
	reg.MustRegister(h.Hits, h.Misses, h.Creates, h.Resyncs, h.Evictions, h.MirrorErrors, h.MirrorSize)
	return h
}

func (h *Hooks) MirrorHit(ns, _ string)  { h.Hits.WithLabelValues(ns).Inc() }
func (h *Hooks) MirrorMiss(ns, _ string) { h.Misses.WithLabelValues(ns).Inc() }
func (h *Hooks) Created(ns, _ string)    { h.Creates.WithLabelValues(ns).Inc() }

func (h *Hooks) Resynced(ns string, _, after int) {
	h.Resyncs.WithLabelValues(ns).Inc()
	h.MirrorSize.WithLabelValues(ns).Set(float64(after))
}

func (h *Hooks) Evicted(ns string, n int) { h.Evictions.WithLabelValues(ns).Add(float64(n)) }

func (h *Hooks) MirrorError(ns string, _ error) { h.MirrorErrors.WithLabelValues(ns).Inc() }
