// Package metrics exports Prometheus collectors describing routing table
// construction and halo traffic, labelled by rank.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gridrouter"

// BuildStats summarizes one rank's routing table build
type BuildStats struct {
	Candidates     int // Ranks passing the bounding-sphere test
	Destinations   int // Ranks in the final table
	NeededCells    int // Halo cells this rank needs
	RequestedCells int // Cells other ranks asked this rank for
	SendIndices    int // Entries in the table's index buffer
	Duration       time.Duration
}

// Router holds the collectors. A nil *Router records nothing.
type Router struct {
	candidates   *prometheus.GaugeVec
	destinations *prometheus.GaugeVec
	neededCells  *prometheus.GaugeVec
	requested    *prometheus.GaugeVec
	sendIndices  *prometheus.GaugeVec
	mismatches   *prometheus.CounterVec
	buildSeconds *prometheus.HistogramVec
	haloValues   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Router, error) {
	labels := []string{"rank"}
	m := &Router{
		candidates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "candidate_neighbors",
			Help: "Ranks whose bounding sphere is within the discovery margin",
		}, labels),
		destinations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "destinations",
			Help: "Ranks in the routing table",
		}, labels),
		neededCells: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "needed_cells",
			Help: "Halo cells referenced by the local stencil",
		}, labels),
		requested: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "requested_cells",
			Help: "Cell IDs received from candidates in the request round",
		}, labels),
		sendIndices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "send_indices",
			Help: "Entries in the routing table index buffer",
		}, labels),
		mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "consistency_mismatches_total",
			Help: "Destinations that do not list this rank back",
		}, labels),
		buildSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "build_duration_seconds",
			Help:    "Wall time of routing table construction",
			Buckets: prometheus.ExponentialBuckets(1e-4, 4, 10),
		}, labels),
		haloValues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "halo_values_sent_total",
			Help: "Owned values sent by halo exchanges",
		}, labels),
	}

	for _, c := range []prometheus.Collector{
		m.candidates, m.destinations, m.neededCells, m.requested,
		m.sendIndices, m.mismatches, m.buildSeconds, m.haloValues,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveBuild records the outcome of one build
func (m *Router) ObserveBuild(rank int, s BuildStats) {
	if m == nil {
		return
	}
	r := strconv.Itoa(rank)
	m.candidates.WithLabelValues(r).Set(float64(s.Candidates))
	m.destinations.WithLabelValues(r).Set(float64(s.Destinations))
	m.neededCells.WithLabelValues(r).Set(float64(s.NeededCells))
	m.requested.WithLabelValues(r).Set(float64(s.RequestedCells))
	m.sendIndices.WithLabelValues(r).Set(float64(s.SendIndices))
	m.buildSeconds.WithLabelValues(r).Observe(s.Duration.Seconds())
}

// ObserveMismatches counts asymmetric destinations found by the consistency check
func (m *Router) ObserveMismatches(rank, n int) {
	if m == nil || n == 0 {
		return
	}
	m.mismatches.WithLabelValues(strconv.Itoa(rank)).Add(float64(n))
}

// ObserveHaloExchange counts values shipped by one halo exchange
func (m *Router) ObserveHaloExchange(rank, values int) {
	if m == nil {
		return
	}
	m.haloValues.WithLabelValues(strconv.Itoa(rank)).Add(float64(values))
}
