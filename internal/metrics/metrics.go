// Package metrics provides Prometheus collectors for the portal.
// A nil *Metrics is valid and records nothing, so services can be built
// without a registry in tests.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "showcase"

// Reclaim outcomes.
const (
	OutcomeDeleted    = "deleted"
	OutcomeReferenced = "referenced"
	OutcomeNotFound   = "not_found"
	OutcomeError      = "error"
)

// Metrics holds every collector exported by the portal.
type Metrics struct {
	BlobUploads       *prometheus.CounterVec
	BlobUploadBytes   prometheus.Counter
	BlobDownloads     *prometheus.CounterVec
	BlobDeletes       *prometheus.CounterVec
	ReclaimOutcomes   *prometheus.CounterVec
	SweepDuration     prometheus.Histogram
	SweepsTotal       *prometheus.CounterVec
	StaleRefsRepaired prometheus.Counter
	LastSweep         prometheus.Gauge
	Compensations     *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BlobUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "uploads_total",
			Help:      "Blob uploads by result.",
		}, []string{"result"}),
		BlobUploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "upload_bytes_total",
			Help:      "Bytes stored by successful uploads.",
		}),
		BlobDownloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "downloads_total",
			Help:      "Blob downloads by result.",
		}, []string{"result"}),
		BlobDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blob",
			Name:      "deletes_total",
			Help:      "Explicit blob deletes by result.",
		}, []string{"result"}),
		ReclaimOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reclaim",
			Name:      "attempts_total",
			Help:      "Orphan reclaim attempts by outcome.",
		}, []string{"outcome"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reclaim",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of full sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		SweepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reclaim",
			Name:      "sweeps_total",
			Help:      "Sweeps by result.",
		}, []string{"result"}),
		StaleRefsRepaired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reclaim",
			Name:      "stale_references_repaired_total",
			Help:      "Ledger entries removed because their blob was gone.",
		}),
		LastSweep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reclaim",
			Name:      "last_sweep_timestamp_seconds",
			Help:      "Unix time of the last completed sweep.",
		}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "compensations_total",
			Help:      "Undo actions run after failed multi-step writes, by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.BlobUploads,
			m.BlobUploadBytes,
			m.BlobDownloads,
			m.BlobDeletes,
			m.ReclaimOutcomes,
			m.SweepDuration,
			m.SweepsTotal,
			m.StaleRefsRepaired,
			m.LastSweep,
			m.Compensations,
			m.HTTPRequests,
			m.HTTPDuration,
		)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveUpload records an upload attempt.
func (m *Metrics) ObserveUpload(size int64, err error) {
	if m == nil {
		return
	}
	m.BlobUploads.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.BlobUploadBytes.Add(float64(size))
	}
}

// ObserveDownload records a download attempt.
func (m *Metrics) ObserveDownload(err error) {
	if m == nil {
		return
	}
	m.BlobDownloads.WithLabelValues(result(err)).Inc()
}

// ObserveDelete records an explicit delete.
func (m *Metrics) ObserveDelete(err error) {
	if m == nil {
		return
	}
	m.BlobDeletes.WithLabelValues(result(err)).Inc()
}

// ObserveReclaim records one reclaim attempt.
func (m *Metrics) ObserveReclaim(outcome string) {
	if m == nil {
		return
	}
	m.ReclaimOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveSweep records a finished sweep.
func (m *Metrics) ObserveSweep(d time.Duration, repaired int64, err error) {
	if m == nil {
		return
	}
	m.SweepsTotal.WithLabelValues(result(err)).Inc()
	if err != nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
	m.StaleRefsRepaired.Add(float64(repaired))
	m.LastSweep.SetToCurrentTime()
}

// ObserveCompensation records one undo action.
func (m *Metrics) ObserveCompensation(err error) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(result(err)).Inc()
}

// ObserveHTTP records a served request.
func (m *Metrics) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, statusClass(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
