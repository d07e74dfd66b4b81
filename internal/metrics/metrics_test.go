package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveUpload(10, nil)
	m.ObserveDownload(nil)
	m.ObserveDelete(nil)
	m.ObserveReclaim(OutcomeDeleted)
	m.ObserveSweep(time.Second, 1, nil)
	m.ObserveCompensation(nil)
	m.ObserveHTTP("/", "GET", 200, time.Millisecond)
}

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveUpload(100, nil)
	m.ObserveUpload(5, errors.New("boom"))
	require.Equal(t, 1.0, testutil.ToFloat64(m.BlobUploads.WithLabelValues("success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.BlobUploads.WithLabelValues("error")))
	require.Equal(t, 100.0, testutil.ToFloat64(m.BlobUploadBytes))

	m.ObserveReclaim(OutcomeDeleted)
	m.ObserveReclaim(OutcomeDeleted)
	m.ObserveReclaim(OutcomeNotFound)
	require.Equal(t, 2.0, testutil.ToFloat64(m.ReclaimOutcomes.WithLabelValues(OutcomeDeleted)))

	m.ObserveSweep(time.Second, 3, nil)
	require.Equal(t, 3.0, testutil.ToFloat64(m.StaleRefsRepaired))
	require.Greater(t, testutil.ToFloat64(m.LastSweep), 0.0)

	m.ObserveHTTP("/media/{id}", "GET", 404, time.Millisecond)
	require.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/media/{id}", "GET", "4xx")))
}
