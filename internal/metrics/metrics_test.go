package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, func() float64 { return 42 })

	m.ObserveDiscover(3*time.Millisecond, 10)
	m.PermissiveClauses(2)
	m.DocumentsIngested(5)
	m.Reconnect()
	m.FrameReceived(7)
	m.StreamError()
	m.LiveClientAdded()
	m.HTTPRequest("/api/discover", 200)
	m.IngestRejected()

	fams := gather(t, reg)

	counters := map[string]float64{
		"nanodiscover_filter_permissive_clauses_total": 2,
		"nanodiscover_documents_ingested_total":        5,
		"nanodiscover_livetail_reconnects_total":       1,
		"nanodiscover_livetail_frames_total":           1,
		"nanodiscover_livetail_rows_total":             7,
		"nanodiscover_livetail_errors_total":           1,
		"nanodiscover_ingest_rejected_total":           1,
		"nanodiscover_http_requests_total":             1,
	}
	for name, want := range counters {
		mf, ok := fams[name]
		if !ok {
			t.Errorf("%s not registered", name)
			continue
		}
		if got := mf.GetMetric()[0].GetCounter().GetValue(); got != want {
			t.Errorf("%s = %v, want %v", name, got, want)
		}
	}

	if got := fams["nanodiscover_documents"].GetMetric()[0].GetGauge().GetValue(); got != 42 {
		t.Errorf("documents gauge = %v", got)
	}
	if got := fams["nanodiscover_live_clients"].GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("live clients = %v", got)
	}
	if got := fams["nanodiscover_discover_duration_seconds"].GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Errorf("discover samples = %v", got)
	}
}
