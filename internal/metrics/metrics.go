// Package metrics holds the Prometheus collectors of the server. A Metrics
// value satisfies engine.Recorder and livetail.Metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	discoverDuration  prometheus.Histogram
	discoverMatched   prometheus.Histogram
	permissiveClauses prometheus.Counter
	ingested          prometheus.Counter
	liveReconnects    prometheus.Counter
	liveFrames        prometheus.Counter
	liveRows          prometheus.Counter
	liveErrors        prometheus.Counter
	liveClients       prometheus.Gauge
	httpRequests      *prometheus.CounterVec
	ingestRejected    prometheus.Counter
	documents         prometheus.GaugeFunc
}

// New registers all collectors with reg. documents, when non-nil, reports
// the current table size.
func New(reg prometheus.Registerer, documents func() float64) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		discoverDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nanodiscover_discover_duration_seconds",
			Help:    "Discover pipeline duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}),
		discoverMatched: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "nanodiscover_discover_matched_documents",
			Help:    "Documents matched per discover request",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		permissiveClauses: f.NewCounter(prometheus.CounterOpts{
			Name: "nanodiscover_filter_permissive_clauses_total",
			Help: "Clauses that matched every document because they were malformed",
		}),
		ingested: f.NewCounter(prometheus.CounterOpts{
			Name: "nanodiscover_documents_ingested_total",
			Help: "Documents appended to the table",
		}),
		liveReconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "nanodiscover_livetail_reconnects_total",
			Help: "Live-tail reconnect attempts",
		}),
		liveFrames: f.NewCounter(prometheus.CounterOpts{
			Name: "nanodiscover_livetail_frames_total",
			Help: "Live-tail frames received",
		}),
		liveRows: f.NewCounter(prometheus.CounterOpts{
			Name: "nanodiscover_livetail_rows_total",
			Help: "Live-tail rows received",
		}),
		liveErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "nanodiscover_livetail_errors_total",
			Help: "Live-tail transport and payload errors",
		}),
		liveClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "nanodiscover_live_clients",
			Help: "Websocket clients subscribed to the live endpoint",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "nanodiscover_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		ingestRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "nanodiscover_ingest_rejected_total",
			Help: "Ingest requests rejected by the rate limiter",
		}),
	}
	if documents != nil {
		m.documents = f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "nanodiscover_documents",
			Help: "Documents currently held in memory",
		}, documents)
	}
	return m
}

func (m *Metrics) ObserveDiscover(d time.Duration, matched int) {
	m.discoverDuration.Observe(d.Seconds())
	m.discoverMatched.Observe(float64(matched))
}

func (m *Metrics) PermissiveClauses(n int) { m.permissiveClauses.Add(float64(n)) }
func (m *Metrics) DocumentsIngested(n int) { m.ingested.Add(float64(n)) }

func (m *Metrics) Reconnect() { m.liveReconnects.Inc() }

func (m *Metrics) FrameReceived(rows int) {
	m.liveFrames.Inc()
	m.liveRows.Add(float64(rows))
}

func (m *Metrics) StreamError() { m.liveErrors.Inc() }

func (m *Metrics) LiveClientAdded()   { m.liveClients.Inc() }
func (m *Metrics) LiveClientRemoved() { m.liveClients.Dec() }

func (m *Metrics) HTTPRequest(route string, code int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) IngestRejected() { m.ingestRejected.Inc() }
