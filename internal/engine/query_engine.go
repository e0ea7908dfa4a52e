package engine

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coffersTech/nanodiscover/internal/logging"
	"github.com/coffersTech/nanodiscover/internal/model"
	"github.com/coffersTech/nanodiscover/internal/pkg/lucene"
)

// Recorder receives pipeline measurements. The metrics package provides
// the Prometheus implementation.
type Recorder interface {
	ObserveDiscover(d time.Duration, matched int)
	PermissiveClauses(n int)
	DocumentsIngested(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDiscover(time.Duration, int) {}
func (nopRecorder) PermissiveClauses(int)              {}
func (nopRecorder) DocumentsIngested(int)              {}

// SnapshotWriterFunc writes documents to a snapshot file. It keeps the
// engine independent of the storage package.
type SnapshotWriterFunc func(path string, docs []model.Document) error

// Config configures an Engine.
type Config struct {
	SnapshotPath  string        // empty disables Flush
	Writer        SnapshotWriterFunc
	Retention     time.Duration // zero keeps documents forever
	DefaultLimit  int
	BucketMinutes int
	Recorder      Recorder
	Logger        *slog.Logger
	Now           func() time.Time
}

// Engine runs the discover pipeline over a DocumentTable:
// translate the query, filter, then derive field stats and a histogram.
// Every call recomputes from the current snapshot; nothing is cached.
type Engine struct {
	table *DocumentTable
	cfg   Config
	rec   Recorder
	log   *slog.Logger
	now   func() time.Time
}

// New creates an Engine over table.
func New(table *DocumentTable, cfg Config) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 500
	}
	if cfg.BucketMinutes <= 0 {
		cfg.BucketMinutes = 1
	}
	e := &Engine{
		table: table,
		cfg:   cfg,
		rec:   cfg.Recorder,
		log:   logging.Default(cfg.Logger).With("component", "engine"),
		now:   cfg.Now,
	}
	if e.rec == nil {
		e.rec = nopRecorder{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Table returns the underlying document table.
func (e *Engine) Table() *DocumentTable {
	return e.table
}

// Request describes one discover computation.
type Request struct {
	// Query is Lucene-style text. It is read in flat mode unless Nested
	// is set, in which case it must parse as a full expression.
	Query  string `json:"query"`
	Nested bool   `json:"nested,omitempty"`

	// FreeText is a case-insensitive substring over message, service,
	// level, tenant and the attributes.
	FreeText string `json:"freeText,omitempty"`

	// Clauses are structured filters ANDed with the query.
	Clauses []model.Clause `json:"clauses,omitempty"`

	TimeRange     model.TimeRange `json:"timeRange"`
	BucketMinutes int             `json:"bucketMinutes,omitempty"`
	Limit         int             `json:"limit,omitempty"`
	StatsField    string          `json:"statsField,omitempty"`
}

// Result is the output of Discover.
type Result struct {
	Documents    []model.Document                `json:"documents"`
	Total        int                             `json:"total"`
	Fields       []model.FieldStat               `json:"fields"`
	Histogram    []model.HistogramBucket         `json:"histogram"`
	Distribution []model.ValueDistributionBucket `json:"distribution,omitempty"`
	Warnings     []string                        `json:"warnings,omitempty"`
	Parsed       *model.ParsedQuery              `json:"parsed,omitempty"`
	TookMs       int64                           `json:"tookMs"`
}

// Discover filters the current documents and derives stats and a histogram
// from the matches. Only a nested query that fails to parse returns an
// error; everything else degrades to warnings.
func (e *Engine) Discover(req Request) (Result, error) {
	start := e.now()
	docs := e.table.Snapshot()

	var (
		matched  []model.Document
		parsed   *model.ParsedQuery
		warnings []string
		clauses  = slices.Clone(req.Clauses)
	)

	if strings.TrimSpace(req.Query) != "" {
		warnings = append(warnings, lucene.Validate(req.Query)...)
	}

	if req.Nested && strings.TrimSpace(req.Query) != "" {
		node, err := lucene.ParseExpr(req.Query)
		if err != nil {
			return Result{}, err
		}
		if pq, ok := lucene.Flatten(node); ok {
			parsed = &pq
			clauses = append(clauses, pq.Clauses...)
		}
		matched = ApplyExpr(docs, req.TimeRange, req.FreeText, node)
		matched = Apply(matched, model.TimeRange{}, "", req.Clauses)
	} else {
		pq := lucene.Parse(req.Query)
		parsed = &pq
		clauses = append(clauses, pq.Clauses...)
		matched = ApplyQuery(docs, req.TimeRange, req.FreeText, pq)
		matched = Apply(matched, model.TimeRange{}, "", req.Clauses)
	}

	permissive := CheckClauses(clauses)
	if len(permissive) > 0 {
		e.rec.PermissiveClauses(len(permissive))
		warnings = append(warnings, permissive...)
	}

	bucket := req.BucketMinutes
	if bucket <= 0 {
		bucket = e.cfg.BucketMinutes
	}
	limit := req.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	res := Result{
		Total:     len(matched),
		Fields:    BuildStats(matched),
		Histogram: Bucket(matched, req.TimeRange, bucket),
		Warnings:  warnings,
		Parsed:    parsed,
	}
	if req.StatsField != "" {
		res.Distribution = ValueDistribution(matched, req.StatsField)
	}
	res.Documents = matched
	if len(matched) > limit {
		res.Documents = matched[:limit:limit]
	}

	took := e.now().Sub(start)
	res.TookMs = took.Milliseconds()
	e.rec.ObserveDiscover(took, len(matched))
	return res, nil
}

// Ingest stores documents, filling in a missing id or timestamp, and
// returns them as stored.
func (e *Engine) Ingest(docs ...model.Document) []model.Document {
	if len(docs) == 0 {
		return nil
	}
	stored := make([]model.Document, len(docs))
	now := e.now().UTC()
	for i, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		if d.Timestamp == "" {
			d.Timestamp = model.FormatMillis(now.UnixMilli())
		}
		if d.Attributes == nil {
			d.Attributes = map[string]any{}
		}
		stored[i] = d
	}
	e.table.Append(stored...)
	e.rec.DocumentsIngested(len(stored))
	return stored
}
