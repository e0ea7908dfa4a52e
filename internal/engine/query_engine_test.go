package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coffersTech/nanodiscover/internal/model"
	"github.com/coffersTech/nanodiscover/internal/pkg/lucene"
)

type countingRecorder struct {
	mu         sync.Mutex
	discovers  int
	permissive int
	ingested   int
}

func (r *countingRecorder) ObserveDiscover(time.Duration, int) {
	r.mu.Lock()
	r.discovers++
	r.mu.Unlock()
}

func (r *countingRecorder) PermissiveClauses(n int) {
	r.mu.Lock()
	r.permissive += n
	r.mu.Unlock()
}

func (r *countingRecorder) DocumentsIngested(n int) {
	r.mu.Lock()
	r.ingested += n
	r.mu.Unlock()
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	table := NewDocumentTable(0)
	table.Append(sampleDocs()...)
	return New(table, cfg)
}

func TestDiscoverFlatQuery(t *testing.T) {
	rec := &countingRecorder{}
	e := newTestEngine(t, Config{Recorder: rec})

	res, err := e.Discover(Request{
		Query:      `service:payments`,
		StatsField: "region",
		Limit:      1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 {
		t.Errorf("Total = %d, want 2", res.Total)
	}
	if !equalIDs(res.Documents, "1") {
		t.Errorf("Documents = %v, want [1]", ids(res.Documents))
	}
	if res.Parsed == nil || len(res.Parsed.Clauses) != 1 {
		t.Errorf("Parsed = %+v", res.Parsed)
	}
	if len(res.Distribution) != 2 {
		t.Errorf("Distribution = %+v", res.Distribution)
	}
	if len(res.Histogram) != 2 {
		t.Errorf("Histogram = %+v", res.Histogram)
	}
	if _, ok := findStat(res.Fields, "latency_ms"); !ok {
		t.Errorf("Fields missing latency_ms: %+v", res.Fields)
	}
	if rec.discovers != 1 {
		t.Errorf("recorder saw %d discovers", rec.discovers)
	}
}

func TestDiscoverCombinesClausesAndFreeText(t *testing.T) {
	e := newTestEngine(t, Config{})
	res, err := e.Discover(Request{
		FreeText: "eu-west",
		Clauses:  []model.Clause{{ID: "x", Field: "level", Comparator: model.ComparatorIs, Value: "INFO"}},
		Query:    `_exists_:user`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(res.Documents, "3") {
		t.Errorf("Documents = %v, want [3]", ids(res.Documents))
	}
}

func TestDiscoverNested(t *testing.T) {
	e := newTestEngine(t, Config{})

	res, err := e.Discover(Request{Query: `level:ERROR OR (service:auth AND NOT level:WARN)`, Nested: true})
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(res.Documents, "2", "3") {
		t.Errorf("Documents = %v, want [2 3]", ids(res.Documents))
	}
	if res.Parsed != nil {
		t.Errorf("mixed operators should not flatten: %+v", res.Parsed)
	}

	_, err = e.Discover(Request{Query: `(level:ERROR`, Nested: true})
	var pe *lucene.ParseError
	if !errors.As(err, &pe) || !errors.Is(err, lucene.ErrUnmatchedParen) {
		t.Errorf("expected unmatched paren ParseError, got %v", err)
	}
}

func TestDiscoverWarnings(t *testing.T) {
	rec := &countingRecorder{}
	e := newTestEngine(t, Config{Recorder: rec})

	res, err := e.Discover(Request{
		Query:   `(level:ERROR`,
		Clauses: []model.Clause{{ID: "r", Field: "latency_ms", Comparator: model.ComparatorRange, Value: "bogus"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("Warnings = %q, want paren diagnostic and range warning", res.Warnings)
	}
	if res.Total != 1 {
		t.Errorf("malformed range should not filter: Total = %d", res.Total)
	}
	if rec.permissive != 1 {
		t.Errorf("permissive clauses recorded = %d, want 1", rec.permissive)
	}
}

func TestIngestFillsDefaults(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &countingRecorder{}
	e := New(NewDocumentTable(0), Config{Recorder: rec, Now: func() time.Time { return now }})

	stored := e.Ingest(model.Document{Message: "hi"}, model.Document{ID: "keep", Timestamp: "2024-01-01T00:00:00Z"})
	if len(stored) != 2 || e.Table().Len() != 2 {
		t.Fatalf("stored %d, table %d", len(stored), e.Table().Len())
	}
	if stored[0].ID == "" || stored[0].Timestamp != "2024-05-01T12:00:00.000Z" || stored[0].Attributes == nil {
		t.Errorf("defaults not applied: %+v", stored[0])
	}
	if stored[1].ID != "keep" || stored[1].Timestamp != "2024-01-01T00:00:00Z" {
		t.Errorf("explicit values overwritten: %+v", stored[1])
	}
	if rec.ingested != 2 {
		t.Errorf("ingested = %d", rec.ingested)
	}
}

func TestRunCleanerPrunes(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 1, 30, 0, time.UTC)
	e := newTestEngine(t, Config{Retention: time.Minute, Now: func() time.Time { return now }})

	if removed := e.purgeExpired(); removed != 1 {
		t.Errorf("purgeExpired removed %d, want 1", removed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.RunCleaner(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleaner did not stop on cancel")
	}
}

func TestFlushUsesWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snapshot.nano")
	var written []model.Document
	var writtenTo string
	e := newTestEngine(t, Config{
		SnapshotPath: path,
		Writer: func(p string, docs []model.Document) error {
			writtenTo = p
			written = docs
			return writeEmptyFile(p)
		},
	})

	if err := e.Flush(); err != nil {
		t.Fatal(err)
	}
	if writtenTo != path+".tmp" || len(written) != 4 {
		t.Errorf("writer called with %q and %d docs", writtenTo, len(written))
	}
	if !fileExists(path) || fileExists(path+".tmp") {
		t.Error("snapshot was not renamed into place")
	}
}

func TestFlushWithoutPathIsNoop(t *testing.T) {
	e := newTestEngine(t, Config{})
	if err := e.Flush(); err != nil {
		t.Errorf("Flush() = %v", err)
	}
}

func TestGetStats(t *testing.T) {
	e := newTestEngine(t, Config{})
	stats := e.GetStats()
	if stats.TotalDocuments != 4 {
		t.Errorf("TotalDocuments = %d", stats.TotalDocuments)
	}
	if stats.LevelDist["INFO"] != 2 || stats.LevelDist["ERROR"] != 1 || stats.LevelDist["WARN"] != 1 {
		t.Errorf("LevelDist = %v", stats.LevelDist)
	}
	if stats.TopServices["payments"] != 2 || stats.TopServices["auth"] != 2 {
		t.Errorf("TopServices = %v", stats.TopServices)
	}
	if stats.OldestDocument != "2024-05-01T10:00:00.000Z" || stats.NewestDocument != "2024-05-01T10:02:30.000Z" {
		t.Errorf("range = %s .. %s", stats.OldestDocument, stats.NewestDocument)
	}
}

func writeEmptyFile(path string) error {
	return os.WriteFile(path, nil, 0644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
