package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coffersTech/nanodiscover/internal/model"
)

// DocumentTable is the in-memory document set shared by the document
// source, the live tail and the query path.
//
// The backing array is append-only: Snapshot hands out a slice capped at
// its current length, so later appends never show through to readers.
// Operations that drop documents (Replace, Prune, the size cap) build a
// fresh array instead of compacting in place.
type DocumentTable struct {
	mu   sync.RWMutex
	docs []model.Document

	// MaxDocuments caps the table; the oldest documents are dropped first.
	// Zero means unbounded.
	maxDocs int

	writeCounter int64   // atomic, documents appended since the last tick
	currentRate  float64 // documents per second
}

// NewDocumentTable creates an empty table holding at most maxDocs documents.
func NewDocumentTable(maxDocs int) *DocumentTable {
	return &DocumentTable{
		docs:    make([]model.Document, 0, 4096),
		maxDocs: maxDocs,
	}
}

// Append adds documents at the end of the table.
func (t *DocumentTable) Append(docs ...model.Document) {
	if len(docs) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.docs = append(t.docs, docs...)
	if t.maxDocs > 0 && len(t.docs) > t.maxDocs {
		t.docs = clone(t.docs[len(t.docs)-t.maxDocs:])
	}
	atomic.AddInt64(&t.writeCounter, int64(len(docs)))
}

// Replace swaps the whole document set, keeping nothing from before.
func (t *DocumentTable) Replace(docs []model.Document) {
	next := clone(docs)
	if t.maxDocs > 0 && len(next) > t.maxDocs {
		next = next[len(next)-t.maxDocs:]
	}
	t.mu.Lock()
	t.docs = next
	t.mu.Unlock()
}

// Snapshot returns an immutable view of the current documents.
func (t *DocumentTable) Snapshot() []model.Document {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := len(t.docs)
	return t.docs[:n:n]
}

// Len returns the number of documents.
func (t *DocumentTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.docs)
}

// Prune drops documents older than before and returns how many were
// removed. Documents with an unparseable timestamp are kept.
func (t *DocumentTable) Prune(before time.Time) int {
	cutoff := before.UnixMilli()

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := make([]model.Document, 0, len(t.docs))
	for i := range t.docs {
		if ms, ok := t.docs[i].UnixMilli(); ok && ms < cutoff {
			continue
		}
		kept = append(kept, t.docs[i])
	}
	removed := len(t.docs) - len(kept)
	if removed > 0 {
		t.docs = kept
	}
	return removed
}

// RunStatsTicker recomputes the ingestion rate every interval until ctx is
// done.
func (t *DocumentTable) RunStatsTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := atomic.SwapInt64(&t.writeCounter, 0)
			rate := float64(count) / interval.Seconds()
			t.mu.Lock()
			t.currentRate = rate
			t.mu.Unlock()
		}
	}
}

// IngestionRate returns the last measured rate in documents per second.
func (t *DocumentTable) IngestionRate() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentRate
}

func clone(docs []model.Document) []model.Document {
	out := make([]model.Document, len(docs), max(len(docs), 4096))
	copy(out, docs)
	return out
}
