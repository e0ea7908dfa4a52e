package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/coffersTech/nanodiscover/internal/model"
)

func TestDocumentTableSnapshotIsolation(t *testing.T) {
	table := NewDocumentTable(0)
	table.Append(model.Document{ID: "1"}, model.Document{ID: "2"})

	snap := table.Snapshot()
	table.Append(model.Document{ID: "3"})

	if len(snap) != 2 || cap(snap) != 2 {
		t.Fatalf("snapshot len=%d cap=%d, want 2/2", len(snap), cap(snap))
	}
	if table.Len() != 3 {
		t.Errorf("Len() = %d, want 3", table.Len())
	}

	// Appending to a snapshot must not write into the table.
	grown := append(snap, model.Document{ID: "x"})
	if got := table.Snapshot(); got[2].ID != "3" || grown[2].ID != "x" {
		t.Errorf("snapshot append leaked into table: %v", ids(got))
	}
}

func TestDocumentTableMaxDocuments(t *testing.T) {
	table := NewDocumentTable(3)
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		table.Append(model.Document{ID: id})
	}
	if got := table.Snapshot(); !equalIDs(got, "3", "4", "5") {
		t.Errorf("got %v, want newest three", ids(got))
	}

	table.Replace([]model.Document{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}})
	if got := table.Snapshot(); !equalIDs(got, "b", "c", "d") {
		t.Errorf("after Replace got %v", ids(got))
	}
}

func TestDocumentTableReplaceCopies(t *testing.T) {
	src := []model.Document{{ID: "1"}, {ID: "2"}}
	table := NewDocumentTable(0)
	table.Replace(src)
	src[0].ID = "changed"
	if got := table.Snapshot(); got[0].ID != "1" {
		t.Errorf("Replace kept a reference to the caller's slice")
	}
}

func TestDocumentTablePrune(t *testing.T) {
	table := NewDocumentTable(0)
	table.Append(
		model.Document{ID: "old", Timestamp: "2024-01-01T00:00:00Z"},
		model.Document{ID: "bad", Timestamp: "???"},
		model.Document{ID: "new", Timestamp: "2024-06-01T00:00:00Z"},
	)
	before := table.Snapshot()

	removed := table.Prune(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if removed != 1 {
		t.Errorf("Prune removed %d, want 1", removed)
	}
	if got := table.Snapshot(); !equalIDs(got, "bad", "new") {
		t.Errorf("after Prune got %v", ids(got))
	}
	if !equalIDs(before, "old", "bad", "new") {
		t.Errorf("Prune modified an earlier snapshot: %v", ids(before))
	}
}

func TestDocumentTableConcurrentAccess(t *testing.T) {
	table := NewDocumentTable(100)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				table.Append(model.Document{ID: "w"})
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = Apply(table.Snapshot(), model.TimeRange{}, "w", nil)
			}
		}()
	}
	wg.Wait()
	if table.Len() != 100 {
		t.Errorf("Len() = %d, want 100", table.Len())
	}
}
