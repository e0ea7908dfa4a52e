package engine

import (
	"reflect"
	"testing"
	"time"

	"github.com/coffersTech/nanodiscover/internal/model"
)

func docAt(id string, offset time.Duration) model.Document {
	ts := time.Unix(0, 0).UTC().Add(offset)
	return model.Document{ID: id, Timestamp: ts.Format(time.RFC3339Nano)}
}

func TestBucketAggregatesWithinWidth(t *testing.T) {
	docs := []model.Document{docAt("a", 0), docAt("b", 30*time.Second)}
	got := Bucket(docs, model.TimeRange{}, 1)
	want := []model.HistogramBucket{{Time: "1970-01-01T00:00:00.000Z", Count: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Bucket() = %+v, want %+v", got, want)
	}
}

func TestBucketEndToEnd(t *testing.T) {
	docs := []model.Document{
		docAt("a", 0),
		docAt("b", 60*time.Second),
		docAt("c", 130*time.Second),
	}
	tr := model.TimeRange{From: time.Unix(0, 0), To: time.Unix(90, 0)}

	filtered := Apply(docs, tr, "", nil)
	got := Bucket(filtered, tr, 1)
	want := []model.HistogramBucket{
		{Time: "1970-01-01T00:00:00.000Z", Count: 1},
		{Time: "1970-01-01T00:01:00.000Z", Count: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Bucket() = %+v, want %+v", got, want)
	}
}

func TestBucketSparseAndSorted(t *testing.T) {
	docs := []model.Document{
		docAt("late", 10*time.Minute+5*time.Second),
		docAt("early", 1*time.Minute),
		{ID: "bad", Timestamp: "yesterday"},
		docAt("mid", 5*time.Minute+59*time.Second),
		docAt("early2", 4*time.Minute+59*time.Second),
	}
	got := Bucket(docs, model.TimeRange{}, 5)
	want := []model.HistogramBucket{
		{Time: "1970-01-01T00:00:00.000Z", Count: 2},
		{Time: "1970-01-01T00:05:00.000Z", Count: 1},
		{Time: "1970-01-01T00:10:00.000Z", Count: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Bucket() = %+v, want %+v", got, want)
	}
	for _, b := range got {
		if b.Count == 0 {
			t.Errorf("zero-count bucket emitted: %+v", b)
		}
	}
}

func TestBucketDefaultsWidth(t *testing.T) {
	docs := []model.Document{docAt("a", 10*time.Second), docAt("b", 70*time.Second)}
	if got := Bucket(docs, model.TimeRange{}, 0); len(got) != 2 {
		t.Errorf("bucketMinutes=0 should mean one minute, got %+v", got)
	}
}

func TestBucketNegativeTimestamps(t *testing.T) {
	docs := []model.Document{docAt("a", -30*time.Second)}
	got := Bucket(docs, model.TimeRange{}, 1)
	if len(got) != 1 || got[0].Time != "1969-12-31T23:59:00.000Z" {
		t.Errorf("Bucket() = %+v", got)
	}
}

func TestBucketEmpty(t *testing.T) {
	if got := Bucket(nil, model.TimeRange{}, 1); got == nil || len(got) != 0 {
		t.Errorf("Bucket(nil) = %#v, want empty slice", got)
	}
}

func TestBucketClampsWidth(t *testing.T) {
	docs := []model.Document{docAt("a", 0), docAt("b", 300*24*time.Hour)}
	want := []model.HistogramBucket{{Time: "1970-01-01T00:00:00.000Z", Count: 2}}

	for _, minutes := range []int{model.MaxBucketMinutes + 1, 200_000_000, 1 << 53} {
		got := Bucket(docs, model.TimeRange{}, minutes)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Bucket(%d) = %+v, want %+v", minutes, got, want)
		}
	}
}
