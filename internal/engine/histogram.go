package engine

import (
	"sort"
	"time"

	"github.com/coffersTech/nanodiscover/internal/model"
)

// Bucket counts documents per fixed-width interval of bucketMinutes
// (values <= 0 mean one minute, values above model.MaxBucketMinutes are
// clamped to it). Documents with an unparseable timestamp
// or outside the time range are skipped. Only non-empty buckets are
// returned, oldest first; callers wanting a dense axis fill gaps themselves.
func Bucket(docs []model.Document, tr model.TimeRange, bucketMinutes int) []model.HistogramBucket {
	if bucketMinutes <= 0 {
		bucketMinutes = 1
	}
	if bucketMinutes > model.MaxBucketMinutes {
		bucketMinutes = model.MaxBucketMinutes
	}
	width := (time.Duration(bucketMinutes) * time.Minute).Milliseconds()

	// bucket start (epoch ms) -> count
	buckets := make(map[int64]int)
	for i := range docs {
		ms, ok := docs[i].UnixMilli()
		if !ok || !tr.ContainsMillis(ms) {
			continue
		}
		buckets[floorDiv(ms, width)*width]++
	}

	starts := make([]int64, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool {
		return starts[i] < starts[j]
	})

	points := make([]model.HistogramBucket, 0, len(starts))
	for _, start := range starts {
		points = append(points, model.HistogramBucket{
			Time:  model.FormatMillis(start),
			Count: buckets[start],
		})
	}
	return points
}

// floorDiv rounds towards negative infinity so pre-epoch timestamps land in
// the bucket that starts before them.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
