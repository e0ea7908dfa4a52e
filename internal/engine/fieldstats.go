package engine

import (
	"math"
	"regexp"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/coffersTech/nanodiscover/internal/model"
)

// Field stat sort orders.
const (
	SortByCount = "count"
	SortAlpha   = "alpha"
)

// statFields are counted for every document ahead of its attributes.
var statFields = []string{
	model.FieldLevel,
	model.FieldService,
	model.FieldTenant,
	model.FieldTraceID,
	model.FieldSpanID,
}

var isoLike = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}`)

// BuildStats counts every defined value of the fixed top-level fields and
// of each attribute key. An attribute named like a fixed field replaces
// that field's value. The type of a field is inferred from the first value
// seen. Results are sorted by count, descending; ties keep first-seen order.
func BuildStats(docs []model.Document) []model.FieldStat {
	index := make(map[string]int)
	var stats []model.FieldStat

	add := func(name string, v any) {
		norm := model.Normalize(v)
		i, ok := index[name]
		if !ok {
			index[name] = len(stats)
			stats = append(stats, model.FieldStat{
				Name:     name,
				Type:     detectType(v),
				Count:    1,
				Examples: []any{norm},
			})
			return
		}
		st := &stats[i]
		st.Count++
		if len(st.Examples) < model.MaxFieldExamples && !slices.Contains(st.Examples, norm) {
			st.Examples = append(st.Examples, norm)
		}
	}

	keys := make([]string, 0, 16)
	for i := range docs {
		d := &docs[i]

		keys = keys[:0]
		for k := range d.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, name := range statFields {
			v, ok := d.Attributes[name]
			if !ok {
				v, ok = d.Property(name)
			}
			if ok {
				add(name, v)
			}
		}
		for _, k := range keys {
			if slices.Contains(statFields, k) {
				continue
			}
			add(k, d.Attributes[k])
		}
	}

	slices.SortStableFunc(stats, func(a, b model.FieldStat) int {
		return b.Count - a.Count
	})
	if stats == nil {
		stats = []model.FieldStat{}
	}
	return stats
}

func detectType(v any) model.FieldType {
	switch x := v.(type) {
	case bool:
		return model.FieldTypeBoolean
	case string:
		if isoLike.MatchString(x) {
			if _, ok := model.ParseTimestamp(x); ok {
				return model.FieldTypeDate
			}
		}
		return model.FieldTypeString
	}
	if model.IsNumber(v) {
		return model.FieldTypeNumber
	}
	return model.FieldTypeString
}

// FilterFieldStats keeps the stats whose name contains search, ignoring
// case, and orders them alphabetically (SortAlpha) or by count. The input
// is not modified.
func FilterFieldStats(stats []model.FieldStat, search, order string) []model.FieldStat {
	needle := strings.ToLower(search)
	out := make([]model.FieldStat, 0, len(stats))
	for _, st := range stats {
		if needle == "" || strings.Contains(strings.ToLower(st.Name), needle) {
			out = append(out, st)
		}
	}

	if order == SortAlpha {
		c := collate.New(language.Und)
		slices.SortStableFunc(out, func(a, b model.FieldStat) int {
			return c.CompareString(a.Name, b.Name)
		})
		return out
	}
	slices.SortStableFunc(out, func(a, b model.FieldStat) int {
		return b.Count - a.Count
	})
	return out
}

// ValueDistribution tallies the values of field across docs. A null
// attribute falls back to the top-level property. Percentages are relative
// to the documents where the field is defined and rounded to one decimal.
// At most MaxDistributionBuckets entries are returned, most frequent first.
func ValueDistribution(docs []model.Document, field string) []model.ValueDistributionBucket {
	index := make(map[string]int)
	var buckets []model.ValueDistributionBucket
	total := 0

	for i := range docs {
		d := &docs[i]
		v, ok := d.Attributes[field]
		if !ok || v == nil {
			v, ok = d.Property(field)
		}
		if !ok {
			continue
		}
		key := model.Stringify(model.Normalize(v))
		if j, seen := index[key]; seen {
			buckets[j].Count++
		} else {
			index[key] = len(buckets)
			buckets = append(buckets, model.ValueDistributionBucket{Value: key, Count: 1})
		}
		total++
	}

	for i := range buckets {
		buckets[i].Percentage = math.Round(float64(buckets[i].Count)/float64(total)*1000) / 10
	}
	slices.SortStableFunc(buckets, func(a, b model.ValueDistributionBucket) int {
		return b.Count - a.Count
	})
	if len(buckets) > model.MaxDistributionBuckets {
		buckets = buckets[:model.MaxDistributionBuckets]
	}
	if buckets == nil {
		buckets = []model.ValueDistributionBucket{}
	}
	return buckets
}
