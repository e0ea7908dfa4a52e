package engine

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/coffersTech/nanodiscover/internal/model"
)

func findStat(stats []model.FieldStat, name string) (model.FieldStat, bool) {
	for _, st := range stats {
		if st.Name == name {
			return st, true
		}
	}
	return model.FieldStat{}, false
}

func TestBuildStats(t *testing.T) {
	docs := []model.Document{
		{Level: "INFO", Service: "api", Attributes: map[string]any{
			"status": 200.0, "cached": true, "seen_at": "2024-05-01T10:00:00Z", "meta": map[string]any{"k": "v"},
		}},
		{Level: "ERROR", Service: "api", TraceID: "abc", Attributes: map[string]any{
			"status": 500.0, "seen_at": "2024-05-01 soon", "meta": nil,
		}},
		{Level: "INFO", Service: "web", Attributes: map[string]any{
			"status": 200.0, "level": "debug",
		}},
	}

	stats := BuildStats(docs)

	tests := []struct {
		name     string
		typ      model.FieldType
		count    int
		examples []any
	}{
		{"level", model.FieldTypeString, 3, []any{"INFO", "ERROR", "debug"}},
		{"service", model.FieldTypeString, 3, []any{"api", "web"}},
		{"status", model.FieldTypeNumber, 3, []any{200.0, 500.0}},
		{"cached", model.FieldTypeBoolean, 1, []any{true}},
		{"seen_at", model.FieldTypeDate, 2, []any{"2024-05-01T10:00:00Z", "2024-05-01 soon"}},
		{"meta", model.FieldTypeString, 2, []any{`{"k":"v"}`, "null"}},
		{"traceId", model.FieldTypeString, 1, []any{"abc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := findStat(stats, tt.name)
			if !ok {
				t.Fatalf("no stat for %q", tt.name)
			}
			if st.Type != tt.typ || st.Count != tt.count {
				t.Errorf("got type=%s count=%d, want type=%s count=%d", st.Type, st.Count, tt.typ, tt.count)
			}
			if !reflect.DeepEqual(st.Examples, tt.examples) {
				t.Errorf("examples = %v, want %v", st.Examples, tt.examples)
			}
		})
	}

	if _, ok := findStat(stats, "tenant"); ok {
		t.Error("tenant is never defined and should not be reported")
	}

	for i := 1; i < len(stats); i++ {
		if stats[i-1].Count < stats[i].Count {
			t.Fatalf("stats not sorted by count: %v", stats)
		}
	}
}

func TestBuildStatsCapsExamples(t *testing.T) {
	var docs []model.Document
	for i := 0; i < 12; i++ {
		docs = append(docs, model.Document{Attributes: map[string]any{"n": float64(i % 7)}})
	}
	st, ok := findStat(BuildStats(docs), "n")
	if !ok {
		t.Fatal("missing stat")
	}
	if st.Count != 12 {
		t.Errorf("count = %d, want 12", st.Count)
	}
	if len(st.Examples) != model.MaxFieldExamples {
		t.Errorf("got %d examples, want %d", len(st.Examples), model.MaxFieldExamples)
	}
}

func TestBuildStatsEmpty(t *testing.T) {
	if stats := BuildStats(nil); stats == nil || len(stats) != 0 {
		t.Errorf("BuildStats(nil) = %v, want empty slice", stats)
	}
}

func TestFilterFieldStats(t *testing.T) {
	stats := []model.FieldStat{
		{Name: "service", Count: 10},
		{Name: "Region", Count: 3},
		{Name: "level", Count: 10},
		{Name: "region_code", Count: 7},
	}

	got := FilterFieldStats(stats, "REG", SortByCount)
	if names(got) != "region_code,Region" {
		t.Errorf("count order = %s", names(got))
	}

	got = FilterFieldStats(stats, "", SortAlpha)
	if names(got) != "level,Region,region_code,service" {
		t.Errorf("alpha order = %s", names(got))
	}

	got = FilterFieldStats(stats, "", SortByCount)
	if names(got) != "service,level,region_code,Region" {
		t.Errorf("ties should keep input order: %s", names(got))
	}

	if stats[0].Name != "service" || stats[1].Name != "Region" {
		t.Error("input slice was reordered")
	}
}

func names(stats []model.FieldStat) string {
	s := ""
	for i, st := range stats {
		if i > 0 {
			s += ","
		}
		s += st.Name
	}
	return s
}

func TestValueDistribution(t *testing.T) {
	docs := []model.Document{
		{Level: "INFO", Attributes: map[string]any{"code": 200.0}},
		{Level: "INFO", Attributes: map[string]any{"code": 200.0}},
		{Level: "ERROR", Attributes: map[string]any{"code": 500.0}},
		{Level: "INFO", Attributes: map[string]any{}},
	}

	got := ValueDistribution(docs, "code")
	want := []model.ValueDistributionBucket{
		{Value: "200", Count: 2, Percentage: 66.7},
		{Value: "500", Count: 1, Percentage: 33.3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("code distribution = %+v, want %+v", got, want)
	}

	got = ValueDistribution(docs, "level")
	want = []model.ValueDistributionBucket{
		{Value: "INFO", Count: 3, Percentage: 75},
		{Value: "ERROR", Count: 1, Percentage: 25},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("level distribution = %+v, want %+v", got, want)
	}

	if got := ValueDistribution(docs, "missing"); len(got) != 0 {
		t.Errorf("undefined field produced %v", got)
	}
}

func TestValueDistributionNullFallsBack(t *testing.T) {
	docs := []model.Document{
		{Service: "api", Attributes: map[string]any{"service": nil}},
		{Service: "api", Attributes: map[string]any{"owner": nil}},
	}
	got := ValueDistribution(docs, "service")
	if len(got) != 1 || got[0].Value != "api" || got[0].Count != 2 {
		t.Errorf("service = %+v, want the top-level value", got)
	}
	if got := ValueDistribution(docs, "owner"); len(got) != 0 {
		t.Errorf("owner = %+v, want no buckets", got)
	}
}

func TestValueDistributionSumsTo100(t *testing.T) {
	var docs []model.Document
	for i := 0; i < 8; i++ {
		docs = append(docs, model.Document{Attributes: map[string]any{"v": fmt.Sprintf("k%d", i%3)}})
	}
	sum := 0.0
	for _, b := range ValueDistribution(docs, "v") {
		sum += b.Percentage
	}
	if math.Abs(sum-100) > 0.1+1e-9 {
		t.Errorf("percentages sum to %.2f", sum)
	}
}

func TestValueDistributionTop20(t *testing.T) {
	var docs []model.Document
	for i := 0; i < 30; i++ {
		for j := 0; j <= i; j++ {
			docs = append(docs, model.Document{Attributes: map[string]any{"v": float64(i)}})
		}
	}
	got := ValueDistribution(docs, "v")
	if len(got) != model.MaxDistributionBuckets {
		t.Fatalf("got %d buckets, want %d", len(got), model.MaxDistributionBuckets)
	}
	if got[0].Value != "29" || got[0].Count != 30 {
		t.Errorf("first bucket = %+v", got[0])
	}
}
