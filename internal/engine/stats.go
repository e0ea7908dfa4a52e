package engine

import (
	"strings"

	"github.com/coffersTech/nanodiscover/internal/model"
)

// TableStats contains high-level table metrics for the API.
type TableStats struct {
	TotalDocuments int            `json:"total_documents"`
	IngestionRate  float64        `json:"ingestion_rate"` // documents/sec
	LevelDist      map[string]int `json:"level_dist"`     // e.g. "INFO": 100
	TopServices    map[string]int `json:"top_services"`   // e.g. "order-svc": 50
	OldestDocument string         `json:"oldest_document,omitempty"`
	NewestDocument string         `json:"newest_document,omitempty"`
}

// GetStats summarises the current table contents.
func (e *Engine) GetStats() TableStats {
	docs := e.table.Snapshot()

	stats := TableStats{
		TotalDocuments: len(docs),
		IngestionRate:  e.table.IngestionRate(),
		LevelDist:      make(map[string]int),
		TopServices:    make(map[string]int),
	}

	var oldest, newest int64
	seen := false
	for i := range docs {
		d := &docs[i]
		stats.LevelDist[normalizeLevel(d.Level)]++
		if d.Service != "" {
			stats.TopServices[d.Service]++
		}
		if ms, ok := d.UnixMilli(); ok {
			if !seen || ms < oldest {
				oldest = ms
			}
			if !seen || ms > newest {
				newest = ms
			}
			seen = true
		}
	}
	if seen {
		stats.OldestDocument = model.FormatMillis(oldest)
		stats.NewestDocument = model.FormatMillis(newest)
	}
	return stats
}

// normalizeLevel folds level spellings onto the usual upper-case names.
func normalizeLevel(l string) string {
	switch strings.ToUpper(strings.TrimSpace(l)) {
	case "DEBUG", "TRACE":
		return "DEBUG"
	case "INFO", "INFORMATION":
		return "INFO"
	case "WARN", "WARNING":
		return "WARN"
	case "ERROR", "ERR":
		return "ERROR"
	case "FATAL", "CRITICAL", "PANIC":
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}
