package server

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coffersTech/nanodiscover/internal/engine"
	"github.com/coffersTech/nanodiscover/internal/model"
)

// parseTime accepts epoch milliseconds or any timestamp ParseTimestamp
// understands. An empty string is an open bound.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if t, ok := model.ParseTimestamp(s); ok {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q", s)
}

func parseTimeRange(from, to string) (model.TimeRange, error) {
	f, err := parseTime(from)
	if err != nil {
		return model.TimeRange{}, err
	}
	t, err := parseTime(to)
	if err != nil {
		return model.TimeRange{}, err
	}
	return model.TimeRange{From: f, To: t}, nil
}

func intParam(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

// requestFromQuery builds a discover request from query-string parameters:
// query (or q), nested, freeText, from, to, limit, bucket and field.
func requestFromQuery(q url.Values) (engine.Request, error) {
	req := engine.Request{
		Query:      q.Get("query"),
		FreeText:   q.Get("freeText"),
		StatsField: q.Get("field"),
	}
	if req.Query == "" {
		req.Query = q.Get("q")
	}
	if v := q.Get("nested"); v != "" {
		nested, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("invalid nested %q", v)
		}
		req.Nested = nested
	}

	tr, err := parseTimeRange(q.Get("from"), q.Get("to"))
	if err != nil {
		return req, err
	}
	req.TimeRange = tr

	if req.Limit, err = intParam(q, "limit"); err != nil {
		return req, err
	}
	if req.BucketMinutes, err = intParam(q, "bucket"); err != nil {
		return req, err
	}
	if err := checkBucket(req.BucketMinutes); err != nil {
		return req, err
	}
	return req, nil
}

func checkBucket(minutes int) error {
	if minutes > model.MaxBucketMinutes {
		return fmt.Errorf("bucket must be at most %d minutes", model.MaxBucketMinutes)
	}
	return nil
}
