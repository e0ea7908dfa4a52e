package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coffersTech/nanodiscover/internal/engine"
	"github.com/coffersTech/nanodiscover/internal/library"
	"github.com/coffersTech/nanodiscover/internal/model"
	"github.com/coffersTech/nanodiscover/internal/pkg/lucene"
)

// timeParam accepts a JSON string or number.
type timeParam string

func (t *timeParam) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = timeParam(s)
		return nil
	}
	*t = timeParam(b)
	return nil
}

type discoverRequest struct {
	Query         string                `json:"query"`
	Nested        bool                  `json:"nested"`
	FreeText      string                `json:"freeText"`
	Clauses       []model.Clause        `json:"clauses"`
	From          timeParam             `json:"from"`
	To            timeParam             `json:"to"`
	Raw           *library.RawTimeRange `json:"raw"` // as typed by the user, for history
	BucketMinutes int                   `json:"bucketMinutes"`
	Limit         int                   `json:"limit"`
	StatsField    string                `json:"statsField"`
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var in discoverRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	tr, err := parseTimeRange(string(in.From), string(in.To))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := checkBucket(in.BucketMinutes); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := engine.Request{
		Query:         in.Query,
		Nested:        in.Nested,
		FreeText:      in.FreeText,
		Clauses:       in.Clauses,
		TimeRange:     tr,
		BucketMinutes: in.BucketMinutes,
		Limit:         in.Limit,
		StatsField:    in.StatsField,
	}
	res, ok := s.discover(w, req)
	if !ok {
		return
	}

	stored := library.StoredTimeRange{From: string(in.From), To: string(in.To)}
	if !tr.From.IsZero() {
		stored.From = model.FormatMillis(tr.From.UnixMilli())
	}
	if !tr.To.IsZero() {
		stored.To = model.FormatMillis(tr.To.UnixMilli())
	}
	stored.Raw = library.RawTimeRange{From: string(in.From), To: string(in.To)}
	if in.Raw != nil {
		stored.Raw = *in.Raw
	}
	if _, err := s.library.RecordHistory(library.HistoryEntry{
		Query:     in.Query,
		Limit:     in.Limit,
		TimeRange: stored,
		Filters:   library.StripIDs(in.Clauses),
	}); err != nil {
		s.log.Warn("record history", "error", err)
	}

	writeJSON(w, http.StatusOK, res)
}

// discover runs the pipeline and writes a 400 for query syntax errors.
func (s *Server) discover(w http.ResponseWriter, req engine.Request) (engine.Result, bool) {
	res, err := s.engine.Discover(req)
	if err != nil {
		var pe *lucene.ParseError
		if errors.As(err, &pe) {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":    pe.Message,
				"position": pe.Pos,
			})
			return res, false
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return res, false
	}
	return res, true
}

func (s *Server) queryRequest(w http.ResponseWriter, r *http.Request) (engine.Request, bool) {
	req, err := requestFromQuery(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.queryRequest(w, r)
	if !ok {
		return
	}
	res, ok := s.discover(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": res.Documents,
		"total":     res.Total,
		"warnings":  res.Warnings,
	})
}

func (s *Server) handleHistogram(w http.ResponseWriter, r *http.Request) {
	req, ok := s.queryRequest(w, r)
	if !ok {
		return
	}
	res, ok := s.discover(w, req)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res.Histogram)
}

func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	req, ok := s.queryRequest(w, r)
	if !ok {
		return
	}
	res, ok := s.discover(w, req)
	if !ok {
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, engine.FilterFieldStats(res.Fields, q.Get("search"), q.Get("sort")))
}

func (s *Server) handleFieldValues(w http.ResponseWriter, r *http.Request) {
	req, ok := s.queryRequest(w, r)
	if !ok {
		return
	}
	if req.StatsField == "" {
		http.Error(w, "field is required", http.StatusBadRequest)
		return
	}
	res, ok := s.discover(w, req)
	if !ok {
		return
	}
	dist := res.Distribution
	if dist == nil {
		dist = []model.ValueDistributionBucket{}
	}
	writeJSON(w, http.StatusOK, dist)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.GetStats())
}

func (s *Server) handleQueryParse(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Query  string `json:"query"`
		Nested bool   `json:"nested"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}

	if !in.Nested {
		writeJSON(w, http.StatusOK, map[string]any{
			"parsed":   lucene.Parse(in.Query),
			"warnings": lucene.Validate(in.Query),
		})
		return
	}

	node, err := lucene.ParseExpr(in.Query)
	if err != nil {
		var pe *lucene.ParseError
		if errors.As(err, &pe) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": pe.Message, "position": pe.Pos})
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out := map[string]any{"expression": node.String()}
	if pq, ok := lucene.Flatten(node); ok {
		out["parsed"] = pq
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQueryBuild(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Clauses  []model.Clause `json:"clauses"`
		Operator model.Operator `json:"operator"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"query": lucene.Build(in.Clauses, in.Operator)})
}

func (s *Server) handleQueryValidate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Query string `json:"query"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"diagnostics": lucene.Validate(in.Query)})
}
