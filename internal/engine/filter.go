package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coffersTech/nanodiscover/internal/model"
	"github.com/coffersTech/nanodiscover/internal/pkg/lucene"
)

// Apply returns the documents inside the time range that contain freeText
// and satisfy every clause. Order is preserved and docs is never modified.
func Apply(docs []model.Document, tr model.TimeRange, freeText string, clauses []model.Clause) []model.Document {
	return filter(docs, tr, freeText, func(d *model.Document) bool {
		return matchAll(d, clauses)
	})
}

// ApplyQuery is Apply with the clauses joined by the query operator.
func ApplyQuery(docs []model.Document, tr model.TimeRange, freeText string, pq model.ParsedQuery) []model.Document {
	if pq.Operator != model.OperatorOr {
		return Apply(docs, tr, freeText, pq.Clauses)
	}
	return filter(docs, tr, freeText, func(d *model.Document) bool {
		return matchAny(d, pq.Clauses)
	})
}

// ApplyExpr evaluates an AST instead of a flat clause list. A nil node
// matches every document.
func ApplyExpr(docs []model.Document, tr model.TimeRange, freeText string, node lucene.Node) []model.Document {
	return filter(docs, tr, freeText, func(d *model.Document) bool {
		return MatchExpr(d, node)
	})
}

func filter(docs []model.Document, tr model.TimeRange, freeText string, keep func(*model.Document) bool) []model.Document {
	needle := strings.ToLower(freeText)
	if strings.TrimSpace(freeText) == "" {
		needle = ""
	}

	out := make([]model.Document, 0, len(docs))
	for i := range docs {
		d := &docs[i]
		if !tr.Includes(d) {
			continue
		}
		if needle != "" && !strings.Contains(haystack(d), needle) {
			continue
		}
		if !keep(d) {
			continue
		}
		out = append(out, *d)
	}
	return out
}

func matchAll(d *model.Document, clauses []model.Clause) bool {
	for i := range clauses {
		if !MatchClause(d, clauses[i]) {
			return false
		}
	}
	return true
}

func matchAny(d *model.Document, clauses []model.Clause) bool {
	if len(clauses) == 0 {
		return true
	}
	for i := range clauses {
		if MatchClause(d, clauses[i]) {
			return true
		}
	}
	return false
}

// haystack is the lower-cased free-text search surface of a document.
func haystack(d *model.Document) string {
	var sb strings.Builder
	sb.WriteString(d.Message)
	sb.WriteByte(' ')
	sb.WriteString(d.Service)
	sb.WriteByte(' ')
	sb.WriteString(d.Level)
	sb.WriteByte(' ')
	sb.WriteString(d.Tenant)
	sb.WriteByte(' ')
	sb.WriteString(attributesJSON(d.Attributes))
	return strings.ToLower(sb.String())
}

func attributesJSON(attrs map[string]any) string {
	if attrs == nil {
		return "{}"
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(attrs); err != nil {
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// MatchClause evaluates one clause against a document.
//
//	exists      defined and not null
//	not_exists  undefined or null
//	contains    defined and the value contains the target, ignoring case
//	is_not      undefined or a different value
//	range       numeric value within [min, max]; a malformed range matches
//	is          equal values (the default for unknown comparators)
//
// Values compare by their string form.
func MatchClause(d *model.Document, c model.Clause) bool {
	v, defined := d.Resolve(c.Field)

	switch c.Comparator {
	case model.ComparatorExists:
		return defined && v != nil
	case model.ComparatorNotExists:
		return !defined || v == nil
	case model.ComparatorContains:
		return defined && strings.Contains(
			strings.ToLower(model.Stringify(v)),
			strings.ToLower(clauseText(c.Value, "")),
		)
	case model.ComparatorIsNot:
		return !defined || model.Stringify(v) != clauseText(c.Value, undefinedText)
	case model.ComparatorRange:
		lo, hi, ok := model.RangeBounds(c.Value)
		if !ok {
			return true
		}
		if !defined {
			return false
		}
		x, ok := model.ToNumber(v)
		if !ok {
			return false
		}
		minV, okMin := model.ToNumber(lo)
		maxV, okMax := model.ToNumber(hi)
		return okMin && okMax && x >= minV && x <= maxV
	default:
		return valueText(v, defined) == clauseText(c.Value, "")
	}
}

const undefinedText = "undefined"

func valueText(v any, defined bool) string {
	if !defined {
		return undefinedText
	}
	return model.Stringify(v)
}

// clauseText renders a clause value, using missing for a nil value.
func clauseText(v any, missing string) string {
	if v == nil {
		return missing
	}
	return model.Stringify(v)
}

// MatchExpr evaluates an AST node against a document. Terms match like the
// free-text predicate.
func MatchExpr(d *model.Document, node lucene.Node) bool {
	if node == nil {
		return true
	}

	switch n := node.(type) {
	case *lucene.AndExpr:
		return MatchExpr(d, n.Left) && MatchExpr(d, n.Right)
	case *lucene.OrExpr:
		return MatchExpr(d, n.Left) || MatchExpr(d, n.Right)
	case *lucene.NotExpr:
		return !MatchExpr(d, n.Expr)
	case *lucene.ClauseExpr:
		return MatchClause(d, n.Clause)
	case *lucene.TermExpr:
		return strings.Contains(haystack(d), strings.ToLower(n.Value))
	default:
		return false
	}
}

// CheckClauses reports clauses that filter permissively instead of failing:
// malformed ranges match every document and unknown comparators fall back
// to equality. Filtering itself is unaffected.
func CheckClauses(clauses []model.Clause) []string {
	var warnings []string
	for _, c := range clauses {
		switch {
		case c.Comparator == model.ComparatorRange:
			if _, _, ok := model.RangeBounds(c.Value); !ok {
				warnings = append(warnings, fmt.Sprintf("range clause %q on field %q has a malformed value and matches every document", c.ID, c.Field))
			}
		case c.Comparator != "" && !c.Comparator.Valid():
			warnings = append(warnings, fmt.Sprintf("clause %q on field %q uses unknown comparator %q and is treated as is", c.ID, c.Field, c.Comparator))
		}
	}
	return warnings
}
