// Package lucene translates between the Lucene-style query text used by the
// discover view and the structured clause model.
//
// Two modes are provided. The flat mode (Parse, Build, Validate) reads a
// query as a list of clauses joined by one global operator and silently
// drops anything it does not recognise; the structured filter editor works
// in this mode. ParseExpr builds a full AST with nested groups.
package lucene

import (
	"strconv"
	"strings"

	"github.com/coffersTech/nanodiscover/internal/model"
)

const existsField = "_exists_"

// Validation diagnostics.
const (
	MsgEmptyQuery      = "Query cannot be empty."
	MsgUnbalancedParen = "Unbalanced parentheses detected."
	MsgUnmatchedQuotes = "Unmatched quotes detected."
)

// Validate returns deduplicated diagnostics for a query. It checks for an
// empty query, parenthesis balance and an even quote count; clause grammar
// is not validated.
func Validate(query string) []string {
	var errs []string
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		errs = append(errs, MsgEmptyQuery)
	}

	depth := 0
	for _, ch := range trimmed {
		if ch == '(' {
			depth++
		}
		if ch == ')' {
			depth--
			if depth < 0 {
				errs = append(errs, MsgUnbalancedParen)
				depth = 0
				break
			}
		}
	}
	if depth > 0 {
		errs = append(errs, MsgUnbalancedParen)
	}

	if strings.Count(trimmed, `"`)%2 != 0 {
		errs = append(errs, MsgUnmatchedQuotes)
	}

	return dedupe(errs)
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Parse reads a query in flat mode. The operator is OR when the trimmed
// query contains " OR " anywhere, otherwise AND. A NOT directly before a
// clause negates it: is and contains become is_not, exists becomes
// not_exists. Negated ranges and unrecognised segments are dropped. A value
// opening a quote that never closes is read up to the next whitespace.
func Parse(query string) model.ParsedQuery {
	pq := model.ParsedQuery{Clauses: []model.Clause{}, Operator: model.OperatorAnd}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return pq
	}
	if strings.Contains(trimmed, " OR ") {
		pq.Operator = model.OperatorOr
	}

	lex := NewLexer(trimmed)
	negated := false
	for {
		tok := lex.NextToken()
		switch tok.Type {
		case TokenEOF:
			return pq
		case TokenNot:
			negated = true
			continue
		case TokenField:
			value := lex.NextValue()
			if value.Type == TokenString && value.Unterminated {
				value = lex.BareValue(value.Pos)
			}
			id := strconv.Itoa(len(pq.Clauses))
			if c, ok := clauseFromValue(id, tok.Value, value); ok {
				if negated {
					c, ok = negate(c)
				}
				if ok {
					pq.Clauses = append(pq.Clauses, c)
				}
			}
		}
		negated = false
	}
}

// Build serializes clauses in order, one segment per clause, joined by the
// operator. Clauses without a field, is clauses with an empty value and
// malformed ranges are omitted. Scalar values are trimmed.
func Build(clauses []model.Clause, op model.Operator) string {
	if op != model.OperatorOr {
		op = model.OperatorAnd
	}

	segments := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if c.Field == "" {
			continue
		}
		switch c.Comparator {
		case model.ComparatorExists, model.ComparatorNotExists, model.ComparatorRange:
		default:
			v := strings.TrimSpace(valueText(c.Value))
			if v == "" && c.Comparator != model.ComparatorContains && c.Comparator != model.ComparatorIsNot {
				continue
			}
			c.Value = v
		}
		if s, ok := segment(c); ok {
			segments = append(segments, s)
		}
	}
	return strings.Join(segments, " "+string(op)+" ")
}

// segment renders a single clause. It reports false for a malformed range.
func segment(c model.Clause) (string, bool) {
	switch c.Comparator {
	case model.ComparatorExists:
		return existsField + ":" + c.Field, true
	case model.ComparatorNotExists:
		return "NOT " + existsField + ":" + c.Field, true
	case model.ComparatorContains:
		return c.Field + ":*" + valueText(c.Value) + "*", true
	case model.ComparatorIsNot:
		return "NOT " + c.Field + ":" + quote(valueText(c.Value)), true
	case model.ComparatorRange:
		lo, hi, ok := model.RangeBounds(c.Value)
		if !ok {
			return "", false
		}
		return c.Field + ":[" + model.Stringify(lo) + " TO " + model.Stringify(hi) + "]", true
	default:
		return c.Field + ":" + quote(valueText(c.Value)), true
	}
}

// valueText treats a missing value as the empty string.
func valueText(v any) string {
	if v == nil {
		return ""
	}
	return model.Stringify(v)
}
