package model

import (
	"strings"

	"github.com/google/uuid"
)

// Comparator is the relational operator a clause applies.
type Comparator string

const (
	ComparatorIs        Comparator = "is"
	ComparatorIsNot     Comparator = "is_not"
	ComparatorContains  Comparator = "contains"
	ComparatorExists    Comparator = "exists"
	ComparatorNotExists Comparator = "not_exists"
	ComparatorRange     Comparator = "range"
)

// Valid reports whether c is one of the known comparators.
func (c Comparator) Valid() bool {
	switch c {
	case ComparatorIs, ComparatorIsNot, ComparatorContains, ComparatorExists, ComparatorNotExists, ComparatorRange:
		return true
	}
	return false
}

// Clause is one atomic filter condition.
// Value is a string or number for scalar comparators and a two-element
// array [min, max] for range; exists and not_exists carry no value.
type Clause struct {
	ID         string     `json:"id"`
	Field      string     `json:"field"`
	Comparator Comparator `json:"comparator"`
	Value      any        `json:"value,omitempty"`
}

// Operator joins every clause of a flat query.
type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

// ParsedQuery is the flat single-operator form of a query.
type ParsedQuery struct {
	Clauses  []Clause `json:"clauses"`
	Operator Operator `json:"operator"`
}

// NewClauseID returns a short random id such as "clause-1a2b3c4d".
func NewClauseID(prefix string) string {
	if prefix == "" {
		prefix = "clause"
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "-" + id[:8]
}

// RangeBounds extracts [min, max] from a range clause value. It reports
// false when the value is not a two-element array.
func RangeBounds(v any) (any, any, bool) {
	switch r := v.(type) {
	case []any:
		if len(r) == 2 {
			return r[0], r[1], true
		}
	case []float64:
		if len(r) == 2 {
			return r[0], r[1], true
		}
	case []string:
		if len(r) == 2 {
			return r[0], r[1], true
		}
	case []int:
		if len(r) == 2 {
			return r[0], r[1], true
		}
	}
	return nil, nil, false
}
