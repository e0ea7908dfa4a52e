package lucene

import (
	"strings"

	"github.com/coffersTech/nanodiscover/internal/model"
)

// Node is the interface implemented by all AST nodes. String renders the
// node as query text that parses back into an equal tree.
type Node interface {
	node()
	String() string
}

// AndExpr matches when both sides match.
type AndExpr struct {
	Left  Node
	Right Node
}

// OrExpr matches when either side matches.
type OrExpr struct {
	Left  Node
	Right Node
}

// NotExpr negates its inner expression.
type NotExpr struct {
	Expr Node
}

// ClauseExpr is a single field clause.
type ClauseExpr struct {
	Clause model.Clause
}

// TermExpr is a free-text predicate: a bare word or a quoted phrase.
type TermExpr struct {
	Value string
}

func (*AndExpr) node()    {}
func (*OrExpr) node()     {}
func (*NotExpr) node()    {}
func (*ClauseExpr) node() {}
func (*TermExpr) node()   {}

func (e *AndExpr) String() string {
	left := e.Left.String()
	if _, ok := e.Left.(*OrExpr); ok {
		left = "(" + left + ")"
	}
	right := e.Right.String()
	switch e.Right.(type) {
	case *OrExpr, *AndExpr:
		right = "(" + right + ")"
	}
	return left + " AND " + right
}

func (e *OrExpr) String() string {
	right := e.Right.String()
	if _, ok := e.Right.(*OrExpr); ok {
		right = "(" + right + ")"
	}
	return e.Left.String() + " OR " + right
}

func (e *NotExpr) String() string {
	inner := e.Expr.String()
	switch e.Expr.(type) {
	case *AndExpr, *OrExpr:
		inner = "(" + inner + ")"
	}
	return "NOT " + inner
}

func (e *ClauseExpr) String() string {
	if s, ok := segment(e.Clause); ok {
		return s
	}
	return e.Clause.Field + ":[]"
}

func (e *TermExpr) String() string {
	if isPlainWord(e.Value) {
		return e.Value
	}
	return quote(e.Value)
}

// FromParsed lifts a flat query into a left-associative chain joined by the
// query operator. Clauses without a field are skipped. An empty query
// yields nil, which matches everything.
func FromParsed(pq model.ParsedQuery) Node {
	var root Node
	for _, c := range pq.Clauses {
		if c.Field == "" {
			continue
		}
		leaf := &ClauseExpr{Clause: c}
		switch {
		case root == nil:
			root = leaf
		case pq.Operator == model.OperatorOr:
			root = &OrExpr{Left: root, Right: leaf}
		default:
			root = &AndExpr{Left: root, Right: leaf}
		}
	}
	return root
}

// Flatten lowers a tree to the flat single-operator model. It reports false
// when the tree mixes operators, negates a group or a range, or contains
// free-text terms.
func Flatten(n Node) (model.ParsedQuery, bool) {
	pq := model.ParsedQuery{Clauses: []model.Clause{}, Operator: model.OperatorAnd}
	if n == nil {
		return pq, true
	}

	var op model.Operator
	var walk func(Node) bool
	walk = func(n Node) bool {
		switch e := n.(type) {
		case *AndExpr:
			if op == model.OperatorOr {
				return false
			}
			op = model.OperatorAnd
			return walk(e.Left) && walk(e.Right)
		case *OrExpr:
			if op == model.OperatorAnd {
				return false
			}
			op = model.OperatorOr
			return walk(e.Left) && walk(e.Right)
		case *ClauseExpr:
			pq.Clauses = append(pq.Clauses, e.Clause)
			return true
		case *NotExpr:
			inner, ok := e.Expr.(*ClauseExpr)
			if !ok {
				return false
			}
			c, ok := negate(inner.Clause)
			if !ok {
				return false
			}
			pq.Clauses = append(pq.Clauses, c)
			return true
		default:
			return false
		}
	}
	if !walk(n) {
		return model.ParsedQuery{}, false
	}
	if op != "" {
		pq.Operator = op
	}
	ensureIDs(pq.Clauses)
	return pq, true
}

// negate maps a clause to its negated comparator the way the flat grammar
// reads a leading NOT.
func negate(c model.Clause) (model.Clause, bool) {
	switch c.Comparator {
	case model.ComparatorIs, model.ComparatorContains:
		c.Comparator = model.ComparatorIsNot
	case model.ComparatorIsNot:
		c.Comparator = model.ComparatorIs
	case model.ComparatorExists:
		c.Comparator = model.ComparatorNotExists
	case model.ComparatorNotExists:
		c.Comparator = model.ComparatorExists
	default:
		return c, false
	}
	return c, true
}

// ensureIDs renumbers clauses by index when ids are missing or repeated.
func ensureIDs(clauses []model.Clause) {
	seen := make(map[string]bool, len(clauses))
	unique := true
	for _, c := range clauses {
		if c.ID == "" || seen[c.ID] {
			unique = false
			break
		}
		seen[c.ID] = true
	}
	if unique {
		return
	}
	for i := range clauses {
		clauses[i].ID = itoa(i)
	}
}

func quote(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 2)
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	sb.WriteByte('"')
	return sb.String()
}
