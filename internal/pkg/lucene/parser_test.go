package lucene

import (
	"errors"
	"reflect"
	"testing"

	"github.com/coffersTech/nanodiscover/internal/model"
)

func TestLexer(t *testing.T) {
	tests := []struct {
		input    string
		expected []TokenType
	}{
		{"service:order", []TokenType{TokenField, TokenWord, TokenEOF}},
		{"a AND b", []TokenType{TokenWord, TokenAnd, TokenWord, TokenEOF}},
		{"a OR b", []TokenType{TokenWord, TokenOr, TokenWord, TokenEOF}},
		{"a and b", []TokenType{TokenWord, TokenWord, TokenWord, TokenEOF}},
		{"NOT a", []TokenType{TokenNot, TokenWord, TokenEOF}},
		{"(a)", []TokenType{TokenLParen, TokenWord, TokenRParen, TokenEOF}},
		{`"quoted text"`, []TokenType{TokenString, TokenEOF}},
		{"a/b:c", []TokenType{TokenWord, TokenEOF}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			lexer := NewLexer(tt.input)
			for i, expected := range tt.expected {
				tok := lexer.NextToken()
				if tok.Type != expected {
					t.Errorf("token %d: expected %v, got %v (%q)", i, expected, tok.Type, tok.Value)
				}
			}
		})
	}
}

func TestLexerValues(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
		value string
	}{
		{`"a \"b\" c"`, TokenString, `a "b" c`},
		{`*connection reset*`, TokenWildcard, "connection reset"},
		{`[1 TO 5]`, TokenRange, "[1 TO 5]"},
		{`[1 5]`, TokenWord, "[1"},
		{`*open`, TokenWord, "*open"},
		{`error)`, TokenWord, "error"},
		{`http://host:8080/x`, TokenWord, "http://host:8080/x"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tok := NewLexer(tt.input).NextValue()
			if tok.Type != tt.typ || tok.Value != tt.value {
				t.Errorf("NextValue() = %v %q, want %v %q", tok.Type, tok.Value, tt.typ, tt.value)
			}
		})
	}
}

func clause(id, field string, cmp model.Comparator, value any) *ClauseExpr {
	return &ClauseExpr{Clause: model.Clause{ID: id, Field: field, Comparator: cmp, Value: value}}
}

func TestParseExpr(t *testing.T) {
	tests := []struct {
		input string
		want  Node
	}{
		{
			input: `level:error`,
			want:  clause("0", "level", model.ComparatorIs, "error"),
		},
		{
			input: `level:error AND (service:api OR service:web)`,
			want: &AndExpr{
				Left: clause("0", "level", model.ComparatorIs, "error"),
				Right: &OrExpr{
					Left:  clause("1", "service", model.ComparatorIs, "api"),
					Right: clause("2", "service", model.ComparatorIs, "web"),
				},
			},
		},
		{
			input: `timeout "connection reset"`,
			want: &AndExpr{
				Left:  &TermExpr{Value: "timeout"},
				Right: &TermExpr{Value: "connection reset"},
			},
		},
		{
			input: `a:1 OR b:2 c:3`,
			want: &OrExpr{
				Left: clause("0", "a", model.ComparatorIs, "1"),
				Right: &AndExpr{
					Left:  clause("1", "b", model.ComparatorIs, "2"),
					Right: clause("2", "c", model.ComparatorIs, "3"),
				},
			},
		},
		{
			input: `NOT NOT _exists_:trace_id`,
			want: &NotExpr{Expr: &NotExpr{Expr: clause("0", "trace_id", model.ComparatorExists, nil)}},
		},
		{
			input: `NOT (msg:*fail* OR latency:[100 TO 500])`,
			want: &NotExpr{Expr: &OrExpr{
				Left:  clause("0", "msg", model.ComparatorContains, "fail"),
				Right: clause("1", "latency", model.ComparatorRange, []any{100.0, 500.0}),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseExpr(tt.input)
			if err != nil {
				t.Fatalf("ParseExpr(%q) error: %v", tt.input, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseExpr(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseExprErrors(t *testing.T) {
	tests := []struct {
		input string
		want  error
	}{
		{"", ErrEmptyQuery},
		{"   ", ErrEmptyQuery},
		{"(a:b", ErrUnmatchedParen},
		{"a:b)", ErrUnmatchedParen},
		{"a AND", ErrUnexpectedEOF},
		{"level:", ErrUnexpectedEOF},
		{"level: error", ErrUnexpectedToken},
		{"OR a", ErrUnexpectedToken},
		{"()", ErrUnexpectedToken},
		{`msg:"open`, ErrUnterminatedString},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ParseExpr(tt.input)
			if err == nil {
				t.Fatalf("ParseExpr(%q) expected error", tt.input)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseExpr(%q) error = %v, want %v", tt.input, err, tt.want)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("error is not a *ParseError: %T", err)
			}
		})
	}
}

func TestNodeStringRoundTrip(t *testing.T) {
	queries := []string{
		`level:error`,
		`level:error AND (service:api OR service:web)`,
		`(a:1 OR b:2) AND NOT (c:3 AND d:4)`,
		`timeout "connection reset" user:"say \"hi\""`,
		`NOT _exists_:trace_id OR msg:*disk full*`,
		`latency:[0.5 TO 250] AND status:[a TO z]`,
		`a:1 AND (b:2 AND c:3)`,
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			n, err := ParseExpr(q)
			if err != nil {
				t.Fatalf("ParseExpr(%q): %v", q, err)
			}
			text := n.String()
			again, err := ParseExpr(text)
			if err != nil {
				t.Fatalf("ParseExpr(%q) (rendered): %v", text, err)
			}
			if !reflect.DeepEqual(again, n) {
				t.Errorf("round trip mismatch:\n  first:  %s\n  second: %s", n, again)
			}
		})
	}
}

func TestFromParsedFlatten(t *testing.T) {
	queries := []string{
		`service:"payments" AND NOT level:"DEBUG"`,
		`message:*timeout* OR NOT _exists_:trace_id`,
		`_exists_:host`,
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			pq := Parse(q)
			got, ok := Flatten(FromParsed(pq))
			if !ok {
				t.Fatal("Flatten() reported a non-flat tree")
			}
			if !reflect.DeepEqual(got, pq) {
				t.Errorf("Flatten(FromParsed(pq)) = %+v, want %+v", got, pq)
			}

			n, err := ParseExpr(q)
			if err != nil {
				t.Fatal(err)
			}
			flat, ok := Flatten(n)
			if !ok || !reflect.DeepEqual(flat, pq) {
				t.Errorf("Flatten(ParseExpr(%q)) = %+v (ok=%v), want %+v", q, flat, ok, pq)
			}
		})
	}
}

func TestFlattenRejectsNested(t *testing.T) {
	for _, q := range []string{
		`a:1 AND b:2 OR c:3`,
		`NOT (a:1 AND b:2)`,
		`timeout AND a:1`,
		`NOT latency:[1 TO 2]`,
	} {
		n, err := ParseExpr(q)
		if err != nil {
			t.Fatalf("ParseExpr(%q): %v", q, err)
		}
		if _, ok := Flatten(n); ok {
			t.Errorf("Flatten(%q) should not be flat", q)
		}
	}
}

func TestFlattenEmpty(t *testing.T) {
	pq, ok := Flatten(FromParsed(model.ParsedQuery{Operator: model.OperatorOr}))
	if !ok || len(pq.Clauses) != 0 || pq.Operator != model.OperatorAnd {
		t.Errorf("Flatten(nil) = %+v, %v", pq, ok)
	}
}
