package lucene

import (
	"strconv"

	"github.com/coffersTech/nanodiscover/internal/model"
)

// parser parses query text into an AST.
//
// Grammar (EBNF):
//
//	query   = or EOF
//	or      = and ( "OR" and )*
//	and     = not ( [ "AND" ] not )*
//	not     = "NOT" not | primary
//	primary = "(" or ")" | clause | term
//	clause  = FIELD ":" ( WORD | STRING | "*" text "*" | "[" min " TO " max "]" )
//	term    = WORD | STRING
//
// Precedence (highest to lowest): parentheses, NOT, AND (implicit or
// explicit), OR.
type parser struct {
	lex     *Lexer
	cur     Token
	clauses int
}

// ParseExpr parses a query into an AST.
func ParseExpr(input string) (Node, error) {
	p := &parser{lex: NewLexer(input)}
	p.advance()

	if p.cur.Type == TokenEOF {
		return nil, newParseError(0, ErrEmptyQuery, "empty query")
	}

	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	switch p.cur.Type {
	case TokenEOF:
		return expr, nil
	case TokenRParen:
		return nil, newParseError(p.cur.Pos, ErrUnmatchedParen, "unmatched ')'")
	default:
		return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "unexpected token: %s", p.cur)
	}
}

func (p *parser) advance() {
	p.cur = p.lex.NextToken()
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.cur.Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &OrExpr{Left: left, Right: right}
	}

	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.isAndStart() {
		if p.cur.Type == TokenAnd {
			p.advance()
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &AndExpr{Left: left, Right: right}
	}

	return left, nil
}

// isAndStart reports whether the current token continues an AND sequence.
func (p *parser) isAndStart() bool {
	switch p.cur.Type {
	case TokenAnd, TokenNot, TokenLParen, TokenField, TokenWord, TokenString:
		return true
	}
	return false
}

func (p *parser) parseNot() (Node, error) {
	if p.cur.Type == TokenNot {
		p.advance()
		expr, err := p.parseNot() // NOT is right-associative
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: expr}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	switch p.cur.Type {
	case TokenLParen:
		open := p.cur.Pos
		p.advance()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.Type != TokenRParen {
			return nil, newParseError(open, ErrUnmatchedParen, "expected ')' to close '(' at position %d", open)
		}
		p.advance()
		return expr, nil

	case TokenWord:
		term := &TermExpr{Value: p.cur.Value}
		p.advance()
		return term, nil

	case TokenString:
		if p.cur.Unterminated {
			return nil, newParseError(p.cur.Pos, ErrUnterminatedString, "unterminated string")
		}
		term := &TermExpr{Value: p.cur.Value}
		p.advance()
		return term, nil

	case TokenField:
		field := p.cur
		value := p.lex.NextValue()
		clause, err := p.parseClause(field, value)
		if err != nil {
			return nil, err
		}
		p.advance()
		return &ClauseExpr{Clause: clause}, nil

	case TokenEOF:
		return nil, newParseError(p.cur.Pos, ErrUnexpectedEOF, "unexpected end of query")

	default:
		return nil, newParseError(p.cur.Pos, ErrUnexpectedToken, "unexpected token: %s", p.cur)
	}
}

func (p *parser) parseClause(field, value Token) (model.Clause, error) {
	if value.Type == TokenString && value.Unterminated {
		return model.Clause{}, newParseError(value.Pos, ErrUnterminatedString, "unterminated string")
	}
	id := strconv.Itoa(p.clauses)
	clause, ok := clauseFromValue(id, field.Value, value)
	if !ok {
		if value.Type == TokenWord && value.Value == "" {
			if value.Pos >= len(p.lex.input) {
				return model.Clause{}, newParseError(value.Pos, ErrUnexpectedEOF, "missing value for field %q", field.Value)
			}
			return model.Clause{}, newParseError(value.Pos, ErrUnexpectedToken, "missing value for field %q", field.Value)
		}
		return model.Clause{}, newParseError(value.Pos, ErrUnexpectedToken, "invalid value %q for field %q", value.Value, field.Value)
	}
	p.clauses++
	return clause, nil
}

// clauseFromValue builds a positive clause from a field and the value token
// that follows it. _exists_:FIELD yields an exists clause.
func clauseFromValue(id, field string, value Token) (model.Clause, bool) {
	if field == existsField {
		if value.Type != TokenWord || !isFieldName(value.Value) {
			return model.Clause{}, false
		}
		return model.Clause{ID: id, Field: value.Value, Comparator: model.ComparatorExists}, true
	}

	switch value.Type {
	case TokenString:
		if value.Unterminated {
			return model.Clause{}, false
		}
		return model.Clause{ID: id, Field: field, Comparator: model.ComparatorIs, Value: value.Value}, true
	case TokenWildcard:
		return model.Clause{ID: id, Field: field, Comparator: model.ComparatorContains, Value: value.Value}, true
	case TokenRange:
		return model.Clause{
			ID:         id,
			Field:      field,
			Comparator: model.ComparatorRange,
			Value:      []any{rangeBound(value.Min), rangeBound(value.Max)},
		}, true
	case TokenWord:
		if value.Value == "" {
			return model.Clause{}, false
		}
		return model.Clause{ID: id, Field: field, Comparator: model.ComparatorIs, Value: value.Value}, true
	}
	return model.Clause{}, false
}

// rangeBound keeps numeric bounds as numbers.
func rangeBound(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
