package lucene

import (
	"strings"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenWord
	TokenString
	TokenField // FIELD: (colon consumed)
	TokenLParen
	TokenRParen
	TokenAnd
	TokenOr
	TokenNot

	// Value tokens, only produced by NextValue.
	TokenWildcard // *text*
	TokenRange    // [min TO max]
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenWord:
		return "word"
	case TokenString:
		return "string"
	case TokenField:
		return "field"
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenNot:
		return "NOT"
	case TokenWildcard:
		return "wildcard"
	case TokenRange:
		return "range"
	}
	return "unknown"
}

// Token represents a lexical token.
type Token struct {
	Type  TokenType
	Value string
	Pos   int

	// Min and Max hold the bounds of a TokenRange.
	Min, Max string

	// Unterminated is set on a TokenString missing its closing quote.
	Unterminated bool
}

func (t Token) String() string {
	if t.Value == "" {
		return t.Type.String()
	}
	return t.Type.String() + " " + t.Value
}

// Lexer tokenizes query input. Keywords are recognised in upper case only,
// so "and" or "or" inside free text stay plain words.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	switch l.input[l.pos] {
	case '(':
		l.pos++
		return Token{Type: TokenLParen, Value: "(", Pos: l.pos - 1}
	case ')':
		l.pos++
		return Token{Type: TokenRParen, Value: ")", Pos: l.pos - 1}
	case '"':
		return l.readString()
	}

	return l.readWord()
}

// NextValue reads the value that directly follows a TokenField. An empty
// TokenWord means the field has no value.
func (l *Lexer) NextValue() Token {
	start := l.pos
	if l.pos >= len(l.input) || isSpace(l.input[l.pos]) || l.input[l.pos] == ')' {
		return Token{Type: TokenWord, Pos: start}
	}

	switch l.input[l.pos] {
	case '"':
		return l.readString()
	case '*':
		if end := strings.IndexByte(l.input[start+1:], '*'); end > 0 {
			l.pos = start + 1 + end + 1
			return Token{Type: TokenWildcard, Value: l.input[start+1 : start+1+end], Pos: start}
		}
	case '[':
		if end := strings.IndexByte(l.input[start:], ']'); end > 0 {
			inner := l.input[start+1 : start+end]
			if lo, hi, ok := strings.Cut(inner, " TO "); ok {
				l.pos = start + end + 1
				return Token{
					Type:  TokenRange,
					Value: l.input[start:l.pos],
					Pos:   start,
					Min:   strings.TrimSpace(lo),
					Max:   strings.TrimSpace(hi),
				}
			}
		}
	}

	for l.pos < len(l.input) && !isSpace(l.input[l.pos]) && l.input[l.pos] != ')' {
		l.pos++
	}
	return Token{Type: TokenWord, Value: l.input[start:l.pos], Pos: start}
}

// BareValue moves back to pos and reads up to the next whitespace. Flat
// parsing uses it to keep an unterminated quote as a literal value.
func (l *Lexer) BareValue(pos int) Token {
	l.pos = pos
	for l.pos < len(l.input) && !isSpace(l.input[l.pos]) {
		l.pos++
	}
	return Token{Type: TokenWord, Value: l.input[pos:l.pos], Pos: pos}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
}

// readString reads a double-quoted string. \" and \\ are unescaped; any
// other backslash is kept literally.
func (l *Lexer) readString() Token {
	start := l.pos
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) && (l.input[l.pos+1] == '"' || l.input[l.pos+1] == '\\') {
			sb.WriteByte(l.input[l.pos+1])
			l.pos += 2
			continue
		}
		if ch == '"' {
			l.pos++
			return Token{Type: TokenString, Value: sb.String(), Pos: start}
		}
		sb.WriteByte(ch)
		l.pos++
	}
	return Token{Type: TokenString, Value: sb.String(), Pos: start, Unterminated: true}
}

func (l *Lexer) readWord() Token {
	start := l.pos
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == ':' {
			if word := l.input[start:l.pos]; isFieldName(word) {
				l.pos++
				return Token{Type: TokenField, Value: word, Pos: start}
			}
			l.pos++
			continue
		}
		if isSpace(ch) || ch == '(' || ch == ')' || ch == '"' {
			break
		}
		l.pos++
	}

	word := l.input[start:l.pos]
	switch word {
	case "AND":
		return Token{Type: TokenAnd, Value: word, Pos: start}
	case "OR":
		return Token{Type: TokenOr, Value: word, Pos: start}
	case "NOT":
		return Token{Type: TokenNot, Value: word, Pos: start}
	}
	return Token{Type: TokenWord, Value: word, Pos: start}
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// isFieldName reports whether s only uses [A-Za-z0-9_.-].
func isFieldName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '_' || ch == '.' || ch == '-':
		default:
			return false
		}
	}
	return true
}

// isPlainWord reports whether s lexes back to a single TokenWord.
func isPlainWord(s string) bool {
	if s == "" || s == "AND" || s == "OR" || s == "NOT" {
		return false
	}
	return !strings.ContainsAny(s, " \t\n\r()\":")
}
