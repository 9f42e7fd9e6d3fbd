package formula

import (
	"regexp"
	"strings"
)

type TokenKind int

const (
	TokenNumber TokenKind = iota
	TokenString
	TokenIdent
	TokenOperator
)

func (k TokenKind) String() string {
	switch k {
	case TokenNumber:
		return "number"
	case TokenString:
		return "string"
	case TokenIdent:
		return "identifier"
	case TokenOperator:
		return "operator"
	}
	return "unknown"
}

// Token is one lexical element. For strings Text holds the unquoted content.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

// maxTokens bounds the work a single formula can cause.
const maxTokens = 1024

var (
	threeCharOperators = []string{"==="}
	twoCharOperators   = []string{"!==", ">=", "<=", "&&", "||"}
	singleCharOperator = "+-*/()><?:!"

	identRegex  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
	numberRegex = regexp.MustCompile(`^([0-9]+(\.[0-9]*)?|\.[0-9]+)$`)
)

// Tokenize splits src into tokens. Quoted strings are consumed before any
// operator scanning so operator characters inside them are kept verbatim.
// Every accumulated word must be an identifier (optionally with one
// .attribute) or a number.
func Tokenize(src string) ([]Token, error) {
	var tokens []Token
	var word strings.Builder
	wordStart := 0

	flush := func() error {
		if word.Len() == 0 {
			return nil
		}
		text := word.String()
		word.Reset()
		switch {
		case numberRegex.MatchString(text):
			tokens = append(tokens, Token{Kind: TokenNumber, Text: text, Pos: wordStart})
		case identRegex.MatchString(text):
			tokens = append(tokens, Token{Kind: TokenIdent, Text: text, Pos: wordStart})
		default:
			return syntaxErrorf(wordStart, "invalid token %q", text)
		}
		return nil
	}
	emit := func(tok Token) error {
		if len(tokens) >= maxTokens {
			return syntaxErrorf(tok.Pos, "formula exceeds %d tokens", maxTokens)
		}
		tokens = append(tokens, tok)
		return nil
	}

	i := 0
	for i < len(src) {
		c := src[i]

		if c == '"' || c == '\'' {
			if err := flush(); err != nil {
				return nil, err
			}
			end := strings.IndexByte(src[i+1:], c)
			if end < 0 {
				return nil, syntaxErrorf(i, "unterminated string")
			}
			if err := emit(Token{Kind: TokenString, Text: src[i+1 : i+1+end], Pos: i}); err != nil {
				return nil, err
			}
			i += end + 2
			continue
		}

		if op, ok := matchOperator(src[i:]); ok {
			if err := flush(); err != nil {
				return nil, err
			}
			if err := emit(Token{Kind: TokenOperator, Text: op, Pos: i}); err != nil {
				return nil, err
			}
			i += len(op)
			continue
		}

		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			if err := flush(); err != nil {
				return nil, err
			}
			i++
			continue
		}

		if word.Len() == 0 {
			wordStart = i
		}
		word.WriteByte(c)
		i++
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(tokens) > maxTokens {
		return nil, syntaxErrorf(-1, "formula exceeds %d tokens", maxTokens)
	}
	return tokens, nil
}

func matchOperator(s string) (string, bool) {
	for _, op := range threeCharOperators {
		if strings.HasPrefix(s, op) {
			return op, true
		}
	}
	for _, op := range twoCharOperators {
		if strings.HasPrefix(s, op) {
			return op, true
		}
	}
	if s != "" && strings.IndexByte(singleCharOperator, s[0]) >= 0 {
		return s[:1], true
	}
	return "", false
}
