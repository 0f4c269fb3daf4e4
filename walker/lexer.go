package walker

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokSymbol
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokIdent:
		return "identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	default:
		return "symbol"
	}
}

// token is a lexical token. Pos and End are byte offsets into the source.
type token struct {
	kind tokenKind
	text string
	pos  int
	end  int
}

// lex splits an expression into tokens. Symbols other than the structural ones
// are passed through so that where() criteria survive as source text.
func lex(src string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++

		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			// line comment
			for i < len(src) && src[i] != '\n' {
				i++
			}

		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(rune(src[i])) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: src[start:i], pos: start, end: i})

		case c == '`':
			start := i
			j := strings.IndexByte(src[i+1:], '`')
			if j < 0 {
				return nil, fmt.Errorf("%w: unterminated delimited identifier at %d", ErrSyntax, start)
			}
			i += j + 2
			tokens = append(tokens, token{kind: tokIdent, text: src[start+1 : i-1], pos: start, end: i})

		case c == '\'':
			start := i
			text, n, err := scanString(src[i:])
			if err != nil {
				return nil, fmt.Errorf("%w: %v at %d", ErrSyntax, err, start)
			}
			i += n
			tokens = append(tokens, token{kind: tokString, text: text, pos: start, end: i})

		case c >= '0' && c <= '9':
			start := i
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokNumber, text: src[start:i], pos: start, end: i})

		default:
			start := i
			// two-character comparison operators stay together
			if i+1 < len(src) && src[i+1] == '=' && strings.ContainsRune("!<>", c) {
				i += 2
			} else {
				i++
			}
			tokens = append(tokens, token{kind: tokSymbol, text: src[start:i], pos: start, end: i})
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(src), end: len(src)})
	return tokens, nil
}

// scanString reads a single-quoted string literal at the start of s and
// returns its unescaped content and the number of bytes consumed.
func scanString(s string) (string, int, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\'':
			return b.String(), i + 1, nil
		case '\\':
			if i+1 >= len(s) {
				return "", 0, fmt.Errorf("unterminated escape")
			}
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(s[i])
			}
		default:
			b.WriteByte(s[i])
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}

func isIdentStart(c rune) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c rune) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}
