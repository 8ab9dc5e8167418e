package filterexpr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokQuotedIdent
	tokNumber
	tokString
	tokOp
	tokLParen
	tokRParen
	tokLBrack
	tokRBrack
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return fmt.Sprintf("%q at %d", t.text, t.pos)
}

// lex splits src into tokens. Only the operators the grammar understands are
// accepted; anything else (attribute access, arithmetic, '@' references) is
// rejected here.
func lex(src string) ([]token, error) {
	var out []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			out = append(out, token{tokLParen, "(", i})
			i++
		case c == ')':
			out = append(out, token{tokRParen, ")", i})
			i++
		case c == '[':
			out = append(out, token{tokLBrack, "[", i})
			i++
		case c == ']':
			out = append(out, token{tokRBrack, "]", i})
			i++
		case c == ',':
			out = append(out, token{tokComma, ",", i})
			i++
		case c == '&' || c == '|' || c == '~':
			out = append(out, token{tokOp, string(c), i})
			i++
		case c == '=' || c == '!' || c == '<' || c == '>':
			start := i
			i++
			if i < len(src) && src[i] == '=' {
				i++
			}
			op := src[start:i]
			if op == "=" || op == "!" {
				return nil, fmt.Errorf("unexpected %q at %d", op, start)
			}
			out = append(out, token{tokOp, op, start})
		case c == '\'' || c == '"':
			s, n, err := lexString(src[i:])
			if err != nil {
				return nil, fmt.Errorf("string at %d: %w", i, err)
			}
			out = append(out, token{tokString, s, i})
			i += n
		case c == '`':
			end := strings.IndexByte(src[i+1:], '`')
			if end < 0 {
				return nil, fmt.Errorf("unterminated quoted column at %d", i)
			}
			out = append(out, token{tokQuotedIdent, src[i+1 : i+1+end], i})
			i += end + 2
		case c == '-' || c == '.' || (c >= '0' && c <= '9'):
			start := i
			if c == '-' {
				i++
			}
			for i < len(src) && (isDigit(src[i]) || src[i] == '.' || src[i] == 'e' || src[i] == 'E' ||
				((src[i] == '+' || src[i] == '-') && (src[i-1] == 'e' || src[i-1] == 'E'))) {
				i++
			}
			if i == start+1 && c == '-' {
				return nil, fmt.Errorf("unexpected '-' at %d", start)
			}
			out = append(out, token{tokNumber, src[start:i], start})
		default:
			r := rune(c)
			if r == '_' || unicode.IsLetter(r) || c >= 0x80 {
				start := i
				for i < len(src) {
					r := rune(src[i])
					if r == '_' || isDigit(src[i]) || unicode.IsLetter(r) || src[i] >= 0x80 {
						i++
						continue
					}
					break
				}
				out = append(out, token{tokIdent, src[start:i], start})
				continue
			}
			return nil, fmt.Errorf("unexpected %q at %d", c, i)
		}
	}
	out = append(out, token{kind: tokEOF, pos: len(src)})
	return out, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// lexString reads a single- or double-quoted literal with backslash escapes
// and returns its value and the number of bytes consumed.
func lexString(s string) (string, int, error) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(s[i])
			}
		case c == quote:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, fmt.Errorf("unterminated")
}
