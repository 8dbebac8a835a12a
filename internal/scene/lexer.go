package scene

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokAsset
	tokPath
	tokPunct
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokNumber:
		return "number"
	case tokString:
		return "string"
	case tokAsset:
		return "asset path"
	case tokPath:
		return "prim path"
	default:
		return "punctuation"
	}
}

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

type lexer struct {
	src  string
	off  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: line %d col %d: %s", ErrSyntax, l.line, l.col, fmt.Sprintf(format, args...))
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.off < len(l.src); i++ {
		if l.src[l.off] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.off++
	}
}

func (l *lexer) skipSpace() {
	for l.off < len(l.src) {
		c := l.src[l.off]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance(1)
		case c == '#':
			for l.off < len(l.src) && l.src[l.off] != '\n' {
				l.advance(1)
			}
		default:
			return
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9') || c == ':' || c == '.'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	tok := token{line: l.line, col: l.col}
	if l.off >= len(l.src) {
		tok.kind = tokEOF
		return tok, nil
	}
	c := l.src[l.off]
	switch {
	case isIdentStart(c):
		start := l.off
		for l.off < len(l.src) && isIdentPart(l.src[l.off]) {
			l.advance(1)
		}
		tok.kind = tokIdent
		tok.text = l.src[start:l.off]
		return tok, nil
	case isDigit(c) || c == '-' || c == '+' || (c == '.' && l.off+1 < len(l.src) && isDigit(l.src[l.off+1])):
		return l.number(tok)
	case c == '"' || c == '\'':
		s, err := l.quoted(c)
		if err != nil {
			return tok, err
		}
		tok.kind = tokString
		tok.text = s
		return tok, nil
	case c == '@':
		l.advance(1)
		end := strings.IndexByte(l.src[l.off:], '@')
		if end < 0 {
			return tok, l.errorf("unterminated asset path")
		}
		tok.kind = tokAsset
		tok.text = l.src[l.off : l.off+end]
		l.advance(end + 1)
		return tok, nil
	case c == '<':
		l.advance(1)
		end := strings.IndexByte(l.src[l.off:], '>')
		if end < 0 {
			return tok, l.errorf("unterminated prim path")
		}
		tok.kind = tokPath
		tok.text = l.src[l.off : l.off+end]
		l.advance(end + 1)
		return tok, nil
	case strings.ContainsRune("()[]{}=,;:", rune(c)):
		l.advance(1)
		tok.kind = tokPunct
		tok.text = string(c)
		return tok, nil
	}
	return tok, l.errorf("unexpected character %q", c)
}

func (l *lexer) number(tok token) (token, error) {
	start := l.off
	if c := l.src[l.off]; c == '-' || c == '+' {
		l.advance(1)
	}
	// -inf / +inf
	if strings.HasPrefix(l.src[l.off:], "inf") {
		l.advance(3)
		tok.kind = tokNumber
		tok.text = l.src[start:l.off]
		return tok, nil
	}
	for l.off < len(l.src) {
		c := l.src[l.off]
		if isDigit(c) || c == '.' {
			l.advance(1)
			continue
		}
		if (c == 'e' || c == 'E') && l.off+1 < len(l.src) {
			l.advance(1)
			if n := l.src[l.off]; n == '-' || n == '+' {
				l.advance(1)
			}
			continue
		}
		break
	}
	tok.kind = tokNumber
	tok.text = l.src[start:l.off]
	if tok.text == "-" || tok.text == "+" {
		return tok, l.errorf("dangling sign")
	}
	return tok, nil
}

func (l *lexer) quoted(q byte) (string, error) {
	triple := strings.Repeat(string(q), 3)
	if strings.HasPrefix(l.src[l.off:], triple) {
		l.advance(3)
		end := strings.Index(l.src[l.off:], triple)
		if end < 0 {
			return "", l.errorf("unterminated string")
		}
		s := l.src[l.off : l.off+end]
		l.advance(end + 3)
		return s, nil
	}
	start := l.off
	l.advance(1)
	for l.off < len(l.src) {
		c := l.src[l.off]
		if c == '\\' {
			l.advance(2)
			continue
		}
		if c == '\n' {
			return "", l.errorf("newline in string")
		}
		l.advance(1)
		if c == q {
			raw := l.src[start:l.off]
			if q == '\'' {
				raw = `"` + strings.ReplaceAll(raw[1:len(raw)-1], `"`, `\"`) + `"`
			}
			s, err := strconv.Unquote(raw)
			if err != nil {
				return raw[1 : len(raw)-1], nil
			}
			return s, nil
		}
	}
	return "", l.errorf("unterminated string")
}
