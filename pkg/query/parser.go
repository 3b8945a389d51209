package query

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/kittclouds/notesynth/pkg/markdown"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokWord
	tokString
	tokTag
	tokLink
	tokNumber
	tokLParen
	tokRParen
	tokMinus
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '-':
			toks = append(toks, token{tokMinus, "-", i})
			i++
		case c == '"':
			end := strings.IndexByte(src[i+1:], '"')
			if end == -1 {
				return nil, &SyntaxError{Pos: i, Msg: "unterminated string"}
			}
			toks = append(toks, token{tokString, src[i+1 : i+1+end], i})
			i += end + 2
		case c == '#':
			j := i + 1
			for j < len(src) && !isDelimiter(src[j]) {
				j++
			}
			if j == i+1 {
				return nil, &SyntaxError{Pos: i, Msg: "empty tag"}
			}
			toks = append(toks, token{tokTag, src[i+1 : j], i})
			i = j
		case strings.HasPrefix(src[i:], "[["):
			end := strings.Index(src[i+2:], "]]")
			if end == -1 {
				return nil, &SyntaxError{Pos: i, Msg: "unterminated link"}
			}
			target := src[i+2 : i+2+end]
			if p := strings.IndexByte(target, '|'); p >= 0 {
				target = target[:p]
			}
			target, _ = markdown.ParseLinktext(target)
			if target == "" {
				return nil, &SyntaxError{Pos: i, Msg: "empty link"}
			}
			toks = append(toks, token{tokLink, target, i})
			i += end + 4
		case c >= '0' && c <= '9':
			j := i
			for j < len(src) && src[j] >= '0' && src[j] <= '9' {
				j++
			}
			toks = append(toks, token{tokNumber, src[i:j], i})
			i = j
		case isWordByte(c):
			j := i
			for j < len(src) && (isWordByte(src[j]) || (src[j] >= '0' && src[j] <= '9')) {
				j++
			}
			toks = append(toks, token{tokWord, src[i:j], i})
			i = j
		default:
			return nil, &SyntaxError{Pos: i, Msg: "unexpected character " + strconv.QuoteRune(rune(c))}
		}
	}
	toks = append(toks, token{tokEOF, "", len(src)})
	return toks, nil
}

func isDelimiter(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '(' || c == ')'
}

func isWordByte(c byte) bool {
	return c == '_' || c == '.' || c >= 0x80 || unicode.IsLetter(rune(c))
}

type parser struct {
	toks []token
	pos  int
}

// Parse parses query text.
func Parse(src string) (*Query, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseQuery()
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) keyword(t token, kw string) bool {
	return t.kind == tokWord && strings.EqualFold(t.text, kw)
}

func (p *parser) errorf(t token, msg string) error {
	return &SyntaxError{Pos: t.pos, Msg: msg}
}

func (p *parser) parseQuery() (*Query, error) {
	q := &Query{}

	if p.keyword(p.peek(), "LIST") {
		p.next()
	}

	if p.keyword(p.peek(), "FROM") {
		p.next()
		src, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		q.Source = src
	}

	if p.keyword(p.peek(), "SIMILAR") {
		p.next()
		t := p.next()
		if t.kind != tokLink {
			return nil, p.errorf(t, "SIMILAR expects a [[link]]")
		}
		q.Similar = t.text
	}

	if p.keyword(p.peek(), "SORT") {
		p.next()
		t := p.next()
		field := strings.ToLower(t.text)
		if t.kind != tokWord || (field != FieldMTime && field != FieldName && field != FieldPath) {
			return nil, p.errorf(t, "SORT expects file.mtime, file.name or file.path")
		}
		q.Sort = &Sort{Field: field}
		switch {
		case p.keyword(p.peek(), "DESC"):
			p.next()
			q.Sort.Desc = true
		case p.keyword(p.peek(), "ASC"):
			p.next()
		}
	}

	if p.keyword(p.peek(), "LIMIT") {
		p.next()
		t := p.next()
		if t.kind != tokNumber {
			return nil, p.errorf(t, "LIMIT expects a number")
		}
		n, err := strconv.Atoi(t.text)
		if err != nil || n <= 0 {
			return nil, p.errorf(t, "LIMIT must be positive")
		}
		q.Limit = n
	}

	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected "+strconv.Quote(t.text))
	}
	return q, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword(p.peek(), "OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.keyword(p.peek(), "AND") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	t := p.peek()
	if t.kind == tokMinus || p.keyword(t, "NOT") {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Not{Expr: inner}, nil
	}
	return p.parseTerm()
}

func (p *parser) parseTerm() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		return Folder{Path: strings.Trim(strings.TrimSpace(t.text), "/")}, nil
	case tokTag:
		return Tag{Name: markdown.NormalizeTag(t.text)}, nil
	case tokLink:
		return LinksTo{Target: t.text}, nil
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected )")
		}
		return inner, nil
	case tokWord:
		if strings.EqualFold(t.text, "outgoing") {
			if open := p.next(); open.kind != tokLParen {
				return nil, p.errorf(open, "outgoing expects (")
			}
			link := p.next()
			if link.kind != tokLink {
				return nil, p.errorf(link, "outgoing expects a [[link]]")
			}
			if closing := p.next(); closing.kind != tokRParen {
				return nil, p.errorf(closing, "expected )")
			}
			return LinkedFrom{Source: link.text}, nil
		}
	}
	return nil, p.errorf(t, "expected a source")
}
