package interconnect

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/scanner"
)

// Slice selects elements From..To of a vector signal, 1-based and inclusive.
type Slice struct {
	From, To int
}

// Len returns the number of selected elements.
func (s Slice) Len() int { return s.To - s.From + 1 }

// Term is one weighted reference to a named signal. Coef is +1 or -1 for a
// plain signed sum.
type Term struct {
	Signal string
	Coef   float64
	Slice  *Slice
}

// Expr is a sum of terms. All terms must resolve to the same width.
type Expr []Term

// List stacks expressions vertically.
type List []Expr

func (t Term) String() string {
	var b strings.Builder
	c := math.Abs(t.Coef)
	if c != 1 {
		b.WriteString(strconv.FormatFloat(c, 'g', -1, 64))
		b.WriteByte('*')
	}
	b.WriteString(t.Signal)
	if t.Slice != nil {
		if t.Slice.From == t.Slice.To {
			fmt.Fprintf(&b, "(%d)", t.Slice.From)
		} else {
			fmt.Fprintf(&b, "(%d:%d)", t.Slice.From, t.Slice.To)
		}
	}
	return b.String()
}

func (e Expr) String() string {
	var b strings.Builder
	for i, t := range e {
		switch {
		case i == 0 && t.Coef < 0:
			b.WriteByte('-')
		case i > 0 && t.Coef < 0:
			b.WriteString(" - ")
		case i > 0:
			b.WriteString(" + ")
		}
		b.WriteString(t.String())
	}
	return b.String()
}

func (l List) String() string {
	parts := make([]string, len(l))
	for i, e := range l {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, "; ") + "]"
}

// Parse reads a single expression such as "yref - plant" or "0.5*u(1:2)".
func Parse(src string) (Expr, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(scanner.EOF); err != nil {
		return nil, err
	}
	return e, nil
}

// ParseList reads a bracketed, semicolon-separated list such as
// "[wt; wu; yref-plant]". A bare expression is accepted as a list of one.
func ParseList(src string) (List, error) {
	p, err := newParser(src)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != '[' {
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(scanner.EOF); err != nil {
			return nil, err
		}
		return List{e}, nil
	}
	p.next()
	var out List
	for {
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		tok := p.next()
		if tok.kind == ']' {
			break
		}
		if tok.kind != ';' {
			return nil, p.errorf(tok, "expected ';' or ']'")
		}
	}
	if err := p.expect(scanner.EOF); err != nil {
		return nil, err
	}
	return out, nil
}

// MustParseList is like ParseList but panics on error. It is meant for
// wiring fixed at compile time.
func MustParseList(src string) List {
	l, err := ParseList(src)
	if err != nil {
		panic(err)
	}
	return l
}

type token struct {
	kind rune
	text string
	pos  scanner.Position
}

type parser struct {
	src  string
	toks []token
	i    int
}

func newParser(src string) (*parser, error) {
	var s scanner.Scanner
	s.Init(strings.NewReader(src))
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats
	var scanErr error
	s.Error = func(_ *scanner.Scanner, msg string) {
		if scanErr == nil {
			scanErr = fmt.Errorf("%w: %q: %s", ErrParse, src, msg)
		}
	}
	p := &parser{src: src}
	for {
		k := s.Scan()
		p.toks = append(p.toks, token{kind: k, text: s.TokenText(), pos: s.Position})
		if k == scanner.EOF {
			break
		}
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return p, nil
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != scanner.EOF {
		p.i++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	got := t.text
	if t.kind == scanner.EOF {
		got = "end of input"
	}
	return fmt.Errorf("%w: %q at column %d: %s, got %s", ErrParse, p.src, t.pos.Column, fmt.Sprintf(format, args...), got)
}

func (p *parser) expect(kind rune) error {
	t := p.next()
	if t.kind != kind {
		return p.errorf(t, "expected %s", scanner.TokenString(kind))
	}
	return nil
}

func (p *parser) expr() (Expr, error) {
	var e Expr
	sign := 1.0
	switch p.peek().kind {
	case '-':
		sign = -1
		p.next()
	case '+':
		p.next()
	}
	for {
		t, err := p.term(sign)
		if err != nil {
			return nil, err
		}
		e = append(e, t)
		switch p.peek().kind {
		case '+':
			sign = 1
		case '-':
			sign = -1
		default:
			return e, nil
		}
		p.next()
	}
}

func (p *parser) term(sign float64) (Term, error) {
	coef := sign
	if k := p.peek().kind; k == scanner.Int || k == scanner.Float {
		t := p.next()
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return Term{}, p.errorf(t, "bad coefficient")
		}
		coef *= v
		if err := p.expect('*'); err != nil {
			return Term{}, err
		}
	}
	id := p.next()
	if id.kind != scanner.Ident {
		return Term{}, p.errorf(id, "expected signal name")
	}
	term := Term{Signal: id.text, Coef: coef}
	if p.peek().kind != '(' {
		return term, nil
	}
	p.next()
	from, err := p.index()
	if err != nil {
		return Term{}, err
	}
	to := from
	if p.peek().kind == ':' {
		p.next()
		if to, err = p.index(); err != nil {
			return Term{}, err
		}
	}
	if err := p.expect(')'); err != nil {
		return Term{}, err
	}
	if from < 1 || to < from {
		return Term{}, fmt.Errorf("%w: %q: invalid slice %d:%d", ErrParse, p.src, from, to)
	}
	term.Slice = &Slice{From: from, To: to}
	return term, nil
}

func (p *parser) index() (int, error) {
	t := p.next()
	if t.kind != scanner.Int {
		return 0, p.errorf(t, "expected index")
	}
	v, err := strconv.Atoi(t.text)
	if err != nil {
		return 0, p.errorf(t, "bad index")
	}
	return v, nil
}
