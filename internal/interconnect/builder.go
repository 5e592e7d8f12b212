package interconnect

import (
	"errors"
	"fmt"

	"github.com/san-kum/loopshape/internal/linalg"
	"github.com/san-kum/loopshape/internal/lti"
	"gonum.org/v1/gonum/mat"
)

// Signal is a named vector signal.
type Signal struct {
	Name string
	Size int
}

// BuildOptions control post-processing of the assembled model.
type BuildOptions struct {
	// Minimal removes uncontrollable and unobservable states.
	Minimal bool
	// Tolerance is the relative threshold for Minimal; zero selects
	// lti.DefaultMinrealTol.
	Tolerance float64
}

type component struct {
	name string
	sys  lti.StateSpace
}

// Builder collects components, external inputs and wiring.
type Builder struct {
	components  []component
	inputs      []Signal
	names       map[string]struct{}
	connections map[string]List
	outputs     List
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		names:       make(map[string]struct{}),
		connections: make(map[string]List),
	}
}

// AddInput declares an external input of the given width. Inputs of the
// assembled model appear in declaration order.
func (b *Builder) AddInput(name string, size int) error {
	if size <= 0 {
		return &WiringError{Signal: name, Wrapped: fmt.Errorf("%w: size %d", lti.ErrDimensionMismatch, size)}
	}
	if err := b.claim(name); err != nil {
		return err
	}
	b.inputs = append(b.inputs, Signal{Name: name, Size: size})
	return nil
}

// AddComponent registers a system. Its output is available to wiring
// expressions under name; its states appear in registration order.
func (b *Builder) AddComponent(name string, sys lti.StateSpace) error {
	if err := b.claim(name); err != nil {
		return err
	}
	b.components = append(b.components, component{name: name, sys: sys})
	return nil
}

func (b *Builder) claim(name string) error {
	if name == "" {
		return &WiringError{Wrapped: fmt.Errorf("%w: empty name", ErrParse)}
	}
	if _, ok := b.names[name]; ok {
		return &WiringError{Signal: name, Wrapped: ErrDuplicateSignal}
	}
	b.names[name] = struct{}{}
	return nil
}

// Connect wires the inputs of a component. The expressions of l are stacked
// and must cover exactly the component's inputs. A second call replaces the
// first.
func (b *Builder) Connect(comp string, l List) {
	b.connections[comp] = l
}

// AddOutput appends expressions to the external outputs of the model.
func (b *Builder) AddOutput(exprs ...Expr) {
	b.outputs = append(b.outputs, exprs...)
}

// Inputs returns the declared external inputs.
func (b *Builder) Inputs() []Signal {
	return append([]Signal(nil), b.inputs...)
}

type location struct {
	offset, size int
}

// Build assembles the interconnection. With v = [e; y] the external inputs
// followed by all component outputs, the wiring reads u = W_in v and
// z = W_out v. Closing y = C x + D u through the feedthroughs requires I - L
// to be invertible, L = D W_in,y.
func (b *Builder) Build(opts BuildOptions) (lti.StateSpace, error) {
	if len(b.components) == 0 {
		return lti.StateSpace{}, fmt.Errorf("%w: no components", lti.ErrMalformedSystem)
	}
	if len(b.inputs) == 0 {
		return lti.StateSpace{}, &WiringError{Wrapped: fmt.Errorf("%w: no external inputs", lti.ErrDimensionMismatch)}
	}
	if len(b.outputs) == 0 {
		return lti.StateSpace{}, &WiringError{Wrapped: fmt.Errorf("%w: no outputs", lti.ErrDimensionMismatch)}
	}
	for name := range b.connections {
		if !b.isComponent(name) {
			return lti.StateSpace{}, &WiringError{Component: name, Wrapped: ErrUnknownSignal}
		}
	}

	signals := make(map[string]location)
	ne := 0
	for _, in := range b.inputs {
		signals[in.Name] = location{ne, in.Size}
		ne += in.Size
	}
	pc, mc := 0, 0
	systems := make([]lti.StateSpace, len(b.components))
	for i, c := range b.components {
		signals[c.name] = location{ne + pc, c.sys.Outputs()}
		pc += c.sys.Outputs()
		mc += c.sys.Inputs()
		systems[i] = c.sys
	}
	width := ne + pc

	blk, err := lti.BlockDiagonal(systems...)
	if err != nil {
		return lti.StateSpace{}, err
	}

	win := mat.NewDense(mc, width, nil)
	row := 0
	for _, c := range b.components {
		l, ok := b.connections[c.name]
		if !ok {
			return lti.StateSpace{}, &WiringError{Component: c.name, Wrapped: ErrUnconnectedInput}
		}
		rows, err := wire(win, row, l, signals, c.sys.Inputs())
		if err != nil {
			var we *WiringError
			if errors.As(err, &we) && we.Component == "" {
				we.Component = c.name
			}
			return lti.StateSpace{}, err
		}
		row += rows
	}

	pout, err := listWidth(b.outputs, signals)
	if err != nil {
		return lti.StateSpace{}, err
	}
	wout := mat.NewDense(pout, width, nil)
	if _, err := wire(wout, 0, b.outputs, signals, pout); err != nil {
		return lti.StateSpace{}, err
	}

	sys, err := eliminate(blk, win, wout, ne, pc, mc, pout)
	if err != nil {
		return lti.StateSpace{}, err
	}
	if opts.Minimal {
		sys = lti.Minreal(sys, opts.Tolerance)
	}
	return sys, nil
}

func (b *Builder) isComponent(name string) bool {
	for _, c := range b.components {
		if c.name == name {
			return true
		}
	}
	return false
}

// resolve returns the columns of v that t selects.
func resolve(t Term, signals map[string]location) (location, error) {
	loc, ok := signals[t.Signal]
	if !ok {
		return location{}, &WiringError{Signal: t.Signal, Wrapped: ErrUnknownSignal}
	}
	if t.Slice == nil {
		return loc, nil
	}
	if t.Slice.From < 1 || t.Slice.To > loc.size || t.Slice.To < t.Slice.From {
		return location{}, &WiringError{Signal: t.Signal, Wrapped: fmt.Errorf("%w: slice %d:%d of a %d-vector",
			lti.ErrDimensionMismatch, t.Slice.From, t.Slice.To, loc.size)}
	}
	return location{loc.offset + t.Slice.From - 1, t.Slice.Len()}, nil
}

func exprWidth(e Expr, signals map[string]location) (int, error) {
	if len(e) == 0 {
		return 0, &WiringError{Wrapped: fmt.Errorf("%w: empty expression", ErrParse)}
	}
	w := -1
	for _, t := range e {
		loc, err := resolve(t, signals)
		if err != nil {
			return 0, err
		}
		if w >= 0 && loc.size != w {
			return 0, &WiringError{Signal: t.Signal, Wrapped: fmt.Errorf("%w: %q mixes widths %d and %d",
				lti.ErrDimensionMismatch, e.String(), w, loc.size)}
		}
		w = loc.size
	}
	return w, nil
}

func listWidth(l List, signals map[string]location) (int, error) {
	total := 0
	for _, e := range l {
		w, err := exprWidth(e, signals)
		if err != nil {
			return 0, err
		}
		total += w
	}
	return total, nil
}

// wire writes the rows of l into w starting at row r0 and checks that they
// number exactly want.
func wire(w *mat.Dense, r0 int, l List, signals map[string]location, want int) (int, error) {
	got, err := listWidth(l, signals)
	if err != nil {
		return 0, err
	}
	if got != want {
		return 0, &WiringError{Wrapped: fmt.Errorf("%w: %s has %d rows, want %d",
			lti.ErrDimensionMismatch, l.String(), got, want)}
	}
	r := r0
	for _, e := range l {
		width := 0
		for _, t := range e {
			loc, _ := resolve(t, signals)
			for k := 0; k < loc.size; k++ {
				w.Set(r+k, loc.offset+k, w.At(r+k, loc.offset+k)+t.Coef)
			}
			width = loc.size
		}
		r += width
	}
	return got, nil
}

// eliminate removes the component inputs and outputs from the stacked model.
func eliminate(blk lti.StateSpace, win, wout *mat.Dense, ne, pc, mc, pout int) (lti.StateSpace, error) {
	n := blk.States()
	a, bb, c, d := blk.A(), blk.B(), blk.C(), blk.D()

	wie := linalg.Slice(win, 0, mc, 0, ne)
	wiy := linalg.Slice(win, 0, mc, ne, ne+pc)
	woe := linalg.Slice(wout, 0, pout, 0, ne)
	woy := linalg.Slice(wout, 0, pout, ne, ne+pc)

	l := linalg.Mul(d, wiy, pc, pc)
	e, err := linalg.Inverse(linalg.IMinus(l, pc), linalg.MaxCond)
	if err != nil {
		return lti.StateSpace{}, fmt.Errorf("%w: I - D*W has condition above %g", ErrUnresolvableInterconnection, linalg.MaxCond)
	}

	// y = E C x + E D W_ie e
	ec := linalg.Mul(e, c, pc, n)
	edw := linalg.Mul(linalg.Mul(e, d, pc, mc), wie, pc, ne)
	// u = W_iy y + W_ie e
	uc := linalg.Mul(wiy, ec, mc, n)
	ud := linalg.Add(wie, linalg.Mul(wiy, edw, mc, ne), mc, ne)

	am := linalg.Add(a, linalg.Mul(bb, uc, n, n), n, n)
	bm := linalg.Mul(bb, ud, n, ne)
	cm := linalg.Mul(woy, ec, pout, n)
	dm := linalg.Add(woe, linalg.Mul(woy, edw, pout, ne), pout, ne)
	sys, err := lti.New(am, bm, cm, dm)
	if err != nil {
		return lti.StateSpace{}, fmt.Errorf("interconnect: assembled model: %w", err)
	}
	return sys, nil
}
