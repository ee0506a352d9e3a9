// Package fit finds the longest leading part of a run of inline content that
// fits a fixed box.
//
// The package never lays anything out itself. A Measurer reports how tall a
// candidate renders and the Fitter searches the content boundaries: first at
// node granularity (atomic elements are all or nothing), then inside the one
// text run that straddles the box edge.
package fit

import (
	"context"
	"math"
	"math/bits"
)

// DefaultEllipsis is appended after the last visible content of a truncated
// candidate.
const DefaultEllipsis = "… "

// Measurer reports the rendered height of a candidate. Calls made by one pass
// are strictly sequential.
type Measurer interface {
	Measure(ctx context.Context, content []Node, c Candidate) (float64, error)
}

// MeasureFunc adapts a function to Measurer.
type MeasureFunc func(ctx context.Context, content []Node, c Candidate) (float64, error)

func (f MeasureFunc) Measure(ctx context.Context, content []Node, c Candidate) (float64, error) {
	return f(ctx, content, c)
}

// Options configures a Fitter.
type Options struct {
	// Ellipsis is the truncation marker; empty means DefaultEllipsis.
	Ellipsis string
	// Granularity selects legal cut points inside text runs.
	Granularity Granularity
	// MaxProbes caps oracle calls per pass. Zero derives the bound from the
	// content: one full measurement plus both binary searches.
	MaxProbes int
}

// Fitter runs fit passes. It holds no per-pass state and is safe for
// concurrent use; passes over the same content must still be serialized by
// the caller.
type Fitter struct {
	opts Options
}

// New returns a Fitter with the given options.
func New(opts Options) *Fitter {
	if opts.Ellipsis == "" {
		opts.Ellipsis = DefaultEllipsis
	}
	return &Fitter{opts: opts}
}

// Options returns the effective options.
func (f *Fitter) Options() Options { return f.opts }

// Fit runs a pass with default options.
func Fit(ctx context.Context, content []Node, box Box, m Measurer) (Result, error) {
	return New(Options{}).Fit(ctx, content, box, m)
}

// Fit returns the maximal prefix of content that renders within box.Height.
//
// Content without body nodes is never truncated. A non-positive box yields a
// fully collapsed result without probing. Errors from the oracle abort the
// pass as *MeasurementError; a context error means the pass was superseded.
func (f *Fitter) Fit(ctx context.Context, content []Node, box Box, m Measurer) (Result, error) {
	body := bodyIndexes(content)
	full := Full(content)
	if len(body) == 0 {
		return Result{Candidate: full}, nil
	}
	if !box.Valid() {
		return collapsed(body), nil
	}

	p := &pass{
		ctx:     ctx,
		content: content,
		box:     box,
		m:       m,
		marker:  f.opts.Ellipsis,
		expand:  hasSlot(content, SlotExpand),
		budget:  f.opts.MaxProbes,
	}
	if p.budget <= 0 {
		p.budget = probeBound(content, body)
	}

	h, err := p.measure(full)
	if err != nil {
		return Result{}, err
	}
	if h <= box.Height {
		return Result{Candidate: full, Probes: p.probes}, nil
	}

	// lo: largest body position known to fit whole-node-wise, hi: smallest
	// known not to. The full content (hi = len(body)) was just rejected.
	lo, hi := -1, len(body)
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		ok, err := p.fits(Boundary{Node: body[mid]})
		if err != nil {
			return Result{}, err
		}
		if ok {
			lo = mid
		} else {
			hi = mid
		}
	}
	if lo < 0 {
		res := collapsed(body)
		res.Probes = p.probes
		return res, nil
	}

	best := Boundary{Node: body[lo]}
	if n := content[best.Node]; n.Kind == KindText {
		offsets := breakOffsets(n.Text, f.opts.Granularity)
		l, h := -1, len(offsets)
		for h-l > 1 {
			mid := l + (h-l)/2
			ok, err := p.fits(Boundary{Node: best.Node, Offset: offsets[mid]})
			if err != nil {
				return Result{}, err
			}
			if ok {
				l = mid
			} else {
				h = mid
			}
		}
		if l >= 0 {
			best.Offset = offsets[l]
		}
	}

	// An empty prefix carries no marker and always fits: nothing visible
	// means fully collapsed.
	c := p.candidate(best)
	if c.EllipsisAfter < 0 {
		res := collapsed(body)
		res.Probes = p.probes
		return res, nil
	}
	return Result{
		Candidate: c,
		Truncated: true,
		Probes:    p.probes,
	}, nil
}

func collapsed(body []int) Result {
	return Result{
		Candidate: Candidate{Boundary: Boundary{Node: body[0]}, EllipsisAfter: -1},
		Truncated: true,
		Collapsed: true,
	}
}

// probeBound is 1 + ⌈log2(N+1)⌉ + ⌈log2(M+1)⌉ with M the byte length of the
// longest text run, an upper bound on its cut points.
func probeBound(content []Node, body []int) int {
	longest := 0
	for _, i := range body {
		if n := content[i]; n.Kind == KindText && len(n.Text) > longest {
			longest = len(n.Text)
		}
	}
	return 1 + bits.Len(uint(len(body))) + bits.Len(uint(longest))
}

type probe struct {
	at     Boundary
	height float64
}

type pass struct {
	ctx     context.Context
	content []Node
	box     Box
	m       Measurer
	marker  string
	expand  bool
	budget  int
	probes  int
	seen    []probe
}

func (p *pass) candidate(b Boundary) Candidate {
	c := Candidate{Boundary: b, EllipsisAfter: ellipsisPoint(p.content, b), Expand: p.expand}
	if c.EllipsisAfter >= 0 {
		c.Marker = p.marker
	}
	return c
}

func (p *pass) measure(c Candidate) (float64, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	if p.probes >= p.budget {
		return 0, nonMonotonic("probe budget of %d exhausted", p.budget)
	}
	p.probes++
	h, err := p.m.Measure(p.ctx, p.content, c)
	if err != nil {
		if ctxErr := p.ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		return 0, &MeasurementError{Candidate: c, Err: err}
	}
	if math.IsNaN(h) || math.IsInf(h, 0) || h < 0 {
		return 0, &MeasurementError{Candidate: c, Err: invalidHeight(h)}
	}
	return h, nil
}

// fits probes a truncated candidate and checks its height against every
// earlier truncated probe: a longer prefix must never render shorter.
func (p *pass) fits(b Boundary) (bool, error) {
	h, err := p.measure(p.candidate(b))
	if err != nil {
		return false, err
	}
	for _, prev := range p.seen {
		tol := 1e-6 * math.Max(1, math.Max(h, prev.height))
		switch {
		case prev.at.Before(b) && prev.height > h+tol:
			return false, nonMonotonic("boundary %d:%d measured %g, shorter prefix %d:%d measured %g",
				b.Node, b.Offset, h, prev.at.Node, prev.at.Offset, prev.height)
		case b.Before(prev.at) && h > prev.height+tol:
			return false, nonMonotonic("boundary %d:%d measured %g, longer prefix %d:%d measured %g",
				b.Node, b.Offset, h, prev.at.Node, prev.at.Offset, prev.height)
		}
	}
	p.seen = append(p.seen, probe{at: b, height: h})
	return h <= p.box.Height, nil
}
