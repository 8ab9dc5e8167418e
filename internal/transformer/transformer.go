// Package transformer applies a plan's ordered transform list to a table.
//
// Each plan.Transform compiles to a Step. A Chain runs steps in order; a step
// that cannot apply (unknown column, bad filter, unknown op) reports why and
// leaves the table as it was, so one bad transform never aborts the rest.
package transformer

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
)

// DefaultInvestorColumn is the column investor_frequency explodes when the
// transform does not name one.
const DefaultInvestorColumn = "Top Investors"

// ErrSkipped marks a step that was a no-op.
var ErrSkipped = errors.New("transform skipped")

// Step is one compiled transform. Apply may reuse t's storage; on error it
// must return t untouched.
type Step interface {
	Apply(t *dataset.Table) (*dataset.Table, error)
}

// Chain is an ordered list of steps.
type Chain []Step

// Skip records a step that did not apply.
type Skip struct {
	Index int
	Op    plan.Op
	Err   error
}

// Apply runs every step in order and collects the skipped ones.
func (c Chain) Apply(t *dataset.Table) (*dataset.Table, []Skip) {
	var skips []Skip
	out := t
	for i, s := range c {
		next, err := s.Apply(out)
		if err != nil {
			skips = append(skips, Skip{Index: i, Op: opOf(s), Err: err})
			continue
		}
		out = next
	}
	return out, skips
}

// Engine compiles and applies transform lists.
type Engine struct {
	investorColumn string
	log            *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithInvestorColumn sets the default column for investor_frequency.
func WithInvestorColumn(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.investorColumn = name
		}
	}
}

// WithLogger sets the logger used for skipped transforms.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// New returns an Engine with defaults applied.
func New(opts ...Option) *Engine {
	e := &Engine{investorColumn: DefaultInvestorColumn, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run applies ts over a private copy of t and reports which transforms were
// skipped. t is never modified.
func (e *Engine) Run(t *dataset.Table, ts []plan.Transform) (*dataset.Table, []Skip) {
	out, skips := e.Compile(ts).Apply(t.Clone())
	for _, s := range skips {
		e.log.Debug("transform skipped",
			zap.Int("index", s.Index),
			zap.String("op", string(s.Op)),
			zap.Error(s.Err))
	}
	return out, skips
}

// Compile turns plan transforms into steps, one per transform.
func (e *Engine) Compile(ts []plan.Transform) Chain {
	c := make(Chain, 0, len(ts))
	for _, t := range ts {
		c = append(c, e.compile(t))
	}
	return c
}

func (e *Engine) compile(t plan.Transform) Step {
	switch t := t.(type) {
	case plan.GroupBy:
		return GroupBy{op: t}
	case plan.Sort:
		return Sort{By: t.By, Descending: t.Descending}
	case plan.Select:
		return Select{Columns: t.Columns}
	case plan.Filter:
		return Filter{Expr: t.Expr}
	case plan.ValueCounts:
		if t.Alias == plan.OpInvestorFrequency && t.Column == "" {
			t.Column = e.investorColumn
		}
		return ValueCounts{vc: t}
	case plan.Unknown:
		return noop{tag: t.Tag}
	default:
		return noop{}
	}
}

type noop struct{ tag string }

func (n noop) Apply(t *dataset.Table) (*dataset.Table, error) {
	return t, fmt.Errorf("%w: unknown op %q", ErrSkipped, n.tag)
}

func opOf(s Step) plan.Op {
	switch s := s.(type) {
	case GroupBy:
		return plan.OpGroupBy
	case Sort:
		return plan.OpSort
	case Select:
		return plan.OpSelect
	case Filter:
		return plan.OpFilter
	case ValueCounts:
		return s.vc.Op()
	case noop:
		return plan.Op(s.tag)
	}
	return ""
}

func skipf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSkipped, fmt.Sprintf(format, args...))
}
