// Package executor turns a validated plan and the base table into the payload
// a chart frontend renders: transforms, encoding repair, insights and a
// JSON-safe data list.
package executor

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aclements/go-moremath/stats"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mTatsuro/llm-data-visualizer/internal/dataset"
	"github.com/mTatsuro/llm-data-visualizer/internal/metrics"
	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
	"github.com/mTatsuro/llm-data-visualizer/internal/repair"
	"github.com/mTatsuro/llm-data-visualizer/internal/transformer"
)

// Policy selects how invalid pie and scatter encodings are handled.
type Policy string

const (
	// PolicyRepair defaults whatever is missing and always renders.
	PolicyRepair Policy = "repair"
	// PolicyStrict reports encoding errors and renders no data.
	PolicyStrict Policy = "strict"
)

// ParsePolicy accepts "repair" (or empty) and "strict".
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyRepair:
		return PolicyRepair, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("executor: unknown policy %q", s)
}

// Insights carries derived statistics about the rendered data.
type Insights struct {
	PearsonCorrelation *float64 `json:"pearson_correlation,omitempty"`
}

// Payload is the rendered response for one plan.
type Payload struct {
	VizID       string           `json:"viz_id,omitempty"`
	Action      plan.Action      `json:"action"`
	TargetVizID *string          `json:"target_viz_id"`
	VizType     plan.VizType     `json:"viz_type"`
	Encoding    plan.Encoding    `json:"encoding"`
	Style       plan.Style       `json:"style"`
	Transforms  plan.Transforms  `json:"transforms"`
	Data        []dataset.Record `json:"data"`
	Errors      []string         `json:"errors,omitempty"`
	Insights    *Insights        `json:"insights,omitempty"`
}

// Executor runs plans against a table. It holds no per-request state and is
// safe for concurrent use.
type Executor struct {
	policy  Policy
	ranking repair.Ranking
	engine  *transformer.Engine
	log     *zap.Logger
	newID   func() string
}

// Option configures an Executor.
type Option func(*Executor)

// WithPolicy sets the encoding policy.
func WithPolicy(p Policy) Option { return func(e *Executor) { e.policy = p } }

// WithRanking sets the repair heuristics.
func WithRanking(r repair.Ranking) Option { return func(e *Executor) { e.ranking = r } }

// WithEngine sets the transform engine.
func WithEngine(t *transformer.Engine) Option {
	return func(e *Executor) {
		if t != nil {
			e.engine = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithIDFunc sets the generator for new visualization ids.
func WithIDFunc(f func() string) Option {
	return func(e *Executor) {
		if f != nil {
			e.newID = f
		}
	}
}

// New returns an Executor using PolicyRepair and the default ranking unless
// overridden.
func New(opts ...Option) *Executor {
	e := &Executor{
		policy:  PolicyRepair,
		ranking: repair.DefaultRanking(),
		log:     zap.NewNop(),
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	if e.engine == nil {
		e.engine = transformer.New(transformer.WithLogger(e.log))
	}
	return e
}

// Policy reports the executor's encoding policy.
func (e *Executor) Policy() Policy { return e.policy }

// Execute applies p to a private copy of base and renders the payload. base
// is never modified. Execute does not fail: every problem is either repaired
// or, under PolicyStrict, reported in Payload.Errors.
func (e *Executor) Execute(base *dataset.Table, p plan.Plan) Payload {
	start := time.Now()
	chart := p.Chart

	out, skips := e.engine.Run(base, chart.Transforms)
	recordTransforms(chart.Transforms, skips)

	res := repair.Result{Table: out, Encoding: chart.Encoding, Style: chart.Style}
	var errs []string
	switch chart.VizType {
	case plan.VizPie:
		if e.policy == PolicyStrict {
			res, errs = repair.ValidatePie(out, chart.Encoding, chart.Style)
		} else {
			res = e.ranking.Pie(out, chart.Encoding, chart.Style)
		}
	case plan.VizScatter:
		if e.policy == PolicyStrict {
			res, errs = repair.ValidateScatter(out, chart.Encoding, chart.Style)
		} else {
			res = e.ranking.Scatter(out, chart.Encoding, chart.Style)
		}
	}

	pl := Payload{
		VizID:      e.VizID(p),
		Action:     p.Action,
		VizType:    chart.VizType,
		Encoding:   res.Encoding,
		Style:      res.Style,
		Transforms: chart.Transforms,
		Data:       []dataset.Record{},
	}
	if p.TargetVizID != "" {
		id := p.TargetVizID
		pl.TargetVizID = &id
	}
	if pl.Transforms == nil {
		pl.Transforms = plan.Transforms{}
	}

	if len(errs) > 0 {
		pl.Errors = errs
		e.log.Debug("encoding rejected", zap.String("viz_type", string(chart.VizType)), zap.Strings("errors", errs))
		metrics.RecordStage(metrics.StageExecute, fmt.Errorf("%s", strings.Join(errs, "; ")), time.Since(start))
		return pl
	}

	pl.Data = Records(res.Table)
	if chart.VizType == plan.VizScatter {
		if r, ok := Pearson(res.Table, res.Encoding.X, res.Encoding.Y); ok {
			pl.Insights = &Insights{PearsonCorrelation: &r}
		}
	}
	Sanitize(pl.Data)

	metrics.RecordRows(metrics.RowsRendered, int64(len(pl.Data)))
	metrics.RecordStage(metrics.StageExecute, nil, time.Since(start))
	e.log.Debug("plan executed",
		zap.String("viz_type", string(chart.VizType)),
		zap.Int("rows", len(pl.Data)),
		zap.Int("skipped_transforms", len(skips)),
		zap.String("encoding_x", res.Encoding.X),
		zap.String("encoding_y", res.Encoding.Y),
		zap.String("encoding_label", res.Encoding.Label),
		zap.String("encoding_value", res.Encoding.Value))
	return pl
}

// VizID is a fresh id for a new visualization and the target id for an
// update.
func (e *Executor) VizID(p plan.Plan) string {
	if p.Action == plan.ActionUpdate && p.TargetVizID != "" {
		return p.TargetVizID
	}
	return e.newID()
}

func recordTransforms(ts plan.Transforms, skips []transformer.Skip) {
	skipped := make(map[int]struct{}, len(skips))
	for _, s := range skips {
		skipped[s.Index] = struct{}{}
	}
	for i, t := range ts {
		outcome := metrics.TransformApplied
		if _, ok := skipped[i]; ok {
			outcome = metrics.TransformSkipped
		}
		metrics.RecordTransform(string(t.Op()), outcome)
	}
}

// Records converts a table into ordered records. Datetimes are rendered as
// text so dates without a time component stay dates.
func Records(t *dataset.Table) []dataset.Record {
	recs := t.Records()
	for _, r := range recs {
		for i := range r {
			if tv, ok := r[i].Value.(time.Time); ok {
				r[i].Value = dataset.Format(tv)
			}
		}
	}
	if recs == nil {
		recs = []dataset.Record{}
	}
	return recs
}

// Pearson returns the correlation of columns x and y over rows where both are
// numeric. ok is false when either column is missing or non-numeric, or the
// result is not finite (e.g. a constant column).
func Pearson(t *dataset.Table, x, y string) (float64, bool) {
	xi, yi := t.Index(x), t.Index(y)
	if xi < 0 || yi < 0 || !t.Columns[xi].Kind.Numeric() || !t.Columns[yi].Kind.Numeric() {
		return 0, false
	}
	var xs, ys []float64
	for _, r := range t.Rows {
		fx, okx := dataset.ToFloat(r[xi])
		fy, oky := dataset.ToFloat(r[yi])
		if !okx || !oky || math.IsNaN(fx) || math.IsNaN(fy) {
			continue
		}
		xs = append(xs, fx)
		ys = append(ys, fy)
	}
	if len(xs) < 2 {
		return 0, false
	}
	mx, my := stats.Mean(xs), stats.Mean(ys)
	// Deviations are scaled to [-1, 1] so the sums cannot overflow; r is
	// invariant under scaling.
	var ax, ay float64
	for i := range xs {
		ax = math.Max(ax, math.Abs(xs[i]-mx))
		ay = math.Max(ay, math.Abs(ys[i]-my))
	}
	if ax == 0 || ay == 0 || math.IsInf(ax, 0) || math.IsInf(ay, 0) {
		return 0, false
	}
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := (xs[i]-mx)/ax, (ys[i]-my)/ay
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	r := sxy / (math.Sqrt(sxx) * math.Sqrt(syy))
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return math.Max(-1, math.Min(1, r)), true
}
