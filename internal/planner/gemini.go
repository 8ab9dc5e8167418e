package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/mTatsuro/llm-data-visualizer/internal/metrics"
	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// generator is the subset of *genai.Models the planner uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini plans with a Gemini model through the genai SDK.
type Gemini struct {
	models  generator
	model   string
	timeout time.Duration
	log     *zap.Logger
}

// GeminiOption configures a Gemini planner.
type GeminiOption func(*Gemini)

// WithModel overrides DefaultModel.
func WithModel(m string) GeminiOption {
	return func(g *Gemini) {
		if m != "" {
			g.model = m
		}
	}
}

// WithTimeout bounds each model call. Zero means no bound beyond ctx.
func WithTimeout(d time.Duration) GeminiOption { return func(g *Gemini) { g.timeout = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) GeminiOption {
	return func(g *Gemini) {
		if l != nil {
			g.log = l
		}
	}
}

// NewGemini creates a Gemini planner. It returns ErrNoAPIKey when apiKey is
// empty.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("planner: create genai client: %w", err)
	}
	return newGemini(client.Models, opts...), nil
}

func newGemini(m generator, opts ...GeminiOption) *Gemini {
	g := &Gemini{models: m, model: DefaultModel, log: zap.NewNop()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Model reports the configured model name.
func (g *Gemini) Model() string { return g.model }

// Plan sends the request as a single JSON user turn and decodes the reply.
func (g *Gemini) Plan(ctx context.Context, req Request) (p plan.Plan, err error) {
	start := time.Now()
	defer func() { metrics.RecordStage(metrics.StagePlan, err, time.Since(start)) }()

	if strings.TrimSpace(req.UserPrompt) == "" {
		return plan.Plan{}, ErrEmptyPrompt
	}
	body, err := encodeRequest(req)
	if err != nil {
		return plan.Plan{}, err
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(string(body), genai.RoleUser)},
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(SystemPrompt, genai.RoleUser),
			ResponseMIMEType:  "application/json",
			Temperature:       genai.Ptr[float32](0),
		})
	if err != nil {
		return plan.Plan{}, fmt.Errorf("planner: gemini generate: %w", err)
	}
	if resp == nil {
		return plan.Plan{}, fmt.Errorf("planner: gemini returned no response")
	}
	text := resp.Text()
	g.log.Debug("planner reply", zap.String("model", g.model), zap.Int("bytes", len(text)), zap.Duration("took", time.Since(start)))

	p, err = DecodeReply(text)
	if err != nil {
		return plan.Plan{}, err
	}
	return finish(p, req), nil
}

// SystemPrompt instructs the model to answer with one plan document.
const SystemPrompt = `You plan data visualizations.

The user turn is one JSON object with:
  "schema": the dataset columns as [{"name", "kind", "examples"}]
  "user_prompt": the request in natural language
  "current_viz": the chart being edited, in the same shape you return, or null
  "target_viz_id": the id of that chart, or null

Reply with exactly one JSON object and nothing else:

{
  "action": "new_visualization" | "update_visualization",
  "target_viz_id": string | null,
  "chart": {
    "viz_type": "pie" | "bar" | "scatter" | "table",
    "transforms": [
      {
        "op": "groupby" | "sort" | "select" | "filter" | "value_counts",
        "by": [string] | null,
        "order": "asc" | "desc" | null,
        "columns": [string] | null,
        "filter_expr": string | null,
        "aggregations": [{"column": string, "agg": "count" | "sum" | "mean" | "median" | "min" | "max", "new_column": string}] | null,
        "column": string | null,
        "delimiter": string | null,
        "top_n": integer | null
      }
    ],
    "encoding": {"x": string | null, "y": string | null, "label": string | null, "value": string | null, "color": string | null, "tooltip": [string] | null},
    "style": {"title": string | null, "color": string | null, "header_bold": boolean | null}
  }
}

Columns:
- Use only names that appear in the schema, spelled exactly.
- Money-like text columns have a numeric twin named "<column>_num". Use the twin for sums, averages, filters, scatter axes and sorting by amount.

Charts:
- pie: a breakdown of one categorical column. Set encoding.label to the category and encoding.value to a numeric column or to the count column a groupby or value_counts produces.
- bar: comparing a value across categories, for example the top items by count.
- scatter: the relationship or correlation between two numeric columns. encoding.x and encoding.y must both be numeric. Put identifying columns in encoding.tooltip.
- table: listing rows or details. For "which values appear most often" use value_counts, with "delimiter": "," when cells hold comma-separated lists.

Transforms run in order on the full dataset:
- groupby: {"op": "groupby", "by": [...], "aggregations": [...]}
- sort: {"op": "sort", "by": [...], "order": "desc"}
- select: {"op": "select", "columns": [...]}
- filter: {"op": "filter", "filter_expr": "Valuation_num > 1000000000 and Industry == 'Fintech'"}
  Expressions use column names, backtick-quoted when they contain spaces, string and number literals, == != < <= > >=, and, or, not, in [...]. No function calls.
- value_counts: {"op": "value_counts", "column": "...", "delimiter": "," | null, "top_n": 20 | null}. Its output columns are the counted column and "count".

Follow-ups:
- When current_viz is null, the action is "new_visualization".
- When the user asks to change the current chart (colors, title, bold header, axes, chart type), the action is "update_visualization", target_viz_id is the given id, and chart starts from current_viz.chart with only the requested fields changed. Always return the full chart.
- When the user asks for something unrelated to the current chart, create a new visualization.`
