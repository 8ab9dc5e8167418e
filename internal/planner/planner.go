// Package planner turns a natural-language prompt plus the dataset schema into
// a plan.Plan. The model-backed implementation talks to Gemini; Static and
// File serve the CLI and tests.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
	"github.com/mTatsuro/llm-data-visualizer/internal/schema"
)

// ErrNoAPIKey is returned when a model-backed planner is built without
// credentials.
var ErrNoAPIKey = errors.New("planner: no API key configured")

// ErrEmptyPrompt is returned for a blank user prompt.
var ErrEmptyPrompt = errors.New("planner: empty prompt")

// Request is everything the planner sees for one prompt. It is also the JSON
// document sent to the model.
type Request struct {
	Schema      []schema.Entry  `json:"schema"`
	UserPrompt  string          `json:"user_prompt"`
	CurrentViz  json.RawMessage `json:"current_viz"`
	TargetVizID string          `json:"target_viz_id,omitempty"`
}

// Planner produces a plan for a request.
type Planner interface {
	Plan(ctx context.Context, req Request) (plan.Plan, error)
}

// Func adapts an ordinary function to Planner.
type Func func(ctx context.Context, req Request) (plan.Plan, error)

// Plan calls f.
func (f Func) Plan(ctx context.Context, req Request) (plan.Plan, error) { return f(ctx, req) }

// Static always returns the same plan, with the request's target id carried
// over when the plan has none.
type Static plan.Plan

// Plan returns the fixed plan.
func (s Static) Plan(ctx context.Context, req Request) (plan.Plan, error) {
	if err := ctx.Err(); err != nil {
		return plan.Plan{}, err
	}
	return finish(plan.Plan(s), req), nil
}

// File reads a plan JSON document from disk on every call, so edits to the
// file are picked up without a restart.
type File struct {
	Path string
}

// Plan decodes the file at f.Path.
func (f File) Plan(ctx context.Context, req Request) (plan.Plan, error) {
	if err := ctx.Err(); err != nil {
		return plan.Plan{}, err
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return plan.Plan{}, fmt.Errorf("planner: read plan: %w", err)
	}
	p, err := plan.Decode(b)
	if err != nil {
		return plan.Plan{}, fmt.Errorf("planner: %s: %w", f.Path, err)
	}
	return finish(p, req), nil
}

// finish fills the target id of an update from the request.
func finish(p plan.Plan, req Request) plan.Plan {
	if p.Action == plan.ActionUpdate && p.TargetVizID == "" {
		p.TargetVizID = req.TargetVizID
	}
	return p
}

// DecodeReply extracts a plan from raw model output. Markdown code fences and
// text around the outermost JSON object are tolerated.
func DecodeReply(text string) (plan.Plan, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i >= 0 && j > i {
		s = s[i : j+1]
	}
	if s == "" {
		return plan.Plan{}, fmt.Errorf("planner: empty reply")
	}
	return plan.Decode([]byte(s))
}

// encodeRequest renders req as the user turn. A nil current viz is sent as
// JSON null.
func encodeRequest(req Request) ([]byte, error) {
	if len(bytes.TrimSpace(req.CurrentViz)) == 0 {
		req.CurrentViz = json.RawMessage("null")
	}
	if req.Schema == nil {
		req.Schema = []schema.Entry{}
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("planner: encode request: %w", err)
	}
	return b, nil
}
