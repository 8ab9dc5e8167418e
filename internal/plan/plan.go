// Package plan is the contract between the external planner and the
// executor: a strongly typed visualization request decoded defensively from
// planner JSON.
//
// Decoding is lenient where the planner is likely to be sloppy (a bare string
// where a list is expected, a numeric string for top_n, unknown transform
// tags) and strict only where no sensible default exists (viz_type).
package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Action says whether a plan creates a chart or edits an existing one.
type Action string

const (
	ActionNew    Action = "new_visualization"
	ActionUpdate Action = "update_visualization"
)

// VizType is the chart family to render.
type VizType string

const (
	VizPie     VizType = "pie"
	VizBar     VizType = "bar"
	VizScatter VizType = "scatter"
	VizTable   VizType = "table"
)

// ErrUnknownVizType is returned by Decode when viz_type is missing or not one
// of pie, bar, scatter, table.
var ErrUnknownVizType = errors.New("plan: unknown viz_type")

// Plan is a validated visualization request.
type Plan struct {
	Action      Action    `json:"action"`
	TargetVizID string    `json:"target_viz_id,omitempty"`
	Chart       ChartSpec `json:"chart"`
}

// ChartSpec is the chart half of a plan. Transforms run in order.
type ChartSpec struct {
	VizType    VizType    `json:"viz_type"`
	Transforms Transforms `json:"transforms"`
	Encoding   Encoding   `json:"encoding"`
	Style      Style      `json:"style"`
}

// Encoding maps visual channels to column names. Empty means unset.
type Encoding struct {
	X       string
	Y       string
	Label   string
	Value   string
	Color   string
	Tooltip []string
}

type wireEncoding struct {
	X       *string    `json:"x"`
	Y       *string    `json:"y"`
	Label   *string    `json:"label"`
	Value   *string    `json:"value"`
	Color   *string    `json:"color"`
	Tooltip stringList `json:"tooltip"`
}

// MarshalJSON writes unset channels as null.
func (e Encoding) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEncoding{
		X:       nullable(e.X),
		Y:       nullable(e.Y),
		Label:   nullable(e.Label),
		Value:   nullable(e.Value),
		Color:   nullable(e.Color),
		Tooltip: e.Tooltip,
	})
}

// UnmarshalJSON accepts null or string channels and a string or list tooltip.
func (e *Encoding) UnmarshalJSON(b []byte) error {
	var w wireEncoding
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*e = Encoding{
		X:       deref(w.X),
		Y:       deref(w.Y),
		Label:   deref(w.Label),
		Value:   deref(w.Value),
		Color:   deref(w.Color),
		Tooltip: w.Tooltip,
	}
	return nil
}

// Style carries display hints that are never checked against the data.
type Style struct {
	Title      string
	Color      string
	HeaderBold *bool
}

type wireStyle struct {
	Title      *string `json:"title"`
	Color      *string `json:"color"`
	HeaderBold *bool   `json:"header_bold"`
}

// MarshalJSON writes unset hints as null.
func (s Style) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireStyle{
		Title:      nullable(s.Title),
		Color:      nullable(s.Color),
		HeaderBold: s.HeaderBold,
	})
}

// UnmarshalJSON decodes the wire style.
func (s *Style) UnmarshalJSON(b []byte) error {
	var w wireStyle
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Style{Title: deref(w.Title), Color: deref(w.Color), HeaderBold: w.HeaderBold}
	return nil
}

// Decode parses planner output into a Plan. Unknown fields are ignored.
// A missing action defaults to ActionNew; "new" and "update" are accepted
// as shorthands.
func Decode(data []byte) (Plan, error) {
	var raw struct {
		Action      string          `json:"action"`
		TargetVizID json.RawMessage `json:"target_viz_id"`
		Chart       *ChartSpec      `json:"chart"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return Plan{}, fmt.Errorf("plan: decode: %w", err)
	}
	if raw.Chart == nil {
		return Plan{}, fmt.Errorf("plan: decode: missing chart")
	}

	p := Plan{Chart: *raw.Chart}
	p.Action = normalizeAction(raw.Action)
	p.TargetVizID = rawID(raw.TargetVizID)

	vt, err := ParseVizType(string(p.Chart.VizType))
	if err != nil {
		return Plan{}, err
	}
	p.Chart.VizType = vt
	return p, nil
}

// ParseVizType normalizes a viz type name.
func ParseVizType(s string) (VizType, error) {
	switch vt := VizType(strings.ToLower(strings.TrimSpace(s))); vt {
	case VizPie, VizBar, VizScatter, VizTable:
		return vt, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownVizType, s)
}

func normalizeAction(s string) Action {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "update", string(ActionUpdate):
		return ActionUpdate
	default:
		return ActionNew
	}
}

// rawID accepts a string or number id; null and anything else yield "".
func rawID(b json.RawMessage) string {
	if len(b) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		return n.String()
	}
	return ""
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
