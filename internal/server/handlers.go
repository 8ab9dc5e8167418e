package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mTatsuro/llm-data-visualizer/internal/executor"
	"github.com/mTatsuro/llm-data-visualizer/internal/metrics"
	"github.com/mTatsuro/llm-data-visualizer/internal/plan"
	"github.com/mTatsuro/llm-data-visualizer/internal/planner"
	"github.com/mTatsuro/llm-data-visualizer/internal/storage"
)

// VisualizeRequest is the body of POST /api/visualize.
type VisualizeRequest struct {
	Prompt      string          `json:"prompt"`
	CurrentViz  json.RawMessage `json:"current_viz,omitempty"`
	TargetVizID string          `json:"target_viz_id,omitempty"`
}

// defaultListLimit bounds GET /api/visualizations without ?limit.
const defaultListLimit = 50

func writeJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Rows   int
		Schema any
	}{Rows: s.table.Len(), Schema: s.schema}
	if err := s.tmpl.Execute(w, data); err != nil {
		s.log.Warn("template error", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.schema)
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	var req VisualizeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt must not be empty")
		return
	}

	current := req.CurrentViz
	if isNull(current) && req.TargetVizID != "" {
		current = s.currentFromStore(r, req.TargetVizID)
	}

	p, err := s.planner.Plan(r.Context(), planner.Request{
		Schema:      s.schema,
		UserPrompt:  req.Prompt,
		CurrentViz:  current,
		TargetVizID: req.TargetVizID,
	})
	if err != nil {
		code := plannerStatus(err)
		s.log.Warn("planner failed", zap.Error(err), zap.Int("status", code))
		writeError(w, code, err.Error())
		return
	}

	fp := plan.Fingerprint(p)
	pl, hit := s.cache.get(fp)
	if hit {
		pl.VizID = s.exec.VizID(p)
		pl.TargetVizID = nil
		if p.TargetVizID != "" {
			id := p.TargetVizID
			pl.TargetVizID = &id
		}
	} else {
		pl = s.exec.Execute(s.table, p)
		s.cache.put(fp, pl)
	}
	s.log.Debug("visualize",
		zap.String("fingerprint", fp),
		zap.Bool("cache_hit", hit),
		zap.String("viz_id", pl.VizID),
		zap.String("viz_type", string(pl.VizType)),
		zap.Int("rows", len(pl.Data)))

	s.remember(r, req.Prompt, fp, pl)
	writeJSON(w, http.StatusOK, pl)
}

// remember stores pl in the history. Failures are logged, not returned: the
// caller already has its chart.
func (s *Server) remember(r *http.Request, prompt, fp string, pl executor.Payload) {
	if pl.VizID == "" || len(pl.Errors) > 0 {
		return
	}
	start := time.Now()
	body, err := json.Marshal(pl)
	if err == nil {
		err = s.store.Save(r.Context(), storage.Visualization{
			ID:          pl.VizID,
			Fingerprint: fp,
			Prompt:      prompt,
			VizType:     string(pl.VizType),
			Payload:     body,
		})
	}
	metrics.RecordStage(metrics.StageStore, err, time.Since(start))
	if err != nil {
		s.log.Warn("history save failed", zap.String("viz_id", pl.VizID), zap.Error(err))
	}
}

// currentFromStore rebuilds the planner's view of a stored chart:
// {action, target_viz_id, chart{viz_type, transforms, encoding, style}}.
// Unknown ids yield null.
func (s *Server) currentFromStore(r *http.Request, id string) json.RawMessage {
	v, err := s.store.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("history lookup failed", zap.String("viz_id", id), zap.Error(err))
		}
		return nil
	}
	var stored struct {
		Action     string          `json:"action"`
		VizType    string          `json:"viz_type"`
		Transforms json.RawMessage `json:"transforms"`
		Encoding   json.RawMessage `json:"encoding"`
		Style      json.RawMessage `json:"style"`
	}
	if err := json.Unmarshal(v.Payload, &stored); err != nil {
		s.log.Warn("stored payload unreadable", zap.String("viz_id", id), zap.Error(err))
		return nil
	}
	out, err := json.Marshal(map[string]any{
		"action":        stored.Action,
		"target_viz_id": id,
		"chart": map[string]any{
			"viz_type":   stored.VizType,
			"transforms": stored.Transforms,
			"encoding":   stored.Encoding,
			"style":      stored.Style,
		},
	})
	if err != nil {
		return nil
	}
	return out
}

func isNull(b json.RawMessage) bool {
	t := bytes.TrimSpace(b)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// plannerStatus maps planner failures to HTTP codes.
func plannerStatus(err error) int {
	switch {
	case errors.Is(err, planner.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, planner.ErrNoAPIKey):
		return http.StatusServiceUnavailable
	case errors.Is(err, plan.ErrUnknownVizType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleGetVisualization(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v, err := s.store.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("visualization %q not found", id))
		return
	}
	if err != nil {
		s.log.Error("history get failed", zap.String("viz_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(v.Payload)
}

func (s *Server) handleListVisualizations(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	vs, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.log.Error("history list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if vs == nil {
		vs = []storage.Visualization{}
	}
	writeJSON(w, http.StatusOK, vs)
}
