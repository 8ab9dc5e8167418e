// Package memory is an in-process storage.Repository. Contents are lost on
// restart; it is the default when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mTatsuro/llm-data-visualizer/internal/storage"
)

// Repository keeps visualizations in a map.
type Repository struct {
	mu   sync.RWMutex
	rows map[string]storage.Visualization
	now  func() time.Time
}

var _ storage.Repository = (*Repository)(nil)

// New returns an empty Repository.
func New() *Repository {
	return &Repository{rows: make(map[string]storage.Visualization), now: time.Now}
}

func init() {
	storage.Register("memory", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return New(), nil
	})
}

// Save implements storage.Repository.
func (r *Repository) Save(ctx context.Context, v storage.Visualization) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.ID == "" {
		return fmt.Errorf("memory: save: empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if old, ok := r.rows[v.ID]; ok {
		v.CreatedAt = old.CreatedAt
	} else if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	v.Payload = append([]byte(nil), v.Payload...)
	r.rows[v.ID] = v
	return nil
}

// Get implements storage.Repository.
func (r *Repository) Get(ctx context.Context, id string) (storage.Visualization, error) {
	if err := ctx.Err(); err != nil {
		return storage.Visualization{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.rows[id]
	if !ok {
		return storage.Visualization{}, storage.ErrNotFound
	}
	v.Payload = append([]byte(nil), v.Payload...)
	return v, nil
}

// List implements storage.Repository.
func (r *Repository) List(ctx context.Context, limit int) ([]storage.Visualization, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]storage.Visualization, 0, len(r.rows))
	for _, v := range r.rows {
		out = append(out, v)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements storage.Repository.
func (r *Repository) Close() {}
