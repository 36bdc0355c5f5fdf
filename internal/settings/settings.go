// Package settings caches the backend key-value settings blob.
package settings

import (
	"context"
	"sync"
)

type Settings struct {
	APIKeys      map[string]string `json:"api_keys"`
	PythonPath   string            `json:"python_path"`
	DefaultModel *string           `json:"default_model"`
}

type UpdateSettings struct {
	APIKeys      map[string]string `json:"api_keys,omitempty"`
	DefaultModel *string           `json:"default_model"`
}

type invoker interface {
	Invoke(ctx context.Context, method string, params, out any) error
}

type Repository struct {
	bridge invoker
}

func NewRepository(bridge invoker) *Repository {
	return &Repository{bridge: bridge}
}

func (r *Repository) Get(ctx context.Context) (Settings, error) {
	var s Settings
	err := r.bridge.Invoke(ctx, "get_settings", nil, &s)
	return s, err
}

func (r *Repository) Update(ctx context.Context, req UpdateSettings) error {
	return r.bridge.Invoke(ctx, "update_settings", map[string]any{"newSettings": req}, nil)
}

// Store holds the last fetched settings snapshot.
type Store struct {
	repo *Repository

	mu       sync.Mutex
	loaded   bool
	settings Settings
}

func NewStore(repo *Repository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Refresh(ctx context.Context) error {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Current returns the cached snapshot and whether one was ever loaded.
func (s *Store) Current() (Settings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, s.loaded
}

func (s *Store) Update(ctx context.Context, req UpdateSettings) error {
	if err := s.repo.Update(ctx, req); err != nil {
		return err
	}
	return s.Refresh(ctx)
}
