// Package abilities mirrors the backend ability catalog.
package abilities

import (
	"context"
	"sync"
	"time"
)

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type ParametersJSON struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
}

type Definition struct {
	Name       string         `json:"name"`
	Parameters ParametersJSON `json:"parameters"`
}

type Ability struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Code           string     `json:"code"`
	ParametersJSON Definition `json:"parameters_json"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type CreateAbility struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

type UpdateAbility struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

type AbilitiesList struct {
	Abilities []Ability `json:"abilities"`
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

func (r *Repository) List(ctx context.Context) ([]Ability, error) {
	var list AbilitiesList
	if err := r.bridge.Invoke(ctx, "list_abilities", nil, &list); err != nil {
		return nil, err
	}
	return list.Abilities, nil
}

func (r *Repository) Create(ctx context.Context, req CreateAbility) (Ability, error) {
	var ability Ability
	err := r.bridge.Invoke(ctx, "create_ability", map[string]any{"request": req}, &ability)
	return ability, err
}

func (r *Repository) Update(ctx context.Context, req UpdateAbility) (Ability, error) {
	var ability Ability
	err := r.bridge.Invoke(ctx, "update_ability", map[string]any{"request": req}, &ability)
	return ability, err
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	return r.bridge.Invoke(ctx, "delete_ability", map[string]any{"id": id}, nil)
}

// Store caches the ability list.
type Store struct {
	repo *Repository

	mu        sync.Mutex
	abilities []Ability
}

func NewStore(repo *Repository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Refresh(ctx context.Context) error {
	abilities, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.abilities = abilities
	s.mu.Unlock()
	return nil
}

func (s *Store) Create(ctx context.Context, req CreateAbility) (Ability, error) {
	ability, err := s.repo.Create(ctx, req)
	if err != nil {
		return Ability{}, err
	}
	s.mu.Lock()
	s.abilities = append([]Ability{ability}, s.abilities...)
	s.mu.Unlock()
	return ability, nil
}

func (s *Store) Update(ctx context.Context, req UpdateAbility) (Ability, error) {
	ability, err := s.repo.Update(ctx, req)
	if err != nil {
		return Ability{}, err
	}
	s.mu.Lock()
	for i := range s.abilities {
		if s.abilities[i].ID == ability.ID {
			s.abilities[i] = ability
			break
		}
	}
	s.mu.Unlock()
	return ability, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	for i := range s.abilities {
		if s.abilities[i].ID == id {
			s.abilities = append(s.abilities[:i], s.abilities[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) All() []Ability {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Ability, len(s.abilities))
	copy(out, s.abilities)
	return out
}
