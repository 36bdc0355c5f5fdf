// Package agents mirrors the backend agent registry into client memory.
package agents

import (
	"context"
	"sync"
	"time"
)

type Agent struct {
	ID                       int64     `json:"id"`
	Name                     string    `json:"name"`
	Description              string    `json:"description"`
	SystemMessage            string    `json:"system_message"`
	IsEnabled                bool      `json:"is_enabled"`
	AbilityIDs               []int64   `json:"ability_ids"`
	IsCodeInterpreterEnabled bool      `json:"is_code_interpreter_enabled"`
	IsWebBrowserEnabled      bool      `json:"is_web_browser_enabled"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

type CreateAgent struct {
	Name                     string  `json:"name"`
	Description              string  `json:"description"`
	SystemMessage            string  `json:"system_message"`
	AbilityIDs               []int64 `json:"ability_ids"`
	IsCodeInterpreterEnabled bool    `json:"is_code_interpreter_enabled"`
	IsWebBrowserEnabled      bool    `json:"is_web_browser_enabled"`
}

type UpdateAgent struct {
	ID                       int64   `json:"id"`
	Name                     string  `json:"name"`
	Description              string  `json:"description"`
	SystemMessage            string  `json:"system_message"`
	AbilityIDs               []int64 `json:"ability_ids"`
	IsCodeInterpreterEnabled bool    `json:"is_code_interpreter_enabled"`
	IsWebBrowserEnabled      bool    `json:"is_web_browser_enabled"`
}

type AgentsList struct {
	Agents []Agent `json:"agents"`
}

type invoker interface {
	Invoke(ctx context.Context, method string, params, out any) error
}

// Repository shapes agent requests for the bridge.
type Repository struct {
	bridge invoker
}

func NewRepository(bridge invoker) *Repository {
	return &Repository{bridge: bridge}
}

func (r *Repository) List(ctx context.Context) ([]Agent, error) {
	var list AgentsList
	if err := r.bridge.Invoke(ctx, "list_agents", nil, &list); err != nil {
		return nil, err
	}
	return list.Agents, nil
}

func (r *Repository) Create(ctx context.Context, req CreateAgent) (Agent, error) {
	var agent Agent
	err := r.bridge.Invoke(ctx, "create_agent", map[string]any{"request": req}, &agent)
	return agent, err
}

func (r *Repository) Update(ctx context.Context, req UpdateAgent) (Agent, error) {
	var agent Agent
	err := r.bridge.Invoke(ctx, "update_agent", map[string]any{"request": req}, &agent)
	return agent, err
}

func (r *Repository) SetEnabled(ctx context.Context, id int64, enabled bool) (Agent, error) {
	var agent Agent
	err := r.bridge.Invoke(ctx, "update_agent_is_enabled", map[string]any{"id": id, "isEnabled": enabled}, &agent)
	return agent, err
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	return r.bridge.Invoke(ctx, "delete_agent", map[string]any{"id": id}, nil)
}

// Store is the in-memory agent list, refreshed from the backend and
// updated in place after mutations.
type Store struct {
	repo *Repository

	mu     sync.Mutex
	agents []Agent
}

func NewStore(repo *Repository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Refresh(ctx context.Context) error {
	agents, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.agents = agents
	s.mu.Unlock()
	return nil
}

func (s *Store) Create(ctx context.Context, req CreateAgent) (Agent, error) {
	agent, err := s.repo.Create(ctx, req)
	if err != nil {
		return Agent{}, err
	}
	s.mu.Lock()
	s.agents = append([]Agent{agent}, s.agents...)
	s.mu.Unlock()
	return agent, nil
}

func (s *Store) Update(ctx context.Context, req UpdateAgent) (Agent, error) {
	agent, err := s.repo.Update(ctx, req)
	if err != nil {
		return Agent{}, err
	}
	s.replace(agent)
	return agent, nil
}

func (s *Store) SetEnabled(ctx context.Context, id int64, enabled bool) (Agent, error) {
	agent, err := s.repo.SetEnabled(ctx, id, enabled)
	if err != nil {
		return Agent{}, err
	}
	s.replace(agent)
	return agent, nil
}

func (s *Store) replace(agent Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.agents {
		if s.agents[i].ID == agent.ID {
			s.agents[i] = agent
			return
		}
	}
	s.agents = append(s.agents, agent)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	for i := range s.agents {
		if s.agents[i].ID == id {
			s.agents = append(s.agents[:i], s.agents[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) GetByID(id int64) (Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

func (s *Store) All() []Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Agent, len(s.agents))
	copy(out, s.agents)
	return out
}
