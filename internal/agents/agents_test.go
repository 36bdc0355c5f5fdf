package agents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type fakeInvoker struct {
	method  string
	params  any
	payload string
	err     error
}

func (f *fakeInvoker) Invoke(_ context.Context, method string, params, out any) error {
	f.method = method
	f.params = params
	if f.err != nil {
		return f.err
	}
	if out == nil || f.payload == "" {
		return nil
	}
	return json.Unmarshal([]byte(f.payload), out)
}

func TestStoreRefreshReplacesList(t *testing.T) {
	inv := &fakeInvoker{payload: `{"agents":[{"id":1,"name":"researcher"},{"id":2,"name":"coder"}]}`}
	store := NewStore(NewRepository(inv))

	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if inv.method != "list_agents" {
		t.Fatalf("method = %q", inv.method)
	}
	if got := store.All(); len(got) != 2 || got[0].Name != "researcher" {
		t.Fatalf("All() = %+v", got)
	}
}

func TestStoreSetEnabledReplacesInPlace(t *testing.T) {
	inv := &fakeInvoker{payload: `{"agents":[{"id":1,"name":"researcher","is_enabled":true}]}`}
	store := NewStore(NewRepository(inv))
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	inv.payload = `{"id":1,"name":"researcher","is_enabled":false}`
	agent, err := store.SetEnabled(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	if inv.method != "update_agent_is_enabled" {
		t.Fatalf("method = %q", inv.method)
	}
	data, _ := json.Marshal(inv.params)
	if want := `{"id":1,"isEnabled":false}`; string(data) != want {
		t.Fatalf("params = %s, want %s", data, want)
	}
	if agent.IsEnabled {
		t.Fatalf("agent still enabled: %+v", agent)
	}
	if got, ok := store.GetByID(1); !ok || got.IsEnabled {
		t.Fatalf("cached agent = %+v, want disabled", got)
	}
}

func TestStoreDeleteRemovesFromCache(t *testing.T) {
	inv := &fakeInvoker{payload: `{"agents":[{"id":1},{"id":2}]}`}
	store := NewStore(NewRepository(inv))
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	inv.payload = ""
	if err := store.Delete(context.Background(), 1); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if inv.method != "delete_agent" {
		t.Fatalf("method = %q", inv.method)
	}
	if _, ok := store.GetByID(1); ok {
		t.Fatalf("deleted agent still cached")
	}
	if got := store.All(); len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("All() = %+v", got)
	}
}

func TestStoreFailureLeavesCacheUntouched(t *testing.T) {
	inv := &fakeInvoker{payload: `{"agents":[{"id":1,"name":"researcher"}]}`}
	store := NewStore(NewRepository(inv))
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	inv.err = errors.New("bridge down")
	if _, err := store.Update(context.Background(), UpdateAgent{ID: 1, Name: "renamed"}); err == nil {
		t.Fatalf("Update() error = nil, want failure")
	}
	if got, _ := store.GetByID(1); got.Name != "researcher" {
		t.Fatalf("cache changed after failed update: %+v", got)
	}
}
