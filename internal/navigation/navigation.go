// Package navigation binds task selection, group filter, page and
// create-mode to URL query parameters so reload and back/forward
// navigation reproduce the UI state.
package navigation

import (
	"context"
	"net/url"
	"strconv"
	"sync"

	"github.com/antoniostano/starbridge/internal/tasks"
)

// Query parameter names, kept stable because they are user-visible in
// deep links.
const (
	paramTask   = "task"
	paramGroup  = "group"
	paramPage   = "page"
	paramCreate = "create"
)

// State is the navigation snapshot. A nil TaskID means no selection; a
// nil Group means all groups; Page 0 means unset (treated as 1).
type State struct {
	TaskID *int64
	Group  *tasks.Status
	Page   int
	Create bool
}

// FromValues parses a query string. Malformed numbers and unknown
// groups degrade to their zero values rather than failing.
func FromValues(values url.Values) State {
	var s State
	if raw := values.Get(paramTask); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			s.TaskID = &id
		}
	}
	if raw := values.Get(paramGroup); raw != "" {
		group := tasks.Status(raw)
		if group.Valid() {
			s.Group = &group
		}
	}
	if raw := values.Get(paramPage); raw != "" {
		if page, err := strconv.Atoi(raw); err == nil && page > 0 {
			s.Page = page
		}
	}
	s.Create = values.Get(paramCreate) == "true"
	return s
}

// Values encodes the state back into query parameters. Unset fields are
// omitted so links stay short.
func (s State) Values() url.Values {
	values := url.Values{}
	if s.TaskID != nil {
		values.Set(paramTask, strconv.FormatInt(*s.TaskID, 10))
	}
	if s.Group != nil {
		values.Set(paramGroup, string(*s.Group))
	}
	if s.Page > 1 {
		values.Set(paramPage, strconv.Itoa(s.Page))
	}
	if s.Create {
		values.Set(paramCreate, "true")
	}
	return values
}

func (s State) page() int {
	if s.Page < 1 {
		return 1
	}
	return s.Page
}

// Binding keeps the navigation state and the task store in sync. It is
// the only component that translates URL changes into store operations.
// Safe for concurrent use; the diagnostics handlers read it while the
// shell applies navigation changes.
type Binding struct {
	store *tasks.Store

	mu    sync.Mutex
	state State
}

func NewBinding(store *tasks.Store) *Binding {
	return &Binding{store: store, state: State{Page: 1}}
}

func (b *Binding) Current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Binding) Query() url.Values {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Values()
}

// Apply reconciles a freshly navigated query string against the store:
// group/page changes refetch, selection changes reload children,
// enabling create-mode drops the selection.
func (b *Binding) Apply(ctx context.Context, values url.Values) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := FromValues(values)

	if next.Create && !b.state.Create {
		next.TaskID = nil
		b.store.Deselect()
	}

	if !statusEqual(b.state.Group, next.Group) {
		if err := b.store.SetGroup(ctx, next.Group); err != nil {
			return err
		}
		// Group changes reset pagination.
		next.Page = 1
	} else if next.page() != b.state.page() {
		if err := b.store.SetPage(ctx, next.page()); err != nil {
			return err
		}
	}

	if !idEqual(b.state.TaskID, next.TaskID) {
		if next.TaskID == nil {
			b.store.Deselect()
		} else if err := b.store.Select(ctx, *next.TaskID); err != nil {
			return err
		}
	}

	b.state = next
	return nil
}

// SelectTask selects a task and reflects it into the query state.
// Selecting clears create-mode.
func (b *Binding) SelectTask(ctx context.Context, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.store.Select(ctx, id); err != nil {
		return err
	}
	b.state.TaskID = &id
	b.state.Create = false
	return nil
}

func (b *Binding) ClearTask() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearTaskLocked()
}

func (b *Binding) clearTaskLocked() {
	b.store.Deselect()
	b.state.TaskID = nil
}

// EnableCreate opens the create form; any selection is dropped, as in
// the original client.
func (b *Binding) EnableCreate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Create = true
	b.clearTaskLocked()
}

func (b *Binding) DisableCreate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Create = false
}

func (b *Binding) SetGroup(ctx context.Context, group *tasks.Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.store.SetGroup(ctx, group); err != nil {
		return err
	}
	b.state.Group = group
	b.state.Page = 1
	return nil
}

func (b *Binding) SetPage(ctx context.Context, page int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if page < 1 {
		page = 1
	}
	if err := b.store.SetPage(ctx, page); err != nil {
		return err
	}
	b.state.Page = page
	return nil
}

func statusEqual(a, b *tasks.Status) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func idEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
