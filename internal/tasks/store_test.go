package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu    sync.Mutex
	tasks map[int64]Task
	next  int64

	childLists int
	failAll    error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{tasks: make(map[int64]Task), next: 1}
}

func (f *fakeBackend) seed(task Task) Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task.ID == 0 {
		task.ID = f.next
		f.next++
	} else if task.ID >= f.next {
		f.next = task.ID + 1
	}
	f.tasks[task.ID] = task
	return task
}

func (f *fakeBackend) ListRootTasksByStatus(_ context.Context, status Status, page, perPage int) (TasksList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return TasksList{}, f.failAll
	}
	var roots []Task
	for _, t := range f.tasks {
		if !t.IsChild() && t.Status == status {
			roots = append(roots, t)
		}
	}
	count := len(roots)
	start := (page - 1) * perPage
	if start > len(roots) {
		start = len(roots)
	}
	end := start + perPage
	if end > len(roots) {
		end = len(roots)
	}
	return TasksList{Tasks: roots[start:end], Count: &count}, nil
}

func (f *fakeBackend) ListChildTasks(_ context.Context, parentID int64) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.childLists++
	if f.failAll != nil {
		return nil, f.failAll
	}
	var children []Task
	for _, t := range f.tasks {
		if pid, ok := t.ParentID(); ok && pid == parentID {
			children = append(children, t)
		}
	}
	return children, nil
}

func (f *fakeBackend) Get(_ context.Context, id int64) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return Task{}, f.failAll
	}
	t, ok := f.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("task %d not found", id)
	}
	return t, nil
}

func (f *fakeBackend) Create(_ context.Context, req CreateTask) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return Task{}, f.failAll
	}
	task := Task{
		ID:      f.next,
		AgentID: req.AgentID,
		Title:   req.Title,
		Summary: req.Summary,
		Status:  req.Status,
	}
	if req.Status == "" {
		task.Status = StatusDraft
	}
	if req.Ancestry != nil {
		task.Ancestry = *req.Ancestry
	}
	f.next++
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakeBackend) Duplicate(ctx context.Context, id int64) (Task, error) {
	src, err := f.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	return f.Create(ctx, CreateTask{
		AgentID: src.AgentID,
		Title:   src.Title,
		Summary: src.Summary,
		Status:  StatusDraft,
	})
}

func (f *fakeBackend) Update(_ context.Context, req UpdateTask) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return Task{}, f.failAll
	}
	t, ok := f.tasks[req.ID]
	if !ok {
		return Task{}, fmt.Errorf("task %d not found", req.ID)
	}
	t.Title = req.Title
	t.Summary = req.Summary
	t.AgentID = req.AgentID
	f.tasks[req.ID] = t
	return t, nil
}

func (f *fakeBackend) transition(id int64, status Status) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return Task{}, f.failAll
	}
	t, ok := f.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("task %d not found", id)
	}
	t.Status = status
	f.tasks[id] = t
	return t, nil
}

func (f *fakeBackend) Revise(_ context.Context, id int64) (Task, error) {
	return f.transition(id, StatusDraft)
}

func (f *fakeBackend) Execute(_ context.Context, id int64) (Task, error) {
	return f.transition(id, StatusInProgress)
}

func (f *fakeBackend) Plan(_ context.Context, id int64) (Task, error) {
	return f.transition(id, StatusToDo)
}

func (f *fakeBackend) Pause(_ context.Context, id int64) (Task, error) {
	return f.transition(id, StatusPaused)
}

func (f *fakeBackend) Cancel(_ context.Context, id int64) (Task, error) {
	return f.transition(id, StatusFailed)
}

func (f *fakeBackend) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return f.failAll
	}
	delete(f.tasks, id)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) Success(string) {}
func (n *recordingNotifier) Warn(string)    {}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestStoreCreateAndExecuteMovesBuckets(t *testing.T) {
	backend := newFakeBackend()
	store := NewStore(backend, nil)
	ctx := context.Background()

	task, err := store.Create(ctx, CreateTask{AgentID: 7, Title: "Draft A", Status: StatusDraft})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	draft := store.Bucket(StatusDraft)
	if draft.Count != 1 || len(draft.Tasks) != 1 || draft.Tasks[0].ID != task.ID {
		t.Fatalf("draft bucket = %+v, want exactly the created task", draft)
	}

	updated, err := store.Execute(ctx, task.ID)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if updated.Status != StatusInProgress {
		t.Fatalf("status = %q, want %q", updated.Status, StatusInProgress)
	}

	draft = store.Bucket(StatusDraft)
	inProgress := store.Bucket(StatusInProgress)
	if draft.Count != 0 || len(draft.Tasks) != 0 {
		t.Fatalf("draft bucket after execute = %+v, want empty", draft)
	}
	if inProgress.Count != 1 || len(inProgress.Tasks) != 1 {
		t.Fatalf("in-progress bucket = %+v, want one task", inProgress)
	}
	if inProgress.Tasks[0].Status != StatusInProgress {
		t.Fatalf("bucketed snapshot status = %q, want updated", inProgress.Tasks[0].Status)
	}
}

func TestStoreChildTasksNeverBucketed(t *testing.T) {
	backend := newFakeBackend()
	store := NewStore(backend, nil)
	ctx := context.Background()

	ancestry := "12"
	if _, err := store.Create(ctx, CreateTask{AgentID: 1, Title: "child", Ancestry: &ancestry, Status: StatusDraft}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	for status, bucket := range store.Buckets() {
		if len(bucket.Tasks) != 0 || bucket.Count != 0 {
			t.Fatalf("bucket %s = %+v, want empty for child create", status, bucket)
		}
	}

	// Same invariant for pushes.
	child := Task{ID: 99, AgentID: 1, Status: StatusInProgress, Ancestry: "12/47", AncestryLevel: 2}
	store.handlePush(ctx, mustJSON(t, child))
	for status, bucket := range store.Buckets() {
		if len(bucket.Tasks) != 0 {
			t.Fatalf("bucket %s holds a child task after push", status)
		}
	}
}

func TestStoreUpsertIdempotent(t *testing.T) {
	store := NewStore(newFakeBackend(), nil)
	ctx := context.Background()

	task := Task{ID: 5, AgentID: 1, Title: "t", Status: StatusToDo}
	payload := mustJSON(t, task)
	store.handlePush(ctx, payload)
	store.handlePush(ctx, payload)

	bucket := store.Bucket(StatusToDo)
	if len(bucket.Tasks) != 1 || bucket.Count != 1 {
		t.Fatalf("bucket = %+v, want single entry after duplicate push", bucket)
	}
}

func TestStoreUpsertStatusChangeAdjustsCounts(t *testing.T) {
	store := NewStore(newFakeBackend(), nil)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		store.handlePush(ctx, mustJSON(t, Task{ID: i, Status: StatusToDo}))
	}
	store.handlePush(ctx, mustJSON(t, Task{ID: 10, Status: StatusDone}))

	store.handlePush(ctx, mustJSON(t, Task{ID: 2, Status: StatusDone}))

	todo := store.Bucket(StatusToDo)
	done := store.Bucket(StatusDone)
	if todo.Count != 2 {
		t.Fatalf("todo count = %d, want 2", todo.Count)
	}
	if done.Count != 2 {
		t.Fatalf("done count = %d, want 2", done.Count)
	}
	if done.Tasks[0].ID != 2 {
		t.Fatalf("moved task not at front of target bucket: %+v", done.Tasks)
	}
	if i := indexOf(todo.Tasks, 2); i >= 0 {
		t.Fatalf("task 2 still present in old bucket")
	}
}

func TestStoreBucketCapacityEviction(t *testing.T) {
	store := NewStore(newFakeBackend(), nil, WithPageSize(3))
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		store.handlePush(ctx, mustJSON(t, Task{ID: i, Status: StatusInProgress}))
	}

	bucket := store.Bucket(StatusInProgress)
	if len(bucket.Tasks) != 3 {
		t.Fatalf("bucket len = %d, want pageSize 3", len(bucket.Tasks))
	}
	if bucket.Count != 5 {
		t.Fatalf("bucket count = %d, want 5 (count tracks total, not window)", bucket.Count)
	}
	if bucket.Tasks[0].ID != 5 || bucket.Tasks[1].ID != 4 || bucket.Tasks[2].ID != 3 {
		t.Fatalf("unexpected window order: %+v", bucket.Tasks)
	}
}

func TestStorePushInsertsUnloadedTask(t *testing.T) {
	store := NewStore(newFakeBackend(), nil)
	ctx := context.Background()

	// Task belongs to a page that was never fetched; it still lands at
	// the front of its status bucket.
	store.handlePush(ctx, mustJSON(t, Task{ID: 77, Status: StatusWaitingForUser}))

	bucket := store.Bucket(StatusWaitingForUser)
	if len(bucket.Tasks) != 1 || bucket.Tasks[0].ID != 77 {
		t.Fatalf("bucket = %+v, want pushed task inserted", bucket)
	}
}

func TestStoreDeleteThenRefreshPurgesTask(t *testing.T) {
	backend := newFakeBackend()
	store := NewStore(backend, nil)
	ctx := context.Background()

	task, err := store.Create(ctx, CreateTask{AgentID: 1, Title: "gone soon", Status: StatusDraft})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Delete(ctx, task.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	for status, bucket := range store.Buckets() {
		if i := indexOf(bucket.Tasks, task.ID); i >= 0 {
			t.Fatalf("deleted task still in bucket %s", status)
		}
	}
	if got := store.Bucket(StatusDraft).Count; got != 0 {
		t.Fatalf("draft count after delete+refresh = %d, want 0", got)
	}
}

func TestStoreRefreshRespectsSelectedGroup(t *testing.T) {
	backend := newFakeBackend()
	for i := 0; i < 3; i++ {
		backend.seed(Task{Status: StatusToDo, Title: fmt.Sprintf("todo-%d", i)})
	}
	backend.seed(Task{Status: StatusDone, Title: "done"})

	store := NewStore(backend, nil)
	ctx := context.Background()

	group := StatusToDo
	if err := store.SetGroup(ctx, &group); err != nil {
		t.Fatalf("SetGroup() error = %v", err)
	}
	if got := store.Bucket(StatusToDo).Count; got != 3 {
		t.Fatalf("todo count = %d, want 3", got)
	}
	if got := store.Bucket(StatusDone); len(got.Tasks) != 0 {
		t.Fatalf("done bucket fetched despite group filter: %+v", got)
	}

	if err := store.SetGroup(ctx, nil); err != nil {
		t.Fatalf("SetGroup(nil) error = %v", err)
	}
	if got := store.Bucket(StatusDone).Count; got != 1 {
		t.Fatalf("done count after all-groups refresh = %d, want 1", got)
	}
	if store.Page() != 1 {
		t.Fatalf("page = %d, want reset to 1", store.Page())
	}
}

func TestStoreSetPageRefetchesWindow(t *testing.T) {
	backend := newFakeBackend()
	for i := 0; i < 5; i++ {
		backend.seed(Task{Status: StatusToDo, Title: fmt.Sprintf("t-%d", i)})
	}
	store := NewStore(backend, nil, WithPageSize(2))
	ctx := context.Background()

	if err := store.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := len(store.Bucket(StatusToDo).Tasks); got != 2 {
		t.Fatalf("page 1 window = %d tasks, want 2", got)
	}
	if got := store.TotalPages(StatusToDo); got != 3 {
		t.Fatalf("TotalPages = %d, want 3", got)
	}

	if err := store.SetPage(ctx, 3); err != nil {
		t.Fatalf("SetPage() error = %v", err)
	}
	if got := len(store.Bucket(StatusToDo).Tasks); got != 1 {
		t.Fatalf("page 3 window = %d tasks, want 1", got)
	}
}

func TestStoreActionFailureLeavesStateUntouched(t *testing.T) {
	backend := newFakeBackend()
	notifier := &recordingNotifier{}
	store := NewStore(backend, notifier)
	ctx := context.Background()

	task, err := store.Create(ctx, CreateTask{AgentID: 1, Title: "stable", Status: StatusDraft})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	before := store.Buckets()

	backend.failAll = errors.New("backend rejected request")
	if _, err := store.Execute(ctx, task.ID); err == nil {
		t.Fatalf("Execute() error = nil, want failure")
	}
	if notifier.count() != 1 {
		t.Fatalf("notifications = %d, want 1", notifier.count())
	}

	after := store.Buckets()
	for _, status := range AllStatuses() {
		if len(after[status].Tasks) != len(before[status].Tasks) || after[status].Count != before[status].Count {
			t.Fatalf("bucket %s changed after failed action", status)
		}
	}
}

func TestStoreSelectionSwitchFetchesChildrenFresh(t *testing.T) {
	backend := newFakeBackend()
	parentA := backend.seed(Task{Status: StatusToDo, Title: "A"})
	parentB := backend.seed(Task{Status: StatusToDo, Title: "B"})
	backend.seed(Task{Status: StatusToDo, Title: "A child", Ancestry: fmt.Sprintf("%d", parentA.ID), AncestryLevel: 1})

	store := NewStore(backend, nil)
	ctx := context.Background()

	if err := store.Select(ctx, parentA.ID); err != nil {
		t.Fatalf("Select(A) error = %v", err)
	}
	selected, ok := store.Selected()
	if !ok || selected.ID != parentA.ID {
		t.Fatalf("selected = %+v, want parent A", selected)
	}
	if len(selected.Children) != 1 {
		t.Fatalf("children = %d, want 1", len(selected.Children))
	}

	fetchesBefore := backend.childLists
	if err := store.Select(ctx, parentB.ID); err != nil {
		t.Fatalf("Select(B) error = %v", err)
	}
	selected, ok = store.Selected()
	if !ok || selected.ID != parentB.ID {
		t.Fatalf("selected = %+v, want parent B", selected)
	}
	if len(selected.Children) != 0 {
		t.Fatalf("previous selection's children leaked into new selection")
	}
	if backend.childLists != fetchesBefore+1 {
		t.Fatalf("child fetches = %d, want fresh fetch on reselect", backend.childLists-fetchesBefore)
	}
}

func TestStorePushForSelectedTaskKeepsChildren(t *testing.T) {
	backend := newFakeBackend()
	parent := backend.seed(Task{Status: StatusInProgress, Title: "parent"})
	backend.seed(Task{Status: StatusInProgress, Title: "kid", Ancestry: fmt.Sprintf("%d", parent.ID), AncestryLevel: 1})

	store := NewStore(backend, nil)
	ctx := context.Background()
	if err := store.Select(ctx, parent.ID); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	snapshot := parent
	snapshot.Title = "parent renamed"
	store.handlePush(ctx, mustJSON(t, snapshot))

	selected, ok := store.Selected()
	if !ok {
		t.Fatalf("selection lost after push")
	}
	if selected.Title != "parent renamed" {
		t.Fatalf("selected title = %q, want refreshed fields", selected.Title)
	}
	if len(selected.Children) != 1 {
		t.Fatalf("children = %d, want preserved from before", len(selected.Children))
	}
}

func TestStorePushForChildRefetchesSelectedChildren(t *testing.T) {
	backend := newFakeBackend()
	parent := backend.seed(Task{Status: StatusInProgress, Title: "parent"})
	store := NewStore(backend, nil)
	ctx := context.Background()

	if err := store.Select(ctx, parent.ID); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if selected, _ := store.Selected(); len(selected.Children) != 0 {
		t.Fatalf("children = %d, want none yet", len(selected.Children))
	}

	child := backend.seed(Task{Status: StatusToDo, Title: "new child", Ancestry: fmt.Sprintf("%d", parent.ID), AncestryLevel: 1})
	store.handlePush(ctx, mustJSON(t, child))

	selected, _ := store.Selected()
	if len(selected.Children) != 1 || selected.Children[0].ID != child.ID {
		t.Fatalf("children after child push = %+v, want the new child", selected.Children)
	}
}

type fakeEventSource struct {
	created chan json.RawMessage
	updated chan json.RawMessage
}

func (f *fakeEventSource) Listen(topic string) (<-chan json.RawMessage, func()) {
	switch topic {
	case TopicTaskCreated:
		return f.created, func() { close(f.created) }
	case TopicTaskUpdated:
		return f.updated, func() { close(f.updated) }
	default:
		ch := make(chan json.RawMessage)
		close(ch)
		return ch, func() {}
	}
}

func TestStoreAttachPushFoldsEvents(t *testing.T) {
	store := NewStore(newFakeBackend(), nil)
	src := &fakeEventSource{
		created: make(chan json.RawMessage, 4),
		updated: make(chan json.RawMessage, 4),
	}
	ctx := context.Background()

	release := store.AttachPush(ctx, src)
	src.created <- mustJSON(t, Task{ID: 1, Status: StatusDraft})
	src.updated <- mustJSON(t, Task{ID: 1, Status: StatusToDo})

	deadline := time.After(2 * time.Second)
	for {
		if bucket := store.Bucket(StatusToDo); len(bucket.Tasks) == 1 && store.Bucket(StatusDraft).Count == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("push events not folded in time: draft=%+v todo=%+v",
				store.Bucket(StatusDraft), store.Bucket(StatusToDo))
		case <-time.After(10 * time.Millisecond):
		}
	}

	release()
	release() // idempotent
}

func TestStoreMalformedPushIgnored(t *testing.T) {
	store := NewStore(newFakeBackend(), nil)
	store.handlePush(context.Background(), json.RawMessage(`{"id":"not a number"`))
	for status, bucket := range store.Buckets() {
		if len(bucket.Tasks) != 0 {
			t.Fatalf("bucket %s changed by malformed push", status)
		}
	}
}
