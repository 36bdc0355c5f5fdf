package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/antoniostano/starbridge/internal/notify"
	"github.com/antoniostano/starbridge/internal/observability"
)

// Push topics emitted by the backend for task changes.
const (
	TopicTaskCreated = "tasks:created"
	TopicTaskUpdated = "tasks:updated"
)

const DefaultPageSize = 20

// Backend is the slice of the repository the store drives.
type Backend interface {
	ListRootTasksByStatus(ctx context.Context, status Status, page, perPage int) (TasksList, error)
	ListChildTasks(ctx context.Context, parentID int64) ([]Task, error)
	Get(ctx context.Context, id int64) (Task, error)
	Create(ctx context.Context, req CreateTask) (Task, error)
	Duplicate(ctx context.Context, id int64) (Task, error)
	Update(ctx context.Context, req UpdateTask) (Task, error)
	Revise(ctx context.Context, id int64) (Task, error)
	Execute(ctx context.Context, id int64) (Task, error)
	Plan(ctx context.Context, id int64) (Task, error)
	Pause(ctx context.Context, id int64) (Task, error)
	Cancel(ctx context.Context, id int64) (Task, error)
	Delete(ctx context.Context, id int64) error
}

// ChatLookup lets the store nudge the chats cache when a push snapshot
// references an execution chat it has not seen yet.
type ChatLookup interface {
	Known(id int64) bool
	Refresh(ctx context.Context) error
}

// EventSource is the push side of the bridge gateway.
type EventSource interface {
	Listen(topic string) (<-chan json.RawMessage, func())
}

// Bucket is the bounded view window for one status: at most one page of
// most-recently-touched root tasks, plus the server-authoritative total.
type Bucket struct {
	Tasks []Task `json:"tasks"`
	Count int    `json:"count"`
}

func (b Bucket) clone() Bucket {
	out := Bucket{Count: b.Count, Tasks: make([]Task, len(b.Tasks))}
	for i, t := range b.Tasks {
		out.Tasks[i] = t.Clone()
	}
	return out
}

// Store owns the client-side view of tasks: root tasks partitioned into
// per-status buckets and the selected task with its children. It stays
// consistent under local mutations, pagination changes and push events.
//
// Buckets are a view window, not a mirror: the displayed page is
// best-effort fresh, counts come from the server, and a full refetch is
// the consistency-restoring operation after destructive actions.
type Store struct {
	backend  Backend
	notifier notify.Notifier
	metrics  *observability.Metrics
	chats    ChatLookup

	mu       sync.Mutex
	buckets  map[Status]*Bucket
	selected *SelectedTask
	group    *Status
	page     int
	pageSize int
}

type StoreOption func(*Store)

func WithPageSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func WithMetrics(m *observability.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithChatLookup wires the execution-chat side channel: push snapshots
// carrying an unknown execution_chat_id trigger a chats refresh.
func WithChatLookup(chats ChatLookup) StoreOption {
	return func(s *Store) { s.chats = chats }
}

func NewStore(backend Backend, notifier notify.Notifier, opts ...StoreOption) *Store {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	s := &Store{
		backend:  backend,
		notifier: notifier,
		page:     1,
		pageSize: DefaultPageSize,
		buckets:  emptyBuckets(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func emptyBuckets() map[Status]*Bucket {
	out := make(map[Status]*Bucket, len(AllStatuses()))
	for _, status := range AllStatuses() {
		out[status] = &Bucket{}
	}
	return out
}

// Refresh refetches the current page. With a group selected only that
// status is fetched; otherwise all statuses are fetched in parallel.
// Buckets are discarded and reloaded, never re-derived locally.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	group := s.group
	page := s.page
	pageSize := s.pageSize
	s.mu.Unlock()

	statuses := AllStatuses()
	if group != nil {
		statuses = []Status{*group}
	}

	fetched := make(map[Status]*Bucket, len(statuses))
	var fetchedMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, status := range statuses {
		status := status
		g.Go(func() error {
			list, err := s.backend.ListRootTasksByStatus(gctx, status, page, pageSize)
			if err != nil {
				return err
			}
			bucket := &Bucket{Tasks: list.Tasks}
			if list.Count != nil {
				bucket.Count = *list.Count
			} else {
				bucket.Count = len(list.Tasks)
			}
			fetchedMu.Lock()
			fetched[status] = bucket
			fetchedMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return s.fail("load tasks", err)
	}

	s.mu.Lock()
	s.buckets = emptyBuckets()
	for status, bucket := range fetched {
		s.buckets[status] = bucket
	}
	s.publishSizesLocked()
	s.mu.Unlock()
	s.metrics.StoreRefresh()
	return nil
}

// SetGroup changes the selected status group (nil means all groups),
// resets to page 1 and refetches.
func (s *Store) SetGroup(ctx context.Context, group *Status) error {
	if group != nil && !group.Valid() {
		return s.fail("select group", fmt.Errorf("unknown status %q", *group))
	}
	s.mu.Lock()
	if group == nil {
		s.group = nil
	} else {
		g := *group
		s.group = &g
	}
	s.page = 1
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// SetPage moves to the given 1-based page and refetches.
func (s *Store) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	return s.Refresh(ctx)
}

func (s *Store) Create(ctx context.Context, req CreateTask) (Task, error) {
	task, err := s.backend.Create(ctx, req)
	if err != nil {
		return Task{}, s.fail("create task", err)
	}
	s.apply(task)
	return task, nil
}

// Duplicate clones an existing task server-side; the copy arrives in
// Draft and is folded in like any other creation.
func (s *Store) Duplicate(ctx context.Context, id int64) (Task, error) {
	task, err := s.backend.Duplicate(ctx, id)
	if err != nil {
		return Task{}, s.fail("duplicate task", err)
	}
	s.apply(task)
	return task, nil
}

func (s *Store) Update(ctx context.Context, req UpdateTask) (Task, error) {
	task, err := s.backend.Update(ctx, req)
	if err != nil {
		return Task{}, s.fail("update task", err)
	}
	s.apply(task)
	return task, nil
}

func (s *Store) Revise(ctx context.Context, id int64) (Task, error) {
	return s.action(ctx, "revise task", id, s.backend.Revise)
}

func (s *Store) Execute(ctx context.Context, id int64) (Task, error) {
	return s.action(ctx, "execute task", id, s.backend.Execute)
}

func (s *Store) Plan(ctx context.Context, id int64) (Task, error) {
	return s.action(ctx, "plan task", id, s.backend.Plan)
}

func (s *Store) Pause(ctx context.Context, id int64) (Task, error) {
	return s.action(ctx, "pause task", id, s.backend.Pause)
}

func (s *Store) Cancel(ctx context.Context, id int64) (Task, error) {
	return s.action(ctx, "cancel task", id, s.backend.Cancel)
}

func (s *Store) action(ctx context.Context, op string, id int64, call func(context.Context, int64) (Task, error)) (Task, error) {
	task, err := call(ctx, id)
	if err != nil {
		return Task{}, s.fail(op, err)
	}
	s.apply(task)
	return task, nil
}

// Delete removes the task remotely, drops it from every bucket and the
// selection, then refetches to restore pagination correctness.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if err := s.backend.Delete(ctx, id); err != nil {
		return s.fail("delete task", err)
	}

	s.mu.Lock()
	for _, bucket := range s.buckets {
		if i := indexOf(bucket.Tasks, id); i >= 0 {
			bucket.Tasks = append(bucket.Tasks[:i], bucket.Tasks[i+1:]...)
			if bucket.Count > 0 {
				bucket.Count--
			}
		}
	}
	if s.selected != nil && s.selected.ID == id {
		s.selected = nil
	}
	s.publishSizesLocked()
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// Select opens a task: its snapshot plus a fresh fetch of its direct
// children. Any previous selection is discarded.
func (s *Store) Select(ctx context.Context, id int64) error {
	task, ok := s.lookup(id)
	if !ok {
		var err error
		task, err = s.backend.Get(ctx, id)
		if err != nil {
			return s.fail("open task", err)
		}
	}

	children, err := s.backend.ListChildTasks(ctx, id)
	if err != nil {
		return s.fail("load subtasks", err)
	}

	s.mu.Lock()
	s.selected = &SelectedTask{Task: task, Children: children}
	s.mu.Unlock()
	return nil
}

func (s *Store) Deselect() {
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
}

// Selected returns a copy of the open task, or false when none is open.
func (s *Store) Selected() (SelectedTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return SelectedTask{}, false
	}
	return s.selected.Clone(), true
}

// Buckets returns a deep copy of the full bucket map.
func (s *Store) Buckets() map[Status]Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Status]Bucket, len(s.buckets))
	for status, bucket := range s.buckets {
		out[status] = bucket.clone()
	}
	return out
}

// Bucket returns a copy of one status bucket.
func (s *Store) Bucket(status Status) Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bucket, ok := s.buckets[status]; ok {
		return bucket.clone()
	}
	return Bucket{}
}

// Group returns the selected status group, nil meaning all groups.
func (s *Store) Group() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.group == nil {
		return nil
	}
	g := *s.group
	return &g
}

func (s *Store) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *Store) PageSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageSize
}

// TotalPages derives the page count for a status from the server total.
func (s *Store) TotalPages(status Status) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.buckets[status]
	if !ok || bucket.Count == 0 {
		return 0
	}
	return (bucket.Count + s.pageSize - 1) / s.pageSize
}

// AttachPush subscribes to the task push topics and folds their
// snapshots into the buckets until ctx ends or the source closes. The
// returned release func detaches both subscriptions.
func (s *Store) AttachPush(ctx context.Context, src EventSource) func() {
	created, offCreated := src.Listen(TopicTaskCreated)
	updated, offUpdated := src.Listen(TopicTaskUpdated)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.consume(ctx, created)
	}()
	go func() {
		defer wg.Done()
		s.consume(ctx, updated)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			offCreated()
			offUpdated()
			wg.Wait()
		})
	}
}

func (s *Store) consume(ctx context.Context, events <-chan json.RawMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-events:
			if !ok {
				return
			}
			s.handlePush(ctx, payload)
		}
	}
}

// handlePush folds one pushed snapshot into the store. A push for the
// selected task refreshes its fields in place (children are kept, they
// need a separate fetch); a push for one of its children refetches the
// children in full.
func (s *Store) handlePush(ctx context.Context, payload json.RawMessage) {
	var task Task
	if err := json.Unmarshal(payload, &task); err != nil || task.ID == 0 {
		s.metrics.PushDecodeError("task")
		return
	}

	s.mu.Lock()
	s.upsertLocked(task)
	refetchChildren := false
	var selectedID int64
	if s.selected != nil {
		selectedID = s.selected.ID
		if task.ID == selectedID {
			s.selected.Task = task
		}
		if parentID, ok := task.ParentID(); ok && parentID == selectedID {
			refetchChildren = true
		}
	}
	chatRefresh := false
	if task.ExecutionChatID != nil && s.chats != nil && !s.chats.Known(*task.ExecutionChatID) {
		chatRefresh = true
	}
	s.publishSizesLocked()
	s.mu.Unlock()

	if refetchChildren {
		children, err := s.backend.ListChildTasks(ctx, selectedID)
		if err != nil {
			s.notifier.Error(err.Error())
		} else {
			s.mu.Lock()
			if s.selected != nil && s.selected.ID == selectedID {
				s.selected.Children = children
			}
			s.mu.Unlock()
		}
	}
	if chatRefresh {
		if err := s.chats.Refresh(ctx); err != nil {
			s.notifier.Error(err.Error())
		}
	}
}

// apply folds a snapshot returned by a local mutation into the buckets
// and, when it is the open task, into the selection.
func (s *Store) apply(task Task) {
	s.mu.Lock()
	s.upsertLocked(task)
	if s.selected != nil && s.selected.ID == task.ID {
		s.selected.Task = task
	}
	s.publishSizesLocked()
	s.mu.Unlock()
}

// upsertLocked reconciles one task snapshot into the correct bucket.
//
// Child tasks are never bucketed. A snapshot already present with the
// same status replaces in place; a status change moves it to the front
// of the new bucket with count bookkeeping on both sides; an unknown
// task is inserted at the front. Buckets are capped at pageSize with
// eviction from the back. Last write wins: a stale push arriving after
// a newer local snapshot overwrites it, as in the original client.
func (s *Store) upsertLocked(task Task) {
	if task.IsChild() {
		return
	}
	if !task.Status.Valid() {
		return
	}

	target := s.buckets[task.Status]

	for status, bucket := range s.buckets {
		i := indexOf(bucket.Tasks, task.ID)
		if i < 0 {
			continue
		}
		if status == task.Status {
			bucket.Tasks[i] = task
			return
		}
		bucket.Tasks = append(bucket.Tasks[:i], bucket.Tasks[i+1:]...)
		if bucket.Count > 0 {
			bucket.Count--
		}
		s.insertFrontLocked(target, task)
		target.Count++
		return
	}

	s.insertFrontLocked(target, task)
	target.Count++
}

func (s *Store) insertFrontLocked(bucket *Bucket, task Task) {
	bucket.Tasks = append([]Task{task}, bucket.Tasks...)
	if len(bucket.Tasks) > s.pageSize {
		bucket.Tasks = bucket.Tasks[:s.pageSize]
	}
}

func (s *Store) lookup(id int64) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, bucket := range s.buckets {
		if i := indexOf(bucket.Tasks, id); i >= 0 {
			return bucket.Tasks[i].Clone(), true
		}
	}
	return Task{}, false
}

func (s *Store) publishSizesLocked() {
	for status, bucket := range s.buckets {
		s.metrics.SetBucketSize(string(status), len(bucket.Tasks))
	}
}

// fail reports an action failure to the user and leaves state as-is.
func (s *Store) fail(op string, err error) error {
	s.notifier.Error(fmt.Sprintf("%s: %v", op, err))
	return fmt.Errorf("%s: %w", op, err)
}

func indexOf(list []Task, id int64) int {
	for i, t := range list {
		if t.ID == id {
			return i
		}
	}
	return -1
}
