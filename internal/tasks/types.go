package tasks

import (
	"strconv"
	"strings"
	"time"
)

// Status is the backend's task status vocabulary.
type Status string

const (
	StatusDraft          Status = "Draft"
	StatusToDo           Status = "ToDo"
	StatusInProgress     Status = "InProgress"
	StatusWaitingForUser Status = "WaitingForUser"
	StatusPaused         Status = "Paused"
	StatusDone           Status = "Done"
	StatusFailed         Status = "Failed"
)

// AllStatuses returns every status in stable display order.
func AllStatuses() []Status {
	return []Status{
		StatusDraft,
		StatusToDo,
		StatusInProgress,
		StatusWaitingForUser,
		StatusPaused,
		StatusDone,
		StatusFailed,
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusToDo, StatusInProgress, StatusWaitingForUser,
		StatusPaused, StatusDone, StatusFailed:
		return true
	default:
		return false
	}
}

// Task mirrors the backend task row. Ancestry is a slash-delimited
// chain of ancestor ids ("12/47"); it is empty for root tasks.
type Task struct {
	ID              int64     `json:"id"`
	AgentID         int64     `json:"agent_id"`
	OriginChatID    *int64    `json:"origin_chat_id,omitempty"`
	ControlChatID   *int64    `json:"control_chat_id,omitempty"`
	ExecutionChatID *int64    `json:"execution_chat_id,omitempty"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	Status          Status    `json:"status"`
	Ancestry        string    `json:"ancestry,omitempty"`
	AncestryLevel   int       `json:"ancestry_level"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsChild reports whether the task has an ancestor chain. Only root
// tasks occupy status buckets.
func (t Task) IsChild() bool {
	return strings.TrimSpace(t.Ancestry) != ""
}

// ParentID returns the immediate parent id, the last ancestry segment.
func (t Task) ParentID() (int64, bool) {
	ancestry := strings.TrimSpace(t.Ancestry)
	if ancestry == "" {
		return 0, false
	}
	segments := strings.Split(ancestry, "/")
	id, err := strconv.ParseInt(segments[len(segments)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (t Task) Clone() Task {
	out := t
	out.OriginChatID = cloneID(t.OriginChatID)
	out.ControlChatID = cloneID(t.ControlChatID)
	out.ExecutionChatID = cloneID(t.ExecutionChatID)
	return out
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// SelectedTask is a task opened in the UI plus its materialized direct
// children. It exists only while the task is selected.
type SelectedTask struct {
	Task
	Children []Task `json:"children"`
}

func (s SelectedTask) Clone() SelectedTask {
	out := SelectedTask{Task: s.Task.Clone()}
	if s.Children != nil {
		out.Children = make([]Task, len(s.Children))
		for i, c := range s.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// CreateTask is the create_task request body. A non-nil Ancestry makes
// the new task a child of the named chain.
type CreateTask struct {
	AgentID  int64   `json:"agent_id"`
	Title    string  `json:"title"`
	Summary  string  `json:"summary"`
	Ancestry *string `json:"ancestry,omitempty"`
	Status   Status  `json:"status"`
}

// UpdateTask is the update_task request body.
type UpdateTask struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
	AgentID int64  `json:"agent_id"`
}

// TasksList is the backend list envelope. Count is the total number of
// matching tasks independent of pagination; list_child_tasks leaves it
// nil.
type TasksList struct {
	Tasks []Task `json:"tasks"`
	Count *int   `json:"count,omitempty"`
}

// Pagination is the wire shape for paginated listings. Page is 1-based.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// ResultKind distinguishes how a task result's data is interpreted.
type ResultKind string

const (
	ResultText ResultKind = "Text"
	ResultURL  ResultKind = "Url"
)

// TaskResult is one artifact produced by an executed task. For Text
// results Data arrives as rendered HTML; the raw markdown is fetched
// separately by result id.
type TaskResult struct {
	ID        int64      `json:"id"`
	AgentID   int64      `json:"agent_id"`
	TaskID    int64      `json:"task_id"`
	Kind      ResultKind `json:"kind"`
	Data      string     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
