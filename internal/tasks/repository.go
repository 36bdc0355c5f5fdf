package tasks

import "context"

// invoker is the slice of the bridge gateway the repository needs.
type invoker interface {
	Invoke(ctx context.Context, method string, params, out any) error
}

// Repository shapes task requests for the bridge. It is stateless;
// every method is one round trip returning the authoritative snapshot.
type Repository struct {
	bridge invoker
}

func NewRepository(bridge invoker) *Repository {
	return &Repository{bridge: bridge}
}

type listByStatusParams struct {
	Status     Status     `json:"status"`
	Pagination Pagination `json:"pagination"`
}

type idParams struct {
	ID int64 `json:"id"`
}

type createParams struct {
	Request CreateTask `json:"request"`
}

type updateParams struct {
	Request UpdateTask `json:"request"`
}

// ListRootTasksByStatus returns one page of root tasks in the given
// status plus the total count for that status.
func (r *Repository) ListRootTasksByStatus(ctx context.Context, status Status, page, perPage int) (TasksList, error) {
	var list TasksList
	err := r.bridge.Invoke(ctx, "list_root_tasks_by_status", listByStatusParams{
		Status:     status,
		Pagination: Pagination{Page: page, PerPage: perPage},
	}, &list)
	if err != nil {
		return TasksList{}, err
	}
	return list, nil
}

// ListChildTasks returns all direct children of a task, unpaginated.
func (r *Repository) ListChildTasks(ctx context.Context, parentID int64) ([]Task, error) {
	var list TasksList
	if err := r.bridge.Invoke(ctx, "list_child_tasks", idParams{ID: parentID}, &list); err != nil {
		return nil, err
	}
	return list.Tasks, nil
}

func (r *Repository) Get(ctx context.Context, id int64) (Task, error) {
	return r.taskCall(ctx, "get_task", idParams{ID: id})
}

func (r *Repository) Create(ctx context.Context, req CreateTask) (Task, error) {
	return r.taskCall(ctx, "create_task", createParams{Request: req})
}

// Duplicate asks the backend to clone title, summary and agent from the
// source task; the copy comes back in Draft.
func (r *Repository) Duplicate(ctx context.Context, id int64) (Task, error) {
	return r.taskCall(ctx, "duplicate_task", idParams{ID: id})
}

func (r *Repository) Update(ctx context.Context, req UpdateTask) (Task, error) {
	return r.taskCall(ctx, "update_task", updateParams{Request: req})
}

func (r *Repository) Revise(ctx context.Context, id int64) (Task, error) {
	return r.taskCall(ctx, "revise_task", idParams{ID: id})
}

func (r *Repository) Execute(ctx context.Context, id int64) (Task, error) {
	return r.taskCall(ctx, "execute_task", idParams{ID: id})
}

func (r *Repository) Plan(ctx context.Context, id int64) (Task, error) {
	return r.taskCall(ctx, "plan_task", idParams{ID: id})
}

func (r *Repository) Pause(ctx context.Context, id int64) (Task, error) {
	return r.taskCall(ctx, "pause_task", idParams{ID: id})
}

func (r *Repository) Cancel(ctx context.Context, id int64) (Task, error) {
	return r.taskCall(ctx, "cancel_task", idParams{ID: id})
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	return r.bridge.Invoke(ctx, "delete_task", idParams{ID: id}, nil)
}

// ListResults returns the artifacts an executed task produced.
func (r *Repository) ListResults(ctx context.Context, taskID int64) ([]TaskResult, error) {
	var results []TaskResult
	if err := r.bridge.Invoke(ctx, "get_task_results", map[string]any{"taskId": taskID}, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// ResultTextData returns a Text result's raw data by result id.
func (r *Repository) ResultTextData(ctx context.Context, id int64) (string, error) {
	var data string
	if err := r.bridge.Invoke(ctx, "get_task_result_text_data", idParams{ID: id}, &data); err != nil {
		return "", err
	}
	return data, nil
}

func (r *Repository) taskCall(ctx context.Context, method string, params any) (Task, error) {
	var task Task
	if err := r.bridge.Invoke(ctx, method, params, &task); err != nil {
		return Task{}, err
	}
	return task, nil
}
