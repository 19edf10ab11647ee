package lifecycle

import (
	"strings"
	"time"

	"fiscalops/internal/domain"
	"fiscalops/internal/engine/deps"
)

// DefaultRule is the deadline given to manual tasks without one.
var DefaultRule = domain.Monthly(30)

// TaskSpec describes a manually added task. Only Title is required.
type TaskSpec struct {
	Title        string
	Description  string
	Priority     domain.Priority
	Deadline     *domain.DeadlineRule
	DueDate      *time.Time
	Predecessors []string
	Tags         []string
	AssigneeID   string
	ActorID      string
}

// AddTask appends a task built from spec, re-sorts the task list and
// recomputes p. The new task is returned.
func AddTask(p *domain.Procedure, spec TaskSpec, now time.Time, opts Options) (domain.Task, error) {
	title := strings.TrimSpace(spec.Title)
	if title == "" {
		return domain.Task{}, domain.Invalid("title", "is required")
	}
	priority := spec.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return domain.Task{}, domain.Invalid("priority", "must be one of high, medium, low, got %q", priority)
	}
	rule := DefaultRule
	if spec.Deadline != nil {
		rule = *spec.Deadline
	}
	var due time.Time
	if spec.DueDate != nil {
		due = *spec.DueDate
	} else {
		var err error
		if due, err = opts.Resolver.Resolve(rule, now); err != nil {
			return domain.Task{}, err
		}
	}
	for _, pred := range spec.Predecessors {
		if p.TaskIndex(pred) < 0 {
			return domain.Task{}, domain.Invalid("predecessors", "unknown task %s", pred)
		}
	}

	seq := p.NextTaskSeq
	if seq < 1 {
		seq = len(p.Tasks) + 1
	}
	for p.TaskIndex(domain.TaskID(seq)) >= 0 {
		seq++
	}
	actor := spec.ActorID
	if actor == "" {
		actor = domain.SystemActor
	}
	task := domain.Task{
		ID:           domain.TaskID(seq),
		Title:        title,
		Description:  spec.Description,
		Priority:     priority,
		Status:       domain.TaskPending,
		Deadline:     rule,
		DueDate:      &due,
		Predecessors: append([]string(nil), spec.Predecessors...),
		Tags:         append([]string(nil), spec.Tags...),
		AssigneeID:   spec.AssigneeID,
		History: []domain.StatusHistoryEntry{{
			Status:    domain.TaskPending,
			Kind:      domain.HistoryCreated,
			Timestamp: now,
			Note:      "added manually",
			ActorID:   actor,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	tasks := append(append([]domain.Task(nil), p.Tasks...), task)
	order, err := deps.TopologicalOrder(tasks)
	if err != nil {
		return domain.Task{}, err
	}
	deps.Resolve(tasks)
	domain.SortTasks(tasks, order)
	p.Tasks = tasks
	p.NextTaskSeq = seq + 1
	p.UpdatedAt = now
	Recompute(p, now)
	return p.Tasks[p.TaskIndex(task.ID)], nil
}
