// Package lifecycle applies task status changes to a procedure and keeps its
// summary, completion percentage and status in step.
package lifecycle

import (
	"math"
	"strings"
	"time"

	"fiscalops/internal/domain"
	"fiscalops/internal/engine/deadline"
	"fiscalops/internal/engine/deps"
)

// Gating controls whether incomplete predecessors block a task.
type Gating string

const (
	GatingAdvisory Gating = "advisory"
	GatingEnforced Gating = "enforced"
)

func (g Gating) Valid() bool { return g == GatingAdvisory || g == GatingEnforced }

type Options struct {
	Gating   Gating
	Resolver deadline.Resolver
}

// Patch is a partial task update. Nil fields are left unchanged.
type Patch struct {
	Status     *domain.TaskStatus
	Progress   *int
	Note       string
	AssigneeID *string
	ActorID    string
	Force      bool
}

// Change describes what an update did, for callers that record events.
type Change struct {
	Task           domain.Task
	PreviousStatus domain.TaskStatus
	AutoCompleted  bool
	Unlocked       []string
}

// UpdateTaskStatus applies patch to the task with taskID.
func UpdateTaskStatus(p *domain.Procedure, taskID string, patch Patch, now time.Time, opts Options) (Change, error) {
	idx := p.TaskIndex(taskID)
	if idx < 0 {
		return Change{}, domain.NotFound("task", taskID)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return Change{}, domain.Invalid("status", "must be one of pending, in_progress, completed, got %q", *patch.Status)
	}

	t := p.Tasks[idx]
	prev := t.Status
	status := prev
	if patch.Status != nil {
		status = *patch.Status
	}
	progress := t.Progress
	switch {
	case patch.Progress != nil:
		progress = clamp(*patch.Progress)
	case status != domain.TaskCompleted && prev == domain.TaskCompleted && progress == 100:
		progress = 0
	}
	if status == domain.TaskCompleted {
		progress = 100
	}

	final := status
	if progress == 100 {
		final = domain.TaskCompleted
	}
	if opts.Gating == GatingEnforced && !patch.Force && final != prev && final != domain.TaskPending {
		if blocked := deps.Incomplete(p.Tasks, t); len(blocked) > 0 {
			return Change{}, domain.Invalid("predecessors", "task %s is waiting on %s", t.ID, strings.Join(blocked, ", "))
		}
	}

	t.Status = status
	t.Progress = progress
	if patch.AssigneeID != nil {
		t.AssigneeID = *patch.AssigneeID
	}
	t.History = append(t.History, domain.StatusHistoryEntry{
		Status:    status,
		Kind:      domain.HistoryStatus,
		Timestamp: now,
		Note:      patch.Note,
		ActorID:   patch.ActorID,
	})
	change := Change{PreviousStatus: prev}
	if final != status {
		t.Status = final
		t.History = append(t.History, domain.StatusHistoryEntry{
			Status:    final,
			Kind:      domain.HistoryAutoComplete,
			Timestamp: now,
			Note:      "progress reached 100",
			ActorID:   domain.SystemActor,
		})
		change.AutoCompleted = true
	}
	switch {
	case t.Status == domain.TaskCompleted && prev != domain.TaskCompleted:
		done := now
		t.CompletedAt = &done
	case t.Status != domain.TaskCompleted:
		t.CompletedAt = nil
	}
	t.UpdatedAt = now
	p.Tasks[idx] = t

	if t.Status == domain.TaskCompleted && prev != domain.TaskCompleted {
		change.Unlocked = unlock(p, t.ID, now)
	}
	p.UpdatedAt = now
	Recompute(p, now)
	change.Task = p.Tasks[idx]
	return change, nil
}

// unlock records an unlock entry on every open dependent of id whose
// predecessors are now all completed. It returns the unlocked ids.
func unlock(p *domain.Procedure, id string, now time.Time) []string {
	var unlocked []string
	for _, depID := range deps.Dependents(p.Tasks, id) {
		i := p.TaskIndex(depID)
		d := &p.Tasks[i]
		if d.Completed() || len(deps.Incomplete(p.Tasks, *d)) > 0 || hasUnlock(*d, id) {
			continue
		}
		d.History = append(d.History, domain.StatusHistoryEntry{
			Status:      d.Status,
			Kind:        domain.HistoryUnlock,
			Timestamp:   now,
			Note:        "all predecessors completed",
			ActorID:     domain.SystemActor,
			TriggeredBy: id,
		})
		d.UpdatedAt = now
		unlocked = append(unlocked, d.ID)
	}
	return unlocked
}

func hasUnlock(t domain.Task, trigger string) bool {
	for _, h := range t.History {
		if h.Kind == domain.HistoryUnlock && h.TriggeredBy == trigger {
			return true
		}
	}
	return false
}

// Recompute refreshes the summary, completion percentage and status of p.
// Archived procedures keep their status.
func Recompute(p *domain.Procedure, now time.Time) {
	s := domain.Summary{Total: len(p.Tasks)}
	sum := 0
	for _, t := range p.Tasks {
		sum += t.Progress
		switch t.Status {
		case domain.TaskCompleted:
			s.Completed++
			continue
		case domain.TaskInProgress:
			s.InProgress++
		default:
			s.Pending++
		}
		if t.Priority == domain.PriorityHigh {
			s.HighPriorityOutstanding++
		}
		if t.DueDate == nil {
			continue
		}
		if t.DueDate.Before(now) {
			s.Overdue++
		} else if s.NextDueDate == nil || t.DueDate.Before(*s.NextDueDate) {
			due := *t.DueDate
			s.NextDueDate = &due
		}
	}
	p.Summary = s
	p.CompletionPercentage = 0
	if s.Total > 0 {
		p.CompletionPercentage = int(math.Round(float64(sum) / float64(s.Total)))
	}
	switch {
	case p.Status == domain.ProcedureArchived:
	case s.Total > 0 && s.Completed == s.Total:
		p.Status = domain.ProcedureCompleted
	case p.Status == domain.ProcedureCompleted:
		p.Status = domain.ProcedureActive
	case p.Status == "":
		p.Status = domain.ProcedureActive
	}
}

// SetStatus overrides the procedure status.
func SetStatus(p *domain.Procedure, status domain.ProcedureStatus, now time.Time) error {
	if !status.Valid() {
		return domain.Invalid("status", "must be one of active, completed, archived, got %q", status)
	}
	p.Status = status
	p.UpdatedAt = now
	return nil
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
