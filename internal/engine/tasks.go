package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fiscalops/internal/domain"
	"fiscalops/internal/engine/lifecycle"
	"fiscalops/internal/events"
)

type TaskUpdateOptions struct {
	ProcedureID string
	TaskID      string
	Status      *domain.TaskStatus
	Progress    *int
	Note        string
	AssigneeID  *string
	ActorID     string
	Force       bool
}

// TaskUpdate is the outcome of UpdateTaskStatus.
type TaskUpdate struct {
	Procedure      domain.Procedure
	Task           domain.Task
	PreviousStatus domain.TaskStatus
	AutoCompleted  bool
	Unlocked       []string
}

// UpdateTaskStatus applies a status/progress patch to one task and persists
// the procedure together with the events the change produced.
func (e Engine) UpdateTaskStatus(ctx context.Context, opts TaskUpdateOptions) (TaskUpdate, error) {
	actor := actorOr(opts.ActorID, domain.SystemActor)
	var change lifecycle.Change
	p, err := e.mutate(ctx, opts.ProcedureID, func(p *domain.Procedure, now time.Time) ([]events.Record, error) {
		prevProc := p.Status
		var err error
		change, err = lifecycle.UpdateTaskStatus(p, opts.TaskID, lifecycle.Patch{
			Status:     opts.Status,
			Progress:   opts.Progress,
			Note:       opts.Note,
			AssigneeID: opts.AssigneeID,
			ActorID:    actor,
			Force:      opts.Force,
		}, now, e.lifecycleOptions())
		if err != nil {
			return nil, err
		}
		return taskChangeRecords(p, change, prevProc, actor, opts.Note), nil
	})
	if err != nil {
		return TaskUpdate{}, err
	}

	if e.Metrics != nil {
		e.Metrics.TaskTransitions.WithLabelValues(string(change.PreviousStatus), string(change.Task.Status)).Inc()
		e.Metrics.TasksUnlocked.Add(float64(len(change.Unlocked)))
		if change.AutoCompleted {
			e.Metrics.TasksAutoCompleted.Inc()
		}
	}
	e.refreshStatusGauge(ctx)
	e.log().Info("task updated",
		zap.String("procedure_id", p.ID),
		zap.String("task_id", change.Task.ID),
		zap.String("from", string(change.PreviousStatus)),
		zap.String("to", string(change.Task.Status)),
		zap.Int("progress", change.Task.Progress),
		zap.Strings("unlocked", change.Unlocked))
	return TaskUpdate{
		Procedure:      p,
		Task:           change.Task,
		PreviousStatus: change.PreviousStatus,
		AutoCompleted:  change.AutoCompleted,
		Unlocked:       change.Unlocked,
	}, nil
}

func taskChangeRecords(p *domain.Procedure, change lifecycle.Change, prevProc domain.ProcedureStatus, actor, note string) []events.Record {
	t := change.Task
	payload := events.EventPayload{
		"from":     change.PreviousStatus,
		"to":       t.Status,
		"progress": t.Progress,
	}
	if note != "" {
		payload["note"] = note
	}
	recs := []events.Record{{
		Type:        events.TaskStatusUpdated,
		ProcedureID: p.ID,
		EntityKind:  "task",
		EntityID:    t.ID,
		ActorID:     actor,
		Payload:     payload,
	}}
	if change.AutoCompleted {
		recs = append(recs, events.Record{
			Type:        events.TaskAutoCompleted,
			ProcedureID: p.ID,
			EntityKind:  "task",
			EntityID:    t.ID,
			ActorID:     domain.SystemActor,
			Payload:     events.EventPayload{"progress": t.Progress},
		})
	}
	for _, id := range change.Unlocked {
		recs = append(recs, events.Record{
			Type:        events.TaskUnlocked,
			ProcedureID: p.ID,
			EntityKind:  "task",
			EntityID:    id,
			ActorID:     domain.SystemActor,
			Payload:     events.EventPayload{"triggered_by": t.ID},
		})
	}
	if p.Status != prevProc {
		recs = append(recs, procedureStatusRecord(p.ID, prevProc, p.Status, domain.SystemActor))
	}
	return recs
}

type AddTaskOptions struct {
	ProcedureID string
	Spec        lifecycle.TaskSpec
}

// AddTask appends a manual task to a procedure.
func (e Engine) AddTask(ctx context.Context, opts AddTaskOptions) (domain.Task, error) {
	spec := opts.Spec
	spec.ActorID = actorOr(spec.ActorID, domain.SystemActor)
	var added domain.Task
	_, err := e.mutate(ctx, opts.ProcedureID, func(p *domain.Procedure, now time.Time) ([]events.Record, error) {
		prevProc := p.Status
		var err error
		added, err = lifecycle.AddTask(p, spec, now, e.lifecycleOptions())
		if err != nil {
			return nil, err
		}
		recs := []events.Record{{
			Type:        events.TaskAdded,
			ProcedureID: p.ID,
			EntityKind:  "task",
			EntityID:    added.ID,
			ActorID:     spec.ActorID,
			Payload: events.EventPayload{
				"title":        added.Title,
				"priority":     added.Priority,
				"predecessors": added.Predecessors,
			},
		}}
		if p.Status != prevProc {
			recs = append(recs, procedureStatusRecord(p.ID, prevProc, p.Status, domain.SystemActor))
		}
		return recs, nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.refreshStatusGauge(ctx)
	e.log().Info("task added",
		zap.String("procedure_id", opts.ProcedureID), zap.String("task_id", added.ID))
	return added, nil
}
