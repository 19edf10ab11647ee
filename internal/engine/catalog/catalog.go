// Package catalog turns classified requirements into the task list of a
// procedure.
package catalog

import (
	"time"

	"fiscalops/internal/domain"
	"fiscalops/internal/engine/deadline"
	"fiscalops/internal/engine/deps"
)

// Emitters run in this order and their output is concatenated.
var Emitters = []Emitter{baseline, entity, fiscal, sector}

type Generator struct {
	Resolver deadline.Resolver
}

func New(r deadline.Resolver) Generator { return Generator{Resolver: r} }

// Templates concatenates the output of every emitter. Later templates with a
// key already seen are dropped.
func (g Generator) Templates(p *domain.ClientProfile, req domain.ProcedureRequirements) []Template {
	seen := map[string]bool{}
	var out []Template
	for _, emit := range Emitters {
		for _, tpl := range emit(p, req) {
			if seen[tpl.Key] {
				continue
			}
			seen[tpl.Key] = true
			out = append(out, tpl)
		}
	}
	return out
}

// Generate assembles the tasks for a profile: ids in emitted order, After keys
// mapped to ids, deadlines resolved against ref, dependencies resolved, then
// sorted by due date and priority.
func (g Generator) Generate(p *domain.ClientProfile, req domain.ProcedureRequirements, ref time.Time) ([]domain.Task, error) {
	if p == nil {
		return nil, domain.ClassificationError{Field: "profile", Reason: "is missing"}
	}
	templates := g.Templates(p, req)

	ids := make(map[string]string, len(templates))
	for i, tpl := range templates {
		ids[tpl.Key] = domain.TaskID(i + 1)
	}

	tasks := make([]domain.Task, 0, len(templates))
	for i, tpl := range templates {
		due, err := g.Resolver.Resolve(tpl.Rule, ref)
		if err != nil {
			return nil, err
		}
		var preds []string
		for _, key := range tpl.After {
			if id, ok := ids[key]; ok {
				preds = append(preds, id)
			}
		}
		tasks = append(tasks, domain.Task{
			ID:           domain.TaskID(i + 1),
			Key:          tpl.Key,
			Title:        tpl.Title,
			Description:  tpl.Description,
			Priority:     tpl.Priority,
			Status:       domain.TaskPending,
			Deadline:     tpl.Rule,
			DueDate:      &due,
			Predecessors: preds,
			Tags:         append([]string(nil), tpl.Tags...),
			History: []domain.StatusHistoryEntry{{
				Status:    domain.TaskPending,
				Kind:      domain.HistoryCreated,
				Timestamp: ref,
				Note:      "generated",
				ActorID:   domain.SystemActor,
			}},
			CreatedAt: ref,
			UpdatedAt: ref,
		})
	}

	order, err := deps.TopologicalOrder(tasks)
	if err != nil {
		return nil, err
	}
	deps.Resolve(tasks)
	domain.SortTasks(tasks, order)
	return tasks, nil
}
