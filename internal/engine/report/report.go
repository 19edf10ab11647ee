// Package report aggregates progress and overdue work across procedures.
package report

import (
	"math"
	"sort"
	"time"

	"fiscalops/internal/domain"
)

// DefaultOverdueLimit bounds TopOverdue when the caller passes no limit.
const DefaultOverdueLimit = 10

type ProcedureRef struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
}

type OverdueTask struct {
	ProcedureID string          `json:"procedure_id"`
	ClientID    string          `json:"client_id"`
	TaskID      string          `json:"task_id"`
	Title       string          `json:"title"`
	Priority    domain.Priority `json:"priority"`
	DueDate     time.Time       `json:"due_date" format:"date-time"`
	DaysOverdue int             `json:"days_overdue"`
}

type ProgressReport struct {
	GeneratedAt         time.Time                      `json:"generated_at" format:"date-time"`
	TotalProcedures     int                            `json:"total_procedures"`
	ByStatus            map[domain.ProcedureStatus]int `json:"by_status"`
	CompletedProcedures []ProcedureRef                 `json:"completed_procedures"`
	CompletionRate      float64                        `json:"completion_rate"`
	TotalTasks          int                            `json:"total_tasks"`
	CompletedTasks      int                            `json:"completed_tasks"`
	TaskCompletionRate  float64                        `json:"task_completion_rate"`
	OverdueTasks        int                            `json:"overdue_tasks"`
	TopOverdue          []OverdueTask                  `json:"top_overdue"`
}

type OverdueFilters struct {
	ClientID    string
	ProcedureID string
	Priority    domain.Priority
	Limit       int
}

// GenerateProgressReport summarizes ps as of now. limit caps TopOverdue and
// falls back to DefaultOverdueLimit when not positive.
func GenerateProgressReport(ps []domain.Procedure, now time.Time, limit int) ProgressReport {
	if limit <= 0 {
		limit = DefaultOverdueLimit
	}
	r := ProgressReport{
		GeneratedAt:         now,
		TotalProcedures:     len(ps),
		ByStatus:            map[domain.ProcedureStatus]int{domain.ProcedureActive: 0, domain.ProcedureCompleted: 0, domain.ProcedureArchived: 0},
		CompletedProcedures: []ProcedureRef{},
	}
	for _, p := range ps {
		r.ByStatus[p.Status]++
		if p.Status == domain.ProcedureCompleted {
			r.CompletedProcedures = append(r.CompletedProcedures, ProcedureRef{ID: p.ID, ClientID: p.ClientID, Name: p.Name})
		}
		for _, t := range p.Tasks {
			r.TotalTasks++
			if t.Completed() {
				r.CompletedTasks++
			}
		}
	}
	r.CompletionRate = rate(len(r.CompletedProcedures), r.TotalProcedures)
	r.TaskCompletionRate = rate(r.CompletedTasks, r.TotalTasks)

	overdue := GetOverdueTasks(ps, OverdueFilters{}, now)
	r.OverdueTasks = len(overdue)
	if len(overdue) > limit {
		overdue = overdue[:limit]
	}
	r.TopOverdue = overdue
	return r
}

// GetOverdueTasks lists incomplete tasks due before now, most urgent first.
// Archived procedures are skipped.
func GetOverdueTasks(ps []domain.Procedure, f OverdueFilters, now time.Time) []OverdueTask {
	out := []OverdueTask{}
	for _, p := range ps {
		if p.Status == domain.ProcedureArchived {
			continue
		}
		if f.ClientID != "" && p.ClientID != f.ClientID {
			continue
		}
		if f.ProcedureID != "" && p.ID != f.ProcedureID {
			continue
		}
		for _, t := range p.Tasks {
			if t.Completed() || t.DueDate == nil || !t.DueDate.Before(now) {
				continue
			}
			if f.Priority != "" && t.Priority != f.Priority {
				continue
			}
			out = append(out, OverdueTask{
				ProcedureID: p.ID,
				ClientID:    p.ClientID,
				TaskID:      t.ID,
				Title:       t.Title,
				Priority:    t.Priority,
				DueDate:     *t.DueDate,
				DaysOverdue: int(now.Sub(*t.DueDate).Hours() / 24),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra < rb
		}
		if a.DaysOverdue != b.DaysOverdue {
			return a.DaysOverdue > b.DaysOverdue
		}
		if a.ProcedureID != b.ProcedureID {
			return a.ProcedureID < b.ProcedureID
		}
		return a.TaskID < b.TaskID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// rate returns part/total as a percentage rounded to two decimals.
func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100*100) / 100
}
