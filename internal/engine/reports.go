package engine

import (
	"context"

	"fiscalops/internal/domain"
	"fiscalops/internal/engine/report"
	"fiscalops/internal/repo"
)

type ReportFilters struct {
	ClientID string
	// Limit caps the overdue list; the configured overdue limit when zero.
	Limit int
}

func (e Engine) ProgressReport(ctx context.Context, f ReportFilters) (report.ProgressReport, error) {
	ps, err := e.Repo.ListProcedures(ctx, repo.ProcedureFilters{ClientID: f.ClientID})
	if err != nil {
		return report.ProgressReport{}, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = e.cfg().Report.OverdueLimit
	}
	return report.GenerateProgressReport(ps, e.now(), limit), nil
}

func (e Engine) OverdueTasks(ctx context.Context, f report.OverdueFilters) ([]report.OverdueTask, error) {
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, domain.Invalid("priority", "must be one of high, medium, low")
	}
	if f.ProcedureID != "" {
		p, err := e.Repo.GetProcedure(ctx, f.ProcedureID)
		if err != nil {
			return nil, err
		}
		return report.GetOverdueTasks([]domain.Procedure{p}, f, e.now()), nil
	}
	ps, err := e.Repo.ListProcedures(ctx, repo.ProcedureFilters{ClientID: f.ClientID})
	if err != nil {
		return nil, err
	}
	return report.GetOverdueTasks(ps, f, e.now()), nil
}

// ListEvents lists recorded events, newest first.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}
