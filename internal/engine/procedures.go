package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"fiscalops/internal/domain"
	"fiscalops/internal/engine/deps"
	"fiscalops/internal/engine/lifecycle"
	"fiscalops/internal/events"
	"fiscalops/internal/repo"
)

type GenerateForClientOptions struct {
	ClientID string
	Name     string
	// Ref anchors deadline resolution; the engine clock when nil.
	Ref     *time.Time
	ActorID string
}

// GenerateForClient classifies a stored client and persists a new procedure
// for it.
func (e Engine) GenerateForClient(ctx context.Context, opts GenerateForClientOptions) (domain.Procedure, error) {
	client, err := e.Repo.GetClient(ctx, opts.ClientID)
	if err != nil {
		return domain.Procedure{}, err
	}
	now := e.now().UTC()
	ref := now
	if opts.Ref != nil {
		ref = opts.Ref.UTC()
	}

	start := time.Now()
	_, p, err := GenerateOperationalProcedure(&client, GenerateOptions{
		Ref:        ref,
		Name:       opts.Name,
		Thresholds: e.thresholds(),
		Resolver:   e.resolver(),
	})
	if err != nil {
		e.generationFailed(client.ID, err)
		return domain.Procedure{}, err
	}
	p.CreatedAt, p.UpdatedAt = now, now
	lifecycle.Recompute(&p, now)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Procedure{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProcedureTx(ctx, tx, p); err != nil {
		return domain.Procedure{}, wrap("insert procedure", err)
	}
	if err := e.writer().Append(ctx, tx, events.Record{
		Type:        events.ProcedureGenerated,
		ProcedureID: p.ID,
		EntityKind:  "procedure",
		EntityID:    p.ID,
		ActorID:     actorOr(opts.ActorID, domain.SystemActor),
		Payload: events.EventPayload{
			"client_id":      client.ID,
			"procedure_type": p.ProcedureType,
			"complexity":     p.Complexity,
			"task_count":     len(p.Tasks),
		},
	}); err != nil {
		return domain.Procedure{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Procedure{}, err
	}

	if e.Metrics != nil {
		e.Metrics.ProceduresGenerated.WithLabelValues(string(p.Complexity)).Inc()
		e.Metrics.TasksGenerated.Add(float64(len(p.Tasks)))
		e.Metrics.GenerateDuration.Observe(time.Since(start).Seconds())
	}
	e.refreshStatusGauge(ctx)
	e.log().Info("procedure generated",
		zap.String("procedure_id", p.ID),
		zap.String("client_id", client.ID),
		zap.String("procedure_type", p.ProcedureType),
		zap.String("complexity", string(p.Complexity)),
		zap.Int("tasks", len(p.Tasks)))
	return p, nil
}

func (e Engine) generationFailed(clientID string, err error) {
	reason := "other"
	var cls domain.ClassificationError
	var cyc deps.CycleError
	switch {
	case errors.As(err, &cls):
		reason = "classification"
	case errors.As(err, &cyc):
		reason = "cycle"
	}
	if e.Metrics != nil {
		e.Metrics.GenerationFailures.WithLabelValues(reason).Inc()
	}
	e.log().Warn("procedure generation failed",
		zap.String("client_id", clientID), zap.String("reason", reason), zap.Error(err))
}

// GetProcedure loads a procedure with its summary evaluated at the engine
// clock, so overdue counts reflect the time of the read.
func (e Engine) GetProcedure(ctx context.Context, id string) (domain.Procedure, error) {
	p, err := e.Repo.GetProcedure(ctx, id)
	if err != nil {
		return domain.Procedure{}, err
	}
	lifecycle.Recompute(&p, e.now())
	return p, nil
}

func (e Engine) ListProcedures(ctx context.Context, f repo.ProcedureFilters) ([]domain.Procedure, error) {
	if f.Status != "" && !domain.ProcedureStatus(f.Status).Valid() {
		return nil, domain.Invalid("status", "unknown procedure status %q", f.Status)
	}
	ps, err := e.Repo.ListProcedures(ctx, f)
	if err != nil {
		return nil, err
	}
	now := e.now()
	for i := range ps {
		lifecycle.Recompute(&ps[i], now)
	}
	return ps, nil
}

// SetProcedureStatus archives or reactivates a procedure. Completed is only
// accepted when every task is done; otherwise the status follows the tasks.
func (e Engine) SetProcedureStatus(ctx context.Context, id string, status domain.ProcedureStatus, actorID string) (domain.Procedure, error) {
	p, err := e.mutate(ctx, id, func(p *domain.Procedure, now time.Time) ([]events.Record, error) {
		prev := p.Status
		if err := lifecycle.SetStatus(p, status, now); err != nil {
			return nil, err
		}
		lifecycle.Recompute(p, now)
		if status == domain.ProcedureCompleted && p.Status != domain.ProcedureCompleted {
			open := p.Summary.Total - p.Summary.Completed
			return nil, domain.Invalid("status", "procedure has %d open tasks", open)
		}
		if p.Status == prev {
			return nil, nil
		}
		return []events.Record{procedureStatusRecord(p.ID, prev, p.Status, actorOr(actorID, domain.SystemActor))}, nil
	})
	if err != nil {
		return domain.Procedure{}, err
	}
	e.refreshStatusGauge(ctx)
	e.log().Info("procedure status set", zap.String("procedure_id", id), zap.String("status", string(p.Status)))
	return p, nil
}

func procedureStatusRecord(id string, from, to domain.ProcedureStatus, actor string) events.Record {
	return events.Record{
		Type:        events.ProcedureStatusUpdated,
		ProcedureID: id,
		EntityKind:  "procedure",
		EntityID:    id,
		ActorID:     actor,
		Payload:     events.EventPayload{"from": from, "to": to},
	}
}
