package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fiscalops/internal/config"
	"fiscalops/internal/domain"
	"fiscalops/internal/engine/classify"
	"fiscalops/internal/engine/deadline"
	"fiscalops/internal/engine/lifecycle"
	"fiscalops/internal/events"
	"fiscalops/internal/lock"
	"fiscalops/internal/logging"
	"fiscalops/internal/metrics"
	"fiscalops/internal/repo"
)

// maxWriteAttempts bounds the read-modify-write retries after a version
// conflict.
const maxWriteAttempts = 3

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Locks   *lock.MutexMap
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, logger *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Config:  cfg,
		Logger:  logging.OrNop(logger),
		Metrics: metrics.New(),
		Locks:   lock.NewMutexMap(),
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger { return logging.OrNop(e.Logger) }

func (e Engine) cfg() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

func (e Engine) thresholds() classify.Thresholds { return e.cfg().Classification }

func (e Engine) resolver() deadline.Resolver { return deadline.New(e.cfg().Calendar.Annual) }

func (e Engine) lifecycleOptions() lifecycle.Options {
	return lifecycle.Options{
		Gating:   lifecycle.Gating(e.cfg().Lifecycle.DependencyGating),
		Resolver: e.resolver(),
	}
}

func (e Engine) locks() *lock.MutexMap {
	if e.Locks == nil {
		// an Engine built without New gets no cross-call serialization,
		// only the version check
		return lock.NewMutexMap()
	}
	return e.Locks
}

// mutate runs a read-modify-write cycle on one procedure under its lock. fn
// may run more than once when a concurrent writer wins the version check.
func (e Engine) mutate(ctx context.Context, procedureID string, fn func(p *domain.Procedure, now time.Time) ([]events.Record, error)) (domain.Procedure, error) {
	var out domain.Procedure
	err := e.locks().With(procedureID, func() error {
		for attempt := 1; ; attempt++ {
			p, err := e.Repo.GetProcedure(ctx, procedureID)
			if err != nil {
				return err
			}
			recs, err := fn(&p, e.now())
			if err != nil {
				return err
			}
			err = e.commit(ctx, &p, recs)
			if errors.Is(err, repo.ErrVersionConflict) {
				if e.Metrics != nil {
					e.Metrics.VersionConflicts.Inc()
				}
				e.log().Warn("procedure write conflict",
					zap.String("procedure_id", procedureID), zap.Int("attempt", attempt))
				if attempt < maxWriteAttempts {
					continue
				}
			}
			if err != nil {
				return err
			}
			out = p
			return nil
		}
	})
	return out, err
}

func (e Engine) commit(ctx context.Context, p *domain.Procedure, recs []events.Record) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProcedureTx(ctx, tx, p); err != nil {
		return err
	}
	if err := e.writer().AppendAll(ctx, tx, recs); err != nil {
		return err
	}
	return tx.Commit()
}

// writer stamps events with the engine clock.
func (e Engine) writer() events.Writer {
	w := e.Events
	w.Now = e.now
	return w
}

// refreshStatusGauge mirrors stored procedure counts into the status gauge.
func (e Engine) refreshStatusGauge(ctx context.Context) {
	if e.Metrics == nil {
		return
	}
	counts, err := e.Repo.CountProceduresByStatus(ctx)
	if err != nil {
		e.log().Debug("count procedures by status", zap.Error(err))
		return
	}
	for _, s := range []domain.ProcedureStatus{domain.ProcedureActive, domain.ProcedureCompleted, domain.ProcedureArchived} {
		e.Metrics.ProceduresByStatus.WithLabelValues(string(s)).Set(float64(counts[string(s)]))
	}
}

func actorOr(actorID, fallback string) string {
	if actorID == "" {
		return fallback
	}
	return actorID
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
