package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fiscalops/internal/domain"
	"fiscalops/internal/events"
	"fiscalops/internal/repo"
)

type ClientInput struct {
	Name          string
	EntityType    domain.EntityType
	Sector        string
	Regime        domain.Regime
	AnnualRevenue float64
	EmployeeCount int
	FoundedAt     *time.Time
	HasTaxID      bool
	ActorID       string
}

// ClientPatch is a partial client update. Nil fields are left unchanged.
type ClientPatch struct {
	Name          *string
	EntityType    *domain.EntityType
	Sector        *string
	Regime        *domain.Regime
	AnnualRevenue *float64
	EmployeeCount *int
	FoundedAt     *time.Time
	HasTaxID      *bool
	ActorID       string
}

func validateClient(c domain.ClientProfile) error {
	if strings.TrimSpace(c.Name) == "" {
		return domain.Invalid("name", "is required")
	}
	if !c.EntityType.Valid() {
		return domain.Invalid("entity_type", "must be one of sole_proprietor, partnership, corporation, llc")
	}
	if c.Regime != "" && !c.Regime.Valid() {
		return domain.Invalid("regime", "must be one of flat_rate, simplified, ordinary, unspecified")
	}
	if c.AnnualRevenue < 0 {
		return domain.Invalid("annual_revenue", "must not be negative")
	}
	if c.EmployeeCount < 0 {
		return domain.Invalid("employee_count", "must not be negative")
	}
	return nil
}

func (e Engine) CreateClient(ctx context.Context, in ClientInput) (domain.ClientProfile, error) {
	now := e.now().UTC()
	c := domain.ClientProfile{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(in.Name),
		EntityType:    in.EntityType,
		Sector:        strings.TrimSpace(in.Sector),
		Regime:        in.Regime,
		AnnualRevenue: in.AnnualRevenue,
		EmployeeCount: in.EmployeeCount,
		FoundedAt:     in.FoundedAt,
		HasTaxID:      in.HasTaxID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := validateClient(c); err != nil {
		return domain.ClientProfile{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ClientProfile{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertClientTx(ctx, tx, c); err != nil {
		return domain.ClientProfile{}, wrap("insert client", err)
	}
	if err := e.writer().Append(ctx, tx, events.Record{
		Type:       events.ClientCreated,
		EntityKind: "client",
		EntityID:   c.ID,
		ActorID:    actorOr(in.ActorID, domain.SystemActor),
		Payload:    events.EventPayload{"name": c.Name, "entity_type": c.EntityType},
	}); err != nil {
		return domain.ClientProfile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ClientProfile{}, err
	}
	e.log().Info("client created", zap.String("client_id", c.ID), zap.String("entity_type", string(c.EntityType)))
	return c, nil
}

func (e Engine) GetClient(ctx context.Context, id string) (domain.ClientProfile, error) {
	return e.Repo.GetClient(ctx, id)
}

func (e Engine) ListClients(ctx context.Context, f repo.ClientFilters) ([]domain.ClientProfile, error) {
	if f.EntityType != "" && !domain.EntityType(f.EntityType).Valid() {
		return nil, domain.Invalid("entity_type", "unknown entity type %q", f.EntityType)
	}
	return e.Repo.ListClients(ctx, f)
}

// UpdateClient edits a client profile. Existing procedures keep the
// classification they were generated with.
func (e Engine) UpdateClient(ctx context.Context, id string, patch ClientPatch) (domain.ClientProfile, error) {
	c, err := e.Repo.GetClient(ctx, id)
	if err != nil {
		return domain.ClientProfile{}, err
	}
	changed := []string{}
	if patch.Name != nil {
		c.Name = strings.TrimSpace(*patch.Name)
		changed = append(changed, "name")
	}
	if patch.EntityType != nil {
		c.EntityType = *patch.EntityType
		changed = append(changed, "entity_type")
	}
	if patch.Sector != nil {
		c.Sector = strings.TrimSpace(*patch.Sector)
		changed = append(changed, "sector")
	}
	if patch.Regime != nil {
		c.Regime = *patch.Regime
		changed = append(changed, "regime")
	}
	if patch.AnnualRevenue != nil {
		c.AnnualRevenue = *patch.AnnualRevenue
		changed = append(changed, "annual_revenue")
	}
	if patch.EmployeeCount != nil {
		c.EmployeeCount = *patch.EmployeeCount
		changed = append(changed, "employee_count")
	}
	if patch.FoundedAt != nil {
		founded := *patch.FoundedAt
		c.FoundedAt = &founded
		changed = append(changed, "founded_at")
	}
	if patch.HasTaxID != nil {
		c.HasTaxID = *patch.HasTaxID
		changed = append(changed, "has_tax_id")
	}
	if err := validateClient(c); err != nil {
		return domain.ClientProfile{}, err
	}
	if len(changed) == 0 {
		return c, nil
	}
	c.UpdatedAt = e.now().UTC()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ClientProfile{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateClientTx(ctx, tx, c); err != nil {
		return domain.ClientProfile{}, err
	}
	if err := e.writer().Append(ctx, tx, events.Record{
		Type:       events.ClientUpdated,
		EntityKind: "client",
		EntityID:   c.ID,
		ActorID:    actorOr(patch.ActorID, domain.SystemActor),
		Payload:    events.EventPayload{"fields": changed},
	}); err != nil {
		return domain.ClientProfile{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ClientProfile{}, err
	}
	return c, nil
}
