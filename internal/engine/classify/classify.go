// Package classify derives procedure requirements from a client's fiscal profile.
package classify

import (
	"time"

	"fiscalops/internal/domain"
)

// Procedure type tags.
const (
	TypeIndividual     = "individual"
	TypePartnership    = "partnership"
	TypeCorporate      = "corporate"
	TypeLimitedCompany = "limited_company"
)

// Fiscal obligation tags.
const (
	FiscalVATDeclaration     = "vat_declaration"
	FiscalVATLiquidation     = "vat_liquidation"
	FiscalCorporateTax       = "corporate_tax"
	FiscalFinancialStatement = "financial_statements"
	FiscalPartnershipTax     = "partnership_tax"
	FiscalPersonalIncomeTax  = "personal_income_tax"
)

// Accounting obligation tags.
const (
	AccountingFullLedger       = "full_ledger"
	AccountingSimplifiedLedger = "simplified_ledger"
	AccountingVATRegisters     = "vat_registers"
	AccountingIncomeRegister   = "income_register"
)

// Thresholds drive complexity overrides.
type Thresholds struct {
	LargeRevenue    float64 `yaml:"large_revenue"`
	LargeHeadcount  int     `yaml:"large_headcount"`
	SmallRevenue    float64 `yaml:"small_revenue"`
	SmallHeadcount  int     `yaml:"small_headcount"`
	NewBusinessDays int     `yaml:"new_business_days"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		LargeRevenue:    1_000_000,
		LargeHeadcount:  20,
		SmallRevenue:    100_000,
		SmallHeadcount:  5,
		NewBusinessDays: 365,
	}
}

type Classifier struct {
	Thresholds Thresholds
}

func New(th Thresholds) Classifier { return Classifier{Thresholds: th} }

// Classify is pure: the same profile and reference date always yield the same
// requirements.
func (c Classifier) Classify(p *domain.ClientProfile, ref time.Time) (domain.ProcedureRequirements, error) {
	var req domain.ProcedureRequirements
	if err := validate(p); err != nil {
		return req, err
	}
	th := c.Thresholds
	if th == (Thresholds{}) {
		th = DefaultThresholds()
	}
	regime := p.Regime
	if regime == "" {
		regime = domain.RegimeUnspecified
	}

	req.ProcedureType, req.Complexity = entityDefaults(p.EntityType, regime)
	switch {
	case p.AnnualRevenue > th.LargeRevenue || p.EmployeeCount > th.LargeHeadcount:
		req.Complexity = domain.ComplexityHigh
	case p.AnnualRevenue < th.SmallRevenue && p.EmployeeCount < th.SmallHeadcount:
		req.Complexity = domain.ComplexityLow
	}

	req.SectorSeeds = matchSector(p.Sector)
	req.FiscalRequirements = fiscalTags(p.EntityType, regime, p.HasTaxID)
	req.AccountingRequirements = accountingTags(regime)

	req.IsNewlyFounded = newlyFounded(p.FoundedAt, ref, th.NewBusinessDays)
	req.NeedsAudit = req.Complexity == domain.ComplexityHigh && p.EntityType.Corporate()
	req.NeedsQuarterlyReview = req.Complexity != domain.ComplexityLow || regime == domain.RegimeOrdinary
	req.NeedsAnnualPlanning = req.Complexity == domain.ComplexityHigh
	return req, nil
}

func validate(p *domain.ClientProfile) error {
	if p == nil {
		return domain.ClassificationError{Field: "profile", Reason: "is missing"}
	}
	if p.EntityType == "" {
		return domain.ClassificationError{Field: "entity_type", Reason: "is required"}
	}
	if !p.EntityType.Valid() {
		return domain.ClassificationError{Field: "entity_type", Reason: "is not a known entity type: " + string(p.EntityType)}
	}
	if p.Regime == "" && p.EntityType == domain.EntitySoleProprietor {
		return domain.ClassificationError{Field: "regime", Reason: "is required for sole proprietors"}
	}
	if p.Regime != "" && !p.Regime.Valid() {
		return domain.ClassificationError{Field: "regime", Reason: "is not a known bookkeeping regime: " + string(p.Regime)}
	}
	if p.AnnualRevenue < 0 {
		return domain.ClassificationError{Field: "annual_revenue", Reason: "must not be negative"}
	}
	if p.EmployeeCount < 0 {
		return domain.ClassificationError{Field: "employee_count", Reason: "must not be negative"}
	}
	return nil
}

func entityDefaults(e domain.EntityType, regime domain.Regime) (string, domain.Complexity) {
	switch e {
	case domain.EntitySoleProprietor:
		if regime == domain.RegimeFlatRate || regime == domain.RegimeUnspecified {
			return TypeIndividual, domain.ComplexityLow
		}
		return TypeIndividual, domain.ComplexityMedium
	case domain.EntityPartnership:
		return TypePartnership, domain.ComplexityMedium
	case domain.EntityCorporation:
		return TypeCorporate, domain.ComplexityHigh
	default:
		return TypeLimitedCompany, domain.ComplexityHigh
	}
}

func fiscalTags(e domain.EntityType, regime domain.Regime, hasTaxID bool) []string {
	var tags []string
	if hasTaxID {
		tags = append(tags, FiscalVATDeclaration)
		if regime != domain.RegimeFlatRate {
			tags = append(tags, FiscalVATLiquidation)
		}
	}
	switch {
	case e.Corporate():
		tags = append(tags, FiscalCorporateTax, FiscalFinancialStatement)
	case e == domain.EntityPartnership:
		tags = append(tags, FiscalPartnershipTax)
	default:
		tags = append(tags, FiscalPersonalIncomeTax)
	}
	return tags
}

func accountingTags(regime domain.Regime) []string {
	switch regime {
	case domain.RegimeOrdinary:
		return []string{AccountingFullLedger, AccountingVATRegisters}
	case domain.RegimeSimplified:
		return []string{AccountingSimplifiedLedger, AccountingVATRegisters}
	case domain.RegimeFlatRate:
		return []string{AccountingIncomeRegister}
	}
	return []string{}
}

func newlyFounded(founded *time.Time, ref time.Time, days int) bool {
	if founded == nil {
		return false
	}
	if founded.After(ref) {
		return false
	}
	return !founded.Before(ref.AddDate(0, 0, -days))
}
