package classify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscalops/internal/domain"
	"fiscalops/internal/engine/classify"
)

var ref = time.Date(2026, time.October, 14, 0, 0, 0, 0, time.UTC)

func TestSoleProprietorFlatRate(t *testing.T) {
	req, err := classify.Classifier{}.Classify(&domain.ClientProfile{
		EntityType:    domain.EntitySoleProprietor,
		Regime:        domain.RegimeFlatRate,
		AnnualRevenue: 50_000,
		EmployeeCount: 0,
	}, ref)
	require.NoError(t, err)
	assert.Equal(t, classify.TypeIndividual, req.ProcedureType)
	assert.Equal(t, domain.ComplexityLow, req.Complexity)
	assert.Equal(t, []string{classify.AccountingIncomeRegister}, req.AccountingRequirements)
	assert.Equal(t, []string{classify.FiscalPersonalIncomeTax}, req.FiscalRequirements)
	assert.False(t, req.NeedsAudit)
	assert.False(t, req.NeedsQuarterlyReview)
}

func TestFlatRateWithTaxIDSkipsVATLiquidation(t *testing.T) {
	req, err := classify.Classifier{}.Classify(&domain.ClientProfile{
		EntityType: domain.EntitySoleProprietor,
		Regime:     domain.RegimeFlatRate,
		HasTaxID:   true,
	}, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{classify.FiscalVATDeclaration, classify.FiscalPersonalIncomeTax}, req.FiscalRequirements)
	assert.NotContains(t, req.FiscalRequirements, classify.FiscalVATLiquidation)
}

func TestLargeCorporation(t *testing.T) {
	req, err := classify.Classifier{}.Classify(&domain.ClientProfile{
		EntityType:    domain.EntityCorporation,
		Regime:        domain.RegimeOrdinary,
		AnnualRevenue: 2_000_000,
		EmployeeCount: 25,
		HasTaxID:      true,
	}, ref)
	require.NoError(t, err)
	assert.Equal(t, classify.TypeCorporate, req.ProcedureType)
	assert.Equal(t, domain.ComplexityHigh, req.Complexity)
	assert.True(t, req.NeedsAudit)
	assert.True(t, req.NeedsAnnualPlanning)
	assert.Contains(t, req.FiscalRequirements, classify.FiscalCorporateTax)
	assert.Contains(t, req.FiscalRequirements, classify.FiscalFinancialStatement)
	assert.Contains(t, req.FiscalRequirements, classify.FiscalVATLiquidation)
	assert.Equal(t, []string{classify.AccountingFullLedger, classify.AccountingVATRegisters}, req.AccountingRequirements)
}

func TestFiscalMappingForEveryEntityAndRegime(t *testing.T) {
	entityTags := map[domain.EntityType][]string{
		domain.EntitySoleProprietor: {classify.FiscalPersonalIncomeTax},
		domain.EntityPartnership:    {classify.FiscalPartnershipTax},
		domain.EntityCorporation:    {classify.FiscalCorporateTax, classify.FiscalFinancialStatement},
		domain.EntityLLC:            {classify.FiscalCorporateTax, classify.FiscalFinancialStatement},
	}
	regimes := []domain.Regime{domain.RegimeFlatRate, domain.RegimeSimplified, domain.RegimeOrdinary, domain.RegimeUnspecified}
	for entity, tags := range entityTags {
		for _, regime := range regimes {
			for _, taxID := range []bool{false, true} {
				req, err := classify.Classifier{}.Classify(&domain.ClientProfile{
					EntityType: entity, Regime: regime, HasTaxID: taxID, AnnualRevenue: 300_000, EmployeeCount: 8,
				}, ref)
				require.NoError(t, err)
				var want []string
				if taxID {
					want = append(want, classify.FiscalVATDeclaration)
					if regime != domain.RegimeFlatRate {
						want = append(want, classify.FiscalVATLiquidation)
					}
				}
				want = append(want, tags...)
				assert.Equal(t, want, req.FiscalRequirements, "%s/%s/taxID=%v", entity, regime, taxID)
			}
		}
	}
}

func TestComplexityOverrides(t *testing.T) {
	cases := []struct {
		name    string
		profile domain.ClientProfile
		want    domain.Complexity
	}{
		{"small corporation is demoted", domain.ClientProfile{EntityType: domain.EntityCorporation, Regime: domain.RegimeOrdinary, AnnualRevenue: 40_000, EmployeeCount: 1}, domain.ComplexityLow},
		{"large sole proprietor is escalated", domain.ClientProfile{EntityType: domain.EntitySoleProprietor, Regime: domain.RegimeSimplified, AnnualRevenue: 1_500_000, EmployeeCount: 3}, domain.ComplexityHigh},
		{"headcount alone escalates", domain.ClientProfile{EntityType: domain.EntityPartnership, Regime: domain.RegimeOrdinary, AnnualRevenue: 200_000, EmployeeCount: 21}, domain.ComplexityHigh},
		{"mid partnership keeps default", domain.ClientProfile{EntityType: domain.EntityPartnership, Regime: domain.RegimeOrdinary, AnnualRevenue: 200_000, EmployeeCount: 6}, domain.ComplexityMedium},
		{"small revenue with staff keeps default", domain.ClientProfile{EntityType: domain.EntityLLC, Regime: domain.RegimeSimplified, AnnualRevenue: 50_000, EmployeeCount: 10}, domain.ComplexityHigh},
		{"simplified sole proprietor is medium", domain.ClientProfile{EntityType: domain.EntitySoleProprietor, Regime: domain.RegimeSimplified, AnnualRevenue: 150_000, EmployeeCount: 2}, domain.ComplexityMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.profile
			req, err := classify.Classifier{}.Classify(&p, ref)
			require.NoError(t, err)
			assert.Equal(t, tc.want, req.Complexity)
		})
	}
}

func TestCustomThresholds(t *testing.T) {
	th := classify.DefaultThresholds()
	th.LargeRevenue = 500_000
	req, err := classify.New(th).Classify(&domain.ClientProfile{
		EntityType: domain.EntityPartnership, Regime: domain.RegimeOrdinary, AnnualRevenue: 600_000, EmployeeCount: 6,
	}, ref)
	require.NoError(t, err)
	assert.Equal(t, domain.ComplexityHigh, req.Complexity)
}

func TestSectorSeeds(t *testing.T) {
	c := classify.Classifier{}
	req, err := c.Classify(&domain.ClientProfile{EntityType: domain.EntityLLC, Regime: domain.RegimeOrdinary, Sector: "  Online RETAIL "}, ref)
	require.NoError(t, err)
	require.Len(t, req.SectorSeeds, 2)
	assert.Equal(t, "retail", req.SectorSeeds[0].Category)

	req, err = c.Classify(&domain.ClientProfile{EntityType: domain.EntityLLC, Regime: domain.RegimeOrdinary, Sector: "mining"}, ref)
	require.NoError(t, err)
	assert.Empty(t, req.SectorSeeds)

	req, err = c.Classify(&domain.ClientProfile{EntityType: domain.EntityLLC, Regime: domain.RegimeOrdinary, Sector: "Dental clinic services"}, ref)
	require.NoError(t, err)
	require.Len(t, req.SectorSeeds, 4)
	assert.Equal(t, "healthcare", req.SectorSeeds[0].Category)
	assert.Equal(t, "services", req.SectorSeeds[3].Category)
}

func TestNewlyFounded(t *testing.T) {
	recent := ref.AddDate(0, -3, 0)
	old := ref.AddDate(-2, 0, 0)
	edge := ref.AddDate(0, 0, -365)
	future := ref.AddDate(0, 0, 10)
	cases := []struct {
		founded *time.Time
		want    bool
	}{
		{&recent, true},
		{&edge, true},
		{&old, false},
		{&future, false},
		{nil, false},
	}
	for _, tc := range cases {
		req, err := classify.Classifier{}.Classify(&domain.ClientProfile{
			EntityType: domain.EntityPartnership, Regime: domain.RegimeSimplified, FoundedAt: tc.founded,
		}, ref)
		require.NoError(t, err)
		assert.Equal(t, tc.want, req.IsNewlyFounded, "founded %v", tc.founded)
	}
}

func TestClassificationErrors(t *testing.T) {
	cases := []struct {
		name    string
		profile *domain.ClientProfile
		field   string
	}{
		{"nil profile", nil, "profile"},
		{"missing entity", &domain.ClientProfile{Regime: domain.RegimeOrdinary}, "entity_type"},
		{"unknown entity", &domain.ClientProfile{EntityType: "cooperative", Regime: domain.RegimeOrdinary}, "entity_type"},
		{"missing regime for sole proprietor", &domain.ClientProfile{EntityType: domain.EntitySoleProprietor}, "regime"},
		{"unknown regime", &domain.ClientProfile{EntityType: domain.EntityCorporation, Regime: "modular"}, "regime"},
		{"negative revenue", &domain.ClientProfile{EntityType: domain.EntityCorporation, Regime: domain.RegimeOrdinary, AnnualRevenue: -1}, "annual_revenue"},
		{"negative headcount", &domain.ClientProfile{EntityType: domain.EntityCorporation, Regime: domain.RegimeOrdinary, EmployeeCount: -2}, "employee_count"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := classify.Classifier{}.Classify(tc.profile, ref)
			var ce domain.ClassificationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestMissingRegimeDefaultsToUnspecifiedForCompanies(t *testing.T) {
	req, err := classify.Classifier{}.Classify(&domain.ClientProfile{EntityType: domain.EntityCorporation, AnnualRevenue: 400_000, EmployeeCount: 9}, ref)
	require.NoError(t, err)
	assert.Empty(t, req.AccountingRequirements)
	assert.Equal(t, domain.ComplexityHigh, req.Complexity)
}
