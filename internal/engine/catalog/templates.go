package catalog

import (
	"fmt"

	"fiscalops/internal/domain"
	"fiscalops/internal/engine/classify"
	"fiscalops/internal/engine/deadline"
)

// Template keys. After references use these keys, never task ids.
const (
	KeyDocCollection        = "doc_collection"
	KeyBankReconciliation   = "bank_reconciliation"
	KeyInvoiceRecording     = "invoice_recording"
	KeyVATSettlement        = "vat_settlement"
	KeyRevenueRegister      = "revenue_register"
	KeyFlatRateEligibility  = "flat_rate_eligibility"
	KeyBalanceSheet         = "balance_sheet"
	KeyStatutoryFiling      = "statutory_filing"
	KeyShareholderMeeting   = "shareholder_meeting"
	KeyAuditSupport         = "audit_support"
	KeyPartnershipAccounts  = "partnership_accounts"
	KeyProfitAllocation     = "profit_allocation"
	KeyIncomeSummary        = "income_summary"
	KeyQuarterlyReview      = "quarterly_review"
	KeyStartupRegistrations = "startup_registrations"
	KeyAnnualBudget         = "annual_budget"
	KeyCashflowForecast     = "cashflow_forecast"
	KeyVATAnnualReturn      = "vat_annual_return"
	KeyVATLiquidation       = "vat_liquidation"
	KeyPersonalIncomeReturn = "personal_income_return"
	KeyCorporateIncome      = "corporate_income_return"
	KeyCorporateAdvance     = "corporate_advance_payment"
	KeyPartnershipIncome    = "partnership_income_return"
	KeyBalanceClosing       = "balance_closing"
)

// Template is a task before id assignment and date resolution.
type Template struct {
	Key         string
	Title       string
	Description string
	Priority    domain.Priority
	Rule        domain.DeadlineRule
	After       []string
	Tags        []string
}

// Emitter produces the templates one concern contributes to a procedure.
type Emitter func(p *domain.ClientProfile, req domain.ProcedureRequirements) []Template

func baseline(p *domain.ClientProfile, _ domain.ProcedureRequirements) []Template {
	tags := []string{"bookkeeping"}
	out := []Template{
		{
			Key: KeyDocCollection, Title: "Collect monthly documents",
			Description: "Gather invoices, receipts and bank statements from the client.",
			Priority:    domain.PriorityHigh, Rule: domain.Monthly(5), Tags: tags,
		},
		{
			Key: KeyBankReconciliation, Title: "Bank reconciliation",
			Description: "Reconcile bank movements with recorded entries.",
			Priority:    domain.PriorityHigh, Rule: domain.Monthly(10),
			After: []string{KeyDocCollection}, Tags: tags,
		},
	}
	switch p.Regime {
	case domain.RegimeOrdinary, domain.RegimeSimplified:
		out = append(out,
			Template{
				Key: KeyInvoiceRecording, Title: "Record issued and received invoices",
				Description: "Post every invoice of the period to the VAT registers.",
				Priority:    domain.PriorityMedium, Rule: domain.Monthly(15),
				After: []string{KeyDocCollection}, Tags: tags,
			},
			Template{
				Key: KeyVATSettlement, Title: "Quarterly VAT settlement",
				Description: "Compute VAT payable or recoverable for the quarter.",
				Priority:    domain.PriorityHigh, Rule: domain.Quarterly(),
				After: []string{KeyInvoiceRecording}, Tags: []string{"bookkeeping", "vat"},
			},
		)
	case domain.RegimeFlatRate:
		out = append(out,
			Template{
				Key: KeyRevenueRegister, Title: "Update revenue register",
				Description: "Record collected revenue in the flat-rate income register.",
				Priority:    domain.PriorityMedium, Rule: domain.Monthly(20),
				After: []string{KeyDocCollection}, Tags: tags,
			},
			Template{
				Key: KeyFlatRateEligibility, Title: "Flat-rate eligibility check",
				Description: "Confirm revenue and cost limits for staying in the flat-rate regime.",
				Priority:    domain.PriorityLow, Rule: domain.Annual(KeyFlatRateEligibility),
				After: []string{KeyRevenueRegister}, Tags: tags,
			},
		)
	}
	return out
}

func entity(p *domain.ClientProfile, req domain.ProcedureRequirements) []Template {
	tags := []string{"entity"}
	var out []Template
	switch {
	case p.EntityType.Corporate():
		out = append(out,
			Template{
				Key: KeyBalanceSheet, Title: "Prepare balance sheet",
				Description: "Draft the balance sheet and income statement for the fiscal year.",
				Priority:    domain.PriorityHigh, Rule: domain.Annual(deadline.CategoryBalanceClosing), Tags: tags,
			},
			Template{
				Key: KeyStatutoryFiling, Title: "File statutory accounts",
				Description: "Deposit approved financial statements with the business register.",
				Priority:    domain.PriorityHigh, Rule: domain.Annual(deadline.CategoryStatutoryFiling),
				After: []string{KeyBalanceSheet}, Tags: tags,
			},
			Template{
				Key: KeyShareholderMeeting, Title: "Shareholder approval meeting",
				Description: "Prepare minutes for the meeting approving the annual accounts.",
				Priority:    domain.PriorityMedium, Rule: domain.Annual(deadline.CategoryShareholderMeeting),
				After: []string{KeyBalanceSheet}, Tags: tags,
			},
		)
		if req.NeedsAudit {
			out = append(out, Template{
				Key: KeyAuditSupport, Title: "Audit support",
				Description: "Provide ledgers and supporting schedules to the statutory auditor.",
				Priority:    domain.PriorityHigh, Rule: domain.Annual(deadline.CategoryAuditSupport),
				After: []string{KeyBalanceSheet}, Tags: []string{"entity", "audit"},
			})
		}
	case p.EntityType == domain.EntityPartnership:
		out = append(out,
			Template{
				Key: KeyPartnershipAccounts, Title: "Prepare partnership accounts",
				Description: "Close the partnership ledger for the fiscal year.",
				Priority:    domain.PriorityMedium, Rule: domain.Annual(deadline.CategoryPartnershipIncome), Tags: tags,
			},
			Template{
				Key: KeyProfitAllocation, Title: "Allocate profit to partners",
				Description: "Split the year's result according to the partnership agreement.",
				Priority:    domain.PriorityMedium, Rule: domain.Annual(deadline.CategoryPartnershipIncome),
				After: []string{KeyPartnershipAccounts}, Tags: tags,
			},
		)
	default:
		out = append(out, Template{
			Key: KeyIncomeSummary, Title: "Annual income summary",
			Description: "Summarize business income and deductible costs for the owner.",
			Priority:    domain.PriorityMedium, Rule: domain.Annual(deadline.CategoryPersonalIncome), Tags: tags,
		})
	}
	if req.NeedsQuarterlyReview {
		out = append(out, Template{
			Key: KeyQuarterlyReview, Title: "Quarterly management review",
			Description: "Review the quarter's figures with the client.",
			Priority:    domain.PriorityMedium, Rule: domain.Quarterly(),
			After: []string{KeyBankReconciliation}, Tags: tags,
		})
	}
	if req.IsNewlyFounded {
		out = append(out, Template{
			Key: KeyStartupRegistrations, Title: "Complete startup registrations",
			Description: "Verify tax, social security and chamber registrations of the new business.",
			Priority:    domain.PriorityHigh, Rule: domain.Monthly(15), Tags: []string{"entity", "startup"},
		})
	}
	if req.Complexity == domain.ComplexityHigh {
		out = append(out,
			Template{
				Key: KeyAnnualBudget, Title: "Annual budget",
				Description: "Prepare next year's budget with the client.",
				Priority:    domain.PriorityMedium, Rule: domain.Annual(deadline.CategoryBudgetPlanning),
				Tags: []string{"entity", "planning"},
			},
			Template{
				Key: KeyCashflowForecast, Title: "Cash-flow forecast",
				Description: "Roll the monthly cash-flow forecast forward.",
				Priority:    domain.PriorityLow, Rule: domain.Monthly(25),
				Tags: []string{"entity", "planning"},
			},
		)
	}
	return out
}

var fiscalTemplates = map[string][]Template{
	classify.FiscalVATDeclaration: {{
		Key: KeyVATAnnualReturn, Title: "Annual VAT return",
		Description: "File the yearly VAT declaration.",
		Priority:    domain.PriorityHigh, Rule: domain.Annual(deadline.CategoryVATAnnual),
		After: []string{KeyInvoiceRecording},
	}},
	classify.FiscalVATLiquidation: {{
		Key: KeyVATLiquidation, Title: "Periodic VAT liquidation",
		Description: "Pay or carry forward the VAT balance of the period.",
		Priority:    domain.PriorityHigh, Rule: domain.Quarterly(),
		After: []string{KeyVATSettlement},
	}},
	classify.FiscalPersonalIncomeTax: {{
		Key: KeyPersonalIncomeReturn, Title: "Personal income tax return",
		Description: "File the owner's income tax return including business income.",
		Priority:    domain.PriorityHigh, Rule: domain.Annual(deadline.CategoryPersonalIncome),
		After: []string{KeyIncomeSummary},
	}},
	classify.FiscalCorporateTax: {
		{
			Key: KeyCorporateIncome, Title: "Corporate income tax return",
			Description: "File the corporate income tax return.",
			Priority:    domain.PriorityHigh, Rule: domain.Annual(deadline.CategoryCorporateIncome),
			After: []string{KeyBalanceSheet},
		},
		{
			Key: KeyCorporateAdvance, Title: "Corporate tax advance payment",
			Description: "Compute and pay the advance on next year's corporate tax.",
			Priority:    domain.PriorityMedium, Rule: domain.Annual(deadline.CategoryAdvancePayment),
			After: []string{KeyCorporateIncome},
		},
	},
	classify.FiscalPartnershipTax: {{
		Key: KeyPartnershipIncome, Title: "Partnership income return",
		Description: "File the partnership's informative income return.",
		Priority:    domain.PriorityHigh, Rule: domain.Annual(deadline.CategoryPartnershipIncome),
		After: []string{KeyProfitAllocation},
	}},
	classify.FiscalFinancialStatement: {{
		Key: KeyBalanceClosing, Title: "Balance-sheet closing",
		Description: "Post closing entries and lock the fiscal year.",
		Priority:    domain.PriorityHigh, Rule: domain.Annual(deadline.CategoryBalanceClosing),
		After: []string{KeyBalanceSheet},
	}},
}

func fiscal(_ *domain.ClientProfile, req domain.ProcedureRequirements) []Template {
	var out []Template
	for _, tag := range req.FiscalRequirements {
		for _, tpl := range fiscalTemplates[tag] {
			tpl.Tags = []string{"fiscal", tag}
			out = append(out, tpl)
		}
	}
	return out
}

func sector(_ *domain.ClientProfile, req domain.ProcedureRequirements) []Template {
	out := make([]Template, 0, len(req.SectorSeeds))
	for i, seed := range req.SectorSeeds {
		priority := seed.Priority
		if !priority.Valid() {
			priority = domain.PriorityMedium
		}
		out = append(out, Template{
			Key:         fmt.Sprintf("sector_%s_%d", seed.Category, i+1),
			Title:       seed.Title,
			Description: seed.Description,
			Priority:    priority,
			Rule:        domain.Monthly(30),
			Tags:        []string{"sector", seed.Category},
		})
	}
	return out
}
