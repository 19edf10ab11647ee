package classify

import (
	"strings"

	"fiscalops/internal/domain"
)

type sector struct {
	name     string
	keywords []string
	seeds    []domain.TaskSeed
}

var sectorTable = []sector{
	{
		name:     "retail",
		keywords: []string{"retail", "shop", "store", "commerce", "wholesale"},
		seeds: []domain.TaskSeed{
			{Title: "Inventory count reconciliation", Description: "Reconcile physical stock with the inventory ledger.", Priority: domain.PriorityMedium, Category: "retail"},
			{Title: "Point-of-sale cash reconciliation", Description: "Match POS closing reports against bank deposits.", Priority: domain.PriorityHigh, Category: "retail"},
		},
	},
	{
		name:     "construction",
		keywords: []string{"construction", "building", "contractor", "renovation"},
		seeds: []domain.TaskSeed{
			{Title: "Work-in-progress certification", Description: "Certify job progress and update work-in-progress balances.", Priority: domain.PriorityHigh, Category: "construction"},
			{Title: "Subcontractor withholding review", Description: "Check subcontractor invoices for withholding and compliance certificates.", Priority: domain.PriorityMedium, Category: "construction"},
		},
	},
	{
		name:     "healthcare",
		keywords: []string{"health", "clinic", "medical", "dental", "pharma"},
		seeds: []domain.TaskSeed{
			{Title: "Patient billing reconciliation", Description: "Reconcile patient and insurer billing with collected amounts.", Priority: domain.PriorityHigh, Category: "healthcare"},
			{Title: "VAT-exempt activity review", Description: "Confirm exempt healthcare services are invoiced without VAT.", Priority: domain.PriorityMedium, Category: "healthcare"},
		},
	},
	{
		name:     "services",
		keywords: []string{"service", "consult", "agency", "advisory"},
		seeds: []domain.TaskSeed{
			{Title: "Time and billing review", Description: "Review unbilled hours and issue pending invoices.", Priority: domain.PriorityMedium, Category: "services"},
			{Title: "Professional withholding review", Description: "Verify withholding applied on professional fee invoices.", Priority: domain.PriorityLow, Category: "services"},
		},
	},
}

// matchSector returns the seeds of every sector whose keywords occur in s.
func matchSector(s string) []domain.TaskSeed {
	s = strings.ToLower(strings.TrimSpace(s))
	seeds := []domain.TaskSeed{}
	if s == "" {
		return seeds
	}
	for _, sec := range sectorTable {
		for _, kw := range sec.keywords {
			if strings.Contains(s, kw) {
				seeds = append(seeds, sec.seeds...)
				break
			}
		}
	}
	return seeds
}
