// Package deadline turns relative deadline rules into calendar dates.
package deadline

import (
	"time"

	"fiscalops/internal/domain"
)

// MonthDay is a fixed date inside a fiscal year.
type MonthDay struct {
	Month time.Month `yaml:"month" json:"month"`
	Day   int        `yaml:"day" json:"day"`
}

// Annual categories with a known filing date.
const (
	CategoryVATAnnual          = "vat_annual"
	CategoryPersonalIncome     = "personal_income"
	CategoryCorporateIncome    = "corporate_income"
	CategoryBalanceClosing     = "balance_closing"
	CategoryAdvancePayment     = "advance_payment"
	CategoryPartnershipIncome  = "partnership_income"
	CategoryStatutoryFiling    = "statutory_filing"
	CategoryShareholderMeeting = "shareholder_meeting"
	CategoryAuditSupport       = "audit_support"
	CategoryBudgetPlanning     = "budget_planning"
)

// QuarterlyDay is the day of month quarterly deadlines fall on.
const QuarterlyDay = 15

var fallbackAnnual = MonthDay{Month: time.December, Day: 31}

// DefaultCalendar returns the built-in annual filing table.
func DefaultCalendar() map[string]MonthDay {
	return map[string]MonthDay{
		CategoryVATAnnual:          {Month: time.April, Day: 30},
		CategoryPersonalIncome:     {Month: time.November, Day: 30},
		CategoryCorporateIncome:    {Month: time.September, Day: 30},
		CategoryBalanceClosing:     {Month: time.April, Day: 30},
		CategoryAdvancePayment:     {Month: time.November, Day: 30},
		CategoryPartnershipIncome:  {Month: time.November, Day: 30},
		CategoryStatutoryFiling:    {Month: time.July, Day: 30},
		CategoryShareholderMeeting: {Month: time.June, Day: 30},
		CategoryAuditSupport:       {Month: time.March, Day: 31},
		CategoryBudgetPlanning:     {Month: time.December, Day: 15},
	}
}

// Resolver resolves rules against a reference date. The zero value uses
// DefaultCalendar.
type Resolver struct {
	Annual map[string]MonthDay
}

func New(annual map[string]MonthDay) Resolver {
	cal := DefaultCalendar()
	for k, v := range annual {
		cal[k] = v
	}
	return Resolver{Annual: cal}
}

// Resolve returns the concrete due date for rule relative to ref. The result
// is midnight in ref's location.
func (r Resolver) Resolve(rule domain.DeadlineRule, ref time.Time) (time.Time, error) {
	switch rule.Kind {
	case domain.RuleMonthly:
		if rule.DayOfMonth < 1 || rule.DayOfMonth > 31 {
			return time.Time{}, domain.Invalid("deadline.day_of_month", "must be between 1 and 31, got %d", rule.DayOfMonth)
		}
		return monthly(rule.DayOfMonth, ref), nil
	case domain.RuleQuarterly:
		return quarterly(ref), nil
	case domain.RuleAnnual:
		return r.annual(rule.Category, ref), nil
	default:
		return time.Time{}, domain.Invalid("deadline.kind", "unknown deadline kind %q", rule.Kind)
	}
}

func monthly(day int, ref time.Time) time.Time {
	year, month := ref.Year(), ref.Month()
	if ref.Day() > day {
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}
	return date(year, month, day, ref.Location())
}

func quarterly(ref time.Time) time.Time {
	quarter := (int(ref.Month()) - 1) / 3
	// first month of the next quarter, then one more for the second month
	month := quarter*3 + 3 + 2
	year := ref.Year()
	if month > 12 {
		month -= 12
		year++
	}
	return date(year, time.Month(month), QuarterlyDay, ref.Location())
}

func (r Resolver) annual(category string, ref time.Time) time.Time {
	md, ok := r.lookup(category)
	if !ok {
		md = fallbackAnnual
	}
	due := date(ref.Year(), md.Month, md.Day, ref.Location())
	if due.Before(startOfDay(ref)) {
		due = date(ref.Year()+1, md.Month, md.Day, ref.Location())
	}
	return due
}

func (r Resolver) lookup(category string) (MonthDay, bool) {
	cal := r.Annual
	if cal == nil {
		cal = DefaultCalendar()
	}
	md, ok := cal[category]
	return md, ok
}

// date builds a calendar date, clamping day to the month length so that
// day 30 in February lands on the last day of February.
func date(year int, month time.Month, day int, loc *time.Location) time.Time {
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
