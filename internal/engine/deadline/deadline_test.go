package deadline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscalops/internal/domain"
	"fiscalops/internal/engine/deadline"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthly(t *testing.T) {
	r := deadline.Resolver{}
	cases := []struct {
		name string
		ref  time.Time
		dom  int
		want time.Time
	}{
		{"after day rolls to next month", day(2026, time.March, 20), 15, day(2026, time.April, 15)},
		{"before day stays in month", day(2026, time.March, 10), 15, day(2026, time.March, 15)},
		{"same day stays in month", day(2026, time.March, 15), 15, day(2026, time.March, 15)},
		{"december wraps year", day(2026, time.December, 20), 15, day(2027, time.January, 15)},
		{"november does not wrap year", day(2026, time.November, 20), 15, day(2026, time.December, 15)},
		{"january keeps year", day(2027, time.January, 2), 15, day(2027, time.January, 15)},
		{"day 30 clamps in february", day(2026, time.February, 3), 30, day(2026, time.February, 28)},
		{"day 30 clamps in leap february", day(2028, time.January, 31), 30, day(2028, time.February, 29)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(domain.Monthly(tc.dom), tc.ref)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMonthlyRejectsOutOfRangeDay(t *testing.T) {
	_, err := deadline.Resolver{}.Resolve(domain.Monthly(0), day(2026, time.May, 1))
	var ve domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "deadline.day_of_month", ve.Field)
}

func TestQuarterly(t *testing.T) {
	r := deadline.Resolver{}
	cases := []struct {
		ref  time.Time
		want time.Time
	}{
		{day(2026, time.January, 1), day(2026, time.May, 15)},
		{day(2026, time.March, 31), day(2026, time.May, 15)},
		{day(2026, time.April, 10), day(2026, time.August, 15)},
		{day(2026, time.September, 30), day(2026, time.November, 15)},
		{day(2026, time.October, 14), day(2027, time.February, 15)},
		{day(2026, time.December, 31), day(2027, time.February, 15)},
	}
	for _, tc := range cases {
		got, err := r.Resolve(domain.Quarterly(), tc.ref)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "ref %s", tc.ref.Format(time.DateOnly))
	}
}

func TestAnnual(t *testing.T) {
	r := deadline.Resolver{}
	ref := day(2026, time.October, 14)

	got, err := r.Resolve(domain.Annual(deadline.CategoryPersonalIncome), ref)
	require.NoError(t, err)
	assert.Equal(t, day(2026, time.November, 30), got)

	got, err = r.Resolve(domain.Annual(deadline.CategoryVATAnnual), ref)
	require.NoError(t, err)
	assert.Equal(t, day(2027, time.April, 30), got, "past dates move to next year")

	got, err = r.Resolve(domain.Annual("something_else"), ref)
	require.NoError(t, err)
	assert.Equal(t, day(2026, time.December, 31), got)

	got, err = r.Resolve(domain.Annual(deadline.CategoryCorporateIncome), day(2026, time.September, 30))
	require.NoError(t, err)
	assert.Equal(t, day(2026, time.September, 30), got, "the due day itself is still current")
}

func TestAnnualCalendarOverride(t *testing.T) {
	r := deadline.New(map[string]deadline.MonthDay{
		deadline.CategoryVATAnnual: {Month: time.January, Day: 30},
	})
	got, err := r.Resolve(domain.Annual(deadline.CategoryVATAnnual), day(2026, time.October, 14))
	require.NoError(t, err)
	assert.Equal(t, day(2027, time.January, 30), got)

	got, err = r.Resolve(domain.Annual(deadline.CategoryPersonalIncome), day(2026, time.October, 14))
	require.NoError(t, err)
	assert.Equal(t, day(2026, time.November, 30), got, "defaults survive overrides")
}

func TestResolveIsDeterministic(t *testing.T) {
	r := deadline.Resolver{}
	ref := time.Date(2026, time.July, 19, 17, 45, 0, 0, time.UTC)
	rules := []domain.DeadlineRule{domain.Monthly(5), domain.Quarterly(), domain.Annual(deadline.CategoryAdvancePayment)}
	for _, rule := range rules {
		a, err := r.Resolve(rule, ref)
		require.NoError(t, err)
		b, err := r.Resolve(rule, ref)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestUnknownKind(t *testing.T) {
	_, err := deadline.Resolver{}.Resolve(domain.DeadlineRule{Kind: "weekly"}, day(2026, time.May, 1))
	assert.Error(t, err)
}
