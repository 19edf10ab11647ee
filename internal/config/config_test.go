package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscalops/internal/config"
	"fiscalops/internal/engine/classify"
	"fiscalops/internal/engine/deadline"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, classify.DefaultThresholds(), cfg.Classification)
	assert.Equal(t, "advisory", cfg.Lifecycle.DependencyGating)
	assert.Equal(t, 10, cfg.Report.OverdueLimit)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Empty(t, cfg.Webhooks)
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := config.LoadOptional(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(t.TempDir())
	assert.ErrorContains(t, err, "not found")
}

func TestPartialOverride(t *testing.T) {
	dir := t.TempDir()
	data := `
classification:
  large_revenue: 2000000
calendar:
  annual:
    vat_annual: {month: 2, day: 28}
lifecycle:
  dependency_gating: enforced
webhooks:
  - url: https://hooks.example.test/fiscal
    events: [task.unlocked]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(data), 0o644))
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2_000_000.0, cfg.Classification.LargeRevenue)
	assert.Equal(t, 20, cfg.Classification.LargeHeadcount, "unset keys keep defaults")
	assert.Equal(t, deadline.MonthDay{Month: time.February, Day: 28}, cfg.Calendar.Annual[deadline.CategoryVATAnnual])
	assert.Equal(t, "enforced", cfg.Lifecycle.DependencyGating)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, []string{"task.unlocked"}, cfg.Webhooks[0].Events)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"gating":          "lifecycle:\n  dependency_gating: strict\n",
		"thresholds":      "classification:\n  small_revenue: 5000000\n",
		"month":           "calendar:\n  annual:\n    vat_annual: {month: 13, day: 1}\n",
		"day":             "calendar:\n  annual:\n    vat_annual: {month: 3, day: 0}\n",
		"log format":      "logging:\n  format: xml\n",
		"webhook url":     "webhooks:\n  - url: ftp://example.test\n",
		"negative limit":  "report:\n  overdue_limit: -1\n",
		"malformed yaml":  "classification: [\n",
		"headcount order": "classification:\n  small_headcount: 40\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault()))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}
