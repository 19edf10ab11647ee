package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fiscalops/internal/engine/classify"
	"fiscalops/internal/engine/deadline"
)

const FileName = "fiscalops.yml"

// Config models fiscalops.yml.
type Config struct {
	Classification classify.Thresholds `yaml:"classification"`
	Calendar       struct {
		Annual map[string]deadline.MonthDay `yaml:"annual"`
	} `yaml:"calendar"`
	Lifecycle struct {
		DependencyGating string `yaml:"dependency_gating"`
	} `yaml:"lifecycle"`
	Report struct {
		OverdueLimit int `yaml:"overdue_limit"`
	} `yaml:"report"`
	Logging  LoggingConfig   `yaml:"logging"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fops config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	th := c.Classification
	if th.LargeRevenue <= 0 || th.SmallRevenue <= 0 {
		return fmt.Errorf("config.classification revenue thresholds must be positive")
	}
	if th.SmallRevenue >= th.LargeRevenue {
		return fmt.Errorf("config.classification.small_revenue must be below large_revenue")
	}
	if th.LargeHeadcount <= 0 || th.SmallHeadcount <= 0 {
		return fmt.Errorf("config.classification headcount thresholds must be positive")
	}
	if th.SmallHeadcount >= th.LargeHeadcount {
		return fmt.Errorf("config.classification.small_headcount must be below large_headcount")
	}
	if th.NewBusinessDays <= 0 {
		return fmt.Errorf("config.classification.new_business_days must be positive")
	}
	for category, md := range c.Calendar.Annual {
		if strings.TrimSpace(category) == "" {
			return fmt.Errorf("config.calendar.annual contains an empty category")
		}
		if md.Month < time.January || md.Month > time.December {
			return fmt.Errorf("calendar category %s has invalid month %d", category, md.Month)
		}
		if md.Day < 1 || md.Day > 31 {
			return fmt.Errorf("calendar category %s has invalid day %d", category, md.Day)
		}
	}
	switch c.Lifecycle.DependencyGating {
	case "advisory", "enforced":
	default:
		return fmt.Errorf("config.lifecycle.dependency_gating must be 'advisory' or 'enforced'")
	}
	if c.Report.OverdueLimit < 0 {
		return fmt.Errorf("config.report.overdue_limit must not be negative")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.logging.level %q is not supported", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config.logging.format must be 'json' or 'console'")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns Default() if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `classification:
  large_revenue: 1000000
  large_headcount: 20
  small_revenue: 100000
  small_headcount: 5
  new_business_days: 365

calendar:
  # month/day overrides for annual deadline categories
  annual: {}

lifecycle:
  # advisory: predecessors are informational
  # enforced: tasks cannot start before their predecessors complete
  dependency_gating: advisory

report:
  overdue_limit: 10

logging:
  level: info
  format: json

webhooks: []
`
