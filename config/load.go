package config

import (
	"fmt"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

var supportedDrivers = map[string]struct{}{
	"postgres": {},
	"sqlite":   {},
}

// Load reads the yaml file at path (when non-empty) and applies DISPATCH_*
// environment overrides on top.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if strings.TrimSpace(path) != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	if _, ok := supportedDrivers[c.DBDriver]; !ok {
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	if strings.TrimSpace(c.DBURL) == "" {
		return fmt.Errorf("db_url is required")
	}
	if c.Dispatch.BulkMaxItems <= 0 {
		return fmt.Errorf("dispatch.bulk_max_items must be positive")
	}
	if c.Geocoder.Enabled && strings.TrimSpace(c.Geocoder.BaseURL) == "" {
		return fmt.Errorf("geocoder.base_url is required when the geocoder is enabled")
	}
	if c.Auditor.Enabled && strings.TrimSpace(c.Auditor.Schedule) == "" {
		return fmt.Errorf("auditor.schedule is required when the auditor is enabled")
	}
	return nil
}
