// Package config separates process bootstrap configuration (read once,
// from a TOML file) from the runtime-tunable ConfigStore (C2) backed by
// the system_config table.
package config

import "github.com/BurntSushi/toml"

// Bootstrap is the minimal process-start configuration: where the store
// lives, the webhook timeout setting, and what seed values to write into
// system_config on first run. Webhook.TimeoutSeconds is parsed and
// defaults to 10, but no webhook client reads it: webhook posts are
// bounded only by the caller's context.
type Bootstrap struct {
	Postgres struct {
		DSN string `toml:"dsn"`
	} `toml:"postgres"`

	Redis struct {
		Addr    string `toml:"addr"`
		Enabled bool   `toml:"enabled"`
	} `toml:"redis"`

	Webhook struct {
		TimeoutSeconds int `toml:"timeout_seconds"`
	} `toml:"webhook"`

	Analytics struct {
		TimeoutSeconds int    `toml:"timeout_seconds"`
		BaseURL        string `toml:"base_url"`
		ReportID       string `toml:"report_id"`
	} `toml:"analytics"`

	Seeds map[string]string `toml:"seeds"`
}

// LoadBootstrap reads and parses a TOML bootstrap file.
func LoadBootstrap(path string) (*Bootstrap, error) {
	var b Bootstrap
	if _, err := toml.DecodeFile(path, &b); err != nil {
		return nil, err
	}
	if b.Webhook.TimeoutSeconds == 0 {
		b.Webhook.TimeoutSeconds = 10
	}
	if b.Analytics.TimeoutSeconds == 0 {
		b.Analytics.TimeoutSeconds = 30
	}
	return &b, nil
}

// DefaultSeeds are the documented defaults written to system_config on
// first start, per spec.md §6's configuration-key list.
func DefaultSeeds() map[string]string {
	return map[string]string{
		"work_start_hour":           "9",
		"work_end_hour":             "19",
		"work_days":                 "1,2,3,4,5",
		"cache_ttl_hours":           "1",
		"agent_interval_minutes":    "60",
		"notification_cooldown_hours": "2.0",
		"notification_max_retry":    "5",
		"escalation_mention_users":  "运营负责人,区域经理",
		"escalation_max_listed":     "5",
	}
}
