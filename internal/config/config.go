// Package config holds the yaml pipeline configuration. Infrastructure
// settings (DSN, bucket, CDN domain) stay in the environment; everything that
// varies per run or per studio lives here and is injected into constructors.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/studiomoa/assetpipe/internal/assets/classify"
	"github.com/studiomoa/assetpipe/internal/assets/pathing"
)

type Migration struct {
	Concurrency  int    `yaml:"concurrency"`
	TargetFormat string `yaml:"target_format"`
	Quality      int    `yaml:"quality"`
	SourcePrefix string `yaml:"source_prefix"`
	ReportPath   string `yaml:"report_path"`
}

type Config struct {
	Pathing   pathing.Config   `yaml:"pathing"`
	Classify  classify.RuleSet `yaml:"classify"`
	Migration Migration        `yaml:"migration"`
}

func Default() Config {
	return Config{
		Pathing:  pathing.Config{Root: "roots"},
		Classify: classify.DefaultRuleSet(),
		Migration: Migration{
			Concurrency:  4,
			TargetFormat: "webp",
			Quality:      80,
			SourcePrefix: "incoming/",
			ReportPath:   "migration-report.json",
		},
	}
}

// Load reads a yaml config file; fields left empty fall back to Default().
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Classify.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.Pathing.Root == "" {
		c.Pathing.Root = def.Pathing.Root
	}
	if len(c.Classify.Rules) == 0 {
		c.Classify = def.Classify
	}
	if c.Migration.Concurrency <= 0 {
		c.Migration.Concurrency = def.Migration.Concurrency
	}
	if c.Migration.TargetFormat == "" {
		c.Migration.TargetFormat = def.Migration.TargetFormat
	}
	if c.Migration.Quality <= 0 {
		c.Migration.Quality = def.Migration.Quality
	}
	if c.Migration.SourcePrefix == "" {
		c.Migration.SourcePrefix = def.Migration.SourcePrefix
	}
	if c.Migration.ReportPath == "" {
		c.Migration.ReportPath = def.Migration.ReportPath
	}
}
