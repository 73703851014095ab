// Package config loads and validates the pipeline configuration from a
// YAML file. Fields omitted from the file keep their defaults, so
// partial configs are safe.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/geography"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/sentencing"
	"github.com/Prison-Reform-Trust/womens-imprisonment-PFA/internal/tables"
)

// DefaultConfigPath is where the pipeline looks for its configuration
// when no -config flag is given.
const DefaultConfigPath = "config.yaml"

type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Audit      AuditConfig      `yaml:"audit"`
	Datasets   DatasetsConfig   `yaml:"datasets"`
	Outputs    OutputsConfig    `yaml:"outputs"`
	Geography  GeographyConfig  `yaml:"geography"`
	Filters    FiltersConfig    `yaml:"filters"`
	Tables     TablesConfig     `yaml:"tables"`
	Projection ProjectionConfig `yaml:"projection"`
}

type PathsConfig struct {
	Raw       string `yaml:"raw"`
	Interim   string `yaml:"interim"`
	Processed string `yaml:"processed"`
}

type AuditConfig struct {
	DBPath     string `yaml:"db_path"`
	Migrations string `yaml:"migrations"`
}

type DatasetsConfig struct {
	// Sentencing lists glob patterns under the raw directory, one
	// per extract vintage.
	Sentencing []string `yaml:"sentencing"`
	// Population is a glob pattern; the lexically last match is the
	// latest ONS release.
	Population string `yaml:"population"`
	// GeographyLookups lists lookup files oldest to newest; the last
	// one is the target vintage.
	GeographyLookups []string `yaml:"geography_lookups"`
}

type OutputsConfig struct {
	CustodyTable  string `yaml:"custody_table"`
	RateTable     string `yaml:"rate_table"`
	OffencesTable string `yaml:"offences_table"`
}

type GeographyConfig struct {
	DropCodePrefixes []string `yaml:"drop_code_prefixes"`
	ExcludePFAs      []string `yaml:"exclude_pfas"`
}

type FiltersConfig struct {
	Include map[string][]string `yaml:"include"`
	Exclude map[string][]string `yaml:"exclude"`
}

type TablesConfig struct {
	// YearFrom drops earlier years from the published tables.
	// Zero keeps every year.
	YearFrom   int      `yaml:"year_from"`
	Categories []string `yaml:"categories"`
}

type ProjectionConfig struct {
	// TargetYear extends the population series by projection when it
	// ends before this year. Zero disables projection.
	TargetYear int `yaml:"target_year"`
}

// Default returns the configuration the pipeline runs with when the
// config file omits a field.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Raw:       "data/raw",
			Interim:   "data/interim",
			Processed: "data/processed",
		},
		Audit: AuditConfig{
			DBPath:     "data/audit.db",
			Migrations: "internal/auditdb/migrations",
		},
		Outputs: OutputsConfig{
			CustodyTable:  "custody_{category}_{min_year}_{max_year}.csv",
			RateTable:     "imprisonment_rate_{min_year}_{max_year}.csv",
			OffencesTable: "offence_proportions_{year}.csv",
		},
		Geography: GeographyConfig{
			DropCodePrefixes: []string{"E10", "E11"},
			ExcludePFAs:      []string{"London, City of"},
		},
		Filters: FiltersConfig{
			Include: map[string][]string{
				"sex":       {"Female"},
				"outcome":   {sentencing.OutcomeImmediateCustody, sentencing.OutcomeCommunitySentence, sentencing.OutcomeSuspendedSentence},
				"age_group": {"Adults", "Young adults"},
			},
			Exclude: map[string][]string{
				"pfa": {"Not known"},
			},
		},
		Tables: TablesConfig{
			YearFrom:   2014,
			Categories: []string{"all", "6 months", "12 months"},
		},
	}
}

// Load reads the YAML config at path over the defaults and validates
// the result.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cleanPath, err)
	}

	return cfg, nil
}

// Validate checks the configuration for mistakes that would otherwise
// surface midway through a run: unknown filter columns, unknown table
// categories, and missing inputs.
func (c *Config) Validate() error {
	if len(c.Datasets.Sentencing) == 0 {
		return fmt.Errorf("datasets.sentencing must list at least one file pattern")
	}
	if c.Datasets.Population == "" {
		return fmt.Errorf("datasets.population must be set")
	}
	if len(c.Datasets.GeographyLookups) == 0 {
		return fmt.Errorf("datasets.geography_lookups must list at least one lookup file")
	}

	for col := range c.Filters.Include {
		if !sentencing.ValidColumn(col) {
			return fmt.Errorf("unknown include filter column %q", col)
		}
	}
	for col := range c.Filters.Exclude {
		if !sentencing.ValidColumn(col) {
			return fmt.Errorf("unknown exclude filter column %q", col)
		}
	}

	for _, cat := range c.Tables.Categories {
		if _, err := tables.Category(cat).Buckets(); err != nil {
			return err
		}
	}

	if c.Tables.YearFrom < 0 {
		return fmt.Errorf("tables.year_from must not be negative")
	}
	if c.Projection.TargetYear < 0 {
		return fmt.Errorf("projection.target_year must not be negative")
	}

	return nil
}

// Hash returns a stable digest of the effective configuration,
// recorded against each audit run so results can be traced back to the
// settings that produced them.
func (c *Config) Hash() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		// Config is plain data; marshalling cannot fail.
		panic(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FilterSet converts the configured filters into the normalizer's
// representation.
func (c *Config) FilterSet() sentencing.FilterSet {
	fs := sentencing.FilterSet{
		Include: make(map[sentencing.Column][]string, len(c.Filters.Include)),
		Exclude: make(map[sentencing.Column][]string, len(c.Filters.Exclude)),
	}
	for col, vals := range c.Filters.Include {
		fs.Include[sentencing.Column(col)] = vals
	}
	for col, vals := range c.Filters.Exclude {
		fs.Exclude[sentencing.Column(col)] = vals
	}
	return fs
}

// GeographyOptions converts the configured geography settings into the
// lookup loader's representation.
func (c *Config) GeographyOptions() geography.Options {
	return geography.Options{
		DropCodePrefixes: c.Geography.DropCodePrefixes,
		ExcludePFAs:      c.Geography.ExcludePFAs,
	}
}

// TableCategories returns the configured publication categories.
func (c *Config) TableCategories() []tables.Category {
	cats := make([]tables.Category, 0, len(c.Tables.Categories))
	for _, cat := range c.Tables.Categories {
		cats = append(cats, tables.Category(cat))
	}
	return cats
}
