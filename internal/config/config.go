// Package config loads the service configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pickbatch/internal/model"
	"pickbatch/internal/selector"
)

// Batching holds the decision parameters.
type Batching struct {
	MaxBatchSize   int     `yaml:"max_batch_size"`
	Rearrangement  float64 `yaml:"rearrangement_parameter"`
	Threshold      float64 `yaml:"threshold_parameter"`
	Release        float64 `yaml:"release_parameter"`
	TimeLimit      float64 `yaml:"time_limit"`
	SelectionRule  string  `yaml:"selection_rule"`
	UnitsPerSecond float64 `yaml:"tour_length_units_per_second"`
	// MaxIterations caps ILS iterations per decision; 0 means no cap.
	MaxIterations int   `yaml:"max_iterations"`
	Seed          int64 `yaml:"seed"`
}

type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type Sinks struct {
	RedisURL           string `yaml:"redis_url"`
	RedisChannel       string `yaml:"redis_channel"`
	WebhookURL         string `yaml:"webhook_url"`
	WebhookSecret      string `yaml:"webhook_secret"`
	WebhookMaxAttempts int    `yaml:"webhook_max_attempts"`
}

type API struct {
	// IntakeRate is the sustained order intake in requests per second.
	IntakeRate  float64 `yaml:"intake_rate"`
	IntakeBurst int     `yaml:"intake_burst"`
}

type Config struct {
	Port string `yaml:"port"`
	Log  Log    `yaml:"log"`

	Layout model.Layout `yaml:"layout"`
	// LayoutPath points to a JSON layout file and overrides Layout.
	LayoutPath  string `yaml:"layout_path"`
	CatalogPath string `yaml:"catalog_path"`
	// OrdersPath enables the file feed; empty means orders only arrive over HTTP.
	OrdersPath          string  `yaml:"orders_path"`
	FeedInterval        float64 `yaml:"feed_interval"`
	InitialOrderRelease int     `yaml:"initial_order_release"`
	// Tick is how often release times are checked, in seconds.
	Tick float64 `yaml:"tick"`

	Batching Batching `yaml:"batching"`
	Sinks    Sinks    `yaml:"sinks"`
	API      API      `yaml:"api"`
}

// Default mirrors the interactive defaults of the batching tool.
func Default() Config {
	return Config{
		Port:                "8080",
		Log:                 Log{Level: "info"},
		Layout:              model.Layout{MaxX: 20, MaxY: 10, MaxZ: 5},
		FeedInterval:        5,
		InitialOrderRelease: 10,
		Tick:                0.2,
		Batching: Batching{
			MaxBatchSize:   15,
			Rearrangement:  0.5,
			Threshold:      0.5,
			Release:        0.5,
			TimeLimit:      5,
			SelectionRule:  string(selector.First),
			UnitsPerSecond: 20,
		},
		Sinks: Sinks{WebhookMaxAttempts: 10},
		API:   API{IntakeRate: 50, IntakeBurst: 100},
	}
}

// Load reads path over the defaults (when path is not empty), applies the
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from PICKBATCH_* variables and the PORT,
// REDIS_URL and WEBHOOK_* variables shared with other services.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}

	str("PORT", &c.Port)
	str("PICKBATCH_LOG_LEVEL", &c.Log.Level)
	if v := getenv("PICKBATCH_LOG_PRETTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PICKBATCH_LOG_PRETTY: %w", err))
		}
		c.Log.Pretty = b
	}
	str("PICKBATCH_LAYOUT", &c.LayoutPath)
	str("PICKBATCH_CATALOG", &c.CatalogPath)
	str("PICKBATCH_ORDERS", &c.OrdersPath)
	float("PICKBATCH_FEED_INTERVAL", &c.FeedInterval)
	integer("PICKBATCH_INITIAL_ORDER_RELEASE", &c.InitialOrderRelease)

	b := &c.Batching
	integer("PICKBATCH_MAX_BATCH_SIZE", &b.MaxBatchSize)
	float("PICKBATCH_REARRANGEMENT", &b.Rearrangement)
	float("PICKBATCH_THRESHOLD", &b.Threshold)
	float("PICKBATCH_RELEASE", &b.Release)
	float("PICKBATCH_TIME_LIMIT", &b.TimeLimit)
	str("PICKBATCH_SELECTION_RULE", &b.SelectionRule)
	float("PICKBATCH_UNITS_PER_SECOND", &b.UnitsPerSecond)

	str("REDIS_URL", &c.Sinks.RedisURL)
	str("WEBHOOK_URL", &c.Sinks.WebhookURL)
	str("WEBHOOK_SECRET", &c.Sinks.WebhookSecret)
	integer("WEBHOOK_MAX_ATTEMPTS", &c.Sinks.WebhookMaxAttempts)
	return errors.Join(errs...)
}

// Validate checks every parameter range the core relies on.
func (c Config) Validate() error {
	var errs []error
	b := c.Batching
	if b.MaxBatchSize <= 1 {
		errs = append(errs, fmt.Errorf("max_batch_size must be greater than 1, got %d", b.MaxBatchSize))
	}
	for name, v := range map[string]float64{
		"rearrangement_parameter": b.Rearrangement,
		"threshold_parameter":     b.Threshold,
		"release_parameter":       b.Release,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0,1], got %g", name, v))
		}
	}
	if b.TimeLimit <= 0 {
		errs = append(errs, fmt.Errorf("time_limit must be positive, got %g", b.TimeLimit))
	}
	if _, err := selector.ParseRule(b.SelectionRule); err != nil {
		errs = append(errs, err)
	}
	if b.UnitsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("tour_length_units_per_second must be positive, got %g", b.UnitsPerSecond))
	}
	if b.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("max_iterations must not be negative, got %d", b.MaxIterations))
	}
	if c.InitialOrderRelease < 0 {
		errs = append(errs, fmt.Errorf("initial_order_release must not be negative, got %d", c.InitialOrderRelease))
	}
	if c.Layout.MaxX < 0 || c.Layout.MaxY < 0 || c.Layout.MaxZ < 0 {
		errs = append(errs, fmt.Errorf("layout extents must not be negative, got %+v", c.Layout))
	}
	if c.Tick <= 0 {
		errs = append(errs, fmt.Errorf("tick must be positive, got %g", c.Tick))
	}
	if c.OrdersPath != "" && c.FeedInterval < 0 {
		errs = append(errs, fmt.Errorf("feed_interval must not be negative, got %g", c.FeedInterval))
	}
	if c.API.IntakeRate <= 0 || c.API.IntakeBurst < 1 {
		errs = append(errs, fmt.Errorf("api intake needs a positive rate and burst, got %g/%d", c.API.IntakeRate, c.API.IntakeBurst))
	}
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("port must be set"))
	}
	return errors.Join(errs...)
}

// Selector converts the batching section; call it on a validated config.
func (c Config) Selector() selector.Config {
	rule, _ := selector.ParseRule(c.Batching.SelectionRule)
	return selector.Config{
		MaxBatchSize:   c.Batching.MaxBatchSize,
		Rearrangement:  c.Batching.Rearrangement,
		Threshold:      c.Batching.Threshold,
		Release:        c.Batching.Release,
		TimeLimit:      seconds(c.Batching.TimeLimit),
		Rule:           rule,
		UnitsPerSecond: c.Batching.UnitsPerSecond,
		MaxIterations:  c.Batching.MaxIterations,
		Seed:           c.Batching.Seed,
	}
}

// TickInterval is Tick as a duration.
func (c Config) TickInterval() time.Duration { return seconds(c.Tick) }

// FeedEvery is FeedInterval as a duration.
func (c Config) FeedEvery() time.Duration { return seconds(c.FeedInterval) }

func seconds(f float64) time.Duration { return time.Duration(f * float64(time.Second)) }
