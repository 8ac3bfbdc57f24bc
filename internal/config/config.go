// Package config loads kwscout settings from defaults, an optional config
// file, KWSCOUT_* environment variables and command line flags, in that order
// of precedence (flags win).
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/FranksOps/kwscout/internal/ledger"
	"github.com/FranksOps/kwscout/internal/plan"
	"github.com/FranksOps/kwscout/internal/qualify"
	"github.com/FranksOps/kwscout/internal/report"
	"github.com/FranksOps/kwscout/internal/serp"
	"github.com/FranksOps/kwscout/internal/suggest"
	"github.com/FranksOps/kwscout/pkg/httpclient"
	"github.com/FranksOps/kwscout/pkg/retry"
)

// EnvPrefix is prepended to every environment override, e.g.
// KWSCOUT_BUDGET_MAX_CALLS.
const EnvPrefix = "KWSCOUT"

// Config is the full application configuration.
type Config struct {
	Provider    string             `mapstructure:"provider"`
	Plan        string             `mapstructure:"plan"`
	Concurrency int                `mapstructure:"concurrency"`
	Budget      BudgetConfig       `mapstructure:"budget"`
	Thresholds  qualify.Thresholds `mapstructure:"thresholds"`
	Retry       RetryConfig        `mapstructure:"retry"`
	Rate        RateConfig         `mapstructure:"rate"`
	HTTP        HTTPConfig         `mapstructure:"http"`
	SerpAPI     SerpAPIConfig      `mapstructure:"serpapi"`
	DataForSEO  DataForSEOConfig   `mapstructure:"dataforseo"`
	Yahoo       YahooConfig        `mapstructure:"yahoo"`
	Cache       CacheConfig        `mapstructure:"cache"`
	Report      ReportConfig       `mapstructure:"report"`
	Log         LogConfig          `mapstructure:"log"`
	Metrics     MetricsConfig      `mapstructure:"metrics"`
	Suggest     SuggestConfig      `mapstructure:"suggest"`
}

// BudgetConfig caps billable calls per run. CostPerCall is a decimal string
// so money never passes through a float.
type BudgetConfig struct {
	MaxCalls    int    `mapstructure:"max_calls"`
	CostPerCall string `mapstructure:"cost_per_call"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Jitter      float64       `mapstructure:"jitter"`
}

// RateConfig paces provider requests. 0 requests per second disables pacing.
type RateConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Jitter            float64 `mapstructure:"jitter"`
}

// HTTPConfig is shared by every backend.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`

	// ProxiesFile lists one proxy URL per line.
	ProxiesFile string `mapstructure:"proxies_file"`

	// ProxyMaxFailures and ProxyCooldown bench a failing proxy.
	ProxyMaxFailures int           `mapstructure:"proxy_max_failures"`
	ProxyCooldown    time.Duration `mapstructure:"proxy_cooldown"`
	UserAgent        string        `mapstructure:"user_agent"`

	// RespectRobots makes the HTML backend honor robots.txt.
	RespectRobots bool `mapstructure:"respect_robots"`
}

type SerpAPIConfig struct {
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
	Country  string `mapstructure:"country"`
	Language string `mapstructure:"language"`
}

type DataForSEOConfig struct {
	Login        string `mapstructure:"login"`
	Password     string `mapstructure:"password"`
	BaseURL      string `mapstructure:"base_url"`
	LocationCode int    `mapstructure:"location_code"`
	LanguageCode string `mapstructure:"language_code"`
	Device       string `mapstructure:"device"`
}

type YahooConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	Fingerprint string `mapstructure:"fingerprint"`
}

// CacheConfig selects the result store. Backend "none" disables caching.
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
	// DSN is a file path for sqlite, csv and json, a connection string for
	// postgres.
	DSN string        `mapstructure:"dsn"`
	TTL time.Duration `mapstructure:"ttl"`
	// Timezone decides where the calendar day ends when TTL is zero.
	Timezone string `mapstructure:"timezone"`
}

type ReportConfig struct {
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig enables the Prometheus endpoint when Port is non-zero.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// SuggestConfig tunes `kwscout suggest`. Each modifier costs one call.
type SuggestConfig struct {
	Modifiers []string `mapstructure:"modifiers"`
	Limit     int      `mapstructure:"limit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	r := retry.Default()
	return &Config{
		Provider:    string(serp.SourceSerpAPI),
		Plan:        string(plan.Optimized),
		Concurrency: 3,
		Budget:      BudgetConfig{MaxCalls: 100, CostPerCall: "0.01"},
		Thresholds:  qualify.DefaultThresholds(),
		Retry: RetryConfig{
			MaxAttempts: r.MaxAttempts,
			BaseDelay:   r.BaseDelay,
			MaxDelay:    r.MaxDelay,
			Jitter:      r.Jitter,
		},
		Rate: RateConfig{RequestsPerSecond: 2, Jitter: 0.3},
		HTTP: HTTPConfig{
			Timeout:          30 * time.Second,
			ProxyMaxFailures: 3,
			ProxyCooldown:    5 * time.Minute,
		},
		SerpAPI: SerpAPIConfig{
			BaseURL:  serp.DefaultSerpAPIURL,
			Country:  "jp",
			Language: "ja",
		},
		DataForSEO: DataForSEOConfig{
			BaseURL:      serp.DefaultDataForSEOURL,
			LocationCode: 2392,
			LanguageCode: "ja",
			Device:       "desktop",
		},
		Yahoo:   YahooConfig{BaseURL: serp.DefaultYahooURL, Fingerprint: string(httpclient.ProfileChrome)},
		Cache:   CacheConfig{Backend: "none", Timezone: "Local"},
		Report:  ReportConfig{Format: string(report.FormatText)},
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{},
		Suggest: SuggestConfig{
			Modifiers: slices.Clone(suggest.DefaultModifiers),
			Limit:     suggest.DefaultLimit,
		},
	}
}

// SetDefaults registers every key of Default with v. Viper only resolves
// environment overrides for keys it knows about.
func SetDefaults(v *viper.Viper) {
	d := Default()
	defaults := map[string]any{
		"provider":                 d.Provider,
		"plan":                     d.Plan,
		"concurrency":              d.Concurrency,
		"budget.max_calls":         d.Budget.MaxCalls,
		"budget.cost_per_call":     d.Budget.CostPerCall,
		"thresholds.allintitle":    int64(d.Thresholds.AllInTitle),
		"thresholds.intitle":       int64(d.Thresholds.InTitle),
		"retry.max_attempts":       d.Retry.MaxAttempts,
		"retry.base_delay":         d.Retry.BaseDelay,
		"retry.max_delay":          d.Retry.MaxDelay,
		"retry.jitter":             d.Retry.Jitter,
		"rate.requests_per_second": d.Rate.RequestsPerSecond,
		"rate.jitter":              d.Rate.Jitter,
		"http.timeout":             d.HTTP.Timeout,
		"http.proxies_file":        d.HTTP.ProxiesFile,
		"http.proxy_max_failures":  d.HTTP.ProxyMaxFailures,
		"http.proxy_cooldown":      d.HTTP.ProxyCooldown,
		"http.user_agent":          d.HTTP.UserAgent,
		"http.respect_robots":      d.HTTP.RespectRobots,
		"serpapi.api_key":          d.SerpAPI.APIKey,
		"serpapi.base_url":         d.SerpAPI.BaseURL,
		"serpapi.country":          d.SerpAPI.Country,
		"serpapi.language":         d.SerpAPI.Language,
		"dataforseo.login":         d.DataForSEO.Login,
		"dataforseo.password":      d.DataForSEO.Password,
		"dataforseo.base_url":      d.DataForSEO.BaseURL,
		"dataforseo.location_code": d.DataForSEO.LocationCode,
		"dataforseo.language_code": d.DataForSEO.LanguageCode,
		"dataforseo.device":        d.DataForSEO.Device,
		"yahoo.base_url":           d.Yahoo.BaseURL,
		"yahoo.fingerprint":        d.Yahoo.Fingerprint,
		"cache.backend":            d.Cache.Backend,
		"cache.dsn":                d.Cache.DSN,
		"cache.ttl":                d.Cache.TTL,
		"cache.timezone":           d.Cache.Timezone,
		"report.format":            d.Report.Format,
		"report.output":            d.Report.Output,
		"log.level":                d.Log.Level,
		"log.format":               d.Log.Format,
		"metrics.port":             d.Metrics.Port,
		"suggest.modifiers":        d.Suggest.Modifiers,
		"suggest.limit":            d.Suggest.Limit,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads the configuration from v. If path is non-empty that file is
// read first; its format follows the extension (yaml, json, toml).
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials are also accepted under the names the providers document.
	binds := map[string][]string{
		"serpapi.api_key":     {EnvPrefix + "_SERPAPI_API_KEY", "SERPAPI_API_KEY"},
		"dataforseo.login":    {EnvPrefix + "_DATAFORSEO_LOGIN", "DATAFORSEO_LOGIN"},
		"dataforseo.password": {EnvPrefix + "_DATAFORSEO_PASSWORD", "DATAFORSEO_PASSWORD"},
	}
	for key, envs := range binds {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted. Credentials are checked
// when the provider is built, not here, so commands that never call a
// provider work without them.
func (c *Config) Validate() error {
	var errs []error
	if _, err := serp.ParseSource(c.Provider); err != nil {
		errs = append(errs, err)
	}
	if _, err := plan.ParseStrategy(c.Plan); err != nil {
		errs = append(errs, err)
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Budget.MaxCalls < 0 {
		errs = append(errs, fmt.Errorf("budget.max_calls must not be negative, got %d", c.Budget.MaxCalls))
	}
	if d, err := decimal.NewFromString(c.Budget.CostPerCall); err != nil {
		errs = append(errs, fmt.Errorf("budget.cost_per_call %q: %w", c.Budget.CostPerCall, err))
	} else if d.IsNegative() {
		errs = append(errs, fmt.Errorf("budget.cost_per_call must not be negative, got %s", d))
	}
	if c.Thresholds.AllInTitle < 0 || c.Thresholds.InTitle < 0 {
		errs = append(errs, errors.New("thresholds must not be negative"))
	}
	if c.Suggest.Limit < 0 {
		errs = append(errs, fmt.Errorf("suggest.limit must not be negative, got %d", c.Suggest.Limit))
	}
	if c.Rate.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("rate.requests_per_second must not be negative"))
	}
	switch c.Cache.Backend {
	case "", "none":
	case "sqlite", "postgres", "csv", "json":
		if c.Cache.DSN == "" {
			errs = append(errs, fmt.Errorf("cache.dsn is required for backend %q", c.Cache.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache backend %q", c.Cache.Backend))
	}
	if _, err := report.ParseFormat(c.Report.Format); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// LedgerBudget converts the budget section. It assumes Validate passed.
func (c *Config) LedgerBudget() ledger.Budget {
	d, _ := decimal.NewFromString(c.Budget.CostPerCall)
	return ledger.Budget{MaxCalls: c.Budget.MaxCalls, CostPerCall: d}
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
		Jitter:      c.Retry.Jitter,
	}
}

// Location resolves cache.timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Cache.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Cache.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: cache.timezone: %w", err)
	}
	return loc, nil
}
