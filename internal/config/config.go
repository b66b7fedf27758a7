// Package config loads the worker replica's configuration from environment
// variables (the canonical source per the deployment contract), with an
// optional YAML file layered underneath for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store holds the relational JobStore and blob-store endpoint and
// credentials. Both collaborators live behind the same service credential
// in this deployment, matching how the distillation describes a single
// "STORE_URL/STORE_KEY" pair gating both.
type Store struct {
	URL    string `mapstructure:"url"`
	Key    string `mapstructure:"key"`
	Bucket string `mapstructure:"bucket"`
}

type Render struct {
	MaxRenders        int           `mapstructure:"max_renders"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	EnableCanary      bool          `mapstructure:"enable_canary"`
	BrowserExecutable string        `mapstructure:"browser_executable"`
	// AllowedHostSuffixes is the closed-by-default content-domain allowlist
	// for the render pool's request interception (spec §6). Never hard-code
	// a provider's domain here; this is operator configuration.
	AllowedHostSuffixes []string `mapstructure:"allowed_host_suffixes"`
}

type Poll struct {
	Busy time.Duration `mapstructure:"busy"`
	Idle time.Duration `mapstructure:"idle"`
}

type DB struct {
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type Sweep struct {
	StaleThreshold    time.Duration `mapstructure:"stale_threshold"`
	StaleInterval     time.Duration `mapstructure:"stale_interval"`
	RetentionInterval time.Duration `mapstructure:"retention_interval"`
	RetentionDays     int           `mapstructure:"retention_days"`
}

type Retry struct {
	Base       time.Duration `mapstructure:"base"`
	Cap        time.Duration `mapstructure:"cap"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type CircuitBreaker struct {
	CooldownPeriod  time.Duration `mapstructure:"cooldown_period"`
	ConsecutiveTrip int           `mapstructure:"consecutive_trip"`
}

type Observability struct {
	HealthPort  int     `mapstructure:"health_port"`
	MetricsPort int     `mapstructure:"metrics_port"`
	LogLevel    string  `mapstructure:"log_level"`
	Tracing     Tracing `mapstructure:"tracing"`
}

type Tracing struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

type Config struct {
	WorkerID          string         `mapstructure:"worker_id"`
	Store             Store          `mapstructure:"store"`
	Render            Render         `mapstructure:"render"`
	Poll              Poll           `mapstructure:"poll"`
	DB                DB             `mapstructure:"db"`
	Sweep             Sweep          `mapstructure:"sweep"`
	Retry             Retry          `mapstructure:"retry"`
	CircuitBreaker    CircuitBreaker `mapstructure:"circuit_breaker"`
	Observability     Observability  `mapstructure:"observability"`
	ShutdownTimeout   time.Duration  `mapstructure:"shutdown_timeout"`
	MaxExportHTMLSize int64          `mapstructure:"max_export_html_size"`
	MaxExportImages   int            `mapstructure:"max_export_image_count"`
	// ExtractionFirst preserves the source's fixed priority: the poller
	// claims the content-extraction family before the export family every
	// tick. Toggleable per the spec's own Open Question.
	ExtractionFirst bool `mapstructure:"extraction_first"`
}

func defaultConfig() *Config {
	return &Config{
		WorkerID: fmt.Sprintf("worker-%d", os.Getpid()),
		Render: Render{
			MaxRenders:   3,
			JobTimeout:   60 * time.Second,
			EnableCanary: true,
		},
		Poll: Poll{
			Busy: 2 * time.Second,
			Idle: 5 * time.Second,
		},
		DB: DB{
			MaxRetries: 3,
			RetryDelay: 1 * time.Second,
		},
		Sweep: Sweep{
			StaleThreshold:    5 * time.Minute,
			StaleInterval:     5 * time.Minute,
			RetentionInterval: 24 * time.Hour,
			RetentionDays:     30,
		},
		Retry: Retry{
			Base:       10 * time.Second,
			Cap:        300 * time.Second,
			MaxRetries: 3,
		},
		CircuitBreaker: CircuitBreaker{
			CooldownPeriod:  60 * time.Second,
			ConsecutiveTrip: 3,
		},
		Observability: Observability{
			HealthPort:  3000,
			MetricsPort: 9090,
			LogLevel:    "info",
		},
		ShutdownTimeout:   30 * time.Second,
		MaxExportHTMLSize: 5_242_880,
		MaxExportImages:   100,
		ExtractionFirst:   true,
	}
}

// Load reads configuration primarily from the process environment (per the
// deployment's configuration table), optionally layering a YAML file
// (yamlPath; ignored if it doesn't exist) underneath for local overrides.
func Load(yamlPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	bind := func(key, env string, def interface{}) {
		v.SetDefault(key, def)
		_ = v.BindEnv(key, env)
	}
	// bindSeconds/bindMillis handle the env vars the deployment table names
	// in raw seconds/milliseconds (JOB_TIMEOUT_SECONDS=60, not "60s"):
	// viper's default string->Duration decode hook requires a unit suffix,
	// so a plain BindEnv would fail to parse these on override. Setting the
	// converted value directly before Unmarshal sidesteps that decode path.
	bindSeconds := func(key, env string, def time.Duration) {
		v.SetDefault(key, def)
		if raw := os.Getenv(env); raw != "" {
			if secs, err := strconv.ParseFloat(raw, 64); err == nil {
				v.Set(key, time.Duration(secs*float64(time.Second)))
			}
		}
	}
	bindMillis := func(key, env string, def time.Duration) {
		v.SetDefault(key, def)
		if raw := os.Getenv(env); raw != "" {
			if ms, err := strconv.ParseFloat(raw, 64); err == nil {
				v.Set(key, time.Duration(ms*float64(time.Millisecond)))
			}
		}
	}

	bind("worker_id", "WORKER_ID", def.WorkerID)
	bind("store.url", "STORE_URL", def.Store.URL)
	bind("store.key", "STORE_KEY", def.Store.Key)
	bind("store.bucket", "BLOB_BUCKET", def.Store.Bucket)

	bind("render.max_renders", "MAX_RENDERS", def.Render.MaxRenders)
	bindSeconds("render.job_timeout", "JOB_TIMEOUT_SECONDS", def.Render.JobTimeout)
	bind("render.enable_canary", "ENABLE_CANARY", def.Render.EnableCanary)
	bind("render.browser_executable", "BROWSER_EXECUTABLE", def.Render.BrowserExecutable)
	bind("render.allowed_host_suffixes", "ALLOWED_HOST_SUFFIXES", def.Render.AllowedHostSuffixes)

	bindMillis("poll.busy", "POLL_BUSY_MS", def.Poll.Busy)
	bindMillis("poll.idle", "POLL_IDLE_MS", def.Poll.Idle)

	bind("db.max_retries", "DB_MAX_RETRIES", def.DB.MaxRetries)
	bindMillis("db.retry_delay", "DB_RETRY_DELAY_MS", def.DB.RetryDelay)

	bindSeconds("sweep.stale_threshold", "STALE_THRESHOLD_SECONDS", def.Sweep.StaleThreshold)
	bindSeconds("sweep.stale_interval", "STALE_SWEEP_INTERVAL_SECONDS", def.Sweep.StaleInterval)
	bindSeconds("sweep.retention_interval", "RETENTION_SWEEP_INTERVAL_SECONDS", def.Sweep.RetentionInterval)
	bind("sweep.retention_days", "RETENTION_DAYS", def.Sweep.RetentionDays)

	bindSeconds("retry.base", "RETRY_BASE_SECONDS", def.Retry.Base)
	bindSeconds("retry.cap", "RETRY_CAP_SECONDS", def.Retry.Cap)
	bind("retry.max_retries", "MAX_RETRIES", def.Retry.MaxRetries)

	bind("circuit_breaker.consecutive_trip", "BLOB_BREAKER_CONSECUTIVE_TRIP", def.CircuitBreaker.ConsecutiveTrip)
	bindSeconds("circuit_breaker.cooldown_period", "BLOB_BREAKER_COOLDOWN_SECONDS", def.CircuitBreaker.CooldownPeriod)

	bind("observability.health_port", "HEALTH_PORT", def.Observability.HealthPort)
	bind("observability.metrics_port", "METRICS_PORT", def.Observability.MetricsPort)
	bind("observability.log_level", "LOG_LEVEL", def.Observability.LogLevel)
	bind("observability.tracing.enabled", "TRACING_ENABLED", def.Observability.Tracing.Enabled)
	bind("observability.tracing.endpoint", "TRACING_ENDPOINT", def.Observability.Tracing.Endpoint)

	bindMillis("shutdown_timeout", "SHUTDOWN_TIMEOUT_MS", def.ShutdownTimeout)
	bind("max_export_html_size", "MAX_EXPORT_HTML_SIZE", def.MaxExportHTMLSize)
	bind("max_export_image_count", "MAX_EXPORT_IMAGE_COUNT", def.MaxExportImages)
	bind("extraction_first", "EXTRACTION_FIRST", def.ExtractionFirst)

	if yamlPath != "" {
		if _, err := os.Stat(yamlPath); err == nil {
			v.SetConfigFile(yamlPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the required fields and sane bounds a config_fatal
// startup error should catch before anything else initializes.
func Validate(cfg *Config) error {
	if cfg.Store.URL == "" {
		return fmt.Errorf("STORE_URL is required")
	}
	if cfg.Store.Key == "" {
		return fmt.Errorf("STORE_KEY is required")
	}
	if cfg.Store.Bucket == "" {
		return fmt.Errorf("BLOB_BUCKET is required")
	}
	if cfg.Render.MaxRenders < 1 {
		return fmt.Errorf("render.max_renders must be >= 1")
	}
	if cfg.Observability.HealthPort <= 0 || cfg.Observability.HealthPort > 65535 {
		return fmt.Errorf("observability.health_port must be 1..65535")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	if cfg.Retry.Base <= 0 || cfg.Retry.Cap < cfg.Retry.Base {
		return fmt.Errorf("retry.cap must be >= retry.base > 0")
	}
	return nil
}
