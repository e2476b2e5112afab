// Package config defines the application configuration, loaded through
// viper from a YAML file, environment variables and defaults.
package config

import (
	"fmt"
	"os"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config is the root configuration object. Field layout mirrors the
// config file; all durations accept Go duration strings ("30s", "2m").
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Runner   RunnerConfig   `mapstructure:"runner" yaml:"runner"`
	Recorder RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
}

// LoggerConfig controls the zap logger built by pkg/observability.
type LoggerConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ViewportConfig is the initial window size passed to the browser.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// BrowserConfig controls how the headless browser process is launched.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	Proxy           string         `mapstructure:"proxy" yaml:"proxy"`
	DisableCache    bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug           bool           `mapstructure:"debug" yaml:"debug"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
}

// EngineConfig tunes the automation engine's timing behavior.
type EngineConfig struct {
	DefaultTimeout    time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SwitchSettle      time.Duration `mapstructure:"switch_settle" yaml:"switch_settle"`
	SlowMo            time.Duration `mapstructure:"slow_mo" yaml:"slow_mo"`
}

// RunnerConfig controls suite execution.
type RunnerConfig struct {
	Concurrency  int           `mapstructure:"concurrency" yaml:"concurrency"`
	StepTimeout  time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	ArtifactsDir string        `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
	FailFast     bool          `mapstructure:"fail_fast" yaml:"fail_fast"`
}

// RecorderConfig controls the interaction recorder and its live preview.
type RecorderConfig struct {
	ListenAddr       string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval" yaml:"snapshot_interval"`
	EventsPerSecond  float64       `mapstructure:"events_per_second" yaml:"events_per_second"`
}

// ReportConfig controls report rendering.
type ReportConfig struct {
	Title string `mapstructure:"title" yaml:"title"`
}

// StoreConfig controls the optional Postgres results store. The store is
// disabled while DSN is empty.
type StoreConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// Enabled reports whether a results store has been configured.
func (s StoreConfig) Enabled() bool { return s.DSN != "" }

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; a decode failure here is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// Browser defaults
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.proxy", "")
	v.SetDefault("browser.disable_cache", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 800)

	// Engine defaults
	v.SetDefault("engine.default_timeout", "30s")
	v.SetDefault("engine.navigation_timeout", "90s")
	v.SetDefault("engine.settle_delay", "100ms")
	v.SetDefault("engine.poll_interval", "100ms")
	v.SetDefault("engine.switch_settle", "500ms")
	v.SetDefault("engine.slow_mo", "0s")

	// Runner defaults
	v.SetDefault("runner.concurrency", 4)
	v.SetDefault("runner.step_timeout", "45s")
	v.SetDefault("runner.artifacts_dir", "~/.waldo/artifacts")
	v.SetDefault("runner.fail_fast", false)

	// Recorder defaults
	v.SetDefault("recorder.listen_addr", "127.0.0.1:8077")
	v.SetDefault("recorder.snapshot_interval", "2s")
	v.SetDefault("recorder.events_per_second", 25.0)

	// Report defaults
	v.SetDefault("report.title", "Waldo Run Report")

	// Store defaults
	v.SetDefault("store.dsn", "")
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("store.dsn", "WALDO_STORE_DSN")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the DSN if Unmarshal didn't pick it up.
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = os.Getenv("WALDO_STORE_DSN")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be \"console\" or \"json\", got %q", c.Logger.Format)
	}
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	if c.Runner.StepTimeout <= 0 {
		return fmt.Errorf("runner.step_timeout must be positive")
	}
	if c.Engine.DefaultTimeout <= 0 {
		return fmt.Errorf("engine.default_timeout must be positive")
	}
	if c.Engine.NavigationTimeout <= 0 {
		return fmt.Errorf("engine.navigation_timeout must be positive")
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport dimensions must be positive")
	}
	if c.Recorder.EventsPerSecond <= 0 {
		return fmt.Errorf("recorder.events_per_second must be positive")
	}
	if c.Recorder.SnapshotInterval <= 0 {
		return fmt.Errorf("recorder.snapshot_interval must be positive")
	}
	return nil
}

// ExpandPath resolves a leading ~ in p to the current user's home
// directory. Empty paths pass through unchanged.
func ExpandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("expanding path %q: %w", p, err)
	}
	return expanded, nil
}
