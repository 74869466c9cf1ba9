// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Every section is
// threaded explicitly into the constructor that needs it.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Wait     WaitConfig     `mapstructure:"wait" yaml:"wait"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
	// Targets lists the organization URLs the login command signs into.
	Targets []string `mapstructure:"targets" yaml:"targets"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chrome instances driven by chromedp.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Concurrency     int            `mapstructure:"concurrency" yaml:"concurrency"`
	Debug           bool           `mapstructure:"debug" yaml:"debug"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir     string         `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	// NavigationTimeout bounds a single page load.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// ActionTimeout bounds a single click, keystroke batch or script evaluation.
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// ExecutorConfig holds the default retry policy applied by the command executor.
type ExecutorConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	CommandsPerSecond float64       `mapstructure:"commands_per_second" yaml:"commands_per_second"`
	HistorySize       int           `mapstructure:"history_size" yaml:"history_size"`
}

// WaitConfig holds the defaults for the polling wait primitives.
type WaitConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SettleTimeout     time.Duration `mapstructure:"settle_timeout" yaml:"settle_timeout"`
	SettleQuietPeriod time.Duration `mapstructure:"settle_quiet_period" yaml:"settle_quiet_period"`
}

// AuthConfig configures the login state machine. Credentials are only ever
// read from the environment or the config file; they are never written back.
type AuthConfig struct {
	Username  string `mapstructure:"username" yaml:"username"`
	Password  string `mapstructure:"password" yaml:"-"`
	MFASecret string `mapstructure:"mfa_secret" yaml:"-"`

	UsernameTimeout     time.Duration `mapstructure:"username_timeout" yaml:"username_timeout"`
	PasswordTimeout     time.Duration `mapstructure:"password_timeout" yaml:"password_timeout"`
	LandingTimeout      time.Duration `mapstructure:"landing_timeout" yaml:"landing_timeout"`
	StaySignedInTimeout time.Duration `mapstructure:"stay_signed_in_timeout" yaml:"stay_signed_in_timeout"`
	PromptTimeout       time.Duration `mapstructure:"prompt_timeout" yaml:"prompt_timeout"`
	RedirectWait        time.Duration `mapstructure:"redirect_wait" yaml:"redirect_wait"`
	ThinkTime           time.Duration `mapstructure:"think_time" yaml:"think_time"`
	MFARetryAttempts    int           `mapstructure:"mfa_retry_attempts" yaml:"mfa_retry_attempts"`
	MFARetryDelay       time.Duration `mapstructure:"mfa_retry_delay" yaml:"mfa_retry_delay"`
	MFADigits           int           `mapstructure:"mfa_digits" yaml:"mfa_digits"`
	// OnlineDomains are host suffixes served by the hosted login flow. Any
	// other host is treated as on-premises and needs no interactive login.
	OnlineDomains   []string `mapstructure:"online_domains" yaml:"online_domains"`
	TestMode        bool     `mapstructure:"test_mode" yaml:"test_mode"`
	PerformanceMode bool     `mapstructure:"performance_mode" yaml:"performance_mode"`
}

// MetricsConfig configures the Prometheus collectors and the optional listener.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	Addr      string `mapstructure:"addr" yaml:"addr"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "easyrepro")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.concurrency", 2)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.action_timeout", "30s")

	// -- Executor --
	v.SetDefault("executor.max_attempts", 2)
	v.SetDefault("executor.retry_delay", "2s")
	v.SetDefault("executor.commands_per_second", 0.0)
	v.SetDefault("executor.history_size", 100)

	// -- Wait --
	v.SetDefault("wait.timeout", "30s")
	v.SetDefault("wait.poll_interval", "500ms")
	v.SetDefault("wait.settle_timeout", "30s")
	v.SetDefault("wait.settle_quiet_period", "500ms")

	// -- Auth --
	v.SetDefault("auth.username_timeout", "30s")
	v.SetDefault("auth.password_timeout", "30s")
	v.SetDefault("auth.landing_timeout", "60s")
	v.SetDefault("auth.stay_signed_in_timeout", "5s")
	v.SetDefault("auth.prompt_timeout", "2s")
	v.SetDefault("auth.redirect_wait", "3s")
	v.SetDefault("auth.think_time", "1s")
	v.SetDefault("auth.mfa_retry_attempts", 2)
	v.SetDefault("auth.mfa_retry_delay", "2s")
	v.SetDefault("auth.mfa_digits", 6)
	v.SetDefault("auth.online_domains", []string{
		".dynamics.com",
		".crm.dynamics.com",
		".microsoftdynamics.de",
		".dynamics.cn",
		".microsoftdynamics.us",
		".appsplatform.us",
	})
	v.SetDefault("auth.test_mode", true)
	v.SetDefault("auth.performance_mode", false)

	// -- Metrics --
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "easyrepro")
	v.SetDefault("metrics.addr", "")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("auth.username", "EASYREPRO_USERNAME")
	_ = v.BindEnv("auth.password", "EASYREPRO_PASSWORD")
	_ = v.BindEnv("auth.mfa_secret", "EASYREPRO_MFA_SECRET")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the secrets if Unmarshal didn't pick them up
	if cfg.Auth.Password == "" {
		cfg.Auth.Password = os.Getenv("EASYREPRO_PASSWORD")
	}
	if cfg.Auth.MFASecret == "" {
		cfg.Auth.MFASecret = os.Getenv("EASYREPRO_MFA_SECRET")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Browser.Concurrency <= 0 {
		return fmt.Errorf("browser.concurrency must be a positive integer")
	}
	if err := c.Executor.Validate(); err != nil {
		return fmt.Errorf("executor configuration invalid: %w", err)
	}
	if err := c.Wait.Validate(); err != nil {
		return fmt.Errorf("wait configuration invalid: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the executor retry policy.
func (e *ExecutorConfig) Validate() error {
	if e.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative")
	}
	if e.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must not be negative")
	}
	if e.CommandsPerSecond < 0 {
		return fmt.Errorf("commands_per_second must not be negative")
	}
	return nil
}

// Validate checks the wait defaults. Unbounded waits are not allowed.
func (w *WaitConfig) Validate() error {
	if w.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive duration")
	}
	if w.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if w.SettleTimeout <= 0 {
		return fmt.Errorf("settle_timeout must be a positive duration")
	}
	return nil
}

// Validate checks the login timings.
func (a *AuthConfig) Validate() error {
	if a.UsernameTimeout <= 0 || a.LandingTimeout <= 0 {
		return fmt.Errorf("username_timeout and landing_timeout must be positive durations")
	}
	if a.MFARetryAttempts < 0 {
		return fmt.Errorf("mfa_retry_attempts must not be negative")
	}
	if a.MFADigits != 0 && (a.MFADigits < 6 || a.MFADigits > 8) {
		return fmt.Errorf("mfa_digits must be between 6 and 8")
	}
	if a.ThinkTime < 0 || a.RedirectWait < 0 {
		return fmt.Errorf("think_time and redirect_wait must not be negative")
	}
	return nil
}
