// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Timeouts() TimeoutConfig
	Probe() ProbeConfig
	LLM() LLMConfig
	Mail() MailConfig
	Server() ServerConfig
	Batch() BatchConfig

	// Browser Setters
	SetBrowserHeadless(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	TimeoutsCfg TimeoutConfig  `mapstructure:"timeouts" yaml:"timeouts"`
	ProbeCfg    ProbeConfig    `mapstructure:"probe" yaml:"probe"`
	LLMCfg      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	MailCfg     MailConfig     `mapstructure:"mail" yaml:"mail"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
	BatchCfg    BatchConfig    `mapstructure:"batch" yaml:"batch"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Timeouts() TimeoutConfig  { return c.TimeoutsCfg }
func (c *Config) Probe() ProbeConfig       { return c.ProbeCfg }
func (c *Config) LLM() LLMConfig           { return c.LLMCfg }
func (c *Config) Mail() MailConfig         { return c.MailCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }
func (c *Config) Batch() BatchConfig       { return c.BatchCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }

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

// DatabaseConfig holds the connection string for the repository.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig controls how the shared Chrome instance is launched and how
// each page is presented to the sites it visits.
type BrowserConfig struct {
	Headless       bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath       string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent      string   `mapstructure:"user_agent" yaml:"user_agent"`
	ViewportWidth  int      `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int      `mapstructure:"viewport_height" yaml:"viewport_height"`
	Timezone       string   `mapstructure:"timezone" yaml:"timezone"`
	Locale         string   `mapstructure:"locale" yaml:"locale"`
	ExtraArgs      []string `mapstructure:"extra_args" yaml:"extra_args"`
	ScreenshotQual int      `mapstructure:"screenshot_quality" yaml:"screenshot_quality"`
}

// TimeoutConfig is the set of ceilings applied to every wait in an attempt.
type TimeoutConfig struct {
	Navigation      time.Duration `mapstructure:"navigation" yaml:"navigation"`
	PageDefault     time.Duration `mapstructure:"page_default" yaml:"page_default"`
	PostLoadSettle  time.Duration `mapstructure:"post_load_settle" yaml:"post_load_settle"`
	ChallengeGrace  time.Duration `mapstructure:"challenge_grace" yaml:"challenge_grace"`
	VisibilityProbe time.Duration `mapstructure:"visibility_probe" yaml:"visibility_probe"`
	PatternSettle   time.Duration `mapstructure:"pattern_settle" yaml:"pattern_settle"`
	Action          time.Duration `mapstructure:"action" yaml:"action"`
	ClickPause      time.Duration `mapstructure:"click_pause" yaml:"click_pause"`
	ActionSettle    time.Duration `mapstructure:"action_settle" yaml:"action_settle"`
	Screenshot      time.Duration `mapstructure:"screenshot" yaml:"screenshot"`
}

// ProbeConfig holds the text heuristics used to read a page.
type ProbeConfig struct {
	SuccessPhrases   []string `mapstructure:"success_phrases" yaml:"success_phrases"`
	ChallengeTitles  []string `mapstructure:"challenge_titles" yaml:"challenge_titles"`
	ChallengeMarkers []string `mapstructure:"challenge_markers" yaml:"challenge_markers"`
	CheckboxKeywords []string `mapstructure:"checkbox_keywords" yaml:"checkbox_keywords"`
	DirectSelectors  []string `mapstructure:"direct_selectors" yaml:"direct_selectors"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
	ProviderNone   LLMProvider = "none"
)

// LLMConfig configures the content classifier.
type LLMConfig struct {
	Provider          LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model             string        `mapstructure:"model" yaml:"model"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	APITimeout        time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature       float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
}

// MailConfig configures the IMAP mail gateway.
type MailConfig struct {
	Host        string        `mapstructure:"host" yaml:"host"`
	Port        int           `mapstructure:"port" yaml:"port"`
	Folder      string        `mapstructure:"folder" yaml:"folder"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
}

// Address returns host:port for dialing.
func (m MailConfig) Address() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// ServerConfig configures the job status HTTP API.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen" yaml:"listen"`
	JobRetention time.Duration `mapstructure:"job_retention" yaml:"job_retention"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
}

// BatchConfig tunes batch execution.
type BatchConfig struct {
	// ResolveConcurrency bounds how many emails are fetched and parsed ahead
	// of the browser. Browser work itself is always sequential.
	ResolveConcurrency int  `mapstructure:"resolve_concurrency" yaml:"resolve_concurrency"`
	RecordOutcomes     bool `mapstructure:"record_outcomes" yaml:"record_outcomes"`
}

// DefaultUserAgent is presented by every page unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultSuccessPhrases signal a completed unsubscribe. Matching is done on
// lower-cased page text.
var DefaultSuccessPhrases = []string{
	"unsubscribed",
	"you have been unsubscribed",
	"successfully unsubscribed",
	"you will no longer receive",
	"preference updated",
	"preferences saved",
	"email preferences updated",
	"you are now unsubscribed",
	"removed from",
	"subscription removed",
	"opt-out successful",
}

// DefaultChallengeTitles are interstitial page titles served by bot walls.
var DefaultChallengeTitles = []string{"Just a moment", "Attention Required"}

// DefaultChallengeMarkers are fragments of challenge page markup.
var DefaultChallengeMarkers = []string{"cloudflare", "cf-browser-verification", "Checking your browser"}

// DefaultCheckboxKeywords identify opt-out checkboxes by their label.
var DefaultCheckboxKeywords = []string{"unsubscribe", "opt out", "stop receiving", "remove me"}

// DefaultDirectSelectors are tried in order by the direct-action pattern.
var DefaultDirectSelectors = []string{
	`button:has-text("Unsubscribe")`,
	`a:has-text("Unsubscribe")`,
	`input[value*="unsubscribe" i]`,
	`button:has-text("Confirm")`,
	`button[type="submit"]`,
}

// NewDefaultConfig creates a configuration populated with every default.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	// Unmarshal defaults; ignore error as defaults are trusted.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// SetDefaults applies the default values to a viper instance.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "sweeper")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.url", "")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.timezone", "America/New_York")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.screenshot_quality", 100)

	// -- Timeouts --
	v.SetDefault("timeouts.navigation", "60s")
	v.SetDefault("timeouts.page_default", "60s")
	v.SetDefault("timeouts.post_load_settle", "2s")
	v.SetDefault("timeouts.challenge_grace", "10s")
	v.SetDefault("timeouts.visibility_probe", "1s")
	v.SetDefault("timeouts.pattern_settle", "3s")
	v.SetDefault("timeouts.action", "5s")
	v.SetDefault("timeouts.click_pause", "1s")
	v.SetDefault("timeouts.action_settle", "2s")
	v.SetDefault("timeouts.screenshot", "15s")

	// -- Probe --
	v.SetDefault("probe.success_phrases", DefaultSuccessPhrases)
	v.SetDefault("probe.challenge_titles", DefaultChallengeTitles)
	v.SetDefault("probe.challenge_markers", DefaultChallengeMarkers)
	v.SetDefault("probe.checkbox_keywords", DefaultCheckboxKeywords)
	v.SetDefault("probe.direct_selectors", DefaultDirectSelectors)

	// -- LLM --
	v.SetDefault("llm.provider", string(ProviderGemini))
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.api_timeout", "30s")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 500)
	v.SetDefault("llm.requests_per_minute", 30)

	// -- Mail --
	v.SetDefault("mail.host", "imap.gmail.com")
	v.SetDefault("mail.port", 993)
	v.SetDefault("mail.folder", "[Gmail]/All Mail")
	v.SetDefault("mail.dial_timeout", "30s")

	// -- Server --
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.job_retention", "1h")
	v.SetDefault("server.read_timeout", "15s")

	// -- Batch --
	v.SetDefault("batch.resolve_concurrency", 4)
	v.SetDefault("batch.record_outcomes", true)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("llm.api_key", "SWEEPER_LLM_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "SWEEPER_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = expanded
	}
	if cfg.BrowserCfg.ExecPath != "" {
		expanded, err := homedir.Expand(cfg.BrowserCfg.ExecPath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand browser.exec_path: %w", err)
		}
		cfg.BrowserCfg.ExecPath = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BrowserCfg.ViewportWidth <= 0 || c.BrowserCfg.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport dimensions must be positive")
	}
	if err := c.TimeoutsCfg.Validate(); err != nil {
		return fmt.Errorf("timeouts configuration invalid: %w", err)
	}
	if len(c.ProbeCfg.SuccessPhrases) == 0 {
		return fmt.Errorf("probe.success_phrases must not be empty")
	}
	if c.BatchCfg.ResolveConcurrency <= 0 {
		return fmt.Errorf("batch.resolve_concurrency must be a positive integer")
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	return nil
}

// Validate checks that every wait has a ceiling.
func (t *TimeoutConfig) Validate() error {
	checks := map[string]time.Duration{
		"navigation":       t.Navigation,
		"page_default":     t.PageDefault,
		"challenge_grace":  t.ChallengeGrace,
		"visibility_probe": t.VisibilityProbe,
		"action":           t.Action,
	}
	for name, d := range checks {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if t.PostLoadSettle < 0 || t.PatternSettle < 0 || t.ActionSettle < 0 || t.ClickPause < 0 {
		return fmt.Errorf("settle windows must not be negative")
	}
	return nil
}

// Validate checks the LLM configuration.
func (l *LLMConfig) Validate() error {
	switch LLMProvider(strings.ToLower(string(l.Provider))) {
	case ProviderNone, "":
		return nil
	case ProviderGemini:
	default:
		return fmt.Errorf("unknown provider '%s'", l.Provider)
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if l.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be greater than 0")
	}
	if l.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	return nil
}

// Enabled reports whether a classifier backend should be built.
func (l LLMConfig) Enabled() bool {
	p := LLMProvider(strings.ToLower(string(l.Provider)))
	return p != ProviderNone && p != "" && l.APIKey != ""
}
