// Package config loads the copilot service configuration.
// Sources are applied in order, later ones overriding earlier ones:
// built-in defaults, an optional YAML file, a .env file, then the process
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultHTTPAddr        = ":3013"
	DefaultBotDisplayName  = "SmartCareerAI Copilot"
	DefaultRecordsBaseURL  = "http://localhost:3007"
	DefaultDeepgramURL     = "wss://api.deepgram.com/v1/listen"
	DefaultDeepgramModel   = "nova-2"
	DefaultLLMBaseURL      = "https://api.groq.com/openai/v1"
	DefaultLLMModel        = "llama-3.1-8b-instant"
	DefaultChannelPrefix   = "copilot:session:"
	DefaultReapSchedule    = "@every 1m"
	DefaultFailedRetention = 5 * time.Minute
)

// BrowserConfig drives the headless meeting client.
type BrowserConfig struct {
	// ChromePath overrides the browser binary; empty lets rod pick one.
	ChromePath        string        `yaml:"chrome_path"`
	Headless          bool          `yaml:"headless"`
	NameInputSelector string        `yaml:"name_input_selector"`
	JoinButtonTexts   []string      `yaml:"join_button_texts"`
	AdmittedSelector  string        `yaml:"admitted_selector"`
	NameInputTimeout  time.Duration `yaml:"name_input_timeout"`
	AdmissionTimeout  time.Duration `yaml:"admission_timeout"`
	// ExitPollInterval is how often the page is checked for the meeting ending.
	ExitPollInterval time.Duration `yaml:"exit_poll_interval"`
}

// DeepgramConfig holds the speech-to-text provider settings.
type DeepgramConfig struct {
	APIKey     string `yaml:"api_key"`
	URL        string `yaml:"url"`
	Model      string `yaml:"model"`
	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	// AudioQueueSize bounds the chunks waiting to be sent; overflow is dropped.
	AudioQueueSize    int           `yaml:"audio_queue_size"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
}

// LLMConfig holds the chat-completion provider settings.
type LLMConfig struct {
	APIKey                string        `yaml:"api_key"`
	BaseURL               string        `yaml:"base_url"`
	Model                 string        `yaml:"model"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	SuggestionTemperature float64       `yaml:"suggestion_temperature"`
	SuggestionMaxTokens   int           `yaml:"suggestion_max_tokens"`
	SummaryTemperature    float64       `yaml:"summary_temperature"`
	SummaryMaxTokens      int           `yaml:"summary_max_tokens"`
}

// CopilotConfig tunes the suggestion engine and the summarizer.
type CopilotConfig struct {
	Debounce            time.Duration `yaml:"debounce"`
	CarryOver           int           `yaml:"carry_over"`
	MinSuggestionLength int           `yaml:"min_suggestion_length"`
	SummaryMaxChars     int           `yaml:"summary_max_chars"`
	ShutdownGrace       time.Duration `yaml:"shutdown_grace"`
}

// RedisConfig holds the broadcast connection settings.
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// RecordsConfig points at the session-record service.
type RecordsConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config is the complete service configuration.
type Config struct {
	HTTPAddr       string   `yaml:"http_addr"`
	LogLevel       string   `yaml:"log_level"`
	LogJSON        bool     `yaml:"log_json"`
	BotDisplayName string   `yaml:"bot_display_name"`
	CORSOrigins    []string `yaml:"cors_allowed_origins"`

	// FailedRetention is how long a failed bot stays visible before the
	// reaper evicts it.
	FailedRetention time.Duration `yaml:"failed_retention"`
	ReapSchedule    string        `yaml:"reap_schedule"`

	Browser  BrowserConfig  `yaml:"browser"`
	Deepgram DeepgramConfig `yaml:"deepgram"`
	LLM      LLMConfig      `yaml:"llm"`
	Copilot  CopilotConfig  `yaml:"copilot"`
	Redis    RedisConfig    `yaml:"redis"`
	Records  RecordsConfig  `yaml:"records"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:        DefaultHTTPAddr,
		LogLevel:        "info",
		BotDisplayName:  DefaultBotDisplayName,
		CORSOrigins:     []string{"*"},
		FailedRetention: DefaultFailedRetention,
		ReapSchedule:    DefaultReapSchedule,
		Browser: BrowserConfig{
			Headless:          true,
			NameInputSelector: `input[type="text"]`,
			JoinButtonTexts:   []string{"Ask to join", "Join now"},
			AdmittedSelector:  `[aria-label="Meeting details"]`,
			NameInputTimeout:  15 * time.Second,
			AdmissionTimeout:  60 * time.Second,
			ExitPollInterval:  5 * time.Second,
		},
		Deepgram: DeepgramConfig{
			URL:               DefaultDeepgramURL,
			Model:             DefaultDeepgramModel,
			Language:          "en-US",
			SampleRate:        16000,
			Channels:          1,
			AudioQueueSize:    64,
			KeepAliveInterval: 5 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:               DefaultLLMBaseURL,
			Model:                 DefaultLLMModel,
			RequestTimeout:        30 * time.Second,
			SuggestionTemperature: 0.5,
			SuggestionMaxTokens:   150,
			SummaryTemperature:    0.3,
			SummaryMaxTokens:      500,
		},
		Copilot: CopilotConfig{
			Debounce:            8 * time.Second,
			CarryOver:           2,
			MinSuggestionLength: 6,
			SummaryMaxChars:     4000,
			ShutdownGrace:       10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			ChannelPrefix: DefaultChannelPrefix,
		},
		Records: RecordsConfig{
			BaseURL: DefaultRecordsBaseURL,
			Timeout: 10 * time.Second,
		},
	}
}

// Load builds the configuration. path is an optional YAML file; envFiles are
// optional .env files, skipped when absent.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := loadDotEnv(envFiles); err != nil {
		return nil, err
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

type envReader struct {
	errs []error
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (r *envReader) list(key string, dst *[]string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func (r *envReader) integer(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (r *envReader) float(key string, dst *float64) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func loadFromEnv(cfg *Config) error {
	r := &envReader{}

	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		cfg.HTTPAddr = ":" + strings.TrimPrefix(v, ":")
	}
	r.str("HTTP_ADDR", &cfg.HTTPAddr)
	r.str("LOG_LEVEL", &cfg.LogLevel)
	r.boolean("LOG_JSON", &cfg.LogJSON)
	r.str("BOT_DISPLAY_NAME", &cfg.BotDisplayName)
	r.list("CORS_ALLOWED_ORIGINS", &cfg.CORSOrigins)
	r.duration("FAILED_RETENTION", &cfg.FailedRetention)
	r.str("REAP_SCHEDULE", &cfg.ReapSchedule)

	r.str("CHROME_PATH", &cfg.Browser.ChromePath)
	r.boolean("BROWSER_HEADLESS", &cfg.Browser.Headless)
	r.list("JOIN_BUTTON_TEXTS", &cfg.Browser.JoinButtonTexts)
	r.duration("NAME_INPUT_TIMEOUT", &cfg.Browser.NameInputTimeout)
	r.duration("ADMISSION_TIMEOUT", &cfg.Browser.AdmissionTimeout)

	r.str("DEEPGRAM_API_KEY", &cfg.Deepgram.APIKey)
	r.str("DEEPGRAM_URL", &cfg.Deepgram.URL)
	r.str("DEEPGRAM_MODEL", &cfg.Deepgram.Model)
	r.str("DEEPGRAM_LANGUAGE", &cfg.Deepgram.Language)
	r.integer("AUDIO_SAMPLE_RATE", &cfg.Deepgram.SampleRate)
	r.integer("AUDIO_QUEUE_SIZE", &cfg.Deepgram.AudioQueueSize)

	r.str("GROQ_API_KEY", &cfg.LLM.APIKey)
	r.str("LLM_API_KEY", &cfg.LLM.APIKey)
	r.str("LLM_BASE_URL", &cfg.LLM.BaseURL)
	r.str("LLM_MODEL", &cfg.LLM.Model)
	r.duration("LLM_REQUEST_TIMEOUT", &cfg.LLM.RequestTimeout)
	r.float("LLM_SUGGESTION_TEMPERATURE", &cfg.LLM.SuggestionTemperature)
	r.float("LLM_SUMMARY_TEMPERATURE", &cfg.LLM.SummaryTemperature)

	r.duration("COPILOT_DEBOUNCE", &cfg.Copilot.Debounce)
	r.integer("COPILOT_CARRY_OVER", &cfg.Copilot.CarryOver)
	r.integer("COPILOT_SUMMARY_MAX_CHARS", &cfg.Copilot.SummaryMaxChars)
	r.duration("COPILOT_SHUTDOWN_GRACE", &cfg.Copilot.ShutdownGrace)

	r.str("REDIS_ADDR", &cfg.Redis.Addr)
	r.str("REDIS_PASSWORD", &cfg.Redis.Password)
	r.integer("REDIS_DB", &cfg.Redis.DB)
	r.str("REDIS_CHANNEL_PREFIX", &cfg.Redis.ChannelPrefix)

	r.str("INTERVIEW_SERVICE_URL", &cfg.Records.BaseURL)
	r.duration("INTERVIEW_SERVICE_TIMEOUT", &cfg.Records.Timeout)

	return errors.Join(r.errs...)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	atLeast := func(name string, n, floor int) {
		if n < floor {
			errs = append(errs, fmt.Errorf("%s must be at least %d", name, floor))
		}
	}

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.Records.BaseURL == "" {
		errs = append(errs, errors.New("records.base_url is required"))
	}
	if len(c.Browser.JoinButtonTexts) == 0 {
		errs = append(errs, errors.New("browser.join_button_texts must not be empty"))
	}

	positive("failed_retention", c.FailedRetention)
	positive("browser.name_input_timeout", c.Browser.NameInputTimeout)
	positive("browser.admission_timeout", c.Browser.AdmissionTimeout)
	positive("browser.exit_poll_interval", c.Browser.ExitPollInterval)
	positive("deepgram.keep_alive_interval", c.Deepgram.KeepAliveInterval)
	positive("llm.request_timeout", c.LLM.RequestTimeout)
	positive("copilot.debounce", c.Copilot.Debounce)
	positive("copilot.shutdown_grace", c.Copilot.ShutdownGrace)
	positive("records.timeout", c.Records.Timeout)

	atLeast("deepgram.sample_rate", c.Deepgram.SampleRate, 1)
	atLeast("deepgram.channels", c.Deepgram.Channels, 1)
	atLeast("deepgram.audio_queue_size", c.Deepgram.AudioQueueSize, 1)
	atLeast("llm.suggestion_max_tokens", c.LLM.SuggestionMaxTokens, 1)
	atLeast("llm.summary_max_tokens", c.LLM.SummaryMaxTokens, 1)
	atLeast("copilot.carry_over", c.Copilot.CarryOver, 0)
	atLeast("copilot.min_suggestion_length", c.Copilot.MinSuggestionLength, 0)
	atLeast("copilot.summary_max_chars", c.Copilot.SummaryMaxChars, 1)

	return errors.Join(errs...)
}
