package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":3013", cfg.HTTPAddr)
	assert.Equal(t, "SmartCareerAI Copilot", cfg.BotDisplayName)
	assert.Equal(t, 8*time.Second, cfg.Copilot.Debounce)
	assert.Equal(t, 2, cfg.Copilot.CarryOver)
	assert.Equal(t, 4000, cfg.Copilot.SummaryMaxChars)
	assert.Equal(t, 15*time.Second, cfg.Browser.NameInputTimeout)
	assert.Equal(t, 60*time.Second, cfg.Browser.AdmissionTimeout)
	assert.Equal(t, "nova-2", cfg.Deepgram.Model)
	assert.Equal(t, "llama-3.1-8b-instant", cfg.LLM.Model)
	assert.Equal(t, 150, cfg.LLM.SuggestionMaxTokens)
	assert.Equal(t, 500, cfg.LLM.SummaryMaxTokens)
	assert.Equal(t, "copilot:session:", cfg.Redis.ChannelPrefix)
	assert.Equal(t, "http://localhost:3007", cfg.Records.BaseURL)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copilot.yaml")
	yml := `
http_addr: ":9000"
copilot:
  debounce: 3s
  carry_over: 4
browser:
  join_button_texts: ["Join"]
redis:
  db: 2
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, 3*time.Second, cfg.Copilot.Debounce)
	assert.Equal(t, 4, cfg.Copilot.CarryOver)
	assert.Equal(t, []string{"Join"}, cfg.Browser.JoinButtonTexts)
	assert.Equal(t, 2, cfg.Redis.DB)
	// untouched keys keep their defaults
	assert.Equal(t, 4000, cfg.Copilot.SummaryMaxChars)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("copilot:\n  debounce: 3s\n"), 0o600))

	t.Setenv("PORT", "4000")
	t.Setenv("COPILOT_DEBOUNCE", "500ms")
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("INTERVIEW_SERVICE_URL", "http://records.test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.HTTPAddr)
	assert.Equal(t, 500*time.Millisecond, cfg.Copilot.Debounce)
	assert.Equal(t, "gsk-test", cfg.LLM.APIKey)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.Equal(t, "http://records.test", cfg.Records.BaseURL)
}

func TestDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte("DEEPGRAM_MODEL=nova-3\nREDIS_ADDR=redis.test:6379\n"), 0o600))

	t.Setenv("REDIS_ADDR", "from-env:6379")
	t.Cleanup(func() { os.Unsetenv("DEEPGRAM_MODEL") })

	cfg, err := Load("", env, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)

	assert.Equal(t, "nova-3", cfg.Deepgram.Model)
	assert.Equal(t, "from-env:6379", cfg.Redis.Addr)
}

func TestInvalidEnvValue(t *testing.T) {
	t.Setenv("COPILOT_DEBOUNCE", "soon")
	t.Setenv("REDIS_DB", "zero")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPILOT_DEBOUNCE")
	assert.Contains(t, err.Error(), "REDIS_DB")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero debounce", func(c *Config) { c.Copilot.Debounce = 0 }, "copilot.debounce"},
		{"negative carry over", func(c *Config) { c.Copilot.CarryOver = -1 }, "copilot.carry_over"},
		{"empty queue", func(c *Config) { c.Deepgram.AudioQueueSize = 0 }, "deepgram.audio_queue_size"},
		{"no join texts", func(c *Config) { c.Browser.JoinButtonTexts = nil }, "join_button_texts"},
		{"no records url", func(c *Config) { c.Records.BaseURL = "" }, "records.base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
