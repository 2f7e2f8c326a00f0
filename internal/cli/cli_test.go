package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting-copilot/internal/buildinfo"
	"meeting-copilot/internal/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "meeting-copilot dev (unknown, unknown)\n", out)

	out, err = run(t, "version", "--json")
	require.NoError(t, err)
	var info buildinfo.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, buildinfo.ServiceName, info.ServiceName)
}

func TestServeRejectsBadConfig(t *testing.T) {
	_, err := run(t, "serve", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config file")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("copilot:\n  debounce: -1s\n"), 0o600))
	_, err = run(t, "serve", "--config", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validating config")
}

func TestSettingsFrom(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Copilot.Debounce = 5 * time.Second
	cfg.LLM.SummaryMaxTokens = 900

	s := settingsFrom(cfg)
	assert.Equal(t, cfg.BotDisplayName, s.DefaultDisplayName)
	assert.Equal(t, 5*time.Second, s.Engine.Debounce)
	assert.Equal(t, cfg.LLM.SuggestionTemperature, s.Engine.Temperature)
	assert.Equal(t, 900, s.Summary.MaxTokens)
	assert.Empty(t, s.Engine.BotID)

	r := rodConfigFrom(cfg)
	assert.Equal(t, cfg.Deepgram.SampleRate, r.SampleRate)
	assert.Equal(t, cfg.Browser.JoinButtonTexts, r.JoinButtonTexts)
}
