package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TG_TOKEN", "123:abc")
	t.Setenv("GEMINI_API_KEY", "test-key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "ellie.db", cfg.DatabaseURL)
	assert.Equal(t, "8443", cfg.HTTPPort)
	assert.Equal(t, 5, cfg.InitialCredits)
	assert.Equal(t, 50, cfg.MaxHistoryTurns)
	assert.Equal(t, 60*time.Second, cfg.GenerationTimeout)
}

func TestLoad_MissingTelegramToken(t *testing.T) {
	t.Setenv("TG_TOKEN", "")
	t.Setenv("GEMINI_API_KEY", "test-key")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TG_TOKEN")
}

func TestLoad_MissingGeminiKey(t *testing.T) {
	t.Setenv("TG_TOKEN", "123:abc")
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("INITIAL_CREDITS", "10")
	t.Setenv("MAX_HISTORY_TURNS", "5")
	t.Setenv("GENERATION_TIMEOUT", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.InitialCredits)
	assert.Equal(t, 5, cfg.MaxHistoryTurns)
	assert.Equal(t, 90*time.Second, cfg.GenerationTimeout)
}

func TestLoad_NegativeInitialCredits(t *testing.T) {
	setRequired(t)
	t.Setenv("INITIAL_CREDITS", "-1")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_BadOverridesFallBackToDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("INITIAL_CREDITS", "lots")
	t.Setenv("GENERATION_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.InitialCredits)
	assert.Equal(t, 60*time.Second, cfg.GenerationTimeout)
}
