package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadConfig_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
app:
  address: ":9090"
llm:
  provider: ollama
  model: llama3
knowledge:
  topK: 5
  extraStopWords: ["devinci"]
databases:
  driver: memory
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.App.Address)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.Knowledge.TopK)
	assert.Equal(t, []string{"devinci"}, cfg.Knowledge.ExtraStopWords)
	// untouched sections keep their defaults
	assert.Equal(t, 30.0, cfg.Knowledge.HardExpiryDays)
	assert.Equal(t, 6, cfg.Verifier.MaxArticles)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"soft above hard", func(c *AppConfig) { c.Knowledge.SoftExpiryDays = 40 }},
		{"zero topK", func(c *AppConfig) { c.Knowledge.TopK = 0 }},
		{"confidence out of range", func(c *AppConfig) { c.Knowledge.VerifiedConfidence = 1.5 }},
		{"unknown driver", func(c *AppConfig) { c.Databases.Driver = "oracle" }},
		{"bad duration", func(c *AppConfig) { c.Verifier.CrawlInterval = "soon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("0")
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = ParseDuration("500ms")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)

	assert.Equal(t, time.Second, MustDuration("bogus", time.Second))
}

func TestLoadConfig_ShippedSample(t *testing.T) {
	cfg, err := LoadConfig("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Databases.Driver)
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.Empty(t, cfg.Databases.Kafka.Brokers)
	assert.Equal(t, "backend/go/internal/config/seed.yaml", cfg.Knowledge.SeedFile)
}
