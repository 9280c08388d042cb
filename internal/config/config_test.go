package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"readingsurvey/internal/model"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Survey.TargetCount)
	assert.Equal(t, model.RatingIntentStrength, cfg.Survey.GateField)
	assert.Equal(t, 2, cfg.Survey.GateThreshold)
	assert.Equal(t, 7, cfg.Survey.RatingMax)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.yaml")
	data := `
allocation:
  url: https://example.test/exec
texts:
  url: https://example.test/texts.json
  version: "7"
store:
  backend: redis
survey:
  target_count: 1
  min_code_length: 4
  required_affirmations: [age]
  background_fields: [gender, age, education, social_media_time]
  required_ratings: [understanding, credibility, willingness_to_share, intent_strength]
  gate_field: intent_strength
  gate_threshold: 5
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/exec", cfg.Allocation.URL)
	assert.Equal(t, "https://example.test/exec", cfg.SubmitEndpoint())
	assert.Equal(t, "https://example.test/texts.json?v=7", cfg.TextsEndpoint())
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, 1, cfg.Survey.TargetCount)
	assert.Equal(t, 5, cfg.Survey.GateThreshold)
	assert.Equal(t, []string{"age"}, cfg.Survey.RequiredAffirmations)
	assert.Len(t, cfg.Survey.BackgroundFields, 4)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unterminated"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("REDIS_URI strips scheme", func(t *testing.T) {
		t.Setenv("REDIS_URI", "redis://cache:6379")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "cache:6379", cfg.Store.RedisAddr)
	})

	t.Run("gate threshold and target count", func(t *testing.T) {
		t.Setenv("SURVEY_GATE_THRESHOLD", "5")
		t.Setenv("SURVEY_TARGET_COUNT", "1")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, 5, cfg.Survey.GateThreshold)
		assert.Equal(t, 1, cfg.Survey.TargetCount)
	})

	t.Run("non-numeric count is ignored", func(t *testing.T) {
		t.Setenv("SURVEY_TARGET_COUNT", "five")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, 5, cfg.Survey.TargetCount)
	})

	t.Run("submit url override", func(t *testing.T) {
		t.Setenv("SURVEY_ALLOCATION_URL", "https://a.test")
		t.Setenv("SURVEY_SUBMIT_URL", "https://b.test")
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		assert.Equal(t, "https://b.test", cfg.SubmitEndpoint())
	})
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"zero target":      func(c *Config) { c.Survey.TargetCount = 0 },
		"zero threshold":   func(c *Config) { c.Survey.GateThreshold = 0 },
		"scale below gate": func(c *Config) { c.Survey.RatingMax = 1 },
		"unknown gate":     func(c *Config) { c.Survey.GateField = "mood" },
		"unknown rating":   func(c *Config) { c.Survey.RequiredRatings = []model.RatingField{"mood"} },
		"unknown field":    func(c *Config) { c.Survey.BackgroundFields = []model.BackgroundField{"height"} },
		"unknown backend":  func(c *Config) { c.Store.Backend = "etcd" },
		"bad timeout":      func(c *Config) { c.HTTP.Timeout = "soon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestTextsEndpointWithExistingQuery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Texts.URL = "https://example.test/texts.json?x=1"
	cfg.Texts.Version = "a b"
	assert.Equal(t, "https://example.test/texts.json?x=1&v=a+b", cfg.TextsEndpoint())
}
