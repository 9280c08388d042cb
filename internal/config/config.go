package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"readingsurvey/internal/model"
)

// Config holds everything the survey client needs at startup
type Config struct {
	Allocation AllocationConfig     `yaml:"allocation"`
	Texts      TextsConfig          `yaml:"texts"`
	HTTP       HTTPConfig           `yaml:"http"`
	Store      StoreConfig          `yaml:"store"`
	Auth       AuthConfig           `yaml:"auth"`
	Log        LogConfig            `yaml:"log"`
	Survey     model.SurveySettings `yaml:"survey"`
}

// AllocationConfig points at the remote allocation/submission endpoint
type AllocationConfig struct {
	URL       string `yaml:"url"`
	SubmitURL string `yaml:"submit_url"` // defaults to URL
}

// TextsConfig locates texts.json
type TextsConfig struct {
	URL     string `yaml:"url"`
	Version string `yaml:"version"` // appended as ?v= to bust stale caches
}

type HTTPConfig struct {
	Port    string `yaml:"port"`
	Timeout string `yaml:"timeout"` // transport timeout; there is no retry policy
}

// StoreConfig selects the session store backend
type StoreConfig struct {
	Backend   string `yaml:"backend"` // memory, redis, mongo
	RedisAddr string `yaml:"redis_addr"`
	MongoURI  string `yaml:"mongo_uri"`
	MongoDB   string `yaml:"mongo_db"`
	TTL       string `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TabTTL    string `yaml:"tab_ttl"`
}

type LogConfig struct {
	Mode string `yaml:"mode"`
	Salt string `yaml:"salt"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

// DefaultConfig returns the defaults of the current deployment
func DefaultConfig() *Config {
	return &Config{
		Texts: TextsConfig{
			URL:     "./texts.json",
			Version: "2025-12-21-13",
		},
		HTTP: HTTPConfig{
			Port:    "8080",
			Timeout: "30s",
		},
		Store: StoreConfig{
			Backend:   BackendMemory,
			RedisAddr: "localhost:6379",
			MongoURI:  "mongodb://localhost:27017",
			MongoDB:   "readingsurvey",
			TTL:       "24h",
		},
		Auth: AuthConfig{
			JWTSecret: "change-me-in-production",
			TabTTL:    "24h",
		},
		Log: LogConfig{
			Mode: "dev",
		},
		Survey: model.DefaultSurveySettings(),
	}
}

// Load reads defaults, then the YAML file at path (if any), then the
// environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Allocation.URL = getEnvOrDefault("SURVEY_ALLOCATION_URL", c.Allocation.URL)
	c.Allocation.SubmitURL = getEnvOrDefault("SURVEY_SUBMIT_URL", c.Allocation.SubmitURL)
	c.Texts.URL = getEnvOrDefault("SURVEY_TEXTS_URL", c.Texts.URL)
	c.Texts.Version = getEnvOrDefault("SURVEY_TEXTS_VERSION", c.Texts.Version)
	c.HTTP.Port = getEnvOrDefault("PORT", c.HTTP.Port)
	c.HTTP.Timeout = getEnvOrDefault("SURVEY_HTTP_TIMEOUT", c.HTTP.Timeout)
	c.Store.Backend = getEnvOrDefault("SURVEY_STORE", c.Store.Backend)
	c.Store.MongoURI = getEnvOrDefault("MONGO_URI", c.Store.MongoURI)
	c.Auth.JWTSecret = getEnvOrDefault("JWT_SECRET", c.Auth.JWTSecret)
	c.Log.Mode = getEnvOrDefault("LOG_MODE", c.Log.Mode)
	c.Log.Salt = getEnvOrDefault("LOG_HASH_SALT", c.Log.Salt)

	redisAddr := getEnvOrDefault("REDIS_URI", c.Store.RedisAddr)
	c.Store.RedisAddr = strings.TrimPrefix(redisAddr, "redis://")

	if v := os.Getenv("SURVEY_TARGET_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Survey.TargetCount = n
		}
	}
	if v := os.Getenv("SURVEY_GATE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Survey.GateThreshold = n
		}
	}
	if v := os.Getenv("SURVEY_GATE_FIELD"); v != "" {
		c.Survey.GateField = model.RatingField(v)
	}
}

// Validate rejects settings the state machine cannot run with
func (c *Config) Validate() error {
	s := c.Survey
	if s.TargetCount < 1 {
		return fmt.Errorf("survey.target_count must be at least 1, got %d", s.TargetCount)
	}
	if s.MinCodeLength < 1 {
		return fmt.Errorf("survey.min_code_length must be at least 1, got %d", s.MinCodeLength)
	}
	if s.GateThreshold < 1 {
		return fmt.Errorf("survey.gate_threshold must be at least 1, got %d", s.GateThreshold)
	}
	if s.RatingMax < s.GateThreshold {
		return fmt.Errorf("survey.rating_max must be at least gate_threshold (%d), got %d", s.GateThreshold, s.RatingMax)
	}
	if !s.GateField.Valid() {
		return fmt.Errorf("survey.gate_field: unknown rating %q", s.GateField)
	}
	for _, f := range s.RequiredRatings {
		if !f.Valid() {
			return fmt.Errorf("survey.required_ratings: unknown rating %q", f)
		}
	}
	for _, f := range s.BackgroundFields {
		if !f.Valid() {
			return fmt.Errorf("survey.background_fields: unknown field %q", f)
		}
	}

	switch c.Store.Backend {
	case BackendMemory, BackendRedis, BackendMongo:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}

	for name, d := range map[string]string{
		"http.timeout": c.HTTP.Timeout,
		"store.ttl":    c.Store.TTL,
		"auth.tab_ttl": c.Auth.TabTTL,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// SubmitEndpoint is where questionnaire and skip payloads are posted
func (c *Config) SubmitEndpoint() string {
	if c.Allocation.SubmitURL != "" {
		return c.Allocation.SubmitURL
	}
	return c.Allocation.URL
}

// TextsEndpoint returns the texts URL with the cache-bust version appended
func (c *Config) TextsEndpoint() string {
	if c.Texts.Version == "" {
		return c.Texts.URL
	}
	sep := "?"
	if strings.Contains(c.Texts.URL, "?") {
		sep = "&"
	}
	return c.Texts.URL + sep + "v=" + url.QueryEscape(c.Texts.Version)
}

func (c *Config) HTTPTimeout() time.Duration { return mustDuration(c.HTTP.Timeout) }
func (c *Config) StoreTTL() time.Duration { return mustDuration(c.Store.TTL) }
func (c *Config) TabTTL() time.Duration { return mustDuration(c.Auth.TabTTL) }

// mustDuration is only called after Validate
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
