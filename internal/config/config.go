package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const configPathEnv = "TRENDFORGE_CONFIG"

// DefaultSources mirrors the feed routes worth curating.
var DefaultSources = []string{
	"baidu",
	"bilibili",
	"douyin",
	"douban-group",
	"douban-movie",
	"hupu",
	"sina",
	"tieba",
	"toutiao",
	"qq-news",
	"sina-news",
	"netease-news",
	"thepaper",
	"zhihu-daily",
}

type Config struct {
	App struct {
		Port        string
		Debug       bool
		FrontendURL string
		LogLevel    string
		Timezone    string
	}
	DB struct {
		Driver   string
		Host     string
		Port     string
		User     string
		Password string
		DBName   string
		SSLMode  string
	}
	Redis struct {
		Host     string
		Port     string
		Password string
		DB       int
	}
	Feed struct {
		BaseURL        string
		Timeout        time.Duration
		Sources        []string
		Concurrency    int
		RoutesCacheTTL time.Duration
		RunRetention   time.Duration
		MaxRetries     int
		RetryBase      time.Duration
		RetryMax       time.Duration
	}
	LLM struct {
		Endpoint     string
		Model        string
		APIKey       string
		SystemPrompt string
		Templates    map[string]string
	}
	Generation struct {
		CompletionTimeout   time.Duration
		MaxRetries          int
		RetryBase           time.Duration
		RetryMax            time.Duration
		MaxAttempts         int
		ClaimLease          time.Duration
		IntegrityQuarantine time.Duration
	}
	Workers struct {
		IngestEnabled     bool
		GenerationEnabled bool
		IngestInterval    time.Duration
		PollInterval      time.Duration
		StopTimeout       time.Duration
	}
	RateLimit struct {
		RequestsPerSecond int
		Burst             int
	}
	Export struct {
		OutputDir string
	}
}

// fileConfig is the optional YAML overlay.
type fileConfig struct {
	Sources   []string          `yaml:"sources"`
	Templates map[string]string `yaml:"templates"`
	LLM       struct {
		Endpoint     string `yaml:"endpoint"`
		Model        string `yaml:"model"`
		SystemPrompt string `yaml:"systemPrompt"`
	} `yaml:"llm"`
}

func Load() *Config {
	cfg := &Config{}

	// App
	cfg.App.Port = getEnv("PORT", "8080")
	cfg.App.Debug = getEnvAsBool("DEBUG", false)
	cfg.App.FrontendURL = getEnv("FRONTEND_URL", "http://localhost:5173")
	cfg.App.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.App.Timezone = getEnv("TIMEZONE", "Local")

	// DB
	cfg.DB.Driver = getEnv("DB_DRIVER", "postgres")
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.DBName = getEnv("DB_NAME", "trendforge")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	// Redis
	cfg.Redis.Host = getEnv("REDIS_HOST", "localhost")
	cfg.Redis.Port = getEnv("REDIS_PORT", "6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)

	// Feed provider
	cfg.Feed.BaseURL = strings.TrimRight(getEnv("FEED_BASE_URL", "http://localhost:6688"), "/")
	cfg.Feed.Timeout = getEnvAsDuration("FEED_TIMEOUT", 15*time.Second)
	cfg.Feed.Sources = getEnvAsList("INGEST_SOURCES", DefaultSources)
	cfg.Feed.Concurrency = getEnvAsInt("INGEST_CONCURRENCY", 8)
	cfg.Feed.RoutesCacheTTL = getEnvAsDuration("ROUTES_CACHE_TTL", 30*time.Minute)
	cfg.Feed.RunRetention = getEnvAsDuration("INGEST_RUN_RETENTION", 30*24*time.Hour)
	cfg.Feed.MaxRetries = getEnvAsInt("FEED_MAX_RETRIES", 2)
	cfg.Feed.RetryBase = getEnvAsDuration("FEED_RETRY_BASE", 500*time.Millisecond)
	cfg.Feed.RetryMax = getEnvAsDuration("FEED_RETRY_MAX", 5*time.Second)

	// Completion service
	cfg.LLM.Endpoint = getEnv("LLM_ENDPOINT", "https://open.bigmodel.cn/api/paas/v4/chat/completions")
	cfg.LLM.Model = getEnv("LLM_MODEL", "glm-4.5-flash")
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", "")
	cfg.LLM.SystemPrompt = getEnv("LLM_SYSTEM_PROMPT", "")

	// Generation
	cfg.Generation.CompletionTimeout = getEnvAsDuration("COMPLETION_TIMEOUT", 90*time.Second)
	cfg.Generation.MaxRetries = getEnvAsInt("COMPLETION_MAX_RETRIES", 3)
	cfg.Generation.RetryBase = getEnvAsDuration("COMPLETION_RETRY_BASE", 2*time.Second)
	cfg.Generation.RetryMax = getEnvAsDuration("COMPLETION_RETRY_MAX", 30*time.Second)
	cfg.Generation.MaxAttempts = getEnvAsInt("GENERATION_MAX_ATTEMPTS", 5)
	cfg.Generation.ClaimLease = getEnvAsDuration("CLAIM_LEASE", 30*time.Minute)
	cfg.Generation.IntegrityQuarantine = getEnvAsDuration("INTEGRITY_QUARANTINE", 10*time.Minute)

	// Workers
	cfg.Workers.IngestEnabled = getEnvAsBool("INGEST_ENABLED", true)
	cfg.Workers.GenerationEnabled = getEnvAsBool("GENERATION_ENABLED", true)
	cfg.Workers.IngestInterval = getEnvAsDuration("INGEST_INTERVAL", time.Hour)
	cfg.Workers.PollInterval = getEnvAsDuration("WORKER_POLL_INTERVAL", 10*time.Second)
	cfg.Workers.StopTimeout = getEnvAsDuration("WORKER_STOP_TIMEOUT", 30*time.Second)

	// Rate Limit
	cfg.RateLimit.RequestsPerSecond = getEnvAsInt("RATE_LIMIT_RPS", 10)
	cfg.RateLimit.Burst = getEnvAsInt("RATE_LIMIT_BURST", 20)

	cfg.Export.OutputDir = getEnv("EXPORT_OUTPUT_DIR", "./data/export")

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.applyFile(path); err != nil {
			log.Printf("config: cannot use %s: %v (keeping environment values)", path, err)
		}
	}

	return cfg
}

// Location resolves App.Timezone, falling back to the process zone.
func (c *Config) Location() *time.Location {
	if c.App.Timezone == "" || c.App.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		log.Printf("config: unknown timezone %s, using Local", c.App.Timezone)
		return time.Local
	}
	return loc
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return err
	}

	if len(fc.Sources) > 0 {
		c.Feed.Sources = fc.Sources
	}
	if len(fc.Templates) > 0 {
		c.LLM.Templates = fc.Templates
	}
	if fc.LLM.Endpoint != "" {
		c.LLM.Endpoint = fc.LLM.Endpoint
	}
	if fc.LLM.Model != "" {
		c.LLM.Model = fc.LLM.Model
	}
	if fc.LLM.SystemPrompt != "" {
		c.LLM.SystemPrompt = fc.LLM.SystemPrompt
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
