package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Env              string
	HTTPAddr         string
	DatabaseURL      string
	CORSAllowAll     bool
	CORSOrigins      []string
	CORSAllowCreds   bool
	RedisURL         string
	RedisTLSNoVerif  bool
	AsynqQueueName   string
	AsynqConcurrency int
	BulkConcurrency  int

	// Scoring decay tunables. Heuristic defaults; see the scoring package.
	CreatedDecayDenominatorDays float64
	CreatedDecayCap             float64
	ContactDecayDenominatorDays float64
	ContactDecayCap             float64
	BreakdownReportLimit        int

	// Channel policy business-hours window, hours of day in tenant-local time.
	BusinessHoursStart int
	BusinessHoursEnd   int

	// Optional YAML file with journey definitions seeded at startup.
	JourneySeedPath string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:              getEnv("APP_ENV", "development"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		CORSAllowAll:     corsAllowAll,
		CORSOrigins:      corsOrigins,
		CORSAllowCreds:   strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSNoVerif:  strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: getEnvInt("ASYNQ_CONCURRENCY", 10),
		BulkConcurrency:  getEnvInt("BULK_CONCURRENCY", 8),

		CreatedDecayDenominatorDays: getEnvFloat("SCORE_CREATED_DECAY_DENOMINATOR_DAYS", 30),
		CreatedDecayCap:             getEnvFloat("SCORE_CREATED_DECAY_CAP", 2.0),
		ContactDecayDenominatorDays: getEnvFloat("SCORE_CONTACT_DECAY_DENOMINATOR_DAYS", 14),
		ContactDecayCap:             getEnvFloat("SCORE_CONTACT_DECAY_CAP", 3.0),
		BreakdownReportLimit:        getEnvInt("SCORE_BREAKDOWN_REPORT_LIMIT", 10),

		BusinessHoursStart: getEnvInt("BUSINESS_HOURS_START", 9),
		BusinessHoursEnd:   getEnvInt("BUSINESS_HOURS_END", 18),

		JourneySeedPath: getEnv("JOURNEY_SEED_PATH", "seeds/journeys.yaml"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.BusinessHoursStart < 0 || cfg.BusinessHoursEnd > 24 || cfg.BusinessHoursStart >= cfg.BusinessHoursEnd {
		return nil, fmt.Errorf("invalid business hours window %d-%d", cfg.BusinessHoursStart, cfg.BusinessHoursEnd)
	}
	if cfg.CreatedDecayDenominatorDays <= 0 || cfg.ContactDecayDenominatorDays <= 0 {
		return nil, fmt.Errorf("decay denominators must be positive")
	}

	return cfg, nil
}

// Interface implementations for platform/config consumers.

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetHTTPAddr() string        { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool      { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string   { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool    { return c.CORSAllowCreds }
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSNoVerif }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }
func (c *Config) GetBulkConcurrency() int    { return c.BulkConcurrency }
func (c *Config) GetBusinessHoursStart() int { return c.BusinessHoursStart }
func (c *Config) GetBusinessHoursEnd() int   { return c.BusinessHoursEnd }

func (c *Config) GetCreatedDecayDenominatorDays() float64 { return c.CreatedDecayDenominatorDays }
func (c *Config) GetCreatedDecayCap() float64             { return c.CreatedDecayCap }
func (c *Config) GetContactDecayDenominatorDays() float64 { return c.ContactDecayDenominatorDays }
func (c *Config) GetContactDecayCap() float64             { return c.ContactDecayCap }
func (c *Config) GetBreakdownReportLimit() int            { return c.BreakdownReportLimit }

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
