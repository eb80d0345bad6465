// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq background worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// ScoringConfig provides tunables for the lead scoring model. The decay
// denominators and caps are deliberately configuration rather than constants;
// the defaults are heuristics, not business requirements.
type ScoringConfig interface {
	GetCreatedDecayDenominatorDays() float64
	GetCreatedDecayCap() float64
	GetContactDecayDenominatorDays() float64
	GetContactDecayCap() float64
	GetBreakdownReportLimit() int
}

// PolicyConfig provides settings for the channel policy engine.
type PolicyConfig interface {
	GetBusinessHoursStart() int // hour of day, inclusive
	GetBusinessHoursEnd() int   // hour of day, exclusive
}

// BulkConfig provides settings for bulk fan-out operations.
type BulkConfig interface {
	GetBulkConcurrency() int
}
