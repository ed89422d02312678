package config

import "time"

// RetentionConfig controls session-history retention and cleanup behavior.
type RetentionConfig struct {
	// SessionRetentionDays is how many days to keep session directories
	// before the sweeper removes them. 0 disables sweeping.
	SessionRetentionDays int `yaml:"session_retention_days"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
// Sweeping is off by default; sessions are the system's only durable
// record of a run.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		SessionRetentionDays: 0,
		CleanupInterval:      12 * time.Hour,
	}
}
