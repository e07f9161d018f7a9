package bastion

import "time"

// Config holds configuration for the Bastion engine.
type Config struct {
	// MaxHierarchyDepth is the maximum depth for hierarchy traversal.
	// Defaults to 10.
	MaxHierarchyDepth int `json:"max_hierarchy_depth,omitempty"`

	// CacheTTL is the time-to-live for cached check results.
	// Zero means no caching even when a cache is configured.
	CacheTTL time.Duration `json:"cache_ttl,omitempty"`

	// EnableCheckLog enables audit logging of check outcomes.
	// Defaults to true.
	EnableCheckLog *bool `json:"enable_check_log,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	t := true
	return Config{
		MaxHierarchyDepth: 10,
		EnableCheckLog:    &t,
	}
}

func (c Config) checkLogEnabled() bool { return c.EnableCheckLog == nil || *c.EnableCheckLog }
