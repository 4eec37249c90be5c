package config

import "time"

// Built-in defaults. Every value can be overridden through the environment
// (SCHOOLPULSE_*), a .env file or a config file; see Load.

const (
	DefaultMaxConcurrentRequests = 10
	DefaultMaxOpenWorkbooks      = 2

	// Requests whose matching fact rows exceed this fail with LIMIT_EXCEEDED.
	DefaultMaxFactRows = 500_000

	DefaultPageSize    = 50
	DefaultMaxPageSize = 500

	// Result cache capacity in entries; 0 disables caching.
	DefaultCacheEntries = 10
)

const (
	DefaultOperationTimeout      = 30 * time.Second
	DefaultAcquireRequestTimeout = 2 * time.Second

	DefaultWorkbookIdleTTL       = 5 * time.Minute
	DefaultWorkbookCleanupPeriod = time.Minute

	DefaultCityRefresh = 10 * time.Minute
	DefaultSlowQuery   = 500 * time.Millisecond
)

const (
	DefaultSourceKind  = "memory"
	DefaultCitySource  = "none"
	DefaultMetricsAddr = ""
	DefaultEnv         = "development"
	DefaultLLMModel    = "gpt-4o"
)
