// Package config provides configuration loading and validation for the
// sharing client.
package config

// Config holds the client configuration.
type Config struct {
	// API configures the remote document-platform endpoint.
	API APIConfig `json:"api"`

	// OutboundHTTP bounds all outbound requests.
	OutboundHTTP OutboundHTTPConfig `json:"outbound_http"`

	// Poll controls long-running-operation polling.
	Poll PollConfig `json:"poll"`

	// Cache configures the offline principal-list cache.
	Cache CacheConfig `json:"cache"`

	// LogLevel is one of: debug, info, warn, error.
	LogLevel string `json:"log_level"`
}

// APIConfig holds remote endpoint settings.
type APIConfig struct {
	// BaseURL is the platform origin, e.g. "https://portal.example.com".
	BaseURL string `json:"base_url"`

	// Token is the bearer token attached to every request. The client
	// never persists it; supplying and storing credentials is the
	// caller's concern.
	Token string `json:"token"`
}

// OutboundHTTPConfig holds settings for outbound HTTP requests.
type OutboundHTTPConfig struct {
	// SSRFMode is one of: strict, off. Strict refuses requests that
	// resolve to loopback, private, or link-local addresses.
	SSRFMode string `json:"ssrf_mode"`

	// TimeoutMS is the overall per-request timeout in milliseconds.
	TimeoutMS int `json:"timeout_ms"`

	// ConnectTimeoutMS is the connection timeout in milliseconds.
	ConnectTimeoutMS int `json:"connect_timeout_ms"`

	// MaxResponseBytes caps response body size.
	MaxResponseBytes int64 `json:"max_response_bytes"`

	// InsecureSkipVerify disables TLS verification (dev-only).
	InsecureSkipVerify bool `json:"insecure_skip_verify"`
}

// PollConfig holds long-operation polling settings.
type PollConfig struct {
	// IntervalMS is the fixed delay between status fetches.
	IntervalMS int `json:"interval_ms"`

	// DeadlineMS bounds a whole poll sequence; past it the operation is
	// reported as timed out rather than polled forever.
	DeadlineMS int `json:"deadline_ms"`
}

// CacheConfig selects and configures a principal-list cache driver.
type CacheConfig struct {
	// Driver is the cache driver name: memory, sqlite.
	Driver string `json:"driver"`

	// Drivers maps driver name to driver-specific settings, decoded by
	// the driver itself.
	Drivers map[string]any `json:"drivers"`
}

// DefaultConfig returns a Config with defaults suitable for talking to
// a local development portal.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8092",
		},
		OutboundHTTP: OutboundHTTPConfig{
			SSRFMode:         "off", // off for local dev
			TimeoutMS:        10000,
			ConnectTimeoutMS: 2000,
			MaxResponseBytes: 1048576,
		},
		Poll: PollConfig{
			IntervalMS: 1000,
			DeadlineMS: 300000,
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		LogLevel: "info",
	}
}
