package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but the file is missing or invalid, loading fails.
	ConfigPath string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
// Nil pointers mean "flag not set".
type FlagOverrides struct {
	BaseURL     *string
	Token       *string
	SSRFMode    *string
	CacheDriver *string
	LogLevel    *string
}

// fileConfig mirrors Config with pointer sections to detect presence.
type fileConfig struct {
	API          *apiFileConfig          `toml:"api"`
	OutboundHTTP *outboundHTTPFileConfig `toml:"outbound_http"`
	Poll         *pollFileConfig         `toml:"poll"`
	Cache        *cacheFileConfig        `toml:"cache"`
	LogLevel     string                  `toml:"log_level"`
}

type apiFileConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

type outboundHTTPFileConfig struct {
	SSRFMode           string `toml:"ssrf_mode"`
	TimeoutMS          int    `toml:"timeout_ms"`
	ConnectTimeoutMS   int    `toml:"connect_timeout_ms"`
	MaxResponseBytes   int64  `toml:"max_response_bytes"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type pollFileConfig struct {
	IntervalMS int `toml:"interval_ms"`
	DeadlineMS int `toml:"deadline_ms"`
}

type cacheFileConfig struct {
	Driver  string         `toml:"driver"`
	Drivers map[string]any `toml:"drivers"`
}

// Load loads configuration with the following precedence:
//  1. Start from DefaultConfig.
//  2. Overlay TOML config file values.
//  3. Overlay CLI flags.
//  4. Validate.
//
// If ConfigPath is provided but the file is missing, unreadable, or
// invalid TOML, Load returns an error (fail fast). Unknown TOML keys
// produce a warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := DefaultConfig()

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		var fc fileConfig
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
		overlayFileConfig(cfg, &fc)
	}

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.API != nil {
		if fc.API.BaseURL != "" {
			cfg.API.BaseURL = fc.API.BaseURL
		}
		if fc.API.Token != "" {
			cfg.API.Token = fc.API.Token
		}
	}
	if fc.OutboundHTTP != nil {
		o := fc.OutboundHTTP
		if o.SSRFMode != "" {
			cfg.OutboundHTTP.SSRFMode = o.SSRFMode
		}
		if o.TimeoutMS > 0 {
			cfg.OutboundHTTP.TimeoutMS = o.TimeoutMS
		}
		if o.ConnectTimeoutMS > 0 {
			cfg.OutboundHTTP.ConnectTimeoutMS = o.ConnectTimeoutMS
		}
		if o.MaxResponseBytes > 0 {
			cfg.OutboundHTTP.MaxResponseBytes = o.MaxResponseBytes
		}
		cfg.OutboundHTTP.InsecureSkipVerify = o.InsecureSkipVerify
	}
	if fc.Poll != nil {
		if fc.Poll.IntervalMS > 0 {
			cfg.Poll.IntervalMS = fc.Poll.IntervalMS
		}
		if fc.Poll.DeadlineMS > 0 {
			cfg.Poll.DeadlineMS = fc.Poll.DeadlineMS
		}
	}
	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if fc.Cache.Drivers != nil {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
}

func overlayFlags(cfg *Config, f FlagOverrides) {
	if f.BaseURL != nil && *f.BaseURL != "" {
		cfg.API.BaseURL = *f.BaseURL
	}
	if f.Token != nil && *f.Token != "" {
		cfg.API.Token = *f.Token
	}
	if f.SSRFMode != nil && *f.SSRFMode != "" {
		cfg.OutboundHTTP.SSRFMode = *f.SSRFMode
	}
	if f.CacheDriver != nil && *f.CacheDriver != "" {
		cfg.Cache.Driver = *f.CacheDriver
	}
	if f.LogLevel != nil && *f.LogLevel != "" {
		cfg.LogLevel = *f.LogLevel
	}
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api.base_url %q: must be an absolute http(s) URL", cfg.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api.base_url scheme %q: must be http or https", u.Scheme)
	}

	switch strings.ToLower(cfg.OutboundHTTP.SSRFMode) {
	case "strict", "off":
	default:
		return fmt.Errorf("invalid outbound_http.ssrf_mode %q: must be strict or off", cfg.OutboundHTTP.SSRFMode)
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q: must be one of debug, info, warn, error", cfg.LogLevel)
	}

	if cfg.Poll.IntervalMS <= 0 {
		return fmt.Errorf("invalid poll.interval_ms %d: must be positive", cfg.Poll.IntervalMS)
	}
	if cfg.Poll.DeadlineMS <= 0 {
		return fmt.Errorf("invalid poll.deadline_ms %d: must be positive", cfg.Poll.DeadlineMS)
	}
	if cfg.Poll.DeadlineMS < cfg.Poll.IntervalMS {
		return fmt.Errorf("poll.deadline_ms (%d) must not be below poll.interval_ms (%d)", cfg.Poll.DeadlineMS, cfg.Poll.IntervalMS)
	}
	return nil
}
