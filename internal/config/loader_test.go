package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docmesh/sharekit/internal/config"
	"github.com/docmesh/sharekit/internal/logutil"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sharekit.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.LoaderOptions{Logger: logutil.Discard()})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8092" {
		t.Errorf("unexpected default base URL: %s", cfg.API.BaseURL)
	}
	if cfg.Poll.IntervalMS != 1000 {
		t.Errorf("unexpected default poll interval: %d", cfg.Poll.IntervalMS)
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("unexpected default cache driver: %s", cfg.Cache.Driver)
	}
}

func TestLoad_FileOverlay(t *testing.T) {
	path := writeConfig(t, `
log_level = "debug"

[api]
base_url = "https://portal.example.com"
token = "secret"

[poll]
interval_ms = 500
deadline_ms = 60000

[cache]
driver = "sqlite"
[cache.drivers.sqlite]
data_dir = "/tmp/sharekit"
`)
	cfg, err := config.Load(config.LoaderOptions{ConfigPath: path, Logger: logutil.Discard()})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.BaseURL != "https://portal.example.com" {
		t.Errorf("base_url not overlaid: %s", cfg.API.BaseURL)
	}
	if cfg.API.Token != "secret" {
		t.Errorf("token not overlaid")
	}
	if cfg.Poll.IntervalMS != 500 || cfg.Poll.DeadlineMS != 60000 {
		t.Errorf("poll not overlaid: %+v", cfg.Poll)
	}
	if cfg.Cache.Driver != "sqlite" {
		t.Errorf("cache driver not overlaid: %s", cfg.Cache.Driver)
	}
	if cfg.Cache.Drivers["sqlite"] == nil {
		t.Error("sqlite driver settings missing")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level not overlaid: %s", cfg.LogLevel)
	}
}

func TestLoad_FlagsWinOverFile(t *testing.T) {
	path := writeConfig(t, `
[api]
base_url = "https://portal.example.com"
`)
	flagURL := "https://other.example.com"
	flagDriver := "sqlite"
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: path,
		FlagOverrides: config.FlagOverrides{
			BaseURL:     &flagURL,
			CacheDriver: &flagDriver,
		},
		Logger: logutil.Discard(),
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.BaseURL != flagURL {
		t.Errorf("flag should override file: %s", cfg.API.BaseURL)
	}
	if cfg.Cache.Driver != flagDriver {
		t.Errorf("flag should override default driver: %s", cfg.Cache.Driver)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := config.Load(config.LoaderOptions{
		ConfigPath: filepath.Join(t.TempDir(), "absent.toml"),
		Logger:     logutil.Discard(),
	})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	path := writeConfig(t, `api = {`)
	if _, err := config.Load(config.LoaderOptions{ConfigPath: path, Logger: logutil.Discard()}); err == nil {
		t.Fatal("expected error for invalid TOML")
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad base url",
			content: "[api]\nbase_url = \"not a url\"",
			wantErr: "base_url",
		},
		{
			name:    "bad scheme",
			content: "[api]\nbase_url = \"ftp://example.com\"",
			wantErr: "scheme",
		},
		{
			name:    "bad ssrf mode",
			content: "[outbound_http]\nssrf_mode = \"paranoid\"",
			wantErr: "ssrf_mode",
		},
		{
			name:    "bad log level",
			content: "log_level = \"verbose\"",
			wantErr: "log_level",
		},
		{
			name:    "deadline below interval",
			content: "[poll]\ninterval_ms = 5000\ndeadline_ms = 1000",
			wantErr: "deadline_ms",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := writeConfig(t, c.content)
			_, err := config.Load(config.LoaderOptions{ConfigPath: path, Logger: logutil.Discard()})
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), c.wantErr) {
				t.Errorf("error %q should mention %q", err, c.wantErr)
			}
		})
	}
}
