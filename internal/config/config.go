// Package config loads the client configuration from an optional YAML file
// with environment overrides layered on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"coinfall/client/internal/telemetry"
)

const (
	envBaseURL        = "COINFALL_API_URL"
	envToken          = "COINFALL_API_TOKEN"
	envListenAddr     = "COINFALL_LISTEN_ADDR"
	envJournalPath    = "COINFALL_JOURNAL_PATH"
	envCatalogPath    = "COINFALL_CATALOG_PATH"
	envSyncDebounceMS = "COINFALL_SYNC_DEBOUNCE_MS"
	envOfflineAfter   = "COINFALL_OFFLINE_AFTER"
	envLogSinks       = "COINFALL_LOG_SINKS"
)

// API configures the backend client.
type API struct {
	BaseURL   string `yaml:"baseUrl"`
	Token     string `yaml:"token"`
	TimeoutMS int    `yaml:"timeoutMs"`
}

// Sync tunes the flush scheduler.
type Sync struct {
	DebounceMS     int `yaml:"debounceMs"`
	DeltaThreshold int `yaml:"deltaThreshold"`
	TapThreshold   int `yaml:"tapThreshold"`
	PollMS         int `yaml:"pollMs"`
	RetryBaseMS    int `yaml:"retryBaseMs"`
	RetryMaxMS     int `yaml:"retryMaxMs"`
	OfflineAfter   int `yaml:"offlineAfter"`
}

// UI configures the local websocket bridge the web view connects to.
type UI struct {
	ListenAddr string `yaml:"listenAddr"`
	RefreshMS  int    `yaml:"refreshMs"`
}

// Logging selects sinks and the JSON log destination.
type Logging struct {
	Sinks    []string `yaml:"sinks"`
	FilePath string   `yaml:"filePath"`
	Severity string   `yaml:"severity"`
}

// Identity carries the Telegram identity used for the auth handshake.
type Identity struct {
	TelegramID int64  `yaml:"telegramId"`
	FirstName  string `yaml:"firstName"`
	LastName   string `yaml:"lastName"`
	Username   string `yaml:"username"`
	ReferredBy string `yaml:"referredBy"`
}

// Config is the full client configuration.
type Config struct {
	API         API      `yaml:"api"`
	Sync        Sync     `yaml:"sync"`
	UI          UI       `yaml:"ui"`
	Logging     Logging  `yaml:"logging"`
	Identity    Identity `yaml:"identity"`
	JournalPath string   `yaml:"journalPath"`
	CatalogPath string   `yaml:"catalogPath"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		API: API{
			BaseURL:   "http://localhost:8080",
			TimeoutMS: 15000,
		},
		Sync: Sync{
			DebounceMS:     3000,
			DeltaThreshold: 16,
			TapThreshold:   200,
			PollMS:         250,
			RetryBaseMS:    1000,
			RetryMaxMS:     30000,
			OfflineAfter:   3,
		},
		UI: UI{
			ListenAddr: "127.0.0.1:8090",
			RefreshMS:  1000,
		},
		Logging: Logging{
			Sinks:    []string{"console"},
			Severity: "info",
		},
		JournalPath: "coinfall.db",
	}
}

// Load reads path when non-empty, then applies environment overrides.
// Invalid environment values are logged and skipped rather than fatal.
func Load(path string, logger telemetry.Logger) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg, logger)
	if cfg.API.BaseURL == "" {
		return Config{}, fmt.Errorf("api.baseUrl is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config, logger telemetry.Logger) {
	if raw := os.Getenv(envBaseURL); raw != "" {
		cfg.API.BaseURL = raw
	}
	if raw := os.Getenv(envToken); raw != "" {
		cfg.API.Token = raw
	}
	if raw := os.Getenv(envListenAddr); raw != "" {
		cfg.UI.ListenAddr = raw
	}
	if raw := os.Getenv(envJournalPath); raw != "" {
		cfg.JournalPath = raw
	}
	if raw := os.Getenv(envCatalogPath); raw != "" {
		cfg.CatalogPath = raw
	}
	if raw := os.Getenv(envSyncDebounceMS); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value >= 0 {
			cfg.Sync.DebounceMS = value
		} else if logger != nil {
			logger.Printf("invalid %s=%q: %v", envSyncDebounceMS, raw, err)
		}
	}
	if raw := os.Getenv(envOfflineAfter); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			cfg.Sync.OfflineAfter = value
		} else if logger != nil {
			logger.Printf("invalid %s=%q: %v", envOfflineAfter, raw, err)
		}
	}
	if raw := os.Getenv(envLogSinks); raw != "" {
		var sinks []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				sinks = append(sinks, part)
			}
		}
		cfg.Logging.Sinks = sinks
	}
}

// Debounce returns the scheduler debounce as a duration.
func (s Sync) Debounce() time.Duration { return time.Duration(s.DebounceMS) * time.Millisecond }

// Poll returns the scheduler cadence as a duration.
func (s Sync) Poll() time.Duration { return time.Duration(s.PollMS) * time.Millisecond }

// RetryBase returns the first backoff delay.
func (s Sync) RetryBase() time.Duration { return time.Duration(s.RetryBaseMS) * time.Millisecond }

// RetryMax returns the backoff cap.
func (s Sync) RetryMax() time.Duration { return time.Duration(s.RetryMaxMS) * time.Millisecond }

// Timeout returns the HTTP client timeout.
func (a API) Timeout() time.Duration { return time.Duration(a.TimeoutMS) * time.Millisecond }

// Refresh returns the UI push cadence.
func (u UI) Refresh() time.Duration { return time.Duration(u.RefreshMS) * time.Millisecond }
