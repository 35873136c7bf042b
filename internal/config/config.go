// Package config loads host configuration from JSONC files and environment
// variables.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"
)

// Config is the host's runtime configuration.
type Config struct {
	Port       int    `json:"port"`
	EnableCORS bool   `json:"enableCors"`
	LogLevel   string `json:"logLevel"`
	PrettyLogs bool   `json:"prettyLogs"`

	// DataDir is where invocation transcripts are archived. Empty disables
	// archiving.
	DataDir string `json:"dataDir"`

	// GracePeriodMS bounds how long a cancelled handler may run on.
	GracePeriodMS int `json:"gracePeriodMs"`
	// FlushDelayMS is the outbound batcher's coalescing window.
	FlushDelayMS int `json:"flushDelayMs"`
}

// GracePeriod returns the cancellation grace period as a duration. Zero
// means the coordinator's default.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodMS) * time.Millisecond
}

// FlushDelay returns the batcher flush delay as a duration. Zero means the
// batcher's default.
func (c *Config) FlushDelay() time.Duration {
	return time.Duration(c.FlushDelayMS) * time.Millisecond
}

// Load reads configuration in priority order: defaults, then
// chathost.json/chathost.jsonc in the given directory, then a CHATHOST_CONFIG
// file override, then environment variables.
func Load(directory string) (*Config, error) {
	config := &Config{
		Port:     4096,
		LogLevel: "info",
	}
	if home, err := os.UserHomeDir(); err == nil {
		config.DataDir = filepath.Join(home, ".chathost")
	}

	if directory != "" {
		loadFile(filepath.Join(directory, "chathost.json"), config)
		loadFile(filepath.Join(directory, "chathost.jsonc"), config)
	}

	if path := os.Getenv("CHATHOST_CONFIG"); path != "" {
		loadFile(path, config)
	}

	applyEnvOverrides(config)
	return config, nil
}

// loadFile merges one config file into config. A missing file is skipped.
func loadFile(path string, config *Config) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	data = jsonc.ToJSON(data)
	json.Unmarshal(data, config)
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("CHATHOST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Port = port
		}
	}
	if v := os.Getenv("CHATHOST_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("CHATHOST_PRETTY_LOGS"); v != "" {
		config.PrettyLogs = v == "true" || v == "1"
	}
	if v := os.Getenv("CHATHOST_ENABLE_CORS"); v != "" {
		config.EnableCORS = v == "true" || v == "1"
	}
	if v := os.Getenv("CHATHOST_DATA_DIR"); v != "" {
		config.DataDir = v
	}
	if v := os.Getenv("CHATHOST_GRACE_PERIOD_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			config.GracePeriodMS = ms
		}
	}
	if v := os.Getenv("CHATHOST_FLUSH_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			config.FlushDelayMS = ms
		}
	}
}
