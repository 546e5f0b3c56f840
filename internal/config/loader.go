package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// envPrefix namespaces pipemedic environment variables. GITHUB_TOKEN is
	// additionally honored without the prefix because every CI environment
	// already exports it.
	envPrefix = "PIPEMEDIC_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load reads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (PIPEMEDIC_GITHUB_TOKEN, PIPEMEDIC_AI_PROVIDER, ...)
//  2. YAML config file
//  3. Defaults from Default()
//
// If configPath is empty, ~/.config/pipemedic/config.yaml is used when it
// exists; a missing file is not an error.
//
// Environment variables map to config keys by lowercasing and splitting on
// the first underscore after the prefix:
//
//	PIPEMEDIC_GITHUB_TOKEN      -> github.token
//	PIPEMEDIC_AI_API_KEY        -> ai.api_key
//	PIPEMEDIC_RETRY_MAX_ATTEMPTS -> retry.max_attempts
//
// Load does not validate; callers decide when to call Config.Validate so the
// CLI can report every problem before exiting.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			candidate := filepath.Join(home, ".config", "pipemedic", "config.yaml")
			if _, statErr := os.Stat(candidate); statErr == nil {
				configPath = candidate
			}
		}
	}

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Bare GITHUB_TOKEN as a convenience fallback, lowest env precedence.
	if !k.Exists("github.token") {
		if tok := os.Getenv("GITHUB_TOKEN"); tok != "" {
			_ = k.Set("github.token", tok)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// envTransform maps PIPEMEDIC_SECTION_FIELD_NAME to section.field_name.
// Split on the first underscore only: section names are single words, field
// names keep their underscores (api_key, max_attempts, ...).
func envTransform(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile opens and reads a config file, validating its properties
// through the already-open descriptor to avoid a stat/open race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
