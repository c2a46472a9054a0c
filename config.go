package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	koanfjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Default configuration values.
const (
	appName        = "aocstat"
	defaultBaseURL = "https://adventofcode.com"
	defaultUA      = "github.com/aocstat/aocstat (cli; contact via repository issues)"
	defaultTTL     = 900
	configFileName = "config.json"
)

// appConfig holds the persisted configuration.
type appConfig struct {
	TTL            int    `json:"ttl"`
	LeaderboardIDs []int  `json:"leaderboard_ids"`
	BaseURL        string `json:"base_url"`
	UserAgent      string `json:"user_agent"`
}

// envConfig holds environment overrides.
type envConfig struct {
	ConfigDir string `env:"AOCSTAT_CONFIG_DIR"`
	DataDir   string `env:"AOCSTAT_DATA_DIR"`
	Session   string `env:"AOCSTAT_SESSION"`
	BaseURL   string `env:"AOCSTAT_BASE_URL"`
	Debug     bool   `env:"AOCSTAT_DEBUG" envDefault:"false"`
}

// configKeys lists the keys understood by the config subcommands, in display order.
var configKeys = []string{"ttl", "leaderboard_ids", "base_url", "user_agent"}

func defaultConfig() appConfig {
	return appConfig{
		TTL:       defaultTTL,
		BaseURL:   defaultBaseURL,
		UserAgent: defaultUA,
	}
}

func loadEnv() (envConfig, error) {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return envConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return ec, nil
}

// resolveDirs returns the config and data directories, honouring overrides.
func resolveDirs(ec envConfig) (configDir, dataDir string, err error) {
	configDir = ec.ConfigDir
	if configDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return "", "", fmt.Errorf("locate config dir: %w", err)
		}
		configDir = filepath.Join(base, appName)
	}
	dataDir = ec.DataDir
	if dataDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return "", "", fmt.Errorf("locate cache dir: %w", err)
		}
		dataDir = filepath.Join(base, appName)
	}
	return configDir, dataDir, nil
}

// loadConfig loads configuration from the specified path. A missing file yields defaults.
func loadConfig(path string) (appConfig, error) {
	cfg := defaultConfig()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return appConfig{}, fmt.Errorf("stat config: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), koanfjson.Parser()); err != nil {
		return appConfig{}, fmt.Errorf("load config: %w", err)
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return appConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUA
	}
	if cfg.TTL < 0 {
		return appConfig{}, fmt.Errorf("ttl must be >= 0, got %d", cfg.TTL)
	}
	return cfg, nil
}

// saveConfig writes configuration to the specified path.
func saveConfig(path string, cfg appConfig) error {
	b, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	b = append(b, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	return writeFileAtomic(path, b, 0o644)
}

// writeFileAtomic replaces path with data via a temp file and rename, so readers
// see either the old or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace file: %w", err)
	}
	return nil
}

// defaultLeaderboardID returns the last configured board id, or 0 when none are set.
func (c appConfig) defaultLeaderboardID() int {
	if len(c.LeaderboardIDs) == 0 {
		return 0
	}
	return c.LeaderboardIDs[len(c.LeaderboardIDs)-1]
}

func (c appConfig) get(key string) (string, error) {
	switch key {
	case "ttl":
		return strconv.Itoa(c.TTL), nil
	case "leaderboard_ids":
		ids := make([]string, len(c.LeaderboardIDs))
		for i, id := range c.LeaderboardIDs {
			ids[i] = strconv.Itoa(id)
		}
		return strings.Join(ids, ","), nil
	case "base_url":
		return c.BaseURL, nil
	case "user_agent":
		return c.UserAgent, nil
	default:
		return "", fmt.Errorf("unknown config key %q (want one of %s)", key, strings.Join(configKeys, ", "))
	}
}

func (c *appConfig) set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "ttl":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("ttl must be a non-negative integer number of seconds")
		}
		c.TTL = n
	case "leaderboard_ids":
		var ids []int
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil || n <= 0 {
				return fmt.Errorf("leaderboard_ids must be a comma separated list of positive integers")
			}
			ids = append(ids, n)
		}
		c.LeaderboardIDs = ids
	case "base_url":
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("base_url must be an http(s) url")
		}
		c.BaseURL = strings.TrimRight(value, "/")
	case "user_agent":
		if value == "" {
			return fmt.Errorf("user_agent must not be empty")
		}
		c.UserAgent = value
	default:
		return fmt.Errorf("unknown config key %q (want one of %s)", key, strings.Join(configKeys, ", "))
	}
	return nil
}

func (c *appConfig) reset(key string) error {
	d := defaultConfig()
	switch key {
	case "ttl":
		c.TTL = d.TTL
	case "leaderboard_ids":
		c.LeaderboardIDs = d.LeaderboardIDs
	case "base_url":
		c.BaseURL = d.BaseURL
	case "user_agent":
		c.UserAgent = d.UserAgent
	default:
		return fmt.Errorf("unknown config key %q (want one of %s)", key, strings.Join(configKeys, ", "))
	}
	return nil
}
