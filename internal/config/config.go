// Package config loads the command line tool's TOML configuration and the
// API key from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/adamwoolhether/httpstream/client"
	"github.com/adamwoolhether/httpstream/client/netlog"
	"github.com/adamwoolhether/httpstream/client/reachability"
	"github.com/adamwoolhether/httpstream/client/throttle"
	"github.com/adamwoolhether/httpstream/client/trust"
)

// APIKeyEnv names the environment variable holding the API key.
const APIKeyEnv = "HTTPSTREAM_API_KEY"

const (
	defaultConfigPath  = "~/.config/httpstream/config.toml"
	defaultEnvPath     = ".env"
	defaultDownloadDir = "~/Downloads"
	defaultUserAgent   = "httpstream/1.0"
	defaultTimeout     = 5 * time.Minute
)

// Config is the tool's resolved configuration.
type Config struct {
	BaseURL       string
	APIKey        string
	DownloadDir   string
	UserAgent     string
	Timeout       time.Duration
	MaxConcurrent int
	Privacy       netlog.Privacy
	// PublicKeyPin enables public key pinning when set.
	PublicKeyPin string
	// ReachabilityAddress is probed in the background when set.
	ReachabilityAddress string
	Throttle            *throttle.Config
}

// Load parses the config at path, falling back to defaults when it is
// missing. The API key is read from envPath, or .env in the working
// directory, without overriding variables already set.
func Load(path, envPath string) (Config, error) {
	cfg := Config{
		DownloadDir: mustExpand(defaultDownloadDir),
		UserAgent:   defaultUserAgent,
		Timeout:     defaultTimeout,
	}

	if err := loadEnv(envPath); err != nil {
		return Config{}, err
	}
	cfg.APIKey = strings.TrimSpace(os.Getenv(APIKeyEnv))

	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && strings.TrimSpace(path) == "" {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		BaseURL             string           `toml:"base_url"`
		DownloadDir         string           `toml:"download_dir"`
		UserAgent           string           `toml:"user_agent"`
		Timeout             string           `toml:"timeout"`
		MaxConcurrent       int              `toml:"max_concurrent"`
		Privacy             netlog.Privacy   `toml:"privacy"`
		PublicKeyPin        string           `toml:"public_key_pin"`
		ReachabilityAddress string           `toml:"reachability_address"`
		Throttle            *throttle.Config `toml:"throttle"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg.BaseURL = strings.TrimSpace(raw.BaseURL)
	if dir := strings.TrimSpace(raw.DownloadDir); dir != "" {
		cfg.DownloadDir = mustExpand(dir)
	}
	if ua := strings.TrimSpace(raw.UserAgent); ua != "" {
		cfg.UserAgent = ua
	}
	if t := strings.TrimSpace(raw.Timeout); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if raw.MaxConcurrent < 0 {
		return Config{}, fmt.Errorf("max_concurrent must not be negative, got %d", raw.MaxConcurrent)
	}
	cfg.MaxConcurrent = raw.MaxConcurrent
	cfg.Privacy = raw.Privacy
	cfg.PublicKeyPin = strings.TrimSpace(raw.PublicKeyPin)
	cfg.ReachabilityAddress = strings.TrimSpace(raw.ReachabilityAddress)

	if raw.Throttle != nil {
		if err := raw.Throttle.Validate(); err != nil {
			return Config{}, fmt.Errorf("throttle: %w", err)
		}
		cfg.Throttle = raw.Throttle
	}

	return cfg, nil
}

// ClientOptions translates the config into client options. checker may be
// nil.
func (c Config) ClientOptions(logger *slog.Logger, checker reachability.Checker) []client.Option {
	opts := []client.Option{
		client.WithLogger(logger),
		client.WithUserAgent(c.UserAgent),
		client.WithTimeout(c.Timeout),
		client.WithPrivacy(c.Privacy),
		client.WithDownloadDir(c.DownloadDir),
	}

	if c.MaxConcurrent > 0 {
		opts = append(opts, client.WithMaxConcurrentTasks(c.MaxConcurrent))
	}
	if c.Throttle != nil {
		opts = append(opts, client.WithThrottle(c.Throttle.RPS, c.Throttle.Burst))
	}
	if c.PublicKeyPin != "" {
		opts = append(opts, client.WithPinning(trust.PublicKeyPinning{Hash: c.PublicKeyPin}))
	}
	if checker != nil {
		opts = append(opts, client.WithReachability(checker))
	}

	return opts
}

func loadEnv(path string) error {
	if strings.TrimSpace(path) != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file: %w", err)
		}
		return nil
	}

	if err := godotenv.Load(defaultEnvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}

	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
