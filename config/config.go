package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "swipechat"
	// DefaultAPIBaseURL is the REST endpoint used when nothing else is configured.
	DefaultAPIBaseURL = "http://localhost:6500/api"
	// DefaultSocketURL is the event channel endpoint used when nothing else is configured.
	DefaultSocketURL = "ws://localhost:6500/socket"
	// SendTransportSocket dispatches outgoing messages over the event channel.
	SendTransportSocket = "socket"
	// SendTransportREST dispatches outgoing messages with a REST POST.
	SendTransportREST = "rest"
	// DefaultRequestTimeoutSeconds bounds each REST call.
	DefaultRequestTimeoutSeconds = 30
	// DefaultTypingTimeoutSeconds expires a remote typing indicator.
	DefaultTypingTimeoutSeconds = 5
	// DefaultTypingIdleMillis sends stopTyping after local input goes quiet.
	DefaultTypingIdleMillis = 1500
	// DefaultLogLevel is the zap level used when none is configured.
	DefaultLogLevel = "info"
	// configFileName is the persisted configuration file.
	configFileName = "config.json"
	// envFileName is the optional dotenv file read from the data dir and working directory.
	envFileName = ".env"
)

// Environment variable names.
const (
	EnvDataDir       = "SWIPECHAT_DATA_DIR"
	EnvAPIURL        = "SWIPECHAT_API_URL"
	EnvSocketURL     = "SWIPECHAT_SOCKET_URL"
	EnvSendTransport = "SWIPECHAT_SEND_TRANSPORT"
	EnvLogLevel      = "SWIPECHAT_LOG_LEVEL"
	EnvAutoMarkSeen  = "SWIPECHAT_AUTO_MARK_SEEN"
	EnvDiscovery     = "SWIPECHAT_DISCOVERY"
)

// ClientConfig contains persistent client settings.
type ClientConfig struct {
	ClientID              string `json:"client_id"`
	APIBaseURL            string `json:"api_base_url"`
	SocketURL             string `json:"socket_url"`
	SendTransport         string `json:"send_transport"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
	TypingTimeoutSeconds  int    `json:"typing_timeout_seconds"`
	TypingIdleMillis      int    `json:"typing_idle_millis"`
	AutoMarkSeen          bool   `json:"auto_mark_seen"`
	DiscoveryEnabled      bool   `json:"discovery_enabled"`
	LogLevel              string `json:"log_level"`
}

// RequestTimeout returns the REST timeout as a duration.
func (c *ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// TypingTimeout returns the remote typing expiry as a duration.
func (c *ClientConfig) TypingTimeout() time.Duration {
	return time.Duration(c.TypingTimeoutSeconds) * time.Second
}

// TypingIdle returns the local typing idle delay as a duration.
func (c *ClientConfig) TypingIdle() time.Duration {
	return time.Duration(c.TypingIdleMillis) * time.Millisecond
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If SWIPECHAT_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv(EnvDataDir); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory if needed.
func EnsureDataDirectories(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("create directory %q: %w", dataDir, err)
	}
	return nil
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*ClientConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg ClientConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *ClientConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns both.
// Environment overrides (including .env files) are applied to the returned
// value but never written back to disk.
func LoadOrCreate() (*ClientConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig()
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	} else if normalizeDefaults(cfg) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	loadEnvFiles(dataDir)
	applyEnvOverrides(cfg)
	normalizeDefaults(cfg)

	return cfg, cfgPath, nil
}

func defaultConfig() *ClientConfig {
	return &ClientConfig{
		ClientID:              uuid.NewString(),
		APIBaseURL:            DefaultAPIBaseURL,
		SocketURL:             DefaultSocketURL,
		SendTransport:         SendTransportSocket,
		RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
		TypingTimeoutSeconds:  DefaultTypingTimeoutSeconds,
		TypingIdleMillis:      DefaultTypingIdleMillis,
		LogLevel:              DefaultLogLevel,
	}
}

func normalizeDefaults(cfg *ClientConfig) bool {
	updated := false

	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
		updated = true
	}

	if strings.TrimSpace(cfg.APIBaseURL) == "" && !cfg.DiscoveryEnabled {
		cfg.APIBaseURL = DefaultAPIBaseURL
		updated = true
	}
	if trimmed := strings.TrimRight(cfg.APIBaseURL, "/"); trimmed != cfg.APIBaseURL {
		cfg.APIBaseURL = trimmed
		updated = true
	}

	if strings.TrimSpace(cfg.SocketURL) == "" && !cfg.DiscoveryEnabled {
		cfg.SocketURL = DefaultSocketURL
		updated = true
	}

	transport := normalizeSendTransport(cfg.SendTransport)
	if cfg.SendTransport != transport {
		cfg.SendTransport = transport
		updated = true
	}

	if cfg.RequestTimeoutSeconds <= 0 {
		cfg.RequestTimeoutSeconds = DefaultRequestTimeoutSeconds
		updated = true
	}
	if cfg.TypingTimeoutSeconds <= 0 {
		cfg.TypingTimeoutSeconds = DefaultTypingTimeoutSeconds
		updated = true
	}
	if cfg.TypingIdleMillis <= 0 {
		cfg.TypingIdleMillis = DefaultTypingIdleMillis
		updated = true
	}

	level := normalizeLogLevel(cfg.LogLevel)
	if cfg.LogLevel != level {
		cfg.LogLevel = level
		updated = true
	}

	return updated
}

func normalizeSendTransport(transport string) string {
	switch strings.ToLower(strings.TrimSpace(transport)) {
	case SendTransportREST:
		return SendTransportREST
	default:
		return SendTransportSocket
	}
}

func normalizeLogLevel(level string) string {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "debug", "info", "warn", "error":
		return l
	default:
		return DefaultLogLevel
	}
}

func loadEnvFiles(dataDir string) {
	// godotenv never overrides variables that are already set, so the
	// process environment wins over the working directory, which wins
	// over the data dir.
	for _, path := range []string{envFileName, filepath.Join(dataDir, envFileName)} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

func applyEnvOverrides(cfg *ClientConfig) {
	cfg.APIBaseURL = getEnv(EnvAPIURL, cfg.APIBaseURL)
	cfg.SocketURL = getEnv(EnvSocketURL, cfg.SocketURL)
	cfg.SendTransport = getEnv(EnvSendTransport, cfg.SendTransport)
	cfg.LogLevel = getEnv(EnvLogLevel, cfg.LogLevel)
	cfg.AutoMarkSeen = getEnvAsBool(EnvAutoMarkSeen, cfg.AutoMarkSeen)
	cfg.DiscoveryEnabled = getEnvAsBool(EnvDiscovery, cfg.DiscoveryEnabled)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
