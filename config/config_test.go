package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateCreatesAndReloadsConfig(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(EnvDataDir, tempDir)

	firstCfg, firstPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("first LoadOrCreate failed: %v", err)
	}
	if firstCfg.ClientID == "" {
		t.Fatalf("expected non-empty client ID")
	}
	if firstCfg.SendTransport != SendTransportSocket {
		t.Fatalf("expected default send transport %q, got %q", SendTransportSocket, firstCfg.SendTransport)
	}
	if firstCfg.APIBaseURL != DefaultAPIBaseURL {
		t.Fatalf("expected default API URL %q, got %q", DefaultAPIBaseURL, firstCfg.APIBaseURL)
	}
	if firstCfg.TypingTimeout().Seconds() != 5 {
		t.Fatalf("expected 5s typing timeout, got %v", firstCfg.TypingTimeout())
	}

	expectedConfigPath := filepath.Join(tempDir, "config.json")
	if firstPath != expectedConfigPath {
		t.Fatalf("expected config path %q, got %q", expectedConfigPath, firstPath)
	}

	secondCfg, secondPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}

	if secondPath != firstPath {
		t.Fatalf("expected config path to be stable, got %q then %q", firstPath, secondPath)
	}
	if secondCfg.ClientID != firstCfg.ClientID {
		t.Fatalf("expected stable client ID, got %q then %q", firstCfg.ClientID, secondCfg.ClientID)
	}
}

func TestLoadOrCreateNormalizesInvalidValues(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(EnvDataDir, tempDir)

	cfgPath := filepath.Join(tempDir, "config.json")
	if err := EnsureDataDirectories(tempDir); err != nil {
		t.Fatalf("EnsureDataDirectories failed: %v", err)
	}

	legacy := &ClientConfig{
		ClientID:             "legacy-client",
		APIBaseURL:           "http://chat.example:6500/api/",
		SendTransport:        "carrier-pigeon",
		TypingTimeoutSeconds: -1,
		LogLevel:             "LOUD",
	}
	if err := Save(cfgPath, legacy); err != nil {
		t.Fatalf("Save legacy config failed: %v", err)
	}

	cfg, _, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if cfg.ClientID != "legacy-client" {
		t.Fatalf("expected client ID to be retained, got %q", cfg.ClientID)
	}
	if cfg.APIBaseURL != "http://chat.example:6500/api" {
		t.Fatalf("expected trailing slash to be trimmed, got %q", cfg.APIBaseURL)
	}
	if cfg.SendTransport != SendTransportSocket {
		t.Fatalf("expected invalid transport to normalize to socket, got %q", cfg.SendTransport)
	}
	if cfg.TypingTimeoutSeconds != DefaultTypingTimeoutSeconds {
		t.Fatalf("expected typing timeout default, got %d", cfg.TypingTimeoutSeconds)
	}
	if cfg.LogLevel != DefaultLogLevel {
		t.Fatalf("expected log level default, got %q", cfg.LogLevel)
	}
	if cfg.SocketURL != DefaultSocketURL {
		t.Fatalf("expected socket URL default, got %q", cfg.SocketURL)
	}
}

func TestLoadOrCreateAppliesEnvironmentOverrides(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(EnvDataDir, tempDir)
	t.Setenv(EnvAPIURL, "https://api.example/api")
	t.Setenv(EnvSendTransport, "REST")
	t.Setenv(EnvAutoMarkSeen, "true")

	cfg, cfgPath, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if cfg.APIBaseURL != "https://api.example/api" {
		t.Fatalf("expected env API URL, got %q", cfg.APIBaseURL)
	}
	if cfg.SendTransport != SendTransportREST {
		t.Fatalf("expected env send transport rest, got %q", cfg.SendTransport)
	}
	if !cfg.AutoMarkSeen {
		t.Fatalf("expected auto mark seen from env")
	}

	persisted, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if persisted.APIBaseURL != DefaultAPIBaseURL {
		t.Fatalf("expected env override not to be persisted, got %q", persisted.APIBaseURL)
	}
}

func TestLoadOrCreateReadsDotEnvFromDataDir(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv(EnvDataDir, tempDir)
	// Registered so t.Setenv restores the variable that godotenv sets.
	t.Setenv(EnvSocketURL, "")
	if err := os.Unsetenv(EnvSocketURL); err != nil {
		t.Fatalf("Unsetenv failed: %v", err)
	}

	envPath := filepath.Join(tempDir, ".env")
	if err := os.WriteFile(envPath, []byte(EnvSocketURL+"=ws://lan-host:6500/socket\n"), 0o600); err != nil {
		t.Fatalf("write .env failed: %v", err)
	}

	cfg, _, err := LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if cfg.SocketURL != "ws://lan-host:6500/socket" {
		t.Fatalf("expected socket URL from .env, got %q", cfg.SocketURL)
	}
}
