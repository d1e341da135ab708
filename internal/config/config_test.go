package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func validConfig() *Config {
	cfg := Default()
	cfg.Security.Secret = testSecret
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Gmail.TimeoutSeconds != 20 {
		t.Errorf("expected TimeoutSeconds=20, got %d", cfg.Gmail.TimeoutSeconds)
	}

	if cfg.Gmail.MaxParallelAccounts != 4 {
		t.Errorf("expected MaxParallelAccounts=4, got %d", cfg.Gmail.MaxParallelAccounts)
	}

	if cfg.Server.AdminUser != "admin" {
		t.Errorf("expected AdminUser=admin, got %s", cfg.Server.AdminUser)
	}

	if cfg.Security.Secret != "" {
		t.Error("expected no default secret")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "missing secret",
			modify: func(c *Config) {
				c.Security.Secret = ""
			},
			wantErr: true,
		},
		{
			name: "short secret",
			modify: func(c *Config) {
				c.Security.Secret = "short"
			},
			wantErr: true,
		},
		{
			name: "relative redirect url",
			modify: func(c *Config) {
				c.OAuth.RedirectURL = "/oauth/callback"
			},
			wantErr: true,
		},
		{
			name: "custom token endpoint",
			modify: func(c *Config) {
				c.OAuth.TokenURL = "http://localhost:9000/token"
			},
			wantErr: false,
		},
		{
			name: "invalid api endpoint",
			modify: func(c *Config) {
				c.Gmail.APIEndpoint = "ftp://example.com"
			},
			wantErr: true,
		},
		{
			name: "invalid timeout",
			modify: func(c *Config) {
				c.Gmail.TimeoutSeconds = 0
			},
			wantErr: true,
		},
		{
			name: "invalid parallelism",
			modify: func(c *Config) {
				c.Gmail.MaxParallelAccounts = 100
			},
			wantErr: true,
		},
		{
			name: "invalid mcp transport",
			modify: func(c *Config) {
				c.MCP.Transport = "http"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Gmail.TimeoutSeconds = 0
	cfg.Server.ListenAddr = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"security.secret", "gmail.timeout_seconds", "server.listen_addr"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("expected %s in error: %v", field, err)
		}
	}
}

func TestValidateServer(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidateServer(); err == nil {
		t.Error("expected error without admin password")
	}
	cfg.Server.AdminPassword = "hunter2"
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("ValidateServer() error = %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}

	for _, tt := range tests {
		result, err := expandPath(tt.input)
		if err != nil {
			t.Errorf("expandPath(%q) error: %v", tt.input, err)
		}
		if result != tt.expected {
			t.Errorf("expandPath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestSaveLoadWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg := validConfig()
	cfg.Database.Path = filepath.Join(dir, "crmgmail.db")
	cfg.Gmail.TimeoutSeconds = 45
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config permissions = %o, want 600", perm)
	}

	t.Setenv(EnvSecret, "from-the-environment-secret")
	t.Setenv(EnvAdminPassword, "env-password")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Gmail.Timeout() != 45*time.Second {
		t.Errorf("Timeout() = %v, want 45s", loaded.Gmail.Timeout())
	}
	if loaded.Security.Secret != "from-the-environment-secret" {
		t.Errorf("Secret = %q, want env override", loaded.Security.Secret)
	}
	if loaded.Server.AdminPassword != "env-password" {
		t.Errorf("AdminPassword = %q, want env override", loaded.Server.AdminPassword)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil || !strings.Contains(err.Error(), "config init") {
		t.Errorf("expected hint to run config init, got %v", err)
	}
}
