package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Environment variables that override file values
const (
	EnvSecret        = "CRMGMAIL_SECRET"
	EnvAdminPassword = "CRMGMAIL_ADMIN_PASSWORD"
)

// DefaultPath is where 'crmgmail config init' writes the config file
const DefaultPath = "~/.config/crmgmail/config.toml"

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	// Expand path
	expandedPath, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path: %w", err)
	}

	// Read file
	data, err := os.ReadFile(expandedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s (run 'crmgmail config init' to create)", expandedPath)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Parse TOML
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()

	// Expand paths in config
	if err := cfg.expandPaths(); err != nil {
		return nil, fmt.Errorf("failed to expand paths: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Save writes cfg as TOML to path with owner-only permissions
func Save(cfg *Config, path string) error {
	expandedPath, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("failed to expand config path: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(expandedPath), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(expandedPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnv overrides secrets from the environment
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvSecret)); v != "" {
		c.Security.Secret = v
	}
	if v := os.Getenv(EnvAdminPassword); v != "" {
		c.Server.AdminPassword = v
	}
}

// ExpandPath expands a leading ~ to the home directory
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

// expandPath expands ~ to home directory
func expandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(home, path[1:]), nil
}

// expandPaths expands ~ in all path fields
func (c *Config) expandPaths() error {
	var err error

	c.Database.Path, err = expandPath(c.Database.Path)
	if err != nil {
		return err
	}

	return nil
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}

	// Security validation
	if c.Security.Secret == "" {
		errs = append(errs, fmt.Errorf("security.secret is required (or set %s)", EnvSecret))
	} else if len(c.Security.Secret) < 16 {
		errs = append(errs, errors.New("security.secret must be at least 16 characters"))
	}

	// OAuth validation
	if err := validateURL("oauth.redirect_url", c.OAuth.RedirectURL, true); err != nil {
		errs = append(errs, err)
	}
	if err := validateURL("oauth.auth_url", c.OAuth.AuthURL, false); err != nil {
		errs = append(errs, err)
	}
	if err := validateURL("oauth.token_url", c.OAuth.TokenURL, false); err != nil {
		errs = append(errs, err)
	}

	// Gmail validation
	if err := validateURL("gmail.api_endpoint", c.Gmail.APIEndpoint, false); err != nil {
		errs = append(errs, err)
	}
	if c.Gmail.TimeoutSeconds < 1 || c.Gmail.TimeoutSeconds > 300 {
		errs = append(errs, errors.New("gmail.timeout_seconds must be between 1 and 300"))
	}
	if c.Gmail.MaxParallelAccounts < 1 || c.Gmail.MaxParallelAccounts > 32 {
		errs = append(errs, errors.New("gmail.max_parallel_accounts must be between 1 and 32"))
	}
	if c.Gmail.MaxParallelMessages < 1 || c.Gmail.MaxParallelMessages > 64 {
		errs = append(errs, errors.New("gmail.max_parallel_messages must be between 1 and 64"))
	}

	// Server validation
	if c.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if c.Server.AdminUser == "" {
		errs = append(errs, errors.New("server.admin_user is required"))
	}

	// MCP validation
	if c.MCP.Transport != "stdio" {
		errs = append(errs, fmt.Errorf("mcp.transport must be 'stdio', got '%s'", c.MCP.Transport))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ValidateServer checks the settings only 'crmgmail serve' needs
func (c *Config) ValidateServer() error {
	if c.Server.AdminPassword == "" {
		return fmt.Errorf("server.admin_password is required to serve (or set %s)", EnvAdminPassword)
	}
	return nil
}

func validateURL(field, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got '%s'", field, raw)
	}
	return nil
}

// EnsureDirectories creates necessary directories for the database
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Database.Path),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
