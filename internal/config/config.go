package config

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Security SecurityConfig `toml:"security"`
	OAuth    OAuthConfig    `toml:"oauth"`
	Gmail    GmailConfig    `toml:"gmail"`
	Server   ServerConfig   `toml:"server"`
	MCP      MCPConfig      `toml:"mcp"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// SecurityConfig contains the process secret
type SecurityConfig struct {
	// Secret derives the token encryption key and signs disconnect nonces.
	// CRMGMAIL_SECRET overrides it.
	Secret string `toml:"secret"`
}

// OAuthConfig contains Google OAuth settings shared by every account
type OAuthConfig struct {
	RedirectURL string `toml:"redirect_url"`
	AuthURL     string `toml:"auth_url"`  // Empty uses Google's
	TokenURL    string `toml:"token_url"` // Empty uses Google's
}

// GmailConfig contains Gmail API settings
type GmailConfig struct {
	APIEndpoint         string `toml:"api_endpoint"` // Empty uses Google's
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	MaxParallelAccounts int    `toml:"max_parallel_accounts"`
	MaxParallelMessages int    `toml:"max_parallel_messages"`
}

// Timeout returns the per-request timeout as a duration
func (g GmailConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddr     string `toml:"listen_addr"`
	AdminUser      string `toml:"admin_user"`
	AdminPassword  string `toml:"admin_password"` // CRMGMAIL_ADMIN_PASSWORD overrides it
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

// MCPConfig contains MCP server settings
type MCPConfig struct {
	Enabled   bool   `toml:"enabled"`
	Transport string `toml:"transport"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "~/.local/share/crmgmail/crmgmail.db",
		},
		OAuth: OAuthConfig{
			RedirectURL: "http://127.0.0.1:8765/oauth/callback",
		},
		Gmail: GmailConfig{
			TimeoutSeconds:      20,
			MaxParallelAccounts: 4,
			MaxParallelMessages: 8,
		},
		Server: ServerConfig{
			ListenAddr:     "127.0.0.1:8765",
			AdminUser:      "admin",
			MetricsEnabled: true,
		},
		MCP: MCPConfig{
			Enabled:   true,
			Transport: "stdio",
		},
	}
}
