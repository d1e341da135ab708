// Package settings provides typed access to the host key-value store.
package settings

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Key names. Every key written by this module starts with Prefix.
const (
	Prefix = "crmgmail_"

	OptionAccounts      = Prefix + "accounts"
	OptionCacheDuration = Prefix + "cache_duration"
	OptionEmailLimit    = Prefix + "email_limit"

	// CachePrefix namespaces cached correspondence lookups.
	CachePrefix = Prefix + "cache_"
	// StatePrefix namespaces pending OAuth state values.
	StatePrefix = Prefix + "oauth_state_"
)

const (
	DefaultCacheDuration = 15
	DefaultEmailLimit    = 10
)

var (
	AllowedCacheDurations = []int{5, 15, 30, 60}
	AllowedEmailLimits    = []int{5, 10, 20, 50}
)

// Options left behind by the single-account and first multi-account releases.
var legacyOptions = []string{
	"gfcrm_accounts",
	"gfcrm_cache_duration",
	"gfcrm_email_limit",
	"gd_fcrm_gmail_client_id",
	"gd_fcrm_gmail_client_secret",
	"gd_fcrm_gmail_tokens",
}

var legacyTransientPrefixes = []string{
	"gfcrm_",
	"gd_fcrm_gmail_",
}

// OptionStore persists durable settings.
type OptionStore interface {
	GetOption(ctx context.Context, name string) (string, bool, error)
	SetOption(ctx context.Context, name, value string) error
	DeleteOption(ctx context.Context, name string) error
}

// TransientStore persists values with a time-to-live.
type TransientStore interface {
	GetTransient(ctx context.Context, name string) (string, bool, error)
	SetTransient(ctx context.Context, name, value string, ttl time.Duration) error
	DeleteTransient(ctx context.Context, name string) error
	DeleteTransientsByPrefix(ctx context.Context, prefix string) (int64, error)
}

// KV is the full host key-value contract.
type KV interface {
	OptionStore
	TransientStore
}

// Settings reads and writes the scalar settings with sanitize-on-write.
type Settings struct {
	store OptionStore
}

// New creates a Settings backed by store
func New(store OptionStore) *Settings {
	return &Settings{store: store}
}

// CacheDuration returns the configured cache duration in minutes
func (s *Settings) CacheDuration(ctx context.Context) int {
	value, ok, err := s.store.GetOption(ctx, OptionCacheDuration)
	if err != nil || !ok {
		return DefaultCacheDuration
	}
	return SanitizeCacheDuration(value)
}

// CacheTTL returns the cache duration as a time.Duration
func (s *Settings) CacheTTL(ctx context.Context) time.Duration {
	return time.Duration(s.CacheDuration(ctx)) * time.Minute
}

// SetCacheDuration sanitizes and stores the cache duration, returning the stored value
func (s *Settings) SetCacheDuration(ctx context.Context, value any) (int, error) {
	minutes := SanitizeCacheDuration(value)
	if err := s.store.SetOption(ctx, OptionCacheDuration, strconv.Itoa(minutes)); err != nil {
		return 0, fmt.Errorf("failed to save cache duration: %w", err)
	}
	return minutes, nil
}

// EmailLimit returns the configured per-contact email limit
func (s *Settings) EmailLimit(ctx context.Context) int {
	value, ok, err := s.store.GetOption(ctx, OptionEmailLimit)
	if err != nil || !ok {
		return DefaultEmailLimit
	}
	return SanitizeEmailLimit(value)
}

// SetEmailLimit sanitizes and stores the email limit, returning the stored value
func (s *Settings) SetEmailLimit(ctx context.Context, value any) (int, error) {
	limit := SanitizeEmailLimit(value)
	if err := s.store.SetOption(ctx, OptionEmailLimit, strconv.Itoa(limit)); err != nil {
		return 0, fmt.Errorf("failed to save email limit: %w", err)
	}
	return limit, nil
}

// SanitizeCacheDuration clamps value to one of AllowedCacheDurations, else the default
func SanitizeCacheDuration(value any) int {
	return pick(absInt(value), AllowedCacheDurations, DefaultCacheDuration)
}

// SanitizeEmailLimit clamps value to one of AllowedEmailLimits, else the default
func SanitizeEmailLimit(value any) int {
	return pick(absInt(value), AllowedEmailLimits, DefaultEmailLimit)
}

func pick(v int, allowed []int, fallback int) int {
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return fallback
}

// absInt converts loosely typed form or storage input to a non-negative int.
// Anything unparseable becomes 0.
func absInt(value any) int {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		n = int64(v)
	case string:
		s := strings.TrimSpace(v)
		if parsed, err := strconv.ParseInt(s, 10, 64); err == nil {
			n = parsed
		} else if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			n = int64(f)
		}
	}
	if n < 0 {
		n = -n
	}
	if n > math.MaxInt32 {
		return 0
	}
	return int(n)
}

// Uninstall removes every setting and transient written by this module,
// including keys left by earlier releases.
func Uninstall(ctx context.Context, kv KV) error {
	options := append([]string{OptionAccounts, OptionCacheDuration, OptionEmailLimit}, legacyOptions...)
	for _, name := range options {
		if err := kv.DeleteOption(ctx, name); err != nil {
			return fmt.Errorf("failed to delete option %s: %w", name, err)
		}
	}

	prefixes := append([]string{Prefix}, legacyTransientPrefixes...)
	for _, prefix := range prefixes {
		if _, err := kv.DeleteTransientsByPrefix(ctx, prefix); err != nil {
			return fmt.Errorf("failed to delete transients %s*: %w", prefix, err)
		}
	}

	return nil
}
