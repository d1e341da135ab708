package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vijay-prabhu/crmgmail/internal/correspondence"
	"github.com/vijay-prabhu/crmgmail/internal/email"
)

func (s *Server) registerHandlers() {
	s.handlers["get_recent_correspondence"] = s.handleGetRecentCorrespondence
	s.handlers["list_accounts"] = s.handleListAccounts
	s.handlers["get_settings"] = s.handleGetSettings
	s.handlers["update_settings"] = s.handleUpdateSettings
	s.handlers["clear_cache"] = s.handleClearCache
}

type recentCorrespondenceParams struct {
	Email string `json:"email"`
	Limit *int   `json:"limit"`
}

type recentCorrespondenceResult struct {
	Contact  string                `json:"contact"`
	Count    int                   `json:"count"`
	Messages []email.MessageRecord `json:"messages"`
}

func (s *Server) handleGetRecentCorrespondence(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p recentCorrespondenceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid parameters: %w", err)
	}

	if p.Email == "" {
		return nil, fmt.Errorf("email is required")
	}

	limit := 0
	if p.Limit != nil {
		limit = correspondence.ExplicitLimit(*p.Limit)
	}

	records, err := s.correspondence.Recent(ctx, p.Email, limit)
	if err != nil {
		return nil, err
	}

	return recentCorrespondenceResult{
		Contact:  strings.ToLower(strings.TrimSpace(p.Email)),
		Count:    len(records),
		Messages: records,
	}, nil
}

type accountSummary struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Authorized bool   `json:"authorized"`
}

func (s *Server) handleListAccounts(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return s.accountSummaries(ctx)
}

func (s *Server) accountSummaries(ctx context.Context) ([]accountSummary, error) {
	accounts, err := s.accounts.Sorted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	out := make([]accountSummary, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountSummary{
			ID:         a.ID,
			Label:      a.DisplayName(),
			Authorized: s.accounts.IsAuthorized(ctx, a.ID),
		})
	}
	return out, nil
}

type settingsResult struct {
	CacheDuration int `json:"cache_duration"`
	EmailLimit    int `json:"email_limit"`
}

func (s *Server) handleGetSettings(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	return s.currentSettings(ctx), nil
}

func (s *Server) currentSettings(ctx context.Context) settingsResult {
	return settingsResult{
		CacheDuration: s.settings.CacheDuration(ctx),
		EmailLimit:    s.settings.EmailLimit(ctx),
	}
}

type updateSettingsParams struct {
	CacheDuration *int `json:"cache_duration"`
	EmailLimit    *int `json:"email_limit"`
}

func (s *Server) handleUpdateSettings(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p updateSettingsParams
	if params != nil {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid parameters: %w", err)
		}
	}

	if p.CacheDuration != nil {
		if _, err := s.settings.SetCacheDuration(ctx, *p.CacheDuration); err != nil {
			return nil, err
		}
	}
	if p.EmailLimit != nil {
		if _, err := s.settings.SetEmailLimit(ctx, *p.EmailLimit); err != nil {
			return nil, err
		}
	}

	return s.currentSettings(ctx), nil
}

func (s *Server) handleClearCache(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	n, err := s.correspondence.ClearCache(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to clear cache: %w", err)
	}
	return fmt.Sprintf("Cleared %d cached lookup(s).", n), nil
}

// Resource handlers

func (s *Server) handleReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "crmgmail://accounts":
		return s.getResourceAccounts(ctx)
	case "crmgmail://settings":
		return s.getResourceSettings(ctx), nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

func (s *Server) getResourceAccounts(ctx context.Context) (string, error) {
	accounts, err := s.accountSummaries(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Linked Accounts\n===============\n\n")

	if len(accounts) == 0 {
		b.WriteString("No accounts yet. Run 'crmgmail accounts add' to link one.\n")
		return b.String(), nil
	}

	for _, a := range accounts {
		status := "not authorized"
		if a.Authorized {
			status = "authorized"
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", a.Label, a.ID, status)
	}
	return b.String(), nil
}

func (s *Server) getResourceSettings(ctx context.Context) string {
	st := s.currentSettings(ctx)
	return fmt.Sprintf(`Settings
========
Cache duration: %d minute(s)
Email limit:    %d message(s)
`, st.CacheDuration, st.EmailLimit)
}
