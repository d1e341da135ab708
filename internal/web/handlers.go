package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vijay-prabhu/crmgmail/internal/account"
	"github.com/vijay-prabhu/crmgmail/internal/correspondence"
	"github.com/vijay-prabhu/crmgmail/internal/mailerr"
	"github.com/vijay-prabhu/crmgmail/internal/oauthflow"
	"github.com/vijay-prabhu/crmgmail/internal/settings"
)

// maxBodyBytes caps settings and account payloads
const maxBodyBytes = 1 << 20

type accountView struct {
	ID              string `json:"id"`
	Label           string `json:"label"`
	ClientID        string `json:"client_id"`
	HasClientSecret bool   `json:"has_client_secret"`
	Authorized      bool   `json:"authorized"`
}

type settingsView struct {
	CacheDuration int   `json:"cache_duration"`
	EmailLimit    int   `json:"email_limit"`
	CacheChoices  []int `json:"cache_duration_choices"`
	LimitChoices  []int `json:"email_limit_choices"`
}

type indexView struct {
	Notice   *oauthflow.Notice `json:"notice,omitempty"`
	Accounts []accountView     `json:"accounts"`
	Settings settingsView      `json:"settings"`
}

func (s *server) index(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accountViews(r)
	if err != nil {
		s.internalError(w, r, err, "failed to list accounts")
		return
	}

	view := indexView{
		Accounts: accounts,
		Settings: s.currentSettings(r),
	}
	if notice, ok := oauthflow.StatusMessage(r.URL.Query().Get("status")); ok {
		view.Notice = &notice
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *server) correspondence(w http.ResponseWriter, r *http.Request) {
	contact, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		s.badRequest(w, r, err, "invalid contact email")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.badRequest(w, r, err, "invalid limit")
			return
		}
		limit = correspondence.ExplicitLimit(n)
	}

	writeJSON(w, http.StatusOK, s.Correspondence.Section(r.Context(), contact, limit))
}

func (s *server) clearCache(w http.ResponseWriter, r *http.Request) {
	n, err := s.Correspondence.ClearCache(r.Context())
	if err != nil {
		s.internalError(w, r, err, "failed to clear correspondence cache")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cleared": n})
}

func (s *server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentSettings(r))
}

// postSettings accepts a JSON object. Absent fields keep their value.
func (s *server) postSettings(w http.ResponseWriter, r *http.Request) {
	values, err := readSettings(w, r)
	if err != nil {
		s.badRequest(w, r, err, "invalid settings payload")
		return
	}

	ctx := r.Context()
	if v, ok := values["cache_duration"]; ok {
		if _, err := s.Settings.SetCacheDuration(ctx, v); err != nil {
			s.internalError(w, r, err, "failed to save cache duration")
			return
		}
	}
	if v, ok := values["email_limit"]; ok {
		if _, err := s.Settings.SetEmailLimit(ctx, v); err != nil {
			s.internalError(w, r, err, "failed to save email limit")
			return
		}
	}

	writeJSON(w, http.StatusOK, s.currentSettings(r))
}

func readSettings(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var values map[string]any
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return values, nil
}

func (s *server) currentSettings(r *http.Request) settingsView {
	ctx := r.Context()
	return settingsView{
		CacheDuration: s.Settings.CacheDuration(ctx),
		EmailLimit:    s.Settings.EmailLimit(ctx),
		CacheChoices:  settings.AllowedCacheDurations,
		LimitChoices:  settings.AllowedEmailLimits,
	}
}

func (s *server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accountViews(r)
	if err != nil {
		s.internalError(w, r, err, "failed to list accounts")
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// putAccounts replaces the account map. Tokens of surviving ids are kept.
func (s *server) putAccounts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var raw map[string]account.RawAccount
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.badRequest(w, r, err, "invalid accounts payload")
		return
	}

	if _, err := s.Accounts.Upsert(r.Context(), raw); err != nil {
		s.internalError(w, r, err, "failed to save accounts")
		return
	}

	s.listAccounts(w, r)
}

func (s *server) accountViews(r *http.Request) ([]accountView, error) {
	ctx := r.Context()
	accounts, err := s.Accounts.Sorted(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, accountView{
			ID:              a.ID,
			Label:           a.DisplayName(),
			ClientID:        a.ClientID,
			HasClientSecret: a.ClientSecret != "",
			Authorized:      s.Accounts.IsAuthorized(ctx, a.ID),
		})
	}
	return views, nil
}

func (s *server) connect(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	authURL, err := s.OAuth.Begin(r.Context(), currentUser(r), accountID)
	if errors.Is(err, oauthflow.ErrMissingCredentials) {
		s.badRequest(w, r, err, "Save the account's client ID and client secret before connecting.")
		return
	}
	if err != nil {
		s.internalError(w, r, err, "failed to begin authorization")
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *server) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, _ := s.OAuth.Complete(r.Context(), currentUser(r), oauthflow.CallbackParams{
		State: q.Get("state"),
		Code:  q.Get("code"),
		Error: q.Get("error"),
	})
	redirectStatus(w, r, status)
}

func (s *server) disconnectNonce(w http.ResponseWriter, r *http.Request) {
	nonce, err := s.OAuth.DisconnectNonce(currentUser(r), chi.URLParam(r, "accountID"))
	if errors.Is(err, mailerr.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, mailerr.Message(err, "Selected Gmail account was not found."))
		return
	}
	if err != nil {
		s.internalError(w, r, err, "failed to issue disconnect nonce")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

func (s *server) disconnect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.badRequest(w, r, err, "invalid form")
		return
	}

	status := s.OAuth.Disconnect(r.Context(), currentUser(r), chi.URLParam(r, "accountID"), r.Form.Get("nonce"))
	redirectStatus(w, r, status)
}

func redirectStatus(w http.ResponseWriter, r *http.Request, status string) {
	http.Redirect(w, r, "/?status="+url.QueryEscape(status), http.StatusSeeOther)
}
