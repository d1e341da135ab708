package oauthflow

// Notice is a user-facing message for a status code
type Notice struct {
	Level   string `json:"level"` // "success" or "error"
	Message string `json:"message"`
}

var notices = map[string]Notice{
	StatusConnected:        {"success", "Google account connected successfully."},
	StatusDisconnected:     {"success", "Google account disconnected."},
	StatusDisconnectFailed: {"error", "Unable to disconnect the selected account."},
	StatusOAuthError:       {"error", "Google authorization was cancelled or failed."},
	StatusInvalidState:     {"error", "Invalid OAuth state. Please try again."},
	StatusMissingCode:      {"error", "Authorization code not found in callback."},
	StatusTokenFailed:      {"error", "Failed to save OAuth tokens. Please reconnect."},
}

// StatusMessage returns the notice for status. Unknown codes report ok=false.
func StatusMessage(status string) (Notice, bool) {
	n, ok := notices[status]
	return n, ok
}
