package cli

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/vijay-prabhu/crmgmail/internal/oauthflow"
)

var connectTimeout time.Duration

var connectCmd = &cobra.Command{
	Use:   "connect <account-id>",
	Short: "Authorize a linked account in the browser",
	Long: `Connect opens the Google consent page for the account and waits for the
OAuth redirect on the configured redirect_url. The redirect URL must point at
this machine and must not be in use by 'crmgmail serve'.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <account-id>",
	Short: "Forget an account's OAuth tokens",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisconnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(disconnectCmd)
	connectCmd.Flags().DurationVar(&connectTimeout, "timeout", 5*time.Minute, "How long to wait for the browser redirect")
}

func runConnect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	redirect, err := url.Parse(a.cfg.OAuth.RedirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect url: %w", err)
	}

	authURL, err := a.flow.Begin(ctx, cliUser, args[0])
	if errors.Is(err, oauthflow.ErrMissingCredentials) {
		return fmt.Errorf("account %s needs a client ID and client secret before connecting", args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to begin authorization: %w", err)
	}

	statusCh := make(chan string, 1)
	errCh := make(chan error, 1)

	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	// Start a local server to receive the callback
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status, _ := a.flow.Complete(r.Context(), cliUser, oauthflow.CallbackParams{
			State: q.Get("state"),
			Code:  q.Get("code"),
			Error: q.Get("error"),
		})

		notice, _ := oauthflow.StatusMessage(status)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><h1>%s</h1><p>You can close this window.</p></body></html>`, html.EscapeString(notice.Message))

		select {
		case statusCh <- status:
		default:
		}
	})

	server := &http.Server{Addr: redirect.Host, Handler: mux}

	// Start server in background
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Println("Opening browser for Google authentication...")
	fmt.Println("If browser doesn't open, visit this URL:")
	fmt.Println(authURL)
	fmt.Println()

	// Try to open browser
	openBrowser(authURL)

	// Wait for the callback or error
	var status string
	select {
	case status = <-statusCh:
	case err := <-errCh:
		return fmt.Errorf("callback server failed: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(connectTimeout):
		return fmt.Errorf("authentication timeout")
	}

	return reportStatus(status)
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	nonce, err := a.flow.DisconnectNonce(cliUser, args[0])
	if err != nil {
		return err
	}

	return reportStatus(a.flow.Disconnect(cmd.Context(), cliUser, args[0], nonce))
}

// reportStatus prints the notice for status and fails on error notices
func reportStatus(status string) error {
	notice, ok := oauthflow.StatusMessage(status)
	if !ok {
		return fmt.Errorf("unexpected status: %s", status)
	}

	if notice.Level != "success" {
		return errors.New(notice.Message)
	}
	fmt.Println(NewTerminal().Color(LevelColor(notice.Level), notice.Message))
	return nil
}

// openBrowser opens the URL in the default browser
func openBrowser(target string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "linux":
		cmd = exec.Command("xdg-open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		return
	}

	_ = cmd.Start()
}
