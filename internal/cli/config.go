package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/vijay-prabhu/crmgmail/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long: `Create a configuration file with a freshly generated encryption secret
and admin password. The secret encrypts stored OAuth tokens: changing it
later makes every linked account reconnect.`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration (secrets redacted)",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := config.ExpandPath(configPath)
	if err != nil {
		return fmt.Errorf("failed to expand config path: %w", err)
	}

	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config file already exists at %s\n", path)
		fmt.Println("Use 'crmgmail config show' to view current configuration")
		return nil
	}

	secret, err := randomHex(32)
	if err != nil {
		return fmt.Errorf("failed to generate secret: %w", err)
	}
	password, err := randomHex(12)
	if err != nil {
		return fmt.Errorf("failed to generate admin password: %w", err)
	}

	cfg := config.Default()
	cfg.Security.Secret = secret
	cfg.Server.AdminPassword = password

	if err := config.Save(cfg, path); err != nil {
		return err
	}

	fmt.Printf("Created config file at %s\n", path)
	fmt.Println()
	fmt.Printf("Admin user:     %s\n", cfg.Server.AdminUser)
	fmt.Printf("Admin password: %s\n", password)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Create an OAuth client in the Google Cloud console with the Gmail API enabled")
	fmt.Printf("  2. Add %s as an authorized redirect URI\n", cfg.OAuth.RedirectURL)
	fmt.Println("  3. Run 'crmgmail accounts add --label Sales --client-id ... --client-secret ...'")
	fmt.Println("  4. Run 'crmgmail connect <account-id>' to authorize it")

	return nil
}

var secretLine = regexp.MustCompile(`(?m)^(\s*(?:secret|admin_password)\s*=\s*).*$`)

func runConfigShow(cmd *cobra.Command, args []string) error {
	path, err := config.ExpandPath(configPath)
	if err != nil {
		return fmt.Errorf("failed to expand config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No config file found. Run 'crmgmail config init' to create one.")
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	fmt.Printf("# Config file: %s\n\n", path)
	fmt.Println(redactSecrets(string(data)))
	return nil
}

// redactSecrets masks the values of secret and admin_password keys
func redactSecrets(s string) string {
	return secretLine.ReplaceAllString(s, "${1}'<redacted>'")
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
