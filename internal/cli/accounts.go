package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vijay-prabhu/crmgmail/internal/output"
)

var accountsCmd = &cobra.Command{
	Use:     "accounts",
	Aliases: []string{"account"},
	Short:   "Manage linked Gmail accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List linked accounts and their authorization status",
	RunE:  runAccountsList,
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Link a new account with its own OAuth client",
	Long: `Link a new Gmail account. Each account carries its own Google OAuth
client ID and secret; run 'crmgmail connect <id>' afterwards to authorize it.

Examples:
  crmgmail accounts add --label Sales --client-id 123.apps.googleusercontent.com --client-secret xyz`,
	RunE: runAccountsAdd,
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <account-id>",
	Short: "Unlink an account and delete its tokens",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsRemove,
}

var (
	addLabel        string
	addClientID     string
	addClientSecret string
)

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsRemoveCmd)

	accountsAddCmd.Flags().StringVar(&addLabel, "label", "", "Display label for the account")
	accountsAddCmd.Flags().StringVar(&addClientID, "client-id", "", "Google OAuth client ID")
	accountsAddCmd.Flags().StringVar(&addClientSecret, "client-secret", "", "Google OAuth client secret")
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := a.registry.Sorted(ctx)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	rows := make([]output.AccountRow, 0, len(accounts))
	for _, acct := range accounts {
		rows = append(rows, output.AccountRow{
			ID:              acct.ID,
			Label:           acct.DisplayName(),
			ClientID:        acct.ClientID,
			HasClientSecret: acct.ClientSecret != "",
			Authorized:      a.registry.IsAuthorized(ctx, acct.ID),
		})
	}

	return output.Output(outputFmt, rows)
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	acct, err := a.registry.Add(cmd.Context(), addLabel, addClientID, addClientSecret)
	if err != nil {
		return fmt.Errorf("failed to add account: %w", err)
	}

	fmt.Printf("Added account %s (%s)\n", acct.ID, acct.DisplayName())
	if acct.HasCredentials() {
		fmt.Printf("Run 'crmgmail connect %s' to authorize it.\n", acct.ID)
	} else {
		fmt.Println("Set both --client-id and --client-secret before connecting.")
	}
	return nil
}

func runAccountsRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	acct, err := a.registry.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	if acct == nil {
		return fmt.Errorf("account not found: %s", args[0])
	}

	if err := a.registry.Remove(cmd.Context(), acct.ID); err != nil {
		return fmt.Errorf("failed to remove account: %w", err)
	}

	fmt.Printf("Removed account %s\n", acct.ID)
	return nil
}
