package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vijay-prabhu/crmgmail/internal/settings"
)

var uninstallYes bool

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Delete every stored setting, token and cache entry",
	Long: `Uninstall removes the linked accounts (with their tokens), the cache
duration and email limit, every cached lookup and pending OAuth state, and
the keys left behind by earlier releases. The config file is kept.`,
	RunE: runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
	uninstallCmd.Flags().BoolVar(&uninstallYes, "yes", false, "Confirm deletion")
}

func runUninstall(cmd *cobra.Command, args []string) error {
	if !uninstallYes {
		return fmt.Errorf("refusing to delete stored data without --yes")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := settings.Uninstall(cmd.Context(), a.db); err != nil {
		return fmt.Errorf("uninstall failed: %w", err)
	}

	fmt.Println("Removed all crmgmail settings, tokens and cached data.")
	return nil
}
