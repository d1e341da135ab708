package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vijay-prabhu/crmgmail/internal/output"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "View or change the cache duration and email limit",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show current settings",
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change settings",
	Long: `Change settings. Unsupported values fall back to the defaults.

Examples:
  crmgmail settings set --cache-duration=30   # 5, 15, 30 or 60 minutes
  crmgmail settings set --email-limit=20      # 5, 10, 20 or 50 messages`,
	RunE: runSettingsSet,
}

var (
	setCacheDuration int
	setEmailLimit    int
)

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)

	settingsSetCmd.Flags().IntVar(&setCacheDuration, "cache-duration", 0, "Minutes to cache a lookup")
	settingsSetCmd.Flags().IntVar(&setEmailLimit, "email-limit", 0, "Messages shown per contact")
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	return output.Output(outputFmt, output.SettingsRow{
		CacheDuration: a.settings.CacheDuration(ctx),
		EmailLimit:    a.settings.EmailLimit(ctx),
	})
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if !flags.Changed("cache-duration") && !flags.Changed("email-limit") {
		return fmt.Errorf("nothing to set: pass --cache-duration and/or --email-limit")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if flags.Changed("cache-duration") {
		if _, err := a.settings.SetCacheDuration(ctx, setCacheDuration); err != nil {
			return err
		}
	}
	if flags.Changed("email-limit") {
		if _, err := a.settings.SetEmailLimit(ctx, setEmailLimit); err != nil {
			return err
		}
	}

	return output.Output(outputFmt, output.SettingsRow{
		CacheDuration: a.settings.CacheDuration(ctx),
		EmailLimit:    a.settings.EmailLimit(ctx),
	})
}
