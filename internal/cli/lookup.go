package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vijay-prabhu/crmgmail/internal/correspondence"
	"github.com/vijay-prabhu/crmgmail/internal/output"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <email>",
	Short: "Show recent correspondence with a contact",
	Long: `Lookup shows the most recent messages exchanged with a contact across
every authorized account, newest first. Results are cached for the
configured cache duration.

Examples:
  crmgmail lookup jane@example.com             # Table of recent messages
  crmgmail lookup jane@example.com --limit=20  # Override the email limit
  crmgmail lookup jane@example.com --full      # Include snippets and links
  crmgmail lookup jane@example.com -o json     # Output as JSON`,
	Args: cobra.ExactArgs(1),
	RunE: runLookup,
}

var (
	lookupLimit int
	lookupFull  bool
)

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.Flags().IntVar(&lookupLimit, "limit", 0, "Maximum number of messages (default: the configured email limit)")
	lookupCmd.Flags().BoolVar(&lookupFull, "full", false, "Show snippets and Gmail links")
}

func runLookup(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	section := a.aggregator.Section(cmd.Context(), args[0], limitFlag(cmd))

	if outputFmt == "json" || lookupFull {
		return output.Output(outputFmt, section)
	}

	if section.Message != "" {
		fmt.Println(NewTerminal().Color(LevelColor(section.Level), section.Message))
		return nil
	}
	return output.Output(outputFmt, section.Records)
}

// limitFlag returns 0 unless --limit was given, so the configured limit applies
func limitFlag(cmd *cobra.Command) int {
	if !cmd.Flags().Changed("limit") {
		return 0
	}
	n, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return 0
	}
	return correspondence.ExplicitLimit(n)
}
