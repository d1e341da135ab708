package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached correspondence lookups",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached lookup",
	RunE:  runCacheClear,
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cache entries and OAuth states",
	RunE:  runCachePurge,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cachePurgeCmd)
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.aggregator.ClearCache(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %d cached lookup(s)\n", n)
	return nil
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.db.PurgeExpiredTransients(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to purge expired entries: %w", err)
	}
	fmt.Printf("Purged %d expired entr(ies)\n", n)
	return nil
}
