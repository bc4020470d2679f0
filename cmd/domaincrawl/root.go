package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/domaincrawl/internal/config"
)

// NewRootCmd creates the root command for domaincrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domaincrawl",
		Short: "Concurrent single-domain web crawler",
		Long: `domaincrawl discovers every page of a web domain by following the links
that stay on it. Crawls run on a shared pool of fetch workers.

Run 'domaincrawl serve' to control crawls over HTTP, or
'domaincrawl crawl <domain>' for a one-shot crawl with a report.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("log-format", config.DefaultLogFormat,
		"Log format: text or json")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .domaincrawl in current, XDG config or home directory)")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
