package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

// NewRootCmd builds the kbctl command tree.
func NewRootCmd() *cobra.Command {
	var server string
	rootCmd := &cobra.Command{
		Use:           "kbctl",
		Short:         "A CLI client for the ESILV chatbot knowledge service",
		Long:          `A command-line interface for asking questions, browsing the knowledge base and reading the update audit log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&server, "server", envOr("KBCTL_SERVER", defaultServer), "Base URL of the chat service")

	client := func() *apiClient { return newAPIClient(server) }
	rootCmd.AddCommand(newAskCmd(client), newKBCmd(client), newAuditCmd(client))
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI: %s\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
