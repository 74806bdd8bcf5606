package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "frontdesk",
	Short: "Help desk that answers from a knowledge base and escalates the rest",
	Long: `frontdesk answers customer questions from small talk or a learned
knowledge base, and escalates everything else to a human supervisor.
Supervisor answers are folded back into the knowledge base.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", os.Getenv("FRONTDESK_SERVER_URL"), "server base URL (default: local server from config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(conversationsCmd)
	rootCmd.AddCommand(transcriptCmd)
	rootCmd.AddCommand(helpRequestsCmd)
	rootCmd.AddCommand(kbCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
