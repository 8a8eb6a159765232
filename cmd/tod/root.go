package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tod",
	Short: "Task-oriented dialog orchestrator",
	Long: `tod holds task-oriented conversations: it works out what the user wants,
asks for the details it is missing, runs the matching tools in dependency
order and summarizes the results.

With no arguments, starts an interactive chat in the terminal.

Core capabilities:
- Routes each utterance to an intent by keyword match or a language model
- Collects required parameters with a bounded number of clarifications
- Pauses and resumes intents when the user changes topic
- Runs independent tools concurrently, dependent ones in order
- Serves the same conversations over HTTP`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	addChatFlags(rootCmd)

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(intentsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
