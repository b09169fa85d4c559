// Command pipelinectl streams audio into a running pipeline and inspects
// stored conversations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexiqai/conversation-pipeline/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "Client tooling for the conversation pipeline",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level, _ := cmd.Flags().GetString("log-level")
		observability.InitLogger(level, true)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(conversationCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
