package main

import (
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/lexiqai/conversation-pipeline/internal/config"
	"github.com/lexiqai/conversation-pipeline/internal/conversation"
	"github.com/lexiqai/conversation-pipeline/internal/storage"
)

var conversationCmd = &cobra.Command{
	Use:   "conversation <session-id>",
	Short: "Print the merged human and AI conversation for a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversation,
}

func init() {
	f := conversationCmd.Flags()
	f.String("driver", config.GetEnv("STORAGE_DRIVER", storage.DriverSQLite), "Storage driver: sqlite or postgres")
	f.String("sqlite-path", config.GetEnv("SQLITE_PATH", "pipeline.sqlite"), "SQLite database path")
	f.String("database-url", config.GetEnv("DATABASE_URL", ""), "PostgreSQL connection URL")
	f.String("mode", string(conversation.ModeCombined), "human_only, ai_only or combined")
	f.Bool("plain", false, "Print plain transcript lines instead of a table")
}

func runConversation(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	driver, _ := f.GetString("driver")
	sqlitePath, _ := f.GetString("sqlite-path")
	databaseURL, _ := f.GetString("database-url")
	modeName, _ := f.GetString("mode")
	plain, _ := f.GetBool("plain")

	mode, err := conversation.ParseMode(modeName)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := storage.Open(ctx, storage.Config{
		Driver:         driver,
		SQLitePath:     sqlitePath,
		DatabaseURL:    databaseURL,
		ConnectRetries: 1,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	sessionID := args[0]
	transcripts, err := store.ListTranscripts(ctx, sessionID)
	if err != nil {
		return err
	}
	aiTurns, err := store.ListAITurns(ctx, sessionID)
	if err != nil {
		return err
	}

	log := conversation.Merge(transcripts, aiTurns, mode)
	out := cmd.OutOrStdout()
	if len(log.Messages) == 0 {
		fmt.Fprintln(out, "No messages found.")
		return nil
	}

	if plain {
		fmt.Fprint(out, conversation.FormatTranscript(log.Messages))
	} else {
		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Time", "Speaker", "Name", "Text", "Provenance"})
		table.SetBorder(false)
		table.SetAutoWrapText(false)
		for _, m := range log.Messages {
			table.Append([]string{
				m.Timestamp.Local().Format("2006-01-02 15:04:05"),
				string(m.Speaker),
				m.SpeakerName,
				m.Text,
				m.Provenance,
			})
		}
		table.Render()
	}

	s := log.Stats
	fmt.Fprintf(out, "\n%d messages (%d human, %d ai), %d human speakers, spanning %s\n",
		s.Total, s.Human, s.AI, s.DistinctHumanSpeakers, s.Duration.Round(time.Second))
	return nil
}
