package commands

import (
	"fmt"
	"os"

	"reviewharvest-backend/services/collector/archive"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var sessionsFlags struct {
	db    string
	limit int
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsFlags.db, "db", "archive.db", "Archive database to read.")
	sessionsCmd.Flags().IntVar(&sessionsFlags.limit, "limit", 20, "Maximum sessions to list.")
	rootCmd.AddCommand(sessionsCmd)
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions [--db <path/to/archive.db>]",
	Short: "Lists archived collection sessions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := archive.Open(sessionsFlags.db)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer store.Close()

		sessions, err := store.List(cmd.Context(), sessionsFlags.limit)
		if err != nil {
			return err
		}

		out := table.NewWriter()
		out.SetOutputMirror(os.Stdout)
		out.AppendHeader(table.Row{"session", "url", "status", "unique", "time", "collected at"})
		for _, s := range sessions {
			out.AppendRow(table.Row{
				s.ID,
				s.URL,
				s.Status,
				s.Metadata.TotalUnique,
				fmt.Sprintf("%dms", s.Metadata.CollectionTimeMs),
				s.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		out.Render()
		return nil
	},
}
