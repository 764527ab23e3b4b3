package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jareddonovan/creative-coding-showcase/pkg/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent import requests and cycles",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		status, _ := cmd.Flags().GetString("status")
		code, _ := cmd.Flags().GetString("code")
		sinceStr, _ := cmd.Flags().GetString("since")
		cycles, _ := cmd.Flags().GetBool("cycles")

		opts, err := loadOptions()
		if err != nil {
			return err
		}
		db, err := storage.Open(opts.HistoryPath)
		if err != nil {
			return err
		}
		defer db.Close()

		if cycles {
			list, err := db.ListRecentCycles(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, c := range list {
				line := fmt.Sprintf("#%d %s %-6s fetched=%d accepted=%d imported=%d failed=%d %dms",
					c.ID, c.StartedAt.Local().Format(time.RFC3339), c.Trigger,
					c.Fetched, c.Accepted, c.Imported, c.Failed, c.DurationMS)
				if c.FetchError != "" {
					line += " error: " + c.FetchError
				}
				fmt.Println(line)
			}
			return nil
		}

		filter := storage.AttemptFilter{Status: status, Code: strings.ToUpper(code)}
		if sinceStr != "" {
			since, err := time.Parse(time.RFC3339, sinceStr)
			if err != nil {
				return fmt.Errorf("invalid --since (want RFC3339): %w", err)
			}
			filter.Since = since
		}

		attempts, err := db.ListRecentAttempts(cmd.Context(), limit, filter)
		if err != nil {
			return err
		}
		for _, a := range attempts {
			detail := a.Detail
			if a.CatalogKey != "" {
				detail = a.CatalogKey
			}
			fmt.Printf("%s %s %-8s %s\n", a.OccurredAt.Local().Format(time.RFC3339), a.Code, a.Status, detail)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 50, "Maximum number of rows")
	historyCmd.Flags().String("status", "", "Only requests with this outcome (imported, rejected, failed)")
	historyCmd.Flags().String("code", "", "Only requests carrying this import code")
	historyCmd.Flags().String("since", "", "Only requests after this RFC3339 timestamp")
	historyCmd.Flags().Bool("cycles", false, "List cycles instead of requests")
}
