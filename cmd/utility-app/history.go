package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thangam2001/Utility-App/internal/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List completed operations, newest first",
	Long: `List completed operations, newest first.

Entries come from the configured database, the configured history file, or
history.json in the storage directory.

Examples:
  utility-app history --limit 10
  utility-app history --output json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 0, "maximum entries to show (default is the configured history limit)")
	historyCmd.Flags().StringP("output", "o", "table", "output format (table, json, yaml)")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	format, _ := cmd.Flags().GetString("output")
	if format != "table" {
		if err := validateOutputFormat(format); err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	comps, err := buildComponents(ctx, appCfg, appLog, true)
	if err != nil {
		return err
	}
	defer comps.Close()

	entries, err := comps.ledger.List(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if format == "table" {
		return writeHistoryTable(cmd.OutOrStdout(), entries)
	}
	return writeReport(cmd.OutOrStdout(), format, map[string][]history.Entry{"history": entries})
}

func writeHistoryTable(w io.Writer, entries []history.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No operations recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERFORMED\tOPERATION\tFILE\tFROM\tTO\tSIZE\tRESULT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.PerformedAt.Local().Format(time.DateTime),
			e.OperationType,
			e.FileName,
			e.OriginalFormat,
			e.OutputFormat,
			e.FileSize,
			e.ResultURL,
		)
	}
	return tw.Flush()
}
