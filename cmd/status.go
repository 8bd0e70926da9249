package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/northgate-data/ingest-cli/internal/ingest"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show watermarks and recent sync runs",
	Long:  "Displays the stored watermark per endpoint and the most recent sync run history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		limit, _ := cmd.Flags().GetInt("limit")

		wh, closeWH, err := openWarehouse(ctx)
		if err != nil {
			return err
		}
		defer closeWH()

		var watermarks []ingest.Watermark
		for _, source := range []ingest.Source{ingest.SourceLedger, ingest.SourceShop} {
			wms, err := wh.List(ctx, source)
			if err != nil {
				return eris.Wrap(err, "status: list watermarks")
			}
			watermarks = append(watermarks, wms...)
		}

		if len(watermarks) == 0 {
			zap.L().Info("no watermarks found, run 'sync' to start ingesting")
		} else {
			formatWatermarks(os.Stdout, watermarks)
		}

		runs, err := wh.ListRecent(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "status: list runs")
		}
		if len(runs) > 0 {
			fmt.Println()
			formatRuns(os.Stdout, runs)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().Int("limit", 20, "number of recent runs to show")
	rootCmd.AddCommand(statusCmd)
}

// formatWatermarks writes a tabular representation of watermarks to w.
func formatWatermarks(out io.Writer, wms []ingest.Watermark) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tENDPOINT\tLAST UPDATED\tLAST ID\tLAST SYNC\tTOTAL\tLAST RUN")
	_, _ = fmt.Fprintln(w, "------\t--------\t------------\t-------\t---------\t-----\t--------")

	for _, wm := range wms {
		lastUpdated := "-"
		if wm.LastUpdated != nil {
			lastUpdated = wm.LastUpdated.Format(time.RFC3339)
		}
		lastID := "-"
		if wm.LastNumericID != nil {
			lastID = fmt.Sprintf("%d", *wm.LastNumericID)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			wm.Source,
			wm.Endpoint,
			lastUpdated,
			lastID,
			wm.LastIngestionAt.Format("2006-01-02 15:04"),
			wm.TotalRecords,
			wm.LastRunRecords,
		)
	}
	_ = w.Flush()
}

// formatRuns writes a tabular representation of run history to w.
func formatRuns(out io.Writer, runs []ingest.RunEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tSOURCE\tENDPOINT\tSTATUS\tSTARTED\tDURATION\tPAGES\tRECORDS\tERROR")
	_, _ = fmt.Fprintln(w, "---\t------\t--------\t------\t-------\t--------\t-----\t-------\t-----")

	for _, e := range runs {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}

		errMsg := ""
		if e.Error != "" {
			errMsg = truncate(e.Error, 60)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			shortID(e.RunID.String()),
			e.Source,
			e.Endpoint,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.Pages,
			e.Records,
			errMsg,
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func shortID(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
