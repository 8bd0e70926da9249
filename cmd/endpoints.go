package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/northgate-data/ingest-cli/internal/ingest"
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List configured endpoints",
	Long:  "Lists every endpoint in the registry, including inactive ones, after applying any overrides file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := buildRegistry()
		if err != nil {
			return err
		}
		formatEndpoints(os.Stdout, reg.All())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(endpointsCmd)
}

// formatEndpoints writes a tabular representation of endpoint configs to w.
func formatEndpoints(out io.Writer, endpoints []ingest.EndpointConfig) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tENDPOINT\tPAGINATION\tPAGE SIZE\tWATERMARK\tSHAPE\tACTIVE")
	_, _ = fmt.Fprintln(w, "------\t--------\t----------\t---------\t---------\t-----\t------")

	for _, c := range endpoints {
		wmDesc := string(c.WatermarkType)
		if c.WatermarkAttr != "" {
			wmDesc += " (" + c.WatermarkAttr + ")"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%t\n",
			c.Source,
			c.Path,
			c.Pagination,
			c.PageSize,
			wmDesc,
			c.Shape.ArrayKey(),
			c.Active,
		)
	}
	_ = w.Flush()
}
