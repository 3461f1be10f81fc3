package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func (a *App) newReportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "report [index]",
		Short: "Save the PDF report for an analysis (default: latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index := -1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 0 {
					return fmt.Errorf("invalid index %q", args[0])
				}
				index = n
			}

			c, err := a.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, cancel := a.withTimeout(cmd.Context())
			defer cancel()

			return a.saveReport(ctx, c, index, out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default cytoguard_report_<time>.pdf)")
	return cmd
}

var timeNow = time.Now

func defaultReportPath(now time.Time) string {
	return "cytoguard_report_" + now.Format("20060102_150405") + ".pdf"
}

func writeReport(path string, pdf []byte) error {
	if err := os.WriteFile(path, pdf, 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
