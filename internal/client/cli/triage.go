package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/cytoguard/internal/report"
	"github.com/spf13/cobra"
)

func (a *App) newTriageCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "triage <image>",
		Short: "Upload, analyse and optionally report in a one-off session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, mt, data, err := readImage(args[0])
			if err != nil {
				return err
			}

			c, err := a.dial(a.config)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, cancel := a.withTimeout(cmd.Context())
			defer cancel()

			if _, err := c.CreateSession(ctx, a.config.UserID); err != nil {
				return fmt.Errorf("start session: %w", err)
			}
			defer func() {
				ectx, ecancel := a.withTimeout(context.Background())
				defer ecancel()
				_ = c.EndSession(ectx)
			}()

			f, err := c.Upload(ctx, name, mt, data)
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}

			d, err := c.Analyze(ctx, f.Name)
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			if err := a.printDiagnosis(d); err != nil {
				return err
			}

			if out == "" {
				return nil
			}
			return a.saveReport(ctx, c, d.HistoryIndex, out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "also save the PDF report here")
	return cmd
}

func (a *App) saveReport(ctx context.Context, c Client, index int, path string) error {
	r, err := c.Report(ctx, index)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if path == "" {
		path = defaultReportPath(timeNow())
	}
	if err := writeReport(path, r.PDF); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Report saved to %s\n", path)
	if r.Key != "" {
		_, _ = fmt.Fprintf(a.out, "Archived as %s\n", r.Key)
	}
	if r.URL != "" {
		_, _ = fmt.Fprintf(a.out, "Link (expires in %s): %s\n", report.LinkExpiry, r.URL)
	}
	return nil
}
