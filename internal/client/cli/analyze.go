package cli

import (
	"fmt"

	"github.com/dmitrijs2005/cytoguard/internal/client"
	"github.com/spf13/cobra"
)

func (a *App) newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <stored-name>",
		Short: "Run the model on an uploaded image, then delete it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, cancel := a.withTimeout(cmd.Context())
			defer cancel()

			d, err := c.Analyze(ctx, args[0])
			if err != nil {
				return fmt.Errorf("analyze: %w", err)
			}
			return a.printDiagnosis(d)
		},
	}
}

func (a *App) printDiagnosis(d *client.Diagnosis) error {
	if err := client.RenderGauge(a.out, d, a.width); err != nil {
		return err
	}
	_, err := fmt.Fprintf(a.out, "Image: %s  Analysed: %s  Entry: %d\n",
		d.ImageName, d.Timestamp.Local().Format("2006-01-02 15:04:05"), d.HistoryIndex)
	return err
}
