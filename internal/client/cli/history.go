package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *App) newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List this session's analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, cancel := a.withTimeout(cmd.Context())
			defer cancel()

			items, err := c.History(ctx)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if len(items) == 0 {
				_, _ = fmt.Fprintln(a.out, "No analyses yet.")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "#\tTIME\tIMAGE\tDIAGNOSIS\tCONFIDENCE")
			for i, h := range items {
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.1f%%\n",
					i, h.Timestamp.Local().Format("15:04:05"), h.ImageName, h.Diagnosis, h.Confidence)
			}
			return w.Flush()
		},
	}

	historyCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget this session's analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, cancel := a.withTimeout(cmd.Context())
			defer cancel()

			if err := c.ClearHistory(ctx); err != nil {
				return fmt.Errorf("clear history: %w", err)
			}
			_, _ = fmt.Fprintln(a.out, "History cleared.")
			return nil
		},
	})

	return historyCmd
}
