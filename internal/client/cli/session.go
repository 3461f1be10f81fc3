package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (a *App) newSessionCmd() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Start or end a server session",
	}

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start a session and print its token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.dial(a.config)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, cancel := a.withTimeout(cmd.Context())
			defer cancel()

			token, err := c.CreateSession(ctx, a.config.UserID)
			if err != nil {
				return fmt.Errorf("start session: %w", err)
			}
			_, _ = fmt.Fprintln(a.out, token)
			return nil
		},
	})

	sessionCmd.AddCommand(&cobra.Command{
		Use:   "end",
		Short: "End the session; stored files and history are wiped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.connect()
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, cancel := a.withTimeout(cmd.Context())
			defer cancel()

			if err := c.EndSession(ctx); err != nil {
				return fmt.Errorf("end session: %w", err)
			}
			_, _ = fmt.Fprintln(a.out, "Session ended.")
			return nil
		},
	})

	return sessionCmd
}
