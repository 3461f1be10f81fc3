package cli

import (
	"os"

	"github.com/dmitrijs2005/cytoguard/internal/client/config"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the command tree.
func (a *App) NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cytoguard",
		Short: "Cervical cytology triage client",
		Long: `cytoguard sends cytology images to a triage server for analysis.

Images are validated, stored encrypted for the length of one analysis and
securely deleted afterwards. Results stay in the server-side session until it
ends or expires.

Examples:
  # One-shot: analyse a scan and save the PDF report
  cytoguard triage scan.png -o report.pdf

  # Step by step inside a named session
  export CYTOGUARD_TOKEN=$(cytoguard session start)
  cytoguard upload scan.png
  cytoguard analyze 3f2a9c0d1b7e4a55.png.enc
  cytoguard report -o report.pdf
  cytoguard session end`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.ServerEndpointAddr = a.addr
			}
			if cmd.Flags().Changed("user") {
				cfg.UserID = a.userID
			}
			if a.token == "" {
				a.token = os.Getenv(TokenEnvVar)
			}
			a.config = cfg
			return nil
		},
	}
	root.SetOut(a.out)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "JSON config file")
	root.PersistentFlags().StringVarP(&a.addr, "addr", "a", "", "server address (host:port)")
	root.PersistentFlags().StringVarP(&a.token, "token", "t", "", "session token (default $"+TokenEnvVar+")")
	root.PersistentFlags().StringVarP(&a.userID, "user", "u", "", "user id recorded with new sessions")

	root.AddCommand(
		a.newSessionCmd(),
		a.newUploadCmd(),
		a.newAnalyzeCmd(),
		a.newHistoryCmd(),
		a.newReportCmd(),
		a.newTriageCmd(),
	)
	return root
}
