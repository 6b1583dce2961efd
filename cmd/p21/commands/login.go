package commands

import (
	"github.com/spf13/cobra"
)

func newLoginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Verify credentials by opening a session",
		Long:  "Open a session against the configured endpoint and report whether it succeeded. The bearer token is never printed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			conn, err := connect(cmd.Context(), cmd, nil)
			if err != nil {
				return err
			}
			defer conn.Close()

			sess := conn.client.Session()
			return writeProperties(cmd.OutOrStdout(), format,
				[]string{"endpoint", "username", "open"},
				map[string]any{
					"endpoint": sess.Endpoint(),
					"username": conn.cfg.Username,
					"open":     sess.IsOpen(),
				})
		},
	}
}
