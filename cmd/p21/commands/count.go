package commands

import (
	"github.com/spf13/cobra"
)

func newCountCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "count COLLECTION",
		Short:   "Print the row count of a collection",
		Example: "  p21 count api/v2/odataservice/odata/table/inv_mast",
		Args:    cobra.ExactArgs(1),
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

			n, err := conn.client.Count(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeProperties(cmd.OutOrStdout(), format,
				[]string{"collection", "count"},
				map[string]any{"collection": args[0], "count": n})
		},
	}
}
