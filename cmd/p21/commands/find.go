package commands

import (
	"fmt"

	"github.com/Sternrassler/p21-erp-client/pkg/client"
	"github.com/spf13/cobra"
)

func newFindCommand() *cobra.Command {
	var (
		filterField string
		filterValue string
		trim        bool
	)

	cmd := &cobra.Command{
		Use:   "find PATH",
		Short: "Fetch records from an endpoint-relative path",
		Example: `  p21 find api/inventory/parts/ABC-100
  p21 find api/v2/odataservice/odata/table/inv_mast --filter-field item_id --filter-value ABC-100 --trim`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			if (filterField == "") != (filterValue == "") {
				return fmt.Errorf("--filter-field and --filter-value must be used together")
			}

			path := client.NewPath(args[0])
			if filterField != "" {
				expr := client.Eq(filterField, filterValue)
				if trim {
					expr = client.TrimEq(filterField, filterValue)
				}
				path = path.Filter(expr)
			}

			conn, err := connect(cmd.Context(), cmd, func(cfg *client.Config) {
				cfg.SurfaceFetchErrors = true
			})
			if err != nil {
				return err
			}
			defer conn.Close()

			records, err := conn.client.Find(cmd.Context(), client.QueryRequest{Path: path.String()})
			if err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), format, records)
		},
	}

	cmd.Flags().StringVar(&filterField, "filter-field", "", "field for an OData equality filter")
	cmd.Flags().StringVar(&filterValue, "filter-value", "", "value for an OData equality filter")
	cmd.Flags().BoolVar(&trim, "trim", false, "compare against trim(field)")

	return cmd
}
