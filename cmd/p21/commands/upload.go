package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Sternrassler/p21-erp-client/pkg/client"
	"github.com/spf13/cobra"
)

func newUploadCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:     "upload PATH",
		Short:   "POST a JSON document to an endpoint-relative path",
		Example: "  p21 upload api/sales/orders --file order.json",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			body, err := readDocument(cmd, file)
			if err != nil {
				return err
			}

			conn, err := connect(cmd.Context(), cmd, func(cfg *client.Config) {
				cfg.SurfaceFetchErrors = true
			})
			if err != nil {
				return err
			}
			defer conn.Close()

			records, err := conn.client.Upload(cmd.Context(), client.QueryRequest{Path: args[0], Body: body})
			if err != nil {
				return err
			}
			return writeRecords(cmd.OutOrStdout(), format, records)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON document to send (- for stdin)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// readDocument loads and validates the upload body.
func readDocument(cmd *cobra.Command, file string) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%s does not contain valid JSON", file)
	}
	return json.RawMessage(data), nil
}
