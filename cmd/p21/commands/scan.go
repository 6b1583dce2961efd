package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Sternrassler/p21-erp-client/pkg/client"
	"github.com/Sternrassler/p21-erp-client/pkg/logging"
	"github.com/Sternrassler/p21-erp-client/pkg/metrics"
	"github.com/Sternrassler/p21-erp-client/pkg/record"
	"github.com/spf13/cobra"
)

func newScanCommand() *cobra.Command {
	var (
		pageSize     int
		abortOnError bool
		metricsAddr  string
	)

	cmd := &cobra.Command{
		Use:   "scan COLLECTION",
		Short: "Read every row of a collection in pages",
		Long: `Read every row of a collection in $skip/$top windows.

With -o json (the default) each row is written as one JSON line as soon as its
window arrives. The yaml and table formats buffer the whole scan.

A failed window is logged and skipped unless --abort-on-error is set. The
command exits non-zero when any window failed.`,
		Example: "  p21 scan api/v2/odataservice/odata/table/inv_mast --page-size 250 -o table",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("page-size") && pageSize <= 0 {
				return fmt.Errorf("--page-size must be > 0 (got %d)", pageSize)
			}

			ctx := cmd.Context()
			if metricsAddr != "" {
				stop, err := serveMetrics(metricsAddr)
				if err != nil {
					return err
				}
				defer stop()
			}

			conn, err := connect(ctx, cmd, func(cfg *client.Config) {
				cfg.SurfaceFetchErrors = true
				cfg.AbortOnError = abortOnError
				if pageSize > 0 {
					cfg.PageSize = pageSize
				}
			})
			if err != nil {
				return err
			}
			defer conn.Close()

			logger := logging.NewLogger(logging.ComponentCLI)
			stream := format == outputJSON
			lines := json.NewEncoder(cmd.OutOrStdout())
			var (
				records []record.Record
				failed  []error
			)
			rows := 0
			for page := range conn.client.AllItems(ctx, args[0]) {
				if page.Err != nil {
					failed = append(failed, page.Err)
					continue
				}
				rows += len(page.Records)
				if !stream {
					records = append(records, page.Records...)
					continue
				}
				for _, r := range page.Records {
					if err := lines.Encode(r); err != nil {
						return fmt.Errorf("write row: %w", err)
					}
				}
			}

			logger.Info().
				Str("collection", args[0]).
				Int("records", rows).
				Int("failed_windows", len(failed)).
				Msg("Scan complete")

			if !stream {
				if err := writeRecords(cmd.OutOrStdout(), format, records); err != nil {
					return err
				}
			}
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("scan of %s interrupted: %w", args[0], err)
			}
			if len(failed) > 0 {
				return fmt.Errorf("scan of %s: %d window(s) failed: %w", args[0], len(failed), errors.Join(failed...))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pageSize, "page-size", 0, "rows per window (default from config, 500)")
	cmd.Flags().BoolVar(&abortOnError, "abort-on-error", false, "stop at the first failed window")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while scanning")

	return cmd
}

// serveMetrics exposes /metrics on addr until the returned stop is called.
func serveMetrics(addr string) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger := logging.NewLogger(logging.ComponentCLI)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	logger.Info().Str("addr", listener.Addr().String()).Msg("Serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}
