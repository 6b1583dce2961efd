package pagination

import (
	"context"
	"iter"
	"time"

	"github.com/Sternrassler/p21-erp-client/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for full-table scans.
var (
	pagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "p21_pagination_pages_total",
		Help: "Total pages yielded by outcome",
	}, []string{"outcome"})

	rowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "p21_pagination_rows_total",
		Help: "Total rows yielded by full-table scans",
	})
)

// DefaultPageSize is the number of rows requested per window.
const DefaultPageSize = 500

// Config holds paginator configuration.
type Config struct {
	// PageSize is the $top of every window but the last.
	PageSize int

	// AbortOnError ends the sequence after the first failed window.
	// By default a failed window is yielded with Err set and skipped.
	AbortOnError bool

	Logger zerolog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PageSize: DefaultPageSize,
		Logger:   log.With().Str("component", "p21-pagination").Logger(),
	}
}

// PageFetcher is the interface the P21 client implements for windowed reads.
type PageFetcher interface {
	// RowCount returns the number of rows in collection.
	RowCount(ctx context.Context, collection string) (int, error)

	// FetchWindow returns the rows of collection inside w.
	FetchWindow(ctx context.Context, collection string, w Window) ([]record.Record, error)
}

// PageResult is one turn of the page sequence.
type PageResult struct {
	Window  Window
	Records []record.Record
	// Err is set when the window could not be fetched. Records is then empty.
	Err error
}

// Paginator drives successive window fetches.
type Paginator struct {
	fetcher PageFetcher
	config  Config
}

// New creates a paginator.
func New(fetcher PageFetcher, cfg Config) *Paginator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Paginator{
		fetcher: fetcher,
		config:  cfg,
	}
}

// Pages returns the lazy page sequence of collection. Each call recounts the
// rows; a failed or zero count yields nothing.
func (p *Paginator) Pages(ctx context.Context, collection string) iter.Seq[PageResult] {
	return func(yield func(PageResult) bool) {
		logger := p.config.Logger.With().Str("collection", collection).Logger()
		start := time.Now()

		total, err := p.fetcher.RowCount(ctx, collection)
		if err != nil {
			logger.Warn().Err(err).Msg("Row count failed, nothing to scan")
			return
		}
		if total <= 0 {
			logger.Debug().Msg("Collection is empty")
			return
		}

		logger.Info().
			Int("total_rows", total).
			Int("page_size", p.config.PageSize).
			Msg("Starting full-table scan")

		w := First(total, p.config.PageSize)
		pages, rows := 0, 0
		for ; w.Limit > 0; w = w.Next(total) {
			if err := ctx.Err(); err != nil {
				logger.Debug().Err(err).Int("offset", w.Offset).Msg("Scan stopped (context cancelled)")
				return
			}

			records, err := p.fetcher.FetchWindow(ctx, collection, w)
			result := PageResult{Window: w, Records: records, Err: err}
			if err != nil {
				result.Records = []record.Record{}
				pagesTotal.WithLabelValues("failed").Inc()
				logger.Warn().
					Err(err).
					Int("offset", w.Offset).
					Int("limit", w.Limit).
					Msg("Window fetch failed")
			} else {
				if result.Records == nil {
					result.Records = []record.Record{}
				}
				outcome := "ok"
				if len(result.Records) == 0 {
					outcome = "empty"
				}
				pagesTotal.WithLabelValues(outcome).Inc()
				rowsTotal.Add(float64(len(result.Records)))
				rows += len(result.Records)
			}
			pages++

			if !yield(result) {
				logger.Debug().Int("offset", w.Offset).Msg("Scan abandoned by consumer")
				return
			}
			if err != nil && p.config.AbortOnError {
				logger.Warn().Int("offset", w.Offset).Msg("Scan aborted after failed window")
				return
			}
		}

		logger.Info().
			Int("pages", pages).
			Int("rows", rows).
			Int("total_rows", total).
			Dur("duration", time.Since(start)).
			Msg("Full-table scan complete")
	}
}

// Drain consumes seq and returns every record in order plus the errors of
// failed windows.
func Drain(seq iter.Seq[PageResult]) ([]record.Record, []error) {
	var records []record.Record
	var errs []error
	for page := range seq {
		if page.Err != nil {
			errs = append(errs, page.Err)
			continue
		}
		records = append(records, page.Records...)
	}
	return records, errs
}
