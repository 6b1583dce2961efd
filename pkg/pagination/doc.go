// Package pagination streams a whole P21 table in bounded pages.
//
// P21 will not return unbounded result sets, so a full-table read first asks
// for the collection's row count ($count) and then walks $skip/$top windows
// until the count is reached:
//
//	p := pagination.New(client, pagination.DefaultConfig())
//	for page := range p.Pages(ctx, "data/erp/views/v1/p21_view_inv_mast") {
//		if page.Err != nil {
//			// window skipped; the loop already advanced past it
//			continue
//		}
//		process(page.Records)
//	}
//
// The paginator:
//   - issues exactly one blocking fetch per page, pulled by the consumer
//   - clips the last window (and a short first window) to the remaining rows
//   - yields empty pages as-is instead of stopping early
//   - yields one PageResult per window, with Err set when the fetch failed
//   - never retries; AbortOnError ends the sequence after a failed page
//
// The row count is read once per Pages call. Rows inserted or deleted on the
// ERP side while the loop runs can cause a duplicated or missed row at a
// window boundary.
package pagination
