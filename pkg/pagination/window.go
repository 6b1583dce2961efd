package pagination

import "fmt"

// Window is an offset/limit slice of a collection fetched in one request.
type Window struct {
	Offset int
	Limit  int
}

// String implements fmt.Stringer.
func (w Window) String() string {
	return fmt.Sprintf("[%d,+%d)", w.Offset, w.Limit)
}

// First returns the first window of a collection with total rows. The limit
// is clipped when total is smaller than pageSize; total <= 0 yields a zero
// window.
func First(total, pageSize int) Window {
	if total <= 0 || pageSize <= 0 {
		return Window{}
	}
	return Window{Offset: 0, Limit: min(pageSize, total)}
}

// Next advances past w. The new limit is kept unless it would meet or pass
// total, in which case it becomes the remaining row count. A zero Limit
// means the scan is done.
func (w Window) Next(total int) Window {
	offset := w.Offset + w.Limit
	if offset >= total {
		return Window{Offset: offset}
	}
	limit := w.Limit
	if offset+limit >= total {
		limit = total - offset
	}
	return Window{Offset: offset, Limit: limit}
}

// Windows lists every window of a scan over total rows.
func Windows(total, pageSize int) []Window {
	var windows []Window
	for w := First(total, pageSize); w.Limit > 0; w = w.Next(total) {
		windows = append(windows, w)
	}
	return windows
}
