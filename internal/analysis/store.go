package analysis

import (
	"context"

	"github.com/mbd888/walletscope/internal/pagination"
)

// Store persists analysis reports for the history endpoint. Writes are
// best-effort: a failing store never affects the report returned to the
// caller.
type Store interface {
	// SaveReport persists a completed report.
	SaveReport(ctx context.Context, r *Report) error
	// ListByAddress returns up to limit reports for an address, newest
	// first. A non-nil cursor restricts results to reports generated
	// strictly before the cursor position.
	ListByAddress(ctx context.Context, address string, limit int, cursor *pagination.Cursor) ([]*Report, error)
}
