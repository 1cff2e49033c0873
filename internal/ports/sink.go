package ports

import (
	"context"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// RecordSink is the append-only export boundary. The ledger and the
// engine emit rows through it and never touch files or databases
// directly.
type RecordSink interface {
	// Record appends one row to the given stream.
	Record(ctx context.Context, stream domain.Stream, row domain.Row) error

	// Close flushes and releases the sink.
	Close() error
}
