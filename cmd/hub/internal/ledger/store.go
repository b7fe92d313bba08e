package ledger

import (
	"context"
	"errors"

	"github.com/orchai-labs/oracle-hub/pkg/models"
)

// ErrNotFound is returned by Read when no record has ever been committed
// for the key.
var ErrNotFound = errors.New("price key not found")

// Store is the single source of truth for the current price per key.
// Commits are append-only replacements; monotonicity is enforced upstream
// by the validator, never here.
type Store interface {
	// Commit unconditionally replaces the stored record for record.Key and
	// returns the previous record, or nil on first commit.
	Commit(ctx context.Context, record models.PriceRecord) (*models.PriceRecord, error)
	// Read returns the current record for key or ErrNotFound.
	Read(ctx context.Context, key string) (*models.PriceRecord, error)
	// NextRound allocates the next monotonic round number.
	NextRound(ctx context.Context) (uint64, error)
	Close() error
}
