package registry

import (
	"context"
	"errors"

	"github.com/orchai-labs/oracle-hub/pkg/models"
)

var (
	// ErrUnavailable wraps collaborator failures; dispatch for the affected
	// key is skipped and reported, never fatal to the round.
	ErrUnavailable = errors.New("registry unavailable")
	// ErrNotFound is returned for unknown subscriber IDs.
	ErrNotFound = errors.New("subscriber not found")
)

// Store is the subscriber registry. The dispatch path only calls Snapshot;
// mutation happens on the admin surface, serialized between rounds.
type Store interface {
	// Snapshot returns the subscribers registered for key. The returned
	// slice is a copy the caller owns.
	Snapshot(ctx context.Context, key string) ([]models.Subscriber, error)
	Register(ctx context.Context, sub models.Subscriber) error
	Unregister(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Subscriber, error)
	List(ctx context.Context) ([]models.Subscriber, error)
	Close() error
}
