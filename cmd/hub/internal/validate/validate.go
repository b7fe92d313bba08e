package validate

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/orchai-labs/oracle-hub/pkg/models"
)

var (
	// ErrUnauthorized aborts the entire round before any commit.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStalePrice marks an entry whose timestamp or round fails to
	// advance beyond the committed record.
	ErrStalePrice = errors.New("stale price")
	// ErrInvalidPrice marks a zero, malformed, or ceiling-exceeding price.
	ErrInvalidPrice = errors.New("invalid price")
)

// Validator enforces authorization, staleness, and sanity rules before
// commit. It never touches the ledger itself, so a whole batch can be
// pre-validated before the first commit is applied.
type Validator struct {
	source string

	mu      sync.RWMutex
	ceiling *big.Int
}

func New(sourceToken, ceiling string) (*Validator, error) {
	c, err := models.ParsePrice(ceiling)
	if err != nil {
		return nil, fmt.Errorf("price ceiling: %w", err)
	}
	return &Validator{source: sourceToken, ceiling: c}, nil
}

// Authorize checks the caller against the designated price-source
// principal.
func (v *Validator) Authorize(source string) error {
	if source == "" || source != v.source {
		return ErrUnauthorized
	}
	return nil
}

// CheckEntry validates one batch entry against the current record for its
// key (nil means never committed) and returns the pending record to
// commit. round is the number allocated for this batch; passing the same
// round for a key twice makes the second entry stale by construction.
func (v *Validator) CheckEntry(entry models.RoundEntry, round uint64, current *models.PriceRecord) (models.PriceRecord, error) {
	price, err := models.ParsePrice(entry.Price)
	if err != nil {
		return models.PriceRecord{}, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	if price.Sign() == 0 {
		return models.PriceRecord{}, fmt.Errorf("%w: price is zero", ErrInvalidPrice)
	}

	v.mu.RLock()
	over := price.Cmp(v.ceiling) > 0
	v.mu.RUnlock()
	if over {
		return models.PriceRecord{}, fmt.Errorf("%w: price exceeds sanity ceiling", ErrInvalidPrice)
	}

	if current != nil {
		if entry.Timestamp <= current.Timestamp {
			return models.PriceRecord{}, fmt.Errorf("%w: timestamp %d does not advance beyond %d",
				ErrStalePrice, entry.Timestamp, current.Timestamp)
		}
		if round <= current.Round {
			return models.PriceRecord{}, fmt.Errorf("%w: round %d does not advance beyond %d",
				ErrStalePrice, round, current.Round)
		}
	}

	return models.PriceRecord{
		Key:       entry.Key,
		Price:     price.String(),
		Timestamp: entry.Timestamp,
		Round:     round,
	}, nil
}

// SetCeiling replaces the sanity ceiling (admin surface).
func (v *Validator) SetCeiling(ceiling string) error {
	c, err := models.ParsePrice(ceiling)
	if err != nil {
		return fmt.Errorf("price ceiling: %w", err)
	}
	v.mu.Lock()
	v.ceiling = c
	v.mu.Unlock()
	return nil
}

// Ceiling returns the current sanity ceiling as a decimal string.
func (v *Validator) Ceiling() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.ceiling.String()
}
