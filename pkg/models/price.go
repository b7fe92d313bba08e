package models

import (
	"fmt"
	"math/big"
)

// MaxPrice is the largest value representable on the wire: 2^128 - 1.
var MaxPrice, _ = new(big.Int).SetString("340282366920938463463374607431768211455", 10)

// PriceRecord is the committed state for one price key. Records are
// immutable once committed; the next commit supersedes, never mutates.
type PriceRecord struct {
	Key       string `json:"key"`
	Price     string `json:"price"`     // decimal unsigned 128-bit integer
	Timestamp uint64 `json:"timestamp"` // external monotonic clock value
	Round     uint64 `json:"round"`     // monotonic per-hub round counter
}

// RoundEntry is a single update attempt inside a submitted batch.
type RoundEntry struct {
	Key       string `json:"key"`
	Price     string `json:"price"`
	Timestamp uint64 `json:"timestamp"`
}

// RoundBatch is the set of update attempts submitted together. It only
// lives until every entry is validated and dispatched; the round number
// stamped on resulting records is allocated by the hub, not the caller.
type RoundBatch struct {
	Source  string       `json:"source"`
	Entries []RoundEntry `json:"entries"`
}

// ParsePrice parses a decimal unsigned 128-bit integer.
// Prices travel as strings to avoid float rounding (and because the wire
// format predates anything Go can hold natively).
func ParsePrice(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty price")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("price %q is not an unsigned decimal integer", s)
		}
	}
	p, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("price %q is not an unsigned decimal integer", s)
	}
	if p.Cmp(MaxPrice) > 0 {
		return nil, fmt.Errorf("price %q exceeds 128 bits", s)
	}
	return p, nil
}
