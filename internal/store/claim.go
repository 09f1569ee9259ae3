package store

import "context"

// ClaimGuard lets cooperating worker processes skip task signatures another
// process has already claimed. Best effort only: the checkpoint files remain
// the source of truth, and a lost claim at worst costs a duplicate search that
// the aggregator dedupes away.
type ClaimGuard interface {
	// Claim returns true if this process now owns the signature, false if
	// another process claimed it first.
	Claim(ctx context.Context, signature string) (bool, error)
	Close() error
}
