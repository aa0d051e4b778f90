package crypto

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Deriver runs argon2id key derivations through a bounded semaphore.
// Derivation is memory-hard on purpose; without a cap a burst of unlock
// requests would starve every other request on the host.
type Deriver struct {
	params KDFParams
	sem    *semaphore.Weighted
}

// NewDeriver creates a Deriver limited to maxConcurrent simultaneous
// derivations. Zero or negative maxConcurrent defaults to GOMAXPROCS.
func NewDeriver(params KDFParams, maxConcurrent int64) *Deriver {
	if maxConcurrent <= 0 {
		maxConcurrent = int64(runtime.GOMAXPROCS(0))
	}
	return &Deriver{
		params: params.orDefaults(),
		sem:    semaphore.NewWeighted(maxConcurrent),
	}
}

// Params returns the configured KDF parameters.
func (d *Deriver) Params() KDFParams {
	return d.params
}

// Derive blocks until a derivation slot is free, then derives a master key
// from the password and salt. It respects context cancellation while
// waiting for a slot, not during the derivation itself.
func (d *Deriver) Derive(ctx context.Context, password string, salt []byte) (*MasterKey, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire derivation slot: %w", err)
	}
	defer d.sem.Release(1)

	return DeriveKey(password, salt, d.params), nil
}
