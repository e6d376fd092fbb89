package vault

import (
	"math/big"

	"github.com/brickvault/corechain/crypto"
)

// VaultConfig is the Vault's singleton state (spec.md §3).
type VaultConfig struct {
	Admin            crypto.Address
	VaultAddress     crypto.Address
	Stablecoin       crypto.Address
	TotalCapacity    *big.Int
	Available        *big.Int
	BufferPercentage uint64
	ControlledMode   bool
	EmergencyPaused  bool
}

// MinBufferPercentage and MaxBufferPercentage bound BufferPercentage
// (spec.md §3).
const (
	MinBufferPercentage     = 10
	MaxBufferPercentage     = 25
	DefaultBufferPercentage = 15
)

// LiquidationRequest is a single pending queue entry (spec.md §3).
type LiquidationRequest struct {
	ID        uint64
	Property  crypto.Address
	User      crypto.Address
	Amount    *big.Int
	Timestamp int64
}

// QueueIndices tracks the FIFO liquidation queue's head/tail plus the
// running sum of amounts still owed to queued requests, so WithdrawLiquidity
// and DrainQueue never need to materialize the whole queue to compute
// obligations (spec.md §9 design note).
type QueueIndices struct {
	Head            uint64
	Tail            uint64
	TotalObligation *big.Int
}

// Len returns the number of entries currently between head and tail. This is
// an upper bound on live entries (entries are only ever removed from the
// head, never skipped), matching spec.md §8 property 3 (FIFO).
func (q *QueueIndices) Len() uint64 {
	if q == nil || q.Tail <= q.Head {
		return 0
	}
	return q.Tail - q.Head
}

// PropertyVaultStats is the per-property liquidation ledger (spec.md §3,
// extended with RequestCount per SPEC_FULL.md C.2).
type PropertyVaultStats struct {
	Property          crypto.Address
	TotalLiquidated   *big.Int
	LastLiquidationTs int64
	RequestCount      uint64
}

// LiquidationMode discriminates how a liquidation request was or will be
// settled, replacing a sentinel boolean per spec.md §9's tagged-variant note.
type LiquidationMode string

const (
	ModeInstant     LiquidationMode = "instant"
	ModeQueued      LiquidationMode = "queued"
	ModeQueuedDrain LiquidationMode = "queued_drain"
)

// LiquidationOutcome is returned by RequestLiquidation so callers can
// distinguish an instant payout from a queued one without inspecting events.
type LiquidationOutcome struct {
	Mode      LiquidationMode
	RequestID uint64
}
