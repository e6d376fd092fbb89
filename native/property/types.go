package property

import (
	"math/big"

	"github.com/brickvault/corechain/crypto"
)

// EpochDuration and GracePeriod are the fixed investment-window constants
// (spec.md §3).
const (
	EpochDuration = int64(2_592_000) // 30 days, seconds
	GracePeriod   = int64(86_400)    // 1 day, seconds
)

// MaxLoyaltyTier bounds UserPosition.LoyaltyTier (spec.md §3).
const MaxLoyaltyTier = uint64(4)

// TokenMetadata is a Property's immutable-after-init identity (spec.md §3).
type TokenMetadata struct {
	Name        string
	Symbol      string
	Decimals    uint64
	TotalSupply *big.Int
	TokenPrice  *big.Int
	Vault       crypto.Address
	Kyc         crypto.Address
	Stablecoin  crypto.Address
}

// DefaultAnnualRateBps, DefaultCompoundingBonusBps and
// DefaultLoyaltyBonusBps are the RoiConfig defaults fixed at Property
// initialization (spec.md §4.2).
const (
	DefaultAnnualRateBps      = uint64(800)
	DefaultCompoundingBonusBps = uint64(200)
	DefaultLoyaltyBonusBps     = uint64(25)
	// MaxMonthlyYieldBps bounds UpdateRoiConfig (SPEC_FULL.md C.3), a
	// governance ceiling preventing a misconfigured ROI from promising more
	// than the Vault could ever pay out.
	MaxMonthlyYieldBps = uint64(5_000)
)

// RoiConfig is a Property's yield parameters (spec.md §3).
type RoiConfig struct {
	AnnualRateBps       uint64
	CompoundingBonusBps uint64
	LoyaltyBonusBps     uint64
	CashFlowMonthly     *big.Int
}

// UserPosition is a single active investment (spec.md §3).
type UserPosition struct {
	Owner               crypto.Address
	Tokens              *big.Int
	InitialInvestment   *big.Int
	CurrentPrincipal    *big.Int
	CompoundingEnabled  bool
	EpochStart          int64
	ConsecutiveRollovers uint64
	TotalYieldEarned    *big.Int
	LoyaltyTier         uint64
}

// YieldBreakdown is the detailed output of the shared yield computation
// (spec.md §4.4), returned by PreviewYield and consumed internally by
// RolloverPosition/LiquidatePosition.
type YieldBreakdown struct {
	BaseYield        *big.Int
	CompoundingBonus *big.Int
	LoyaltyBonus     *big.Int
	TotalYield       *big.Int
	DaysElapsed      int64
	DaysRemaining    int64
}

// PendingLiquidation records a user's former position's outcome when its
// Vault liquidation request was queued (SPEC_FULL.md C.3
// get_pending_liquidation). It is kept after the Vault pays the request.
type PendingLiquidation struct {
	User      crypto.Address
	RequestID uint64
	Amount    *big.Int
}
