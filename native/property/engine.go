package property

import (
	"errors"
	"math/big"
	"time"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/native/common"
	"github.com/brickvault/corechain/native/vault"
	"github.com/brickvault/corechain/observability"
)

const moduleName = "property"

var (
	ErrNotInitialized      = errors.New("property: not initialized")
	ErrAlreadyInitialized  = errors.New("property: already initialized")
	ErrNotAdmin            = errors.New("property: caller is not the admin")
	ErrKycRequired         = errors.New("property: buyer is not KYC-tradable")
	ErrNoActivePosition    = errors.New("property: no active position")
	ErrPositionAlreadyExists = errors.New("property: position already exists")
	ErrEpochNotComplete    = errors.New("property: epoch has not elapsed")
	ErrSupplyExceeded      = errors.New("property: token amount exceeds remaining supply")
	ErrInvalidRoiConfig    = errors.New("property: roi config is negative or exceeds the monthly yield ceiling")
	ErrTransferTargetTaken = errors.New("property: target already holds a position")
)

// KycChecker is the narrow read surface Property consults at purchase and
// transfer time (spec.md §1 treats KYC as an internal collaborator, but the
// Property engine only ever needs this one predicate).
type KycChecker interface {
	IsTradable(user crypto.Address) (bool, error)
}

// VaultClient is the narrow surface Property uses to request a liquidation
// payout from the Vault (spec.md §4.2 "invoke Vault.request_liquidation").
type VaultClient interface {
	RequestLiquidation(property, user crypto.Address, amount *big.Int) (vault.LiquidationOutcome, error)
}

type engineState interface {
	GetMetadata() (*TokenMetadata, bool, error)
	PutMetadata(meta *TokenMetadata) error
	GetRoiConfig() (*RoiConfig, error)
	PutRoiConfig(cfg *RoiConfig) error
	GetAdmin() (crypto.Address, bool, error)
	PutAdmin(admin crypto.Address) error
	GetTotalActiveTokens() (*big.Int, error)
	PutTotalActiveTokens(total *big.Int) error
	GetPosition(user crypto.Address) (*UserPosition, error)
	PutPosition(user crypto.Address, pos *UserPosition) error
	DeletePosition(user crypto.Address) error
	GetPendingLiquidation(user crypto.Address) (*PendingLiquidation, error)
	PutPendingLiquidation(pending *PendingLiquidation) error
	DeletePendingLiquidation(user crypto.Address) error
}

// Engine implements a single Property's position-lifecycle state machine
// (spec.md §4.2).
type Engine struct {
	state  engineState
	ledger common.Ledger
	kyc    KycChecker
	vault  VaultClient
	self   crypto.Address
	pauses common.PauseView
	clock  func() int64
	events []*common.Event
}

// NewEngine constructs an unwired Engine.
func NewEngine() *Engine {
	return &Engine{clock: func() int64 { return time.Now().Unix() }}
}

func (e *Engine) SetState(state engineState)    { e.state = state }
func (e *Engine) SetLedger(ledger common.Ledger) { e.ledger = ledger }
func (e *Engine) SetKyc(kyc KycChecker)          { e.kyc = kyc }
func (e *Engine) SetVault(v VaultClient)         { e.vault = v }
func (e *Engine) SetSelf(self crypto.Address)    { e.self = self }
func (e *Engine) SetPauses(p common.PauseView)   { e.pauses = p }

// SetClock overrides the time source for deterministic testing.
func (e *Engine) SetClock(clock func() int64) {
	if clock != nil {
		e.clock = clock
	}
}

// Events drains and returns the events accumulated since the last call.
func (e *Engine) Events() []*common.Event {
	if e == nil {
		return nil
	}
	out := e.events
	e.events = nil
	return out
}

func (e *Engine) emit(evt *common.Event) { e.events = append(e.events, evt) }

// Initialize fixes a Property's immutable metadata and default RoiConfig,
// and records the admin authorized to call UpdateRoiConfig (spec.md §4.2).
func (e *Engine) Initialize(admin crypto.Address, meta TokenMetadata, cashFlowMonthly *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNotInitialized
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if _, ok, err := e.state.GetMetadata(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	if err := common.RequirePositive(meta.TotalSupply); err != nil {
		return err
	}
	if err := common.RequirePositive(meta.TokenPrice); err != nil {
		return err
	}
	if err := e.state.PutMetadata(&meta); err != nil {
		return err
	}
	if err := e.state.PutAdmin(admin); err != nil {
		return err
	}
	if err := e.state.PutTotalActiveTokens(big.NewInt(0)); err != nil {
		return err
	}
	cfg := &RoiConfig{
		AnnualRateBps:       DefaultAnnualRateBps,
		CompoundingBonusBps: DefaultCompoundingBonusBps,
		LoyaltyBonusBps:     DefaultLoyaltyBonusBps,
		CashFlowMonthly:     cashFlowMonthly,
	}
	if err := e.state.PutRoiConfig(cfg); err != nil {
		return err
	}
	e.emit(newInitializedEvent(&meta))
	return nil
}

// PurchaseTokens sells tokenAmount tokens to buyer for USDC, creating their
// position (spec.md §4.2).
func (e *Engine) PurchaseTokens(buyer crypto.Address, tokenAmount *big.Int, enableCompounding bool) error {
	meta, err := e.requireMetadata()
	if err != nil {
		return err
	}
	if err := common.RequirePositive(tokenAmount); err != nil {
		return err
	}
	tradable, err := e.kyc.IsTradable(buyer)
	if err != nil {
		return err
	}
	if !tradable {
		return ErrKycRequired
	}
	existing, err := e.state.GetPosition(buyer)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrPositionAlreadyExists
	}

	totalActive, err := e.state.GetTotalActiveTokens()
	if err != nil {
		return err
	}
	remaining, err := common.CheckedSub(meta.TotalSupply, totalActive)
	if err != nil {
		return err
	}
	if tokenAmount.Cmp(remaining) > 0 {
		return ErrSupplyExceeded
	}

	scale := new(big.Int).Exp(big.NewInt(10), new(big.Int).SetUint64(meta.Decimals), nil)
	cost, err := common.MulDivFloor(tokenAmount, meta.TokenPrice, scale)
	if err != nil {
		return err
	}
	if err := common.RequirePositive(cost); err != nil {
		return err
	}

	if err := e.ledger.Transfer(buyer, e.self, cost); err != nil {
		return err
	}

	pos := &UserPosition{
		Owner:              buyer,
		Tokens:             new(big.Int).Set(tokenAmount),
		InitialInvestment:  new(big.Int).Set(cost),
		CurrentPrincipal:   new(big.Int).Set(cost),
		CompoundingEnabled: enableCompounding,
		EpochStart:         e.clock(),
		TotalYieldEarned:   big.NewInt(0),
	}
	if err := e.state.PutPosition(buyer, pos); err != nil {
		return err
	}
	newTotal, err := common.CheckedAdd(totalActive, tokenAmount)
	if err != nil {
		return err
	}
	if err := e.state.PutTotalActiveTokens(newTotal); err != nil {
		return err
	}
	e.emit(newTokensPurchasedEvent(buyer, tokenAmount, cost, enableCompounding))
	observability.Vault().RecordActiveTokens(e.self.String(), newTotal)
	return nil
}

// RolloverPosition advances user's position to a new epoch, crediting yield
// and, if compounding is enabled, folding it into the principal (spec.md
// §4.2).
func (e *Engine) RolloverPosition(user crypto.Address) error {
	if _, err := e.requireMetadata(); err != nil {
		return err
	}
	pos, err := e.requirePosition(user)
	if err != nil {
		return err
	}
	now := e.clock()
	if !epochElapsed(pos, now) {
		return ErrEpochNotComplete
	}
	roi, err := e.state.GetRoiConfig()
	if err != nil {
		return err
	}
	yield, err := computeYield(pos, roi, now)
	if err != nil {
		return err
	}
	if pos.CompoundingEnabled {
		pos.CurrentPrincipal, err = common.CheckedAdd(pos.CurrentPrincipal, yield.TotalYield)
		if err != nil {
			return err
		}
	}
	pos.TotalYieldEarned, err = common.CheckedAdd(pos.TotalYieldEarned, yield.TotalYield)
	if err != nil {
		return err
	}
	pos.ConsecutiveRollovers++
	pos.LoyaltyTier = loyaltyTier(pos.ConsecutiveRollovers)
	pos.EpochStart = now
	if err := e.state.PutPosition(user, pos); err != nil {
		return err
	}
	e.emit(newPositionRolledOverEvent(user, yield, pos.LoyaltyTier))
	return nil
}

// LiquidatePosition terminates user's position for principal + final yield,
// routing the payout through the Vault (spec.md §4.2).
func (e *Engine) LiquidatePosition(user crypto.Address) error {
	if _, err := e.requireMetadata(); err != nil {
		return err
	}
	pos, err := e.requirePosition(user)
	if err != nil {
		return err
	}
	now := e.clock()
	if !epochElapsed(pos, now) {
		return ErrEpochNotComplete
	}
	roi, err := e.state.GetRoiConfig()
	if err != nil {
		return err
	}
	yield, err := computeYield(pos, roi, now)
	if err != nil {
		return err
	}
	payout, err := common.CheckedAdd(pos.CurrentPrincipal, yield.TotalYield)
	if err != nil {
		return err
	}

	outcome, err := e.vault.RequestLiquidation(e.self, user, payout)
	if err != nil {
		return err
	}

	totalActive, err := e.state.GetTotalActiveTokens()
	if err != nil {
		return err
	}
	newTotal, err := common.CheckedSub(totalActive, pos.Tokens)
	if err != nil {
		return err
	}
	if err := e.state.PutTotalActiveTokens(newTotal); err != nil {
		return err
	}
	if err := e.state.DeletePosition(user); err != nil {
		return err
	}
	if outcome.Mode == vault.ModeQueued {
		if err := e.state.PutPendingLiquidation(&PendingLiquidation{User: user, RequestID: outcome.RequestID, Amount: payout}); err != nil {
			return err
		}
	}
	e.emit(newPositionLiquidatedEvent(user, payout, string(outcome.Mode), outcome.RequestID))
	observability.Vault().RecordActiveTokens(e.self.String(), newTotal)
	return nil
}

// UpdateRoiConfig replaces the Property's yield parameters, rejecting any
// configuration whose maximum possible monthly yield exceeds
// MaxMonthlyYieldBps (SPEC_FULL.md C.3).
func (e *Engine) UpdateRoiConfig(admin crypto.Address, cfg RoiConfig) error {
	if err := e.requireAdmin(admin); err != nil {
		return err
	}
	if cfg.CashFlowMonthly != nil && cfg.CashFlowMonthly.Sign() < 0 {
		return ErrInvalidRoiConfig
	}
	monthlyBase := cfg.AnnualRateBps / 12
	monthlyCompounding := cfg.CompoundingBonusBps / 12
	monthlyLoyalty := cfg.LoyaltyBonusBps * MaxLoyaltyTier
	if monthlyBase+monthlyCompounding+monthlyLoyalty > MaxMonthlyYieldBps {
		return ErrInvalidRoiConfig
	}
	if err := e.state.PutRoiConfig(&cfg); err != nil {
		return err
	}
	e.emit(newRoiConfigUpdatedEvent(admin, &cfg))
	return nil
}

// TransferPosition moves user's position to newOwner, an ownership
// relocation rather than a sale (SPEC_FULL.md C.3): no price changes hands.
func (e *Engine) TransferPosition(user, newOwner crypto.Address) error {
	if _, err := e.requireMetadata(); err != nil {
		return err
	}
	pos, err := e.requirePosition(user)
	if err != nil {
		return err
	}
	existing, err := e.state.GetPosition(newOwner)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrTransferTargetTaken
	}
	tradable, err := e.kyc.IsTradable(newOwner)
	if err != nil {
		return err
	}
	if !tradable {
		return ErrKycRequired
	}
	pos.Owner = newOwner
	if err := e.state.PutPosition(newOwner, pos); err != nil {
		return err
	}
	if err := e.state.DeletePosition(user); err != nil {
		return err
	}
	e.emit(newPositionTransferredEvent(user, newOwner))
	return nil
}

// --- Views ---

func (e *Engine) GetUserPosition(user crypto.Address) (*UserPosition, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotInitialized
	}
	return e.state.GetPosition(user)
}

// PreviewYield computes the yield a rollover or liquidation would currently
// realize, without mutating state (spec.md §4.2, §4.4).
func (e *Engine) PreviewYield(user crypto.Address) (*YieldBreakdown, error) {
	pos, err := e.requirePosition(user)
	if err != nil {
		return nil, err
	}
	roi, err := e.state.GetRoiConfig()
	if err != nil {
		return nil, err
	}
	return computeYield(pos, roi, e.clock())
}

// CanTakeAction reports whether the current epoch has elapsed for user.
func (e *Engine) CanTakeAction(user crypto.Address) (bool, error) {
	pos, err := e.requirePosition(user)
	if err != nil {
		return false, err
	}
	return epochElapsed(pos, e.clock()), nil
}

// IsInGracePeriod reports whether no more than EpochDuration+GracePeriod
// has passed since epoch_start (spec.md §4.2). It also returns true while
// the epoch itself is still running.
func (e *Engine) IsInGracePeriod(user crypto.Address) (bool, error) {
	pos, err := e.requirePosition(user)
	if err != nil {
		return false, err
	}
	elapsed := e.clock() - pos.EpochStart
	return elapsed <= EpochDuration+GracePeriod, nil
}

func (e *Engine) GetMetadata() (*TokenMetadata, error) {
	return e.requireMetadata()
}

func (e *Engine) GetRoiConfig() (*RoiConfig, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotInitialized
	}
	return e.state.GetRoiConfig()
}

func (e *Engine) TotalActiveTokens() (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotInitialized
	}
	return e.state.GetTotalActiveTokens()
}

// GetPendingLiquidation returns the record written when a user's
// liquidation was queued by the Vault (SPEC_FULL.md C.3). The record is not
// removed when the Vault later pays the request out; the Vault's
// GetQueueEntry for its RequestID returns nil once it has been paid.
func (e *Engine) GetPendingLiquidation(user crypto.Address) (*PendingLiquidation, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotInitialized
	}
	return e.state.GetPendingLiquidation(user)
}

// --- internals ---

func (e *Engine) requireMetadata() (*TokenMetadata, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotInitialized
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	meta, ok, err := e.state.GetMetadata()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return meta, nil
}

func (e *Engine) requirePosition(user crypto.Address) (*UserPosition, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotInitialized
	}
	pos, err := e.state.GetPosition(user)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrNoActivePosition
	}
	return pos, nil
}

func (e *Engine) requireAdmin(caller crypto.Address) error {
	if e == nil || e.state == nil {
		return ErrNotInitialized
	}
	admin, ok, err := e.state.GetAdmin()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialized
	}
	if !admin.Equal(caller) {
		return ErrNotAdmin
	}
	return nil
}

func epochElapsed(pos *UserPosition, now int64) bool {
	return now >= pos.EpochStart+EpochDuration
}

func loyaltyTier(consecutiveRollovers uint64) uint64 {
	if consecutiveRollovers > MaxLoyaltyTier {
		return MaxLoyaltyTier
	}
	return consecutiveRollovers
}

// computeYield implements spec.md §4.4's single-step fixed-point formula,
// computing P*rate/(12*10_000) in one division per term to avoid the
// precision loss a two-step "divide by 12, then by 10 000" would introduce.
func computeYield(pos *UserPosition, roi *RoiConfig, now int64) (*YieldBreakdown, error) {
	denominator := new(big.Int).Mul(big.NewInt(12), common.BasisPointsDenominator)
	P := pos.CurrentPrincipal

	baseYield, err := common.MulDivFloor(P, new(big.Int).SetUint64(roi.AnnualRateBps), denominator)
	if err != nil {
		return nil, err
	}

	compoundingBonus := big.NewInt(0)
	if pos.CompoundingEnabled {
		compoundingBonus, err = common.MulDivFloor(P, new(big.Int).SetUint64(roi.CompoundingBonusBps), denominator)
		if err != nil {
			return nil, err
		}
	}

	tierScaledBps := new(big.Int).Mul(new(big.Int).SetUint64(pos.LoyaltyTier), new(big.Int).SetUint64(roi.LoyaltyBonusBps))
	loyaltyBonus, err := common.MulDivFloor(P, tierScaledBps, denominator)
	if err != nil {
		return nil, err
	}

	total, err := common.CheckedAdd(baseYield, compoundingBonus)
	if err != nil {
		return nil, err
	}
	total, err = common.CheckedAdd(total, loyaltyBonus)
	if err != nil {
		return nil, err
	}

	daysElapsed := (now - pos.EpochStart) / 86_400
	daysRemaining := int64(30) - daysElapsed
	if daysRemaining < 0 {
		daysRemaining = 0
	}

	return &YieldBreakdown{
		BaseYield:        baseYield,
		CompoundingBonus: compoundingBonus,
		LoyaltyBonus:     loyaltyBonus,
		TotalYield:       total,
		DaysElapsed:      daysElapsed,
		DaysRemaining:    daysRemaining,
	}, nil
}
