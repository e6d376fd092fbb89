package vault

import (
	"errors"
	"math/big"
	"time"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/native/common"
	"github.com/brickvault/corechain/observability"
)

const moduleName = "vault"

var (
	ErrNotInitialized                = errors.New("vault: not initialized")
	ErrAlreadyInitialized            = errors.New("vault: already initialized")
	ErrNotAdmin                      = errors.New("vault: caller is not the admin")
	ErrNotAuthorizedProperty         = errors.New("vault: property is not authorized")
	ErrAlreadyAuthorized             = errors.New("vault: property already authorized")
	ErrInsufficientBufferOrObligation = errors.New("vault: withdrawal would breach buffer or obligations")
	ErrPostTransferBalanceMismatch   = errors.New("vault: post-transfer balance mismatch")
	ErrSelfReference                 = errors.New("vault: admin may not equal the vault's own address")
	ErrInvalidBufferPercentage       = errors.New("vault: buffer percentage out of range [10,25]")
)

type engineState interface {
	GetConfig() (*VaultConfig, bool, error)
	PutConfig(cfg *VaultConfig) error
	IsAuthorized(property crypto.Address) (bool, error)
	PutAuthorized(property crypto.Address) error
	GetQueue() (*QueueIndices, error)
	PutQueue(q *QueueIndices) error
	GetRequest(id uint64) (*LiquidationRequest, error)
	PutRequest(req *LiquidationRequest) error
	DeleteRequest(id uint64) error
	GetStats(property crypto.Address) (*PropertyVaultStats, error)
	PutStats(stats *PropertyVaultStats) error
}

// Engine implements the Liquidity Vault state machine (spec.md §4.3).
type Engine struct {
	state  engineState
	ledger common.Ledger
	pauses common.PauseView
	clock  func() int64
	events []*common.Event
}

// NewEngine constructs an unwired Engine. Call SetState and SetLedger before use.
func NewEngine() *Engine {
	return &Engine{clock: func() int64 { return time.Now().Unix() }}
}

func (e *Engine) SetState(state engineState)    { e.state = state }
func (e *Engine) SetLedger(ledger common.Ledger) { e.ledger = ledger }
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

// Initialize persists the Vault's singleton configuration. May only be
// called once (spec.md §4.3).
func (e *Engine) Initialize(admin, vaultAddress, stablecoin crypto.Address) error {
	if e == nil || e.state == nil {
		return ErrNotInitialized
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if _, ok, err := e.state.GetConfig(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	if admin.Equal(vaultAddress) {
		return ErrSelfReference
	}
	cfg := &VaultConfig{
		Admin:            admin,
		VaultAddress:     vaultAddress,
		Stablecoin:       stablecoin,
		TotalCapacity:    big.NewInt(0),
		Available:        big.NewInt(0),
		BufferPercentage: DefaultBufferPercentage,
	}
	if err := e.state.PutConfig(cfg); err != nil {
		return err
	}
	if err := e.state.PutQueue(&QueueIndices{TotalObligation: big.NewInt(0)}); err != nil {
		return err
	}
	e.emit(newVaultInitializedEvent(admin, vaultAddress, stablecoin))
	return nil
}

// FundVault pulls amount of the stablecoin from admin into the Vault's
// custody, verifies the post-transfer balance exactly reflects the credited
// amount (guarding against fee-on-transfer tokens), updates capacity and
// available liquidity, and attempts to drain the queue (spec.md §4.3).
func (e *Engine) FundVault(admin crypto.Address, amount *big.Int) error {
	cfg, err := e.requireAdmin(admin)
	if err != nil {
		return err
	}
	if err := common.RequirePositive(amount); err != nil {
		return err
	}

	preBalance, err := e.ledger.BalanceOf(cfg.VaultAddress)
	if err != nil {
		return err
	}
	if err := e.ledger.Transfer(admin, cfg.VaultAddress, amount); err != nil {
		return err
	}
	postBalance, err := e.ledger.BalanceOf(cfg.VaultAddress)
	if err != nil {
		return err
	}
	expected, err := common.CheckedAdd(preBalance, amount)
	if err != nil {
		return err
	}
	if postBalance.Cmp(expected) != 0 {
		return ErrPostTransferBalanceMismatch
	}

	cfg.TotalCapacity, err = common.CheckedAdd(cfg.TotalCapacity, amount)
	if err != nil {
		return err
	}
	cfg.Available, err = common.CheckedAdd(cfg.Available, amount)
	if err != nil {
		return err
	}
	if err := e.state.PutConfig(cfg); err != nil {
		return err
	}
	e.emit(newVaultFundedEvent(admin, amount))
	e.recordMetrics(cfg)
	return e.drainQueue(cfg)
}

// AuthorizeProperty adds property to the set of contracts permitted to call
// RequestLiquidation (spec.md §4.3).
func (e *Engine) AuthorizeProperty(admin, property crypto.Address) error {
	if _, err := e.requireAdminIgnoringPause(admin); err != nil {
		return err
	}
	authorized, err := e.state.IsAuthorized(property)
	if err != nil {
		return err
	}
	if authorized {
		return ErrAlreadyAuthorized
	}
	if err := e.state.PutAuthorized(property); err != nil {
		return err
	}
	if err := e.state.PutStats(&PropertyVaultStats{Property: property, TotalLiquidated: big.NewInt(0)}); err != nil {
		return err
	}
	e.emit(newPropertyAuthorizedEvent(property))
	return nil
}

// WithdrawLiquidity removes amount of available liquidity, rejecting the
// withdrawal if it would breach the buffer or outstanding queue obligations
// (spec.md §4.3).
func (e *Engine) WithdrawLiquidity(admin crypto.Address, amount *big.Int) error {
	cfg, err := e.requireAdmin(admin)
	if err != nil {
		return err
	}
	if err := common.RequirePositive(amount); err != nil {
		return err
	}

	queue, err := e.state.GetQueue()
	if err != nil {
		return err
	}
	buffer, err := bufferThreshold(cfg)
	if err != nil {
		return err
	}
	minimum, err := common.CheckedAdd(buffer, queue.TotalObligation)
	if err != nil {
		return err
	}
	remaining, err := common.CheckedSub(cfg.Available, amount)
	if err != nil {
		return ErrInsufficientBufferOrObligation
	}
	if remaining.Cmp(minimum) < 0 {
		return ErrInsufficientBufferOrObligation
	}

	if err := e.ledger.Transfer(cfg.VaultAddress, admin, amount); err != nil {
		return err
	}
	cfg.Available = remaining
	cfg.TotalCapacity, err = common.CheckedSub(cfg.TotalCapacity, amount)
	if err != nil {
		return err
	}
	if err := e.state.PutConfig(cfg); err != nil {
		return err
	}
	e.emit(newLiquidityWithdrawnEvent(admin, amount))
	e.recordMetrics(cfg)
	return nil
}

// EmergencyPause halts every write path except unpause and, per spec.md §9
// Open Question 2, buffer/authorize administration.
func (e *Engine) EmergencyPause(admin crypto.Address) error {
	cfg, err := e.requireAdminIgnoringPause(admin)
	if err != nil {
		return err
	}
	cfg.EmergencyPaused = true
	if err := e.state.PutConfig(cfg); err != nil {
		return err
	}
	e.emit(newEmergencyPausedEvent(admin))
	return nil
}

// EmergencyUnpause clears the pause flag.
func (e *Engine) EmergencyUnpause(admin crypto.Address) error {
	cfg, err := e.requireAdminIgnoringPause(admin)
	if err != nil {
		return err
	}
	cfg.EmergencyPaused = false
	if err := e.state.PutConfig(cfg); err != nil {
		return err
	}
	e.emit(newEmergencyUnpausedEvent(admin))
	return nil
}

// UpdateBufferPercentage sets BufferPercentage, permitted even while
// emergency-paused (spec.md §9 Open Question 2; it moves no funds).
func (e *Engine) UpdateBufferPercentage(admin crypto.Address, percentage uint64) error {
	cfg, err := e.requireAdminIgnoringPause(admin)
	if err != nil {
		return err
	}
	if percentage < MinBufferPercentage || percentage > MaxBufferPercentage {
		return ErrInvalidBufferPercentage
	}
	cfg.BufferPercentage = percentage
	if err := e.state.PutConfig(cfg); err != nil {
		return err
	}
	e.emit(newBufferAdjustedEvent(admin, percentage))
	return nil
}

// RequestLiquidation is called by an authorized Property to pay user amount,
// either instantly or by enqueuing the request (spec.md §4.3).
func (e *Engine) RequestLiquidation(property, user crypto.Address, amount *big.Int) (LiquidationOutcome, error) {
	if e == nil || e.state == nil {
		return LiquidationOutcome{}, ErrNotInitialized
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return LiquidationOutcome{}, err
	}
	cfg, ok, err := e.state.GetConfig()
	if err != nil {
		return LiquidationOutcome{}, err
	}
	if !ok {
		return LiquidationOutcome{}, ErrNotInitialized
	}
	if cfg.EmergencyPaused {
		return LiquidationOutcome{}, common.ErrModulePaused
	}
	if err := common.RequirePositive(amount); err != nil {
		return LiquidationOutcome{}, err
	}
	authorized, err := e.state.IsAuthorized(property)
	if err != nil {
		return LiquidationOutcome{}, err
	}
	if !authorized {
		return LiquidationOutcome{}, ErrNotAuthorizedProperty
	}

	threshold, err := bufferThreshold(cfg)
	if err != nil {
		return LiquidationOutcome{}, err
	}
	required, err := common.CheckedAdd(threshold, amount)
	if err != nil {
		return LiquidationOutcome{}, err
	}

	if !cfg.ControlledMode && cfg.Available.Cmp(required) >= 0 {
		if err := e.ledger.Transfer(cfg.VaultAddress, user, amount); err != nil {
			return LiquidationOutcome{}, err
		}
		cfg.Available, err = common.CheckedSub(cfg.Available, amount)
		if err != nil {
			return LiquidationOutcome{}, err
		}
		if err := e.state.PutConfig(cfg); err != nil {
			return LiquidationOutcome{}, err
		}
		if err := e.recordLiquidation(property, amount, true); err != nil {
			return LiquidationOutcome{}, err
		}
		e.emit(newLiquidationExecutedEvent(property, user, amount, ModeInstant))
		observability.Vault().RecordLiquidationExecuted(string(ModeInstant))
		e.recordMetrics(cfg)
		return LiquidationOutcome{Mode: ModeInstant}, nil
	}

	queue, err := e.state.GetQueue()
	if err != nil {
		return LiquidationOutcome{}, err
	}
	id := queue.Tail
	req := &LiquidationRequest{ID: id, Property: property, User: user, Amount: new(big.Int).Set(amount), Timestamp: e.clock()}
	if err := e.state.PutRequest(req); err != nil {
		return LiquidationOutcome{}, err
	}
	queue.Tail++
	queue.TotalObligation, err = common.CheckedAdd(queue.TotalObligation, amount)
	if err != nil {
		return LiquidationOutcome{}, err
	}
	if err := e.state.PutQueue(queue); err != nil {
		return LiquidationOutcome{}, err
	}
	wasControlled := cfg.ControlledMode
	cfg.ControlledMode = true
	if err := e.state.PutConfig(cfg); err != nil {
		return LiquidationOutcome{}, err
	}
	if err := e.recordRequestOnly(property); err != nil {
		return LiquidationOutcome{}, err
	}
	e.emit(newLiquidationQueuedEvent(property, user, amount, id))
	if !wasControlled {
		e.emit(newControlledModeActivatedEvent())
	}
	observability.Vault().RecordLiquidationQueued()
	e.recordMetrics(cfg)
	return LiquidationOutcome{Mode: ModeQueued, RequestID: id}, nil
}

// DrainQueue is an admin-triggered re-attempt of the queue drain loop
// (SPEC_FULL.md C.2 addition), identical to the drain automatically run
// after FundVault.
func (e *Engine) DrainQueue(admin crypto.Address) error {
	cfg, err := e.requireAdmin(admin)
	if err != nil {
		return err
	}
	return e.drainQueue(cfg)
}

// drainQueue processes queued requests in strictly increasing id order
// starting from head, stopping at the first request that cannot be funded
// (spec.md §4.3 "Queue drain").
func (e *Engine) drainQueue(cfg *VaultConfig) error {
	queue, err := e.state.GetQueue()
	if err != nil {
		return err
	}
	wasControlled := cfg.ControlledMode
	for queue.Head < queue.Tail {
		req, err := e.state.GetRequest(queue.Head)
		if err != nil {
			return err
		}
		if req == nil {
			queue.Head++
			continue
		}
		threshold, err := bufferThreshold(cfg)
		if err != nil {
			return err
		}
		required, err := common.CheckedAdd(threshold, req.Amount)
		if err != nil {
			return err
		}
		if cfg.Available.Cmp(required) < 0 {
			break
		}
		if err := e.ledger.Transfer(cfg.VaultAddress, req.User, req.Amount); err != nil {
			return err
		}
		cfg.Available, err = common.CheckedSub(cfg.Available, req.Amount)
		if err != nil {
			return err
		}
		if err := e.state.DeleteRequest(req.ID); err != nil {
			return err
		}
		queue.Head++
		queue.TotalObligation, err = common.CheckedSub(queue.TotalObligation, req.Amount)
		if err != nil {
			return err
		}
		if err := e.recordLiquidation(req.Property, req.Amount, false); err != nil {
			return err
		}
		e.emit(newLiquidationExecutedEvent(req.Property, req.User, req.Amount, ModeQueuedDrain))
		observability.Vault().RecordLiquidationExecuted(string(ModeQueuedDrain))
	}
	if err := e.state.PutQueue(queue); err != nil {
		return err
	}
	if queue.Head >= queue.Tail {
		cfg.ControlledMode = false
	}
	if err := e.state.PutConfig(cfg); err != nil {
		return err
	}
	if wasControlled && !cfg.ControlledMode {
		e.emit(newControlledModeDeactivatedEvent())
	}
	e.recordMetrics(cfg)
	return nil
}

func (e *Engine) recordLiquidation(property crypto.Address, amount *big.Int, newRequest bool) error {
	stats, err := e.loadStats(property)
	if err != nil {
		return err
	}
	stats.TotalLiquidated, err = common.CheckedAdd(stats.TotalLiquidated, amount)
	if err != nil {
		return err
	}
	stats.LastLiquidationTs = e.clock()
	if newRequest {
		stats.RequestCount++
	}
	return e.state.PutStats(stats)
}

func (e *Engine) recordRequestOnly(property crypto.Address) error {
	stats, err := e.loadStats(property)
	if err != nil {
		return err
	}
	stats.RequestCount++
	return e.state.PutStats(stats)
}

func (e *Engine) loadStats(property crypto.Address) (*PropertyVaultStats, error) {
	stats, err := e.state.GetStats(property)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &PropertyVaultStats{Property: property, TotalLiquidated: big.NewInt(0)}
	}
	if stats.TotalLiquidated == nil {
		stats.TotalLiquidated = big.NewInt(0)
	}
	return stats, nil
}

func bufferThreshold(cfg *VaultConfig) (*big.Int, error) {
	return common.MulDivFloor(cfg.TotalCapacity, new(big.Int).SetUint64(cfg.BufferPercentage), big.NewInt(100))
}

// recordMetrics snapshots the gauges VaultMetrics tracks (spec.md §8's
// solvency invariants) after any state change that moves available
// liquidity, capacity, or the queue.
func (e *Engine) recordMetrics(cfg *VaultConfig) {
	queue, err := e.state.GetQueue()
	if err != nil {
		return
	}
	observability.Vault().RecordBalances(cfg.Available, cfg.TotalCapacity, queue.Len(), cfg.ControlledMode)
}

// --- Views ---

// GetConfig returns the Vault's singleton configuration.
func (e *Engine) GetConfig() (*VaultConfig, error) {
	cfg, ok, err := e.state.GetConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	return cfg, nil
}

// AvailableLiquidity returns the Vault's current available balance.
func (e *Engine) AvailableLiquidity() (*big.Int, error) {
	cfg, err := e.GetConfig()
	if err != nil {
		return nil, err
	}
	return cfg.Available, nil
}

// TotalCapacityView returns the Vault's net funded capacity.
func (e *Engine) TotalCapacityView() (*big.Int, error) {
	cfg, err := e.GetConfig()
	if err != nil {
		return nil, err
	}
	return cfg.TotalCapacity, nil
}

// IsAuthorized reports whether property may call RequestLiquidation.
func (e *Engine) IsAuthorized(property crypto.Address) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNotInitialized
	}
	return e.state.IsAuthorized(property)
}

// GetQueueStatus returns the aggregate queue state.
func (e *Engine) GetQueueStatus() (*QueueIndices, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotInitialized
	}
	return e.state.GetQueue()
}

// GetQueueEntry returns a single pending request by id (SPEC_FULL.md C.2).
func (e *Engine) GetQueueEntry(id uint64) (*LiquidationRequest, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotInitialized
	}
	return e.state.GetRequest(id)
}

// GetPropertyStats returns the liquidation ledger for property.
func (e *Engine) GetPropertyStats(property crypto.Address) (*PropertyVaultStats, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotInitialized
	}
	return e.loadStats(property)
}

func (e *Engine) requireAdmin(caller crypto.Address) (*VaultConfig, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotInitialized
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	cfg, ok, err := e.state.GetConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	if cfg.EmergencyPaused {
		return nil, common.ErrModulePaused
	}
	if !cfg.Admin.Equal(caller) {
		return nil, ErrNotAdmin
	}
	return cfg, nil
}

// requireAdminIgnoringPause backs the admin operations that remain allowed
// during an emergency pause (spec.md §9 Open Question 2): pausing and
// unpausing, and buffer-percentage/property-authorization administration.
func (e *Engine) requireAdminIgnoringPause(caller crypto.Address) (*VaultConfig, error) {
	if e == nil || e.state == nil {
		return nil, ErrNotInitialized
	}
	cfg, ok, err := e.state.GetConfig()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotInitialized
	}
	if !cfg.Admin.Equal(caller) {
		return nil, ErrNotAdmin
	}
	return cfg, nil
}
