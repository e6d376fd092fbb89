package vault

import (
	"math/big"
	"strconv"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/native/common"
)

const (
	EventTypeVaultInitialized           = "vault.initialized"
	EventTypeVaultFunded                = "vault.funded"
	EventTypePropertyAuthorized         = "vault.property_authorized"
	EventTypeLiquidityWithdrawn         = "vault.liquidity_withdrawn"
	EventTypeEmergencyPaused            = "vault.emergency_paused"
	EventTypeEmergencyUnpaused          = "vault.emergency_unpaused"
	EventTypeBufferAdjusted             = "vault.buffer_adjusted"
	EventTypeLiquidationExecuted        = "vault.liquidation_executed"
	EventTypeLiquidationQueued          = "vault.liquidation_queued"
	EventTypeControlledModeActivated    = "vault.controlled_mode_activated"
	EventTypeControlledModeDeactivated  = "vault.controlled_mode_deactivated"
)

func newVaultInitializedEvent(admin, vaultAddr, stablecoin crypto.Address) *common.Event {
	return common.NewEvent(EventTypeVaultInitialized).
		Set("admin", admin.String()).
		Set("vault", vaultAddr.String()).
		Set("stablecoin", stablecoin.String())
}

func newVaultFundedEvent(admin crypto.Address, amount *big.Int) *common.Event {
	return common.NewEvent(EventTypeVaultFunded).
		Set("admin", admin.String()).
		Set("amount", amount.String())
}

func newPropertyAuthorizedEvent(property crypto.Address) *common.Event {
	return common.NewEvent(EventTypePropertyAuthorized).Set("property", property.String())
}

func newLiquidityWithdrawnEvent(admin crypto.Address, amount *big.Int) *common.Event {
	return common.NewEvent(EventTypeLiquidityWithdrawn).
		Set("admin", admin.String()).
		Set("amount", amount.String())
}

func newEmergencyPausedEvent(admin crypto.Address) *common.Event {
	return common.NewEvent(EventTypeEmergencyPaused).Set("admin", admin.String())
}

func newEmergencyUnpausedEvent(admin crypto.Address) *common.Event {
	return common.NewEvent(EventTypeEmergencyUnpaused).Set("admin", admin.String())
}

func newBufferAdjustedEvent(admin crypto.Address, percentage uint64) *common.Event {
	return common.NewEvent(EventTypeBufferAdjusted).
		Set("admin", admin.String()).
		Set("bufferPercentage", strconv.FormatUint(percentage, 10))
}

func newLiquidationExecutedEvent(property, user crypto.Address, amount *big.Int, mode LiquidationMode) *common.Event {
	return common.NewEvent(EventTypeLiquidationExecuted).
		Set("property", property.String()).
		Set("user", user.String()).
		Set("amount", amount.String()).
		Set("mode", string(mode))
}

func newLiquidationQueuedEvent(property, user crypto.Address, amount *big.Int, requestID uint64) *common.Event {
	return common.NewEvent(EventTypeLiquidationQueued).
		Set("property", property.String()).
		Set("user", user.String()).
		Set("amount", amount.String()).
		Set("requestId", strconv.FormatUint(requestID, 10))
}

func newControlledModeActivatedEvent() *common.Event {
	return common.NewEvent(EventTypeControlledModeActivated)
}

func newControlledModeDeactivatedEvent() *common.Event {
	return common.NewEvent(EventTypeControlledModeDeactivated)
}
