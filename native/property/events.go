package property

import (
	"math/big"
	"strconv"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/native/common"
)

const (
	EventTypeInitialized       = "property.initialized"
	EventTypeTokensPurchased   = "property.tokens_purchased"
	EventTypePositionRolledOver = "property.position_rolled_over"
	EventTypePositionLiquidated = "property.position_liquidated"
	EventTypeRoiConfigUpdated  = "property.roi_config_updated"
	EventTypePositionTransferred = "property.position_transferred"
)

func newInitializedEvent(meta *TokenMetadata) *common.Event {
	return common.NewEvent(EventTypeInitialized).
		Set("name", meta.Name).
		Set("symbol", meta.Symbol).
		Set("totalSupply", meta.TotalSupply.String()).
		Set("tokenPrice", meta.TokenPrice.String()).
		Set("vault", meta.Vault.String())
}

func newTokensPurchasedEvent(buyer crypto.Address, tokens, cost *big.Int, compounding bool) *common.Event {
	return common.NewEvent(EventTypeTokensPurchased).
		Set("buyer", buyer.String()).
		Set("tokens", tokens.String()).
		Set("cost", cost.String()).
		Set("compounding", strconv.FormatBool(compounding))
}

func newPositionRolledOverEvent(user crypto.Address, yield *YieldBreakdown, loyaltyTier uint64) *common.Event {
	return common.NewEvent(EventTypePositionRolledOver).
		Set("user", user.String()).
		Set("totalYield", yield.TotalYield.String()).
		Set("loyaltyTier", strconv.FormatUint(loyaltyTier, 10))
}

func newPositionLiquidatedEvent(user crypto.Address, payout *big.Int, mode string, requestID uint64) *common.Event {
	return common.NewEvent(EventTypePositionLiquidated).
		Set("user", user.String()).
		Set("payout", payout.String()).
		Set("mode", mode).
		Set("requestId", strconv.FormatUint(requestID, 10))
}

func newRoiConfigUpdatedEvent(admin crypto.Address, cfg *RoiConfig) *common.Event {
	return common.NewEvent(EventTypeRoiConfigUpdated).
		Set("admin", admin.String()).
		Set("annualRateBps", strconv.FormatUint(cfg.AnnualRateBps, 10)).
		Set("compoundingBonusBps", strconv.FormatUint(cfg.CompoundingBonusBps, 10)).
		Set("loyaltyBonusBps", strconv.FormatUint(cfg.LoyaltyBonusBps, 10))
}

func newPositionTransferredEvent(from, to crypto.Address) *common.Event {
	return common.NewEvent(EventTypePositionTransferred).
		Set("from", from.String()).
		Set("to", to.String())
}
