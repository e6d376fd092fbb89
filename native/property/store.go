package property

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/storage"
)

var (
	keyMetadata           = []byte("property/metadata")
	keyAdmin              = []byte("property/admin")
	keyRoiConfig          = []byte("property/roi_config")
	keyTotalActiveTokens  = []byte("property/total_active_tokens")
	keyPositionPrefix     = []byte("property/position/")
	keyPendingLiqPrefix   = []byte("property/pending_liquidation/")
)

func positionKey(user crypto.Address) []byte {
	return append(append([]byte(nil), keyPositionPrefix...), user.Bytes()...)
}

func pendingLiqKey(user crypto.Address) []byte {
	return append(append([]byte(nil), keyPendingLiqPrefix...), user.Bytes()...)
}

type storedMetadata struct {
	Name        string
	Symbol      string
	Decimals    uint64
	TotalSupply *big.Int
	TokenPrice  *big.Int
	Vault       string
	Kyc         string
	Stablecoin  string
}

type storedRoiConfig struct {
	AnnualRateBps       uint64
	CompoundingBonusBps uint64
	LoyaltyBonusBps     uint64
	CashFlowMonthly     *big.Int
}

type storedPosition struct {
	Owner                string
	Tokens               *big.Int
	InitialInvestment    *big.Int
	CurrentPrincipal     *big.Int
	CompoundingEnabled   bool
	EpochStart           int64
	ConsecutiveRollovers uint64
	TotalYieldEarned     *big.Int
	LoyaltyTier          uint64
}

type storedPendingLiquidation struct {
	User      string
	RequestID uint64
	Amount    *big.Int
}

// Store implements the Engine's persistence interface over a
// storage.Database, RLP-encoding every value, grounded on the swap module's
// stable-store pattern.
type Store struct {
	db storage.Database
}

// NewStore wraps db for use by an Engine.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func (s *Store) GetMetadata() (*TokenMetadata, bool, error) {
	raw, err := s.db.Get(keyMetadata)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var stored storedMetadata
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, err
	}
	meta, err := decodeMetadata(&stored)
	if err != nil {
		return nil, false, err
	}
	return meta, true, nil
}

func (s *Store) PutMetadata(meta *TokenMetadata) error {
	stored := storedMetadata{
		Name:        meta.Name,
		Symbol:      meta.Symbol,
		Decimals:    meta.Decimals,
		TotalSupply: meta.TotalSupply,
		TokenPrice:  meta.TokenPrice,
		Vault:       meta.Vault.String(),
		Kyc:         meta.Kyc.String(),
		Stablecoin:  meta.Stablecoin.String(),
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return s.db.Put(keyMetadata, encoded)
}

func decodeMetadata(stored *storedMetadata) (*TokenMetadata, error) {
	vaultAddr, err := crypto.DecodeAddress(stored.Vault)
	if err != nil {
		return nil, err
	}
	kycAddr, err := crypto.DecodeAddress(stored.Kyc)
	if err != nil {
		return nil, err
	}
	stablecoin, err := crypto.DecodeAddress(stored.Stablecoin)
	if err != nil {
		return nil, err
	}
	return &TokenMetadata{
		Name:        stored.Name,
		Symbol:      stored.Symbol,
		Decimals:    stored.Decimals,
		TotalSupply: normalize(stored.TotalSupply),
		TokenPrice:  normalize(stored.TokenPrice),
		Vault:       vaultAddr,
		Kyc:         kycAddr,
		Stablecoin:  stablecoin,
	}, nil
}

func (s *Store) GetAdmin() (crypto.Address, bool, error) {
	raw, err := s.db.Get(keyAdmin)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return crypto.Address{}, false, nil
		}
		return crypto.Address{}, false, err
	}
	admin, err := crypto.DecodeAddress(string(raw))
	if err != nil {
		return crypto.Address{}, false, err
	}
	return admin, true, nil
}

func (s *Store) PutAdmin(admin crypto.Address) error {
	return s.db.Put(keyAdmin, []byte(admin.String()))
}

func (s *Store) GetRoiConfig() (*RoiConfig, error) {
	raw, err := s.db.Get(keyRoiConfig)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var stored storedRoiConfig
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, err
	}
	return &RoiConfig{
		AnnualRateBps:       stored.AnnualRateBps,
		CompoundingBonusBps: stored.CompoundingBonusBps,
		LoyaltyBonusBps:     stored.LoyaltyBonusBps,
		CashFlowMonthly:     normalize(stored.CashFlowMonthly),
	}, nil
}

func (s *Store) PutRoiConfig(cfg *RoiConfig) error {
	stored := storedRoiConfig{
		AnnualRateBps:       cfg.AnnualRateBps,
		CompoundingBonusBps: cfg.CompoundingBonusBps,
		LoyaltyBonusBps:     cfg.LoyaltyBonusBps,
		CashFlowMonthly:     normalize(cfg.CashFlowMonthly),
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return s.db.Put(keyRoiConfig, encoded)
}

func (s *Store) GetTotalActiveTokens() (*big.Int, error) {
	raw, err := s.db.Get(keyTotalActiveTokens)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	var total big.Int
	if err := rlp.DecodeBytes(raw, &total); err != nil {
		return nil, err
	}
	return &total, nil
}

func (s *Store) PutTotalActiveTokens(total *big.Int) error {
	encoded, err := rlp.EncodeToBytes(normalize(total))
	if err != nil {
		return err
	}
	return s.db.Put(keyTotalActiveTokens, encoded)
}

func (s *Store) GetPosition(user crypto.Address) (*UserPosition, error) {
	raw, err := s.db.Get(positionKey(user))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var stored storedPosition
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, err
	}
	owner, err := crypto.DecodeAddress(stored.Owner)
	if err != nil {
		return nil, err
	}
	return &UserPosition{
		Owner:                owner,
		Tokens:               normalize(stored.Tokens),
		InitialInvestment:    normalize(stored.InitialInvestment),
		CurrentPrincipal:     normalize(stored.CurrentPrincipal),
		CompoundingEnabled:   stored.CompoundingEnabled,
		EpochStart:           stored.EpochStart,
		ConsecutiveRollovers: stored.ConsecutiveRollovers,
		TotalYieldEarned:     normalize(stored.TotalYieldEarned),
		LoyaltyTier:          stored.LoyaltyTier,
	}, nil
}

func (s *Store) PutPosition(user crypto.Address, pos *UserPosition) error {
	stored := storedPosition{
		Owner:                pos.Owner.String(),
		Tokens:               normalize(pos.Tokens),
		InitialInvestment:    normalize(pos.InitialInvestment),
		CurrentPrincipal:     normalize(pos.CurrentPrincipal),
		CompoundingEnabled:   pos.CompoundingEnabled,
		EpochStart:           pos.EpochStart,
		ConsecutiveRollovers: pos.ConsecutiveRollovers,
		TotalYieldEarned:     normalize(pos.TotalYieldEarned),
		LoyaltyTier:          pos.LoyaltyTier,
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return s.db.Put(positionKey(user), encoded)
}

func (s *Store) DeletePosition(user crypto.Address) error {
	return s.db.Delete(positionKey(user))
}

func (s *Store) GetPendingLiquidation(user crypto.Address) (*PendingLiquidation, error) {
	raw, err := s.db.Get(pendingLiqKey(user))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var stored storedPendingLiquidation
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, err
	}
	addr, err := crypto.DecodeAddress(stored.User)
	if err != nil {
		return nil, err
	}
	return &PendingLiquidation{User: addr, RequestID: stored.RequestID, Amount: normalize(stored.Amount)}, nil
}

func (s *Store) PutPendingLiquidation(pending *PendingLiquidation) error {
	stored := storedPendingLiquidation{
		User:      pending.User.String(),
		RequestID: pending.RequestID,
		Amount:    normalize(pending.Amount),
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return s.db.Put(pendingLiqKey(pending.User), encoded)
}

func (s *Store) DeletePendingLiquidation(user crypto.Address) error {
	return s.db.Delete(pendingLiqKey(user))
}

func normalize(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
