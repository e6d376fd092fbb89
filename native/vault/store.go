package vault

import (
	"encoding/binary"
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/storage"
)

var (
	keyConfig        = []byte("vault/config")
	keyQueue         = []byte("vault/queue")
	keyAuthPrefix    = []byte("vault/authorized/")
	keyRequestPrefix = []byte("vault/request/")
	keyStatsPrefix   = []byte("vault/stats/")
)

func authKey(property crypto.Address) []byte {
	return append(append([]byte(nil), keyAuthPrefix...), property.Bytes()...)
}

// requestKey derives the deterministic storage key for a LiquidationRequest
// id via Keccak256, the same hashing primitive core/identity's
// DeriveAliasID uses for alias ids.
func requestKey(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	hash := ethcrypto.Keccak256(buf)
	return append(append([]byte(nil), keyRequestPrefix...), hash...)
}

// statsKey derives the deterministic storage key for a property's
// PropertyVaultStats from (property) via Keccak256.
func statsKey(property crypto.Address) []byte {
	hash := ethcrypto.Keccak256(property.Bytes())
	return append(append([]byte(nil), keyStatsPrefix...), hash...)
}

type storedConfig struct {
	Admin            string
	VaultAddress     string
	Stablecoin       string
	TotalCapacity    *big.Int
	Available        *big.Int
	BufferPercentage uint64
	ControlledMode   bool
	EmergencyPaused  bool
}

type storedQueue struct {
	Head            uint64
	Tail            uint64
	TotalObligation *big.Int
}

type storedRequest struct {
	ID        uint64
	Property  string
	User      string
	Amount    *big.Int
	Timestamp int64
}

type storedStats struct {
	Property          string
	TotalLiquidated   *big.Int
	LastLiquidationTs int64
	RequestCount      uint64
}

// Store implements the Engine's persistence interface over a
// storage.Database, RLP-encoding every value (SPEC_FULL.md A.2), grounded on
// the swap module's stable-store pattern.
type Store struct {
	db storage.Database
}

// NewStore wraps db for use by an Engine.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func (s *Store) GetConfig() (*VaultConfig, bool, error) {
	raw, err := s.db.Get(keyConfig)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var stored storedConfig
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, false, err
	}
	cfg, err := decodeConfig(&stored)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

func (s *Store) PutConfig(cfg *VaultConfig) error {
	stored := storedConfig{
		Admin:            cfg.Admin.String(),
		VaultAddress:     cfg.VaultAddress.String(),
		Stablecoin:       cfg.Stablecoin.String(),
		TotalCapacity:    normalize(cfg.TotalCapacity),
		Available:        normalize(cfg.Available),
		BufferPercentage: cfg.BufferPercentage,
		ControlledMode:   cfg.ControlledMode,
		EmergencyPaused:  cfg.EmergencyPaused,
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return s.db.Put(keyConfig, encoded)
}

func decodeConfig(stored *storedConfig) (*VaultConfig, error) {
	admin, err := crypto.DecodeAddress(stored.Admin)
	if err != nil {
		return nil, err
	}
	vaultAddr, err := crypto.DecodeAddress(stored.VaultAddress)
	if err != nil {
		return nil, err
	}
	stablecoin, err := crypto.DecodeAddress(stored.Stablecoin)
	if err != nil {
		return nil, err
	}
	return &VaultConfig{
		Admin:            admin,
		VaultAddress:     vaultAddr,
		Stablecoin:       stablecoin,
		TotalCapacity:    normalize(stored.TotalCapacity),
		Available:        normalize(stored.Available),
		BufferPercentage: stored.BufferPercentage,
		ControlledMode:   stored.ControlledMode,
		EmergencyPaused:  stored.EmergencyPaused,
	}, nil
}

func (s *Store) IsAuthorized(property crypto.Address) (bool, error) {
	ok, err := s.db.Has(authKey(property))
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Store) PutAuthorized(property crypto.Address) error {
	return s.db.Put(authKey(property), []byte{1})
}

func (s *Store) GetQueue() (*QueueIndices, error) {
	raw, err := s.db.Get(keyQueue)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &QueueIndices{TotalObligation: big.NewInt(0)}, nil
		}
		return nil, err
	}
	var stored storedQueue
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, err
	}
	return &QueueIndices{Head: stored.Head, Tail: stored.Tail, TotalObligation: normalize(stored.TotalObligation)}, nil
}

func (s *Store) PutQueue(q *QueueIndices) error {
	stored := storedQueue{Head: q.Head, Tail: q.Tail, TotalObligation: normalize(q.TotalObligation)}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return s.db.Put(keyQueue, encoded)
}

func (s *Store) GetRequest(id uint64) (*LiquidationRequest, error) {
	raw, err := s.db.Get(requestKey(id))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var stored storedRequest
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, err
	}
	property, err := crypto.DecodeAddress(stored.Property)
	if err != nil {
		return nil, err
	}
	user, err := crypto.DecodeAddress(stored.User)
	if err != nil {
		return nil, err
	}
	return &LiquidationRequest{
		ID:        stored.ID,
		Property:  property,
		User:      user,
		Amount:    normalize(stored.Amount),
		Timestamp: stored.Timestamp,
	}, nil
}

func (s *Store) PutRequest(req *LiquidationRequest) error {
	stored := storedRequest{
		ID:        req.ID,
		Property:  req.Property.String(),
		User:      req.User.String(),
		Amount:    normalize(req.Amount),
		Timestamp: req.Timestamp,
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return s.db.Put(requestKey(req.ID), encoded)
}

func (s *Store) DeleteRequest(id uint64) error {
	return s.db.Delete(requestKey(id))
}

func (s *Store) GetStats(property crypto.Address) (*PropertyVaultStats, error) {
	raw, err := s.db.Get(statsKey(property))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var stored storedStats
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, err
	}
	return &PropertyVaultStats{
		Property:          property,
		TotalLiquidated:   normalize(stored.TotalLiquidated),
		LastLiquidationTs: stored.LastLiquidationTs,
		RequestCount:      stored.RequestCount,
	}, nil
}

func (s *Store) PutStats(stats *PropertyVaultStats) error {
	stored := storedStats{
		Property:          stats.Property.String(),
		TotalLiquidated:   normalize(stats.TotalLiquidated),
		LastLiquidationTs: stats.LastLiquidationTs,
		RequestCount:      stats.RequestCount,
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return s.db.Put(statsKey(stats.Property), encoded)
}

func normalize(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
