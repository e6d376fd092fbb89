package kyc

import (
	"errors"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/storage"
)

var (
	keyAdmin        = []byte("kyc/admin")
	keyRecordPrefix = []byte("kyc/record/")
)

func recordKey(user crypto.Address) []byte {
	return append(append([]byte(nil), keyRecordPrefix...), user.Bytes()...)
}

type storedRecord struct {
	Verified bool
	Status   uint8
}

// Store implements the registry's persistence interface over a
// storage.Database, RLP-encoding every record (SPEC_FULL.md A.2).
type Store struct {
	db storage.Database
}

// NewStore wraps db for use by a Registry.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// GetAdmin returns the registry admin and whether it has been set.
func (s *Store) GetAdmin() (crypto.Address, bool, error) {
	if s == nil || s.db == nil {
		return crypto.Address{}, false, errors.New("kyc: store not configured")
	}
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

// PutAdmin persists the registry admin.
func (s *Store) PutAdmin(admin crypto.Address) error {
	if s == nil || s.db == nil {
		return errors.New("kyc: store not configured")
	}
	return s.db.Put(keyAdmin, []byte(admin.String()))
}

// GetRecord loads a user's KYC record, returning nil when absent.
func (s *Store) GetRecord(user crypto.Address) (*KycRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("kyc: store not configured")
	}
	raw, err := s.db.Get(recordKey(user))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var stored storedRecord
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, err
	}
	return &KycRecord{Verified: stored.Verified, Status: ComplianceStatus(stored.Status)}, nil
}

// PutRecord persists a user's KYC record.
func (s *Store) PutRecord(user crypto.Address, record *KycRecord) error {
	if s == nil || s.db == nil {
		return errors.New("kyc: store not configured")
	}
	if record == nil {
		record = &KycRecord{}
	}
	stored := storedRecord{Verified: record.Verified, Status: uint8(record.Status)}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return s.db.Put(recordKey(user), encoded)
}
