package common

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/storage"
)

var keyBalancePrefix = []byte("ledger/balance/")

func balanceKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), keyBalancePrefix...), addr.Bytes()...)
}

// SimpleLedger is a minimal single-asset balance ledger satisfying the
// Ledger interface, standing in for the host runtime's stablecoin transfer
// primitive that spec.md §1 places out of scope. It is intended for the
// daemon's standalone-mode bootstrap and for tests exercising the Vault and
// Property engines against real persistence rather than a mock.
type SimpleLedger struct {
	db storage.Database
}

// NewSimpleLedger wraps db as a Ledger.
func NewSimpleLedger(db storage.Database) *SimpleLedger {
	return &SimpleLedger{db: db}
}

// BalanceOf returns addr's current balance, defaulting to zero.
func (l *SimpleLedger) BalanceOf(addr crypto.Address) (*big.Int, error) {
	raw, err := l.db.Get(balanceKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	var balance big.Int
	if err := rlp.DecodeBytes(raw, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// Credit adds amount to addr's balance, used to fund an account outside of
// a Transfer (e.g. genesis minting for test fixtures and local bootstrap).
func (l *SimpleLedger) Credit(addr crypto.Address, amount *big.Int) error {
	balance, err := l.BalanceOf(addr)
	if err != nil {
		return err
	}
	updated, err := CheckedAdd(balance, amount)
	if err != nil {
		return err
	}
	return l.putBalance(addr, updated)
}

// Transfer moves amount from from's balance to to's, rejecting the transfer
// if from's balance is insufficient.
func (l *SimpleLedger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if err := RequirePositive(amount); err != nil {
		return err
	}
	fromBalance, err := l.BalanceOf(from)
	if err != nil {
		return err
	}
	remaining, err := CheckedSub(fromBalance, amount)
	if err != nil {
		return errors.New("common: insufficient balance for transfer")
	}
	toBalance, err := l.BalanceOf(to)
	if err != nil {
		return err
	}
	credited, err := CheckedAdd(toBalance, amount)
	if err != nil {
		return err
	}
	if err := l.putBalance(from, remaining); err != nil {
		return err
	}
	return l.putBalance(to, credited)
}

func (l *SimpleLedger) putBalance(addr crypto.Address, amount *big.Int) error {
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return l.db.Put(balanceKey(addr), encoded)
}
