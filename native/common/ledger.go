package common

import (
	"math/big"

	"github.com/brickvault/corechain/crypto"
)

// Ledger is the fungible-token transfer primitive the host runtime supplies
// (spec.md §6: "transfer(from, to, amount)", "balance(address)"). The Vault
// and Property engines depend only on this interface and never reach into a
// concrete account/balance representation, since the underlying ledger is an
// external collaborator out of this core's scope (spec.md §1).
type Ledger interface {
	// Transfer moves amount of the configured stablecoin from from to to.
	// Implementations must debit and credit atomically and return an error
	// without partial effect if either side cannot be completed.
	Transfer(from, to crypto.Address, amount *big.Int) error
	// BalanceOf returns the current stablecoin balance held by addr.
	BalanceOf(addr crypto.Address) (*big.Int, error)
}
