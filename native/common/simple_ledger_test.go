package common

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/storage"
)

func TestSimpleLedgerTransfer(t *testing.T) {
	db := storage.NewMemDB()
	ledger := NewSimpleLedger(db)

	raw := make([]byte, 20)
	raw[19] = 1
	alice := crypto.MustNewAddress(crypto.InvestorPrefix, raw)
	raw2 := make([]byte, 20)
	raw2[19] = 2
	bob := crypto.MustNewAddress(crypto.InvestorPrefix, raw2)

	require.NoError(t, ledger.Credit(alice, big.NewInt(1_000)))
	require.NoError(t, ledger.Transfer(alice, bob, big.NewInt(400)))

	aliceBal, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(600), aliceBal)

	bobBal, err := ledger.BalanceOf(bob)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(400), bobBal)

	err = ledger.Transfer(bob, alice, big.NewInt(10_000))
	require.Error(t, err)
}
