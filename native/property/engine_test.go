package property

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/native/vault"
)

type mockEngineState struct {
	meta       *TokenMetadata
	hasMeta    bool
	admin      crypto.Address
	hasAdmin   bool
	roi        *RoiConfig
	total      *big.Int
	positions  map[string]*UserPosition
	pending    map[string]*PendingLiquidation
}

func newMockEngineState() *mockEngineState {
	return &mockEngineState{
		total:     big.NewInt(0),
		positions: make(map[string]*UserPosition),
		pending:   make(map[string]*PendingLiquidation),
	}
}

func key(addr crypto.Address) string { return string(addr.Bytes()) }

func (m *mockEngineState) GetMetadata() (*TokenMetadata, bool, error) { return m.meta, m.hasMeta, nil }
func (m *mockEngineState) PutMetadata(meta *TokenMetadata) error {
	m.meta = meta
	m.hasMeta = true
	return nil
}
func (m *mockEngineState) GetRoiConfig() (*RoiConfig, error) { return m.roi, nil }
func (m *mockEngineState) PutRoiConfig(cfg *RoiConfig) error { m.roi = cfg; return nil }
func (m *mockEngineState) GetAdmin() (crypto.Address, bool, error) { return m.admin, m.hasAdmin, nil }
func (m *mockEngineState) PutAdmin(admin crypto.Address) error {
	m.admin = admin
	m.hasAdmin = true
	return nil
}
func (m *mockEngineState) GetTotalActiveTokens() (*big.Int, error) { return m.total, nil }
func (m *mockEngineState) PutTotalActiveTokens(total *big.Int) error { m.total = total; return nil }
func (m *mockEngineState) GetPosition(user crypto.Address) (*UserPosition, error) {
	return m.positions[key(user)], nil
}
func (m *mockEngineState) PutPosition(user crypto.Address, pos *UserPosition) error {
	m.positions[key(user)] = pos
	return nil
}
func (m *mockEngineState) DeletePosition(user crypto.Address) error {
	delete(m.positions, key(user))
	return nil
}
func (m *mockEngineState) GetPendingLiquidation(user crypto.Address) (*PendingLiquidation, error) {
	return m.pending[key(user)], nil
}
func (m *mockEngineState) PutPendingLiquidation(pending *PendingLiquidation) error {
	m.pending[key(pending.User)] = pending
	return nil
}
func (m *mockEngineState) DeletePendingLiquidation(user crypto.Address) error {
	delete(m.pending, key(user))
	return nil
}

type mockLedger struct{ transfers int }

func (l *mockLedger) Transfer(from, to crypto.Address, amount *big.Int) error {
	l.transfers++
	return nil
}
func (l *mockLedger) BalanceOf(addr crypto.Address) (*big.Int, error) { return big.NewInt(0), nil }

type mockKyc struct{ tradable map[string]bool }

func newMockKyc() *mockKyc { return &mockKyc{tradable: make(map[string]bool)} }
func (k *mockKyc) IsTradable(user crypto.Address) (bool, error) { return k.tradable[key(user)], nil }

type mockVaultClient struct {
	outcome vault.LiquidationOutcome
	err     error
}

func (v *mockVaultClient) RequestLiquidation(property, user crypto.Address, amount *big.Int) (vault.LiquidationOutcome, error) {
	return v.outcome, v.err
}

func addr(prefix crypto.AddressPrefix, suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = suffix
	return crypto.MustNewAddress(prefix, raw)
}

func newTestEngine() (*Engine, *mockEngineState, *mockKyc, *mockVaultClient, func(int64)) {
	state := newMockEngineState()
	kyc := newMockKyc()
	vc := &mockVaultClient{outcome: vault.LiquidationOutcome{Mode: vault.ModeInstant}}
	e := NewEngine()
	e.SetState(state)
	e.SetLedger(&mockLedger{})
	e.SetKyc(kyc)
	e.SetVault(vc)
	e.SetSelf(addr(crypto.ContractPrefix, 9))
	now := int64(0)
	e.SetClock(func() int64 { return now })
	setNow := func(v int64) { now = v }
	return e, state, kyc, vc, setNow
}

func initializeEngine(t *testing.T, e *Engine, admin crypto.Address) {
	meta := TokenMetadata{
		Name:        "Test Property",
		Symbol:      "TPROP",
		Decimals:    7,
		TotalSupply: big.NewInt(1_000_000_000_000),
		TokenPrice:  big.NewInt(10_000_000),
		Vault:       addr(crypto.ContractPrefix, 1),
		Kyc:         addr(crypto.ContractPrefix, 2),
		Stablecoin:  addr(crypto.ContractPrefix, 3),
	}
	require.NoError(t, e.Initialize(admin, meta, big.NewInt(0)))
}

func TestBasicYieldS1(t *testing.T) {
	e, _, kyc, _, setNow := newTestEngine()
	admin := addr(crypto.InvestorPrefix, 1)
	buyer := addr(crypto.InvestorPrefix, 2)
	initializeEngine(t, e, admin)
	kyc.tradable[key(buyer)] = true

	require.NoError(t, e.PurchaseTokens(buyer, big.NewInt(100_000_000_000), false))
	pos, err := e.GetUserPosition(buyer)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100_000_000_000), pos.CurrentPrincipal)

	setNow(EpochDuration)
	yield, err := e.PreviewYield(buyer)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(666_666_666), yield.TotalYield)

	require.NoError(t, e.LiquidatePosition(buyer))
	_, err = e.GetUserPosition(buyer)
	require.NoError(t, err)
	total, err := e.TotalActiveTokens()
	require.NoError(t, err)
	require.Equal(t, 0, total.Sign())
}

func TestCompoundingLoyaltyProgressionS2(t *testing.T) {
	e, state, _, _, setNow := newTestEngine()
	admin := addr(crypto.InvestorPrefix, 1)
	user := addr(crypto.InvestorPrefix, 2)
	initializeEngine(t, e, admin)

	state.positions[key(user)] = &UserPosition{
		Owner:              user,
		Tokens:             big.NewInt(1),
		InitialInvestment:  big.NewInt(1_000_000),
		CurrentPrincipal:   big.NewInt(1_000_000),
		CompoundingEnabled: true,
		EpochStart:         0,
		TotalYieldEarned:   big.NewInt(0),
	}

	prevPrincipal := big.NewInt(1_000_000)
	for k := uint64(1); k <= 5; k++ {
		setNow(int64(k) * EpochDuration)
		require.NoError(t, e.RolloverPosition(user))
		pos, err := e.GetUserPosition(user)
		require.NoError(t, err)
		require.Equal(t, k, pos.ConsecutiveRollovers)
		expectedTier := k
		if expectedTier > MaxLoyaltyTier {
			expectedTier = MaxLoyaltyTier
		}
		require.Equal(t, expectedTier, pos.LoyaltyTier)
		require.True(t, pos.CurrentPrincipal.Cmp(prevPrincipal) > 0, "compounding principal must strictly increase")
		prevPrincipal = pos.CurrentPrincipal
	}

	final, err := e.GetUserPosition(user)
	require.NoError(t, err)
	require.Equal(t, MaxLoyaltyTier, final.LoyaltyTier)
}

func TestKycGateS6(t *testing.T) {
	e, _, kyc, _, _ := newTestEngine()
	admin := addr(crypto.InvestorPrefix, 1)
	buyer := addr(crypto.InvestorPrefix, 2)
	initializeEngine(t, e, admin)

	err := e.PurchaseTokens(buyer, big.NewInt(100_000_000_000), false)
	require.ErrorIs(t, err, ErrKycRequired)

	kyc.tradable[key(buyer)] = true
	require.NoError(t, e.PurchaseTokens(buyer, big.NewInt(100_000_000_000), false))
	pos, err := e.GetUserPosition(buyer)
	require.NoError(t, err)
	require.NotNil(t, pos)
}

func TestEpochGating(t *testing.T) {
	e, state, _, _, setNow := newTestEngine()
	admin := addr(crypto.InvestorPrefix, 1)
	user := addr(crypto.InvestorPrefix, 2)
	initializeEngine(t, e, admin)
	state.positions[key(user)] = &UserPosition{
		Owner:            user,
		Tokens:           big.NewInt(1),
		CurrentPrincipal: big.NewInt(1_000_000),
		TotalYieldEarned: big.NewInt(0),
		EpochStart:       0,
	}

	setNow(EpochDuration - 1)
	require.ErrorIs(t, e.RolloverPosition(user), ErrEpochNotComplete)

	inGrace, err := e.IsInGracePeriod(user)
	require.NoError(t, err)
	require.True(t, inGrace)

	setNow(EpochDuration)
	require.NoError(t, e.RolloverPosition(user))
}

func TestTransferPositionRequiresKyc(t *testing.T) {
	e, _, kyc, _, _ := newTestEngine()
	admin := addr(crypto.InvestorPrefix, 1)
	buyer := addr(crypto.InvestorPrefix, 2)
	newOwner := addr(crypto.InvestorPrefix, 3)
	initializeEngine(t, e, admin)
	kyc.tradable[key(buyer)] = true
	require.NoError(t, e.PurchaseTokens(buyer, big.NewInt(100_000_000_000), false))

	require.ErrorIs(t, e.TransferPosition(buyer, newOwner), ErrKycRequired)
	kyc.tradable[key(newOwner)] = true
	require.NoError(t, e.TransferPosition(buyer, newOwner))

	_, err := e.GetUserPosition(buyer)
	require.NoError(t, err)
	moved, err := e.GetUserPosition(newOwner)
	require.NoError(t, err)
	require.NotNil(t, moved)
}

func TestEventsEmittedOnInitializeAndPurchase(t *testing.T) {
	e, _, kyc, _, _ := newTestEngine()
	admin := addr(crypto.InvestorPrefix, 1)
	buyer := addr(crypto.InvestorPrefix, 2)
	initializeEngine(t, e, admin)
	kyc.tradable[key(buyer)] = true

	require.NoError(t, e.PurchaseTokens(buyer, big.NewInt(100_000_000_000), false))

	events := e.Events()
	require.Len(t, events, 2)
	require.Equal(t, EventTypeInitialized, events[0].Type)
	require.Equal(t, EventTypeTokensPurchased, events[1].Type)
	require.Equal(t, buyer.String(), events[1].Attributes["buyer"])

	require.Empty(t, e.Events(), "Events() must drain, not just peek")
}
