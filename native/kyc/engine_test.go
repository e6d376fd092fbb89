package kyc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brickvault/corechain/crypto"
)

type mockRegistryState struct {
	admin    crypto.Address
	hasAdmin bool
	records  map[string]*KycRecord
}

func newMockRegistryState() *mockRegistryState {
	return &mockRegistryState{records: make(map[string]*KycRecord)}
}

func (m *mockRegistryState) key(addr crypto.Address) string { return string(addr.Bytes()) }

func (m *mockRegistryState) GetAdmin() (crypto.Address, bool, error) {
	return m.admin, m.hasAdmin, nil
}

func (m *mockRegistryState) PutAdmin(admin crypto.Address) error {
	m.admin = admin
	m.hasAdmin = true
	return nil
}

func (m *mockRegistryState) GetRecord(user crypto.Address) (*KycRecord, error) {
	return m.records[m.key(user)], nil
}

func (m *mockRegistryState) PutRecord(user crypto.Address, record *KycRecord) error {
	m.records[m.key(user)] = record
	return nil
}

func makeAddress(prefix crypto.AddressPrefix, suffix byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = suffix
	return crypto.MustNewAddress(prefix, raw)
}

func newTestRegistry() (*Registry, *mockRegistryState) {
	state := newMockRegistryState()
	r := NewRegistry()
	r.SetState(state)
	return r, state
}

func TestRegistryInitializeOnce(t *testing.T) {
	r, _ := newTestRegistry()
	admin := makeAddress(crypto.InvestorPrefix, 1)
	require.NoError(t, r.Initialize(admin))
	require.ErrorIs(t, r.Initialize(admin), ErrAlreadyInitialized)
}

func TestDefaultRecordIsUnverifiedPending(t *testing.T) {
	r, _ := newTestRegistry()
	user := makeAddress(crypto.InvestorPrefix, 2)
	verified, err := r.IsKycVerified(user)
	require.NoError(t, err)
	require.False(t, verified)
	status, err := r.GetComplianceStatus(user)
	require.NoError(t, err)
	require.Equal(t, StatusPending, status)
	tradable, err := r.IsTradable(user)
	require.NoError(t, err)
	require.False(t, tradable)
}

func TestSetKycStatusRequiresAdmin(t *testing.T) {
	r, _ := newTestRegistry()
	admin := makeAddress(crypto.InvestorPrefix, 1)
	stranger := makeAddress(crypto.InvestorPrefix, 9)
	user := makeAddress(crypto.InvestorPrefix, 2)
	require.NoError(t, r.Initialize(admin))
	require.ErrorIs(t, r.SetKycStatus(stranger, user, true), ErrNotAdmin)
	require.NoError(t, r.SetKycStatus(admin, user, true))
	verified, err := r.IsKycVerified(user)
	require.NoError(t, err)
	require.True(t, verified)
}

func TestTradableRequiresVerifiedAndApproved(t *testing.T) {
	r, _ := newTestRegistry()
	admin := makeAddress(crypto.InvestorPrefix, 1)
	user := makeAddress(crypto.InvestorPrefix, 2)
	require.NoError(t, r.Initialize(admin))
	require.NoError(t, r.SetKycStatus(admin, user, true))

	tradable, err := r.IsTradable(user)
	require.NoError(t, err)
	require.False(t, tradable, "verified but still pending should not be tradable")

	require.NoError(t, r.SetComplianceStatus(admin, user, StatusApproved))
	tradable, err = r.IsTradable(user)
	require.NoError(t, err)
	require.True(t, tradable)
}

func TestBatchSetKycStatusAtomic(t *testing.T) {
	r, _ := newTestRegistry()
	admin := makeAddress(crypto.InvestorPrefix, 1)
	require.NoError(t, r.Initialize(admin))
	require.ErrorIs(t, r.BatchSetKycStatus(admin, nil), ErrEmptyBatch)

	entries := []KycStatusEntry{
		{User: makeAddress(crypto.InvestorPrefix, 10), Verified: true},
		{User: makeAddress(crypto.InvestorPrefix, 11), Verified: true},
	}
	require.NoError(t, r.BatchSetKycStatus(admin, entries))
	for _, entry := range entries {
		verified, err := r.IsKycVerified(entry.User)
		require.NoError(t, err)
		require.True(t, verified)
	}
}

func TestAdminTransfer(t *testing.T) {
	r, _ := newTestRegistry()
	admin := makeAddress(crypto.InvestorPrefix, 1)
	next := makeAddress(crypto.InvestorPrefix, 2)
	require.NoError(t, r.Initialize(admin))
	require.ErrorIs(t, r.AdminTransfer(next, next), ErrNotAdmin)
	require.NoError(t, r.AdminTransfer(admin, next))
	require.ErrorIs(t, r.SetKycStatus(admin, next, true), ErrNotAdmin)
	require.NoError(t, r.SetKycStatus(next, admin, true))
}

func TestInvalidComplianceStatusRejected(t *testing.T) {
	r, _ := newTestRegistry()
	admin := makeAddress(crypto.InvestorPrefix, 1)
	user := makeAddress(crypto.InvestorPrefix, 2)
	require.NoError(t, r.Initialize(admin))
	require.ErrorIs(t, r.SetComplianceStatus(admin, user, ComplianceStatus(99)), ErrInvalidStatus)
}

func TestEventsEmittedOnInitializeAndStatusUpdate(t *testing.T) {
	r, _ := newTestRegistry()
	admin := makeAddress(crypto.InvestorPrefix, 1)
	user := makeAddress(crypto.InvestorPrefix, 2)
	require.NoError(t, r.Initialize(admin))
	require.NoError(t, r.SetKycStatus(admin, user, true))

	events := r.Events()
	require.Len(t, events, 2)
	require.Equal(t, EventTypeInitialized, events[0].Type)
	require.Equal(t, admin.String(), events[0].Attributes["admin"])
	require.Equal(t, EventTypeKycStatusUpdated, events[1].Type)
	require.Equal(t, user.String(), events[1].Attributes["user"])
	require.Equal(t, "true", events[1].Attributes["verified"])

	require.Empty(t, r.Events(), "Events() must drain, not just peek")
}
