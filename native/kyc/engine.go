package kyc

import (
	"errors"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/native/common"
)

var (
	ErrNotInitialized      = errors.New("kyc: registry not initialized")
	ErrAlreadyInitialized  = errors.New("kyc: registry already initialized")
	ErrNotAdmin            = errors.New("kyc: caller is not the registry admin")
	ErrEmptyBatch          = errors.New("kyc: batch must contain at least one entry")
	ErrInvalidStatus       = errors.New("kyc: invalid compliance status")
)

const moduleName = "kyc"

type registryState interface {
	GetAdmin() (crypto.Address, bool, error)
	PutAdmin(admin crypto.Address) error
	GetRecord(user crypto.Address) (*KycRecord, error)
	PutRecord(user crypto.Address, record *KycRecord) error
}

// Registry is the KYC state machine described in spec.md §4.1: a per-user
// mapping to {verified?, compliance status}, administered by its own admin.
type Registry struct {
	state  registryState
	pauses common.PauseView
	events []*common.Event
}

// NewRegistry constructs an unwired Registry. Call SetState before use.
func NewRegistry() *Registry {
	return &Registry{}
}

// SetState wires the registry to its persistence layer.
func (r *Registry) SetState(state registryState) { r.state = state }

// SetPauses wires an optional pause view consulted by every write path.
func (r *Registry) SetPauses(p common.PauseView) { r.pauses = p }

// Events drains and returns the events accumulated since the last call.
func (r *Registry) Events() []*common.Event {
	if r == nil {
		return nil
	}
	out := r.events
	r.events = nil
	return out
}

func (r *Registry) emit(evt *common.Event) {
	r.events = append(r.events, evt)
}

// Initialize persists the registry admin. May only be called once.
func (r *Registry) Initialize(admin crypto.Address) error {
	if r == nil || r.state == nil {
		return ErrNotInitialized
	}
	if err := common.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	_, ok, err := r.state.GetAdmin()
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}
	if err := r.state.PutAdmin(admin); err != nil {
		return err
	}
	r.emit(newInitializedEvent(admin))
	return nil
}

// AdminTransfer rotates the registry admin (SPEC_FULL.md C.1 addition).
func (r *Registry) AdminTransfer(caller, newAdmin crypto.Address) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if err := r.state.PutAdmin(newAdmin); err != nil {
		return err
	}
	r.emit(newAdminTransferredEvent(caller, newAdmin))
	return nil
}

// SetKycStatus upserts a user's verification flag. Admin only.
func (r *Registry) SetKycStatus(caller, user crypto.Address, verified bool) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	record, err := r.loadRecord(user)
	if err != nil {
		return err
	}
	record.Verified = verified
	if err := r.state.PutRecord(user, record); err != nil {
		return err
	}
	r.emit(newKycStatusUpdatedEvent(user, verified))
	return nil
}

// SetComplianceStatus upserts a user's compliance status. Admin only.
func (r *Registry) SetComplianceStatus(caller, user crypto.Address, status ComplianceStatus) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if !status.Valid() {
		return ErrInvalidStatus
	}
	record, err := r.loadRecord(user)
	if err != nil {
		return err
	}
	record.Status = status
	if err := r.state.PutRecord(user, record); err != nil {
		return err
	}
	r.emit(newComplianceUpdatedEvent(user, status))
	return nil
}

// BatchSetKycStatus applies every entry of the batch (SPEC_FULL.md C.1).
// Every record is loaded before the first write, so a rejected batch
// persists nothing; a storage error during the writes leaves the entries
// written before it in place.
func (r *Registry) BatchSetKycStatus(caller crypto.Address, entries []KycStatusEntry) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if len(entries) == 0 {
		return ErrEmptyBatch
	}
	records := make([]*KycRecord, len(entries))
	for i, entry := range entries {
		record, err := r.loadRecord(entry.User)
		if err != nil {
			return err
		}
		record.Verified = entry.Verified
		records[i] = record
	}
	for i, entry := range entries {
		if err := r.state.PutRecord(entry.User, records[i]); err != nil {
			return err
		}
		r.emit(newKycStatusUpdatedEvent(entry.User, entry.Verified))
	}
	return nil
}

// BatchSetComplianceStatus applies every entry of the batch (SPEC_FULL.md
// C.1). Every status is validated and every record loaded before the first
// write, so a rejected batch persists nothing; a storage error during the
// writes leaves the entries written before it in place.
func (r *Registry) BatchSetComplianceStatus(caller crypto.Address, entries []ComplianceStatusEntry) error {
	if err := r.requireAdmin(caller); err != nil {
		return err
	}
	if len(entries) == 0 {
		return ErrEmptyBatch
	}
	for _, entry := range entries {
		if !entry.Status.Valid() {
			return ErrInvalidStatus
		}
	}
	records := make([]*KycRecord, len(entries))
	for i, entry := range entries {
		record, err := r.loadRecord(entry.User)
		if err != nil {
			return err
		}
		record.Status = entry.Status
		records[i] = record
	}
	for i, entry := range entries {
		if err := r.state.PutRecord(entry.User, records[i]); err != nil {
			return err
		}
		r.emit(newComplianceUpdatedEvent(entry.User, entry.Status))
	}
	return nil
}

// IsKycVerified reports whether user has been marked verified. Missing users
// default to false, per spec.md §3.
func (r *Registry) IsKycVerified(user crypto.Address) (bool, error) {
	record, err := r.loadRecord(user)
	if err != nil {
		return false, err
	}
	return record.Verified, nil
}

// GetComplianceStatus returns user's compliance status, defaulting to
// StatusPending when no record exists.
func (r *Registry) GetComplianceStatus(user crypto.Address) (ComplianceStatus, error) {
	record, err := r.loadRecord(user)
	if err != nil {
		return StatusPending, err
	}
	return record.Status, nil
}

// IsTradable reports whether user is verified and approved, the gate
// Property.purchase_tokens consults (spec.md §4.1/§4.2).
func (r *Registry) IsTradable(user crypto.Address) (bool, error) {
	record, err := r.loadRecord(user)
	if err != nil {
		return false, err
	}
	return record.IsTradable(), nil
}

func (r *Registry) loadRecord(user crypto.Address) (*KycRecord, error) {
	if r == nil || r.state == nil {
		return nil, ErrNotInitialized
	}
	record, err := r.state.GetRecord(user)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = &KycRecord{}
	}
	return record, nil
}

func (r *Registry) requireAdmin(caller crypto.Address) error {
	if r == nil || r.state == nil {
		return ErrNotInitialized
	}
	if err := common.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	admin, ok, err := r.state.GetAdmin()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialized
	}
	if !admin.Equal(caller) {
		return ErrNotAdmin
	}
	return nil
}
