package kyc

import "github.com/brickvault/corechain/crypto"

// ComplianceStatus enumerates the compliance lifecycle states tracked per
// user, matching spec.md §3's KycRecord.status domain.
type ComplianceStatus uint8

const (
	// StatusPending is the default status for any user without an explicit
	// compliance decision on file.
	StatusPending ComplianceStatus = iota
	StatusApproved
	StatusRejected
	StatusSuspended
)

// String renders the status for logs and events.
func (s ComplianceStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the four defined statuses.
func (s ComplianceStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusSuspended:
		return true
	default:
		return false
	}
}

// KycRecord is the per-user verification and compliance state (spec.md §3).
// The zero value is the spec-mandated default for an unknown user:
// unverified, pending.
type KycRecord struct {
	Verified bool
	Status   ComplianceStatus
}

// IsTradable reports whether a user is permitted to purchase property
// tokens: verified and approved (spec.md §4.1).
func (r KycRecord) IsTradable() bool {
	return r.Verified && r.Status == StatusApproved
}

// KycStatusEntry is one element of a BatchSetKycStatus call.
type KycStatusEntry struct {
	User     crypto.Address
	Verified bool
}

// ComplianceStatusEntry is one element of a BatchSetComplianceStatus call.
type ComplianceStatusEntry struct {
	User   crypto.Address
	Status ComplianceStatus
}
