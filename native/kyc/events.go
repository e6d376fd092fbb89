package kyc

import (
	"strconv"

	"github.com/brickvault/corechain/crypto"
	"github.com/brickvault/corechain/native/common"
)

const (
	EventTypeInitialized       = "kyc.initialized"
	EventTypeAdminTransferred  = "kyc.admin_transferred"
	EventTypeKycStatusUpdated  = "kyc.status_updated"
	EventTypeComplianceUpdated = "kyc.compliance_updated"
)

func newInitializedEvent(admin crypto.Address) *common.Event {
	return common.NewEvent(EventTypeInitialized).Set("admin", admin.String())
}

func newAdminTransferredEvent(previous, next crypto.Address) *common.Event {
	return common.NewEvent(EventTypeAdminTransferred).
		Set("previousAdmin", previous.String()).
		Set("newAdmin", next.String())
}

func newKycStatusUpdatedEvent(user crypto.Address, verified bool) *common.Event {
	return common.NewEvent(EventTypeKycStatusUpdated).
		Set("user", user.String()).
		Set("verified", strconv.FormatBool(verified))
}

func newComplianceUpdatedEvent(user crypto.Address, status ComplianceStatus) *common.Event {
	return common.NewEvent(EventTypeComplianceUpdated).
		Set("user", user.String()).
		Set("status", status.String())
}
