package server

import (
	"csms/internal"
	"csms/types"
	"time"
)

// Authorizer decides whether an id tag may charge. The protocol envelope
// is fixed; the policy behind it is meant to be replaced per deployment.
type Authorizer interface {
	Authorize(chargePointId, idTag string) *types.IdTagInfo
}

const tagExpiryPeriod = 24 * time.Hour

// AcceptAuthorizer accepts every non-empty tag with a fixed expiry. A tag
// that is provisioned but disabled is still blocked.
type AcceptAuthorizer struct {
	database internal.Database
}

func NewAcceptAuthorizer(database internal.Database) *AcceptAuthorizer {
	return &AcceptAuthorizer{database: database}
}

func (a *AcceptAuthorizer) Authorize(chargePointId, idTag string) *types.IdTagInfo {
	if idTag == "" {
		return types.NewIdTagInfo(types.AuthorizationStatusInvalid)
	}
	if a.database != nil {
		userTag, err := a.database.GetUserTag(idTag)
		if err == nil && userTag != nil && !userTag.IsEnabled {
			return types.NewIdTagInfo(types.AuthorizationStatusBlocked)
		}
	}
	info := types.NewIdTagInfo(types.AuthorizationStatusAccepted)
	info.ExpiryDate = types.NewDateTime(time.Now().Add(tagExpiryPeriod))
	return info
}
