package smartcharging

import "csms/types"

const SetChargingProfileFeatureName = "SetChargingProfile"

type SetChargingProfileRequest struct {
	ConnectorId     int                    `json:"connectorId"`
	ChargingProfile *types.ChargingProfile `json:"csChargingProfiles"`
}

func (r SetChargingProfileRequest) GetFeatureName() string {
	return SetChargingProfileFeatureName
}

func NewSetChargingProfileRequest(connectorId int, chargingProfile *types.ChargingProfile) *SetChargingProfileRequest {
	return &SetChargingProfileRequest{ConnectorId: connectorId, ChargingProfile: chargingProfile}
}

// NewTransactionChargingProfile builds a relative TxProfile limiting the
// running transaction to the given amperage.
func NewTransactionChargingProfile(transactionId, limit int) *types.ChargingProfile {
	period := types.ChargingSchedulePeriod{
		StartPeriod: 0,
		Limit:       float64(limit),
	}
	return &types.ChargingProfile{
		ChargingProfileId:      10,
		StackLevel:             10,
		TransactionId:          transactionId,
		ChargingProfilePurpose: types.ChargingProfilePurposeTxProfile,
		ChargingProfileKind:    types.ChargingProfileKindRelative,
		ChargingSchedule: &types.ChargingSchedule{
			ChargingRateUnit: types.ChargingRateUnitAmperes,
			ChargingSchedulePeriod: []types.ChargingSchedulePeriod{
				period,
			},
		},
	}
}

// NewDefaultChargingProfile builds a TxDefaultProfile applying the given
// amperage limit to every future transaction on the connector.
func NewDefaultChargingProfile(limit int) *types.ChargingProfile {
	period := types.ChargingSchedulePeriod{
		StartPeriod: 0,
		Limit:       float64(limit),
	}
	return &types.ChargingProfile{
		ChargingProfileId:      1,
		StackLevel:             1,
		ChargingProfilePurpose: types.ChargingProfilePurposeTxDefaultProfile,
		ChargingProfileKind:    types.ChargingProfileKindRelative,
		ChargingSchedule: &types.ChargingSchedule{
			ChargingRateUnit: types.ChargingRateUnitAmperes,
			ChargingSchedulePeriod: []types.ChargingSchedulePeriod{
				period,
			},
		},
	}
}
