package firmware

import "csms/types"

const UpdateFirmwareFeatureName = "UpdateFirmware"

type UpdateFirmwareRequest struct {
	Location      string          `json:"location"`
	Retries       *int            `json:"retries,omitempty"`
	RetrieveDate  *types.DateTime `json:"retrieveDate"`
	RetryInterval *int            `json:"retryInterval,omitempty"`
}

func (r UpdateFirmwareRequest) GetFeatureName() string {
	return UpdateFirmwareFeatureName
}

func NewUpdateFirmwareRequest(location string, retrieveDate *types.DateTime) *UpdateFirmwareRequest {
	return &UpdateFirmwareRequest{Location: location, RetrieveDate: retrieveDate}
}
