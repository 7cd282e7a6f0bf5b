package firmware

import "csms/types"

const GetDiagnosticsFeatureName = "GetDiagnostics"

type GetDiagnosticsRequest struct {
	Location      string          `json:"location"`
	Retries       *int            `json:"retries,omitempty"`
	RetryInterval *int            `json:"retryInterval,omitempty"`
	StartTime     *types.DateTime `json:"startTime,omitempty"`
	StopTime      *types.DateTime `json:"stopTime,omitempty"`
}

func (r GetDiagnosticsRequest) GetFeatureName() string {
	return GetDiagnosticsFeatureName
}

func NewGetDiagnosticsRequest(location string) *GetDiagnosticsRequest {
	return &GetDiagnosticsRequest{Location: location}
}
