package core

import "csms/types"

const MeterValuesFeatureName = "MeterValues"

type MeterValuesRequest struct {
	ConnectorId   int                `json:"connectorId"`
	TransactionId *int               `json:"transactionId,omitempty"`
	MeterValue    []types.MeterValue `json:"meterValue"`
}

type MeterValuesResponse struct {
}

func (r MeterValuesRequest) GetFeatureName() string {
	return MeterValuesFeatureName
}

func (c MeterValuesResponse) GetFeatureName() string {
	return MeterValuesFeatureName
}

func NewMeterValuesResponse() *MeterValuesResponse {
	return &MeterValuesResponse{}
}
