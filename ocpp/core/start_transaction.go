package core

import "csms/types"

const StartTransactionFeatureName = "StartTransaction"

type StartTransactionRequest struct {
	ConnectorId   int             `json:"connectorId"`
	IdTag         string          `json:"idTag"`
	MeterStart    int             `json:"meterStart"`
	ReservationId *int            `json:"reservationId,omitempty"`
	Timestamp     *types.DateTime `json:"timestamp"`
}

type StartTransactionResponse struct {
	IdTagInfo     *types.IdTagInfo `json:"idTagInfo"`
	TransactionId int              `json:"transactionId"`
}

func (r StartTransactionRequest) GetFeatureName() string {
	return StartTransactionFeatureName
}

func (c StartTransactionResponse) GetFeatureName() string {
	return StartTransactionFeatureName
}

func NewStartTransactionResponse(idTagInfo *types.IdTagInfo, transactionId int) *StartTransactionResponse {
	return &StartTransactionResponse{IdTagInfo: idTagInfo, TransactionId: transactionId}
}
