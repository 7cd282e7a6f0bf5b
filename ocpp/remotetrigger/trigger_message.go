package remotetrigger

const TriggerMessageFeatureName = "TriggerMessage"

type MessageTrigger string

const (
	MessageTriggerBootNotification   MessageTrigger = "BootNotification"
	MessageTriggerHeartbeat          MessageTrigger = "Heartbeat"
	MessageTriggerMeterValues        MessageTrigger = "MeterValues"
	MessageTriggerStatusNotification MessageTrigger = "StatusNotification"
)

type TriggerMessageStatus string

const (
	TriggerMessageStatusAccepted       TriggerMessageStatus = "Accepted"
	TriggerMessageStatusRejected       TriggerMessageStatus = "Rejected"
	TriggerMessageStatusNotImplemented TriggerMessageStatus = "NotImplemented"
)

type TriggerMessageRequest struct {
	RequestedMessage MessageTrigger `json:"requestedMessage"`
	ConnectorId      *int           `json:"connectorId,omitempty"`
}

func (f TriggerMessageRequest) GetFeatureName() string {
	return TriggerMessageFeatureName
}

func NewTriggerMessageRequest(requestedMessage MessageTrigger, connectorId int) *TriggerMessageRequest {
	request := &TriggerMessageRequest{RequestedMessage: requestedMessage}
	if connectorId > 0 {
		request.ConnectorId = &connectorId
	}
	return request
}

type TriggerMessageConfirmation struct {
	Status TriggerMessageStatus `json:"status"`
}

func (f TriggerMessageConfirmation) GetFeatureName() string {
	return TriggerMessageFeatureName
}
