package core

import "csms/types"

const StatusNotificationFeatureName = "StatusNotification"

type ChargePointErrorCode string

type ChargePointStatus string

const (
	ConnectorLockFailure ChargePointErrorCode = "ConnectorLockFailure"
	EVCommunicationError ChargePointErrorCode = "EVCommunicationError"
	GroundFailure        ChargePointErrorCode = "GroundFailure"
	HighTemperature      ChargePointErrorCode = "HighTemperature"
	InternalError        ChargePointErrorCode = "InternalError"
	NoError              ChargePointErrorCode = "NoError"
	OtherError           ChargePointErrorCode = "OtherError"
	OverCurrentFailure   ChargePointErrorCode = "OverCurrentFailure"
	OverVoltage          ChargePointErrorCode = "OverVoltage"
	PowerMeterFailure    ChargePointErrorCode = "PowerMeterFailure"
	PowerSwitchFailure   ChargePointErrorCode = "PowerSwitchFailure"
	ReaderFailure        ChargePointErrorCode = "ReaderFailure"
	ResetFailure         ChargePointErrorCode = "ResetFailure"
	UnderVoltage         ChargePointErrorCode = "UnderVoltage"
	WeakSignal           ChargePointErrorCode = "WeakSignal"

	ChargePointStatusAvailable     ChargePointStatus = "Available"
	ChargePointStatusPreparing     ChargePointStatus = "Preparing"
	ChargePointStatusCharging      ChargePointStatus = "Charging"
	ChargePointStatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	ChargePointStatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	ChargePointStatusFinishing     ChargePointStatus = "Finishing"
	ChargePointStatusReserved      ChargePointStatus = "Reserved"
	ChargePointStatusUnavailable   ChargePointStatus = "Unavailable"
	ChargePointStatusFaulted       ChargePointStatus = "Faulted"
)

// GetStatus maps a stored status string back to the protocol vocabulary,
// defaulting to Unavailable for anything unknown.
func GetStatus(status string) ChargePointStatus {
	switch status {
	case "Available":
		return ChargePointStatusAvailable
	case "Preparing":
		return ChargePointStatusPreparing
	case "Charging":
		return ChargePointStatusCharging
	case "SuspendedEVSE":
		return ChargePointStatusSuspendedEVSE
	case "SuspendedEV":
		return ChargePointStatusSuspendedEV
	case "Finishing":
		return ChargePointStatusFinishing
	case "Reserved":
		return ChargePointStatusReserved
	case "Faulted":
		return ChargePointStatusFaulted
	default:
		return ChargePointStatusUnavailable
	}
}

type StatusNotificationRequest struct {
	ConnectorId     int                  `json:"connectorId"`
	ErrorCode       ChargePointErrorCode `json:"errorCode"`
	Info            string               `json:"info,omitempty"`
	Status          ChargePointStatus    `json:"status"`
	Timestamp       *types.DateTime      `json:"timestamp,omitempty"`
	VendorId        string               `json:"vendorId,omitempty"`
	VendorErrorCode string               `json:"vendorErrorCode,omitempty"`
}

type StatusNotificationResponse struct {
}

func (r StatusNotificationRequest) GetFeatureName() string {
	return StatusNotificationFeatureName
}

func (r StatusNotificationResponse) GetFeatureName() string {
	return StatusNotificationFeatureName
}

func NewStatusNotificationResponse() *StatusNotificationResponse {
	return &StatusNotificationResponse{}
}
