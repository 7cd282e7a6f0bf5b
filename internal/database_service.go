package internal

import "csms/models"

// Database is the persistence collaborator of the protocol core. All
// operations are single-statement writes or reads keyed by charge point
// or transaction identifier.
type Database interface {
	WriteLogMessage(data Data) error

	GetChargePoints() ([]models.ChargePoint, error)
	GetChargePoint(id string) (*models.ChargePoint, error)
	UpdateChargePoint(chargePoint *models.ChargePoint) error
	SetChargePointOnline(id string, online bool) error
	SetChargePointConnection(id, address, network string) error

	GetUserTag(id string) (*models.UserTag, error)

	AddTransaction(transaction *models.Transaction) error
	UpdateTransaction(transaction *models.Transaction) error
	GetTransaction(id int) (*models.Transaction, error)
	GetLastTransaction() (*models.Transaction, error)
	GetActiveTransaction(chargePointId string) (*models.Transaction, error)

	AddChargingSession(session *models.ChargingSession) error
	UpdateChargingSession(session *models.ChargingSession) error
	GetOpenChargingSession(chargePointId string) (*models.ChargingSession, error)

	AddMeterSample(sample *models.MeterSample) error

	GetTariff(chargePointId, userId string) (*models.Tariff, error)

	GetSubscriptions() ([]models.UserSubscription, error)
	AddSubscription(subscription *models.UserSubscription) error
	DeleteSubscription(subscription *models.UserSubscription) error
}

type Data interface {
	DataType() string
}
