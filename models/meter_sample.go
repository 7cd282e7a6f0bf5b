package models

import "time"

// MeterSample is one raw metering record as received from a charge point.
// Samples are append-only audit data; live aggregation happens on the
// ChargingSession instead.
type MeterSample struct {
	TransactionId int       `json:"transaction_id" bson:"transaction_id"`
	ChargePointId string    `json:"charge_point_id" bson:"charge_point_id"`
	ConnectorId   int       `json:"connector_id" bson:"connector_id"`
	Time          time.Time `json:"time" bson:"time"`
	Measurand     string    `json:"measurand" bson:"measurand"`
	Value         string    `json:"value" bson:"value"`
	Unit          string    `json:"unit" bson:"unit"`
	Context       string    `json:"context" bson:"context"`
}
