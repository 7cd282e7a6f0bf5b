package models

import "time"

// ChargingSession is the billing-facing aggregate of one transaction:
// cumulative energy, peak power and the cost estimated against the rate
// captured when the session was opened.
type ChargingSession struct {
	Id            string    `json:"session_id" bson:"session_id"`
	TransactionId int       `json:"transaction_id" bson:"transaction_id"`
	ChargePointId string    `json:"charge_point_id" bson:"charge_point_id"`
	UserId        string    `json:"user_id" bson:"user_id"`
	IdTag         string    `json:"id_tag" bson:"id_tag"`
	IsFinished    bool      `json:"is_finished" bson:"is_finished"`
	TimeStart     time.Time `json:"time_start" bson:"time_start"`
	TimeStop      time.Time `json:"time_stop" bson:"time_stop"`
	// seconds between start and stop, filled on close
	Duration int64 `json:"duration" bson:"duration"`
	// cumulative energy in kWh, never decreases while the session is open
	EnergyKwh float64 `json:"energy_kwh" bson:"energy_kwh"`
	// highest instantaneous power seen, kW
	PeakPowerKw float64 `json:"peak_power_kw" bson:"peak_power_kw"`
	// price per kWh captured at session start, immutable afterwards
	RatePerKwh float64 `json:"rate_per_kwh" bson:"rate_per_kwh"`
	Currency   string  `json:"currency" bson:"currency"`
	// EnergyKwh * RatePerKwh, recomputed on every aggregate change
	EstimatedCost float64 `json:"estimated_cost" bson:"estimated_cost"`
}
