package models

// Tariff is the configured price for charging on a given charge point,
// optionally narrowed to a single user.
type Tariff struct {
	ChargePointId string  `json:"charge_point_id" bson:"charge_point_id"`
	UserId        string  `json:"user_id" bson:"user_id"`
	PricePerKwh   float64 `json:"price_per_kwh" bson:"price_per_kwh"`
	Currency      string  `json:"currency" bson:"currency"`
}
