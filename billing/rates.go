package billing

import (
	"csms/internal"
	"csms/models"
	"fmt"
)

// RateService resolves the price per kWh applicable to a charging session.
// The rate is read once when the session opens and captured on the session
// record; later tariff changes never affect a running session.
type RateService interface {
	GetRate(chargePointId, userId string) (float64, string)
}

type Rates struct {
	database internal.Database
	logger   internal.LogHandler
	// used when no tariff is configured for the charge point
	defaultRate float64
	currency    string
}

func NewRates(defaultRate float64, currency string) *Rates {
	return &Rates{
		defaultRate: defaultRate,
		currency:    currency,
	}
}

func (r *Rates) SetDatabase(database internal.Database) {
	r.database = database
}

func (r *Rates) SetLogger(logger internal.LogHandler) {
	r.logger = logger
}

func (r *Rates) GetRate(chargePointId, userId string) (float64, string) {
	if r.database == nil {
		return r.defaultRate, r.currency
	}
	tariff, err := r.database.GetTariff(chargePointId, userId)
	if err != nil || tariff == nil {
		if r.logger != nil {
			r.logger.Debug(fmt.Sprintf("no tariff for %s, using default rate %0.2f", chargePointId, r.defaultRate))
		}
		return r.defaultRate, r.currency
	}
	currency := tariff.Currency
	if currency == "" {
		currency = r.currency
	}
	return tariff.PricePerKwh, currency
}

// SessionCost is the estimated price of the energy delivered so far.
func SessionCost(session *models.ChargingSession) float64 {
	return session.EnergyKwh * session.RatePerKwh
}
