package counters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "csms",
	Name:      "connections_active",
	Help:      "Number of registered charge point connections by network class.",
}, []string{"network"})

var transactionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "csms",
	Name:      "transactions_active",
	Help:      "Number of open charging transactions.",
})

var evictionsCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "csms",
	Name:      "heartbeat_evictions_total",
	Help:      "Connections dropped by the heartbeat watchdog.",
})

var frameErrorsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "csms",
	Name:      "frame_errors_total",
	Help:      "Protocol frames answered with a CallError.",
}, []string{"code"})

var powerRateGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "csms",
	Name:      "power_rate_kw",
	Help:      "Last reported charging power per charge point, kW.",
}, []string{"charge_point_id"})

var energyCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "csms",
	Name:      "energy_delivered_kwh_total",
	Help:      "Energy delivered over finished sessions, kWh.",
}, []string{"charge_point_id"})

func ObserveConnections(network string, count int) {
	if len(network) == 0 {
		return
	}
	connectionsGauge.With(prometheus.Labels{"network": network}).Set(float64(count))
}

func ObserveTransactions(count int) {
	transactionsGauge.Set(float64(count))
}

func CountEviction() {
	evictionsCounter.Inc()
}

func CountFrameError(code string) {
	if len(code) == 0 {
		return
	}
	frameErrorsCounter.With(prometheus.Labels{"code": code}).Inc()
}

func ObservePowerRate(chargePointId string, kw float64) {
	if len(chargePointId) == 0 {
		return
	}
	powerRateGauge.With(prometheus.Labels{"charge_point_id": chargePointId}).Set(kw)
}

func CountEnergyDelivered(chargePointId string, kwh float64) {
	if len(chargePointId) == 0 || kwh <= 0 {
		return
	}
	energyCounter.With(prometheus.Labels{"charge_point_id": chargePointId}).Add(kwh)
}
