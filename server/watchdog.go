package server

import (
	"csms/internal"
	"csms/metrics/counters"
	"fmt"
	"time"
)

// Watchdog sweeps the registry on a fixed period and evicts connections
// that stayed silent longer than the heartbeat timeout. This is the only
// eviction path besides an explicit transport close, so registry staleness
// is bounded by one sweep period plus the timeout.
type Watchdog struct {
	registry    *Registry
	logger      internal.LogHandler
	checkPeriod time.Duration
	timeout     time.Duration
	stop        chan struct{}
}

func NewWatchdog(registry *Registry, logger internal.LogHandler, checkPeriod, timeout time.Duration) *Watchdog {
	return &Watchdog{
		registry:    registry,
		logger:      logger,
		checkPeriod: checkPeriod,
		timeout:     timeout,
		stop:        make(chan struct{}),
	}
}

func (w *Watchdog) Start() {
	go w.run()
}

func (w *Watchdog) Stop() {
	close(w.stop)
}

func (w *Watchdog) run() {
	ticker := time.NewTicker(w.checkPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.Sweep(time.Now())
		case <-w.stop:
			return
		}
	}
}

// Sweep drops every entry whose last heartbeat is older than the timeout.
func (w *Watchdog) Sweep(now time.Time) {
	for _, entry := range w.registry.Snapshot() {
		silence := now.Sub(entry.LastHeartbeat)
		if silence > w.timeout {
			w.logger.Warn(fmt.Sprintf("no heartbeat from %s for %v, dropping connection", entry.ChargePointId, silence.Round(time.Second)))
			w.registry.Remove(entry.ChargePointId, entry.Connection)
			counters.CountEviction()
		}
	}
}
