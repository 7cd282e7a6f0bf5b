package server

import (
	"csms/internal"
	"csms/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchdogEvictsSilentConnections(t *testing.T) {
	logger := &silentLogger{}
	database := newMemoryDatabase()
	database.chargePoints["CP001"] = models.ChargePoint{Id: "CP001"}
	database.chargePoints["CP002"] = models.ChargePoint{Id: "CP002"}
	registry := NewRegistry(database, internal.NewSyncQueue(logger), logger)
	watchdog := NewWatchdog(registry, logger, 40*time.Second, 40*time.Second)

	silent := &fakeConn{}
	alive := &fakeConn{}
	require.True(t, registry.Register("CP001", silent, "10.0.0.1:1001"))
	require.True(t, registry.Register("CP002", alive, "10.0.0.2:1002"))

	// CP002 heartbeats, CP001 stays silent past the timeout
	registry.Touch("CP002")
	registry.mux.Lock()
	registry.entries["CP001"].LastHeartbeat = time.Now().Add(-41 * time.Second)
	registry.mux.Unlock()
	watchdog.Sweep(time.Now())

	_, foundSilent := registry.Lookup("CP001")
	_, foundAlive := registry.Lookup("CP002")
	assert.False(t, foundSilent)
	assert.True(t, foundAlive)
	assert.True(t, silent.IsClosed())
	assert.False(t, alive.IsClosed())

	cp, err := database.GetChargePoint("CP001")
	require.NoError(t, err)
	assert.False(t, cp.IsOnline)
}

func TestWatchdogKeepsRecentConnections(t *testing.T) {
	logger := &silentLogger{}
	registry := NewRegistry(nil, internal.NewSyncQueue(logger), logger)
	watchdog := NewWatchdog(registry, logger, 40*time.Second, 40*time.Second)

	require.True(t, registry.Register("CP001", &fakeConn{}, "10.0.0.1:1001"))

	watchdog.Sweep(time.Now().Add(39 * time.Second))

	assert.Equal(t, 1, registry.Count())
}
