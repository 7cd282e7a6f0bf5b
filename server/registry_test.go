package server

import (
	"csms/internal"
	"csms/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *memoryDatabase) {
	t.Helper()
	logger := &silentLogger{}
	database := newMemoryDatabase()
	database.chargePoints["CP001"] = models.ChargePoint{Id: "CP001", IsEnabled: true}
	database.chargePoints["CP002"] = models.ChargePoint{Id: "CP002", IsEnabled: true}
	return NewRegistry(database, internal.NewSyncQueue(logger), logger), database
}

func TestRegistryRejectsUnknownChargePoint(t *testing.T) {
	registry, _ := newTestRegistry(t)

	ok := registry.Register("GHOST", &fakeConn{}, "203.0.113.7:50110")

	assert.False(t, ok)
	assert.Equal(t, 0, registry.Count())
	_, found := registry.Lookup("GHOST")
	assert.False(t, found)
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	registry, database := newTestRegistry(t)
	conn := &fakeConn{}

	ok := registry.Register("CP001", conn, "192.168.1.20:33812")
	require.True(t, ok)

	entry, found := registry.Lookup("CP001")
	require.True(t, found)
	assert.Equal(t, "CP001", entry.ChargePointId)
	assert.Equal(t, NetworkLocal, entry.Network)
	assert.WithinDuration(t, time.Now(), entry.LastHeartbeat, time.Second)

	cp, err := database.GetChargePoint("CP001")
	require.NoError(t, err)
	assert.True(t, cp.IsOnline)
	assert.Equal(t, "192.168.1.20:33812", cp.Address)
	assert.Equal(t, string(NetworkLocal), cp.Network)
}

func TestRegistryReplacesDuplicateConnection(t *testing.T) {
	registry, _ := newTestRegistry(t)
	first := &fakeConn{}
	second := &fakeConn{}

	require.True(t, registry.Register("CP001", first, "10.0.0.5:1001"))
	require.True(t, registry.Register("CP001", second, "10.0.0.5:1002"))

	assert.True(t, first.IsClosed())
	assert.False(t, second.IsClosed())
	assert.Equal(t, 1, registry.Count())

	entry, found := registry.Lookup("CP001")
	require.True(t, found)
	assert.Same(t, Connection(second), entry.Connection)
}

func TestRegistryTouchMovesHeartbeat(t *testing.T) {
	registry, _ := newTestRegistry(t)
	require.True(t, registry.Register("CP001", &fakeConn{}, "10.0.0.5:1001"))

	before, _ := registry.Lookup("CP001")
	time.Sleep(10 * time.Millisecond)
	registry.Touch("CP001")
	after, _ := registry.Lookup("CP001")

	assert.True(t, after.LastHeartbeat.After(before.LastHeartbeat))
}

func TestRegistryRemoveClosesAndMarksOffline(t *testing.T) {
	registry, database := newTestRegistry(t)
	conn := &fakeConn{}
	require.True(t, registry.Register("CP001", conn, "10.0.0.5:1001"))

	registry.Remove("CP001", conn)

	assert.True(t, conn.IsClosed())
	assert.Equal(t, 0, registry.Count())
	cp, err := database.GetChargePoint("CP001")
	require.NoError(t, err)
	assert.False(t, cp.IsOnline)
}

func TestRegistryIgnoresStaleRemove(t *testing.T) {
	registry, _ := newTestRegistry(t)
	first := &fakeConn{}
	second := &fakeConn{}

	require.True(t, registry.Register("CP001", first, "10.0.0.5:1001"))
	require.True(t, registry.Register("CP001", second, "10.0.0.5:1002"))

	// the replaced socket's reader notices the close and tries to
	// deregister, the live replacement must survive it
	registry.Remove("CP001", first)

	entry, found := registry.Lookup("CP001")
	require.True(t, found)
	assert.Same(t, Connection(second), entry.Connection)
	assert.False(t, second.IsClosed())

	registry.Remove("CP001", second)
	assert.Equal(t, 0, registry.Count())
	assert.True(t, second.IsClosed())
}

func TestRegistryAcceptsAllWithoutDatabase(t *testing.T) {
	logger := &silentLogger{}
	registry := NewRegistry(nil, internal.NewSyncQueue(logger), logger)

	assert.True(t, registry.Register("ANY", &fakeConn{}, "203.0.113.7:50110"))
	assert.False(t, registry.Register("", &fakeConn{}, "203.0.113.7:50110"))
}

func TestClassifyAddress(t *testing.T) {
	cases := []struct {
		addr     string
		expected NetworkClass
	}{
		{"127.0.0.1:8080", NetworkLocal},
		{"192.168.10.40:51234", NetworkLocal},
		{"10.20.30.40:1000", NetworkLocal},
		{"172.16.0.9:9999", NetworkLocal},
		{"100.64.7.1:4242", NetworkTunnel},
		{"100.127.255.254:1", NetworkTunnel},
		{"203.0.113.7:50110", NetworkPublic},
		{"8.8.8.8:443", NetworkPublic},
		{"not-an-address", NetworkPublic},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, ClassifyAddress(tc.addr), tc.addr)
	}
}
