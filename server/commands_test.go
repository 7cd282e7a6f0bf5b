package server

import (
	"csms/internal"
	"csms/ocpp"
	"csms/ocpp/core"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendCommandToUnknownChargePoint(t *testing.T) {
	logger := &silentLogger{}
	registry := NewRegistry(nil, internal.NewSyncQueue(logger), logger)
	sender := NewCommandSender(registry, logger)

	ok := sender.SendCommand("CP001", core.NewResetRequest(core.ResetTypeSoft))

	assert.False(t, ok)
}

func TestSendCommandWritesCallFrame(t *testing.T) {
	logger := &silentLogger{}
	registry := NewRegistry(nil, internal.NewSyncQueue(logger), logger)
	conn := &fakeConn{}
	require.True(t, registry.Register("CP001", conn, "10.0.0.1:1001"))
	sender := NewCommandSender(registry, logger)

	ok := sender.SendCommand("CP001", core.NewRemoteStartTransactionRequest("TAG01", 1))
	require.True(t, ok)

	frames := conn.sentFrames()
	require.Len(t, frames, 1)

	var fields []interface{}
	require.NoError(t, json.Unmarshal(frames[0], &fields))
	require.Len(t, fields, 4)
	assert.Equal(t, float64(ocpp.MessageTypeCall), fields[0])
	assert.NotEmpty(t, fields[1])
	assert.Equal(t, core.RemoteStartTransactionFeatureName, fields[2])

	payload := fields[3].(map[string]interface{})
	assert.Equal(t, "TAG01", payload["idTag"])
	assert.Equal(t, float64(1), payload["connectorId"])
}

func TestSendCommandWriteFailure(t *testing.T) {
	logger := &silentLogger{}
	registry := NewRegistry(nil, internal.NewSyncQueue(logger), logger)
	conn := &fakeConn{failWrite: true}
	require.True(t, registry.Register("CP001", conn, "10.0.0.1:1001"))
	sender := NewCommandSender(registry, logger)

	assert.False(t, sender.SendCommand("CP001", core.NewResetRequest(core.ResetTypeHard)))
}
