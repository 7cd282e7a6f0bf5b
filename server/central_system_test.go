package server

import (
	"csms/ocpp/core"
	"csms/ocpp/firmware"
	"csms/ocpp/remotetrigger"
	"csms/ocpp/smartcharging"
	"csms/types"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCentralSystem(t *testing.T) (*CentralSystem, *SystemHandler, *Registry) {
	t.Helper()
	handler, _, registry := newTestHandler(t)
	logger := &silentLogger{}
	cs := &CentralSystem{
		logger:      logger,
		server:      &Server{logger: logger},
		registry:    registry,
		coreHandler: handler,
		commands:    NewCommandSender(registry, logger),
	}
	return cs, handler, registry
}

func decodeFrame(t *testing.T, data []byte) []interface{} {
	t.Helper()
	var fields []interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	return fields
}

func TestDispatcherAnswersCallWithSameUniqueId(t *testing.T) {
	cs, _, _ := newTestCentralSystem(t)
	conn := &fakeConn{id: "CP001"}

	err := cs.handleIncomingMessage(conn, []byte(`[2,"msg-1","Heartbeat",{}]`))
	require.NoError(t, err)

	frames := conn.sentFrames()
	require.Len(t, frames, 1)
	fields := decodeFrame(t, frames[0])
	require.Len(t, fields, 3)
	assert.Equal(t, float64(3), fields[0])
	assert.Equal(t, "msg-1", fields[1])
	payload := fields[2].(map[string]interface{})
	assert.NotEmpty(t, payload["currentTime"])
}

func TestDispatcherRejectsMalformedFrame(t *testing.T) {
	cs, _, _ := newTestCentralSystem(t)
	conn := &fakeConn{id: "CP001"}

	require.NoError(t, cs.handleIncomingMessage(conn, []byte(`this is not a frame`)))

	frames := conn.sentFrames()
	require.Len(t, frames, 1)
	fields := decodeFrame(t, frames[0])
	assert.Equal(t, float64(4), fields[0])
	assert.Equal(t, "MessageFormatError", fields[2])

	// the connection survives a bad frame and keeps serving calls
	assert.False(t, conn.IsClosed())
	require.NoError(t, cs.handleIncomingMessage(conn, []byte(`[2,"msg-2","Heartbeat",{}]`)))
	require.Len(t, conn.sentFrames(), 2)
}

func TestDispatcherRejectsUnknownAction(t *testing.T) {
	cs, _, _ := newTestCentralSystem(t)
	conn := &fakeConn{id: "CP001"}

	require.NoError(t, cs.handleIncomingMessage(conn, []byte(`[2,"msg-3","MakeCoffee",{}]`)))

	frames := conn.sentFrames()
	require.Len(t, frames, 1)
	fields := decodeFrame(t, frames[0])
	assert.Equal(t, float64(4), fields[0])
	assert.Equal(t, "msg-3", fields[1])
	assert.Equal(t, "NotImplemented", fields[2])
}

func TestDispatcherDropsCommandReplies(t *testing.T) {
	cs, _, _ := newTestCentralSystem(t)
	conn := &fakeConn{id: "CP001"}

	require.NoError(t, cs.handleIncomingMessage(conn, []byte(`[3,"cmd-1",{"status":"Accepted"}]`)))
	require.NoError(t, cs.handleIncomingMessage(conn, []byte(`[4,"cmd-2","InternalError","boom",{}]`)))

	assert.Empty(t, conn.sentFrames())
}

func TestBuildCommandRequests(t *testing.T) {
	cs, _, _ := newTestCentralSystem(t)

	cases := []struct {
		name    string
		command CentralSystemCommand
		check   func(t *testing.T, request interface{})
	}{
		{
			name:    "remote start",
			command: CentralSystemCommand{ChargePointId: "CP001", ConnectorId: 2, FeatureName: core.RemoteStartTransactionFeatureName, Payload: "TAG01"},
			check: func(t *testing.T, request interface{}) {
				start := request.(*core.RemoteStartTransactionRequest)
				assert.Equal(t, "TAG01", start.IdTag)
			},
		},
		{
			name:    "reset defaults to soft",
			command: CentralSystemCommand{ChargePointId: "CP001", FeatureName: core.ResetFeatureName},
			check: func(t *testing.T, request interface{}) {
				assert.Equal(t, core.ResetTypeSoft, request.(*core.ResetRequest).Type)
			},
		},
		{
			name:    "hard reset",
			command: CentralSystemCommand{ChargePointId: "CP001", FeatureName: core.ResetFeatureName, Payload: "hard"},
			check: func(t *testing.T, request interface{}) {
				assert.Equal(t, core.ResetTypeHard, request.(*core.ResetRequest).Type)
			},
		},
		{
			name:    "unlock connector",
			command: CentralSystemCommand{ChargePointId: "CP001", ConnectorId: 1, FeatureName: core.UnlockConnectorFeatureName},
			check: func(t *testing.T, request interface{}) {
				assert.Equal(t, 1, request.(*core.UnlockConnectorRequest).ConnectorId)
			},
		},
		{
			name:    "change configuration",
			command: CentralSystemCommand{ChargePointId: "CP001", FeatureName: core.ChangeConfigurationFeatureName, Payload: "MeterValueSampleInterval=30"},
			check: func(t *testing.T, request interface{}) {
				change := request.(*core.ChangeConfigurationRequest)
				assert.Equal(t, "MeterValueSampleInterval", change.Key)
				assert.Equal(t, "30", change.Value)
			},
		},
		{
			name:    "trigger message",
			command: CentralSystemCommand{ChargePointId: "CP001", ConnectorId: 1, FeatureName: remotetrigger.TriggerMessageFeatureName, Payload: "StatusNotification"},
			check: func(t *testing.T, request interface{}) {
				trigger := request.(*remotetrigger.TriggerMessageRequest)
				assert.Equal(t, remotetrigger.MessageTriggerStatusNotification, trigger.RequestedMessage)
			},
		},
		{
			name:    "get diagnostics",
			command: CentralSystemCommand{ChargePointId: "CP001", FeatureName: firmware.GetDiagnosticsFeatureName, Payload: "ftp://diag.example.org"},
			check: func(t *testing.T, request interface{}) {
				assert.Equal(t, "ftp://diag.example.org", request.(*firmware.GetDiagnosticsRequest).Location)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			request, err := cs.buildCommandRequest(&tc.command)
			require.NoError(t, err)
			tc.check(t, request)
		})
	}
}

func TestBuildCommandRequestErrors(t *testing.T) {
	cs, _, _ := newTestCentralSystem(t)

	cases := []CentralSystemCommand{
		{ChargePointId: "CP001", FeatureName: "MakeCoffee"},
		{ChargePointId: "CP001", FeatureName: core.RemoteStartTransactionFeatureName},
		{ChargePointId: "CP001", FeatureName: core.ChangeConfigurationFeatureName, Payload: "no-separator"},
		{ChargePointId: "CP001", FeatureName: smartcharging.SetChargingProfileFeatureName, Payload: "0"},
		{ChargePointId: "CP001", FeatureName: firmware.UpdateFirmwareFeatureName},
	}
	for _, command := range cases {
		_, err := cs.buildCommandRequest(&command)
		assert.Error(t, err, command.FeatureName)
	}
}

func TestRemoteStopUsesActiveTransaction(t *testing.T) {
	cs, handler, _ := newTestCentralSystem(t)
	transactionId := startTransaction(t, handler, "TAG01", 0)

	request, err := cs.buildCommandRequest(&CentralSystemCommand{
		ChargePointId: "CP001",
		FeatureName:   core.RemoteStopTransactionFeatureName,
	})
	require.NoError(t, err)

	assert.Equal(t, transactionId, request.(*core.RemoteStopTransactionRequest).TransactionId)
}

func TestSetChargingProfileTargetsRunningTransaction(t *testing.T) {
	cs, handler, _ := newTestCentralSystem(t)
	transactionId := startTransaction(t, handler, "TAG01", 0)

	request, err := cs.buildCommandRequest(&CentralSystemCommand{
		ChargePointId: "CP001",
		FeatureName:   smartcharging.SetChargingProfileFeatureName,
		Payload:       "16",
	})
	require.NoError(t, err)

	profile := request.(*smartcharging.SetChargingProfileRequest)
	require.NotNil(t, profile.ChargingProfile)
	assert.Equal(t, transactionId, profile.ChargingProfile.TransactionId)
	assert.Equal(t, types.ChargingProfilePurposeTxProfile, profile.ChargingProfile.ChargingProfilePurpose)
	require.NotNil(t, profile.ChargingProfile.ChargingSchedule)
	require.Len(t, profile.ChargingProfile.ChargingSchedule.ChargingSchedulePeriod, 1)
	assert.Equal(t, float64(16), profile.ChargingProfile.ChargingSchedule.ChargingSchedulePeriod[0].Limit)
}

func TestSetChargingProfileWithoutTransaction(t *testing.T) {
	cs, _, _ := newTestCentralSystem(t)

	request, err := cs.buildCommandRequest(&CentralSystemCommand{
		ChargePointId: "CP001",
		ConnectorId:   1,
		FeatureName:   smartcharging.SetChargingProfileFeatureName,
		Payload:       "10",
	})
	require.NoError(t, err)

	profile := request.(*smartcharging.SetChargingProfileRequest)
	assert.Equal(t, types.ChargingProfilePurposeTxDefaultProfile, profile.ChargingProfile.ChargingProfilePurpose)
}

func TestHandleApiCommandUnreachableDevice(t *testing.T) {
	cs, _, _ := newTestCentralSystem(t)

	err := cs.handleApiCommand(&CentralSystemCommand{
		ChargePointId: "CP001",
		FeatureName:   core.ResetFeatureName,
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unreachable")
}

func TestHandleApiCommandDeliversFrame(t *testing.T) {
	cs, _, registry := newTestCentralSystem(t)
	conn := &fakeConn{}
	require.True(t, registry.Register("CP001", conn, "10.0.0.1:1001"))

	err := cs.handleApiCommand(&CentralSystemCommand{
		ChargePointId: "CP001",
		FeatureName:   core.ResetFeatureName,
		Payload:       "Soft",
	})

	require.NoError(t, err)
	assert.Len(t, conn.sentFrames(), 1)
}
