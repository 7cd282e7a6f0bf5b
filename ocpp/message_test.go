package ocpp

import (
	"csms/ocpp/core"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseCallFrame(t *testing.T, data string) (*Call, error) {
	t.Helper()
	fields, messageType, _, err := ParseFrame([]byte(data))
	require.NoError(t, err)
	require.Equal(t, MessageTypeCall, messageType)
	return ParseCall(fields)
}

func TestParseFrameRejectsMalformedData(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", "hello"},
		{"json object", `{"action":"Heartbeat"}`},
		{"too short", `[2,"id1"]`},
		{"too long", `[2,"id1","a","b","c","d"]`},
		{"type not a number", `["2","id1","Heartbeat",{}]`},
		{"unknown type code", `[7,"id1","Heartbeat",{}]`},
		{"id not a string", `[2,42,"Heartbeat",{}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := ParseFrame([]byte(tc.data))
			require.Error(t, err)
			assert.Equal(t, ErrorCodeFormat, AsError(err).Code)
		})
	}
}

func TestParseFrameReportsUniqueId(t *testing.T) {
	_, messageType, uniqueId, err := ParseFrame([]byte(`[2,"msg-7","Heartbeat",{}]`))
	require.NoError(t, err)
	assert.Equal(t, MessageTypeCall, messageType)
	assert.Equal(t, "msg-7", uniqueId)
}

func TestParseCallDecodesTypedPayload(t *testing.T) {
	call, err := parseCallFrame(t, `[2,"42","BootNotification",{"chargePointModel":"Wallbox","chargePointVendor":"ACME"}]`)
	require.NoError(t, err)

	assert.Equal(t, "42", call.UniqueId)
	assert.Equal(t, "BootNotification", call.Action)

	request, ok := call.Payload.(*core.BootNotificationRequest)
	require.True(t, ok)
	assert.Equal(t, "Wallbox", request.ChargePointModel)
	assert.Equal(t, "ACME", request.ChargePointVendor)
}

func TestParseCallUnknownAction(t *testing.T) {
	_, err := parseCallFrame(t, `[2,"1","MakeCoffee",{}]`)
	require.Error(t, err)
	assert.Equal(t, ErrorCodeNotImplemented, AsError(err).Code)
}

func TestParseCallInvalidPayload(t *testing.T) {
	_, err := parseCallFrame(t, `[2,"1","StartTransaction",{"connectorId":"not-a-number"}]`)
	require.Error(t, err)
	assert.Equal(t, ErrorCodeFormat, AsError(err).Code)
}

func TestParseCallWrongLength(t *testing.T) {
	fields, messageType, _, err := ParseFrame([]byte(`[2,"1","Heartbeat",{},"extra"]`))
	require.NoError(t, err)
	require.Equal(t, MessageTypeCall, messageType)

	_, err = ParseCall(fields)
	require.Error(t, err)
	assert.Equal(t, ErrorCodeFormat, AsError(err).Code)
}

func TestParseResult(t *testing.T) {
	fields, messageType, _, err := ParseFrame([]byte(`[3,"cmd-1",{"status":"Accepted"}]`))
	require.NoError(t, err)
	require.Equal(t, MessageTypeCallResult, messageType)

	result, err := ParseResult(fields)
	require.NoError(t, err)
	assert.Equal(t, "cmd-1", result.UniqueId)
	assert.JSONEq(t, `{"status":"Accepted"}`, result.Payload)
}

func TestCallResultMarshalsToArray(t *testing.T) {
	result := NewCallResult("id-1", core.NewHeartbeatResponse(nil))
	data, err := result.MarshalJSON()
	require.NoError(t, err)

	var fields []interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Len(t, fields, 3)
	assert.Equal(t, float64(3), fields[0])
	assert.Equal(t, "id-1", fields[1])
}

func TestCallErrorMarshalsToArray(t *testing.T) {
	callError := NewCallError("id-9", NewError(ErrorCodeNotImplemented, "unsupported action: MakeCoffee"))
	data, err := callError.MarshalJSON()
	require.NoError(t, err)

	var fields []interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Len(t, fields, 5)
	assert.Equal(t, float64(4), fields[0])
	assert.Equal(t, "id-9", fields[1])
	assert.Equal(t, "NotImplemented", fields[2])
	assert.Equal(t, "unsupported action: MakeCoffee", fields[3])
}

func TestCallMarshalsToArray(t *testing.T) {
	call := NewCall("id-5", core.NewResetRequest(core.ResetTypeSoft))
	data, err := call.MarshalJSON()
	require.NoError(t, err)

	var fields []interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Len(t, fields, 4)
	assert.Equal(t, float64(2), fields[0])
	assert.Equal(t, "Reset", fields[2])
	payload := fields[3].(map[string]interface{})
	assert.Equal(t, "Soft", payload["type"])
}
