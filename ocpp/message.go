package ocpp

import (
	"csms/ocpp/core"
	"csms/ocpp/firmware"
	"encoding/json"
	"fmt"
	"reflect"
)

type MessageType int

const (
	MessageTypeCall       MessageType = 2
	MessageTypeCallResult MessageType = 3
	MessageTypeCallError  MessageType = 4
)

// Call is an OCPP-J request frame: [2, uniqueId, action, payload].
type Call struct {
	UniqueId string
	Action   string
	Payload  Request
}

func (call *Call) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 4)
	fields[0] = int(MessageTypeCall)
	fields[1] = call.UniqueId
	fields[2] = call.Action
	fields[3] = call.Payload
	return json.Marshal(fields)
}

func NewCall(uniqueId string, request Request) *Call {
	return &Call{UniqueId: uniqueId, Action: request.GetFeatureName(), Payload: request}
}

// CallResult is an OCPP-J response frame: [3, uniqueId, payload].
type CallResult struct {
	UniqueId string
	Payload  Response
}

func (result *CallResult) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 3)
	fields[0] = int(MessageTypeCallResult)
	fields[1] = result.UniqueId
	fields[2] = result.Payload
	return json.Marshal(fields)
}

func NewCallResult(uniqueId string, response Response) *CallResult {
	return &CallResult{UniqueId: uniqueId, Payload: response}
}

// CallError is an OCPP-J error frame: [4, uniqueId, code, description, details].
type CallError struct {
	UniqueId    string
	Code        ErrorCode
	Description string
	Details     interface{}
}

func (callError *CallError) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 5)
	fields[0] = int(MessageTypeCallError)
	fields[1] = callError.UniqueId
	fields[2] = string(callError.Code)
	fields[3] = callError.Description
	details := callError.Details
	if details == nil {
		details = struct{}{}
	}
	fields[4] = details
	return json.Marshal(fields)
}

func NewCallError(uniqueId string, protoErr *Error) *CallError {
	return &CallError{UniqueId: uniqueId, Code: protoErr.Code, Description: protoErr.Description}
}

// ParseFrame decodes a raw frame into its envelope fields. A frame is well
// formed when it is a JSON array of 3 to 5 elements whose first element is
// one of the three message type codes and whose second is the unique id.
func ParseFrame(data []byte) ([]interface{}, MessageType, string, error) {
	var fields []interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, 0, "", NewError(ErrorCodeFormat, "frame is not a json array")
	}
	if len(fields) < 3 || len(fields) > 5 {
		return nil, 0, "", NewError(ErrorCodeFormat, fmt.Sprintf("unexpected frame length %d", len(fields)))
	}
	rawType, ok := fields[0].(float64)
	if !ok {
		return nil, 0, "", NewError(ErrorCodeFormat, "message type is not a number")
	}
	messageType := MessageType(rawType)
	if messageType != MessageTypeCall && messageType != MessageTypeCallResult && messageType != MessageTypeCallError {
		return nil, 0, "", NewError(ErrorCodeFormat, fmt.Sprintf("unknown message type %v", rawType))
	}
	uniqueId, ok := fields[1].(string)
	if !ok {
		return nil, 0, "", NewError(ErrorCodeFormat, "unique id is not a string")
	}
	return fields, messageType, uniqueId, nil
}

// ParseCall decodes an inbound Call frame into a typed request. The frame
// must already have passed ParseFrame with MessageTypeCall.
func ParseCall(fields []interface{}) (*Call, error) {
	if len(fields) != 4 {
		return nil, NewError(ErrorCodeFormat, "call frame must have 4 elements")
	}
	uniqueId := fields[1].(string)
	action, ok := fields[2].(string)
	if !ok {
		return nil, NewError(ErrorCodeFormat, "action is not a string")
	}
	requestType, err := requestTypeFor(action)
	if err != nil {
		return nil, err
	}
	request, err := unmarshalRequest(fields[3], requestType)
	if err != nil {
		return nil, NewError(ErrorCodeFormat, fmt.Sprintf("invalid %s payload: %s", action, err))
	}
	return &Call{UniqueId: uniqueId, Action: action, Payload: request}, nil
}

// ResultFrame is a CallResult received from a charge point in reply to a
// previously dispatched command; the payload stays raw since correlation
// is the caller's concern.
type ResultFrame struct {
	UniqueId string
	Payload  string
}

func ParseResult(fields []interface{}) (*ResultFrame, error) {
	if len(fields) != 3 {
		return nil, NewError(ErrorCodeFormat, "call result frame must have 3 elements")
	}
	payload, err := json.Marshal(fields[2])
	if err != nil {
		return nil, NewError(ErrorCodeFormat, "call result payload is not serializable")
	}
	return &ResultFrame{UniqueId: fields[1].(string), Payload: string(payload)}, nil
}

func requestTypeFor(action string) (reflect.Type, error) {
	switch action {
	case core.BootNotificationFeatureName:
		return reflect.TypeOf(core.BootNotificationRequest{}), nil
	case core.AuthorizeFeatureName:
		return reflect.TypeOf(core.AuthorizeRequest{}), nil
	case core.HeartbeatFeatureName:
		return reflect.TypeOf(core.HeartbeatRequest{}), nil
	case core.StartTransactionFeatureName:
		return reflect.TypeOf(core.StartTransactionRequest{}), nil
	case core.StopTransactionFeatureName:
		return reflect.TypeOf(core.StopTransactionRequest{}), nil
	case core.MeterValuesFeatureName:
		return reflect.TypeOf(core.MeterValuesRequest{}), nil
	case core.StatusNotificationFeatureName:
		return reflect.TypeOf(core.StatusNotificationRequest{}), nil
	case firmware.StatusNotificationFeatureName:
		return reflect.TypeOf(firmware.StatusNotificationRequest{}), nil
	case firmware.DiagnosticsStatusNotificationFeatureName:
		return reflect.TypeOf(firmware.DiagnosticsStatusNotificationRequest{}), nil
	default:
		return nil, NewError(ErrorCodeNotImplemented, fmt.Sprintf("unsupported action: %s", action))
	}
}

func unmarshalRequest(raw interface{}, requestType reflect.Type) (Request, error) {
	if raw == nil {
		raw = &struct{}{}
	}
	bytes, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	request := reflect.New(requestType).Interface()
	if err = json.Unmarshal(bytes, &request); err != nil {
		return nil, err
	}
	return request.(Request), nil
}
