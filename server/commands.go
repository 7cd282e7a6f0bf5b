package server

import (
	"csms/internal"
	"csms/ocpp"
	"csms/utility"
	"fmt"
)

// CommandSender dispatches server-initiated calls to connected charge
// points. An unreachable charge point is a routine outcome reported as
// false, never an error; the caller does not wait for the CallResult.
type CommandSender struct {
	registry *Registry
	logger   internal.LogHandler
}

func NewCommandSender(registry *Registry, logger internal.LogHandler) *CommandSender {
	return &CommandSender{
		registry: registry,
		logger:   logger,
	}
}

func (c *CommandSender) SendCommand(chargePointId string, request ocpp.Request) bool {
	entry, ok := c.registry.Lookup(chargePointId)
	if !ok {
		c.logger.Debug(fmt.Sprintf("command %s skipped, %s is not connected", request.GetFeatureName(), chargePointId))
		return false
	}
	call := ocpp.NewCall(utility.NewUUID(), request)
	data, err := call.MarshalJSON()
	if err != nil {
		c.logger.Error("error encoding command", err)
		return false
	}
	c.logger.RawDataEvent("OUT", string(data))
	if err = entry.Connection.WriteMessage(data); err != nil {
		c.logger.Error(fmt.Sprintf("error sending %s to %s", request.GetFeatureName(), chargePointId), err)
		return false
	}
	c.logger.FeatureEvent(request.GetFeatureName(), chargePointId, "command dispatched")
	return true
}
