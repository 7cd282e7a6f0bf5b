package server

import (
	"csms/billing"
	"csms/internal"
	"csms/internal/config"
	"csms/metrics"
	"csms/metrics/counters"
	"csms/ocpp"
	"csms/ocpp/core"
	"csms/ocpp/firmware"
	"csms/ocpp/remotetrigger"
	"csms/ocpp/smartcharging"
	"csms/telegram"
	"csms/types"
	"csms/utility"
	"fmt"
	"log"
	"strings"
	"time"
)

// CentralSystem ties the websocket server, the connection registry, the
// heartbeat watchdog, the protocol handlers and the command api together.
type CentralSystem struct {
	conf        *config.Config
	server      *Server
	api         *Api
	logger      internal.LogHandler
	registry    *Registry
	watchdog    *Watchdog
	commands    *CommandSender
	coreHandler *SystemHandler
	queue       internal.TaskQueue
}

// CentralSystemCommand is one server-initiated operation requested over
// the api: which charge point, which feature and a feature-specific
// payload string.
type CentralSystemCommand struct {
	ChargePointId string `json:"charge_point_id"`
	ConnectorId   int    `json:"connector_id"`
	FeatureName   string `json:"feature_name"`
	Payload       string `json:"payload"`
}

func (cs *CentralSystem) handleIncomingMessage(ws ClientConnection, data []byte) error {
	chargePointId := ws.ID()

	fields, messageType, uniqueId, err := ocpp.ParseFrame(data)
	if err != nil {
		protoErr := ocpp.AsError(err)
		counters.CountFrameError(string(protoErr.Code))
		return cs.server.SendCallError(ws, uniqueId, protoErr)
	}

	// replies to previously dispatched commands are logged and dropped,
	// command delivery is fire and forget
	if messageType == ocpp.MessageTypeCallError {
		cs.logger.Warn(fmt.Sprintf("error message received from charge point %s: %s", chargePointId, string(data)))
		return nil
	}
	if messageType == ocpp.MessageTypeCallResult {
		result, err := ocpp.ParseResult(fields)
		if err != nil {
			cs.logger.Warn(fmt.Sprintf("invalid result received from charge point %s: %s", chargePointId, string(data)))
			return nil
		}
		cs.logger.Debug(fmt.Sprintf("result from %s for message %s: %s", chargePointId, result.UniqueId, result.Payload))
		return nil
	}

	call, err := ocpp.ParseCall(fields)
	if err != nil {
		protoErr := ocpp.AsError(err)
		counters.CountFrameError(string(protoErr.Code))
		return cs.server.SendCallError(ws, uniqueId, protoErr)
	}

	// any valid call counts as a sign of life
	cs.registry.Touch(chargePointId)

	request := call.Payload
	var confirmation ocpp.Response
	switch request.GetFeatureName() {
	case core.BootNotificationFeatureName:
		confirmation, err = cs.coreHandler.OnBootNotification(chargePointId, request.(*core.BootNotificationRequest))
	case core.AuthorizeFeatureName:
		confirmation, err = cs.coreHandler.OnAuthorize(chargePointId, request.(*core.AuthorizeRequest))
	case core.HeartbeatFeatureName:
		confirmation, err = cs.coreHandler.OnHeartbeat(chargePointId, request.(*core.HeartbeatRequest))
	case core.StartTransactionFeatureName:
		confirmation, err = cs.coreHandler.OnStartTransaction(chargePointId, request.(*core.StartTransactionRequest))
	case core.StopTransactionFeatureName:
		confirmation, err = cs.coreHandler.OnStopTransaction(chargePointId, request.(*core.StopTransactionRequest))
	case core.MeterValuesFeatureName:
		confirmation, err = cs.coreHandler.OnMeterValues(chargePointId, request.(*core.MeterValuesRequest))
	case core.StatusNotificationFeatureName:
		confirmation, err = cs.coreHandler.OnStatusNotification(chargePointId, request.(*core.StatusNotificationRequest))
	case firmware.StatusNotificationFeatureName:
		confirmation, err = cs.coreHandler.OnFirmwareStatusNotification(chargePointId, request.(*firmware.StatusNotificationRequest))
	case firmware.DiagnosticsStatusNotificationFeatureName:
		confirmation, err = cs.coreHandler.OnDiagnosticsStatusNotification(chargePointId, request.(*firmware.DiagnosticsStatusNotificationRequest))
	default:
		protoErr := ocpp.NewError(ocpp.ErrorCodeNotImplemented, fmt.Sprintf("feature not supported: %s", request.GetFeatureName()))
		counters.CountFrameError(string(protoErr.Code))
		return cs.server.SendCallError(ws, call.UniqueId, protoErr)
	}
	if err != nil {
		protoErr := ocpp.AsError(err)
		counters.CountFrameError(string(protoErr.Code))
		return cs.server.SendCallError(ws, call.UniqueId, protoErr)
	}

	if ws.IsClosed() {
		cs.logger.FeatureEvent(request.GetFeatureName(), chargePointId, "websocket closed, response not sent")
		return nil
	}
	return cs.server.SendResponse(ws, call.UniqueId, confirmation)
}

// handleApiCommand builds the outbound request for an api command and
// hands it to the command dispatcher. Delivery is fire and forget: ok
// means the frame left the socket, not that the charge point obeyed.
func (cs *CentralSystem) handleApiCommand(command *CentralSystemCommand) error {
	request, err := cs.buildCommandRequest(command)
	if err != nil {
		return err
	}
	if !cs.commands.SendCommand(command.ChargePointId, request) {
		return fmt.Errorf("device unreachable: %s", command.ChargePointId)
	}
	return nil
}

func (cs *CentralSystem) buildCommandRequest(command *CentralSystemCommand) (ocpp.Request, error) {
	switch command.FeatureName {
	case core.RemoteStartTransactionFeatureName:
		if command.Payload == "" {
			return nil, fmt.Errorf("id tag is empty")
		}
		return core.NewRemoteStartTransactionRequest(command.Payload, command.ConnectorId), nil
	case core.RemoteStopTransactionFeatureName:
		transactionId := utility.ToInt(command.Payload)
		if transactionId == 0 {
			transaction, err := cs.coreHandler.ActiveTransaction(command.ChargePointId)
			if err != nil {
				return nil, err
			}
			transactionId = transaction.Id
		}
		return core.NewRemoteStopTransactionRequest(transactionId), nil
	case core.ResetFeatureName:
		resetType := core.ResetTypeSoft
		if strings.EqualFold(command.Payload, string(core.ResetTypeHard)) {
			resetType = core.ResetTypeHard
		}
		return core.NewResetRequest(resetType), nil
	case core.UnlockConnectorFeatureName:
		return core.NewUnlockConnectorRequest(command.ConnectorId), nil
	case core.ChangeConfigurationFeatureName:
		key, value, found := strings.Cut(command.Payload, "=")
		if !found {
			return nil, fmt.Errorf("payload must be key=value")
		}
		return core.NewChangeConfigurationRequest(key, value), nil
	case core.GetConfigurationFeatureName:
		var keys []string
		if command.Payload != "" {
			keys = strings.Split(command.Payload, ",")
		}
		return core.NewGetConfigurationRequest(keys), nil
	case remotetrigger.TriggerMessageFeatureName:
		return remotetrigger.NewTriggerMessageRequest(remotetrigger.MessageTrigger(command.Payload), command.ConnectorId), nil
	case smartcharging.SetChargingProfileFeatureName:
		limit := utility.ToInt(command.Payload)
		if limit <= 0 {
			return nil, fmt.Errorf("invalid current limit: %s", command.Payload)
		}
		transaction, err := cs.coreHandler.ActiveTransaction(command.ChargePointId)
		if err == nil {
			return smartcharging.NewSetChargingProfileRequest(transaction.ConnectorId, smartcharging.NewTransactionChargingProfile(transaction.Id, limit)), nil
		}
		return smartcharging.NewSetChargingProfileRequest(command.ConnectorId, smartcharging.NewDefaultChargingProfile(limit)), nil
	case firmware.UpdateFirmwareFeatureName:
		if command.Payload == "" {
			return nil, fmt.Errorf("firmware location is empty")
		}
		return firmware.NewUpdateFirmwareRequest(command.Payload, types.NewDateTime(time.Now())), nil
	case firmware.GetDiagnosticsFeatureName:
		if command.Payload == "" {
			return nil, fmt.Errorf("upload location is empty")
		}
		return firmware.NewGetDiagnosticsRequest(command.Payload), nil
	default:
		return nil, fmt.Errorf("feature not supported: %s", command.FeatureName)
	}
}

func (cs *CentralSystem) Start() {

	cs.watchdog.Start()

	go func() {
		if err := metrics.Listen(cs.conf); err != nil {
			cs.logger.Error("metrics server failed", err)
		}
	}()

	go func() {
		if err := cs.api.Start(); err != nil {
			cs.logger.Error("api server failed", err)
		}
	}()

	go func() {
		if err := cs.server.Start(); err != nil {
			cs.logger.Error("websocket server failed", err)
		}
	}()

	select {}
}

func NewCentralSystem(conf *config.Config) (*CentralSystem, error) {
	cs := &CentralSystem{conf: conf}

	log.Println("set time zone to " + conf.TimeZone)
	location, err := time.LoadLocation(conf.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time zone initialization failed: %s", err)
	}

	var database internal.Database
	if conf.Mongo.Enabled {
		database, err = internal.NewMongoClient(conf)
		if err != nil {
			return nil, fmt.Errorf("mongodb setup failed: %s", err)
		}
		log.Println("mongodb is configured and enabled")
	} else {
		log.Println("database is disabled")
	}

	logService := internal.NewLogger(location)
	logService.SetDebugMode(conf.IsDebug)
	logService.SetDatabase(database)
	cs.logger = logService

	queue := internal.NewWriteQueue(logService)
	cs.queue = queue

	cs.registry = NewRegistry(database, queue, logService)
	cs.watchdog = NewWatchdog(cs.registry, logService,
		time.Duration(conf.Heartbeat.CheckPeriod)*time.Second,
		time.Duration(conf.Heartbeat.Timeout)*time.Second)
	cs.commands = NewCommandSender(cs.registry, logService)

	rates := billing.NewRates(conf.Billing.DefaultRate, conf.Billing.Currency)
	rates.SetDatabase(database)
	rates.SetLogger(logService)

	systemHandler := NewSystemHandler()
	systemHandler.SetDatabase(database)
	systemHandler.SetLogger(logService)
	systemHandler.SetQueue(queue)
	systemHandler.SetRegistry(cs.registry)
	systemHandler.SetRateService(rates)
	systemHandler.SetAuthorizer(NewAcceptAuthorizer(database))
	systemHandler.SetHeartbeatInterval(conf.Heartbeat.Interval)

	if conf.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(conf.Telegram.ApiKey)
		if err != nil {
			return nil, fmt.Errorf("telegram bot setup failed: %s", err)
		}
		telegramBot.SetDatabase(database)
		telegramBot.Start()
		systemHandler.SetEventHandler(telegramBot)
		log.Println("telegram bot is configured and enabled")
	}

	if err = systemHandler.OnStart(); err != nil {
		return nil, err
	}
	cs.coreHandler = systemHandler

	wsServer := NewServer(conf, logService, cs.registry)
	wsServer.AddSupportedSubProtocol(types.SubProtocol16)
	wsServer.SetMessageHandler(cs.handleIncomingMessage)
	cs.server = wsServer

	apiServer := NewServerApi(conf, logService)
	apiServer.SetCommandHandler(cs.handleApiCommand)
	cs.api = apiServer

	return cs, nil
}
