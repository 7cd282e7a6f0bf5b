package server

import (
	"csms/billing"
	"csms/internal"
	"csms/metrics/counters"
	"csms/models"
	"csms/ocpp/core"
	"csms/ocpp/firmware"
	"csms/types"
	"csms/utility"
	"fmt"
	"sync"
	"time"
)

const (
	defaultHeartbeatInterval = 600
	// how long a finished transaction stays in memory so duplicate
	// StopTransaction frames are absorbed even before the background
	// write of the finished row has landed
	finishedRetention = time.Hour
)

type chargePointState struct {
	mux          sync.Mutex
	model        models.ChargePoint
	transactions map[int]*models.Transaction
	// open billing session, nil when the current transaction has no
	// resolvable user identity
	session *models.ChargingSession
}

// SystemHandler implements the inbound protocol actions and the
// transaction/metering engine. Frames from one charge point arrive in
// order on a single goroutine, but the api goroutine reads the same state
// concurrently, so h.mux guards the state map and the id counter while
// each state carries its own mutex for everything inside it.
type SystemHandler struct {
	chargePoints      map[string]*chargePointState
	mux               sync.Mutex
	database          internal.Database
	logger            internal.LogHandler
	queue             internal.TaskQueue
	registry          *Registry
	rates             billing.RateService
	authorizer        Authorizer
	eventHandler      internal.EventHandler
	heartbeatInterval int
	nextTransactionId int
}

func NewSystemHandler() *SystemHandler {
	return &SystemHandler{
		chargePoints:      make(map[string]*chargePointState),
		heartbeatInterval: defaultHeartbeatInterval,
		nextTransactionId: 1,
	}
}

func (h *SystemHandler) SetDatabase(database internal.Database) {
	h.database = database
}

func (h *SystemHandler) SetLogger(logger internal.LogHandler) {
	h.logger = logger
}

func (h *SystemHandler) SetQueue(queue internal.TaskQueue) {
	h.queue = queue
}

func (h *SystemHandler) SetRegistry(registry *Registry) {
	h.registry = registry
}

func (h *SystemHandler) SetRateService(rates billing.RateService) {
	h.rates = rates
}

func (h *SystemHandler) SetAuthorizer(authorizer Authorizer) {
	h.authorizer = authorizer
}

func (h *SystemHandler) SetEventHandler(eventHandler internal.EventHandler) {
	h.eventHandler = eventHandler
}

func (h *SystemHandler) SetHeartbeatInterval(seconds int) {
	if seconds > 0 {
		h.heartbeatInterval = seconds
	}
}

// OnStart warms the in-memory state from persistent storage: provisioned
// charge points and the transaction id counter.
func (h *SystemHandler) OnStart() error {
	if h.database == nil {
		return nil
	}
	chargePoints, err := h.database.GetChargePoints()
	if err != nil {
		return fmt.Errorf("failed to load charge points from database: %s", err)
	}
	h.mux.Lock()
	for _, cp := range chargePoints {
		h.chargePoints[cp.Id] = &chargePointState{
			model:        cp,
			transactions: make(map[int]*models.Transaction),
		}
	}
	h.mux.Unlock()
	h.logger.Debug(fmt.Sprintf("loaded %d charge points from database", len(chargePoints)))

	transaction, err := h.database.GetLastTransaction()
	if err == nil && transaction != nil {
		h.nextTransactionId = transaction.Id + 1
	}
	return nil
}

func (h *SystemHandler) getChargePoint(chargePointId string) (*chargePointState, bool) {
	h.mux.Lock()
	state, ok := h.chargePoints[chargePointId]
	h.mux.Unlock()
	if ok {
		return state, true
	}
	if h.database != nil {
		chargePoint, err := h.database.GetChargePoint(chargePointId)
		if err == nil && chargePoint != nil {
			state = &chargePointState{
				model:        *chargePoint,
				transactions: make(map[int]*models.Transaction),
			}
			h.mux.Lock()
			h.chargePoints[chargePointId] = state
			h.mux.Unlock()
			return state, true
		}
	}
	h.logger.Warn(fmt.Sprintf("unknown charging point: %s", chargePointId))
	return nil, false
}

func (h *SystemHandler) persist(name string, task func() error) {
	if h.database == nil || h.queue == nil {
		return
	}
	h.queue.Enqueue(name, task)
}

func (h *SystemHandler) OnBootNotification(chargePointId string, request *core.BootNotificationRequest) (*core.BootNotificationResponse, error) {
	regStatus := core.RegistrationStatusAccepted
	state, ok := h.getChargePoint(chargePointId)
	if ok {
		state.mux.Lock()
		state.model.SerialNumber = request.ChargePointSerialNumber
		state.model.FirmwareVersion = request.FirmwareVersion
		state.model.Model = request.ChargePointModel
		state.model.Vendor = request.ChargePointVendor
		state.model.IsOnline = true
		model := state.model
		state.mux.Unlock()
		h.persist("update charge point", func() error {
			return h.database.UpdateChargePoint(&model)
		})
	} else {
		regStatus = core.RegistrationStatusRejected
	}

	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, string(regStatus))
	return core.NewBootNotificationResponse(types.NewDateTime(time.Now()), h.heartbeatInterval, regStatus), nil
}

func (h *SystemHandler) OnHeartbeat(chargePointId string, request *core.HeartbeatRequest) (*core.HeartbeatResponse, error) {
	if h.registry != nil {
		h.registry.Touch(chargePointId)
	}
	h.persist("touch charge point", func() error {
		return h.database.SetChargePointOnline(chargePointId, true)
	})
	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("%v", time.Now()))
	return core.NewHeartbeatResponse(types.NewDateTime(time.Now())), nil
}

func (h *SystemHandler) OnAuthorize(chargePointId string, request *core.AuthorizeRequest) (*core.AuthorizeResponse, error) {
	info := h.authorizer.Authorize(chargePointId, request.IdTag)

	if h.eventHandler != nil {
		h.eventHandler.OnAuthorize(&internal.EventMessage{
			ChargePointId: chargePointId,
			Time:          time.Now(),
			IdTag:         request.IdTag,
			Status:        string(info.Status),
		})
	}

	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("id tag: %s; authorization status: %s", request.IdTag, info.Status))
	return core.NewAuthorizeResponse(info), nil
}

func (h *SystemHandler) OnStatusNotification(chargePointId string, request *core.StatusNotificationRequest) (*core.StatusNotificationResponse, error) {
	state, ok := h.getChargePoint(chargePointId)
	if !ok {
		return core.NewStatusNotificationResponse(), nil
	}
	state.mux.Lock()
	state.model.Status = string(request.Status)
	state.model.ErrorCode = string(request.ErrorCode)
	model := state.model
	state.mux.Unlock()
	if h.registry != nil {
		h.registry.SetStatus(chargePointId, request.Status)
	}
	h.persist("update charge point status", func() error {
		return h.database.UpdateChargePoint(&model)
	})

	if h.eventHandler != nil {
		h.eventHandler.OnStatusNotification(&internal.EventMessage{
			ChargePointId: chargePointId,
			ConnectorId:   request.ConnectorId,
			Time:          time.Now(),
			Status:        string(request.Status),
			Info:          request.Info,
		})
	}

	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("updated status to %v", request.Status))
	return core.NewStatusNotificationResponse(), nil
}

func (h *SystemHandler) OnStartTransaction(chargePointId string, request *core.StartTransactionRequest) (*core.StartTransactionResponse, error) {
	state, ok := h.getChargePoint(chargePointId)
	if !ok {
		return core.NewStartTransactionResponse(types.NewIdTagInfo(types.AuthorizationStatusBlocked), 0), nil
	}

	timeStart := time.Now()
	if request.Timestamp != nil {
		timeStart = request.Timestamp.Time
	}
	h.mux.Lock()
	transactionId := h.nextTransactionId
	h.nextTransactionId++
	h.mux.Unlock()

	transaction := &models.Transaction{
		Id:            transactionId,
		IdTag:         request.IdTag,
		ConnectorId:   request.ConnectorId,
		ChargePointId: chargePointId,
		MeterStart:    request.MeterStart,
		TimeStart:     timeStart,
		ReservationId: request.ReservationId,
	}

	var userTag *models.UserTag
	if h.database != nil {
		userTag, _ = h.database.GetUserTag(request.IdTag)
		if userTag != nil {
			transaction.Username = userTag.Username
		}
	}

	// a billing session opens only when the tag maps to a known user;
	// anonymous transactions still charge, they are just not billed
	var session *models.ChargingSession
	if userTag != nil && userTag.UserId != "" {
		rate, currency := h.rates.GetRate(chargePointId, userTag.UserId)
		session = &models.ChargingSession{
			Id:            utility.NewUUID(),
			TransactionId: transaction.Id,
			ChargePointId: chargePointId,
			UserId:        userTag.UserId,
			IdTag:         request.IdTag,
			TimeStart:     timeStart,
			RatePerKwh:    rate,
			Currency:      currency,
		}
	} else {
		h.logger.Debug(fmt.Sprintf("no user identity for tag %s, transaction %d has no billing session", request.IdTag, transaction.Id))
	}

	state.mux.Lock()
	state.transactions[transaction.Id] = transaction
	state.session = session
	created := *transaction
	state.mux.Unlock()

	h.persist("add transaction", func() error {
		return h.database.AddTransaction(&created)
	})
	if session != nil {
		opened := *session
		h.persist("add charging session", func() error {
			return h.database.AddChargingSession(&opened)
		})
	}

	counters.ObserveTransactions(h.activeTransactions())

	if h.eventHandler != nil {
		h.eventHandler.OnTransactionStart(&internal.EventMessage{
			ChargePointId: chargePointId,
			ConnectorId:   created.ConnectorId,
			Time:          created.TimeStart,
			Username:      created.Username,
			IdTag:         created.IdTag,
			TransactionId: created.Id,
		})
	}

	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("started transaction #%v for connector %v", created.Id, created.ConnectorId))
	return core.NewStartTransactionResponse(types.NewIdTagInfo(types.AuthorizationStatusAccepted), created.Id), nil
}

func (h *SystemHandler) OnMeterValues(chargePointId string, request *core.MeterValuesRequest) (*core.MeterValuesResponse, error) {
	state, ok := h.getChargePoint(chargePointId)
	if !ok {
		return core.NewMeterValuesResponse(), nil
	}

	transactionId := 0
	if request.TransactionId != nil {
		transactionId = *request.TransactionId
	}

	state.mux.Lock()
	session := h.openSessionLocked(state)
	changed := false

	for _, meterValue := range request.MeterValue {
		if meterValue.Timestamp == nil {
			h.logger.Warn(fmt.Sprintf("meter value from %s has no timestamp, skipped", chargePointId))
			continue
		}
		for _, sampled := range meterValue.SampledValue {
			if sampled.Value == "" {
				h.logger.Warn(fmt.Sprintf("empty sample value from %s, skipped", chargePointId))
				continue
			}
			value, err := utility.ToFloat(sampled.Value)
			if err != nil {
				h.logger.Warn(fmt.Sprintf("unreadable sample value %q from %s, skipped", sampled.Value, chargePointId))
				continue
			}

			// every accepted sample lands in the audit trail even when it
			// does not move an aggregate
			sample := &models.MeterSample{
				TransactionId: transactionId,
				ChargePointId: chargePointId,
				ConnectorId:   request.ConnectorId,
				Time:          meterValue.Timestamp.Time,
				Measurand:     string(sampled.Measurand),
				Value:         sampled.Value,
				Unit:          string(sampled.Unit),
				Context:       string(sampled.Context),
			}
			h.persist("add meter sample", func() error {
				return h.database.AddMeterSample(sample)
			})

			switch measurandOf(sampled) {
			case types.MeasurandEnergyActiveImportRegister:
				kwh := normalizeEnergyKwh(value, sampled.Unit)
				if session != nil && kwh != session.EnergyKwh {
					// the source meter is cumulative, the latest reading wins
					session.EnergyKwh = kwh
					changed = true
				}
			case types.MeasurandPowerActiveImport:
				kw := normalizePowerKw(value, sampled.Unit)
				counters.ObservePowerRate(chargePointId, kw)
				if session != nil && kw > session.PeakPowerKw {
					session.PeakPowerKw = kw
					changed = true
				}
			}
		}
	}

	if session == nil {
		h.logger.Warn(fmt.Sprintf("no open charging session for %s, meter values not aggregated", chargePointId))
	} else if changed {
		session.EstimatedCost = billing.SessionCost(session)
		updated := *session
		h.persist("update charging session", func() error {
			return h.database.UpdateChargingSession(&updated)
		})
	}
	state.mux.Unlock()

	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("received meter values for connector #%v", request.ConnectorId))
	return core.NewMeterValuesResponse(), nil
}

func (h *SystemHandler) OnStopTransaction(chargePointId string, request *core.StopTransactionRequest) (*core.StopTransactionResponse, error) {
	state, ok := h.getChargePoint(chargePointId)
	if !ok {
		return core.NewStopTransactionResponse(), nil
	}

	state.mux.Lock()
	transaction, found := state.transactions[request.TransactionId]
	if found && transaction.IsFinished {
		// duplicate stop frames are acknowledged without touching the
		// already finalized totals
		state.mux.Unlock()
		h.logger.Warn(fmt.Sprintf("transaction #%v is already finished", request.TransactionId))
		return core.NewStopTransactionResponse(), nil
	}
	state.mux.Unlock()

	if !found && h.database != nil {
		stored, err := h.database.GetTransaction(request.TransactionId)
		if err == nil && stored != nil {
			transaction = stored
			found = true
		}
	}
	if !found {
		h.logger.Warn(fmt.Sprintf("transaction #%v not found", request.TransactionId))
		return core.NewStopTransactionResponse(), nil
	}
	if transaction.IsFinished {
		h.logger.Warn(fmt.Sprintf("transaction #%v is already finished", request.TransactionId))
		return core.NewStopTransactionResponse(), nil
	}

	timeStop := time.Now()
	if request.Timestamp != nil {
		timeStop = request.Timestamp.Time
	}

	state.mux.Lock()
	transaction.IsFinished = true
	transaction.TimeStop = timeStop
	transaction.MeterStop = request.MeterStop
	transaction.Reason = string(request.Reason)

	// stop frames may carry begin/end meter readings of the whole transaction
	for _, data := range request.TransactionData {
		if data.Timestamp == nil {
			continue
		}
		for _, value := range data.SampledValue {
			if value.Context == types.ReadingContextTransactionBegin {
				transaction.MeterStart = utility.ToInt(value.Value)
				transaction.TimeStart = data.Timestamp.Time
			}
			if value.Context == types.ReadingContextTransactionEnd {
				transaction.MeterStop = utility.ToInt(value.Value)
				transaction.TimeStop = data.Timestamp.Time
			}
		}
	}

	// the finished transaction stays in memory for a while so duplicate
	// stops are caught even while the storage write is still queued
	state.transactions[transaction.Id] = transaction
	h.pruneFinishedLocked(state, timeStop)

	stopped := *transaction
	h.closeSessionLocked(state, transaction, timeStop)
	state.mux.Unlock()

	h.persist("update transaction", func() error {
		return h.database.UpdateTransaction(&stopped)
	})

	counters.ObserveTransactions(h.activeTransactions())

	if h.eventHandler != nil {
		h.eventHandler.OnTransactionStop(&internal.EventMessage{
			ChargePointId: chargePointId,
			ConnectorId:   stopped.ConnectorId,
			Time:          timeStop,
			Username:      stopped.Username,
			IdTag:         stopped.IdTag,
			TransactionId: stopped.Id,
			Info:          fmt.Sprintf("consumed %0.3f kWh", float64(stopped.MeterStop-stopped.MeterStart)/1000),
		})
	}

	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("stopped transaction %v %v", request.TransactionId, request.Reason))
	return core.NewStopTransactionResponse(), nil
}

// closeSessionLocked finalizes the billing session of a stopped
// transaction: duration, final energy (meter delta wins when it exceeds
// what the meter value stream reported), final cost at the captured rate.
// Peak power is already tracked incrementally and stays untouched. Caller
// holds the state mutex.
func (h *SystemHandler) closeSessionLocked(state *chargePointState, transaction *models.Transaction, timeStop time.Time) {
	session := h.openSessionLocked(state)
	if session == nil || session.IsFinished {
		h.logger.Warn(fmt.Sprintf("no open charging session for transaction #%v", transaction.Id))
		return
	}

	deltaKwh := float64(transaction.MeterStop-transaction.MeterStart) / 1000
	if deltaKwh > session.EnergyKwh {
		session.EnergyKwh = deltaKwh
	}
	session.IsFinished = true
	session.TimeStop = timeStop
	session.Duration = int64(timeStop.Sub(session.TimeStart).Seconds())
	session.EstimatedCost = billing.SessionCost(session)
	state.session = nil

	counters.CountEnergyDelivered(session.ChargePointId, session.EnergyKwh)

	closed := *session
	h.persist("close charging session", func() error {
		return h.database.UpdateChargingSession(&closed)
	})
}

// openSessionLocked prefers the in-memory session and falls back to
// storage, covering transactions started before a server restart. Caller
// holds the state mutex.
func (h *SystemHandler) openSessionLocked(state *chargePointState) *models.ChargingSession {
	if state.session != nil && !state.session.IsFinished {
		return state.session
	}
	if h.database != nil {
		session, err := h.database.GetOpenChargingSession(state.model.Id)
		if err == nil && session != nil {
			state.session = session
			return session
		}
	}
	return nil
}

// pruneFinishedLocked drops finished transactions older than the retention
// period; by then their rows have long been written out. Caller holds the
// state mutex.
func (h *SystemHandler) pruneFinishedLocked(state *chargePointState, now time.Time) {
	for id, transaction := range state.transactions {
		if transaction.IsFinished && now.Sub(transaction.TimeStop) > finishedRetention {
			delete(state.transactions, id)
		}
	}
}

// ActiveTransaction returns the open transaction of a charge point, used
// by api commands that target the running session.
func (h *SystemHandler) ActiveTransaction(chargePointId string) (*models.Transaction, error) {
	h.mux.Lock()
	state, ok := h.chargePoints[chargePointId]
	h.mux.Unlock()
	if ok {
		var active *models.Transaction
		state.mux.Lock()
		for _, transaction := range state.transactions {
			if !transaction.IsFinished {
				open := *transaction
				active = &open
				break
			}
		}
		state.mux.Unlock()
		if active != nil {
			return active, nil
		}
	}
	if h.database != nil {
		transaction, err := h.database.GetActiveTransaction(chargePointId)
		if err == nil && transaction != nil {
			return transaction, nil
		}
	}
	return nil, fmt.Errorf("no active transaction on %s", chargePointId)
}

func (h *SystemHandler) activeTransactions() int {
	h.mux.Lock()
	defer h.mux.Unlock()
	count := 0
	for _, state := range h.chargePoints {
		state.mux.Lock()
		for _, transaction := range state.transactions {
			if !transaction.IsFinished {
				count++
			}
		}
		state.mux.Unlock()
	}
	return count
}

func (h *SystemHandler) OnFirmwareStatusNotification(chargePointId string, request *firmware.StatusNotificationRequest) (*firmware.StatusNotificationResponse, error) {
	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("updated firmware status to %v", request.Status))
	return firmware.NewStatusNotificationResponse(), nil
}

func (h *SystemHandler) OnDiagnosticsStatusNotification(chargePointId string, request *firmware.DiagnosticsStatusNotificationRequest) (*firmware.DiagnosticsStatusNotificationResponse, error) {
	h.logger.FeatureEvent(request.GetFeatureName(), chargePointId, fmt.Sprintf("updated diagnostic status to %v", request.Status))
	return firmware.NewDiagnosticsStatusNotificationResponse(), nil
}

// measurandOf applies the protocol default: a sample without an explicit
// measurand is the cumulative imported energy register.
func measurandOf(sampled types.SampledValue) types.Measurand {
	if sampled.Measurand == "" {
		return types.MeasurandEnergyActiveImportRegister
	}
	return sampled.Measurand
}

func normalizeEnergyKwh(value float64, unit types.UnitOfMeasure) float64 {
	if unit == types.UnitOfMeasureKWh {
		return value
	}
	// the protocol default unit for energy registers is Wh
	return value / 1000
}

func normalizePowerKw(value float64, unit types.UnitOfMeasure) float64 {
	if unit == types.UnitOfMeasureKW {
		return value
	}
	// the protocol default unit for power is W
	return value / 1000
}
