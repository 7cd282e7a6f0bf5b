package server

import (
	"csms/internal"
	"csms/models"
	"fmt"
	"sync"
)

type silentLogger struct{}

func (l *silentLogger) Debug(string)                 {}
func (l *silentLogger) Warn(string)                  {}
func (l *silentLogger) Error(string, error)          {}
func (l *silentLogger) FeatureEvent(_, _, _ string)  {}
func (l *silentLogger) RawDataEvent(_, _ string)     {}

type fakeConn struct {
	id        string
	mux       sync.Mutex
	frames    [][]byte
	closed    bool
	failWrite bool
}

func (c *fakeConn) ID() string {
	return c.id
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.closed || c.failWrite {
		return fmt.Errorf("connection is closed")
	}
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) IsClosed() bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.closed
}

func (c *fakeConn) sentFrames() [][]byte {
	c.mux.Lock()
	defer c.mux.Unlock()
	return append([][]byte{}, c.frames...)
}

// discardQueue swallows persistence tasks, simulating writes that have
// not reached storage yet.
type discardQueue struct{}

func (q *discardQueue) Enqueue(string, func() error) {}

// recordingEvents counts lifecycle notifications.
type recordingEvents struct {
	mux    sync.Mutex
	starts int
	stops  int
}

func (e *recordingEvents) OnStatusNotification(*internal.EventMessage) {}

func (e *recordingEvents) OnTransactionStart(*internal.EventMessage) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.starts++
}

func (e *recordingEvents) OnTransactionStop(*internal.EventMessage) {
	e.mux.Lock()
	defer e.mux.Unlock()
	e.stops++
}

func (e *recordingEvents) OnAuthorize(*internal.EventMessage) {}

func (e *recordingEvents) stopCount() int {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.stops
}

// memoryDatabase is an in-memory internal.Database for handler tests.
type memoryDatabase struct {
	mux           sync.Mutex
	chargePoints  map[string]models.ChargePoint
	userTags      map[string]models.UserTag
	transactions  map[int]models.Transaction
	sessions      map[string]models.ChargingSession
	samples       []models.MeterSample
	tariffs       []models.Tariff
	subscriptions []models.UserSubscription
}

func newMemoryDatabase() *memoryDatabase {
	return &memoryDatabase{
		chargePoints: make(map[string]models.ChargePoint),
		userTags:     make(map[string]models.UserTag),
		transactions: make(map[int]models.Transaction),
		sessions:     make(map[string]models.ChargingSession),
	}
}

func (db *memoryDatabase) WriteLogMessage(internal.Data) error { return nil }

func (db *memoryDatabase) GetChargePoints() ([]models.ChargePoint, error) {
	db.mux.Lock()
	defer db.mux.Unlock()
	result := make([]models.ChargePoint, 0, len(db.chargePoints))
	for _, cp := range db.chargePoints {
		result = append(result, cp)
	}
	return result, nil
}

func (db *memoryDatabase) GetChargePoint(id string) (*models.ChargePoint, error) {
	db.mux.Lock()
	defer db.mux.Unlock()
	cp, ok := db.chargePoints[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return &cp, nil
}

func (db *memoryDatabase) UpdateChargePoint(chargePoint *models.ChargePoint) error {
	db.mux.Lock()
	defer db.mux.Unlock()
	db.chargePoints[chargePoint.Id] = *chargePoint
	return nil
}

func (db *memoryDatabase) SetChargePointOnline(id string, online bool) error {
	db.mux.Lock()
	defer db.mux.Unlock()
	cp, ok := db.chargePoints[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	cp.IsOnline = online
	db.chargePoints[id] = cp
	return nil
}

func (db *memoryDatabase) SetChargePointConnection(id, address, network string) error {
	db.mux.Lock()
	defer db.mux.Unlock()
	cp, ok := db.chargePoints[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	cp.Address = address
	cp.Network = network
	db.chargePoints[id] = cp
	return nil
}

func (db *memoryDatabase) GetUserTag(id string) (*models.UserTag, error) {
	db.mux.Lock()
	defer db.mux.Unlock()
	tag, ok := db.userTags[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return &tag, nil
}

func (db *memoryDatabase) AddTransaction(transaction *models.Transaction) error {
	db.mux.Lock()
	defer db.mux.Unlock()
	db.transactions[transaction.Id] = *transaction
	return nil
}

func (db *memoryDatabase) UpdateTransaction(transaction *models.Transaction) error {
	return db.AddTransaction(transaction)
}

func (db *memoryDatabase) GetTransaction(id int) (*models.Transaction, error) {
	db.mux.Lock()
	defer db.mux.Unlock()
	transaction, ok := db.transactions[id]
	if !ok {
		return nil, fmt.Errorf("not found")
	}
	return &transaction, nil
}

func (db *memoryDatabase) GetLastTransaction() (*models.Transaction, error) {
	db.mux.Lock()
	defer db.mux.Unlock()
	var last *models.Transaction
	for id := range db.transactions {
		transaction := db.transactions[id]
		if last == nil || transaction.Id > last.Id {
			last = &transaction
		}
	}
	if last == nil {
		return nil, fmt.Errorf("not found")
	}
	return last, nil
}

func (db *memoryDatabase) GetActiveTransaction(chargePointId string) (*models.Transaction, error) {
	db.mux.Lock()
	defer db.mux.Unlock()
	for id := range db.transactions {
		transaction := db.transactions[id]
		if transaction.ChargePointId == chargePointId && !transaction.IsFinished {
			return &transaction, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (db *memoryDatabase) AddChargingSession(session *models.ChargingSession) error {
	db.mux.Lock()
	defer db.mux.Unlock()
	db.sessions[session.Id] = *session
	return nil
}

func (db *memoryDatabase) UpdateChargingSession(session *models.ChargingSession) error {
	return db.AddChargingSession(session)
}

func (db *memoryDatabase) GetOpenChargingSession(chargePointId string) (*models.ChargingSession, error) {
	db.mux.Lock()
	defer db.mux.Unlock()
	for id := range db.sessions {
		session := db.sessions[id]
		if session.ChargePointId == chargePointId && !session.IsFinished {
			return &session, nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (db *memoryDatabase) AddMeterSample(sample *models.MeterSample) error {
	db.mux.Lock()
	defer db.mux.Unlock()
	db.samples = append(db.samples, *sample)
	return nil
}

func (db *memoryDatabase) GetTariff(chargePointId, userId string) (*models.Tariff, error) {
	db.mux.Lock()
	defer db.mux.Unlock()
	for i := range db.tariffs {
		if db.tariffs[i].ChargePointId == chargePointId && db.tariffs[i].UserId == userId {
			return &db.tariffs[i], nil
		}
	}
	for i := range db.tariffs {
		if db.tariffs[i].ChargePointId == chargePointId && db.tariffs[i].UserId == "" {
			return &db.tariffs[i], nil
		}
	}
	return nil, fmt.Errorf("not found")
}

func (db *memoryDatabase) GetSubscriptions() ([]models.UserSubscription, error) {
	return db.subscriptions, nil
}

func (db *memoryDatabase) AddSubscription(subscription *models.UserSubscription) error {
	db.subscriptions = append(db.subscriptions, *subscription)
	return nil
}

func (db *memoryDatabase) DeleteSubscription(*models.UserSubscription) error {
	return nil
}

func (db *memoryDatabase) storedSession(id string) (models.ChargingSession, bool) {
	db.mux.Lock()
	defer db.mux.Unlock()
	session, ok := db.sessions[id]
	return session, ok
}

func (db *memoryDatabase) sampleCount() int {
	db.mux.Lock()
	defer db.mux.Unlock()
	return len(db.samples)
}
