package server

import (
	"csms/internal"
	"csms/metrics/counters"
	"csms/ocpp/core"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// NetworkClass is a rough classification of where a charge point connects
// from, derived from its peer address.
type NetworkClass string

const (
	NetworkLocal  NetworkClass = "local"
	NetworkTunnel NetworkClass = "tunnel"
	NetworkPublic NetworkClass = "public"
)

// Connection is the writable side of a registered charge point socket.
type Connection interface {
	WriteMessage(data []byte) error
	Close() error
}

// ConnectionEntry holds the liveness state of one connected charge point.
type ConnectionEntry struct {
	ChargePointId string
	Connection    Connection
	RemoteAddr    string
	Network       NetworkClass
	LastHeartbeat time.Time
	Status        core.ChargePointStatus
}

// Registry is the single source of truth for which charge points are
// reachable right now. All mutations are serialized by a mutex; both the
// connection handlers and the heartbeat watchdog go through it.
type Registry struct {
	mux      sync.Mutex
	entries  map[string]*ConnectionEntry
	database internal.Database
	queue    internal.TaskQueue
	logger   internal.LogHandler
}

func NewRegistry(database internal.Database, queue internal.TaskQueue, logger internal.LogHandler) *Registry {
	return &Registry{
		entries:  make(map[string]*ConnectionEntry),
		database: database,
		queue:    queue,
		logger:   logger,
	}
}

// Register admits a connection for a provisioned charge point. Unknown
// identifiers are rejected and the caller must close the transport. A
// second connection for the same identifier replaces the first.
func (r *Registry) Register(chargePointId string, connection Connection, remoteAddr string) bool {
	if chargePointId == "" {
		return false
	}
	if r.database != nil {
		chargePoint, err := r.database.GetChargePoint(chargePointId)
		if err != nil || chargePoint == nil {
			r.logger.Warn(fmt.Sprintf("rejected connection for unknown charge point %s from %s", chargePointId, remoteAddr))
			return false
		}
	}
	entry := &ConnectionEntry{
		ChargePointId: chargePointId,
		Connection:    connection,
		RemoteAddr:    remoteAddr,
		Network:       ClassifyAddress(remoteAddr),
		LastHeartbeat: time.Now(),
		Status:        core.ChargePointStatusAvailable,
	}

	r.mux.Lock()
	previous, replaced := r.entries[chargePointId]
	r.entries[chargePointId] = entry
	r.observeLocked()
	r.mux.Unlock()

	if replaced {
		r.logger.Debug(fmt.Sprintf("replacing connection for %s", chargePointId))
		_ = previous.Connection.Close()
	}
	if r.database != nil && r.queue != nil {
		r.queue.Enqueue("record charge point connection", func() error {
			return r.database.SetChargePointConnection(chargePointId, remoteAddr, string(entry.Network))
		})
	}
	r.markOnline(chargePointId, true)
	return true
}

// Touch updates the last heartbeat timestamp.
func (r *Registry) Touch(chargePointId string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if entry, ok := r.entries[chargePointId]; ok {
		entry.LastHeartbeat = time.Now()
	}
}

// SetStatus records the last reported charge point status.
func (r *Registry) SetStatus(chargePointId string, status core.ChargePointStatus) {
	r.mux.Lock()
	defer r.mux.Unlock()
	if entry, ok := r.entries[chargePointId]; ok {
		entry.Status = status
	}
}

// Lookup returns a snapshot of the entry for the given charge point.
func (r *Registry) Lookup(chargePointId string) (ConnectionEntry, bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	entry, ok := r.entries[chargePointId]
	if !ok {
		return ConnectionEntry{}, false
	}
	return *entry, true
}

// Remove closes the transport, drops the entry and marks the charge point
// offline in persistent storage. The closing connection identifies the
// caller: when a replacement already took over the identifier, the stale
// close of the replaced socket must not evict the live entry.
func (r *Registry) Remove(chargePointId string, connection Connection) {
	r.mux.Lock()
	entry, ok := r.entries[chargePointId]
	if ok && connection != nil && entry.Connection != connection {
		r.mux.Unlock()
		r.logger.Debug(fmt.Sprintf("ignoring close of replaced connection for %s", chargePointId))
		return
	}
	if ok {
		delete(r.entries, chargePointId)
		r.observeLocked()
	}
	r.mux.Unlock()
	if !ok {
		return
	}
	_ = entry.Connection.Close()
	r.markOnline(chargePointId, false)
}

// Snapshot copies all entries for iteration outside the lock; the watchdog
// uses it so its sweep never blocks connection handlers.
func (r *Registry) Snapshot() []ConnectionEntry {
	r.mux.Lock()
	defer r.mux.Unlock()
	snapshot := make([]ConnectionEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		snapshot = append(snapshot, *entry)
	}
	return snapshot
}

func (r *Registry) Count() int {
	r.mux.Lock()
	defer r.mux.Unlock()
	return len(r.entries)
}

// markOnline is best effort; the registry stays authoritative even when
// the persistence write fails.
func (r *Registry) markOnline(chargePointId string, online bool) {
	if r.database == nil || r.queue == nil {
		return
	}
	r.queue.Enqueue("mark charge point online state", func() error {
		return r.database.SetChargePointOnline(chargePointId, online)
	})
}

// observeLocked refreshes the connection gauges; caller holds the mutex.
func (r *Registry) observeLocked() {
	byNetwork := map[NetworkClass]int{NetworkLocal: 0, NetworkTunnel: 0, NetworkPublic: 0}
	for _, entry := range r.entries {
		byNetwork[entry.Network]++
	}
	for network, count := range byNetwork {
		counters.ObserveConnections(string(network), count)
	}
}

// ClassifyAddress infers the network a peer connects from: RFC1918 and
// loopback ranges are local installations, the CGNAT range (100.64/10) is
// used by the tunneling overlay, anything else is the public internet.
func ClassifyAddress(remoteAddr string) NetworkClass {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.TrimSpace(host))
	if ip == nil {
		return NetworkPublic
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() {
		return NetworkLocal
	}
	if tunnelRange.Contains(ip) {
		return NetworkTunnel
	}
	return NetworkPublic
}

var tunnelRange = func() *net.IPNet {
	_, cidr, _ := net.ParseCIDR("100.64.0.0/10")
	return cidr
}()
