package app

import (
	"cmp"
	"slices"
	"time"

	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Connection is the registry entry for a user with an open signal link.
type Connection struct {
	ID           domain.ConnectionID
	UserID       domain.UserID
	GroupID      domain.GroupID
	Signal       core.SignalConnection
	Alive        bool
	LastActivity time.Time
	UserData     domain.UserData

	heartbeat    clockwork.Timer
	heartbeatGen uint64
	stale        clockwork.Timer
	staleGen     uint64
}

// ArmHeartbeat replaces the pending heartbeat probe with the one start
// creates. start receives the generation the new timer must present to
// HeartbeatCurrent; a callback already in flight for an older generation
// sees a mismatch.
func (c *Connection) ArmHeartbeat(start func(gen uint64) clockwork.Timer) {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
	}
	c.heartbeatGen++
	c.heartbeat = start(c.heartbeatGen)
}

// ArmStale is ArmHeartbeat for the stale timeout.
func (c *Connection) ArmStale(start func(gen uint64) clockwork.Timer) {
	if c.stale != nil {
		c.stale.Stop()
	}
	c.staleGen++
	c.stale = start(c.staleGen)
}

func (c *Connection) HeartbeatCurrent(gen uint64) bool {
	return c.heartbeat != nil && c.heartbeatGen == gen
}

func (c *Connection) StaleCurrent(gen uint64) bool {
	return c.stale != nil && c.staleGen == gen
}

// StopTimers cancels both timers and invalidates callbacks already in
// flight. Stopping twice is a no-op.
func (c *Connection) StopTimers() {
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
	if c.stale != nil {
		c.stale.Stop()
		c.stale = nil
	}
	c.heartbeatGen++
	c.staleGen++
}

// Registry indexes live connections by user and by connection id.
// Not safe for concurrent use; orch.Orchestrator serializes access.
type Registry struct {
	byUser map[domain.UserID]*Connection
	byConn map[domain.ConnectionID]domain.UserID
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[domain.UserID]*Connection),
		byConn: make(map[domain.ConnectionID]domain.UserID),
	}
}

func (r *Registry) Get(uid domain.UserID) (*Connection, bool) {
	c, ok := r.byUser[uid]
	return c, ok
}

func (r *Registry) ByConnection(cid domain.ConnectionID) (*Connection, bool) {
	uid, ok := r.byConn[cid]
	if !ok {
		return nil, false
	}
	return r.Get(uid)
}

// Put installs c. The caller must have removed any previous entry for the user.
func (r *Registry) Put(c *Connection) {
	if old, ok := r.byUser[c.UserID]; ok {
		delete(r.byConn, old.ID)
	}
	r.byUser[c.UserID] = c
	r.byConn[c.ID] = c.UserID
}

// Delete removes the user's entry and returns it.
func (r *Registry) Delete(uid domain.UserID) (*Connection, bool) {
	c, ok := r.byUser[uid]
	if !ok {
		return nil, false
	}
	delete(r.byUser, uid)
	delete(r.byConn, c.ID)
	return c, true
}

// Regroup moves a tracked connection to another group.
func (r *Registry) Regroup(uid domain.UserID, gid domain.GroupID) bool {
	c, ok := r.byUser[uid]
	if !ok {
		return false
	}
	c.GroupID = gid
	return true
}

// InGroup returns a snapshot of the group's connections ordered by user id.
func (r *Registry) InGroup(gid domain.GroupID) []*Connection {
	out := make([]*Connection, 0)
	for _, c := range r.byUser {
		if c.GroupID == gid {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, byUserID)
	return out
}

func (r *Registry) HasGroup(gid domain.GroupID) bool {
	for _, c := range r.byUser {
		if c.GroupID == gid {
			return true
		}
	}
	return false
}

// StaleSince returns connections whose last activity is before cutoff.
func (r *Registry) StaleSince(cutoff time.Time) []*Connection {
	var out []*Connection
	for _, c := range r.byUser {
		if c.LastActivity.Before(cutoff) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, byUserID)
	return out
}

func (r *Registry) Len() int { return len(r.byUser) }

func byUserID(a, b *Connection) int { return cmp.Compare(a.UserID, b.UserID) }
