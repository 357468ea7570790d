package orch

import (
	"time"

	"github.com/dkeye/callhub/internal/domain"
)

// ConnectionInfo is a read-only view of a registry entry.
type ConnectionInfo struct {
	ID           domain.ConnectionID `json:"connectionId"`
	UserID       domain.UserID       `json:"userId"`
	GroupID      domain.GroupID      `json:"groupId"`
	Alive        bool                `json:"isAlive"`
	LastActivity time.Time           `json:"lastActivity"`
}

func (o *Orchestrator) Connection(uid domain.UserID) (ConnectionInfo, bool) {
	o.lock()
	defer o.unlock()
	c, ok := o.registry.Get(uid)
	if !ok {
		return ConnectionInfo{}, false
	}
	return ConnectionInfo{
		ID:           c.ID,
		UserID:       c.UserID,
		GroupID:      c.GroupID,
		Alive:        c.Alive,
		LastActivity: c.LastActivity,
	}, true
}

func (o *Orchestrator) ConnectionCount() int {
	o.lock()
	defer o.unlock()
	return o.registry.Len()
}

// OnlineUsers lists users online now. An empty gid lists every group.
func (o *Orchestrator) OnlineUsers(gid domain.GroupID) []domain.PresenceView {
	o.lock()
	defer o.unlock()
	return o.presence.Online(gid, o.clock.Now())
}

func (o *Orchestrator) Presence(uid domain.UserID) (domain.PresenceView, bool) {
	o.lock()
	defer o.unlock()
	return o.presence.Get(uid)
}

// ActiveCalls lists ringing individual calls of a group, oldest first.
func (o *Orchestrator) ActiveCalls(gid domain.GroupID) []domain.IndividualCall {
	o.lock()
	defer o.unlock()
	return o.calls.ActiveFor(gid)
}

// GroupCalls lists active group calls. An empty gid lists all of them.
func (o *Orchestrator) GroupCalls(gid domain.GroupID) []domain.GroupCallView {
	o.lock()
	defer o.unlock()
	return o.calls.GroupCalls(gid)
}
