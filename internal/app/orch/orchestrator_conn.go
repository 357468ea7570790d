package orch

import (
	"github.com/dkeye/callhub/internal/app"
	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type JoinResult struct {
	ConnectionID domain.ConnectionID
	// OnlineUsers lists the other users already online in the group.
	OnlineUsers []domain.PresenceView
	Notified    int
}

// Join registers the connection, marks the user online and tells the group.
func (o *Orchestrator) Join(uid domain.UserID, gid domain.GroupID, sig core.SignalConnection, data domain.UserData) (JoinResult, error) {
	if err := uid.Validate(); err != nil {
		return JoinResult{}, err
	}
	if err := gid.Validate(); err != nil {
		return JoinResult{}, err
	}

	o.lock()
	defer o.unlock()

	now := o.clock.Now()
	cid, prev := o.registerLocked(uid, gid, sig, data)
	if prev != "" && prev != gid {
		o.broadcastLocked(prev, uid, core.UserLeftPush{
			Envelope: core.NewEnvelope(core.PushUserLeft, now),
			UserID:   uid,
			GroupID:  prev,
			Reason:   "moved",
		})
	}
	o.presence.MarkOnline(uid, gid, data, now)
	o.publishLocked("presence.online", presenceEvent{UserID: uid, GroupID: gid, Status: domain.StatusOnline})

	n := o.broadcastLocked(gid, uid, core.UserJoinedPush{
		Envelope: core.NewEnvelope(core.PushUserJoined, now),
		UserID:   uid,
		GroupID:  gid,
		UserData: data,
	})

	online := o.presence.Online(gid, now)
	others := make([]domain.PresenceView, 0, len(online))
	for _, p := range online {
		if p.UserID != uid {
			others = append(others, p)
		}
	}

	log.Info().Str("module", "orch").Str("user", string(uid)).Str("group", string(gid)).
		Str("conn", string(cid)).Int("notified", n).Msg("user joined")
	return JoinResult{ConnectionID: cid, OnlineUsers: others, Notified: n}, nil
}

// Register installs a connection for uid, tearing down any live one on another socket.
func (o *Orchestrator) Register(uid domain.UserID, gid domain.GroupID, sig core.SignalConnection, data domain.UserData) domain.ConnectionID {
	o.lock()
	defer o.unlock()
	cid, _ := o.registerLocked(uid, gid, sig, data)
	return cid
}

// registerLocked returns the connection id and, for a re-join on the same
// socket, the group the connection was in before.
func (o *Orchestrator) registerLocked(uid domain.UserID, gid domain.GroupID, sig core.SignalConnection, data domain.UserData) (domain.ConnectionID, domain.GroupID) {
	now := o.clock.Now()
	if c, ok := o.registry.Get(uid); ok {
		if c.Signal == sig {
			prev := c.GroupID
			o.registry.Regroup(uid, gid)
			if len(data) > 0 {
				c.UserData = data
			}
			o.touchLocked(c)
			return c.ID, prev
		}
		log.Info().Str("module", "orch").Str("user", string(uid)).Str("conn", string(c.ID)).Msg("replacing live connection")
		o.dropLocked(c, ReasonReplaced, c.GroupID != gid)
	}

	c := &app.Connection{
		ID:           domain.ConnectionID(uuid.NewString()),
		UserID:       uid,
		GroupID:      gid,
		Signal:       sig,
		Alive:        true,
		LastActivity: now,
		UserData:     data,
	}
	o.registry.Put(c)
	o.armHeartbeatLocked(c)
	o.armStaleLocked(c)
	o.metrics.SetConnections(o.registry.Len())
	return c.ID, ""
}

// Touch marks the user's connection alive. No-op when untracked.
func (o *Orchestrator) Touch(uid domain.UserID) bool {
	o.lock()
	defer o.unlock()
	c, ok := o.registry.Get(uid)
	if !ok {
		return false
	}
	o.touchLocked(c)
	return true
}

// TouchConnection is Touch keyed by connection id, used for transport pongs.
func (o *Orchestrator) TouchConnection(cid domain.ConnectionID) bool {
	o.lock()
	defer o.unlock()
	c, ok := o.registry.ByConnection(cid)
	if !ok {
		return false
	}
	o.touchLocked(c)
	return true
}

func (o *Orchestrator) touchLocked(c *app.Connection) {
	now := o.clock.Now()
	c.Alive = true
	c.LastActivity = now
	o.armStaleLocked(c)
	o.presence.Seen(c.UserID, now)
}

// Remove drops the user's connection. Idempotent.
func (o *Orchestrator) Remove(uid domain.UserID) bool {
	o.lock()
	defer o.unlock()
	return o.removeLocked(uid, ReasonDisconnect)
}

// Disconnect removes the connection and tells the group the user left.
// A non-empty cid restricts it to that connection, so a close from a
// replaced socket never removes its successor.
func (o *Orchestrator) Disconnect(uid domain.UserID, cid domain.ConnectionID) bool {
	o.lock()
	defer o.unlock()
	c, ok := o.registry.Get(uid)
	if !ok || (cid != "" && c.ID != cid) {
		return false
	}
	o.dropLocked(c, ReasonDisconnect, true)
	return true
}

// dropLocked removes c if it is still the tracked connection and, when
// notify is set, broadcasts user-left to its group.
func (o *Orchestrator) dropLocked(c *app.Connection, reason string, notify bool) {
	cur, ok := o.registry.Get(c.UserID)
	if !ok || cur.ID != c.ID {
		return
	}
	o.removeLocked(c.UserID, reason)
	if !notify {
		return
	}
	o.broadcastLocked(c.GroupID, c.UserID, core.UserLeftPush{
		Envelope: core.NewEnvelope(core.PushUserLeft, o.clock.Now()),
		UserID:   c.UserID,
		GroupID:  c.GroupID,
		Reason:   reason,
	})
}

// removeLocked cancels timers, demotes presence, releases media and
// schedules the socket close. Group calls the user took part in always
// hear group-call-left, whatever the removal path.
func (o *Orchestrator) removeLocked(uid domain.UserID, reason string) bool {
	c, ok := o.registry.Delete(uid)
	if !ok {
		return false
	}
	c.StopTimers()
	if o.presence.MarkOffline(uid) {
		o.publishLocked("presence.offline", presenceEvent{UserID: uid, GroupID: c.GroupID, Status: domain.StatusOffline})
	}
	left := o.calls.LeaveAllGroups(uid)
	if o.media != nil {
		o.media.ReleaseUser(uid)
	}
	sig := c.Signal
	o.afterUnlock(sig.Close)

	o.metrics.Removed(reason)
	o.metrics.SetConnections(o.registry.Len())
	log.Info().Str("module", "orch").Str("user", string(uid)).Str("group", string(c.GroupID)).
		Str("conn", string(c.ID)).Str("reason", reason).Msg("connection removed")

	now := o.clock.Now()
	for _, gid := range left {
		push := core.GroupCallPush{
			Envelope: core.NewEnvelope(core.PushGroupCallLeft, now),
			GroupID:  gid,
			UserID:   uid,
		}
		o.metrics.CallEvent("group", "left")
		if gc, ok := o.calls.Group(gid); ok {
			push.CallType = gc.CallType
			push.Participants = gc.Participants
		} else {
			o.publishLocked("groupcall.ended", domain.GroupCallView{GroupID: gid})
		}
		o.broadcastLocked(gid, uid, push)
	}
	return true
}

func (o *Orchestrator) armHeartbeatLocked(c *app.Connection) {
	uid, cid := c.UserID, c.ID
	c.ArmHeartbeat(func(gen uint64) clockwork.Timer {
		return o.clock.AfterFunc(o.settings.HeartbeatInterval, func() { o.heartbeat(uid, cid, gen) })
	})
}

func (o *Orchestrator) armStaleLocked(c *app.Connection) {
	uid, cid := c.UserID, c.ID
	c.ArmStale(func(gen uint64) clockwork.Timer {
		return o.clock.AfterFunc(o.settings.StaleTimeout, func() { o.staleTimeout(uid, cid, gen) })
	})
}

// heartbeat is the periodic probe. A connection that did not answer the
// previous probe is terminated. Callbacks for a replaced connection or a
// re-armed timer are no-ops.
func (o *Orchestrator) heartbeat(uid domain.UserID, cid domain.ConnectionID, gen uint64) {
	o.lock()
	defer o.unlock()
	c, ok := o.registry.Get(uid)
	if !ok || c.ID != cid || !c.HeartbeatCurrent(gen) {
		return
	}
	if !c.Alive {
		log.Warn().Str("module", "orch").Str("user", string(uid)).Str("conn", string(cid)).Msg("heartbeat missed")
		o.dropLocked(c, ReasonHeartbeat, true)
		return
	}
	c.Alive = false
	if err := c.Signal.Ping(); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("heartbeat ping failed")
		o.dropLocked(c, ReasonHeartbeat, true)
		return
	}
	o.armHeartbeatLocked(c)
}

func (o *Orchestrator) staleTimeout(uid domain.UserID, cid domain.ConnectionID, gen uint64) {
	o.lock()
	defer o.unlock()
	c, ok := o.registry.Get(uid)
	if !ok || c.ID != cid || !c.StaleCurrent(gen) {
		return
	}
	log.Warn().Str("module", "orch").Str("user", string(uid)).Str("conn", string(cid)).Msg("connection stale")
	o.dropLocked(c, ReasonStale, true)
}

type presenceEvent struct {
	UserID  domain.UserID         `json:"userId"`
	GroupID domain.GroupID        `json:"groupId"`
	Status  domain.PresenceStatus `json:"status"`
}
