package signal

import (
	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// identity is the joined user, or the userId the frame claims before a join.
func (s *session) identity(data []byte) domain.UserID {
	if s.joined() {
		return s.userID
	}
	return domain.UserID(gjson.GetBytes(data, "userId").String())
}

// group is the frame's groupId, defaulting to the joined group.
func (s *session) group(data []byte) domain.GroupID {
	if gid := gjson.GetBytes(data, "groupId").String(); gid != "" {
		return domain.GroupID(gid)
	}
	return s.groupID
}

type joinPayload struct {
	UserID   domain.UserID   `json:"userId"`
	GroupID  domain.GroupID  `json:"groupId"`
	UserData domain.UserData `json:"userData,omitempty"`
}

func (ctl *SignalWSController) handleJoin(s *session, data []byte) {
	var p joinPayload
	if !ctl.decode(s, core.EventJoin, data, &p, "userId", "groupId") {
		return
	}
	if s.joined() && p.UserID != s.userID {
		log.Warn().Str("module", "signal").Str("user", string(s.userID)).Str("claimed", string(p.UserID)).Msg("identity change on joined socket")
		ctl.sendError(s, core.EventJoin, errInvalidField)
		return
	}

	res, err := ctl.Orch.Join(p.UserID, p.GroupID, s.conn, p.UserData)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(p.UserID)).Msg("join rejected")
		ctl.sendError(s, core.EventJoin, errInvalidField)
		return
	}
	s.userID, s.groupID, s.connID = p.UserID, p.GroupID, res.ConnectionID

	ctl.sendJSON(s, core.JoinedPush{
		Envelope:     core.NewEnvelope(core.PushJoined, ctl.Orch.Now()),
		ConnectionID: res.ConnectionID,
		UserID:       p.UserID,
		GroupID:      p.GroupID,
		OnlineUsers:  res.OnlineUsers,
	})
}

// handleHeartbeat touches the joined user. Before a join it falls back to
// the payload userId; a touch only refreshes liveness, so no identity
// check is made.
func (ctl *SignalWSController) handleHeartbeat(s *session, data []byte) {
	uid := s.identity(data)
	if uid == "" {
		ctl.sendError(s, core.EventHeartbeatPing, errBadPayload)
		return
	}
	ctl.Orch.Touch(uid)
	ctl.sendJSON(s, core.NewEnvelope(core.PushHeartbeatPong, ctl.Orch.Now()))
}

// handleDisconnect only ever ends the socket's own connection. The payload
// userId is not trusted; a socket that never joined has nothing to end.
func (ctl *SignalWSController) handleDisconnect(s *session) {
	if !s.joined() {
		ctl.sendError(s, core.EventDisconnect, errNotJoined)
		return
	}
	uid, cid := s.userID, s.connID
	s.userID, s.groupID, s.connID = "", "", ""
	ctl.Orch.Disconnect(uid, cid)
}
