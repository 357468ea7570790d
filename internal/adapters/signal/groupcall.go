package signal

import (
	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// groupCallTarget resolves who acts on which group, answering bad_payload
// when either is unknown.
func (ctl *SignalWSController) groupCallTarget(s *session, event string, data []byte) (domain.UserID, domain.GroupID, bool) {
	uid, gid := s.identity(data), s.group(data)
	if uid == "" || gid == "" {
		ctl.sendError(s, event, errBadPayload)
		return "", "", false
	}
	return uid, gid, true
}

func (ctl *SignalWSController) handleGroupCallStart(s *session, data []byte) {
	uid, gid, ok := ctl.groupCallTarget(s, core.EventGroupCallStart, data)
	if !ok {
		return
	}
	callType := domain.CallType(gjson.GetBytes(data, "callType").String())
	gc, err := ctl.Orch.StartGroupCall(gid, uid, callType)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(uid)).Msg("group call start rejected")
		ctl.sendError(s, core.EventGroupCallStart, errInvalidField)
		return
	}
	ctl.sendJSON(s, core.GroupCallPush{
		Envelope:     core.NewEnvelope(core.PushGroupCallStarted, ctl.Orch.Now()),
		GroupID:      gid,
		UserID:       uid,
		CallType:     gc.CallType,
		Participants: gc.Participants,
	})
}

func (ctl *SignalWSController) handleGroupCallJoin(s *session, data []byte) {
	uid, gid, ok := ctl.groupCallTarget(s, core.EventGroupCallJoin, data)
	if !ok {
		return
	}
	gc, _ := ctl.Orch.JoinGroupCall(gid, uid)
	ctl.sendJSON(s, core.GroupCallPush{
		Envelope:     core.NewEnvelope(core.PushGroupCallJoined, ctl.Orch.Now()),
		GroupID:      gid,
		UserID:       uid,
		CallType:     gc.CallType,
		Participants: gc.Participants,
	})
}

func (ctl *SignalWSController) handleGroupCallLeave(s *session, data []byte) {
	uid, gid, ok := ctl.groupCallTarget(s, core.EventGroupCallLeave, data)
	if !ok {
		return
	}
	gc, _ := ctl.Orch.LeaveGroupCall(gid, uid)
	ctl.sendJSON(s, core.GroupCallPush{
		Envelope:     core.NewEnvelope(core.PushGroupCallLeft, ctl.Orch.Now()),
		GroupID:      gid,
		UserID:       uid,
		CallType:     gc.CallType,
		Participants: gc.Participants,
	})
}

func (ctl *SignalWSController) handleGroupCallEnd(s *session, data []byte) {
	uid, gid, ok := ctl.groupCallTarget(s, core.EventGroupCallEnd, data)
	if !ok {
		return
	}
	ctl.Orch.EndGroupCall(gid, uid)
	ctl.sendJSON(s, core.GroupCallPush{
		Envelope: core.NewEnvelope(core.PushGroupCallEnded, ctl.Orch.Now()),
		GroupID:  gid,
		UserID:   uid,
	})
}
