package signal

import (
	"errors"

	"github.com/dkeye/callhub/internal/app/orch"
	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/rs/zerolog/log"
)

type individualCallPayload struct {
	Caller     domain.UserID   `json:"caller"`
	Target     domain.UserID   `json:"target"`
	TargetUser domain.UserID   `json:"targetUser"`
	GroupID    domain.GroupID  `json:"groupId"`
	CallType   domain.CallType `json:"callType"`
	CallerName string          `json:"callerName"`
}

func (p individualCallPayload) target() domain.UserID {
	if p.Target != "" {
		return p.Target
	}
	return p.TargetUser
}

func (ctl *SignalWSController) handleIndividualCallStart(s *session, data []byte) {
	var p individualCallPayload
	if !ctl.decode(s, core.EventIndividualCallStart, data, &p, "callType") {
		return
	}
	if s.joined() {
		p.Caller = s.userID
		if p.GroupID == "" {
			p.GroupID = s.groupID
		}
	}
	if p.Caller == "" || p.target() == "" {
		ctl.sendError(s, core.EventIndividualCallStart, errBadPayload)
		return
	}
	if !ctl.limiter.Allow(p.Caller) {
		log.Warn().Str("module", "signal").Str("user", string(p.Caller)).Msg("call start rate limited")
		ctl.sendError(s, core.EventIndividualCallStart, errRateLimited)
		return
	}

	call, d, err := ctl.Orch.StartIndividualCall(orch.IndividualCallRequest{
		GroupID:    p.GroupID,
		Caller:     p.Caller,
		CallerName: p.CallerName,
		Target:     p.target(),
		CallType:   p.CallType,
	})
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("user", string(p.Caller)).Msg("call start rejected")
		ctl.sendError(s, core.EventIndividualCallStart, errInvalidField)
		return
	}
	ctl.sendJSON(s, core.CallStartedPush{
		Envelope:        core.NewEnvelope(core.PushCallStarted, ctl.Orch.Now()),
		CallID:          call.ID,
		Target:          call.Target,
		TargetConnected: d == orch.Delivered,
	})
}

type callRespondPayload struct {
	CallID     domain.CallID     `json:"callId"`
	GroupID    domain.GroupID    `json:"groupId"`
	Caller     domain.UserID     `json:"caller"`
	Target     domain.UserID     `json:"target"`
	TargetUser domain.UserID     `json:"targetUser"`
	Action     domain.CallStatus `json:"action"`
}

func (ctl *SignalWSController) handleIndividualCallRespond(s *session, data []byte) {
	var p callRespondPayload
	if !ctl.decode(s, core.EventIndividualCallRespond, data, &p, "action") {
		return
	}
	target := p.Target
	if target == "" {
		target = p.TargetUser
	}
	if p.GroupID == "" {
		p.GroupID = s.groupID
	}
	if p.CallID == "" && (p.Caller == "" || target == "") {
		ctl.sendError(s, core.EventIndividualCallRespond, errBadPayload)
		return
	}

	_, err := ctl.Orch.RespondToCall(orch.CallResponse{
		CallID:  p.CallID,
		GroupID: p.GroupID,
		Caller:  p.Caller,
		Target:  target,
		Action:  p.Action,
	})
	switch {
	case errors.Is(err, domain.ErrCallNotFound):
		ctl.sendError(s, core.EventIndividualCallRespond, errCallNotFound)
	case err != nil:
		ctl.sendError(s, core.EventIndividualCallRespond, errInvalidField)
	}
}
