package orch

import (
	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type IndividualCallRequest struct {
	GroupID    domain.GroupID
	Caller     domain.UserID
	CallerName string
	Target     domain.UserID
	CallType   domain.CallType
}

func (r IndividualCallRequest) validate() error {
	if err := r.Caller.Validate(); err != nil {
		return err
	}
	if err := r.Target.Validate(); err != nil {
		return err
	}
	if err := r.GroupID.Validate(); err != nil {
		return err
	}
	if len(r.CallerName) > domain.MaxNameLen {
		return domain.ErrNameTooLong
	}
	return r.CallType.Validate()
}

// StartIndividualCall always creates a new ringing call, even when one is
// already ringing between the same pair. The target is notified when connected.
func (o *Orchestrator) StartIndividualCall(req IndividualCallRequest) (domain.IndividualCall, Delivery, error) {
	if err := req.validate(); err != nil {
		return domain.IndividualCall{}, NotDelivered, err
	}

	o.lock()
	defer o.unlock()

	now := o.clock.Now()
	call := domain.IndividualCall{
		ID:         domain.CallID(uuid.NewString()),
		GroupID:    req.GroupID,
		Caller:     req.Caller,
		CallerName: req.CallerName,
		Target:     req.Target,
		CallType:   req.CallType,
		Status:     domain.CallRinging,
		CreatedAt:  now,
	}
	o.calls.AddIndividual(call)
	o.metrics.CallEvent("individual", "started")
	o.publishLocked("call.started", call)

	d := o.sendLocked(req.Target, core.IncomingCallPush{
		Envelope:   core.NewEnvelope(core.PushIncomingCall, now),
		CallID:     call.ID,
		GroupID:    call.GroupID,
		Caller:     call.Caller,
		CallerName: call.CallerName,
		CallType:   call.CallType,
	})

	log.Info().Str("module", "orch").Str("call", string(call.ID)).Str("caller", string(call.Caller)).
		Str("target", string(call.Target)).Bool("target_notified", d == Delivered).Msg("individual call started")
	return call, d, nil
}

// CallResponse identifies a call by id or, failing that, by the
// (group, caller, target) triple.
type CallResponse struct {
	CallID  domain.CallID
	GroupID domain.GroupID
	Caller  domain.UserID
	Target  domain.UserID
	Action  domain.CallStatus
}

// RespondToCall resolves a ringing call and forwards the action to the
// caller with the original call type. Every action ends the call.
func (o *Orchestrator) RespondToCall(req CallResponse) (domain.IndividualCall, error) {
	if !req.Action.Terminal() {
		return domain.IndividualCall{}, domain.ErrInvalidAction
	}

	o.lock()
	defer o.unlock()

	var (
		call  domain.IndividualCall
		found bool
	)
	if req.CallID != "" {
		call, found = o.calls.Individual(req.CallID)
	}
	if !found && req.Caller != "" && req.Target != "" {
		call, found = o.calls.FindPair(req.GroupID, req.Caller, req.Target)
	}
	if !found {
		return domain.IndividualCall{}, domain.ErrCallNotFound
	}

	call, _ = o.calls.Resolve(call.ID, req.Action)
	o.metrics.CallEvent("individual", string(req.Action))
	o.publishLocked("call.resolved", call)

	push := core.CallResponsePush{
		Envelope: core.NewEnvelope(core.PushCallResponse, o.clock.Now()),
		CallID:   call.ID,
		GroupID:  call.GroupID,
		Caller:   call.Caller,
		Target:   call.Target,
		Action:   req.Action,
		CallType: call.CallType,
	}
	o.sendLocked(call.Caller, push)
	if req.Action == domain.CallCanceled {
		o.sendLocked(call.Target, push)
	}

	log.Info().Str("module", "orch").Str("call", string(call.ID)).Str("action", string(req.Action)).Msg("individual call resolved")
	return call, nil
}

// StartGroupCall replaces any call tracked for the group.
func (o *Orchestrator) StartGroupCall(gid domain.GroupID, caller domain.UserID, callType domain.CallType) (domain.GroupCallView, error) {
	if err := gid.Validate(); err != nil {
		return domain.GroupCallView{}, err
	}
	if err := caller.Validate(); err != nil {
		return domain.GroupCallView{}, err
	}
	if err := callType.Validate(); err != nil {
		return domain.GroupCallView{}, err
	}

	o.lock()
	defer o.unlock()

	now := o.clock.Now()
	gc := o.calls.StartGroup(gid, caller, callType, now).View()
	o.metrics.CallEvent("group", "started")
	o.publishLocked("groupcall.started", gc)
	o.broadcastLocked(gid, caller, core.GroupCallPush{
		Envelope:     core.NewEnvelope(core.PushGroupCallStarted, now),
		GroupID:      gid,
		UserID:       caller,
		CallType:     callType,
		Participants: gc.Participants,
	})
	log.Info().Str("module", "orch").Str("group", string(gid)).Str("caller", string(caller)).Msg("group call started")
	return gc, nil
}

// JoinGroupCall adds uid to the group's call. The join is broadcast even
// when no call is tracked; the bool reports whether one was.
func (o *Orchestrator) JoinGroupCall(gid domain.GroupID, uid domain.UserID) (domain.GroupCallView, bool) {
	o.lock()
	defer o.unlock()

	push := core.GroupCallPush{
		Envelope: core.NewEnvelope(core.PushGroupCallJoined, o.clock.Now()),
		GroupID:  gid,
		UserID:   uid,
	}
	var view domain.GroupCallView
	gc, ok := o.calls.JoinGroup(gid, uid)
	if ok {
		view = gc.View()
		push.CallType = view.CallType
		push.Participants = view.Participants
		o.metrics.CallEvent("group", "joined")
	}
	o.broadcastLocked(gid, uid, push)
	return view, ok
}

// LeaveGroupCall removes uid; the call is deleted once it is empty.
func (o *Orchestrator) LeaveGroupCall(gid domain.GroupID, uid domain.UserID) (domain.GroupCallView, bool) {
	o.lock()
	defer o.unlock()

	push := core.GroupCallPush{
		Envelope: core.NewEnvelope(core.PushGroupCallLeft, o.clock.Now()),
		GroupID:  gid,
		UserID:   uid,
	}
	var view domain.GroupCallView
	gc, ok := o.calls.LeaveGroup(gid, uid)
	if gc != nil {
		view = gc.View()
		push.CallType = view.CallType
		push.Participants = view.Participants
	}
	if ok {
		o.metrics.CallEvent("group", "left")
		if gc == nil {
			o.publishLocked("groupcall.ended", domain.GroupCallView{GroupID: gid})
		}
	}
	o.broadcastLocked(gid, uid, push)
	return view, gc != nil
}

func (o *Orchestrator) EndGroupCall(gid domain.GroupID, uid domain.UserID) bool {
	o.lock()
	defer o.unlock()

	ended := o.calls.EndGroup(gid)
	if ended {
		o.metrics.CallEvent("group", "ended")
		o.publishLocked("groupcall.ended", domain.GroupCallView{GroupID: gid})
	}
	o.broadcastLocked(gid, uid, core.GroupCallPush{
		Envelope: core.NewEnvelope(core.PushGroupCallEnded, o.clock.Now()),
		GroupID:  gid,
		UserID:   uid,
	})
	log.Info().Str("module", "orch").Str("group", string(gid)).Str("user", string(uid)).Bool("tracked", ended).Msg("group call ended")
	return ended
}
