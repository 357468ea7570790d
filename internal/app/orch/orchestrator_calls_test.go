package orch

import (
	"testing"
	"time"

	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func callReq(caller, target domain.UserID, ct domain.CallType) IndividualCallRequest {
	return IndividualCallRequest{GroupID: "g1", Caller: caller, CallerName: "Alice", Target: target, CallType: ct}
}

func TestIndividualCallLifecycle(t *testing.T) {
	o, _ := newTestOrch(t)
	a, b := newSignal(), newSignal()
	mustJoin(t, o, "alice", "g1", a)
	mustJoin(t, o, "bob", "g1", b)

	call, d, err := o.StartIndividualCall(callReq("alice", "bob", domain.CallVideo))
	require.NoError(t, err)
	assert.Equal(t, Delivered, d)
	assert.Equal(t, domain.CallRinging, call.Status)

	incoming := b.pushes(core.PushIncomingCall)
	require.Len(t, incoming, 1)
	assert.Equal(t, string(call.ID), incoming[0].Get("callId").String())
	assert.Equal(t, "video", incoming[0].Get("callType").String())
	assert.Equal(t, "Alice", incoming[0].Get("callerName").String())
	assert.Len(t, o.ActiveCalls("g1"), 1)

	resolved, err := o.RespondToCall(CallResponse{CallID: call.ID, Action: domain.CallAccepted})
	require.NoError(t, err)
	assert.Equal(t, domain.CallAccepted, resolved.Status)

	resp := a.pushes(core.PushCallResponse)
	require.Len(t, resp, 1)
	assert.Equal(t, "accepted", resp[0].Get("action").String())
	assert.Equal(t, "video", resp[0].Get("callType").String())
	assert.Empty(t, b.pushes(core.PushCallResponse))
	assert.Empty(t, o.ActiveCalls("g1"))

	_, err = o.RespondToCall(CallResponse{CallID: call.ID, Action: domain.CallDeclined})
	require.ErrorIs(t, err, domain.ErrCallNotFound)
}

func TestStartIndividualCallTargetOffline(t *testing.T) {
	o, _ := newTestOrch(t)
	call, d, err := o.StartIndividualCall(callReq("alice", "bob", domain.CallAudio))
	require.NoError(t, err)
	assert.Equal(t, NotDelivered, d)

	active := o.ActiveCalls("g1")
	require.Len(t, active, 1)
	assert.Equal(t, call.ID, active[0].ID)
}

func TestStartIndividualCallValidation(t *testing.T) {
	o, _ := newTestOrch(t)
	_, _, err := o.StartIndividualCall(callReq("alice", "bob", "hologram"))
	require.ErrorIs(t, err, domain.ErrInvalidCallType)
	_, _, err = o.StartIndividualCall(callReq("alice", "", domain.CallAudio))
	require.ErrorIs(t, err, domain.ErrUserIDEmpty)
}

func TestRespondInvalidAction(t *testing.T) {
	o, _ := newTestOrch(t)
	call, _, err := o.StartIndividualCall(callReq("alice", "bob", domain.CallAudio))
	require.NoError(t, err)

	_, err = o.RespondToCall(CallResponse{CallID: call.ID, Action: domain.CallRinging})
	require.ErrorIs(t, err, domain.ErrInvalidAction)
	assert.Len(t, o.ActiveCalls("g1"), 1)
}

func TestDuplicateCallsResolveOldestByPair(t *testing.T) {
	o, _ := newTestOrch(t)
	first, _, err := o.StartIndividualCall(callReq("alice", "bob", domain.CallAudio))
	require.NoError(t, err)
	second, _, err := o.StartIndividualCall(callReq("alice", "bob", domain.CallVideo))
	require.NoError(t, err)
	require.Len(t, o.ActiveCalls("g1"), 2)

	got, err := o.RespondToCall(CallResponse{GroupID: "g1", Caller: "alice", Target: "bob", Action: domain.CallDeclined})
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	active := o.ActiveCalls("g1")
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)
}

func TestCancelNotifiesBothSides(t *testing.T) {
	o, _ := newTestOrch(t)
	a, b := newSignal(), newSignal()
	mustJoin(t, o, "alice", "g1", a)
	mustJoin(t, o, "bob", "g1", b)

	call, _, err := o.StartIndividualCall(callReq("alice", "bob", domain.CallAudio))
	require.NoError(t, err)
	_, err = o.RespondToCall(CallResponse{CallID: call.ID, Action: domain.CallCanceled})
	require.NoError(t, err)

	assert.Len(t, a.pushes(core.PushCallResponse), 1)
	canceled := b.pushes(core.PushCallResponse)
	require.Len(t, canceled, 1)
	assert.Equal(t, "canceled", canceled[0].Get("action").String())
}

func TestSweepPurgesOldCalls(t *testing.T) {
	o, clock := newTestOrch(t)
	_, _, err := o.StartIndividualCall(callReq("alice", "bob", domain.CallAudio))
	require.NoError(t, err)

	clock.Advance(9 * time.Minute)
	assert.Zero(t, o.Sweep().Calls)
	assert.Len(t, o.ActiveCalls("g1"), 1)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, o.Sweep().Calls)
	assert.Empty(t, o.ActiveCalls("g1"))
}

func TestGroupCallJoinLeaveDeletesWhenEmpty(t *testing.T) {
	o, _ := newTestOrch(t)
	a, b := newSignal(), newSignal()
	mustJoin(t, o, "alice", "g1", a)
	mustJoin(t, o, "bob", "g1", b)

	gc, err := o.StartGroupCall("g1", "alice", domain.CallVideo)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"alice"}, gc.Participants)

	started := b.pushes(core.PushGroupCallStarted)
	require.Len(t, started, 1)
	assert.Equal(t, "video", started[0].Get("callType").String())
	assert.Empty(t, a.pushes(core.PushGroupCallStarted))

	view, tracked := o.JoinGroupCall("g1", "bob")
	require.True(t, tracked)
	assert.Equal(t, []domain.UserID{"alice", "bob"}, view.Participants)
	o.JoinGroupCall("g1", "bob")
	assert.Equal(t, []domain.UserID{"alice", "bob"}, o.GroupCalls("g1")[0].Participants)

	_, active := o.LeaveGroupCall("g1", "alice")
	assert.True(t, active)
	_, active = o.LeaveGroupCall("g1", "bob")
	assert.False(t, active)
	assert.Empty(t, o.GroupCalls("g1"))
}

func TestJoinGroupCallWithoutCallStillBroadcasts(t *testing.T) {
	o, _ := newTestOrch(t)
	a, b := newSignal(), newSignal()
	mustJoin(t, o, "alice", "g1", a)
	mustJoin(t, o, "bob", "g1", b)

	_, tracked := o.JoinGroupCall("g1", "bob")
	assert.False(t, tracked)
	assert.Len(t, a.pushes(core.PushGroupCallJoined), 1)
	assert.Empty(t, o.GroupCalls(""))
}

func TestStartGroupCallOverwritesAndEnd(t *testing.T) {
	o, _ := newTestOrch(t)
	a := newSignal()
	mustJoin(t, o, "alice", "g1", a)

	_, err := o.StartGroupCall("g1", "bob", domain.CallAudio)
	require.NoError(t, err)
	o.JoinGroupCall("g1", "carol")
	gc, err := o.StartGroupCall("g1", "dave", domain.CallVideo)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"dave"}, gc.Participants)

	assert.True(t, o.EndGroupCall("g1", "dave"))
	assert.False(t, o.EndGroupCall("g1", "dave"))
	assert.Len(t, a.pushes(core.PushGroupCallEnded), 2)
	assert.Empty(t, o.GroupCalls("g1"))
}
