package domain

import (
	"errors"
	"slices"
	"time"
)

type (
	CallID     string
	CallType   string
	CallStatus string
)

const (
	CallVideo CallType = "video"
	CallAudio CallType = "audio"
)

const (
	CallRinging  CallStatus = "ringing"
	CallAccepted CallStatus = "accepted"
	CallDeclined CallStatus = "declined"
	CallCanceled CallStatus = "canceled"
)

var (
	ErrCallNotFound    = errors.New("call not found")
	ErrInvalidAction   = errors.New("invalid call action")
	ErrInvalidCallType = errors.New("invalid call type")
)

func (t CallType) Validate() error {
	switch t {
	case CallVideo, CallAudio:
		return nil
	}
	return ErrInvalidCallType
}

// Terminal reports whether s is a valid response action.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallAccepted, CallDeclined, CallCanceled:
		return true
	}
	return false
}

type IndividualCall struct {
	ID         CallID     `json:"callId"`
	GroupID    GroupID    `json:"groupId"`
	Caller     UserID     `json:"caller"`
	CallerName string     `json:"callerName"`
	Target     UserID     `json:"targetUser"`
	CallType   CallType   `json:"callType"`
	Status     CallStatus `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type GroupCall struct {
	GroupID      GroupID
	Caller       UserID
	Participants map[UserID]struct{}
	CallType     CallType
	StartedAt    time.Time
}

func NewGroupCall(groupID GroupID, caller UserID, callType CallType, at time.Time) *GroupCall {
	return &GroupCall{
		GroupID:      groupID,
		Caller:       caller,
		Participants: map[UserID]struct{}{caller: {}},
		CallType:     callType,
		StartedAt:    at,
	}
}

// ParticipantList returns participants sorted by id.
func (g *GroupCall) ParticipantList() []UserID {
	out := make([]UserID, 0, len(g.Participants))
	for uid := range g.Participants {
		out = append(out, uid)
	}
	slices.Sort(out)
	return out
}

func (g *GroupCall) View() GroupCallView {
	return GroupCallView{
		GroupID:      g.GroupID,
		Caller:       g.Caller,
		Participants: g.ParticipantList(),
		CallType:     g.CallType,
		StartedAt:    g.StartedAt,
	}
}

type GroupCallView struct {
	GroupID      GroupID   `json:"groupId"`
	Caller       UserID    `json:"caller"`
	Participants []UserID  `json:"participants"`
	CallType     CallType  `json:"callType"`
	StartedAt    time.Time `json:"startedAt"`
}
