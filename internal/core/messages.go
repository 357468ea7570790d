package core

import (
	"encoding/json"
	"time"

	"github.com/dkeye/callhub/internal/domain"
)

// Inbound event types.
const (
	EventJoin                  = "join"
	EventHeartbeatPing         = "heartbeat-ping"
	EventGroupCallStart        = "group-call-start"
	EventGroupCallJoin         = "group-call-join"
	EventGroupCallLeave        = "group-call-leave"
	EventGroupCallEnd          = "group-call-end"
	EventIndividualCallStart   = "individual-call-start"
	EventIndividualCallRespond = "individual-call-respond"
	EventDisconnect            = "disconnect"
	EventMediaCapabilities     = "media-capabilities"
	EventMediaOffer            = "media-offer"
	EventMediaAnswer           = "media-answer"
	EventMediaCandidate        = "media-candidate"
	EventMediaMute             = "media-mute"
)

// Outbound push types.
const (
	PushJoined            = "joined"
	PushUserJoined        = "user-joined"
	PushUserLeft          = "user-left"
	PushHeartbeatPong     = "heartbeat-pong"
	PushGroupCallStarted  = "group-call-started"
	PushGroupCallJoined   = "group-call-joined"
	PushGroupCallLeft     = "group-call-left"
	PushGroupCallEnded    = "group-call-ended"
	PushIncomingCall      = "incoming-call"
	PushCallStarted       = "call-started"
	PushCallResponse      = "call-response"
	PushMediaCapabilities = "media-capabilities"
	PushMediaAnswer       = "media-answer"
	PushMediaOffer        = "media-offer"
	PushMediaCandidate    = "media-candidate"
	PushMediaMuted        = "media-muted"
	PushError             = "error"
)

// Envelope is embedded in every push.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func NewEnvelope(typ string, at time.Time) Envelope {
	return Envelope{Type: typ, Timestamp: at.UnixMilli()}
}

type JoinedPush struct {
	Envelope
	ConnectionID domain.ConnectionID   `json:"connectionId"`
	UserID       domain.UserID         `json:"userId"`
	GroupID      domain.GroupID        `json:"groupId"`
	OnlineUsers  []domain.PresenceView `json:"onlineUsers"`
}

type UserJoinedPush struct {
	Envelope
	UserID   domain.UserID   `json:"userId"`
	GroupID  domain.GroupID  `json:"groupId"`
	UserData domain.UserData `json:"userData,omitempty"`
}

type UserLeftPush struct {
	Envelope
	UserID  domain.UserID  `json:"userId"`
	GroupID domain.GroupID `json:"groupId"`
	Reason  string         `json:"reason,omitempty"`
}

type GroupCallPush struct {
	Envelope
	GroupID      domain.GroupID  `json:"groupId"`
	UserID       domain.UserID   `json:"userId"`
	CallType     domain.CallType `json:"callType,omitempty"`
	Participants []domain.UserID `json:"participants"`
}

type IncomingCallPush struct {
	Envelope
	CallID     domain.CallID   `json:"callId"`
	GroupID    domain.GroupID  `json:"groupId"`
	Caller     domain.UserID   `json:"caller"`
	CallerName string          `json:"callerName"`
	CallType   domain.CallType `json:"callType"`
}

type CallStartedPush struct {
	Envelope
	CallID          domain.CallID `json:"callId"`
	Target          domain.UserID `json:"targetUser"`
	TargetConnected bool          `json:"targetConnected"`
}

type CallResponsePush struct {
	Envelope
	CallID   domain.CallID     `json:"callId"`
	GroupID  domain.GroupID    `json:"groupId"`
	Caller   domain.UserID     `json:"caller"`
	Target   domain.UserID     `json:"targetUser"`
	Action   domain.CallStatus `json:"action"`
	CallType domain.CallType   `json:"callType"`
}

type MediaPush struct {
	Envelope
	SDP          string          `json:"sdp,omitempty"`
	Candidate    *ICECandidate   `json:"candidate,omitempty"`
	Capabilities json.RawMessage `json:"capabilities,omitempty"`
}

type MediaMutedPush struct {
	Envelope
	UserID  domain.UserID  `json:"userId"`
	GroupID domain.GroupID `json:"groupId"`
	Muted   bool           `json:"muted"`
}

// ICECandidate mirrors webrtc.ICECandidateInit with client-friendly tags.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

type ErrorPush struct {
	Envelope
	Error string `json:"error"`
	Event string `json:"event,omitempty"`
}
