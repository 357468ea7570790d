package core

import (
	"context"

	"github.com/dkeye/callhub/internal/domain"
	"github.com/pion/webrtc/v4"
)

// MediaRelay is the external forwarding plane. The coordinator treats
// transports, producers and consumers as opaque handles owned per user.
type MediaRelay interface {
	// Capabilities returns the RTP capabilities of the group's router,
	// creating the router on first use.
	Capabilities(groupID domain.GroupID) ([]webrtc.RTPCodecParameters, error)
	// OpenTransport negotiates a transport for userID inside groupID.
	OpenTransport(ctx context.Context, userID domain.UserID, groupID domain.GroupID, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	ApplyAnswer(userID domain.UserID, answer webrtc.SessionDescription) error
	AddCandidate(userID domain.UserID, candidate webrtc.ICECandidateInit) error
	// ReleaseUser closes every handle bound to userID. Safe to call repeatedly.
	ReleaseUser(userID domain.UserID)
	// SetMuted pauses or resumes forwarding of everything userID produces.
	SetMuted(userID domain.UserID, muted bool) error
	// ReleaseGroup closes the group's router and whatever is still bound to it.
	ReleaseGroup(groupID domain.GroupID)
	ActiveGroups() []domain.GroupID
}

// EventSink receives coordinator lifecycle events (presence, calls).
// Publish must not block for long; it runs outside the state lock.
type EventSink interface {
	Publish(topic string, v any)
}
