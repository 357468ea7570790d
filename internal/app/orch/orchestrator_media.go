package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// groupOf returns the group and connection id the user is currently
// connected with.
func (o *Orchestrator) groupOf(uid domain.UserID) (domain.GroupID, domain.ConnectionID, error) {
	o.lock()
	defer o.unlock()
	c, ok := o.registry.Get(uid)
	if !ok {
		return "", "", ErrNotJoined
	}
	return c.GroupID, c.ID, nil
}

func (o *Orchestrator) GroupCapabilities(gid domain.GroupID) ([]webrtc.RTPCodecParameters, error) {
	if o.media == nil {
		return nil, ErrMediaUnavailable
	}
	if err := gid.Validate(); err != nil {
		return nil, err
	}
	caps, err := o.media.Capabilities(gid)
	if err != nil {
		return nil, fmt.Errorf("capabilities for %s: %w", gid, err)
	}
	return caps, nil
}

// MediaCapabilities returns the router capabilities of the user's group.
func (o *Orchestrator) MediaCapabilities(uid domain.UserID) ([]webrtc.RTPCodecParameters, error) {
	gid, _, err := o.groupOf(uid)
	if err != nil {
		return nil, err
	}
	return o.GroupCapabilities(gid)
}

// MediaOffer opens a transport for the user in its current group.
// Relay calls run outside the state lock, so the connection is checked
// again once the transport exists. If the user was removed meanwhile the
// transport is released here, since that removal ran before it existed.
// A successor connection owns whatever the relay holds for the user and
// releases it on its own removal.
func (o *Orchestrator) MediaOffer(ctx context.Context, uid domain.UserID, sdp string) (*webrtc.SessionDescription, error) {
	if o.media == nil {
		return nil, ErrMediaUnavailable
	}
	gid, cid, err := o.groupOf(uid)
	if err != nil {
		return nil, err
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	answer, err := o.media.OpenTransport(ctx, uid, gid, offer)
	if err != nil {
		return nil, fmt.Errorf("open transport: %w", err)
	}

	o.lock()
	defer o.unlock()
	c, ok := o.registry.Get(uid)
	if !ok {
		o.media.ReleaseUser(uid)
		log.Info().Str("module", "orch").Str("user", string(uid)).Str("conn", string(cid)).Msg("transport opened after removal, released")
		return nil, ErrNotJoined
	}
	if c.ID != cid {
		return nil, ErrNotJoined
	}
	return answer, nil
}

func (o *Orchestrator) MediaAnswer(uid domain.UserID, sdp string) error {
	if o.media == nil {
		return ErrMediaUnavailable
	}
	if _, _, err := o.groupOf(uid); err != nil {
		return err
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := o.media.ApplyAnswer(uid, answer); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	return nil
}

func (o *Orchestrator) MediaCandidate(uid domain.UserID, cand core.ICECandidate) error {
	if o.media == nil {
		return ErrMediaUnavailable
	}
	if _, _, err := o.groupOf(uid); err != nil {
		return err
	}
	init := webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	}
	if err := o.media.AddCandidate(uid, init); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// MediaMute pauses or resumes forwarding of the user's media and tells
// the rest of the group.
func (o *Orchestrator) MediaMute(uid domain.UserID, muted bool) error {
	if o.media == nil {
		return ErrMediaUnavailable
	}
	gid, _, err := o.groupOf(uid)
	if err != nil {
		return err
	}
	if err := o.media.SetMuted(uid, muted); err != nil {
		return fmt.Errorf("set muted: %w", err)
	}
	o.Broadcast(gid, uid, core.MediaMutedPush{
		Envelope: core.NewEnvelope(core.PushMediaMuted, o.clock.Now()),
		UserID:   uid,
		GroupID:  gid,
		Muted:    muted,
	})
	return nil
}

// PushMediaOffer forwards a server-side renegotiation offer to the user.
func (o *Orchestrator) PushMediaOffer(uid domain.UserID, offer webrtc.SessionDescription) Delivery {
	return o.SendTo(uid, core.MediaPush{
		Envelope: core.NewEnvelope(core.PushMediaOffer, o.clock.Now()),
		SDP:      offer.SDP,
	})
}

// PushMediaCandidate forwards a locally gathered ICE candidate to the user.
func (o *Orchestrator) PushMediaCandidate(uid domain.UserID, cand webrtc.ICECandidateInit) Delivery {
	return o.SendTo(uid, core.MediaPush{
		Envelope: core.NewEnvelope(core.PushMediaCandidate, o.clock.Now()),
		Candidate: &core.ICECandidate{
			Candidate:     cand.Candidate,
			SDPMid:        cand.SDPMid,
			SDPMLineIndex: cand.SDPMLineIndex,
		},
	})
}
