package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/callhub/internal/app/orch"
	"github.com/dkeye/callhub/internal/core"
	"github.com/rs/zerolog/log"
)

const negotiateTimeout = 10 * time.Second

func (ctl *SignalWSController) mediaError(s *session, event string, err error) {
	if errors.Is(err, orch.ErrNotJoined) {
		ctl.sendError(s, event, errNotJoined)
		return
	}
	log.Warn().Err(err).Str("module", "signal").Str("user", string(s.userID)).Str("type", event).Msg("media request failed")
	ctl.sendError(s, event, errMediaFailed)
}

func (ctl *SignalWSController) handleMediaCapabilities(s *session) {
	if !s.joined() {
		ctl.sendError(s, core.EventMediaCapabilities, errNotJoined)
		return
	}
	caps, err := ctl.Orch.MediaCapabilities(s.userID)
	if err != nil {
		ctl.mediaError(s, core.EventMediaCapabilities, err)
		return
	}
	raw, err := json.Marshal(caps)
	if err != nil {
		ctl.mediaError(s, core.EventMediaCapabilities, err)
		return
	}
	ctl.sendJSON(s, core.MediaPush{
		Envelope:     core.NewEnvelope(core.PushMediaCapabilities, ctl.Orch.Now()),
		Capabilities: raw,
	})
}

type sdpPayload struct {
	SDP string `json:"sdp"`
}

func (ctl *SignalWSController) handleMediaOffer(ctx context.Context, s *session, data []byte) {
	if !s.joined() {
		ctl.sendError(s, core.EventMediaOffer, errNotJoined)
		return
	}
	var p sdpPayload
	if !ctl.decode(s, core.EventMediaOffer, data, &p, "sdp") {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, negotiateTimeout)
	defer cancel()

	answer, err := ctl.Orch.MediaOffer(ctx, s.userID, p.SDP)
	if err != nil {
		ctl.mediaError(s, core.EventMediaOffer, err)
		return
	}
	ctl.sendJSON(s, core.MediaPush{
		Envelope: core.NewEnvelope(core.PushMediaAnswer, ctl.Orch.Now()),
		SDP:      answer.SDP,
	})
}

func (ctl *SignalWSController) handleMediaAnswer(s *session, data []byte) {
	if !s.joined() {
		ctl.sendError(s, core.EventMediaAnswer, errNotJoined)
		return
	}
	var p sdpPayload
	if !ctl.decode(s, core.EventMediaAnswer, data, &p, "sdp") {
		return
	}
	if err := ctl.Orch.MediaAnswer(s.userID, p.SDP); err != nil {
		ctl.mediaError(s, core.EventMediaAnswer, err)
	}
}

type candidatePayload struct {
	Candidate core.ICECandidate `json:"candidate"`
}

func (ctl *SignalWSController) handleMediaCandidate(s *session, data []byte) {
	if !s.joined() {
		ctl.sendError(s, core.EventMediaCandidate, errNotJoined)
		return
	}
	var p candidatePayload
	if !ctl.decode(s, core.EventMediaCandidate, data, &p, "candidate.candidate") {
		return
	}
	if err := ctl.Orch.MediaCandidate(s.userID, p.Candidate); err != nil {
		ctl.mediaError(s, core.EventMediaCandidate, err)
	}
}

type mutePayload struct {
	Muted bool `json:"muted"`
}

func (ctl *SignalWSController) handleMediaMute(s *session, data []byte) {
	if !s.joined() {
		ctl.sendError(s, core.EventMediaMute, errNotJoined)
		return
	}
	var p mutePayload
	if !ctl.decode(s, core.EventMediaMute, data, &p, "muted") {
		return
	}
	if err := ctl.Orch.MediaMute(s.userID, p.Muted); err != nil {
		ctl.mediaError(s, core.EventMediaMute, err)
	}
}
