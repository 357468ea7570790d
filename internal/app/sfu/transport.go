package sfu

import (
	"context"
	"sync"

	"github.com/dkeye/callhub/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Transport wraps the PeerConnection a user sends and receives media on.
type Transport struct {
	pc     *webrtc.PeerConnection
	userID domain.UserID
	cancel context.CancelFunc

	closeOnce  sync.Once
	closedOnce sync.Once

	onICE    func(webrtc.ICECandidateInit)
	onTrack  func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onClosed func()
}

func newTransport(api *webrtc.API, cfg webrtc.Configuration, uid domain.UserID) (*Transport, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Transport{pc: pc, userID: uid}, nil
}

// Start installs the PeerConnection callbacks and binds track contexts to ctx.
// Callbacks must be set before Start.
func (t *Transport) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Debug().Str("module", "sfu.transport").Str("user", string(t.userID)).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed || s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	t.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "sfu.transport").Str("user", string(t.userID)).Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			t.fireClosed()
		}
	})

	t.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && t.onICE != nil {
			t.onICE(cand.ToJSON())
		}
	})

	t.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "sfu.transport").
			Str("user", string(t.userID)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		if t.onTrack != nil {
			t.onTrack(ctx, track, receiver)
		}
	})
}

// ApplyOfferAndCreateAnswer answers a client offer once ICE gathering is done.
func (t *Transport) ApplyOfferAndCreateAnswer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return t.pc.LocalDescription(), nil
}

// CreateAndSetOffer starts a server-side renegotiation.
func (t *Transport) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return t.pc.LocalDescription(), nil
}

func (t *Transport) ApplyAnswer(answer webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(answer)
}

func (t *Transport) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(ci)
}

// AddLocalTrack attaches a consumer track and drains its RTCP.
func (t *Transport) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return sender, nil
}

func (t *Transport) RemoveSender(sender *webrtc.RTPSender) error {
	return t.pc.RemoveTrack(sender)
}

func (t *Transport) OnICECandidate(fn func(webrtc.ICECandidateInit)) { t.onICE = fn }

// OnTrack sets application-level callback for remote tracks.
func (t *Transport) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	t.onTrack = fn
}

// OnClosed sets the callback fired once when the transport goes away.
func (t *Transport) OnClosed(fn func()) { t.onClosed = fn }

func (t *Transport) IsClosed() bool {
	return t.pc.ConnectionState() == webrtc.PeerConnectionStateClosed
}

func (t *Transport) Close() {
	t.closeOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		if err := t.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "sfu.transport").Str("user", string(t.userID)).Msg("close error")
		} else {
			log.Info().Str("module", "sfu.transport").Str("user", string(t.userID)).Msg("closed")
		}
		t.fireClosed()
	})
}

func (t *Transport) fireClosed() {
	t.closedOnce.Do(func() {
		if t.onClosed != nil {
			t.onClosed()
		}
	})
}
