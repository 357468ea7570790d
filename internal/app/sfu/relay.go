package sfu

import (
	"context"
	"maps"
	"sync"

	"github.com/dkeye/callhub/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Relay is a producer: it reads one remote track and forwards every RTP
// packet to the consumers subscribed to it.
type Relay struct {
	Src   *webrtc.TrackRemote
	Owner domain.UserID

	mu        sync.RWMutex
	outTracks map[domain.UserID]*OutTrack
	muted     bool

	cancel context.CancelFunc
}

func NewRelay(owner domain.UserID, src *webrtc.TrackRemote, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:       src,
		Owner:     owner,
		outTracks: make(map[domain.UserID]*OutTrack),
		cancel:    cancel,
	}
}

// loop reads RTP packets from the source track until ctx ends or the read fails.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done, marking all out tracks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			logger.Info().Err(err).Msg("relay read RTP stopped")
			r.markAllDelete()
			return
		}
		r.forward(pkt, logger)
	}
}

// forward writes pkt to a snapshot of the consumers. Failed or deleted
// consumers are collected and dropped after the pass.
func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	var dirty []domain.UserID
	for dst, ot := range snapshot {
		switch ot.State() {
		case TrackStateDelete:
			dirty = append(dirty, dst)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Track.WriteRTP(pkt); err != nil {
				logger.Warn().Err(err).Str("dst", string(dst)).Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, dst)
			}
		}
	}

	if len(dirty) > 0 {
		r.dropConsumers(dirty)
	}
}

func (r *Relay) dropConsumers(dsts []domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dst := range dsts {
		delete(r.outTracks, dst)
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
}

func (r *Relay) AddConsumer(dst domain.UserID, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.outTracks[dst]; ok {
		old.MarkDelete()
	}
	if r.muted {
		ot.SetMuted(true)
	}
	r.outTracks[dst] = ot
}

// SetMuted pauses or resumes every consumer, including ones added later.
func (r *Relay) SetMuted(muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted = muted
	for _, ot := range r.outTracks {
		ot.SetMuted(muted)
	}
}

// MarkConsumerDelete flags dst's consumer; the next forward pass drops it.
func (r *Relay) MarkConsumerDelete(dst domain.UserID) {
	r.mu.RLock()
	ot, ok := r.outTracks[dst]
	r.mu.RUnlock()
	if ok {
		ot.MarkDelete()
	}
}

func (r *Relay) ConsumerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}

// Stop ends the read loop.
func (r *Relay) Stop() {
	r.markAllDelete()
	if r.cancel != nil {
		r.cancel()
	}
}

// detach removes and returns every consumer.
func (r *Relay) detach() map[domain.UserID]*OutTrack {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.outTracks
	r.outTracks = make(map[domain.UserID]*OutTrack)
	for _, ot := range out {
		ot.MarkDelete()
	}
	return out
}
