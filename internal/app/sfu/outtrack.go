package sfu

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// OutTrack is a consumer: one producer's track as sent to one subscriber.
type OutTrack struct {
	Track  *webrtc.TrackLocalStaticRTP
	Sender *webrtc.RTPSender
	state  atomic.Int32 // Zero by default (TrackStateOk)
}

func NewOutTrack(track *webrtc.TrackLocalStaticRTP, sender *webrtc.RTPSender) *OutTrack {
	return &OutTrack{Track: track, Sender: sender}
}

func (ot *OutTrack) State() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) SetMuted(muted bool) {
	if muted {
		ot.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted))
		return
	}
	ot.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk))
}

// MarkDelete is terminal; a deleted track is never revived.
func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}
