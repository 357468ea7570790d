package sfu

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/callhub/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasPeer(m *Manager, uid domain.UserID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.peers[uid]
	return ok
}

func TestManagerRoutersLifecycle(t *testing.T) {
	m := NewManager(context.Background(), nil)

	_, err := m.Capabilities("g2")
	require.NoError(t, err)
	caps, err := m.Capabilities("g1")
	require.NoError(t, err)
	assert.NotEmpty(t, caps)
	assert.Equal(t, []domain.GroupID{"g1", "g2"}, m.ActiveGroups())

	m.ReleaseGroup("g2")
	m.ReleaseGroup("g2")
	assert.Equal(t, []domain.GroupID{"g1"}, m.ActiveGroups())
}

func TestManagerUnknownTransport(t *testing.T) {
	m := NewManager(context.Background(), []string{"stun:stun.example.org:3478"})

	err := m.ApplyAnswer("alice", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	require.ErrorIs(t, err, ErrTransportNotFound)
	err = m.AddCandidate("alice", webrtc.ICECandidateInit{Candidate: "candidate:1"})
	require.ErrorIs(t, err, ErrTransportNotFound)
	require.ErrorIs(t, m.SetMuted("alice", true), ErrTransportNotFound)

	assert.NotPanics(t, func() {
		m.ReleaseUser("alice")
		m.ReleaseUser("alice")
	})
	assert.False(t, hasPeer(m, "alice"))
}

func clientOffer(t *testing.T) (*webrtc.PeerConnection, webrtc.SessionDescription) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(pc)
	require.NoError(t, pc.SetLocalDescription(offer))
	<-gathered
	return pc, *pc.LocalDescription()
}

func TestManagerOpenTransportAnswersOffer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager(ctx, nil)

	_, offer := clientOffer(t)
	openCtx, openCancel := context.WithTimeout(ctx, 5*time.Second)
	defer openCancel()

	answer, err := m.OpenTransport(openCtx, "alice", "g1", offer)
	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Contains(t, answer.SDP, "opus")
	assert.True(t, hasPeer(m, "alice"))
	assert.Equal(t, []domain.GroupID{"g1"}, m.ActiveGroups())

	require.NoError(t, m.SetMuted("alice", true))
	m.mu.RLock()
	assert.True(t, m.peers["alice"].muted)
	m.mu.RUnlock()

	m.ReleaseUser("alice")
	assert.False(t, hasPeer(m, "alice"))

	m.ReleaseGroup("g1")
	assert.Empty(t, m.ActiveGroups())
}

func TestManagerOpenTransportRejectsBadOffer(t *testing.T) {
	m := NewManager(context.Background(), nil)
	_, err := m.OpenTransport(context.Background(), "alice", "g1", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "garbage"})
	require.Error(t, err)
	assert.False(t, hasPeer(m, "alice"))
}
