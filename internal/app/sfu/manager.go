package sfu

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrTransportNotFound = errors.New("transport not found")
	ErrRouterFailed      = errors.New("router unavailable")
)

var _ core.MediaRelay = (*Manager)(nil)

// peer is everything the relay holds for one user.
type peer struct {
	userID    domain.UserID
	groupID   domain.GroupID
	transport *Transport
	producers map[string]*Relay // by remote track id
	muted     bool
}

// Manager implements core.MediaRelay on top of pion.
type Manager struct {
	ctx    context.Context
	config webrtc.Configuration
	codecs []Codec

	// OnOffer receives server-side renegotiation offers for a user.
	OnOffer func(domain.UserID, webrtc.SessionDescription)
	// OnCandidate receives locally gathered ICE candidates for a user.
	OnCandidate func(domain.UserID, webrtc.ICECandidateInit)

	mu      sync.RWMutex
	routers map[domain.GroupID]*Router
	peers   map[domain.UserID]*peer
}

// NewManager binds every transport's lifetime to ctx.
func NewManager(ctx context.Context, iceServers []string) *Manager {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return &Manager{
		ctx:     ctx,
		config:  cfg,
		codecs:  DefaultCodecs,
		routers: make(map[domain.GroupID]*Router),
		peers:   make(map[domain.UserID]*peer),
	}
}

func (m *Manager) router(gid domain.GroupID) (*Router, error) {
	m.mu.RLock()
	r, ok := m.routers[gid]
	m.mu.RUnlock()
	if ok {
		return r, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok = m.routers[gid]; ok {
		return r, nil
	}
	r, err := NewRouter(gid, m.codecs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRouterFailed, err)
	}
	m.routers[gid] = r
	log.Info().Str("module", "sfu").Str("group", string(gid)).Msg("router created")
	return r, nil
}

func (m *Manager) Capabilities(gid domain.GroupID) ([]webrtc.RTPCodecParameters, error) {
	r, err := m.router(gid)
	if err != nil {
		return nil, err
	}
	return r.Capabilities(), nil
}

// OpenTransport replaces any transport the user already has.
func (m *Manager) OpenTransport(ctx context.Context, uid domain.UserID, gid domain.GroupID, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	r, err := m.router(gid)
	if err != nil {
		return nil, err
	}
	m.ReleaseUser(uid)

	t, err := newTransport(r.api, m.config, uid)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	p := &peer{userID: uid, groupID: gid, transport: t, producers: make(map[string]*Relay)}

	t.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if m.OnCandidate != nil {
			m.OnCandidate(uid, ci)
		}
	})
	t.OnTrack(func(trackCtx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.onTrack(trackCtx, p, track)
	})
	t.OnClosed(func() { m.releasePeer(p) })
	t.Start(m.ctx)

	m.mu.Lock()
	m.peers[uid] = p
	m.mu.Unlock()

	answer, err := t.ApplyOfferAndCreateAnswer(ctx, offer)
	if err != nil {
		m.releasePeer(p)
		return nil, fmt.Errorf("apply offer: %w", err)
	}
	log.Info().Str("module", "sfu").Str("user", string(uid)).Str("group", string(gid)).Msg("transport open")

	if m.subscribeExisting(p) > 0 {
		go m.renegotiate(uid)
	}
	return answer, nil
}

func (m *Manager) transport(uid domain.UserID) (*Transport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.peers[uid]
	if !ok {
		return nil, ErrTransportNotFound
	}
	return p.transport, nil
}

func (m *Manager) ApplyAnswer(uid domain.UserID, answer webrtc.SessionDescription) error {
	t, err := m.transport(uid)
	if err != nil {
		return err
	}
	return t.ApplyAnswer(answer)
}

func (m *Manager) AddCandidate(uid domain.UserID, ci webrtc.ICECandidateInit) error {
	t, err := m.transport(uid)
	if err != nil {
		return err
	}
	return t.AddICECandidate(ci)
}

// onTrack turns a remote track into a producer and subscribes the rest of the group.
func (m *Manager) onTrack(ctx context.Context, src *peer, track *webrtc.TrackRemote) {
	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(src.userID, track, cancel)

	m.mu.Lock()
	if cur, ok := m.peers[src.userID]; !ok || cur != src {
		m.mu.Unlock()
		cancel()
		return
	}
	if old, ok := src.producers[track.ID()]; ok {
		old.Stop()
	}
	src.producers[track.ID()] = relay
	if src.muted {
		relay.SetMuted(true)
	}
	dsts := m.groupPeersLocked(src.groupID, src.userID)
	m.mu.Unlock()

	logger := log.With().Str("module", "sfu.relay").Str("user", string(src.userID)).Str("track_id", track.ID()).Logger()
	go relay.loop(relayCtx, &logger)

	for _, dst := range dsts {
		if err := m.subscribe(relay, dst); err != nil {
			logger.Warn().Err(err).Str("dst", string(dst.userID)).Msg("subscribe failed")
			continue
		}
		go m.renegotiate(dst.userID)
	}
	logger.Info().Int("consumers", relay.ConsumerCount()).Msg("producer ready")
}

// subscribeExisting attaches every producer of the group to p.
func (m *Manager) subscribeExisting(p *peer) int {
	m.mu.RLock()
	var relays []*Relay
	for _, other := range m.groupPeersLocked(p.groupID, p.userID) {
		for _, r := range other.producers {
			relays = append(relays, r)
		}
	}
	m.mu.RUnlock()

	n := 0
	for _, r := range relays {
		if err := m.subscribe(r, p); err != nil {
			log.Warn().Err(err).Str("module", "sfu").Str("user", string(p.userID)).Msg("subscribe existing failed")
			continue
		}
		n++
	}
	return n
}

func (m *Manager) subscribe(r *Relay, dst *peer) error {
	local, err := webrtc.NewTrackLocalStaticRTP(r.Src.Codec().RTPCodecCapability, r.Src.ID(), "user-"+string(r.Owner))
	if err != nil {
		return err
	}
	sender, err := dst.transport.AddLocalTrack(local)
	if err != nil {
		return err
	}
	r.AddConsumer(dst.userID, NewOutTrack(local, sender))
	return nil
}

func (m *Manager) renegotiate(uid domain.UserID) {
	t, err := m.transport(uid)
	if err != nil {
		return
	}
	offer, err := t.CreateAndSetOffer()
	if err != nil {
		log.Warn().Err(err).Str("module", "sfu").Str("user", string(uid)).Msg("renegotiate offer")
		return
	}
	if m.OnOffer != nil {
		m.OnOffer(uid, *offer)
	}
}

func (m *Manager) groupPeersLocked(gid domain.GroupID, exclude domain.UserID) []*peer {
	var out []*peer
	for uid, p := range m.peers {
		if p.groupID == gid && uid != exclude {
			out = append(out, p)
		}
	}
	return out
}

// ReleaseUser detaches the user's transport, producers and consumers.
// Network teardown runs in the background.
func (m *Manager) ReleaseUser(uid domain.UserID) {
	m.mu.RLock()
	p, ok := m.peers[uid]
	m.mu.RUnlock()
	if ok {
		m.releasePeer(p)
	}
}

// releasePeer is a no-op unless p is still the user's current peer.
func (m *Manager) releasePeer(p *peer) {
	m.mu.Lock()
	if cur, ok := m.peers[p.userID]; !ok || cur != p {
		m.mu.Unlock()
		return
	}
	delete(m.peers, p.userID)
	for _, other := range m.groupPeersLocked(p.groupID, p.userID) {
		for _, r := range other.producers {
			r.MarkConsumerDelete(p.userID)
		}
	}
	type detached struct {
		dst    *peer
		sender *webrtc.RTPSender
	}
	var senders []detached
	for _, r := range p.producers {
		for dst, ot := range r.detach() {
			if d, ok := m.peers[dst]; ok {
				senders = append(senders, detached{dst: d, sender: ot.Sender})
			}
		}
		r.Stop()
	}
	m.mu.Unlock()

	go func() {
		p.transport.Close()
		touched := make(map[domain.UserID]struct{})
		for _, d := range senders {
			if err := d.dst.transport.RemoveSender(d.sender); err != nil {
				log.Debug().Err(err).Str("module", "sfu").Str("user", string(d.dst.userID)).Msg("remove sender")
				continue
			}
			touched[d.dst.userID] = struct{}{}
		}
		for uid := range touched {
			m.renegotiate(uid)
		}
	}()
	log.Info().Str("module", "sfu").Str("user", string(p.userID)).Str("group", string(p.groupID)).Msg("transport released")
}

// ReleaseGroup drops the router and every peer still bound to it.
func (m *Manager) ReleaseGroup(gid domain.GroupID) {
	m.mu.Lock()
	_, ok := m.routers[gid]
	delete(m.routers, gid)
	peers := m.groupPeersLocked(gid, "")
	m.mu.Unlock()

	for _, p := range peers {
		m.releasePeer(p)
	}
	if ok {
		log.Info().Str("module", "sfu").Str("group", string(gid)).Int("peers", len(peers)).Msg("router released")
	}
}

func (m *Manager) ActiveGroups() []domain.GroupID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.GroupID, 0, len(m.routers))
	for gid := range m.routers {
		out = append(out, gid)
	}
	slices.Sort(out)
	return out
}

// SetMuted pauses or resumes forwarding of the user's producers. The
// transport stays up; consumers keep their senders.
func (m *Manager) SetMuted(uid domain.UserID, muted bool) error {
	m.mu.Lock()
	p, ok := m.peers[uid]
	if !ok {
		m.mu.Unlock()
		return ErrTransportNotFound
	}
	p.muted = muted
	relays := slices.Collect(maps.Values(p.producers))
	m.mu.Unlock()

	for _, r := range relays {
		r.SetMuted(muted)
	}
	log.Info().Str("module", "sfu").Str("user", string(uid)).Bool("muted", muted).Int("producers", len(relays)).Msg("mute changed")
	return nil
}
