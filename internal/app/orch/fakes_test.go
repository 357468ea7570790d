package orch

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/dkeye/callhub/internal/core"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/tidwall/gjson"
)

type fakeSignal struct {
	mu      sync.Mutex
	frames  []core.Frame
	pings   int
	closed  bool
	sendErr error
}

func newSignal() *fakeSignal { return &fakeSignal{} }

func (s *fakeSignal) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	if s.sendErr != nil {
		return s.sendErr
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *fakeSignal) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	s.pings++
	return nil
}

func (s *fakeSignal) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *fakeSignal) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *fakeSignal) pingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

// pushes returns every received frame of the given type.
func (s *fakeSignal) pushes(typ string) []gjson.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []gjson.Result
	for _, f := range s.frames {
		r := gjson.ParseBytes(f)
		if r.Get("type").String() == typ {
			out = append(out, r)
		}
	}
	return out
}

type fakeMedia struct {
	mu             sync.Mutex
	groups         map[domain.GroupID]bool
	opened         map[domain.UserID]domain.GroupID
	releasedUsers  []domain.UserID
	releasedGroups []domain.GroupID
	candidates     int
	openErr        error
	muted          map[domain.UserID]bool

	// When set, OpenTransport signals entered and waits on release.
	entered chan struct{}
	release chan struct{}
}

func newMedia(groups ...domain.GroupID) *fakeMedia {
	m := &fakeMedia{
		groups: make(map[domain.GroupID]bool),
		opened: make(map[domain.UserID]domain.GroupID),
		muted:  make(map[domain.UserID]bool),
	}
	for _, g := range groups {
		m.groups[g] = true
	}
	return m
}

func (m *fakeMedia) Capabilities(gid domain.GroupID) ([]webrtc.RTPCodecParameters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[gid] = true
	return []webrtc.RTPCodecParameters{{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, PayloadType: 111}}, nil
}

func (m *fakeMedia) OpenTransport(_ context.Context, uid domain.UserID, gid domain.GroupID, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if m.release != nil {
		m.entered <- struct{}{}
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	m.groups[gid] = true
	m.opened[uid] = gid
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-to:" + offer.SDP}, nil
}

func (m *fakeMedia) ApplyAnswer(domain.UserID, webrtc.SessionDescription) error { return nil }

func (m *fakeMedia) AddCandidate(domain.UserID, webrtc.ICECandidateInit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates++
	return nil
}

func (m *fakeMedia) ReleaseUser(uid domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.opened, uid)
	m.releasedUsers = append(m.releasedUsers, uid)
}

func (m *fakeMedia) SetMuted(uid domain.UserID, muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.opened[uid]; !ok {
		return errors.New("transport not found")
	}
	m.muted[uid] = muted
	return nil
}

func (m *fakeMedia) ReleaseGroup(gid domain.GroupID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.groups, gid)
	m.releasedGroups = append(m.releasedGroups, gid)
}

func (m *fakeMedia) ActiveGroups() []domain.GroupID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.GroupID, 0, len(m.groups))
	for g := range m.groups {
		out = append(out, g)
	}
	slices.Sort(out)
	return out
}

func (m *fakeMedia) holds(uid domain.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.opened[uid]
	return ok
}

func (m *fakeMedia) released(uid domain.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.releasedUsers, uid)
}

type fakeSink struct {
	mu     sync.Mutex
	topics []string
}

func (s *fakeSink) Publish(topic string, _ any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
}

func (s *fakeSink) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.topics)
}
