package orch

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/callhub/internal/app"
	"github.com/dkeye/callhub/internal/core"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotJoined        = errors.New("not joined")
	ErrMediaUnavailable = errors.New("media relay unavailable")
)

// Removal reasons, also used as metric labels.
const (
	ReasonDisconnect = "disconnect"
	ReasonReplaced   = "replaced"
	ReasonHeartbeat  = "heartbeat"
	ReasonStale      = "stale"
	ReasonSendFailed = "send_failed"
)

type Settings struct {
	HeartbeatInterval time.Duration
	StaleTimeout      time.Duration
	PresenceThreshold time.Duration
	CallMaxAge        time.Duration
	SweepInterval     time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		HeartbeatInterval: 45 * time.Second,
		StaleTimeout:      5 * time.Minute,
		PresenceThreshold: time.Minute,
		CallMaxAge:        10 * time.Minute,
		SweepInterval:     time.Minute,
	}
}

type Option func(*Orchestrator)

func WithClock(c clockwork.Clock) Option { return func(o *Orchestrator) { o.clock = c } }

func WithMedia(m core.MediaRelay) Option { return func(o *Orchestrator) { o.media = m } }

func WithEvents(s core.EventSink) Option { return func(o *Orchestrator) { o.events = s } }

func WithMetrics(m *app.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

func WithPolicy(p app.Policy) Option { return func(o *Orchestrator) { o.policy = p } }

// Orchestrator owns the registry, presence and call tables.
// Every mutation goes through mu; slow side effects (socket close,
// event publishing) are queued while locked and run after unlock.
type Orchestrator struct {
	settings Settings
	clock    clockwork.Clock
	media    core.MediaRelay
	events   core.EventSink
	metrics  *app.Metrics
	policy   app.Policy

	mu       sync.Mutex
	registry *app.Registry
	presence *app.PresenceTable
	calls    *app.CallTable
	after    []func()
}

func New(settings Settings, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		settings: settings,
		clock:    clockwork.NewRealClock(),
		policy:   app.StrictPolicy{},
		registry: app.NewRegistry(),
		presence: app.NewPresenceTable(settings.PresenceThreshold),
		calls:    app.NewCallTable(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Settings() Settings { return o.settings }

func (o *Orchestrator) Now() time.Time { return o.clock.Now() }

func (o *Orchestrator) lock() { o.mu.Lock() }

func (o *Orchestrator) unlock() {
	after := o.after
	o.after = nil
	o.mu.Unlock()
	for _, fn := range after {
		fn()
	}
}

// afterUnlock queues fn to run once the current critical section ends.
func (o *Orchestrator) afterUnlock(fn func()) {
	o.after = append(o.after, fn)
}

func (o *Orchestrator) publishLocked(topic string, v any) {
	if o.events == nil {
		return
	}
	sink := o.events
	o.afterUnlock(func() { sink.Publish(topic, v) })
}

func encode(v any) (core.Frame, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode push")
		return nil, false
	}
	return b, true
}
