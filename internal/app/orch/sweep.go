package orch

import (
	"time"

	"github.com/dkeye/callhub/internal/domain"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// SweepReport counts what one sweep reconciled.
type SweepReport struct {
	Connections int `json:"connections"`
	Presence    int `json:"presence"`
	Calls       int `json:"calls"`
	GroupCalls  int `json:"groupCalls"`
	Routers     int `json:"routers"`
}

// Sweep reconciles state that per-event handlers cannot observe:
// stale connections, expired presence, old calls, empty group calls and
// media routers of groups nobody is connected to.
func (o *Orchestrator) Sweep() SweepReport {
	started := time.Now()

	o.lock()
	defer o.unlock()

	now := o.clock.Now()
	var rep SweepReport

	for _, c := range o.registry.StaleSince(now.Add(-o.settings.StaleTimeout)) {
		o.dropLocked(c, ReasonStale, true)
		rep.Connections++
	}

	expired := o.presence.Expire(now)
	for _, uid := range expired {
		o.publishLocked("presence.offline", presenceEvent{UserID: uid, Status: domain.StatusOffline})
	}
	rep.Presence = len(expired)

	rep.Calls = len(o.calls.PurgeBefore(now.Add(-o.settings.CallMaxAge)))
	rep.GroupCalls = len(o.calls.PurgeEmptyGroups())

	if o.media != nil {
		for _, gid := range o.media.ActiveGroups() {
			if o.registry.HasGroup(gid) {
				continue
			}
			o.media.ReleaseGroup(gid)
			rep.Routers++
		}
	}

	o.metrics.Swept("connections", rep.Connections)
	o.metrics.Swept("presence", rep.Presence)
	o.metrics.Swept("calls", rep.Calls)
	o.metrics.Swept("group_calls", rep.GroupCalls)
	o.metrics.Swept("routers", rep.Routers)
	o.metrics.SetOccupancy(o.presence.OnlineCount(now), o.calls.IndividualCount())
	o.metrics.ObserveSweep(time.Since(started).Seconds())

	log.Debug().Str("module", "orch.sweep").Interface("report", rep).Msg("sweep done")
	return rep
}

// Scheduler runs Sweep, and any housekeeping added with Also, on a fixed interval.
type Scheduler struct {
	cron *cron.Cron
	spec string
}

func NewScheduler(o *Orchestrator, every time.Duration) (*Scheduler, error) {
	logger := cronLogger{}
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	s := &Scheduler{cron: c, spec: "@every " + every.String()}
	if _, err := c.AddFunc(s.spec, func() { o.Sweep() }); err != nil {
		return nil, err
	}
	return s, nil
}

// Also runs fn on the sweep interval.
func (s *Scheduler) Also(fn func()) error {
	_, err := s.cron.AddFunc(s.spec, fn)
	return err
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Str("module", "orch.sweep").Msg("sweep scheduler started")
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Info().Str("module", "orch.sweep").Msg("sweep scheduler stopped")
}

// cronLogger routes cron's logs to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Str("module", "cron").Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Str("module", "cron").Fields(keysAndValues).Msg(msg)
}
