package orch

import (
	"github.com/dkeye/callhub/internal/app"
	"github.com/dkeye/callhub/internal/domain"
	"github.com/rs/zerolog/log"
)

// Delivery is the outcome of a best-effort push.
type Delivery int

const (
	NotDelivered Delivery = iota
	Delivered
)

// Broadcast sends msg to every connection of gid except exclude and
// returns how many sends succeeded. Peers the policy kicks are removed
// after the pass.
func (o *Orchestrator) Broadcast(gid domain.GroupID, exclude domain.UserID, msg any) int {
	o.lock()
	defer o.unlock()
	return o.broadcastLocked(gid, exclude, msg)
}

func (o *Orchestrator) broadcastLocked(gid domain.GroupID, exclude domain.UserID, msg any) int {
	frame, ok := encode(msg)
	if !ok {
		return 0
	}

	var dead []*app.Connection
	sent, failed := 0, 0
	for _, c := range o.registry.InGroup(gid) {
		if c.UserID == exclude {
			continue
		}
		if !c.Signal.IsOpen() {
			dead = append(dead, c)
			failed++
			continue
		}
		if err := c.Signal.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "orch").Str("user", string(c.UserID)).Msg("broadcast send failed")
			failed++
			if o.policy.OnSendError(c, err) == app.KickMember {
				dead = append(dead, c)
			}
			continue
		}
		sent++
	}
	o.metrics.Delivered("broadcast", true, sent)
	o.metrics.Delivered("broadcast", false, failed)

	// Cleanup happens after the pass, never while iterating.
	for _, c := range dead {
		o.dropLocked(c, ReasonSendFailed, true)
	}

	log.Debug().Str("module", "orch").Str("group", string(gid)).Int("sent_to", sent).Int("dropped", len(dead)).Msg("broadcast result")
	return sent
}

// SendTo pushes msg to a single user. A user without a connection is
// silently skipped; a connection that cannot take the push is cleaned up.
func (o *Orchestrator) SendTo(uid domain.UserID, msg any) Delivery {
	o.lock()
	defer o.unlock()
	return o.sendLocked(uid, msg)
}

func (o *Orchestrator) sendLocked(uid domain.UserID, msg any) Delivery {
	c, ok := o.registry.Get(uid)
	if !ok {
		return NotDelivered
	}
	frame, ok := encode(msg)
	if !ok {
		return NotDelivered
	}
	if !c.Signal.IsOpen() {
		o.metrics.Delivered("direct", false, 1)
		o.dropLocked(c, ReasonSendFailed, true)
		return NotDelivered
	}
	if err := c.Signal.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("user", string(uid)).Msg("direct send failed")
		o.metrics.Delivered("direct", false, 1)
		if o.policy.OnSendError(c, err) == app.KickMember {
			o.dropLocked(c, ReasonSendFailed, true)
		}
		return NotDelivered
	}
	o.metrics.Delivered("direct", true, 1)
	return Delivered
}
