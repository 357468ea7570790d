package app

import (
	"errors"

	"github.com/dkeye/callhub/internal/core"
)

type BackpressureAction int

const (
	// KickMember removes the connection after the current pass.
	KickMember BackpressureAction = iota
	// DropFrame skips this push and keeps the connection.
	DropFrame
)

// Policy decides what happens to a connection whose push failed.
type Policy interface {
	OnSendError(c *Connection, err error) BackpressureAction
}

// StrictPolicy kicks on every failure.
type StrictPolicy struct{}

func (StrictPolicy) OnSendError(*Connection, error) BackpressureAction { return KickMember }

// TolerantPolicy drops frames for a slow reader whose buffer is full and
// kicks only closed or broken connections.
type TolerantPolicy struct{}

func (TolerantPolicy) OnSendError(_ *Connection, err error) BackpressureAction {
	if errors.Is(err, core.ErrBackpressure) {
		return DropFrame
	}
	return KickMember
}

// PolicyByName maps a config value to a policy, defaulting to strict.
func PolicyByName(name string) Policy {
	if name == "tolerant" {
		return TolerantPolicy{}
	}
	return StrictPolicy{}
}
