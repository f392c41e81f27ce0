package app

import (
	"errors"

	"github.com/dkeye/Relay/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a recipient whose send failed during fan-out.
type Policy interface {
	OnBackPressure(member Entry, err error) BackpressureAction
}

// SimplePolicy kicks peers whose queue is full. Closed peers are already on
// their way out through their own read loop.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(member Entry, err error) BackpressureAction {
	if errors.Is(err, core.ErrBackpressure) {
		return KickMember
	}
	return NoAction
}
