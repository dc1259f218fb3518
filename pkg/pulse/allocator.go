// Copyright 2026 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package pulse

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Claim records a consumer (typically a pin) using a timer.
type Claim struct {
	Consumer string
	Kind     Kind
	Config   Config
}

// TimerState is the allocation state of a single hardware timer.
type TimerState struct {
	// Shared is taken from the layout catalog.
	Shared bool
	// InUse is set once a servo has claimed the timer.
	InUse bool
	// Owner is the first consumer of an exclusive timer (any kind).
	Owner string
	// Servo claims in the order they were registered.
	Claims []Claim
}

// Allocator tracks the use of hardware timers by pulse outputs.
type Allocator struct {
	mutex  sync.Mutex
	log    zerolog.Logger
	shared map[string]bool
	timers map[string]*TimerState
}

// NewAllocator creates an allocator for the timers with given sharing policy.
// Timers not in the given map are considered exclusive.
func NewAllocator(log zerolog.Logger, shared map[string]bool) *Allocator {
	a := &Allocator{
		log:    log.With().Str("component", "timer-allocator").Logger(),
		shared: make(map[string]bool, len(shared)),
	}
	for id, s := range shared {
		a.shared[id] = s
	}
	a.Reset()
	return a
}

// Reset forgets all claims.
func (a *Allocator) Reset() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.timers = make(map[string]*TimerState)
}

// Resolve the pulse configuration for the given consumer that wants to use
// the timer with given ID for the given kind of output.
//
// Only servo outputs claim a timer. A PWM output on a shared timer that is
// in use follows the configuration of the first servo claim. An exclusive
// timer belongs to its first consumer; other consumers fail with
// TimerConflictError.
func (a *Allocator) Resolve(consumer, timerID string, bitWidth int, kind Kind) (Config, error) {
	cfg, err := Lookup(bitWidth, kind)
	if err != nil {
		return Config{}, err
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	ts := a.timerState(timerID)
	if !ts.Shared {
		if ts.Owner != "" && ts.Owner != consumer {
			return Config{}, errors.Wrapf(TimerConflictError, "timer '%s' is already claimed by '%s'", timerID, ts.Owner)
		}
		ts.Owner = consumer
	}

	switch kind {
	case KindServo:
		claim := Claim{Consumer: consumer, Kind: kind, Config: cfg}
		replaced := false
		for i, c := range ts.Claims {
			if c.Consumer == consumer {
				ts.Claims[i] = claim
				replaced = true
				break
			}
		}
		if !replaced {
			ts.Claims = append(ts.Claims, claim)
		}
		ts.InUse = true
	case KindPWM:
		if ts.Shared && ts.InUse && len(ts.Claims) > 0 {
			cfg = ts.Claims[0].Config
		}
	}

	a.log.Debug().
		Str("timer", timerID).
		Str("consumer", consumer).
		Str("kind", kind.String()).
		Int64("period", cfg.Period).
		Msg("Resolved pulse configuration")
	return cfg, nil
}

// State returns a copy of the state of the timer with given ID.
func (a *Allocator) State(timerID string) TimerState {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	ts, found := a.timers[timerID]
	if !found {
		return TimerState{Shared: a.shared[timerID]}
	}
	result := *ts
	result.Claims = append([]Claim(nil), ts.Claims...)
	return result
}

// timerState returns the state of the timer with given ID, creating it
// when needed. Mutex must be held.
func (a *Allocator) timerState(timerID string) *TimerState {
	ts, found := a.timers[timerID]
	if !found {
		ts = &TimerState{Shared: a.shared[timerID]}
		a.timers[timerID] = ts
	}
	return ts
}
