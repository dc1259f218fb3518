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

// Package pulse contains the pulse timing tables for PWM & servo outputs
// and the allocator that hands out (possibly shared) hardware timers.
package pulse

import (
	"github.com/pkg/errors"
)

// Kind of pulse output.
type Kind int

const (
	// KindPWM is a plain pulse width modulated output.
	KindPWM Kind = iota
	// KindServo is a servo pulse output.
	KindServo
)

// String returns a human readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindPWM:
		return "pwm"
	case KindServo:
		return "servo"
	default:
		return "unknown"
	}
}

// Range returns the upper bound of client values for this kind.
// PWM values are in 0..255, servo values (degrees) are in 0..180.
func (k Kind) Range() float64 {
	if k == KindServo {
		return 180
	}
	return 255
}

// Config holds the timing of a pulse output.
// All values are in timer ticks (nanoseconds on sysfs PWM chips).
type Config struct {
	Period int64 `json:"period"`
	Min    int64 `json:"min"`
	Max    int64 `json:"max"`
}

var (
	// table is indexed by timer bit width, then by Kind.
	table = map[int][2]Config{
		8: {
			KindPWM:   {Min: 0, Max: 5000000, Period: 10000000},
			KindServo: {Min: 560000, Max: 10000000, Period: 20000000},
		},
		16: {
			KindPWM:   {Min: 0, Max: 5000000, Period: 10000000},
			KindServo: {Min: 560000, Max: 2400000, Period: 20000000},
		},
	}
)

// Lookup returns the default pulse configuration for a timer with given
// bit width and the given kind of output.
func Lookup(bitWidth int, kind Kind) (Config, error) {
	entry, found := table[bitWidth]
	if !found {
		return Config{}, errors.Wrapf(UnknownBitWidthError, "no pulse configuration for %d-bit timers", bitWidth)
	}
	if kind != KindPWM && kind != KindServo {
		return Config{}, errors.Errorf("invalid pulse kind %d", int(kind))
	}
	return entry[kind], nil
}

// DutyCycle maps a client value onto the [Min, Max] duty range of the given
// config, using the value range of the given kind.
// Values above the range result in Max, negative values result in Min.
func DutyCycle(value float64, kind Kind, cfg Config) int64 {
	vrange := kind.Range()
	if value > vrange {
		return cfg.Max
	}
	if value < 0 {
		return cfg.Min
	}
	return int64(float64(cfg.Min) + (value/vrange)*float64(cfg.Max-cfg.Min))
}
