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

package pin

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Mode of a pin.
type Mode int

const (
	Input  Mode = 0
	Output Mode = 1
	Analog Mode = 2
	PWM    Mode = 3
	Servo  Mode = 4
)

const (
	// High is the value of a digital pin with high voltage.
	High = 1
	// Low is the value of a digital pin with low voltage.
	Low = 0
)

var modeNames = map[Mode]string{
	Input:  "input",
	Output: "output",
	Analog: "analog",
	PWM:    "pwm",
	Servo:  "servo",
}

// String returns a human readable name of the mode.
func (m Mode) String() string {
	if s, found := modeNames[m]; found {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// IsValid returns true for known modes.
func (m Mode) IsValid() bool {
	_, found := modeNames[m]
	return found
}

// IsPulse returns true for modes driven by a PWM channel.
func (m Mode) IsPulse() bool {
	return m == PWM || m == Servo
}

// Direction returns the GPIO direction used for the mode.
func (m Mode) Direction() string {
	if m == Input || m == Analog {
		return "in"
	}
	return "out"
}

// ParseMode converts a mode name or number into a mode.
func ParseMode(value string) (Mode, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for m, name := range modeNames {
		if name == value {
			return m, nil
		}
	}
	n, err := strconv.Atoi(value)
	if err != nil || !Mode(n).IsValid() {
		return Input, errors.Wrapf(InvalidModeError, "'%s'", value)
	}
	return Mode(n), nil
}

// ToPinIndex converts a pin address into an index into the list of pins
// of a board.
// "A<n>" is analog channel n, which is located after all digital pins.
// A plain number is a digital pin.
// The caller is responsible for checking the upper bound.
func ToPinIndex(address string, digitalCount int) (int, error) {
	trimmed := strings.TrimSpace(address)
	offset := 0
	if strings.HasPrefix(trimmed, "A") {
		trimmed = trimmed[1:]
		offset = digitalCount
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil || n < 0 {
		return 0, errors.Wrapf(InvalidPinError, "'%s'", address)
	}
	return n + offset, nil
}

// AnalogAddress returns the address of the analog pin with given channel.
func AnalogAddress(channel int) string {
	return "A" + strconv.Itoa(channel)
}
