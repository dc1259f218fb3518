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

// Package layout contains the static board layout catalog: the mapping of
// logical pins of a board onto registers, PWM channels & timers.
package layout

import (
	_ "embed"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const (
	// TypeBoard is the info type of catalog entries describing a board.
	TypeBoard = "board"
	// Unavailable is the register name used for pins that cannot be used.
	Unavailable = "?"
	// DefaultBoardName is used when no board name is given.
	DefaultBoardName = "Linino One"
)

//go:embed catalog.json
var defaultCatalog []byte

// Timer describes a hardware timer used to generate pulses.
type Timer struct {
	ID     string `json:"id"`
	Shared bool   `json:"shared"`
}

// PWM describes the PWM channel attached to a pin.
type PWM struct {
	// Type is the prefix of the channel directory (e.g. "pwm")
	Type string `json:"type"`
	// Channel number within the PWM chip
	Channel int `json:"channel"`
	// BitWidth of the timer driving the channel
	BitWidth int `json:"bitWidth"`
	// MaxPeriod written to the period file during initialization
	MaxPeriod int64 `json:"maxPeriod"`
	// Resolution written during initialization
	Resolution int64 `json:"resolution"`
	// TimerID of the timer driving this channel
	TimerID string `json:"timerId"`
}

// DirName returns the name of the sysfs directory of the channel.
func (p PWM) DirName() string {
	return p.Type + itoa(p.Channel)
}

// PinConfig is the immutable configuration of a single pin.
type PinConfig struct {
	// Name of the register, used as sysfs name. Unavailable for unusable pins.
	Name string `json:"name"`
	// ExportID is written to the export file to allocate the pin.
	ExportID int `json:"exportId"`
	// PWM capability (if any)
	PWM *PWM `json:"pwm,omitempty"`
	// Servo capability (if any). Uses the same channel as PWM.
	Servo *PWM `json:"servo,omitempty"`
	// AnalogChannel is the ADC channel of analog pins, -1 for digital pins.
	AnalogChannel int `json:"analogChannel"`
}

// IsAnalog returns true for analog input pins.
func (c PinConfig) IsAnalog() bool { return c.AnalogChannel >= 0 }

// IsAvailable returns false for pins that cannot be used on this board.
func (c PinConfig) IsAvailable() bool { return c.Name != Unavailable }

// Layout of a single board.
type Layout struct {
	// Key in the catalog (snake case)
	Key string `json:"key"`
	// Name for humans (title case)
	Name string `json:"name"`
	// Type of entry
	Type    string           `json:"type"`
	Digital []PinConfig      `json:"digital"`
	Analog  []PinConfig      `json:"analog"`
	Timers  map[string]Timer `json:"timers"`
}

// DigitalPinCount returns the number of digital pins.
// Analog pins are numbered after the digital pins.
func (l *Layout) DigitalPinCount() int { return len(l.Digital) }

// Pins returns the digital pins followed by the analog pins.
func (l *Layout) Pins() []PinConfig {
	result := make([]PinConfig, 0, len(l.Digital)+len(l.Analog))
	result = append(result, l.Digital...)
	return append(result, l.Analog...)
}

// SharedTimers returns the sharing policy of all timers.
func (l *Layout) SharedTimers() map[string]bool {
	result := make(map[string]bool, len(l.Timers))
	for id, t := range l.Timers {
		result[id] = t.Shared
	}
	return result
}

// Validate the layout.
func (l *Layout) Validate() error {
	if l.Key == "" {
		return errors.Wrap(ValidationError, "Key is empty")
	}
	for i, p := range l.Pins() {
		for _, pwm := range []*PWM{p.PWM, p.Servo} {
			if pwm == nil {
				continue
			}
			if pwm.TimerID == "" {
				return errors.Wrapf(ValidationError, "Pin %d of '%s' has a PWM channel without timer", i, l.Key)
			}
			if _, found := l.Timers[pwm.TimerID]; !found {
				return errors.Wrapf(ValidationError, "Pin %d of '%s' refers to unknown timer '%s'", i, l.Key, pwm.TimerID)
			}
		}
	}
	return nil
}

// Catalog of board layouts, keyed by snake case board name.
type Catalog map[string]*Layout

// Lookup the layout for the board with given name ("Linino One" or "linino_one").
func (c Catalog) Lookup(boardName string) (*Layout, error) {
	if boardName == "" {
		boardName = DefaultBoardName
	}
	l, found := c[ToSnakeCase(boardName)]
	if !found {
		return nil, errors.Wrapf(UnknownBoardError, "board '%s' (known: %s)", boardName, strings.Join(c.Keys(), ", "))
	}
	return l, nil
}

// Keys returns the sorted keys of all layouts.
func (c Catalog) Keys() []string {
	result := make([]string, 0, len(c))
	for k := range c {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// DefaultCatalog returns the catalog that is built into this program.
func DefaultCatalog() Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog reads a catalog from the JSON file with given path.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read catalog '%s'", path)
	}
	return ParseCatalog(data)
}

var (
	snakeCaseSpaces = regexp.MustCompile(`\s+`)
	titleCaseWords  = regexp.MustCompile(`(^[a-z])|(_[a-z])`)
)

// ToSnakeCase converts a board name to its catalog key.
// "Linino One" -> "linino_one"
func ToSnakeCase(value string) string {
	return snakeCaseSpaces.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "_")
}

// ToTitleCase converts a catalog key to a board name.
// "linino_one" -> "Linino One"
func ToTitleCase(value string) string {
	return titleCaseWords.ReplaceAllStringFunc(value, func(s string) string {
		return strings.ToUpper(strings.Replace(s, "_", " ", 1))
	})
}
