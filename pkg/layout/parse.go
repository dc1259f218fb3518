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

package layout

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
)

// Raw catalog structures, mirroring the catalog JSON files.

type rawEntry struct {
	Info     rawInfo                `json:"info"`
	Layout   rawLayout              `json:"layout"`
	Register map[string]rawRegister `json:"register"`
	Timer    map[string]rawTimer    `json:"timer"`
}

type rawInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type rawLayout struct {
	Digital []string `json:"digital"`
	Analog  []string `json:"analog"`
	PWM     []string `json:"pwm"`
	Servo   []string `json:"servo"`
}

type rawRegister struct {
	NUM int    `json:"NUM"`
	MAP string `json:"MAP"`
	TYP string `json:"TYP"`
	BIT int    `json:"BIT"`
	MAX int64  `json:"MAX"`
	RES int64  `json:"RES"`
	TIM string `json:"TIM"`
}

type rawTimer struct {
	SHARED bool `json:"SHARED"`
}

// ParseCatalog parses a catalog from JSON.
// Only entries of type "board" are included.
func ParseCatalog(data []byte) (Catalog, error) {
	var entries map[string]rawEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "failed to parse catalog")
	}
	result := make(Catalog)
	for key, e := range entries {
		if e.Info.Type != TypeBoard {
			continue
		}
		l, err := e.toLayout(key)
		if err != nil {
			return nil, err
		}
		if err := l.Validate(); err != nil {
			return nil, err
		}
		result[l.Key] = l
	}
	return result, nil
}

// toLayout converts a raw catalog entry into a Layout.
func (e rawEntry) toLayout(key string) (*Layout, error) {
	name := e.Info.Name
	if name == "" {
		name = key
	}
	l := &Layout{
		Key:    ToSnakeCase(name),
		Name:   ToTitleCase(name),
		Type:   e.Info.Type,
		Timers: make(map[string]Timer, len(e.Timer)),
	}
	for id, t := range e.Timer {
		l.Timers[id] = Timer{ID: id, Shared: t.SHARED}
	}
	pwms := toSet(e.Layout.PWM)
	servos := toSet(e.Layout.Servo)

	for _, name := range e.Layout.Digital {
		reg, found := e.Register["D"+name]
		if !found {
			return nil, errors.Wrapf(ValidationError, "register D%s of '%s' not found", name, key)
		}
		pc := PinConfig{
			Name:          reg.MAP,
			ExportID:      reg.NUM,
			AnalogChannel: -1,
		}
		if ps, found := e.Register["P"+name]; found {
			pwm := &PWM{
				Type:       ps.TYP,
				Channel:    ps.NUM,
				BitWidth:   ps.BIT,
				MaxPeriod:  ps.MAX,
				Resolution: ps.RES,
				TimerID:    ps.TIM,
			}
			if pwms[name] {
				pc.PWM = pwm
			}
			if servos[name] {
				pc.Servo = pwm
			}
		}
		l.Digital = append(l.Digital, pc)
	}
	for i, name := range e.Layout.Analog {
		reg, found := e.Register["A"+name]
		if !found {
			return nil, errors.Wrapf(ValidationError, "register A%s of '%s' not found", name, key)
		}
		l.Analog = append(l.Analog, PinConfig{
			Name:          reg.MAP,
			ExportID:      reg.NUM,
			AnalogChannel: i,
		})
	}
	return l, nil
}

func toSet(values []string) map[string]bool {
	result := make(map[string]bool, len(values))
	for _, v := range values {
		result[v] = true
	}
	return result
}

func itoa(v int) string { return strconv.Itoa(v) }
