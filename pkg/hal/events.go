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

package hal

import (
	"fmt"

	"github.com/binkynet/LininoIO/pkg/i2c"
	"github.com/binkynet/LininoIO/pkg/pin"
)

// ReadEvent is published for every sampled value of a read subscription.
type ReadEvent struct {
	// Key of the subscription ("digital-read-3", "analog-read-0")
	Key string
	// Pin address
	Pin   string
	Value float64
}

// I2CReplyEvent is published for every reply to an I2C read.
type I2CReplyEvent struct {
	Key  i2c.Key
	Data []byte
}

// ErrorEvent is published for failures that are not returned to a caller.
type ErrorEvent struct {
	Err error
}

// PinInfo describes the current state of a pin.
type PinInfo struct {
	Address       string     `json:"address"`
	Index         int        `json:"index"`
	Modes         []pin.Mode `json:"modes"`
	Mode          pin.Mode   `json:"mode"`
	IsPWM         bool       `json:"isPwm"`
	Value         float64    `json:"value"`
	AnalogChannel int        `json:"analogChannel"`
}

// digitalReadKey returns the event key of a digital read of the given pin.
func digitalReadKey(address string) string {
	return fmt.Sprintf("digital-read-%s", address)
}

// analogReadKey returns the event key of an analog read of the given channel.
func analogReadKey(channel int) string {
	return fmt.Sprintf("analog-read-%d", channel)
}
