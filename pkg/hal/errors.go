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
	"github.com/pkg/errors"

	"github.com/binkynet/LininoIO/pkg/pin"
)

var (
	// ErrNotReady is returned by board operations before the board has
	// finished initializing its pins.
	ErrNotReady = errors.New("board not ready")
	IsNotReady  = isErrorFunc(ErrNotReady)
	// ErrClosed is returned by operations on a board that has been closed
	// or replaced.
	ErrClosed = errors.New("board closed")
	IsClosed  = isErrorFunc(ErrClosed)
	// ErrInvalidPin is returned for malformed or unknown pin addresses.
	ErrInvalidPin = pin.InvalidPinError
	IsInvalidPin  = pin.IsInvalidPin
	// ErrUnsupportedCapability is returned when a pin cannot be used in
	// the requested mode.
	ErrUnsupportedCapability = pin.UnsupportedCapabilityError
	IsUnsupportedCapability  = pin.IsUnsupportedCapability
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
