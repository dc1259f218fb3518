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

import "github.com/pkg/errors"

var (
	// UnknownBitWidthError is returned when a timer has a bit width that
	// has no pulse configuration.
	UnknownBitWidthError = errors.New("unknown timer bit width")
	IsUnknownBitWidth    = isErrorFunc(UnknownBitWidthError)
	// TimerConflictError is returned when an exclusive timer is claimed
	// by a second consumer.
	TimerConflictError = errors.New("timer conflict")
	IsTimerConflict    = isErrorFunc(TimerConflictError)
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
