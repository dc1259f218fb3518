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

import "github.com/pkg/errors"

var (
	// UnsupportedCapabilityError is returned when a pin is switched to a
	// mode it has no hardware support for.
	UnsupportedCapabilityError = errors.New("unsupported capability")
	IsUnsupportedCapability    = isErrorFunc(UnsupportedCapabilityError)
	// InvalidPinError is returned for malformed or unknown pin addresses.
	InvalidPinError = errors.New("invalid pin")
	IsInvalidPin    = isErrorFunc(InvalidPinError)
	// InvalidModeError is returned for unknown modes.
	InvalidModeError = errors.New("invalid mode")
	IsInvalidMode    = isErrorFunc(InvalidModeError)
	// ResourceExportError indicates that a device file could not be
	// exported or opened. It is logged, never returned to API callers.
	ResourceExportError = errors.New("resource export failed")
	IsResourceExport    = isErrorFunc(ResourceExportError)
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}
