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

//go:build !linux

package i2c

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// DefaultLocation of the I2C bus device on a Linino One.
	DefaultLocation = "/dev/i2c-0"
)

// LinuxBusConfig configures a bus accessed through /dev/i2c-*.
type LinuxBusConfig struct {
	Location          string
	SCLPin            int
	RecoverFromLockup bool
}

// NewLinuxBus is only supported on Linux.
func NewLinuxBus(log zerolog.Logger, cfg LinuxBusConfig) (Bus, error) {
	return nil, errors.Errorf("i2c bus '%s' is only supported on linux", cfg.Location)
}
