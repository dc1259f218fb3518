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

// Package i2c provides access to an I2C bus and the request/response
// channel used by a board to talk to I2C devices.
package i2c

import "context"

// Bus is an I2C bus.
type Bus interface {
	// Execute an operation on the device with given address.
	Execute(ctx context.Context, address uint8, op func(ctx context.Context, dev Device) error) error
	// DetectSlaveAddresses probes the bus to detect available addresses.
	DetectSlaveAddresses() []byte
	// Close the bus and all devices on it
	Close() error
}

// Device communicates with a device on the I2C Bus that has a specific address.
type Device interface {
	// Read a byte from given register
	ReadByteReg(reg uint8) (uint8, error)
	// Write a byte to given register
	WriteByteReg(reg uint8, val uint8) error
	// Read len(data) bytes starting at given register
	ReadBlockReg(reg uint8, data []byte) error
	// Read a block of data directly from the device (/dev/...)
	ReadDevice(data []byte) error
	// Write a block of data directly to the device (/dev/...)
	WriteDevice(data []byte) error
}
