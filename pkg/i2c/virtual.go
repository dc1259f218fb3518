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

package i2c

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// VirtualBus is an in-memory I2C bus with simulated devices.
type VirtualBus struct {
	mutex   sync.Mutex
	devices map[uint8]*VirtualDevice
	closed  bool
}

// VirtualDevice is a simulated device on a VirtualBus.
// It has 256 byte registers and a raw data buffer returned by direct reads.
type VirtualDevice struct {
	Registers [256]byte
	// Raw data returned by ReadDevice
	Raw []byte
	// All blocks written with WriteDevice
	Written [][]byte
	// When set, all operations fail with this error
	Err error
}

// NewVirtualBus creates an empty virtual bus.
func NewVirtualBus() *VirtualBus {
	return &VirtualBus{
		devices: make(map[uint8]*VirtualDevice),
	}
}

// AddDevice adds a device with given address and returns it.
func (b *VirtualBus) AddDevice(address uint8) *VirtualDevice {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	d := &VirtualDevice{}
	b.devices[address] = d
	return d
}

// Update the device with given address while holding the bus lock.
func (b *VirtualBus) Update(address uint8, fn func(d *VirtualDevice)) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if d, found := b.devices[address]; found {
		fn(d)
	}
}

// Execute an option on the bus.
func (b *VirtualBus) Execute(ctx context.Context, address uint8, op func(ctx context.Context, dev Device) error) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.closed {
		return errors.WithStack(ErrClosed)
	}
	d, found := b.devices[address]
	if !found {
		return errors.Wrapf(ErrTransactionFailure, "device %0x not found", address)
	}
	if d.Err != nil {
		return errors.Wrapf(ErrTransactionFailure, "device %0x: %s", address, d.Err)
	}
	if err := op(ctx, d); err != nil {
		return errors.Wrapf(ErrTransactionFailure, "device %0x: %s", address, err)
	}
	return nil
}

// DetectSlaveAddresses returns the addresses of all devices.
func (b *VirtualBus) DetectSlaveAddresses() []byte {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	var result []byte
	for addr := range b.devices {
		result = append(result, addr)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Close the bus.
func (b *VirtualBus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.closed = true
	return nil
}

func (d *VirtualDevice) ReadByteReg(reg uint8) (uint8, error) {
	return d.Registers[reg], nil
}

func (d *VirtualDevice) WriteByteReg(reg uint8, val uint8) error {
	d.Registers[reg] = val
	return nil
}

func (d *VirtualDevice) ReadBlockReg(reg uint8, data []byte) error {
	if int(reg)+len(data) > len(d.Registers) {
		return fmt.Errorf("block read beyond last register")
	}
	copy(data, d.Registers[int(reg):])
	return nil
}

func (d *VirtualDevice) ReadDevice(data []byte) error {
	if len(d.Raw) < len(data) {
		return fmt.Errorf("expected to read %d bytes, actual read bytes is %d", len(data), len(d.Raw))
	}
	copy(data, d.Raw)
	return nil
}

func (d *VirtualDevice) WriteDevice(data []byte) error {
	d.Written = append(d.Written, append([]byte(nil), data...))
	return nil
}
