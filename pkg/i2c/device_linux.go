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
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	// From  /usr/include/linux/i2c-dev.h:
	// ioctl signals
	i2cSlave = 0x0703
	i2cFuncs = 0x0705
	i2cSMBus = 0x0720
	// Read/write markers
	i2cSMBusRead  = 1
	i2cSMBusWrite = 0

	// From  /usr/include/linux/i2c.h:
	// Adapter functionality
	i2cFuncSMBusQuick         = 0x00010000
	i2cFuncSMBusReadByteData  = 0x00080000
	i2cFuncSMBusWriteByteData = 0x00100000
	i2cFuncSMBusReadI2CBlock  = 0x04000000 /* I2C-like block xfer  */

	// Transaction types
	i2cSMBusQuick        = 0
	i2cSMBusByteData     = 2
	i2cSMBusI2CBlockData = 8

	// Maximum number of bytes in a single block transfer
	i2cSMBusBlockMax = 32
)

type i2cSMBusIoctlData struct {
	readWrite byte
	command   byte
	size      uint32
	data      uintptr
}

type linuxDevice struct {
	address uint8
	mutex   sync.Mutex
	file    *os.File
	funcs   uint64 // adapter functionality mask
}

// newLinuxDevice opens the bus at the given location for the device with given address.
func newLinuxDevice(location string, address uint8) (*linuxDevice, error) {
	d := &linuxDevice{
		address: address,
	}

	var err error
	if d.file, err = os.OpenFile(location, os.O_RDWR, os.ModeDevice); err != nil {
		return nil, err
	}
	if err := d.queryFunctionality(); err != nil {
		d.file.Close()
		return nil, err
	}
	if err := d.setAddress(address); err != nil {
		d.file.Close()
		return nil, err
	}
	return d, nil
}

func (d *linuxDevice) ioctl(request, arg uintptr) unix.Errno {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.file.Fd(), request, arg)
	return errno
}

func (d *linuxDevice) queryFunctionality() error {
	if errno := d.ioctl(i2cFuncs, uintptr(unsafe.Pointer(&d.funcs))); errno != 0 {
		return fmt.Errorf("querying functionality failed with errno %v", errno)
	}
	return nil
}

func (d *linuxDevice) setAddress(address byte) error {
	if errno := d.ioctl(i2cSlave, uintptr(address)); errno != 0 {
		return fmt.Errorf("setting address (0x%0x) failed with errno %v", address, errno)
	}
	return nil
}

func (d *linuxDevice) closeFile() error {
	return d.file.Close()
}

// DetectDevice performs an SMBus quick command to see if the device responds.
func (d *linuxDevice) DetectDevice() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.funcs&i2cFuncSMBusQuick == 0 {
		return fmt.Errorf("SMBus quick not supported")
	}
	if err := d.smbusAccess(i2cSMBusWrite, 0, i2cSMBusQuick, 0); err != nil {
		return errors.Wrap(err, "quick failed")
	}
	return nil
}

func (d *linuxDevice) ReadByteReg(reg uint8) (uint8, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.funcs&i2cFuncSMBusReadByteData == 0 {
		return 0, fmt.Errorf("SMBus read byte data not supported")
	}
	var data uint8
	if err := d.smbusAccess(i2cSMBusRead, reg, i2cSMBusByteData, uintptr(unsafe.Pointer(&data))); err != nil {
		return 0, errors.Wrapf(err, "readByteData[0x%0x](0x%0x) failed", d.address, reg)
	}
	return data, nil
}

func (d *linuxDevice) WriteByteReg(reg uint8, val uint8) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.funcs&i2cFuncSMBusWriteByteData == 0 {
		return fmt.Errorf("SMBus write byte data not supported")
	}
	data := val
	if err := d.smbusAccess(i2cSMBusWrite, reg, i2cSMBusByteData, uintptr(unsafe.Pointer(&data))); err != nil {
		return errors.Wrapf(err, "writeByteData[0x%0x](0x%0x, 0x%0x) failed", d.address, reg, val)
	}
	return nil
}

// ReadBlockReg reads len(data) bytes starting at the given register.
// Blocks larger than the SMBus maximum are read in multiple transfers.
func (d *linuxDevice) ReadBlockReg(reg uint8, data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.funcs&i2cFuncSMBusReadI2CBlock == 0 {
		return fmt.Errorf("SMBus read i2c block not supported")
	}
	for offset := 0; offset < len(data); offset += i2cSMBusBlockMax {
		chunk := data[offset:min(offset+i2cSMBusBlockMax, len(data))]
		// First byte is the length, followed by the data
		var block [i2cSMBusBlockMax + 2]byte
		block[0] = byte(len(chunk))
		if err := d.smbusAccess(i2cSMBusRead, reg+uint8(offset), i2cSMBusI2CBlockData, uintptr(unsafe.Pointer(&block[0]))); err != nil {
			return errors.Wrapf(err, "readI2CBlock[0x%0x](0x%0x) failed", d.address, reg)
		}
		copy(chunk, block[1:1+len(chunk)])
	}
	return nil
}

// Read a block of data directly from the device (/dev/...)
func (d *linuxDevice) ReadDevice(data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	n, err := d.file.Read(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("expected to read %d bytes, actual read bytes is %d", len(data), n)
	}
	return nil
}

// Write a block of data directly to the device (/dev/...)
func (d *linuxDevice) WriteDevice(data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	n, err := d.file.Write(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("expected to write %d bytes, actual written bytes is %d", len(data), n)
	}
	return nil
}

func (d *linuxDevice) smbusAccess(readWrite byte, command byte, size uint32, data uintptr) error {
	smbus := &i2cSMBusIoctlData{
		readWrite: readWrite,
		command:   command,
		size:      size,
		data:      data,
	}
	if errno := d.ioctl(i2cSMBus, uintptr(unsafe.Pointer(smbus))); errno != 0 {
		return fmt.Errorf("failed with errno %v", errno)
	}
	return nil
}
