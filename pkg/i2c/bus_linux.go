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
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/ecc1/gpio"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	// DefaultLocation of the I2C bus device on a Linino One.
	DefaultLocation = "/dev/i2c-0"

	recoverNumClocks = 10    /* # clock cycles for recovery  */
	recoverClockFreq = 50000 /* clock frequency for recovery */

	recoverClockDelayUS = (1000000 / (2 * recoverClockFreq))

	gpioUnexportPath = "/sys/class/gpio/unexport"
)

// LinuxBusConfig configures a bus accessed through /dev/i2c-*.
type LinuxBusConfig struct {
	// Location of the bus device
	Location string
	// SCLPin is the GPIO number of the clock line, used for lockup recovery
	SCLPin int
	// RecoverFromLockup enables clocking the bus free after failures
	RecoverFromLockup bool
}

type linuxBus struct {
	LinuxBusConfig
	log     zerolog.Logger
	devices map[uint8]*linuxDevice
	queue   chan func()
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLinuxBus opens the I2C bus at the configured location.
func NewLinuxBus(log zerolog.Logger, cfg LinuxBusConfig) (Bus, error) {
	if cfg.Location == "" {
		cfg.Location = DefaultLocation
	}
	if _, err := os.Stat(cfg.Location); err != nil {
		return nil, errors.Wrapf(err, "i2c bus '%s' not available", cfg.Location)
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &linuxBus{
		LinuxBusConfig: cfg,
		log:            log.With().Str("component", "i2c-bus").Str("location", cfg.Location).Logger(),
		devices:        make(map[uint8]*linuxDevice),
		queue:          make(chan func()),
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	go b.queueProcessor(ctx)
	if b.RecoverFromLockup {
		if err := b.recoverFromLockup(); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to recover bus at startup: %w", err)
		}
		time.Sleep(time.Second * 2)
	}
	return b, nil
}

// Execute an option on the bus.
func (b *linuxBus) Execute(ctx context.Context, address uint8, op func(context.Context, Device) error) error {
	result := make(chan error, 1)
	req := func() {
		result <- b.execute(ctx, address, op)
	}
	if err := b.enqueue(ctx, req); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-b.done:
		return errors.Wrap(ErrClosed, "bus closed while executing")
	}
}

// enqueue puts the given request in the queue.
func (b *linuxBus) enqueue(ctx context.Context, req func()) error {
	select {
	case b.queue <- req:
		// Request is on the queue
		return nil
	case <-ctx.Done():
		// Context canceled
		return ctx.Err()
	case <-b.done:
		return errors.WithStack(ErrClosed)
	}
}

// Process bus requests from the queue until the given context is canceled.
func (b *linuxBus) queueProcessor(ctx context.Context) {
	defer close(b.done)
	// Ensure we're always using the same OS thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case req := <-b.queue:
			req()
		case <-ctx.Done():
			return
		}
	}
}

// Execute an option on the bus.
func (b *linuxBus) execute(ctx context.Context, address uint8, op func(context.Context, Device) error) error {
	executeCounters.WithLabelValues(strconv.Itoa(int(address))).Inc()

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var dev *linuxDevice
		dev, err = b.openDevice(address)
		if err != nil {
			executeErrorCounters.WithLabelValues(strconv.Itoa(int(address))).Inc()
			return errors.Wrapf(ErrTransactionFailure, "openDevice(%d) failed: %s", address, err)
		}

		err = op(ctx, dev)
		if err == nil {
			return nil
		}

		// Device call failed, close all devices
		for _, d := range b.devices {
			d.closeFile()
		}
		clear(b.devices)

		if b.RecoverFromLockup {
			recoveryAttemptsTotal.Inc()
			if err := b.recoverFromLockup(); err != nil {
				recoveryFailedTotal.Inc()
				return errors.Wrapf(ErrTransactionFailure, "i2c recovery failed: %s", err)
			}
			recoverySucceededTotal.Inc()
		} else {
			recoverySkippedTotal.Inc()
		}
	}
	executeErrorCounters.WithLabelValues(strconv.Itoa(int(address))).Inc()
	return errors.Wrapf(ErrTransactionFailure, "execute operation on address 0x%02x failed: %s", address, err)
}

// Open a connection to a device at the given address.
func (b *linuxBus) openDevice(address uint8) (*linuxDevice, error) {
	if d, found := b.devices[address]; found {
		return d, nil
	}
	d, err := newLinuxDevice(b.Location, address)
	if err != nil {
		return nil, err
	}
	b.devices[address] = d
	return d, nil
}

// DetectSlaveAddresses probes the bus to detect available addresses.
func (b *linuxBus) DetectSlaveAddresses() []byte {
	var result []byte
	req := func() {
		for addr := uint8(1); addr < 128; addr++ {
			if d, err := newLinuxDevice(b.Location, addr); err == nil {
				if err := d.DetectDevice(); err == nil {
					result = append(result, addr)
				}
				d.closeFile()
			}
		}
	}
	done := make(chan struct{})
	if err := b.enqueue(context.Background(), func() { defer close(done); req() }); err != nil {
		return nil
	}
	<-done
	return result
}

// Close the bus and all devices on it
func (b *linuxBus) Close() error {
	var ae aerr.AggregateError
	done := make(chan struct{})
	closeAll := func() {
		defer close(done)
		for addr, d := range b.devices {
			if err := d.closeFile(); err != nil {
				ae.Add(err)
			}
			delete(b.devices, addr)
		}
	}
	if err := b.enqueue(context.Background(), closeAll); err != nil {
		// Already closed
		return nil
	}
	<-done
	b.cancel()
	<-b.done
	return ae.AsError()
}

// Try to recover the i2c bus from lockup.
func (b *linuxBus) recoverFromLockup() error {
	b.log.Info().Int("scl", b.SCLPin).Msg("Performing i2c recovery ...")
	activeLow := true
	initialValue := true
	scl, err := gpio.Output(b.SCLPin, activeLow, initialValue)
	if err != nil {
		return fmt.Errorf("failed to set scl pin to output: %w", err)
	}
	for i := 0; i < recoverNumClocks; i++ {
		time.Sleep(time.Microsecond * recoverClockDelayUS)
		if err := scl.Write(false); err != nil {
			return fmt.Errorf("failed to lower scl during i2c recovery: %w", err)
		}
		time.Sleep(time.Microsecond * recoverClockDelayUS)
		if err := scl.Write(true); err != nil {
			return fmt.Errorf("failed to raise scl during i2c recovery: %w", err)
		}
	}
	// Reset pin to be input
	if _, err := gpio.Input(b.SCLPin, activeLow); err != nil {
		return fmt.Errorf("failed to reset scl pin to input: %w", err)
	}
	if err := os.WriteFile(gpioUnexportPath, []byte(strconv.Itoa(b.SCLPin)), 0644); err != nil {
		return fmt.Errorf("failed to unexport scl pin: %w", err)
	}
	b.log.Info().Msg("Performed i2c recovery.")
	return nil
}
