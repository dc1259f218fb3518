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

// Package hal exposes a board of the Linino family as a set of logical
// pins with digital, analog, PWM, servo & I2C operations.
package hal

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/LininoIO/pkg/eventloop"
	"github.com/binkynet/LininoIO/pkg/i2c"
	"github.com/binkynet/LininoIO/pkg/pin"
	"github.com/binkynet/LininoIO/pkg/poller"
	"github.com/binkynet/LininoIO/pkg/sysfs"
)

// Config of a runtime.
type Config struct {
	// Roots of the device file trees
	Roots pin.Roots
	// SamplingInterval of read subscriptions in ms
	SamplingInterval int
	// I2C bus configuration
	I2C i2c.LinuxBusConfig
}

// DefaultConfig returns the configuration for a real board.
func DefaultConfig() Config {
	return Config{
		Roots:            pin.DefaultRoots(),
		SamplingInterval: int(poller.DefaultInterval / time.Millisecond),
		I2C: i2c.LinuxBusConfig{
			Location: i2c.DefaultLocation,
		},
	}
}

// Dependencies of a runtime.
type Dependencies struct {
	Log zerolog.Logger
	// FS used to access device files. Defaults to the OS file system.
	FS sysfs.FileSystem
	// Clock used for sampling & I2C delays. Defaults to the wall clock.
	Clock clock.Clock
	// OpenI2CBus opens the I2C bus. Defaults to the Linux bus.
	OpenI2CBus func() (i2c.Bus, error)
}

// Runtime owns the execution context shared by all boards: the event loop
// that serializes all device access, the loop that runs client callbacks
// and the sampling scheduler. At most one board is active at a time.
type Runtime struct {
	Config
	Dependencies

	loop      *eventloop.Loop
	dispatch  *eventloop.Loop
	scheduler *poller.Scheduler
	cancel    context.CancelFunc
	group     *errgroup.Group

	mutex  sync.Mutex
	board  *Board
	closed bool
}

// NewRuntime creates a runtime and starts its loops.
func NewRuntime(conf Config, deps Dependencies) *Runtime {
	deps.Log = deps.Log.With().Str("component", "hal").Logger()
	if deps.FS == nil {
		deps.FS = sysfs.NewOSFileSystem()
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.OpenI2CBus == nil {
		log, busConf := deps.Log, conf.I2C
		deps.OpenI2CBus = func() (i2c.Bus, error) {
			return i2c.NewLinuxBus(log, busConf)
		}
	}
	r := &Runtime{
		Config:       conf,
		Dependencies: deps,
		loop:         eventloop.New(deps.Log, "io"),
		dispatch:     eventloop.New(deps.Log, "dispatch"),
	}
	r.scheduler = poller.New(deps.Log, deps.Clock, r.loop)
	r.resetScheduler()

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.loop.Run(ctx) })
	g.Go(func() error { return r.dispatch.Run(ctx) })
	r.cancel = cancel
	r.group = g
	return r
}

// ActiveBoard returns the currently active board (or nil).
func (r *Runtime) ActiveBoard() *Board {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.board
}

// SetSamplingInterval changes the interval (in ms) at which read
// subscriptions are sampled. The value is clamped to 0..65535.
func (r *Runtime) SetSamplingInterval(ms int) {
	r.scheduler.SetInterval(ms)
}

// SamplingDuration returns the current sampling interval.
func (r *Runtime) SamplingDuration() time.Duration {
	return r.scheduler.Interval()
}

// Flush waits until all work queued on the io loop and the dispatch loop
// has been processed.
func (r *Runtime) Flush(ctx context.Context) error {
	if err := r.loop.Flush(ctx); err != nil {
		return err
	}
	return r.dispatch.Flush(ctx)
}

// Reset closes the active board and removes all subscriptions.
// The runtime can be used for a new board afterwards.
func (r *Runtime) Reset() error {
	r.mutex.Lock()
	b := r.board
	r.board = nil
	r.mutex.Unlock()

	var err error
	if b != nil {
		err = b.close()
	}
	r.resetScheduler()
	return err
}

// resetScheduler removes all subscriptions and restores the configured
// interval. The scheduler is started once a board becomes ready.
func (r *Runtime) resetScheduler() {
	r.scheduler.Reset()
	r.scheduler.SetInterval(r.SamplingInterval)
	r.scheduler.Stop()
}

// Close the active board and stop all loops.
func (r *Runtime) Close() error {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return nil
	}
	r.closed = true
	r.mutex.Unlock()

	err := r.Reset()
	r.cancel()
	return multierr.Append(err, r.group.Wait())
}

// activate makes the given board the active board, closing the previous one.
func (r *Runtime) activate(b *Board) error {
	r.mutex.Lock()
	if r.closed {
		r.mutex.Unlock()
		return errors.WithStack(ErrClosed)
	}
	prev := r.board
	r.board = b
	r.mutex.Unlock()

	if prev != nil {
		r.Log.Info().Str("board", prev.Name()).Msg("Replacing active board")
		if err := prev.close(); err != nil {
			r.Log.Warn().Err(err).Msg("Failed to close previous board")
		}
	}
	return nil
}

// isActive returns true if the given board is the active board.
func (r *Runtime) isActive(b *Board) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.board == b
}
