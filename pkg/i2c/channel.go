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
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Poster executes functions on a goroutine owned by someone else.
type Poster interface {
	Post(fn func())
}

// Key correlates read replies with their handlers.
// Register is 0 for reads without register.
type Key struct {
	Address  uint8
	Register uint8
}

// Request describes a read from a device.
type Request struct {
	Address uint8
	// Register to start reading from (if HasRegister)
	Register    uint8
	HasRegister bool
	// Bytes is the number of bytes to read
	Bytes int
	// Continuous requests are re-issued after every reply
	Continuous bool
}

// Key returns the correlation key of the request.
func (r Request) Key() Key {
	if !r.HasRegister {
		return Key{Address: r.Address}
	}
	return Key{Address: r.Address, Register: r.Register}
}

// Handler receives the data read by a request.
type Handler func(data []byte)

// Dependencies of a channel.
type Dependencies struct {
	Log   zerolog.Logger
	Clock clock.Clock
	// Loop executes all bus transactions
	Loop Poster
	// Dispatch executes all handlers & callbacks
	Dispatch Poster
	// OpenBus opens the bus. It is called on first use.
	OpenBus func() (Bus, error)
	// OnReply is called for every successful read (optional)
	OnReply func(key Key, data []byte)
	// OnError is called for every failed read (optional)
	OnError func(err error)
}

// Channel issues requests on an I2C bus and delivers the replies to
// the handler registered for their key.
type Channel struct {
	deps Dependencies
	log  zerolog.Logger

	mutex      sync.Mutex
	bus        Bus
	delay      time.Duration
	once       map[Key]registration
	continuous map[Key]registration
	timers     map[*clock.Timer]struct{}
	generation uint64
	nextID     uint64
	ctx        context.Context
	cancel     context.CancelFunc
}

type registration struct {
	id      uint64
	handler Handler
}

// NewChannel creates a channel. The bus is opened on first use.
func NewChannel(deps Dependencies) *Channel {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	c := &Channel{
		deps:     deps,
		log:      deps.Log.With().Str("component", "i2c-channel").Logger(),
		once:       make(map[Key]registration),
		continuous: make(map[Key]registration),
		timers:   make(map[*clock.Timer]struct{}),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Configure opens the bus (when needed) and sets the delay used before
// issuing read requests.
func (c *Channel) Configure(delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	if _, err := c.ensureBus(); err != nil {
		return err
	}
	c.mutex.Lock()
	c.delay = delay
	c.mutex.Unlock()
	c.log.Debug().Dur("delay", delay).Msg("Configured")
	return nil
}

// Delay returns the configured read delay.
func (c *Channel) Delay() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.delay
}

// IsOpen returns true when the bus has been opened.
func (c *Channel) IsOpen() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.bus != nil
}

// Write the given bytes to the device with given address in a single
// transaction. Writing no bytes is a no-op.
func (c *Channel) Write(ctx context.Context, address uint8, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	bus, err := c.ensureBus()
	if err != nil {
		return err
	}
	data = append([]byte(nil), data...)
	return errors.WithStack(bus.Execute(ctx, address, func(ctx context.Context, dev Device) error {
		return dev.WriteDevice(data)
	}))
}

// WriteRegister writes a single byte to a register of the device with
// given address.
func (c *Channel) WriteRegister(ctx context.Context, address, register, value uint8) error {
	bus, err := c.ensureBus()
	if err != nil {
		return err
	}
	return errors.WithStack(bus.Execute(ctx, address, func(ctx context.Context, dev Device) error {
		return dev.WriteByteReg(register, value)
	}))
}

// Read continuously from a device. Replies are delivered to the handler
// until the channel is closed, a read fails or another continuous read
// of the same key replaces it. One-shot reads of the same key do not
// interrupt it.
func (c *Channel) Read(req Request, handler Handler) error {
	req.Continuous = true
	return c.read(req, handler)
}

// ReadOnce reads a single reply from a device. Among pending one-shot
// reads of the same key the last registered handler receives the replies.
func (c *Channel) ReadOnce(req Request, handler Handler) error {
	req.Continuous = false
	return c.read(req, handler)
}

func (c *Channel) read(req Request, handler Handler) error {
	if req.Bytes <= 0 {
		return errors.Errorf("invalid number of bytes %d", req.Bytes)
	}
	if _, err := c.ensureBus(); err != nil {
		return err
	}
	c.mutex.Lock()
	c.nextID++
	id := c.nextID
	gen := c.generation
	reg := registration{id: id, handler: handler}
	if req.Continuous {
		c.continuous[req.Key()] = reg
	} else if handler != nil {
		// Last registration wins
		c.once[req.Key()] = reg
	}
	c.mutex.Unlock()

	c.schedule(req, gen, id)
	return nil
}

// schedule issues the request after the configured delay.
func (c *Channel) schedule(req Request, gen, id uint64) {
	c.mutex.Lock()
	if gen != c.generation {
		c.mutex.Unlock()
		return
	}
	delay := c.delay
	if delay <= 0 {
		c.mutex.Unlock()
		c.deps.Loop.Post(func() { c.issue(req, gen, id) })
		return
	}
	defer c.mutex.Unlock()
	var t *clock.Timer
	t = c.deps.Clock.AfterFunc(delay, func() {
		c.mutex.Lock()
		delete(c.timers, t)
		c.mutex.Unlock()
		c.deps.Loop.Post(func() { c.issue(req, gen, id) })
	})
	c.timers[t] = struct{}{}
}

// issue executes the request on the bus. Runs on the loop.
func (c *Channel) issue(req Request, gen, id uint64) {
	c.mutex.Lock()
	if gen != c.generation || c.bus == nil {
		c.mutex.Unlock()
		return
	}
	bus, ctx := c.bus, c.ctx
	c.mutex.Unlock()

	readRequestCounters.WithLabelValues(strconv.Itoa(int(req.Address)), strconv.FormatBool(req.Continuous)).Inc()
	data := make([]byte, req.Bytes)
	err := bus.Execute(ctx, req.Address, func(ctx context.Context, dev Device) error {
		if req.HasRegister {
			return dev.ReadBlockReg(req.Register, data)
		}
		return dev.ReadDevice(data)
	})
	if err != nil {
		if !IsTransactionFailure(err) {
			err = errors.Wrapf(ErrTransactionFailure, "%s", err)
		}
		c.log.Debug().Err(err).Uint8("address", req.Address).Msg("Read failed")
		if onError := c.deps.OnError; onError != nil {
			c.deps.Dispatch.Post(func() { onError(err) })
		}
		return
	}

	key := req.Key()
	c.mutex.Lock()
	var reg registration
	var found bool
	if req.Continuous {
		reg, found = c.continuous[key]
		if !found || reg.id != id {
			// Replaced by a newer continuous read
			c.mutex.Unlock()
			return
		}
	} else {
		reg, found = c.once[key]
		if found && reg.id == id {
			delete(c.once, key)
		}
	}
	c.mutex.Unlock()

	onReply := c.deps.OnReply
	c.deps.Dispatch.Post(func() {
		if onReply != nil {
			onReply(key, data)
		}
		if found && reg.handler != nil {
			reg.handler(data)
		}
	})

	if req.Continuous {
		c.schedule(req, gen, id)
	}
}

// ensureBus opens the bus if needed.
func (c *Channel) ensureBus() (Bus, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.bus != nil {
		return c.bus, nil
	}
	if c.deps.OpenBus == nil {
		return nil, errors.Wrap(ErrClosed, "no bus available")
	}
	bus, err := c.deps.OpenBus()
	if err != nil {
		return nil, errors.Wrap(err, "failed to open i2c bus")
	}
	c.bus = bus
	return bus, nil
}

// Close stops all outstanding requests, forgets all handlers and closes
// the bus. The channel can be used again afterwards; the bus is reopened
// on next use.
func (c *Channel) Close() error {
	c.mutex.Lock()
	c.generation++
	c.once = make(map[Key]registration)
	c.continuous = make(map[Key]registration)
	for t := range c.timers {
		t.Stop()
	}
	c.timers = make(map[*clock.Timer]struct{})
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.delay = 0
	bus := c.bus
	c.bus = nil
	c.mutex.Unlock()

	if bus != nil {
		return errors.WithStack(bus.Close())
	}
	return nil
}
