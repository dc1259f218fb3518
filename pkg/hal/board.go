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
	"context"
	"path"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-pubsub"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/binkynet/LininoIO/pkg/eventloop"
	"github.com/binkynet/LininoIO/pkg/i2c"
	"github.com/binkynet/LininoIO/pkg/layout"
	"github.com/binkynet/LininoIO/pkg/pin"
	"github.com/binkynet/LininoIO/pkg/poller"
	"github.com/binkynet/LininoIO/pkg/pulse"
)

const (
	// High is the value of a digital pin with high voltage.
	High = pin.High
	// Low is the value of a digital pin with low voltage.
	Low = pin.Low

	// NoRegister is used as register argument for I2C reads that read
	// directly from the device.
	NoRegister = -1

	digitalReadBytes = 1
	analogReadBytes  = 4

	// Largest raw value of the 10-bit ADC
	analogRawMax = 1023
)

// Modes supported by pins.
const (
	Input  = pin.Input
	Output = pin.Output
	Analog = pin.Analog
	PWM    = pin.PWM
	Servo  = pin.Servo
)

// Board is a single board of the Linino family.
// All operations are executed on the io loop of the runtime, in the order
// they are called. Read and I2C handlers are invoked on the dispatch loop
// of the runtime; they may call back into the board. Event callbacks
// (OnRead, OnI2CReply, OnError) are invoked asynchronously.
type Board struct {
	rt        *Runtime
	log       zerolog.Logger
	layout    *layout.Layout
	pins      []*pin.Pin
	allocator *pulse.Allocator
	channel   *i2c.Channel
	events    *pubsub.PubSub
	connected chan struct{}
	ready     chan struct{}
	isReady   int32
	createdAt time.Time

	mutex    sync.Mutex
	closed   bool
	readKeys map[string]struct{}
}

// NewBoard creates a board with given layout and makes it the active board
// of the runtime, closing the previously active board.
// Initialization of the pins happens asynchronously; the board can be
// used once the Ready channel has been closed.
func NewBoard(rt *Runtime, l *layout.Layout) (*Board, error) {
	if l == nil {
		return nil, errors.Wrap(layout.ValidationError, "layout is nil")
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	b := &Board{
		rt:        rt,
		log:       rt.Log.With().Str("board", l.Key).Logger(),
		layout:    l,
		allocator: pulse.NewAllocator(rt.Log, l.SharedTimers()),
		events:    pubsub.New(),
		connected: make(chan struct{}),
		ready:     make(chan struct{}),
		createdAt: time.Now(),
		readKeys:  make(map[string]struct{}),
	}
	b.channel = i2c.NewChannel(i2c.Dependencies{
		Log:      b.log,
		Clock:    rt.Clock,
		Loop:     rt.loop,
		Dispatch: rt.dispatch,
		OpenBus:  rt.OpenI2CBus,
		OnReply: func(key i2c.Key, data []byte) {
			b.events.Pub(I2CReplyEvent{Key: key, Data: data})
		},
		OnError: b.publishError,
	})
	digitalCount := l.DigitalPinCount()
	for i, pc := range l.Pins() {
		address := strconv.Itoa(i)
		if pc.IsAnalog() {
			address = pin.AnalogAddress(pc.AnalogChannel)
		}
		b.pins = append(b.pins, pin.New(pin.Config{
			Address: address,
			Index:   i,
			Layout:  pc,
			Roots:   rt.Roots,
		}, pin.Dependencies{
			Log:       b.log,
			FS:        rt.FS,
			Allocator: b.allocator,
		}))
	}
	if err := rt.activate(b); err != nil {
		return nil, err
	}
	boardReadyGauge.Set(0)

	// Connected by default
	close(b.connected)

	// Enable the ADC
	rt.loop.Post(func() {
		enablePath := path.Join(rt.Roots.AIO, "enable")
		if err := rt.FS.WriteFile(enablePath, []byte("1")); err != nil {
			b.log.Warn().Err(err).Str("path", enablePath).Msg("Failed to enable ADC")
		}
	})

	// Initialize all pins
	barrier := eventloop.NewBarrier(b.onReady)
	for _, p := range b.pins {
		p := p
		barrier.Add(1)
		rt.loop.Post(func() {
			defer barrier.Done()
			p.Init()
		})
	}
	barrier.Seal()

	b.log.Info().
		Str("name", l.Name).
		Int("digital", digitalCount).
		Int("analog", len(l.Analog)).
		Msg("Created board")
	return b, nil
}

// onReady is called once all pins have been initialized.
func (b *Board) onReady() {
	if !b.rt.isActive(b) {
		return
	}
	atomic.StoreInt32(&b.isReady, 1)
	close(b.ready)
	boardReadyGauge.Set(1)
	b.rt.scheduler.SetActive(true)
	b.rt.scheduler.Start()
	b.log.Info().Msg("Board ready")
}

// Name of the board ("Linino One").
func (b *Board) Name() string { return b.layout.Name }

// Layout of the board.
func (b *Board) Layout() *layout.Layout { return b.layout }

// CreatedAt returns the time the board was created.
func (b *Board) CreatedAt() time.Time { return b.createdAt }

// Connected returns a channel that is closed once the board object has
// been constructed. It does not imply that the hardware can be used.
func (b *Board) Connected() <-chan struct{} { return b.connected }

// Ready returns a channel that is closed once all pins have been initialized.
func (b *Board) Ready() <-chan struct{} { return b.ready }

// IsReady returns true once all pins have been initialized.
func (b *Board) IsReady() bool { return atomic.LoadInt32(&b.isReady) == 1 }

// WaitReady waits until the board is ready or the given context is canceled.
func (b *Board) WaitReady(ctx context.Context) error {
	select {
	case <-b.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pins returns the state of all pins.
func (b *Board) Pins() []PinInfo {
	return lo.Map(b.pins, func(p *pin.Pin, _ int) PinInfo {
		return PinInfo{
			Address:       p.Address(),
			Index:         p.Index(),
			Modes:         p.Modes(),
			Mode:          p.Mode(),
			IsPWM:         p.IsPWM(),
			Value:         p.Value(),
			AnalogChannel: p.AnalogChannel(),
		}
	})
}

// AnalogPins returns the channel numbers of all analog pins.
func (b *Board) AnalogPins() []int {
	analog := lo.Filter(b.pins, func(p *pin.Pin, _ int) bool { return p.IsAnalog() })
	return lo.Map(analog, func(p *pin.Pin, _ int) int { return p.AnalogChannel() })
}

// SetSamplingInterval changes the interval (in ms) at which read
// subscriptions are sampled.
func (b *Board) SetSamplingInterval(ms int) {
	b.rt.SetSamplingInterval(ms)
}

// PinMode switches the given pin to the given mode.
func (b *Board) PinMode(ctx context.Context, address string, mode pin.Mode) error {
	return b.do(ctx, "pinMode", func() error {
		p, err := b.lookup(address)
		if err != nil {
			return err
		}
		return p.SetMode(mode)
	})
}

// DigitalWrite writes a digital value to the given pin, switching it to
// output mode when needed.
func (b *Board) DigitalWrite(ctx context.Context, address string, value int) error {
	return b.write(ctx, "digitalWrite", address, pin.Output, float64(value))
}

// AnalogWrite writes a PWM value (0..255) to the given pin, switching it to
// PWM mode when needed.
func (b *Board) AnalogWrite(ctx context.Context, address string, value float64) error {
	return b.write(ctx, "analogWrite", address, pin.PWM, value)
}

// ServoWrite writes a servo angle (0..180) to the given pin, switching it to
// servo mode when needed.
func (b *Board) ServoWrite(ctx context.Context, address string, value float64) error {
	return b.write(ctx, "servoWrite", address, pin.Servo, value)
}

// Command applies a value to a pin in the given mode.
// Output, PWM and Servo write the value (switching mode when needed),
// Input and Analog only switch the mode.
func (b *Board) Command(ctx context.Context, address string, mode pin.Mode, value float64) error {
	switch mode {
	case pin.Output:
		return b.DigitalWrite(ctx, address, int(value))
	case pin.PWM:
		return b.AnalogWrite(ctx, address, value)
	case pin.Servo:
		return b.ServoWrite(ctx, address, value)
	default:
		return b.PinMode(ctx, address, mode)
	}
}

func (b *Board) write(ctx context.Context, op, address string, mode pin.Mode, value float64) error {
	return b.do(ctx, op, func() error {
		p, err := b.lookup(address)
		if err != nil {
			return err
		}
		if p.Mode() != mode {
			if err := p.SetMode(mode); err != nil {
				return err
			}
		}
		p.Write(value)
		return nil
	})
}

// DigitalRead subscribes to the value of the given pin, switching it to
// input mode when needed. The handler is called with every sampled value.
// A new read of the same pin, however its address is spelled, replaces
// the previous handler.
// Call the returned function to stop reading.
func (b *Board) DigitalRead(ctx context.Context, address string, handler func(value float64)) (context.CancelFunc, error) {
	var cancel context.CancelFunc
	err := b.do(ctx, "digitalRead", func() error {
		p, err := b.lookup(address)
		if err != nil {
			return err
		}
		if p.Mode() != pin.Input {
			if err := p.SetMode(pin.Input); err != nil {
				return err
			}
		}
		cancel = b.subscribe(digitalReadKey(p.Address()), p, digitalReadBytes, nil, handler)
		return nil
	})
	return cancel, err
}

// AnalogRead subscribes to the value of the given analog pin, switching it
// to analog mode when needed. Numeric addresses are analog channel numbers
// ("0" is "A0"). The handler is called with every sampled value.
// A new read of the same pin, however its address is spelled, replaces
// the previous handler.
// Call the returned function to stop reading.
func (b *Board) AnalogRead(ctx context.Context, address string, handler func(value float64)) (context.CancelFunc, error) {
	return b.analogRead(ctx, address, nil, handler)
}

// AnalogReadRange is AnalogRead with the raw ADC value mapped linearly
// onto [from, to].
func (b *Board) AnalogReadRange(ctx context.Context, address string, from, to float64, handler func(value float64)) (context.CancelFunc, error) {
	return b.analogRead(ctx, address, LinearScale(from, to), handler)
}

// LinearScale returns a function mapping raw ADC values onto [from, to].
func LinearScale(from, to float64) func(float64) float64 {
	return func(raw float64) float64 {
		return from + (to-from)*raw/analogRawMax
	}
}

func (b *Board) analogRead(ctx context.Context, address string, scale func(float64) float64, handler func(value float64)) (context.CancelFunc, error) {
	if !strings.HasPrefix(address, "A") {
		address = "A" + strings.TrimSpace(address)
	}
	var cancel context.CancelFunc
	err := b.do(ctx, "analogRead", func() error {
		p, err := b.lookup(address)
		if err != nil {
			return err
		}
		if !p.IsAnalog() {
			return errors.Wrapf(pin.InvalidPinError, "'%s' is not an analog pin", address)
		}
		if p.Mode() != pin.Analog {
			if err := p.SetMode(pin.Analog); err != nil {
				return err
			}
		}
		cancel = b.subscribe(analogReadKey(p.AnalogChannel()), p, analogReadBytes, scale, handler)
		return nil
	})
	return cancel, err
}

// subscribe adds a read subscription for the given pin.
func (b *Board) subscribe(key string, p *pin.Pin, bytes int, scale func(float64) float64, handler func(float64)) context.CancelFunc {
	address := p.Address()
	remove := b.rt.scheduler.Add(poller.Subscription{
		Key:   key,
		Index: p.Index(),
		File:  p.ReadFile(),
		Bytes: bytes,
		Scale: scale,
		Deliver: func(value float64) {
			p.Observe(value)
			b.rt.dispatch.Post(func() {
				if handler != nil {
					handler(value)
				}
				b.events.Pub(ReadEvent{Key: key, Pin: address, Value: value})
			})
		},
	})
	b.mutex.Lock()
	b.readKeys[key] = struct{}{}
	b.mutex.Unlock()
	return context.CancelFunc(remove)
}

// I2CConfig opens the I2C bus and sets the delay between read requests.
func (b *Board) I2CConfig(ctx context.Context, delay time.Duration) error {
	return b.do(ctx, "i2cConfig", func() error {
		return b.channel.Configure(delay)
	})
}

// I2CWrite writes the given bytes to the device with given address.
// Writing no bytes is a no-op.
func (b *Board) I2CWrite(ctx context.Context, address uint8, data []byte) error {
	return b.do(ctx, "i2cWrite", func() error {
		return b.channel.Write(ctx, address, data)
	})
}

// I2CWriteReg writes a single byte to a register of the device with given address.
func (b *Board) I2CWriteReg(ctx context.Context, address, register, value uint8) error {
	return b.do(ctx, "i2cWriteReg", func() error {
		return b.channel.WriteRegister(ctx, address, register, value)
	})
}

// I2CRead reads continuously from the device with given address.
// Use NoRegister to read without selecting a register.
func (b *Board) I2CRead(ctx context.Context, address uint8, register int, bytes int, handler i2c.Handler) error {
	return b.do(ctx, "i2cRead", func() error {
		return b.channel.Read(i2cRequest(address, register, bytes), handler)
	})
}

// I2CReadOnce reads once from the device with given address.
// Use NoRegister to read without selecting a register.
func (b *Board) I2CReadOnce(ctx context.Context, address uint8, register int, bytes int, handler i2c.Handler) error {
	return b.do(ctx, "i2cReadOnce", func() error {
		return b.channel.ReadOnce(i2cRequest(address, register, bytes), handler)
	})
}

func i2cRequest(address uint8, register int, bytes int) i2c.Request {
	req := i2c.Request{Address: address, Bytes: bytes}
	if register >= 0 {
		req.Register = uint8(register)
		req.HasRegister = true
	}
	return req
}

// OnRead registers a callback for all sampled values.
func (b *Board) OnRead(cb func(ReadEvent)) context.CancelFunc {
	b.events.Sub(cb)
	return func() { b.events.Leave(cb) }
}

// OnI2CReply registers a callback for all I2C read replies.
func (b *Board) OnI2CReply(cb func(I2CReplyEvent)) context.CancelFunc {
	b.events.Sub(cb)
	return func() { b.events.Leave(cb) }
}

// OnError registers a callback for errors that are not returned to a caller.
func (b *Board) OnError(cb func(ErrorEvent)) context.CancelFunc {
	b.events.Sub(cb)
	return func() { b.events.Leave(cb) }
}

// Close the board. If it is the active board, the runtime is left without
// an active board.
func (b *Board) Close() error {
	b.rt.mutex.Lock()
	if b.rt.board == b {
		b.rt.board = nil
	}
	b.rt.mutex.Unlock()
	return b.close()
}

// close releases all resources of the board.
func (b *Board) close() error {
	b.mutex.Lock()
	if b.closed {
		b.mutex.Unlock()
		return nil
	}
	b.closed = true
	keys := lo.Keys(b.readKeys)
	b.mutex.Unlock()

	if atomic.CompareAndSwapInt32(&b.isReady, 1, 0) {
		boardReadyGauge.Set(0)
	}
	b.rt.scheduler.SetActive(false)
	for _, key := range keys {
		b.rt.scheduler.Remove(key)
	}

	// Closing happens on the loop to wait for operations in progress.
	var result error
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := b.rt.loop.Do(ctx, func() error {
		for _, p := range b.pins {
			result = multierr.Append(result, p.Close())
		}
		result = multierr.Append(result, b.channel.Close())
		return nil
	}); err != nil {
		result = multierr.Append(result, err)
	}
	b.log.Info().Msg("Board closed")
	return result
}

// do executes the given operation on the io loop once the board is ready.
func (b *Board) do(ctx context.Context, op string, fn func() error) error {
	operationCounters.WithLabelValues(op).Inc()
	b.mutex.Lock()
	closed := b.closed
	b.mutex.Unlock()
	if closed {
		operationErrors.WithLabelValues(op).Inc()
		return errors.WithStack(ErrClosed)
	}
	if !b.IsReady() {
		operationErrors.WithLabelValues(op).Inc()
		return errors.WithStack(ErrNotReady)
	}
	if err := b.rt.loop.Do(ctx, fn); err != nil {
		operationErrors.WithLabelValues(op).Inc()
		return err
	}
	return nil
}

// lookup the pin with given address.
func (b *Board) lookup(address string) (*pin.Pin, error) {
	idx, err := pin.ToPinIndex(address, b.layout.DigitalPinCount())
	if err != nil {
		return nil, err
	}
	if idx >= len(b.pins) {
		return nil, errors.Wrapf(pin.InvalidPinError, "'%s' is out of range", address)
	}
	return b.pins[idx], nil
}

// publishError publishes an error event.
func (b *Board) publishError(err error) {
	errorEventsCounter.Inc()
	b.log.Warn().Err(err).Msg("Error event")
	b.events.Pub(ErrorEvent{Err: err})
}
