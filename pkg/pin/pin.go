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

// Package pin implements a single logical pin of a board: its mode state
// machine, the initialization of its device files and value writes.
package pin

import (
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/binkynet/LininoIO/pkg/layout"
	"github.com/binkynet/LininoIO/pkg/pulse"
	"github.com/binkynet/LininoIO/pkg/sysfs"
)

const (
	// DefaultGPIORoot is the sysfs directory of the GPIO subsystem.
	DefaultGPIORoot = "/sys/class/gpio"
	// DefaultPWMRoot is the sysfs directory of the PWM chip.
	DefaultPWMRoot = "/sys/class/pwm/pwmchip0"
	// DefaultAIORoot is the sysfs directory of the ADC.
	DefaultAIORoot = "/sys/bus/iio/devices/iio:device0"

	// Permissions given to all value files
	rwrwrw = os.FileMode(0666)
)

// Roots of the device file trees.
type Roots struct {
	GPIO string
	PWM  string
	AIO  string
}

// DefaultRoots returns the device file roots of a real board.
func DefaultRoots() Roots {
	return Roots{
		GPIO: DefaultGPIORoot,
		PWM:  DefaultPWMRoot,
		AIO:  DefaultAIORoot,
	}
}

// Paths of all device files used by a single pin.
// Paths that do not apply to the pin are empty.
type Paths struct {
	Value      string
	Direction  string
	Edge       string
	Enable     string
	Duty       string
	Period     string
	Resolution string
}

// Config of a single pin.
type Config struct {
	// Address of the pin ("3" or "A0")
	Address string
	// Index of the pin in the list of pins of the board
	Index int
	// Layout of the pin taken from the catalog
	Layout layout.PinConfig
	// Roots of the device file trees
	Roots Roots
}

// Dependencies of a pin.
type Dependencies struct {
	Log       zerolog.Logger
	FS        sysfs.FileSystem
	Allocator *pulse.Allocator
}

// Pin is a single logical pin of a board.
// Init, SetMode, Write and Close must be called from a single goroutine
// (the event loop of the board). The accessors are safe to call from any
// goroutine.
type Pin struct {
	config    Config
	log       zerolog.Logger
	fs        sysfs.FileSystem
	allocator *pulse.Allocator

	paths     Paths
	ready     chan struct{}
	readyOnce sync.Once

	// Device handles, nil when not available
	valueFile  sysfs.File
	periodFile sysfs.File
	dutyFile   sysfs.File

	// Current PWM period as last written to the period file
	period  int64
	enabled bool

	mutex sync.Mutex
	mode  Mode
	isPWM bool
	value float64
	duty  int64
	pulse pulse.Config
}

// New creates a pin with given configuration.
// The pin must be initialized with Init before it can be used.
func New(cfg Config, deps Dependencies) *Pin {
	p := &Pin{
		config:    cfg,
		log:       deps.Log.With().Str("pin", cfg.Address).Logger(),
		fs:        deps.FS,
		allocator: deps.Allocator,
		ready:     make(chan struct{}),
		mode:      Output,
	}
	lc := cfg.Layout
	switch {
	case !lc.IsAvailable():
		// No device files
	case lc.IsAnalog():
		p.mode = Analog
		p.paths.Value = path.Join(cfg.Roots.AIO, "in_voltage_"+lc.Name+"_raw")
	default:
		dir := path.Join(cfg.Roots.GPIO, lc.Name)
		p.paths.Value = path.Join(dir, "value")
		p.paths.Direction = path.Join(dir, "direction")
		p.paths.Edge = path.Join(dir, "edge")
		if pwm := p.pwmDescriptor(); pwm != nil {
			dir := path.Join(cfg.Roots.PWM, pwm.DirName())
			p.paths.Enable = path.Join(dir, "enable")
			p.paths.Duty = path.Join(dir, "duty_cycle")
			p.paths.Period = path.Join(dir, "period")
			p.paths.Resolution = path.Join(dir, "resolution")
		}
	}
	return p
}

// Address of the pin ("3" or "A0").
func (p *Pin) Address() string { return p.config.Address }

// Index of the pin in the list of pins of its board.
func (p *Pin) Index() int { return p.config.Index }

// Paths returns the device file paths of the pin.
func (p *Pin) Paths() Paths { return p.paths }

// IsAnalog returns true for analog input pins.
func (p *Pin) IsAnalog() bool { return p.config.Layout.IsAnalog() }

// IsDigital returns true for digital pins that have device files.
func (p *Pin) IsDigital() bool { return p.config.Layout.IsAvailable() && !p.config.Layout.IsAnalog() }

// AnalogChannel returns the ADC channel of analog pins, -1 otherwise.
func (p *Pin) AnalogChannel() int { return p.config.Layout.AnalogChannel }

// Ready returns a channel that is closed once the pin has been initialized.
func (p *Pin) Ready() <-chan struct{} { return p.ready }

// Modes returns the modes supported by this pin.
func (p *Pin) Modes() []Mode {
	lc := p.config.Layout
	if !lc.IsAvailable() {
		return nil
	}
	result := []Mode{Input, Output}
	if lc.IsAnalog() {
		return append(result, Analog)
	}
	if lc.PWM != nil {
		result = append(result, PWM, Servo)
	}
	return result
}

// Mode returns the current mode of the pin.
func (p *Pin) Mode() Mode {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.mode
}

// IsPWM returns true once the pin has been used as PWM or servo output.
func (p *Pin) IsPWM() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.isPWM
}

// Value returns the last written or observed value.
func (p *Pin) Value() float64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.value
}

// Pulse returns the pulse configuration resolved for the last PWM or
// servo mode.
func (p *Pin) Pulse() pulse.Config {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.pulse
}

// Duty returns the last written duty cycle (in ns).
func (p *Pin) Duty() int64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.duty
}

// Observe stores a value that has been read from the pin.
func (p *Pin) Observe(value float64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.value = value
}

// ReadFile returns the handle used to read the value of the pin,
// or nil if the pin has no readable value file.
func (p *Pin) ReadFile() sysfs.File {
	return p.valueFile
}

// pwmDescriptor returns the PWM channel of the pin (if any).
func (p *Pin) pwmDescriptor() *layout.PWM {
	if p.config.Layout.PWM != nil {
		return p.config.Layout.PWM
	}
	return p.config.Layout.Servo
}

// descriptorFor returns the PWM channel used for the given pulse mode.
// Both pulse modes require a PWM channel.
func (p *Pin) descriptorFor(mode Mode) *layout.PWM {
	if p.config.Layout.PWM == nil {
		return nil
	}
	if mode == Servo && p.config.Layout.Servo != nil {
		return p.config.Layout.Servo
	}
	return p.config.Layout.PWM
}

// SetMode switches the pin to the given mode.
// Switching to PWM or servo on a pin without such capability fails with
// UnsupportedCapabilityError; the pin is left unchanged in that case.
func (p *Pin) SetMode(mode Mode) error {
	if !mode.IsValid() {
		return errors.Wrapf(InvalidModeError, "%d", int(mode))
	}
	var cfg pulse.Config
	if mode.IsPulse() {
		desc := p.descriptorFor(mode)
		if desc == nil || !p.config.Layout.IsAvailable() {
			return errors.Wrapf(UnsupportedCapabilityError, "pin %s does not support %s", p.Address(), mode)
		}
		kind := pulse.KindPWM
		if mode == Servo {
			kind = pulse.KindServo
		}
		var err error
		cfg, err = p.allocator.Resolve(p.Address(), desc.TimerID, desc.BitWidth, kind)
		if err != nil {
			return errors.WithStack(err)
		}

		if cfg.Period != p.period {
			if p.writeFile(p.periodFile, p.paths.Period, strconv.FormatInt(cfg.Period, 10)) {
				p.period = cfg.Period
			}
		}
		if !p.enabled {
			p.enabled = true
			p.writePath(p.paths.Enable, "1")
		}
	}

	if p.IsDigital() {
		// Best effort
		p.writePath(p.paths.Direction, mode.Direction())
	}

	p.mutex.Lock()
	if mode.IsPulse() {
		p.isPWM = true
		p.pulse = cfg
	}
	changed := p.mode != mode
	p.mode = mode
	p.mutex.Unlock()

	if changed {
		modeChangeCounters.WithLabelValues(p.Address(), mode.String()).Inc()
		p.log.Debug().Str("mode", mode.String()).Msg("Mode changed")
	}
	return nil
}

// Write the given value to the pin.
// In PWM mode the value ranges 0..255, in servo mode 0..180 (degrees).
// Otherwise any non-zero value is high.
// Device errors are logged, not returned.
func (p *Pin) Write(value float64) {
	p.mutex.Lock()
	mode := p.mode
	cfg := p.pulse
	p.value = value
	p.mutex.Unlock()

	writeCounters.WithLabelValues(p.Address()).Inc()
	if mode.IsPulse() {
		kind := pulse.KindPWM
		if mode == Servo {
			kind = pulse.KindServo
		}
		duty := pulse.DutyCycle(value, kind, cfg)
		p.mutex.Lock()
		p.duty = duty
		p.mutex.Unlock()
		p.writeFile(p.dutyFile, p.paths.Duty, strconv.FormatInt(duty, 10))
		return
	}
	data := "0"
	if value != 0 {
		data = "1"
	}
	p.writeFile(p.valueFile, p.paths.Value, data)
}

// Close all open device handles.
func (p *Pin) Close() error {
	var err error
	for _, f := range []sysfs.File{p.valueFile, p.periodFile, p.dutyFile} {
		if f != nil {
			err = multierr.Append(err, f.Close())
		}
	}
	p.valueFile, p.periodFile, p.dutyFile = nil, nil, nil
	return err
}

// writeFile writes data to the given handle.
// Returns true on success.
func (p *Pin) writeFile(f sysfs.File, name, data string) bool {
	if f == nil {
		writeErrorCounters.WithLabelValues(p.Address()).Inc()
		p.log.Debug().Str("path", name).Msg("No handle available for write")
		return false
	}
	if _, err := f.WriteAt([]byte(data), 0); err != nil {
		writeErrorCounters.WithLabelValues(p.Address()).Inc()
		p.log.Debug().Err(err).Str("path", name).Msg("Write failed")
		return false
	}
	return true
}

// writePath writes data to the file with given path.
// Returns true on success.
func (p *Pin) writePath(name, data string) bool {
	if name == "" {
		return false
	}
	if err := p.fs.WriteFile(name, []byte(data)); err != nil {
		writeErrorCounters.WithLabelValues(p.Address()).Inc()
		p.log.Debug().Err(err).Str("path", name).Msg("Write failed")
		return false
	}
	return true
}
