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

import (
	"path"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/LininoIO/pkg/layout"
	"github.com/binkynet/LininoIO/pkg/pulse"
	"github.com/binkynet/LininoIO/pkg/sysfs"
)

var testRoots = Roots{GPIO: "/gpio", PWM: "/pwm", AIO: "/aio"}

type fixture struct {
	fs     *sysfs.MemFileSystem
	alloc  *pulse.Allocator
	layout *layout.Layout
}

// newFixture creates an in-memory device tree for the Linino One in which
// nothing has been exported yet. Writes to the export files create the
// device files, like the kernel does.
func newFixture(t *testing.T) *fixture {
	l, err := layout.DefaultCatalog().Lookup("linino_one")
	require.NoError(t, err)
	fs := sysfs.NewMemFileSystem()
	fs.SetFile("/gpio/export", "")
	fs.SetFile("/pwm/export", "")
	for _, pc := range l.Analog {
		fs.SetFile(path.Join(testRoots.AIO, "in_voltage_"+pc.Name+"_raw"), "0")
	}
	fs.OnWrite(func(name, data string) {
		switch name {
		case "/gpio/export":
			for _, pc := range l.Digital {
				if strconv.Itoa(pc.ExportID) == data {
					exportGPIO(fs, pc)
				}
			}
		case "/pwm/export":
			exportPWM(fs, "pwm"+data)
		}
	})
	return &fixture{
		fs:     fs,
		alloc:  pulse.NewAllocator(zerolog.Nop(), l.SharedTimers()),
		layout: l,
	}
}

func exportGPIO(fs *sysfs.MemFileSystem, pc layout.PinConfig) {
	dir := path.Join(testRoots.GPIO, pc.Name)
	for _, name := range []string{"value", "direction", "edge"} {
		fs.Remove(path.Join(dir, name))
		fs.SetFile(path.Join(dir, name), "")
	}
}

func exportPWM(fs *sysfs.MemFileSystem, dirName string) {
	dir := path.Join(testRoots.PWM, dirName)
	for _, name := range []string{"period", "duty_cycle", "enable", "resolution"} {
		fs.SetFile(path.Join(dir, name), "0")
	}
}

// newPin creates and initializes the pin with given index.
func (f *fixture) newPin(t *testing.T, index int) *Pin {
	pins := f.layout.Pins()
	require.True(t, index < len(pins))
	pc := pins[index]
	address := strconv.Itoa(index)
	if pc.IsAnalog() {
		address = AnalogAddress(pc.AnalogChannel)
	}
	p := New(Config{
		Address: address,
		Index:   index,
		Layout:  pc,
		Roots:   testRoots,
	}, Dependencies{
		Log:       zerolog.Nop(),
		FS:        f.fs,
		Allocator: f.alloc,
	})
	p.Init()
	select {
	case <-p.Ready():
	default:
		t.Fatal("pin not ready after Init")
	}
	return p
}

func TestInitExportsDigitalPin(t *testing.T) {
	f := newFixture(t)
	p := f.newPin(t, 2)

	assert.Equal(t, []string{"120"}, f.fs.Writes("/gpio/export"))
	assert.Equal(t, []string{"out"}, f.fs.Writes("/gpio/D2/direction"))
	assert.Equal(t, []string{"both"}, f.fs.Writes("/gpio/D2/edge"))
	assert.Equal(t, []string{"0"}, f.fs.Writes("/gpio/D2/value"))
	assert.Equal(t, rwrwrw, f.fs.Mode("/gpio/D2/value"))
	assert.Equal(t, Output, p.Mode())
	assert.False(t, p.IsPWM())
	assert.NotNil(t, p.ReadFile())
	assert.Equal(t, []Mode{Input, Output}, p.Modes())
}

func TestInitAlreadyExported(t *testing.T) {
	f := newFixture(t)
	exportGPIO(f.fs, f.layout.Digital[4])
	p := f.newPin(t, 4)
	assert.Empty(t, f.fs.Writes("/gpio/export"))
	assert.NotNil(t, p.ReadFile())
}

func TestInitExportsWhenValueIsDirectory(t *testing.T) {
	f := newFixture(t)
	f.fs.AddDir("/gpio/D7/value")
	p := f.newPin(t, 7)
	assert.Equal(t, []string{"123"}, f.fs.Writes("/gpio/export"))
	assert.NotNil(t, p.ReadFile())
}

func TestInitPWMPin(t *testing.T) {
	f := newFixture(t)
	p := f.newPin(t, 3)

	assert.Equal(t, []string{"0"}, f.fs.Writes("/pwm/export"))
	assert.Equal(t, []string{"0"}, f.fs.Writes("/pwm/pwm0/duty_cycle"))
	assert.Equal(t, []string{"10000000"}, f.fs.Writes("/pwm/pwm0/period"))
	assert.Equal(t, []string{"1"}, f.fs.Writes("/pwm/pwm0/resolution"))
	for _, name := range []string{"duty_cycle", "enable", "period", "resolution"} {
		assert.Equal(t, rwrwrw, f.fs.Mode("/pwm/pwm0/"+name), name)
	}
	assert.Equal(t, []Mode{Input, Output, PWM, Servo}, p.Modes())
}

func TestInitAnalogPin(t *testing.T) {
	f := newFixture(t)
	p := f.newPin(t, 14)
	assert.Equal(t, "A0", p.Address())
	assert.Equal(t, Analog, p.Mode())
	assert.True(t, p.IsAnalog())
	assert.Equal(t, 0, p.AnalogChannel())
	require.NotNil(t, p.ReadFile())
	assert.Equal(t, "/aio/in_voltage_A0_raw", p.ReadFile().Name())
	assert.Equal(t, []Mode{Input, Output, Analog}, p.Modes())
}

func TestInitUnavailablePin(t *testing.T) {
	l, err := layout.DefaultCatalog().Lookup("arduino_yun")
	require.NoError(t, err)
	fs := sysfs.NewMemFileSystem()
	p := New(Config{Address: "13", Index: 13, Layout: l.Digital[13], Roots: testRoots},
		Dependencies{Log: zerolog.Nop(), FS: fs, Allocator: pulse.NewAllocator(zerolog.Nop(), nil)})
	p.Init()
	<-p.Ready()
	assert.Nil(t, p.Modes())
	assert.Nil(t, p.ReadFile())
	assert.Empty(t, fs.Files())
	assert.True(t, IsUnsupportedCapability(p.SetMode(PWM)))
}

func TestModeRoundTrip(t *testing.T) {
	f := newFixture(t)
	p := f.newPin(t, 2)
	for _, m := range []Mode{Input, Output, Analog, Output} {
		require.NoError(t, p.SetMode(m))
		assert.Equal(t, m, p.Mode())
	}
	assert.Equal(t, []string{"out", "in", "out", "in", "out"}, f.fs.Writes("/gpio/D2/direction"))
	assert.False(t, p.IsPWM())
}

func TestDigitalWrite(t *testing.T) {
	f := newFixture(t)
	p := f.newPin(t, 2)
	p.Write(High)
	p.Write(Low)
	p.Write(0.5)
	assert.Equal(t, []string{"0", "1", "0", "1"}, f.fs.Writes("/gpio/D2/value"))
	assert.Equal(t, 0.5, p.Value())
}

func TestPWMModeAndWrite(t *testing.T) {
	f := newFixture(t)
	p := f.newPin(t, 3)

	require.NoError(t, p.SetMode(PWM))
	assert.True(t, p.IsPWM())
	assert.Equal(t, PWM, p.Mode())
	assert.Equal(t, pulse.Config{Period: 10000000, Min: 0, Max: 5000000}, p.Pulse())
	// Period equals the initial maximum period, so it is not rewritten
	assert.Equal(t, []string{"10000000"}, f.fs.Writes("/pwm/pwm0/period"))
	assert.Equal(t, []string{"1"}, f.fs.Writes("/pwm/pwm0/enable"))

	p.Write(255)
	p.Write(0)
	p.Write(300)
	p.Write(-5)
	assert.Equal(t, []string{"0", "5000000", "0", "5000000", "0"}, f.fs.Writes("/pwm/pwm0/duty_cycle"))

	// Enable is written once
	require.NoError(t, p.SetMode(PWM))
	assert.Equal(t, []string{"1"}, f.fs.Writes("/pwm/pwm0/enable"))
}

func TestServoOn16BitTimer(t *testing.T) {
	f := newFixture(t)
	p := f.newPin(t, 9)

	require.NoError(t, p.SetMode(Servo))
	assert.Equal(t, pulse.Config{Period: 20000000, Min: 560000, Max: 2400000}, p.Pulse())
	assert.Equal(t, []string{"10000000", "20000000"}, f.fs.Writes("/pwm/pwm3/period"))

	p.Write(0)
	p.Write(180)
	p.Write(90)
	assert.Equal(t, []string{"0", "560000", "2400000", "1480000"}, f.fs.Writes("/pwm/pwm3/duty_cycle"))
	assert.Equal(t, int64(1480000), p.Duty())
}

func TestUnsupportedPWMLeavesPinUntouched(t *testing.T) {
	f := newFixture(t)
	p := f.newPin(t, 2)
	before := len(f.fs.Writes("/gpio/D2/direction"))

	err := p.SetMode(PWM)
	require.Error(t, err)
	assert.True(t, IsUnsupportedCapability(err))
	assert.Equal(t, Output, p.Mode())
	assert.False(t, p.IsPWM())
	assert.Len(t, f.fs.Writes("/gpio/D2/direction"), before)

	assert.True(t, IsUnsupportedCapability(p.SetMode(Servo)))
	assert.True(t, IsInvalidMode(p.SetMode(Mode(9))))
}

func TestIsPWMIsSticky(t *testing.T) {
	f := newFixture(t)
	p := f.newPin(t, 5)

	require.NoError(t, p.SetMode(PWM))
	require.NoError(t, p.SetMode(Output))
	assert.True(t, p.IsPWM())
	assert.Equal(t, Output, p.Mode())

	// Digital writes go to the value file, not the duty cycle
	p.Write(High)
	assert.Equal(t, []string{"0", "1"}, f.fs.Writes("/gpio/D5/value"))
	assert.Equal(t, []string{"0"}, f.fs.Writes("/pwm/pwm1/duty_cycle"))
}

func TestSharedTimerPinsResolveIdentically(t *testing.T) {
	f := newFixture(t)
	p3 := f.newPin(t, 3)
	p11 := f.newPin(t, 11)

	require.NoError(t, p3.SetMode(PWM))
	require.NoError(t, p11.SetMode(PWM))
	assert.Equal(t, p3.Pulse(), p11.Pulse())
	assert.Empty(t, f.alloc.State("T0").Claims)
}

func TestSharedTimerPWMPinFollowsServo(t *testing.T) {
	f := newFixture(t)
	p9 := f.newPin(t, 9)
	p10 := f.newPin(t, 10)

	require.NoError(t, p9.SetMode(PWM))
	assert.Equal(t, int64(10000000), p9.Pulse().Period)
	require.NoError(t, p10.SetMode(Servo))
	require.NoError(t, p9.SetMode(PWM))

	assert.Equal(t, p10.Pulse(), p9.Pulse())
	assert.Equal(t, []string{"10000000", "20000000"}, f.fs.Writes("/pwm/pwm3/period"))
	assert.Equal(t, []string{"10000000", "20000000"}, f.fs.Writes("/pwm/pwm4/period"))
}

func newCustomPin(t *testing.T, fs *sysfs.MemFileSystem, alloc *pulse.Allocator, pc layout.PinConfig) *Pin {
	exportGPIO(fs, pc)
	for _, desc := range []*layout.PWM{pc.PWM, pc.Servo} {
		if desc != nil {
			exportPWM(fs, desc.DirName())
		}
	}
	p := New(Config{Address: pc.Name[1:], Layout: pc, Roots: testRoots}, Dependencies{Log: zerolog.Nop(), FS: fs, Allocator: alloc})
	p.Init()
	return p
}

func TestServoRequiresPWMChannel(t *testing.T) {
	fs := sysfs.NewMemFileSystem()
	alloc := pulse.NewAllocator(zerolog.Nop(), map[string]bool{"TS": true})
	desc := &layout.PWM{Type: "pwm", Channel: 7, BitWidth: 16, MaxPeriod: 10000000, Resolution: 1, TimerID: "TS"}

	servoOnly := newCustomPin(t, fs, alloc, layout.PinConfig{Name: "D7", ExportID: 107, Servo: desc, AnalogChannel: -1})
	err := servoOnly.SetMode(Servo)
	assert.True(t, IsUnsupportedCapability(err))
	assert.Equal(t, Output, servoOnly.Mode())
	assert.False(t, servoOnly.IsPWM())
	assert.Equal(t, []Mode{Input, Output}, servoOnly.Modes())

	pwmOnly := newCustomPin(t, fs, alloc, layout.PinConfig{Name: "D8", ExportID: 108, PWM: desc, AnalogChannel: -1})
	assert.Equal(t, []Mode{Input, Output, PWM, Servo}, pwmOnly.Modes())
	require.NoError(t, pwmOnly.SetMode(Servo))
	assert.Equal(t, int64(20000000), pwmOnly.Pulse().Period)
}

func TestServoConflictOnExclusiveTimer(t *testing.T) {
	fs := sysfs.NewMemFileSystem()
	alloc := pulse.NewAllocator(zerolog.Nop(), map[string]bool{"TX": false})
	pwm := func(ch int) *layout.PWM {
		return &layout.PWM{Type: "pwm", Channel: ch, BitWidth: 16, MaxPeriod: 20000000, Resolution: 1, TimerID: "TX"}
	}
	newPin := func(address string, ch int) *Pin {
		pc := layout.PinConfig{Name: "D" + address, ExportID: 100 + ch, PWM: pwm(ch), Servo: pwm(ch), AnalogChannel: -1}
		exportGPIO(fs, pc)
		exportPWM(fs, pwm(ch).DirName())
		p := New(Config{Address: address, Layout: pc, Roots: testRoots}, Dependencies{Log: zerolog.Nop(), FS: fs, Allocator: alloc})
		p.Init()
		return p
	}
	a := newPin("1", 0)
	b := newPin("2", 1)

	require.NoError(t, a.SetMode(Servo))
	err := b.SetMode(Servo)
	require.Error(t, err)
	assert.True(t, pulse.IsTimerConflict(err))
	assert.Equal(t, Output, b.Mode())
	assert.False(t, b.IsPWM())

	// Owner can switch between pulse modes
	require.NoError(t, a.SetMode(PWM))
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	p := f.newPin(t, 3)
	require.NoError(t, p.Close())
	assert.Nil(t, p.ReadFile())
	// Writes without handles are dropped
	p.Write(High)
	assert.Equal(t, []string{"0"}, f.fs.Writes("/gpio/D3/value"))
}

func TestToPinIndex(t *testing.T) {
	idx, err := ToPinIndex("A0", 14)
	require.NoError(t, err)
	assert.Equal(t, 14, idx)
	idx, err = ToPinIndex("A5", 14)
	require.NoError(t, err)
	assert.Equal(t, 19, idx)
	idx, err = ToPinIndex("3", 14)
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	for _, invalid := range []string{"", "A", "X3", "-1", "Afoo"} {
		_, err := ToPinIndex(invalid, 14)
		assert.True(t, IsInvalidPin(err), invalid)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("servo")
	require.NoError(t, err)
	assert.Equal(t, Servo, m)
	m, err = ParseMode("2")
	require.NoError(t, err)
	assert.Equal(t, Analog, m)
	_, err = ParseMode("7")
	assert.True(t, IsInvalidMode(err))
	assert.Equal(t, "pwm", PWM.String())
	assert.Equal(t, "mode(9)", Mode(9).String())
}
