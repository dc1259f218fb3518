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

package pulse

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	cfg, err := Lookup(8, KindPWM)
	require.NoError(t, err)
	assert.Equal(t, Config{Min: 0, Max: 5000000, Period: 10000000}, cfg)

	cfg, err = Lookup(16, KindServo)
	require.NoError(t, err)
	assert.Equal(t, Config{Min: 560000, Max: 2400000, Period: 20000000}, cfg)

	_, err = Lookup(12, KindPWM)
	assert.True(t, IsUnknownBitWidth(err))
}

func TestDutyCyclePWM(t *testing.T) {
	cfg := Config{Min: 0, Max: 5000000, Period: 10000000}
	assert.Equal(t, int64(5000000), DutyCycle(255, KindPWM, cfg))
	assert.Equal(t, int64(0), DutyCycle(0, KindPWM, cfg))
	assert.Equal(t, int64(5000000), DutyCycle(300, KindPWM, cfg))
	assert.Equal(t, int64(0), DutyCycle(-4, KindPWM, cfg))

	last := int64(-1)
	for v := 0; v <= 255; v++ {
		d := DutyCycle(float64(v), KindPWM, cfg)
		assert.GreaterOrEqual(t, d, last)
		last = d
	}
}

func TestDutyCycleServo(t *testing.T) {
	cfg := Config{Min: 560000, Max: 2400000, Period: 20000000}
	assert.Equal(t, int64(2400000), DutyCycle(180, KindServo, cfg))
	assert.Equal(t, int64(560000), DutyCycle(0, KindServo, cfg))
	assert.Equal(t, int64(1480000), DutyCycle(90, KindServo, cfg))
	assert.Equal(t, int64(2400000), DutyCycle(200, KindServo, cfg))
}

func TestSharedTimerPWMConverges(t *testing.T) {
	a := NewAllocator(zerolog.Nop(), map[string]bool{"T1": true})
	first, err := a.Resolve("pin-9", "T1", 16, KindServo)
	require.NoError(t, err)
	second, err := a.Resolve("pin-10", "T1", 8, KindPWM)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	ts := a.State("T1")
	assert.True(t, ts.Shared)
	assert.True(t, ts.InUse)
	// PWM outputs do not claim the timer
	require.Len(t, ts.Claims, 1)
	assert.Equal(t, "pin-9", ts.Claims[0].Consumer)
}

func TestSharedTimerPWMFollowsLaterServo(t *testing.T) {
	a := NewAllocator(zerolog.Nop(), map[string]bool{"T1": true})
	pwm, err := a.Resolve("pin-9", "T1", 16, KindPWM)
	require.NoError(t, err)
	assert.Equal(t, int64(10000000), pwm.Period)
	assert.False(t, a.State("T1").InUse)

	servo, err := a.Resolve("pin-10", "T1", 16, KindServo)
	require.NoError(t, err)
	assert.Equal(t, int64(20000000), servo.Period)

	// The timer now runs at the servo period
	pwm, err = a.Resolve("pin-9", "T1", 16, KindPWM)
	require.NoError(t, err)
	assert.Equal(t, servo, pwm)
	require.Len(t, a.State("T1").Claims, 1)
	assert.Equal(t, "pin-10", a.State("T1").Claims[0].Consumer)
}

func TestSharedTimerTwoPWMPins(t *testing.T) {
	a := NewAllocator(zerolog.Nop(), map[string]bool{"T0": true})
	c1, err := a.Resolve("pin-3", "T0", 8, KindPWM)
	require.NoError(t, err)
	c2, err := a.Resolve("pin-11", "T0", 8, KindPWM)
	require.NoError(t, err)
	assert.Equal(t, c1.Period, c2.Period)
}

func TestExclusiveTimerConflict(t *testing.T) {
	a := NewAllocator(zerolog.Nop(), map[string]bool{"T3": false})
	_, err := a.Resolve("pin-5", "T3", 16, KindServo)
	require.NoError(t, err)

	_, err = a.Resolve("pin-6", "T3", 16, KindServo)
	assert.True(t, IsTimerConflict(err))

	// Same consumer may re-resolve
	cfg, err := a.Resolve("pin-5", "T3", 16, KindPWM)
	require.NoError(t, err)
	assert.Equal(t, int64(10000000), cfg.Period)
	assert.Len(t, a.State("T3").Claims, 1)
	assert.Equal(t, "pin-5", a.State("T3").Owner)
}

func TestExclusiveTimerPWMOwnerConflict(t *testing.T) {
	a := NewAllocator(zerolog.Nop(), map[string]bool{"T3": false})
	_, err := a.Resolve("pin-5", "T3", 16, KindPWM)
	require.NoError(t, err)
	assert.Empty(t, a.State("T3").Claims)

	_, err = a.Resolve("pin-6", "T3", 16, KindServo)
	assert.True(t, IsTimerConflict(err))
}

func TestAllocatorReset(t *testing.T) {
	a := NewAllocator(zerolog.Nop(), nil)
	_, err := a.Resolve("pin-5", "T3", 8, KindServo)
	require.NoError(t, err)
	a.Reset()
	assert.False(t, a.State("T3").InUse)
	_, err = a.Resolve("pin-6", "T3", 8, KindServo)
	assert.NoError(t, err)
}
