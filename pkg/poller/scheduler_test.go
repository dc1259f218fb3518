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

package poller

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/LininoIO/pkg/sysfs"
)

// inline executes posted functions immediately.
type inline struct{}

func (inline) Post(fn func()) { fn() }

type recorder struct {
	mutex  sync.Mutex
	values []float64
}

func (r *recorder) deliver(v float64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.values = append(r.values, v)
}

func (r *recorder) get() []float64 {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]float64(nil), r.values...)
}

func openFile(t *testing.T, fs *sysfs.MemFileSystem, name, content string) sysfs.File {
	fs.SetFile(name, content)
	f, err := fs.OpenFile(name, os.O_RDONLY, 0)
	require.NoError(t, err)
	return f
}

func TestDecode(t *testing.T) {
	v, ok := Decode([]byte("512\n"))
	assert.True(t, ok)
	assert.Equal(t, 512.0, v)
	v, ok = Decode([]byte("1\x00\x00\x00"))
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)
	for _, invalid := range []string{"", "abc", "NaN", "\x00"} {
		v, ok := Decode([]byte(invalid))
		assert.False(t, ok, invalid)
		assert.Equal(t, 0.0, v, invalid)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s := New(zerolog.Nop(), clock.NewMock(), inline{})
	assert.False(t, s.IsRunning())
	s.Start()
	first := s.ticker
	s.Start()
	assert.Same(t, first, s.ticker)
	assert.True(t, s.IsRunning())
	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestSetIntervalRestarts(t *testing.T) {
	s := New(zerolog.Nop(), clock.NewMock(), inline{})
	assert.Equal(t, DefaultInterval, s.Interval())
	s.Start()
	first := s.ticker
	s.SetInterval(50)
	assert.Equal(t, 50*time.Millisecond, s.Interval())
	assert.True(t, s.IsRunning())
	assert.NotSame(t, first, s.ticker)

	s.SetInterval(0)
	assert.Equal(t, MinInterval, s.Interval())
	s.SetInterval(100000)
	assert.Equal(t, MaxInterval*time.Millisecond, s.Interval())
	s.SetInterval(-3)
	assert.Equal(t, MinInterval, s.Interval())
	s.Stop()
}

func TestServiceDeliversDecodedValues(t *testing.T) {
	fs := sysfs.NewMemFileSystem()
	s := New(zerolog.Nop(), clock.NewMock(), inline{})
	s.SetActive(true)

	var analog, digital recorder
	s.Add(Subscription{Key: "analog-read-0", Index: 14, File: openFile(t, fs, "/raw", "1023"), Bytes: 4, Deliver: analog.deliver})
	s.Add(Subscription{Key: "digital-read-2", Index: 2, File: openFile(t, fs, "/value", "1\n"), Bytes: 1, Deliver: digital.deliver})
	s.service()
	assert.Equal(t, []float64{1023}, analog.get())
	assert.Equal(t, []float64{1}, digital.get())

	fs.SetFile("/raw", "garbage")
	s.service()
	assert.Equal(t, []float64{1023, 0}, analog.get())
}

func TestServiceScales(t *testing.T) {
	fs := sysfs.NewMemFileSystem()
	s := New(zerolog.Nop(), clock.NewMock(), inline{})
	s.SetActive(true)
	var r recorder
	s.Add(Subscription{
		Key:     "analog-read-1",
		File:    openFile(t, fs, "/raw", "512"),
		Bytes:   4,
		Scale:   func(v float64) float64 { return v / 2 },
		Deliver: r.deliver,
	})
	s.service()
	assert.Equal(t, []float64{256}, r.get())
}

func TestServiceInactive(t *testing.T) {
	fs := sysfs.NewMemFileSystem()
	s := New(zerolog.Nop(), clock.NewMock(), inline{})
	var r recorder
	s.Add(Subscription{Key: "k", File: openFile(t, fs, "/raw", "1"), Bytes: 1, Deliver: r.deliver})
	s.service()
	assert.Empty(t, r.get())
	s.SetActive(true)
	s.service()
	assert.Len(t, r.get(), 1)
}

func TestSubscriptionReplaceAndCancel(t *testing.T) {
	fs := sysfs.NewMemFileSystem()
	s := New(zerolog.Nop(), clock.NewMock(), inline{})
	s.SetActive(true)
	file := openFile(t, fs, "/raw", "7")

	var first, second recorder
	cancelFirst := s.Add(Subscription{Key: "k", File: file, Bytes: 1, Deliver: first.deliver})
	cancelSecond := s.Add(Subscription{Key: "k", File: file, Bytes: 1, Deliver: second.deliver})
	s.service()
	assert.Empty(t, first.get())
	assert.Equal(t, []float64{7}, second.get())

	// Canceling a replaced subscription has no effect
	cancelFirst()
	assert.Equal(t, []string{"k"}, s.Keys())
	cancelSecond()
	assert.Empty(t, s.Keys())
}

func TestTicksSampleSubscriptions(t *testing.T) {
	fs := sysfs.NewMemFileSystem()
	mock := clock.NewMock()
	s := New(zerolog.Nop(), mock, inline{})
	s.SetActive(true)
	var r recorder
	s.Add(Subscription{Key: "k", File: openFile(t, fs, "/raw", "3"), Bytes: 1, Deliver: r.deliver})
	s.SetInterval(10)
	defer s.Stop()

	require.Eventually(t, func() bool {
		mock.Add(10 * time.Millisecond)
		return len(r.get()) > 0
	}, time.Second*5, time.Millisecond*10)
	assert.Equal(t, 3.0, r.get()[0])
}

func TestReset(t *testing.T) {
	s := New(zerolog.Nop(), clock.NewMock(), inline{})
	s.Add(Subscription{Key: "k"})
	s.SetInterval(20)
	s.Reset()
	assert.False(t, s.IsRunning())
	assert.Empty(t, s.Keys())
	assert.Equal(t, DefaultInterval, s.Interval())
}
