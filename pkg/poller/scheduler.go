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

// Package poller implements the periodic sampling of read subscriptions.
// A single recurring tick services all subscriptions of a runtime.
package poller

import (
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/binkynet/LininoIO/pkg/sysfs"
)

const (
	// MaxInterval is the longest sampling interval (in ms).
	MaxInterval = 65535
	// MinInterval is the shortest tick that is actually scheduled.
	MinInterval = time.Millisecond
	// DefaultInterval is used until SetInterval is called.
	DefaultInterval = time.Millisecond
)

// Poster executes functions on the goroutine that owns all device state.
type Poster interface {
	Post(fn func())
}

// Subscription is a recurring read of a single pin.
type Subscription struct {
	// Key identifies the subscription (e.g. "analog-read-0").
	// Adding a subscription with an existing key replaces it.
	Key string
	// Index of the pin on the board
	Index int
	// File to read from
	File sysfs.File
	// Bytes is the number of bytes to read
	Bytes int
	// Scale is an optional function applied to decoded values
	Scale func(float64) float64
	// Deliver is called with every sampled value
	Deliver func(value float64)
}

// Scheduler samples all subscriptions at a fixed interval.
type Scheduler struct {
	log    zerolog.Logger
	clock  clock.Clock
	poster Poster

	mutex    sync.Mutex
	interval time.Duration
	ticker   *clock.Ticker
	stop     chan struct{}
	subs     map[string]*entry
	active   bool
	pending  int32
}

type entry struct {
	Subscription
	id  uint64
	buf []byte
}

var nextEntryID uint64

// New creates a stopped scheduler.
// Sampling happens on the given poster.
func New(log zerolog.Logger, clk clock.Clock, poster Poster) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		log:      log.With().Str("component", "poller").Logger(),
		clock:    clk,
		poster:   poster,
		interval: DefaultInterval,
		subs:     make(map[string]*entry),
	}
}

// SetActive enables or disables sampling.
// Ticks are ignored while the scheduler is not active (no active board).
func (s *Scheduler) SetActive(active bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.active = active
}

// Add a subscription, replacing any existing subscription with the same key.
// The returned function removes the subscription. It has no effect once
// the subscription has been replaced.
func (s *Scheduler) Add(sub Subscription) (cancel func()) {
	if sub.Bytes <= 0 {
		sub.Bytes = 1
	}
	e := &entry{
		Subscription: sub,
		id:           atomic.AddUint64(&nextEntryID, 1),
		buf:          make([]byte, sub.Bytes),
	}
	s.mutex.Lock()
	s.subs[sub.Key] = e
	subscriptionsGauge.Set(float64(len(s.subs)))
	s.mutex.Unlock()

	s.log.Debug().Str("key", sub.Key).Int("pin", sub.Index).Msg("Added read subscription")
	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		if cur, found := s.subs[sub.Key]; found && cur.id == e.id {
			delete(s.subs, sub.Key)
			subscriptionsGauge.Set(float64(len(s.subs)))
		}
	}
}

// Remove the subscription with given key.
func (s *Scheduler) Remove(key string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.subs, key)
	subscriptionsGauge.Set(float64(len(s.subs)))
}

// Keys returns the sorted keys of all subscriptions.
func (s *Scheduler) Keys() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	result := make([]string, 0, len(s.subs))
	for k := range s.subs {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// Interval returns the current sampling interval.
func (s *Scheduler) Interval() time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.interval
}

// IsRunning returns true when the scheduler has been started.
func (s *Scheduler) IsRunning() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.ticker != nil
}

// Start the recurring tick. Calling Start on a running scheduler has no effect.
func (s *Scheduler) Start() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.startLocked()
}

// Stop the recurring tick.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stopLocked()
}

// SetInterval changes the sampling interval (in ms) and restarts the tick.
// The interval is clamped to 0..MaxInterval. An interval of 0 samples as
// fast as the minimum tick allows.
func (s *Scheduler) SetInterval(ms int) {
	if ms < 0 {
		ms = 0
	} else if ms > MaxInterval {
		ms = MaxInterval
	}
	d := time.Duration(ms) * time.Millisecond
	if d < MinInterval {
		d = MinInterval
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.interval = d
	s.stopLocked()
	s.startLocked()
	s.log.Debug().Dur("interval", d).Msg("Sampling interval changed")
}

// Reset stops the scheduler, removes all subscriptions and restores the
// default interval.
func (s *Scheduler) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.stopLocked()
	s.subs = make(map[string]*entry)
	s.interval = DefaultInterval
	s.active = false
	atomic.StoreInt32(&s.pending, 0)
	subscriptionsGauge.Set(0)
}

// startLocked starts the ticker. Mutex must be held.
func (s *Scheduler) startLocked() {
	if s.ticker != nil {
		return
	}
	t := s.clock.Ticker(s.interval)
	stop := make(chan struct{})
	s.ticker = t
	s.stop = stop
	go s.run(t, stop)
}

// stopLocked stops the ticker. Mutex must be held.
func (s *Scheduler) stopLocked() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.ticker = nil
	s.stop = nil
}

// run forwards ticks to the poster until stopped.
func (s *Scheduler) run(t *clock.Ticker, stop chan struct{}) {
	for {
		select {
		case <-t.C:
			tickCounter.Inc()
			// Skip ticks while the previous one is still waiting to be serviced.
			if atomic.CompareAndSwapInt32(&s.pending, 0, 1) {
				s.poster.Post(s.service)
			}
		case <-stop:
			return
		}
	}
}

// service samples all subscriptions. Runs on the poster.
func (s *Scheduler) service() {
	atomic.StoreInt32(&s.pending, 0)

	s.mutex.Lock()
	if !s.active || len(s.subs) == 0 {
		s.mutex.Unlock()
		return
	}
	entries := make([]*entry, 0, len(s.subs))
	for _, e := range s.subs {
		entries = append(entries, e)
	}
	s.mutex.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	for _, e := range entries {
		s.sample(e)
	}
}

// sample reads, decodes & delivers a single subscription.
func (s *Scheduler) sample(e *entry) {
	readCounter.Inc()
	var n int
	if e.File != nil {
		var err error
		n, err = e.File.ReadAt(e.buf, 0)
		if err != nil && err != io.EOF {
			readErrorCounter.Inc()
			s.log.Debug().Err(err).Str("key", e.Key).Msg("Read failed")
		}
	} else {
		readErrorCounter.Inc()
	}
	value, ok := Decode(e.buf[:n])
	if !ok {
		decodeFailureCounter.Inc()
	}
	if e.Scale != nil {
		value = e.Scale(value)
	}
	if e.Deliver != nil {
		e.Deliver(value)
	}
}

// Decode the content of a device file into a number.
// Content that is not a number decodes as 0 with ok set to false.
func Decode(data []byte) (value float64, ok bool) {
	text := strings.Trim(string(data), " \t\r\n\x00")
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
