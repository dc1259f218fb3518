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

// Package eventloop provides a single goroutine executor that serializes
// all access to pin state & device files.
package eventloop

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/binkynet/LininoIO/pkg/metrics"
)

var (
	queueLengthGauges = metrics.MustRegisterGaugeVec("eventloop", "queue_length", "Number of functions waiting to be executed", "loop")
	executedCounters  = metrics.MustRegisterCounterVec("eventloop", "executed_total", "Number of functions executed", "loop")
)

// Loop executes posted functions one at a time, in the order they were
// posted, on the goroutine that runs Run.
type Loop struct {
	name  string
	log   zerolog.Logger
	mutex sync.Mutex
	queue []func()
	wake  chan struct{}
}

// New creates a new loop with given name.
// The loop does not execute anything until Run is called.
func New(log zerolog.Logger, name string) *Loop {
	return &Loop{
		name: name,
		log:  log.With().Str("component", "eventloop").Str("loop", name).Logger(),
		wake: make(chan struct{}, 1),
	}
}

// Name returns the name of the loop.
func (l *Loop) Name() string { return l.name }

// Post the given function for execution on the loop.
// Post never blocks.
func (l *Loop) Post(fn func()) {
	l.mutex.Lock()
	l.queue = append(l.queue, fn)
	queueLengthGauges.WithLabelValues(l.name).Set(float64(len(l.queue)))
	l.mutex.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
		// Already awake
	}
}

// Do executes the given function on the loop and waits for its result.
// Do must not be called from a function that runs on the same loop.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	l.Post(func() {
		if ctx.Err() != nil {
			// Caller is no longer interested
			done <- ctx.Err()
			return
		}
		done <- fn()
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush waits until all functions posted before this call have been executed.
func (l *Loop) Flush(ctx context.Context) error {
	return l.Do(ctx, func() error { return nil })
}

// Run executes posted functions until the given context is canceled.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Debug().Msg("Loop started")
	defer l.log.Debug().Msg("Loop stopped")
	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			fn()
			executedCounters.WithLabelValues(l.name).Inc()
			if ctx.Err() != nil {
				return nil
			}
		}
		select {
		case <-l.wake:
			// Continue
		case <-ctx.Done():
			return nil
		}
	}
}

// next removes the first function from the queue.
func (l *Loop) next() (func(), bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	queueLengthGauges.WithLabelValues(l.name).Set(float64(len(l.queue)))
	return fn, true
}
