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

package eventloop

import "sync"

// Barrier signals completion once a number of asynchronous steps have all
// finished.
// Steps are registered with Add and finished with Done. Once all steps
// have been registered, Seal is called. The completion callback is invoked
// exactly once, when the barrier is sealed and no steps are pending.
type Barrier struct {
	mutex      sync.Mutex
	pending    int
	sealed     bool
	completed  bool
	onComplete func()
}

// NewBarrier creates a barrier that calls the given callback on completion.
func NewBarrier(onComplete func()) *Barrier {
	return &Barrier{onComplete: onComplete}
}

// Add registers n pending steps.
func (b *Barrier) Add(n int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.sealed {
		panic("eventloop: Add called on sealed barrier")
	}
	b.pending += n
}

// Done marks one step as finished.
func (b *Barrier) Done() {
	b.mutex.Lock()
	if b.pending == 0 {
		b.mutex.Unlock()
		panic("eventloop: Done called more often than Add")
	}
	b.pending--
	fire := b.checkComplete()
	b.mutex.Unlock()
	if fire {
		b.onComplete()
	}
}

// Seal indicates that no more steps will be added.
func (b *Barrier) Seal() {
	b.mutex.Lock()
	b.sealed = true
	fire := b.checkComplete()
	b.mutex.Unlock()
	if fire {
		b.onComplete()
	}
}

// Completed returns true once the barrier has fired.
func (b *Barrier) Completed() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.completed
}

// checkComplete returns true when the completion callback must be invoked.
// Mutex must be held.
func (b *Barrier) checkComplete() bool {
	if b.completed || !b.sealed || b.pending > 0 {
		return false
	}
	b.completed = true
	return b.onComplete != nil
}
