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

import "github.com/binkynet/LininoIO/pkg/metrics"

const subsystem = "board"

var (
	boardReadyGauge    = metrics.MustRegisterGauge(subsystem, "ready", "1 when the active board is ready, 0 otherwise")
	operationCounters  = metrics.MustRegisterCounterVec(subsystem, "operations_total", "Number of board operations", "op")
	operationErrors    = metrics.MustRegisterCounterVec(subsystem, "operation_errors_total", "Number of failed board operations", "op")
	errorEventsCounter = metrics.MustRegisterCounter(subsystem, "error_events_total", "Number of published error events")
)
