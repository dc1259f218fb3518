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
	"github.com/binkynet/LininoIO/pkg/metrics"
)

const (
	subSystem = "i2c"
)

var (
	// Total number of times Bus.Execute is called
	executeCounters = metrics.MustRegisterCounterVec(subSystem,
		"execute_total",
		"Total number of times Bus.Execute is called",
		"address")
	// Total number of times Bus.Execute failed
	executeErrorCounters = metrics.MustRegisterCounterVec(subSystem,
		"execute_error_total",
		"Total number of times Bus.Execute failed",
		"address")
	recoveryAttemptsTotal = metrics.MustRegisterCounter(subSystem,
		"recovery_attempts_total",
		"Total number of bus lockup recovery attempts")
	recoveryFailedTotal = metrics.MustRegisterCounter(subSystem,
		"recovery_failed_total",
		"Total number of failed bus lockup recoveries")
	recoverySucceededTotal = metrics.MustRegisterCounter(subSystem,
		"recovery_succeeded_total",
		"Total number of successful bus lockup recoveries")
	recoverySkippedTotal = metrics.MustRegisterCounter(subSystem,
		"recovery_skipped_total",
		"Total number of bus lockup recoveries skipped because recovery is disabled")
	// Total number of read requests issued by channels
	readRequestCounters = metrics.MustRegisterCounterVec(subSystem,
		"read_requests_total",
		"Total number of read requests issued",
		"address", "continuous")
)
