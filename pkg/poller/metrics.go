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

import "github.com/binkynet/LininoIO/pkg/metrics"

const subsystem = "poller"

var (
	tickCounter          = metrics.MustRegisterCounter(subsystem, "ticks_total", "Number of sampling ticks")
	readCounter          = metrics.MustRegisterCounter(subsystem, "reads_total", "Number of subscription reads")
	readErrorCounter     = metrics.MustRegisterCounter(subsystem, "read_errors_total", "Number of failed subscription reads")
	decodeFailureCounter = metrics.MustRegisterCounter(subsystem, "decode_failures_total", "Number of values that could not be decoded")
	subscriptionsGauge   = metrics.MustRegisterGauge(subsystem, "subscriptions", "Number of active read subscriptions")
)
