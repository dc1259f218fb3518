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

import "github.com/binkynet/LininoIO/pkg/metrics"

const subsystem = "pin"

var (
	modeChangeCounters = metrics.MustRegisterCounterVec(subsystem, "mode_changes_total", "Number of mode changes", "pin", "mode")
	writeCounters      = metrics.MustRegisterCounterVec(subsystem, "writes_total", "Number of value writes", "pin")
	writeErrorCounters = metrics.MustRegisterCounterVec(subsystem, "write_errors_total", "Number of failed device file writes", "pin")
	exportCounters     = metrics.MustRegisterCounterVec(subsystem, "exports_total", "Number of export-on-demand attempts", "subsystem")
	exportErrorCounter = metrics.MustRegisterCounter(subsystem, "export_errors_total", "Number of failures to export or open device files")
)
