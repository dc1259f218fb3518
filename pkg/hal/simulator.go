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

import (
	"path"
	"strconv"

	"github.com/binkynet/LininoIO/pkg/layout"
	"github.com/binkynet/LininoIO/pkg/pin"
	"github.com/binkynet/LininoIO/pkg/sysfs"
)

// NewSimulatedFileSystem creates an in-memory device tree for the given
// layout in which nothing has been exported yet.
// Writes to the export files create the device files the way the kernel does.
func NewSimulatedFileSystem(l *layout.Layout, roots pin.Roots) *sysfs.MemFileSystem {
	fs := sysfs.NewMemFileSystem()
	gpioExport := path.Join(roots.GPIO, "export")
	pwmExport := path.Join(roots.PWM, "export")
	fs.SetFile(gpioExport, "")
	fs.SetFile(pwmExport, "")
	fs.SetFile(path.Join(roots.AIO, "enable"), "0")
	for _, pc := range l.Analog {
		if pc.IsAvailable() {
			fs.SetFile(path.Join(roots.AIO, "in_voltage_"+pc.Name+"_raw"), "0")
		}
	}
	exportIDs := make(map[string]string)
	for _, pc := range l.Digital {
		if pc.IsAvailable() {
			exportIDs[strconv.Itoa(pc.ExportID)] = pc.Name
		}
	}
	fs.OnWrite(func(name, data string) {
		switch name {
		case gpioExport:
			if dir, found := exportIDs[data]; found {
				for _, f := range []string{"value", "direction", "edge"} {
					fs.SetFile(path.Join(roots.GPIO, dir, f), "0")
				}
			}
		case pwmExport:
			if _, err := strconv.Atoi(data); err == nil {
				for _, f := range []string{"period", "duty_cycle", "enable", "resolution"} {
					fs.SetFile(path.Join(roots.PWM, "pwm"+data, f), "0")
				}
			}
		}
	})
	return fs
}
