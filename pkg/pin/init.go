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

import (
	"os"
	"path"
	"strconv"

	"github.com/pkg/errors"

	"github.com/binkynet/LininoIO/pkg/layout"
	"github.com/binkynet/LininoIO/pkg/sysfs"
)

// Init prepares the device files of the pin and caches the handles needed
// for reads and writes. Resources that have not been exported yet are
// exported on demand.
// The Ready channel is closed when Init returns. Failures leave the pin
// in a degraded state (missing handles) and are logged.
func (p *Pin) Init() {
	defer p.readyOnce.Do(func() { close(p.ready) })

	lc := p.config.Layout
	switch {
	case !lc.IsAvailable():
		p.log.Debug().Msg("Pin is not available on this board")
	case lc.IsAnalog():
		p.initAnalog()
	default:
		p.initDigital()
		if pwm := p.pwmDescriptor(); pwm != nil {
			p.initPWM(pwm)
		}
	}
}

// initDigital exports the GPIO (when needed), puts it in a known state
// (output, edge both, low) and caches the value handle.
func (p *Pin) initDigital() {
	f, err := p.fs.OpenFile(p.paths.Value, os.O_RDWR, 0)
	if sysfs.IsNotExported(err) {
		exportCounters.WithLabelValues("gpio").Inc()
		exportPath := path.Join(p.config.Roots.GPIO, "export")
		if err := p.fs.WriteFile(exportPath, []byte(strconv.Itoa(p.config.Layout.ExportID))); err != nil {
			p.exportFailed(err, exportPath)
		}
	} else if err != nil {
		p.exportFailed(err, p.paths.Value)
	}

	if err := p.fs.Chmod(p.paths.Value, rwrwrw); err != nil {
		p.log.Debug().Err(err).Str("path", p.paths.Value).Msg("Chmod failed")
	}
	p.writePath(p.paths.Direction, Output.Direction())
	p.writePath(p.paths.Edge, "both")
	p.writePath(p.paths.Value, "0")
	p.Observe(Low)

	if f == nil {
		if f, err = p.fs.OpenFile(p.paths.Value, os.O_RDWR, 0); err != nil {
			p.exportFailed(err, p.paths.Value)
			return
		}
	}
	p.valueFile = f
}

// initPWM exports the PWM channel (when needed), zeroes the duty cycle,
// sets the maximum period & resolution and caches the period and duty
// handles.
func (p *Pin) initPWM(pwm *layout.PWM) {
	periodFile, err := p.fs.OpenFile(p.paths.Period, os.O_RDWR, 0)
	if sysfs.IsNotExported(err) {
		exportCounters.WithLabelValues("pwm").Inc()
		exportPath := path.Join(p.config.Roots.PWM, "export")
		if err := p.fs.WriteFile(exportPath, []byte(strconv.Itoa(pwm.Channel))); err != nil {
			p.exportFailed(err, exportPath)
		}
	} else if err != nil {
		p.exportFailed(err, p.paths.Period)
	}

	for _, name := range []string{p.paths.Duty, p.paths.Enable, p.paths.Period, p.paths.Resolution} {
		if err := p.fs.Chmod(name, rwrwrw); err != nil {
			p.log.Debug().Err(err).Str("path", name).Msg("Chmod failed")
		}
	}
	p.writePath(p.paths.Duty, "0")
	if p.writePath(p.paths.Period, strconv.FormatInt(pwm.MaxPeriod, 10)) {
		p.period = pwm.MaxPeriod
	}
	p.writePath(p.paths.Resolution, strconv.FormatInt(pwm.Resolution, 10))

	if periodFile == nil {
		if periodFile, err = p.fs.OpenFile(p.paths.Period, os.O_RDWR, 0); err != nil {
			p.exportFailed(err, p.paths.Period)
		}
	}
	p.periodFile = periodFile
	if p.dutyFile, err = p.fs.OpenFile(p.paths.Duty, os.O_RDWR, 0); err != nil {
		p.exportFailed(err, p.paths.Duty)
	}
}

// initAnalog caches a read handle on the raw ADC value file.
func (p *Pin) initAnalog() {
	f, err := p.fs.OpenFile(p.paths.Value, os.O_RDONLY, 0)
	if err != nil {
		p.exportFailed(err, p.paths.Value)
		return
	}
	p.valueFile = f
}

// exportFailed logs a failure to export or open a device file.
func (p *Pin) exportFailed(err error, name string) {
	exportErrorCounter.Inc()
	p.log.Warn().
		Err(errors.Wrapf(ResourceExportError, "%s", err)).
		Str("path", name).
		Msg("Failed to prepare device file")
}
