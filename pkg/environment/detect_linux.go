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

package environment

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

const cpuInfoPath = "/proc/cpuinfo"

// DetectBoardName detects the name of the board based on the environment.
// It falls back to the default board name when detection fails.
func DetectBoardName(log zerolog.Logger) string {
	var name unix.Utsname
	if err := unix.Uname(&name); err == nil {
		log.Debug().
			Str("machine", unix.ByteSliceToString(name.Machine[:])).
			Str("release", unix.ByteSliceToString(name.Release[:])).
			Msg("Detected kernel")
	}
	data, err := os.ReadFile(cpuInfoPath)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read cpuinfo")
		return DefaultBoardName
	}
	return boardNameFromCPUInfo(string(data))
}

// boardNameFromCPUInfo extracts the board name from the "machine" line of
// /proc/cpuinfo ("machine : Linino One").
func boardNameFromCPUInfo(cpuinfo string) string {
	for _, line := range strings.Split(cpuinfo, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found || strings.TrimSpace(key) != "machine" {
			continue
		}
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return DefaultBoardName
}
