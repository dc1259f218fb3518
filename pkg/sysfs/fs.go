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

// Package sysfs provides access to the kernel device files used to control
// GPIO, PWM and ADC resources.
package sysfs

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// File is an open device file.
// Device files are read & written at offset 0; the kernel rewinds them.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Name() string
}

// FileSystem provides the operations needed on device files.
type FileSystem interface {
	// OpenFile opens the file with given name.
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	// WriteFile writes the given data to the file with given name (truncating).
	WriteFile(name string, data []byte) error
	// Chmod changes the permissions of the file with given name.
	Chmod(name string, mode os.FileMode) error
}

// NewOSFileSystem returns a FileSystem that accesses the real filesystem.
func NewOSFileSystem() FileSystem {
	return osFileSystem{}
}

type osFileSystem struct{}

// OpenFile opens the file with given name.
func (osFileSystem) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// WriteFile writes the given data to the file with given name.
// The file must already exist.
func (osFileSystem) WriteFile(name string, data []byte) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Chmod changes the permissions of the file with given name.
func (osFileSystem) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(name, mode)
}

// IsNotExported returns true if the given error indicates that a GPIO or
// PWM resource has not been exported yet.
// Unexported resources show up as a missing file or as a directory in place
// of the expected file.
func IsNotExported(err error) bool {
	if err == nil {
		return false
	}
	cause := errors.Cause(err)
	return errors.Is(cause, unix.ENOENT) || errors.Is(cause, unix.EISDIR) || os.IsNotExist(cause)
}
