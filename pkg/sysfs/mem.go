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

package sysfs

import (
	"io"
	"os"
	"path"
	"sort"
	"sync"

	"golang.org/x/sys/unix"
)

// MemFileSystem is an in-memory FileSystem, used to run without hardware
// and in tests.
type MemFileSystem struct {
	mutex   sync.Mutex
	files   map[string]*memFile
	dirs    map[string]struct{}
	writes  map[string][]string
	modes   map[string]os.FileMode
	failing map[string]error
	onWrite func(name string, data string)
}

type memFile struct {
	data []byte
}

// NewMemFileSystem returns a new, empty in-memory file system.
func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{
		files:   make(map[string]*memFile),
		dirs:    make(map[string]struct{}),
		writes:  make(map[string][]string),
		modes:   make(map[string]os.FileMode),
		failing: make(map[string]error),
	}
}

// SetFile creates or replaces the file with given name.
func (fs *MemFileSystem) SetFile(name, content string) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	fs.files[path.Clean(name)] = &memFile{data: []byte(content)}
}

// AddDir creates a directory with given name.
// Opening a directory as file fails with EISDIR.
func (fs *MemFileSystem) AddDir(name string) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	fs.dirs[path.Clean(name)] = struct{}{}
}

// Remove the file or directory with given name.
func (fs *MemFileSystem) Remove(name string) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	name = path.Clean(name)
	delete(fs.files, name)
	delete(fs.dirs, name)
}

// Fail makes all operations on the file with given name fail with given error.
// Pass a nil error to clear the failure.
func (fs *MemFileSystem) Fail(name string, err error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	if err == nil {
		delete(fs.failing, path.Clean(name))
	} else {
		fs.failing[path.Clean(name)] = err
	}
}

// OnWrite sets a callback that is invoked after every write.
// Used to simulate the kernel creating files on export.
func (fs *MemFileSystem) OnWrite(cb func(name, data string)) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	fs.onWrite = cb
}

// Content returns the current content of the file with given name.
func (fs *MemFileSystem) Content(name string) (string, bool) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	f, found := fs.files[path.Clean(name)]
	if !found {
		return "", false
	}
	return string(f.data), true
}

// Writes returns all data written to the file with given name, in order.
func (fs *MemFileSystem) Writes(name string) []string {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	return append([]string(nil), fs.writes[path.Clean(name)]...)
}

// Mode returns the last mode set with Chmod for the file with given name.
func (fs *MemFileSystem) Mode(name string) os.FileMode {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	return fs.modes[path.Clean(name)]
}

// Files returns the sorted names of all files.
func (fs *MemFileSystem) Files() []string {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	result := make([]string, 0, len(fs.files))
	for name := range fs.files {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// lookup a file. Caller must hold the mutex.
func (fs *MemFileSystem) lookup(op, name string) (*memFile, error) {
	if err, found := fs.failing[name]; found {
		return nil, &os.PathError{Op: op, Path: name, Err: err}
	}
	if _, found := fs.dirs[name]; found {
		return nil, &os.PathError{Op: op, Path: name, Err: unix.EISDIR}
	}
	f, found := fs.files[name]
	if !found {
		return nil, &os.PathError{Op: op, Path: name, Err: unix.ENOENT}
	}
	return f, nil
}

// OpenFile opens an existing file. Files are never created.
func (fs *MemFileSystem) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	name = path.Clean(name)
	if _, err := fs.lookup("open", name); err != nil {
		return nil, err
	}
	return &memHandle{fs: fs, name: name, writable: flag&(os.O_WRONLY|os.O_RDWR) != 0}, nil
}

// WriteFile replaces the content of an existing file.
func (fs *MemFileSystem) WriteFile(name string, data []byte) error {
	return fs.write("write", path.Clean(name), data)
}

// Chmod records the mode of an existing file.
func (fs *MemFileSystem) Chmod(name string, mode os.FileMode) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	name = path.Clean(name)
	if _, err := fs.lookup("chmod", name); err != nil {
		return err
	}
	fs.modes[name] = mode
	return nil
}

func (fs *MemFileSystem) write(op, name string, data []byte) error {
	fs.mutex.Lock()
	f, err := fs.lookup(op, name)
	if err != nil {
		fs.mutex.Unlock()
		return err
	}
	f.data = append([]byte(nil), data...)
	fs.writes[name] = append(fs.writes[name], string(data))
	cb := fs.onWrite
	fs.mutex.Unlock()
	if cb != nil {
		cb(name, string(data))
	}
	return nil
}

// memHandle is an open file of a MemFileSystem.
type memHandle struct {
	fs       *MemFileSystem
	name     string
	writable bool
	closed   bool
}

func (h *memHandle) Name() string { return h.name }

// ReadAt reads the current content of the file.
func (h *memHandle) ReadAt(p []byte, off int64) (int, error) {
	if h.closed {
		return 0, os.ErrClosed
	}
	h.fs.mutex.Lock()
	defer h.fs.mutex.Unlock()
	f, err := h.fs.lookup("read", h.name)
	if err != nil {
		return 0, err
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt replaces the content of the file.
// Sysfs attributes are rewritten as a whole, so the offset is ignored.
func (h *memHandle) WriteAt(p []byte, off int64) (int, error) {
	if h.closed {
		return 0, os.ErrClosed
	}
	if !h.writable {
		return 0, &os.PathError{Op: "write", Path: h.name, Err: unix.EBADF}
	}
	if err := h.fs.write("write", h.name, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (h *memHandle) Close() error {
	h.closed = true
	return nil
}

