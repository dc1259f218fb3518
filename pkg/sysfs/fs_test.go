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
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemFileSystemNotExported(t *testing.T) {
	fs := NewMemFileSystem()
	fs.AddDir("/sys/class/gpio/D3")

	_, err := fs.OpenFile("/sys/class/gpio/D3", os.O_RDWR, 0)
	require.Error(t, err)
	assert.True(t, IsNotExported(err))

	_, err = fs.OpenFile("/sys/class/gpio/D4/value", os.O_RDWR, 0)
	require.Error(t, err)
	assert.True(t, IsNotExported(errors.Wrap(err, "open")))

	assert.False(t, IsNotExported(nil))
	assert.False(t, IsNotExported(errors.New("other")))
}

func TestMemFileSystemReadWrite(t *testing.T) {
	fs := NewMemFileSystem()
	fs.SetFile("/a/value", "0\n")

	f, err := fs.OpenFile("/a/value", os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "/a/value", f.Name())

	_, err = f.WriteAt([]byte("1"), 0)
	require.NoError(t, err)
	buf := make([]byte, 8)
	n, err := f.ReadAt(buf, 0)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "1", string(buf[:n]))

	require.NoError(t, fs.WriteFile("/a/value", []byte("0")))
	assert.Equal(t, []string{"1", "0"}, fs.Writes("/a/value"))
	content, found := fs.Content("/a/value")
	assert.True(t, found)
	assert.Equal(t, "0", content)

	require.NoError(t, fs.Chmod("/a/value", 0666))
	assert.Equal(t, os.FileMode(0666), fs.Mode("/a/value"))
}

func TestMemFileSystemReadOnly(t *testing.T) {
	fs := NewMemFileSystem()
	fs.SetFile("/raw", "512")
	f, err := fs.OpenFile("/raw", os.O_RDONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("1"), 0)
	assert.Error(t, err)
}

func TestMemFileSystemFailAndOnWrite(t *testing.T) {
	fs := NewMemFileSystem()
	fs.SetFile("/export", "")
	fs.OnWrite(func(name, data string) {
		if name == "/export" {
			fs.SetFile("/gpio"+data+"/value", "0")
		}
	})
	require.NoError(t, fs.WriteFile("/export", []byte("7")))
	_, found := fs.Content("/gpio7/value")
	assert.True(t, found)

	fs.Fail("/export", os.ErrPermission)
	assert.Error(t, fs.WriteFile("/export", []byte("8")))
	fs.Fail("/export", nil)
	assert.NoError(t, fs.WriteFile("/export", []byte("8")))
}

func TestOSFileSystem(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "value")
	require.NoError(t, os.WriteFile(name, []byte("old content"), 0644))

	fs := NewOSFileSystem()
	require.NoError(t, fs.WriteFile(name, []byte("1")))
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	err = fs.WriteFile(filepath.Join(dir, "missing"), []byte("1"))
	require.Error(t, err)
	assert.True(t, IsNotExported(err))

	_, err = fs.OpenFile(dir, os.O_RDWR, 0)
	require.Error(t, err)
	assert.True(t, IsNotExported(err))
}
