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

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binkynet/LininoIO/pkg/hal"
	"github.com/binkynet/LininoIO/pkg/i2c"
	"github.com/binkynet/LininoIO/pkg/layout"
	"github.com/binkynet/LininoIO/pkg/pin"
	"github.com/binkynet/LininoIO/pkg/sysfs"
)

// newTestRuntime creates a runtime with a ready Linino One board
// on an in-memory device tree.
func newTestRuntime(t *testing.T) (*hal.Runtime, *sysfs.MemFileSystem) {
	l, err := layout.DefaultCatalog().Lookup("")
	require.NoError(t, err)
	roots := pin.Roots{GPIO: "/gpio", PWM: "/pwm", AIO: "/aio"}
	fs := hal.NewSimulatedFileSystem(l, roots)
	rt := hal.NewRuntime(hal.Config{Roots: roots, SamplingInterval: 20}, hal.Dependencies{
		Log:        zerolog.Nop(),
		FS:         fs,
		Clock:      clock.NewMock(),
		OpenI2CBus: func() (i2c.Bus, error) { return i2c.NewVirtualBus(), nil },
	})
	t.Cleanup(func() { rt.Close() })
	b, err := hal.NewBoard(rt, l)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	require.NoError(t, b.WaitReady(ctx))
	return rt, fs
}

func newTestServer(t *testing.T, rt Runtime) http.Handler {
	s, err := New(Config{Host: "127.0.0.1"}, zerolog.Nop(), rt)
	require.NoError(t, err)
	return s.Handler()
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type noBoardRuntime struct{}

func (noBoardRuntime) ActiveBoard() *hal.Board { return nil }
func (noBoardRuntime) SamplingDuration() time.Duration { return time.Millisecond }

func TestNewRequiresRuntime(t *testing.T) {
	_, err := New(Config{}, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, noBoardRuntime{})

	rec := serve(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())

	rec = serve(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBoardWithoutActiveBoard(t *testing.T) {
	h := newTestServer(t, noBoardRuntime{})
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, http.MethodGet, "/v1/board", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(h, http.MethodPost, "/v1/board/pins/13", `{"mode":"output","value":1}`).Code)
}

func TestGetBoard(t *testing.T) {
	rt, _ := newTestRuntime(t)
	h := newTestServer(t, rt)

	rec := serve(h, http.MethodGet, "/v1/board", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status BoardStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "Linino One", status.Name)
	assert.Equal(t, "linino_one", status.Key)
	assert.True(t, status.Ready)
	assert.Equal(t, int64(20), status.SamplingInterval)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, status.AnalogPins)
	require.Len(t, status.Pins, 20)
	assert.Equal(t, "A0", status.Pins[14].Address)
	assert.NotEmpty(t, status.Uptime)
}

func TestPostPin(t *testing.T) {
	rt, fs := newTestRuntime(t)
	h := newTestServer(t, rt)

	rec := serve(h, http.MethodPost, "/v1/board/pins/3", `{"mode":"pwm","value":255}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"0", "5000000"}, fs.Writes("/pwm/pwm0/duty_cycle"))

	rec = serve(h, http.MethodPost, "/v1/board/pins/2", `{"mode":"pwm","value":255}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/v1/board/pins/42", `{"mode":"output","value":1}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodPost, "/v1/board/pins/13", `{"mode":"bogus","value":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
