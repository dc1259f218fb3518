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
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/binkynet/LininoIO/pkg/hal"
	"github.com/binkynet/LininoIO/pkg/pin"
)

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	Port int
}

// Runtime is the part of the pin runtime served by the HTTP server.
type Runtime interface {
	// ActiveBoard returns the active board or nil if there is none.
	ActiveBoard() *hal.Board
	// SamplingDuration returns the interval at which reads are sampled.
	SamplingDuration() time.Duration
}

// BoardStatus is the response of GET /v1/board.
type BoardStatus struct {
	Name             string        `json:"name"`
	Key              string        `json:"key"`
	Ready            bool          `json:"ready"`
	CreatedAt        time.Time     `json:"created_at"`
	Uptime           string        `json:"uptime"`
	SamplingInterval int64         `json:"sampling_interval_ms"`
	AnalogPins       []int         `json:"analog_pins"`
	Pins             []hal.PinInfo `json:"pins"`
}

// PinCommand is the request body of POST /v1/board/pins/:address.
type PinCommand struct {
	Mode  string  `json:"mode"`
	Value float64 `json:"value"`
}

// Server runs the HTTP server for the service.
type Server struct {
	Config
	log     zerolog.Logger
	runtime Runtime
}

// New configures a new Server.
func New(cfg Config, log zerolog.Logger, runtime Runtime) (*Server, error) {
	if runtime == nil {
		return nil, errors.New("runtime is nil")
	}
	return &Server{
		Config:  cfg,
		log:     log.With().Str("component", "server").Logger(),
		runtime: runtime,
	}, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	e.GET("/health", healthHandler)
	e.GET("/v1/board", s.getBoard)
	e.POST("/v1/board/pins/:address", s.postPin)
	return e
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on address %s", httpAddr)
	}
	httpSrv := http.Server{
		Handler: s.Handler(),
	}

	// Serve apis
	log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
		log.Debug().Str("address", httpAddr).Msg("Done Serving HTTP")
	}()

	// Wait until context closed
	select {
	case <-ctx.Done():
	case err := <-errs:
		return errors.Wrap(err, "failed to serve HTTP server")
	}

	log.Info().Msg("Closing server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func healthHandler(c echo.Context) error {
	return c.String(http.StatusOK, "OK\n")
}

// activeBoard returns the active board or a 503 error.
func (s *Server) activeBoard() (*hal.Board, error) {
	b := s.runtime.ActiveBoard()
	if b == nil {
		return nil, echo.NewHTTPError(http.StatusServiceUnavailable, "no active board")
	}
	return b, nil
}

func (s *Server) getBoard(c echo.Context) error {
	b, err := s.activeBoard()
	if err != nil {
		return err
	}
	status := BoardStatus{
		Name:             b.Name(),
		Key:              b.Layout().Key,
		Ready:            b.IsReady(),
		CreatedAt:        b.CreatedAt(),
		Uptime:           humanize.RelTime(b.CreatedAt(), time.Now(), "", ""),
		SamplingInterval: s.runtime.SamplingDuration().Milliseconds(),
		AnalogPins:       b.AnalogPins(),
		Pins:             b.Pins(),
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) postPin(c echo.Context) error {
	b, err := s.activeBoard()
	if err != nil {
		return err
	}
	var cmd PinCommand
	if err := c.Bind(&cmd); err != nil {
		return err
	}
	mode, err := pin.ParseMode(cmd.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	address := c.Param("address")
	if err := b.Command(c.Request().Context(), address, mode, cmd.Value); err != nil {
		return toHTTPError(err)
	}
	s.log.Debug().
		Str("pin", address).
		Str("mode", mode.String()).
		Float64("value", cmd.Value).
		Msg("Applied pin command")
	return c.NoContent(http.StatusNoContent)
}

// toHTTPError converts board errors into HTTP errors.
func toHTTPError(err error) error {
	switch {
	case hal.IsInvalidPin(err), pin.IsInvalidMode(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case hal.IsUnsupportedCapability(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case hal.IsNotReady(err), hal.IsClosed(err):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}
