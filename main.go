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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/LininoIO/pkg/environment"
	"github.com/binkynet/LininoIO/pkg/hal"
	"github.com/binkynet/LininoIO/pkg/i2c"
	"github.com/binkynet/LininoIO/pkg/layout"
	"github.com/binkynet/LininoIO/pkg/logging"
	"github.com/binkynet/LininoIO/pkg/mqttbridge"
	"github.com/binkynet/LininoIO/pkg/server"
)

const (
	projectName       = "LininoIO"
	defaultServerPort = 7130
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
	maskAny        = errors.WithStack
)

func main() {
	var levelFlag string
	var boardName string
	var catalogPath string
	var serverHost string
	var serverPort int
	var samplingInterval int
	var virtual bool
	var mqttBroker string
	var mqttTopicPrefix string
	conf := hal.DefaultConfig()

	pflag.StringVarP(&levelFlag, "level", "l", "debug", "Set log level")
	pflag.StringVarP(&boardName, "board", "b", "", "Name of the board (detected when empty)")
	pflag.StringVar(&catalogPath, "catalog", "", "Path of a JSON board catalog (embedded catalog when empty)")
	pflag.StringVar(&serverHost, "host", "0.0.0.0", "Host address the HTTP server will listen on")
	pflag.IntVar(&serverPort, "port", defaultServerPort, "Port the HTTP server will listen on")
	pflag.IntVar(&samplingInterval, "sampling-interval", conf.SamplingInterval, "Interval (in ms) at which reads are sampled")
	pflag.StringVar(&conf.I2C.Location, "i2c-device", conf.I2C.Location, "Device file of the I2C bus")
	pflag.IntVar(&conf.I2C.SCLPin, "i2c-scl-pin", 0, "GPIO pin of the I2C clock line, used to recover from bus lockups")
	pflag.BoolVar(&conf.I2C.RecoverFromLockup, "i2c-recover", false, "Recover the I2C bus from lockups")
	pflag.BoolVar(&virtual, "virtual", false, "Use a simulated board instead of the device files")
	pflag.StringVar(&mqttBroker, "mqtt-broker", "", "Address (host:port) of an MQTT broker to publish reads on")
	pflag.StringVar(&mqttTopicPrefix, "mqtt-topic-prefix", mqttbridge.DefaultTopicPrefix, "Prefix of all MQTT topics")
	pflag.Parse()

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	mqttLog := logging.NewMQTTWriter(ctx)
	logger, err := logging.New(levelFlag, mqttLog)
	if err != nil {
		Exitf("Invalid log level: %v\n", err)
	}
	conf.SamplingInterval = samplingInterval

	// Load board layout
	catalog := layout.DefaultCatalog()
	if catalogPath != "" {
		catalog, err = layout.LoadCatalog(catalogPath)
		if err != nil {
			Exitf("Failed to load catalog: %v\n", err)
		}
	}
	if boardName == "" && !virtual {
		boardName = environment.DetectBoardName(logger)
	}
	l, err := catalog.Lookup(boardName)
	if err != nil {
		Exitf("Failed to find board: %v\n", err)
	}

	deps := hal.Dependencies{
		Log: logger,
	}
	if virtual {
		deps.FS = hal.NewSimulatedFileSystem(l, conf.Roots)
		bus := i2c.NewVirtualBus()
		deps.OpenI2CBus = func() (i2c.Bus, error) { return bus, nil }
	}
	rt := hal.NewRuntime(conf, deps)
	defer rt.Close()

	board, err := hal.NewBoard(rt, l)
	if err != nil {
		Exitf("Failed to create board: %v\n", err)
	}

	httpServer, err := server.New(server.Config{
		Host: serverHost,
		Port: serverPort,
	}, logger, rt)
	if err != nil {
		Exitf("Failed to initialize Server: %v\n", err)
	}

	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return waitReady(ctx, logger, board) })
	g.Go(func() error { return httpServer.Run(ctx) })
	if mqttBroker != "" {
		bridge, err := mqttbridge.New(logger, mqttbridge.Config{
			BrokerAddress: mqttBroker,
			ClientID:      fmt.Sprintf("lininoio-%s", l.Key),
			TopicPrefix:   mqttTopicPrefix,
		}, board)
		if err != nil {
			Exitf("Failed to initialize MQTT bridge: %v\n", err)
		}
		mqttLog.SetDestination(bridge.LogTopic(), bridge)
		mqttLog.Enable(true)
		g.Go(func() error { return bridge.Run(ctx) })
	}
	if err := g.Wait(); err != nil {
		Exitf("Service run failed: %#v", err)
	}
}

// waitReady logs once the board is ready.
func waitReady(ctx context.Context, log zerolog.Logger, board *hal.Board) error {
	if err := board.WaitReady(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return maskAny(err)
	}
	log.Info().
		Str("board", board.Name()).
		Ints("analog-pins", board.AnalogPins()).
		Msg("Board is ready")
	return nil
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
