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

package mqttbridge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/LininoIO/pkg/hal"
	"github.com/binkynet/LininoIO/pkg/pin"
)

const (
	// DefaultTopicPrefix is the topic prefix used when none is configured.
	DefaultTopicPrefix = "lininoio/"

	publishTimeout = time.Millisecond * 200
	commandTimeout = time.Second * 5
	readTopic      = "read/"
	writeTopic     = "write/"
	errorTopic     = "error"
	logTopic       = "log"
)

// Config of the bridge.
type Config struct {
	// Address (host:port) of the MQTT broker
	BrokerAddress string
	// Client ID used to connect to the broker
	ClientID string
	// Prefix of all topics
	TopicPrefix string
}

// Board is the part of a board used by the bridge.
type Board interface {
	OnRead(cb func(hal.ReadEvent)) context.CancelFunc
	OnError(cb func(hal.ErrorEvent)) context.CancelFunc
	Command(ctx context.Context, address string, mode pin.Mode, value float64) error
}

// Bridge publishes the read events of a board on MQTT and accepts
// pin write commands.
//
// Topics:
//
//	<prefix>read/<key>            value of a read subscription
//	<prefix>error                 asynchronous board errors
//	<prefix>log                   log lines (JSON)
//	<prefix>write/<pin>/<mode>    command: payload is the value to write
type Bridge struct {
	log         zerolog.Logger
	config      Config
	topicPrefix string
	board       Board

	mutex  sync.Mutex
	client mqttapi.Client
}

// New creates a new bridge for the given board.
func New(log zerolog.Logger, config Config, board Board) (*Bridge, error) {
	if config.BrokerAddress == "" {
		return nil, errors.New("broker address is empty")
	}
	if config.ClientID == "" {
		config.ClientID = "lininoio"
	}
	return &Bridge{
		log:         log.With().Str("component", "mqttbridge").Logger(),
		config:      config,
		topicPrefix: NormalizeTopicPrefix(config.TopicPrefix),
		board:       board,
	}, nil
}

// NormalizeTopicPrefix ensures that the given prefix ends with a single '/'.
func NormalizeTopicPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(prefix, "/") + "/"
}

// ReadTopic returns the topic on which values of the read with given key
// are published.
func (b *Bridge) ReadTopic(key string) string {
	return b.topicPrefix + readTopic + key
}

// LogTopic returns the topic on which log lines are published.
func (b *Bridge) LogTopic() string {
	return b.topicPrefix + logTopic
}

// Run the bridge until the given context is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	log := b.log

	// Prepare MQTT client options
	opts := mqttapi.NewClientOptions().
		AddBroker("tcp://" + b.config.BrokerAddress).
		SetClientID(b.config.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(func(c mqttapi.Client, m mqttapi.Message) {
		// Ignore messages when no subscription match
	})
	opts.SetOnConnectHandler(func(c mqttapi.Client) {
		log.Debug().Msg("Connected to MQTT")
		topic := b.topicPrefix + writeTopic + "#"
		if token := c.Subscribe(topic, 0, b.onMessage); token.Wait() && token.Error() != nil {
			log.Error().Err(token.Error()).Msgf("failed to subscribe to '%s'", topic)
		} else {
			log.Debug().Msgf("Subscribed to MQTT topic '%s'", topic)
		}
	})

	// Connect client
	client := mqttapi.NewClient(opts)
	if !retryUntilCanceled(ctx, log, "MQTT connect", func() error {
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			return fmt.Errorf("failed to connect to mqtt: %w", token.Error())
		}
		return nil
	}) {
		return nil
	}
	b.mutex.Lock()
	b.client = client
	b.mutex.Unlock()

	cancelRead := b.board.OnRead(b.publishRead)
	cancelError := b.board.OnError(b.publishError)

	// Wait until context closed
	<-ctx.Done()

	cancelRead()
	cancelError()
	b.mutex.Lock()
	b.client = nil
	b.mutex.Unlock()
	client.Disconnect(250)
	log.Info().Msg("Bridge closed")
	return nil
}

// Publish a message with given payload on the given topic.
func (b *Bridge) Publish(topic, payload string) {
	b.mutex.Lock()
	client := b.client
	b.mutex.Unlock()
	if client == nil {
		return
	}
	token := client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		b.log.Error().Err(token.Error()).
			Str("topic", topic).
			Str("payload", payload).
			Msg("failed to deliver MQTT message in time")
	}
}

func (b *Bridge) publishRead(e hal.ReadEvent) {
	b.Publish(b.ReadTopic(e.Key), FormatValue(e.Value))
}

func (b *Bridge) publishError(e hal.ErrorEvent) {
	b.Publish(b.topicPrefix+errorTopic, e.Err.Error())
}

// onMessage receives command messages.
func (b *Bridge) onMessage(client mqttapi.Client, msg mqttapi.Message) {
	b.handleCommand(msg.Topic(), string(msg.Payload()))
}

// handleCommand applies a write command to the board.
func (b *Bridge) handleCommand(topic, payload string) {
	address, mode, err := ParseWriteTopic(b.topicPrefix, topic)
	if err != nil {
		b.log.Debug().Err(err).Str("topic", topic).Msg("Ignoring message")
		return
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		b.log.Warn().Err(err).Str("topic", topic).Str("payload", payload).Msg("Invalid command value")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := b.board.Command(ctx, address, mode, value); err != nil {
		b.log.Warn().Err(err).
			Str("pin", address).
			Str("mode", mode.String()).
			Float64("value", value).
			Msg("Command failed")
	}
}

// ParseWriteTopic parses a "<prefix>write/<pin>/<mode>" topic.
func ParseWriteTopic(prefix, topic string) (string, pin.Mode, error) {
	rest := strings.TrimPrefix(topic, prefix+writeTopic)
	if rest == topic {
		return "", pin.Input, errors.Errorf("topic '%s' is not a write topic", topic)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", pin.Input, errors.Errorf("malformed write topic '%s'", topic)
	}
	mode, err := pin.ParseMode(parts[1])
	if err != nil {
		return "", pin.Input, err
	}
	return parts[0], mode, nil
}

// FormatValue formats a sampled value as MQTT payload.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
