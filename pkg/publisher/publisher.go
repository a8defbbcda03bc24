// Package publisher forwards the current reading to an MQTT broker as a
// retained JSON message.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/config"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/readingcache"
)

// quiesce is the number of milliseconds to wait for in-flight work on disconnect.
const quiesce = 250

var ErrDisabled = errors.New("mqtt broker not configured")

type Publisher struct {
	client     mqtt.Client
	topic      string
	qos        byte
	cache      *readingcache.Cache
	staleAfter time.Duration
	logger     *slog.Logger
}

func New(cfg config.MQTTConfig, cache *readingcache.Cache, staleAfter time.Duration, logger *slog.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, ErrDisabled
	}
	logger = logger.With("broker", cfg.Broker)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	return newPublisher(mqtt.NewClient(opts), cfg, cache, staleAfter, logger), nil
}

func newPublisher(client mqtt.Client, cfg config.MQTTConfig, cache *readingcache.Cache, staleAfter time.Duration, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:     client,
		topic:      cfg.Topic,
		qos:        cfg.QoS,
		cache:      cache,
		staleAfter: staleAfter,
		logger:     logger,
	}
}

// Run publishes every cache update that carries a measurement until ctx
// is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	updates, cancel := p.cache.Subscribe()
	defer cancel()

	if err := p.connect(ctx); err != nil {
		return err
	}
	defer p.client.Disconnect(quiesce)

	p.publish(p.cache.Get())
	for {
		select {
		case <-ctx.Done():
			return nil
		case reading, ok := <-updates:
			if !ok {
				return nil
			}
			p.publish(reading)
		}
	}
}

// connect waits for the initial connection. The client keeps retrying
// internally, so only ctx ends the wait early.
func (p *Publisher) connect(ctx context.Context) error {
	token := p.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (p *Publisher) publish(reading readingcache.Reading) {
	if !reading.Present {
		return
	}

	payload := reading.Payload(p.staleAfter).ToJsonBytes()
	p.logger.Debug("publishing reading", "topic", p.topic, "bytes", len(payload))
	t := p.client.Publish(p.topic, p.qos, true, payload)
	go func() {
		<-t.Done()
		if err := t.Error(); err != nil {
			p.logger.Warn("publishing reading", "topic", p.topic, "error", err)
		}
	}()
}
