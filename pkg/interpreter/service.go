// Package interpreter follows a running service's /ws feed.
package interpreter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/readingcache"
)

var ErrGaveUp = errors.New("max connection retries reached")

type ListenerConfig struct {
	Host       string
	TLSEnabled bool
	MaxRetries int
	// The server pings every 20s, silence beyond ReadTimeout drops the connection.
	ReadTimeout time.Duration
}

func DefaultListenerConfig(host string) ListenerConfig {
	return ListenerConfig{
		Host:        host,
		MaxRetries:  10,
		ReadTimeout: 60 * time.Second,
	}
}

func (c ListenerConfig) URL() url.URL {
	scheme := "ws"
	if c.TLSEnabled {
		scheme = "wss"
	}
	return url.URL{Scheme: scheme, Host: c.Host, Path: "/ws"}
}

// StartListener manages the websocket connection and calls funcToCall for
// each reading. It reconnects with exponential backoff and returns nil when
// ctx is cancelled.
func StartListener(ctx context.Context, cfg ListenerConfig, logger *slog.Logger, funcToCall func(reading *readingcache.Payload)) error {
	b := &backoff.Backoff{
		Min:    2 * time.Second,
		Max:    60 * time.Second,
		Factor: 2,
	}
	u := cfg.URL()
	retryCount := 0

	for {
		if retryCount > 0 {
			retryDelay := b.Duration()
			logger.Info("retrying connection", "in", retryDelay, "attempt", retryCount+1, "max", cfg.MaxRetries)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil
			}
		}

		logger.Info("connecting", "url", u.String())
		dialer := websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: 10 * time.Second,
		}
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("connection failed", "error", err)
			retryCount++
			if cfg.MaxRetries > 0 && retryCount >= cfg.MaxRetries {
				return fmt.Errorf("%w (%d)", ErrGaveUp, cfg.MaxRetries)
			}
			continue
		}

		logger.Info("connected, accepting readings")
		retryCount = 0
		b.Reset()

		handleConnection(ctx, c, cfg.ReadTimeout, logger, funcToCall)
		c.Close()

		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("connection lost, will retry")
		retryCount = 1
	}
}

func handleConnection(
	ctx context.Context,
	c *websocket.Conn,
	readTimeout time.Duration,
	logger *slog.Logger,
	funcToCall func(reading *readingcache.Payload),
) {
	done := make(chan struct{})

	c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPingHandler(func(data string) error {
		c.SetReadDeadline(time.Now().Add(readTimeout))
		return c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	go func() {
		defer close(done)
		for {
			messageType, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("websocket error", "error", err)
				} else {
					logger.Info("connection closed", "error", err)
				}
				return
			}
			c.SetReadDeadline(time.Now().Add(readTimeout))

			if messageType != websocket.TextMessage {
				logger.Debug("unexpected message type", "type", messageType)
				continue
			}
			if reading := readingcache.PayloadFromJsonBytes(message); reading != nil {
				funcToCall(reading)
			} else {
				logger.Warn("failed to parse reading", "message", string(message))
			}
		}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		err := c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		if err != nil {
			logger.Debug("sending close message", "error", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}
