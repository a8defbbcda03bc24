package webapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/readingcache"
)

// client serializes writes, gorilla connections allow one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(messageType, data)
}

// writeLatest sends the reading current at write time. The snapshot is
// taken under the client's lock, so a client never gets an older reading
// after a newer one.
func (c *client) writeLatest(s *Server) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	payload := s.cache.CurrentReading().Payload(s.staleAfter)
	return c.writeLocked(websocket.TextMessage, payload.ToJsonBytes())
}

func (c *client) writeLocked(messageType int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade error", "error", err)
		return
	}

	c := &client{conn: conn}
	s.addClient(c)

	// Send current reading immediately
	if err := c.writeLatest(s); err != nil {
		s.removeClient(c)
		return
	}

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.removeClient(c)
			return
		}
	}
}

// StartBroadcast pushes every cache update to all connected clients until
// ctx is cancelled. The subscription is in place when it returns.
func (s *Server) StartBroadcast(ctx context.Context) {
	updates, cancel := s.cache.Subscribe()
	go s.broadcast(ctx, updates, cancel)
}

func (s *Server) broadcast(ctx context.Context, updates <-chan readingcache.Reading, cancel func()) {
	defer cancel()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			s.sendAll(func(c *client) error { return c.writeLatest(s) })
		case <-ticker.C:
			s.sendAll(func(c *client) error { return c.write(websocket.PingMessage, nil) })
		}
	}
}

func (s *Server) sendAll(send func(c *client) error) {
	s.clientsMutex.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMutex.RUnlock()

	for _, c := range clients {
		if err := send(c); err != nil {
			s.logger.Debug("dropping websocket client", "remote", c.conn.RemoteAddr().String(), "error", err)
			s.removeClient(c)
		}
	}
}

func (s *Server) ClientCount() int {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	return len(s.clients)
}

func (s *Server) addClient(c *client) {
	s.clientsMutex.Lock()
	s.clients[c] = true
	s.clientsMutex.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.clientsMutex.Lock()
	delete(s.clients, c)
	s.clientsMutex.Unlock()
	c.conn.Close()
}

func (s *Server) closeClients() {
	s.clientsMutex.Lock()
	clients := s.clients
	s.clients = make(map[*client]bool)
	s.clientsMutex.Unlock()

	for c := range clients {
		c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		c.conn.Close()
	}
}
