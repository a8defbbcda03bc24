// Package webapi serves the current reading over HTTP and pushes updates
// to WebSocket clients.
package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sigurn/crc16"

	"github.com/NotCoffee418/lambrecht_meteo/pkg/poller"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/readingcache"
	"github.com/NotCoffee418/lambrecht_meteo/pkg/types"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 20 * time.Second
)

var etagTable = crc16.MakeTable(crc16.CRC16_ARC)

type Server struct {
	cache      *readingcache.Cache
	stats      func() poller.Stats
	staleAfter time.Duration
	logger     *slog.Logger

	upgrader     websocket.Upgrader
	clients      map[*client]bool
	clientsMutex sync.RWMutex
}

// New builds the API over cache. stats may be nil when no poller runs in
// this process.
func New(cache *readingcache.Cache, stats func() poller.Stats, staleAfter time.Duration, logger *slog.Logger) *Server {
	return &Server{
		cache:      cache,
		stats:      stats,
		staleAfter: staleAfter,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // read-only data, any dashboard may connect
			},
		},
		clients: make(map[*client]bool),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/current.json", s.handleCurrent)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.StartBroadcast(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting api", "listen", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeClients()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Lambrecht Meteo API",
		"status":  "running",
	})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	reading := s.cache.CurrentReading()
	etag := ETag(reading, s.staleAfter)

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(reading.Payload(s.staleAfter).ToJsonBytes())
}

// ETag identifies the reading's content. The age is left out so a client
// polling an unchanged reading gets 304s, hence the weak validator. The
// stale flag is part of it, a reading turning stale is a new representation.
func ETag(r readingcache.Reading, staleAfter time.Duration) string {
	identity := struct {
		Measurement *types.Measurement    `json:"measurement"`
		State       types.ConnectionState `json:"state"`
		Updated     time.Time             `json:"updated"`
		Stale       bool                  `json:"stale"`
	}{State: r.State, Updated: r.Updated, Stale: r.Payload(staleAfter).Stale}
	if r.Present {
		m := r.Measurement
		identity.Measurement = &m
	}
	b, _ := json.Marshal(identity)
	return fmt.Sprintf(`W/"%04x"`, crc16.Checksum(b, etagTable))
}

type health struct {
	State   types.ConnectionState `json:"state"`
	Present bool                  `json:"present"`
	Stale   bool                  `json:"stale"`
	Poller  *poller.Stats         `json:"poller,omitempty"`
}

// handleHealth answers 503 unless the station link is up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reading := s.cache.CurrentReading()
	h := health{
		State:   reading.State,
		Present: reading.Present,
		Stale:   reading.Payload(s.staleAfter).Stale,
	}
	if s.stats != nil {
		st := s.stats()
		h.Poller = &st
	}

	status := http.StatusOK
	switch reading.State.Status {
	case types.Disconnected, types.Degraded:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}
