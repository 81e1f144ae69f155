// Package server exposes the room engine over WebSocket and a small HTTP
// surface.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/lox/cardroom/internal/room"
)

// Config holds transport limits.
type Config struct {
	MaxMessageBytes   int64
	MessagesPerSecond float64
	Burst             int
	// AllowedOrigins lists browser origins allowed to upgrade. Empty allows
	// any origin.
	AllowedOrigins []string
	// AdminToken enables the admin routes when set.
	AdminToken string
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxMessageBytes:   8192,
		MessagesPerSecond: 10,
		Burst:             20,
	}
}

// Server represents the WebSocket server
type Server struct {
	hub      *Hub
	rooms    *room.Manager
	service  *Service
	cfg      Config
	upgrader websocket.Upgrader
	router   *mux.Router
	logger   *log.Logger
}

// NewServer creates a server delivering room events through hub.
func NewServer(hub *Hub, rooms *room.Manager, service *Service, cfg Config, logger *log.Logger) *Server {
	defaults := DefaultConfig()
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaults.MaxMessageBytes
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = defaults.MessagesPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}

	s := &Server{
		hub:     hub,
		rooms:   rooms,
		service: service,
		cfg:     cfg,
		logger:  logger.WithPrefix("server"),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/rooms", s.handleRooms).Methods(http.MethodGet)
	if cfg.AdminToken != "" {
		admin := r.PathPrefix("/admin").Subrouter()
		admin.Use(s.requireAdmin)
		admin.HandleFunc("/rooms/{code}", s.handleDeleteRoom).Methods(http.MethodDelete)
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then closes every connection.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting WebSocket server", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down WebSocket server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.hub.CloseAll()
	return err
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.ContainsFunc(s.cfg.AllowedOrigins, func(allowed string) bool {
		return allowed == "*" || strings.EqualFold(allowed, origin)
	})
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := newConnection(uuid.NewString(), conn, s.service, s.cfg, s.logger)
	s.hub.register(client)

	go client.writePump()
	go func() {
		client.readPump()
		s.release(client)
	}()
}

// release forgets a closed connection. A session that still owns the hub
// slot is disconnected from its room.
func (s *Server) release(c *Connection) {
	if s.hub.unregister(c) {
		s.service.Disconnect(c.id)
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Players     int    `json:"players"`
	Connections int    `json:"connections"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Rooms:       s.rooms.RoomCount(),
		Players:     s.rooms.PlayerCount(),
		Connections: s.hub.Count(),
	})
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rooms.PublicRooms())
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if !s.rooms.DeleteRoom(code) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	s.logger.Info("Room deleted by admin", "room", code)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
