package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/psddp/internal/logging"
)

// shutdownTimeout bounds graceful shutdown
const shutdownTimeout = 5 * time.Second

// Config holds the server configuration
type Config struct {
	Host string
	Port int
}

// Addr returns the listen address
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// Server serves a Feed over HTTP: the WebSocket stream on /ws and the
// current snapshot as JSON on /status.
type Server struct {
	config   Config
	feed     *Feed
	http     *http.Server
	listener net.Listener
}

// New creates a new Server instance
func New(config Config, feed *Feed) *Server {
	s := &Server{config: config, feed: feed}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.feed)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.feed.Snapshot()); err != nil {
		logging.Warn("Failed to write status response", zap.Error(err))
	}
}

// Listen binds the listener. It is split from Serve so callers can learn
// the bound port before serving.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}
	s.listener = listener
	logging.Info("Feed server listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound TCP port, or 0 before Listen.
func (s *Server) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Serve serves until ctx is cancelled, then shuts down gracefully.
// Listen is called first if it has not been.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.http.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the server and disconnects feed clients
func (s *Server) Shutdown() error {
	logging.Info("Shutting down feed server", zap.Int("clients", s.feed.ClientCount()))
	s.feed.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shut down feed server: %w", err)
	}
	return nil
}
