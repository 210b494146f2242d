package widgets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/launchdarkly/api-test-harness/apitest"
	"github.com/launchdarkly/api-test-harness/framework"
)

// UploadsInstance is the name of the sub-instance that resolves paths in the uploads directory.
const UploadsInstance = "uploads"

// Server runs a Service on a local port. It implements apitest.Instance, so a test run can start
// and stop it.
type Server struct {
	*Service
	addr       string
	uploadsDir string
	server     *http.Server
	listener   net.Listener
	baseURL    string
	done       chan struct{}
	logger     framework.Logger
	lock       sync.Mutex
}

// NewServer creates a Server that will listen on addr; use "127.0.0.1:0" for any free port.
func NewServer(addr, uploadsDir string, logger framework.Logger) *Server {
	if logger == nil {
		logger = framework.NullLogger()
	}
	s := &Server{
		Service:    NewService(uploadsDir, logger),
		addr:       addr,
		uploadsDir: uploadsDir,
		logger:     logger,
	}
	s.Service.OnClose(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

// Start begins listening and serving in the background.
func (s *Server) Start(context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.server != nil {
		return errors.New("server was already started")
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.baseURL = "http://" + listener.Addr().String()
	s.server = &http.Server{Handler: s.Service, ReadHeaderTimeout: 10 * time.Second}
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Widget service stopped with error: %s", err)
		}
	}()
	s.logger.Printf("Widget service listening at %s", s.baseURL)
	return nil
}

// Stop shuts the server down, waiting for active requests to finish.
func (s *Server) Stop(ctx context.Context) error {
	s.lock.Lock()
	server := s.server
	s.lock.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// CheckStopped returns an error if the server is still accepting connections.
func (s *Server) CheckStopped(ctx context.Context) error {
	s.lock.Lock()
	addr := ""
	if s.listener != nil {
		addr = s.listener.Addr().String()
	}
	s.lock.Unlock()
	if addr == "" {
		return nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil //nolint:nilerr
	}
	_ = conn.Close()
	return fmt.Errorf("widget service is still accepting connections at %s", addr)
}

// Done is closed when the server has stopped serving. It is nil before Start.
func (s *Server) Done() <-chan struct{} {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.done
}

// BaseURL returns the URL of the running server.
func (s *Server) BaseURL() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.baseURL
}

// Instances exposes the uploads directory, if there is one.
func (s *Server) Instances() map[string]apitest.PathResolver {
	if s.uploadsDir == "" {
		return nil
	}
	return map[string]apitest.PathResolver{UploadsInstance: apitest.DirResolver(s.uploadsDir)}
}
