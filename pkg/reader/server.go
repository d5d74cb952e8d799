package reader

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/TheEntropyCollective/logtree/pkg/logging"
	"github.com/TheEntropyCollective/logtree/pkg/sink"
)

// ServerStats is a snapshot of the socket listener counters.
type ServerStats struct {
	ActiveConns uint64 `json:"active_conns"`
	TotalConns  uint64 `json:"total_conns"`
	Records     uint64 `json:"records"`
	Failures    uint64 `json:"failures"`
}

// Server accepts TCP connections and serves each with its own Reader and
// parser. All connections feed the same factory, which must therefore be
// wrapped with sink.NewLocked before it is handed here.
type Server struct {
	factory  sink.Factory
	log      *logging.Logger
	listener net.Listener
	wg       sync.WaitGroup

	active   atomic.Uint64
	total    atomic.Uint64
	records  atomic.Uint64
	failures atomic.Uint64
}

// NewServer returns a server feeding the given (locked) factory.
func NewServer(factory sink.Factory, log *logging.Logger) *Server {
	return &Server{factory: factory, log: log.WithComponent("listener")}
}

// Listen binds the given TCP address.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = ln
	s.log.Info("listening", map[string]interface{}{"addr": ln.Addr().String()})
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until the context is cancelled or the listener
// is closed. It blocks; run it in its own goroutine when combined with a
// stdin reader.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return fmt.Errorf("server is not listening")
	}
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		s.total.Add(1)
		s.active.Add(1)
		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	defer s.active.Add(^uint64(0))

	r := New(conn, s.factory, s.log)
	clean := r.Run()
	stats := r.Stats()
	s.records.Add(stats.Records)
	s.failures.Add(stats.Failures)
	s.log.Info("producer disconnected", map[string]interface{}{
		"remote":  conn.RemoteAddr().String(),
		"clean":   clean,
		"records": stats.Records,
	})
}

// Stats returns a snapshot of the listener counters. Records and failures
// include only finished connections.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		ActiveConns: s.active.Load(),
		TotalConns:  s.total.Load(),
		Records:     s.records.Load(),
		Failures:    s.failures.Load(),
	}
}
