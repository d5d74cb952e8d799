// Package monitor exposes the server's operational state over HTTP: a
// health probe, a JSON status document, OpenTelemetry counters and a
// websocket live tail of the aggregated event stream.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/TheEntropyCollective/logtree/pkg/logging"
)

// StatusFunc supplies the /api/status document; the embedding wires in
// whatever state it tracks (reader counters, sink connectivity).
type StatusFunc func() map[string]interface{}

// Server is the HTTP monitor endpoint.
type Server struct {
	router  *mux.Router
	httpSrv *http.Server
	metrics *Metrics
	hub     *Hub
	status  StatusFunc
	log     *logging.Logger
	started time.Time
}

// NewServer assembles the monitor routes.
func NewServer(metrics *Metrics, hub *Hub, status StatusFunc, log *logging.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		metrics: metrics,
		hub:     hub,
		status:  status,
		log:     log.WithComponent("monitor"),
		started: time.Now(),
	}
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/api/metrics", s.handleMetrics).Methods("GET")
	s.router.Handle("/ws", hub).Methods("GET")
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr in the background.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("monitor endpoint failed", map[string]interface{}{"error": err.Error()})
		}
	}()
	s.log.Info("monitor listening", map[string]interface{}{"addr": addr})
	return nil
}

// Shutdown stops the HTTP server and disconnects live-tail clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	doc := map[string]interface{}{
		"uptime_seconds":    time.Since(s.started).Seconds(),
		"live_tail_clients": s.hub.ClientCount(),
	}
	if s.status != nil {
		for k, v := range s.status() {
			doc[k] = v
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	rm, err := s.metrics.Collect(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("metric collection failed: %v", err), http.StatusInternalServerError)
		return
	}
	doc := map[string]interface{}{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			doc[m.Name] = flattenMetric(m)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// flattenMetric reduces an instrument to the sum of its data points; the
// server only registers counters.
func flattenMetric(m metricdata.Metrics) interface{} {
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		var total int64
		for _, dp := range data.DataPoints {
			total += dp.Value
		}
		return total
	case metricdata.Sum[float64]:
		var total float64
		for _, dp := range data.DataPoints {
			total += dp.Value
		}
		return total
	default:
		return nil
	}
}
