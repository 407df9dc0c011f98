package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ericogr/enviro-to-mqtt/pkg/aggregator"
	"github.com/ericogr/enviro-to-mqtt/pkg/config"
	"github.com/ericogr/enviro-to-mqtt/pkg/output"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HTTPOutput keeps the latest snapshot and serves it over HTTP.
type HTTPOutput struct {
	mu     sync.RWMutex
	latest *aggregator.Snapshot

	srv    *http.Server
	addr   string
	logger *zap.Logger
}

func NewHTTP(cfg config.HTTPConfig, logger *zap.Logger) (output.Output, error) {
	h := &HTTPOutput{logger: logger}
	h.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           h.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("http listen %s: %w", cfg.Listen, err)
	}
	h.addr = ln.Addr().String()
	go func() {
		if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http output stopped", zap.Error(err))
		}
	}()
	logger.Info("http output listening", zap.String("addr", h.addr))
	return h, nil
}

func (h *HTTPOutput) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/snapshot/latest", h.snapshot).Methods(http.MethodGet)
	r.HandleFunc("/availability", h.availability).Methods(http.MethodGet)
	return r
}

func (h *HTTPOutput) Publish(s aggregator.Snapshot) error {
	h.mu.Lock()
	h.latest = &s
	h.mu.Unlock()
	return nil
}

func (h *HTTPOutput) Close() error {
	if h.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.srv.Shutdown(ctx)
}

func (h *HTTPOutput) current() (aggregator.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return aggregator.Snapshot{}, false
	}
	return *h.latest, true
}

func (h *HTTPOutput) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPOutput) snapshot(w http.ResponseWriter, _ *http.Request) {
	s, ok := h.current()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot yet"})
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *HTTPOutput) availability(w http.ResponseWriter, _ *http.Request) {
	s, ok := h.current()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot yet"})
		return
	}
	a := aggregator.AvailabilityOf(s)
	writeJSON(w, http.StatusOK, map[string]bool{
		"co2":         a.CO2,
		"particulate": a.Particulate,
		"environment": a.Environment,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
