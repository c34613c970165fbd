// Package prometheus hosts the /metrics, /healthz and /goroutinez routes
// of the monitor process.
package prometheus

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	rdebug "runtime/debug"
	"runtime/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lendwatch/lendwatch/runtime"
)

var log = logrus.WithField("prefix", "prometheus")

// Service exposes the metrics registered with the Prometheus default
// registerer and a health endpoint aggregating every registered service.
type Service struct {
	server      *http.Server
	svcRegistry *runtime.ServiceRegistry
	failStatus  error
}

// NewService sets up the HTTP server for a host:port address. An empty
// host binds every interface.
func NewService(addr string, svcRegistry *runtime.ServiceRegistry) *Service {
	s := &Service{svcRegistry: svcRegistry}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.healthzHandler)
	mux.HandleFunc("/goroutinez", s.goroutinezHandler)
	s.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Service) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	statuses := s.svcRegistry.Statuses()
	hasError := false
	var buf bytes.Buffer
	for k, v := range statuses {
		status := "OK"
		if v != nil {
			hasError = true
			status = "ERROR " + v.Error()
		}
		fmt.Fprintf(&buf, "%s: %s\n", k, status)
	}
	if hasError {
		w.WriteHeader(http.StatusInternalServerError)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.WithError(err).Error("Could not write healthz body")
	}
}

func (s *Service) goroutinezHandler(w http.ResponseWriter, _ *http.Request) {
	// #nosec G104
	w.Write(rdebug.Stack())
	// #nosec G104
	pprof.Lookup("goroutine").WriteTo(w, 2)
}

// Start the metrics server.
func (s *Service) Start() {
	log.WithField("endpoint", s.server.Addr).Info("Starting service")
	go func() {
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Errorf("Could not listen on %s", s.server.Addr)
			s.failStatus = err
		}
	}()
}

// Stop the server gracefully.
func (s *Service) Stop() error {
	log.Info("Stopping service")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Status returns a listen failure, if one occurred.
func (s *Service) Status() error {
	return s.failStatus
}
