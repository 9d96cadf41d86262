// Package health serves the minimal /healthz and /readyz HTTP surface
// the operator's orchestration probes. This is not a metrics exporter;
// metrics export stays out of scope.
package health

import (
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// Server answers liveness always and readiness once SetReady(true) has
// been called (after startup wiring completes).
type Server struct {
	ready atomic.Bool
}

func NewServer() *Server {
	return &Server{}
}

func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Serve blocks listening on addr. Errors are logged, not fatal: an
// unreachable probe endpoint must not take the scheduler down.
func (s *Server) Serve(addr string) {
	router := httprouter.New()
	router.GET("/healthz", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.GET("/readyz", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("starting"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	handler := cors.Default().Handler(router)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Error("health endpoint unavailable", "addr", addr, "err", err)
	}
}
