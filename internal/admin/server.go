// Package admin exposes the operator facade: manual trigger, forced
// elimination, competition reset and a read-only status snapshot. Every
// route requires the configured bearer token; there is no public
// force-terminal path.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"inscription-contest/internal/logger"
	"inscription-contest/internal/monitor"
)

const gracefulShutdownTimeout = 30 * time.Second

// Engine is the subset of the competition engine the facade drives.
type Engine interface {
	ForceExpire(id uint, reason string) error
	Reset(reason string) error
}

// Monitor is the subset of the block monitor the facade drives.
type Monitor interface {
	TriggerManually()
	Status() (*monitor.Status, error)
}

type Server struct {
	engine  Engine
	monitor Monitor
	token   string
	log     *logger.Logger
}

func NewServer(eng Engine, mon Monitor, token string, log *logger.Logger) *Server {
	return &Server{engine: eng, monitor: mon, token: token, log: log}
}

func (s *Server) handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.recoveryMiddleware)
	router.Use(s.loggingMiddleware)
	router.Use(setJSONMiddleware)
	router.Use(s.authMiddleware)
	s.addRoutes(router)
	return handlers.CORS()(router)
}

// Start starts the HTTP server and returns a function to gracefully shut
// it down.
func (s *Server) Start(listenAddr string) func() {
	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: s.handler(),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Printf("admin: server: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			s.log.Printf("admin: shutdown: %v", err)
		}
	}
}

func (s *Server) addRoutes(router *mux.Router) {
	router.HandleFunc("/admin/eliminate", s.handleEliminate).Methods(http.MethodPost)
	router.HandleFunc("/admin/reset", s.handleReset).Methods(http.MethodPost)
	router.HandleFunc("/admin/trigger", s.handleTrigger).Methods(http.MethodPost)
	router.HandleFunc("/admin/status", s.handleStatus).Methods(http.MethodGet)
}

type eliminateRequest struct {
	ProposalID uint   `json:"proposalId"`
	Reason     string `json:"reason"`
}

func (s *Server) handleEliminate(w http.ResponseWriter, r *http.Request) {
	var req eliminateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErr(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}
	if req.ProposalID == 0 {
		sendErr(w, http.StatusBadRequest, "proposalId is required")
		return
	}
	if req.Reason == "" {
		sendErr(w, http.StatusBadRequest, "reason is required")
		return
	}
	if err := s.engine.ForceExpire(req.ProposalID, req.Reason); err != nil {
		sendErr(w, http.StatusBadRequest, err.Error())
		return
	}
	sendJSON(w, map[string]interface{}{"eliminated": req.ProposalID})
}

type resetRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErr(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}
	if req.Reason == "" {
		sendErr(w, http.StatusBadRequest, "reason is required")
		return
	}
	if err := s.engine.Reset(req.Reason); err != nil {
		sendErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendJSON(w, map[string]string{"reset": "ok"})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	s.monitor.TriggerManually()
	sendJSON(w, map[string]string{"triggered": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.monitor.Status()
	if err != nil {
		sendErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendJSON(w, st)
}

// errorResponse is the structured error payload; the facade never crashes
// the polling process.
type errorResponse struct {
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

func sendErr(w http.ResponseWriter, code int, msg string) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{ErrorCode: code, ErrorMessage: msg})
}

func sendJSON(w http.ResponseWriter, v interface{}) {
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			sendErr(w, http.StatusServiceUnavailable, "admin facade disabled: no token configured")
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			sendErr(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Printf("admin: %s %s", r.Method, r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Printf("admin: panic: %v\n%s", rec, debug.Stack())
				sendErr(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func setJSONMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}
