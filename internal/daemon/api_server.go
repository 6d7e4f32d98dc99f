package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/mux"

	"hopper/internal/config"
	"hopper/internal/logging"
	"hopper/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api"),
		daemon: d,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/health", srv.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/orchestrator/status", srv.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/orchestrator/progress", srv.handleProgress).Methods(http.MethodGet)
	router.HandleFunc("/api/orchestrator/start", srv.handleStart).Methods(http.MethodPost)
	router.HandleFunc("/api/orchestrator/stop", srv.handleStop).Methods(http.MethodPost)
	router.HandleFunc("/api/results", srv.handleResults).Methods(http.MethodGet)
	router.HandleFunc("/api/results/{filename}/keep", srv.handleKeep).Methods(http.MethodPost)
	router.HandleFunc("/api/results/{filename}", srv.handleForget).Methods(http.MethodDelete)

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "api", "start", "listen on api bind", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

type controlResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

// handleProgress discriminates three cases: no run active (200,
// unavailable), run active and reachable (200, snapshot), run active but
// the pipeline endpoint is unreachable (503).
func (s *apiServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	p := s.daemon.Progress(r.Context())
	status := http.StatusOK
	if !p.Available && p.Processing {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, p)
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	var overrides *IngestOverrides
	if r.Body != nil {
		var body IngestOverrides
		err := json.NewDecoder(r.Body).Decode(&body)
		switch {
		case err == nil:
			overrides = &body
		case errors.Is(err, io.EOF):
			// empty body: start with configured settings
		default:
			s.writeJSON(w, http.StatusBadRequest, controlResponse{Success: false, Message: fmt.Sprintf("decode body: %v", err)})
			return
		}
	}
	if err := s.daemon.StartIngest(overrides); err != nil {
		s.writeJSON(w, http.StatusBadRequest, controlResponse{Success: false, Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, controlResponse{Success: true, Message: "ingestion started"})
}

func (s *apiServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.StopIngest(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, controlResponse{Success: false, Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, controlResponse{Success: true, Message: "ingestion stopping; in-flight run will finish"})
}

func (s *apiServer) handleResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.daemon.Results(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (s *apiServer) handleKeep(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	var body struct {
		Keep bool `json:"keep"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("decode body: %v", err))
		return
	}
	if err := s.daemon.SetKeep(r.Context(), filename, body.Keep); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, controlResponse{Success: true, Message: "keep flag updated"})
}

func (s *apiServer) handleForget(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	if err := s.daemon.ForgetResult(r.Context(), filename); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, controlResponse{Success: true, Message: "result forgotten"})
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, services.ErrNotFound) {
		status = http.StatusNotFound
	} else if errors.Is(err, services.ErrValidation) {
		status = http.StatusBadRequest
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
