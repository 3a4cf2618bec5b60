package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"hunt-server/internal/domain"
	"hunt-server/internal/engine"
	"hunt-server/internal/network"
	"hunt-server/internal/version"
	"hunt-server/pkg/api"
	"hunt-server/pkg/logger"
)

type Server struct {
	Game  *engine.GameService
	Hub   *network.Broadcaster
	Debug *DebugHandler // nil - debug-роуты выключены
	Port  int
}

func New(game *engine.GameService, hub *network.Broadcaster, port int) *Server {
	return &Server{
		Game: game,
		Hub:  hub,
		Port: port,
	}
}

// Handler собирает роутер
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", enableCORS(s.handleHealth))
	mux.HandleFunc("GET /api/hunt/status", enableCORS(s.handleStatus))
	mux.HandleFunc("GET /api/hunt/summary", enableCORS(s.handleSummary))
	mux.HandleFunc("POST /api/hunt/select", enableCORS(withPayload(s.handleSelect)))
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /version", enableCORS(s.handleVersion))

	if s.Debug != nil {
		s.Debug.RegisterRoutes(mux)
	}
	return mux
}

// Run запускает HTTP сервер и останавливает его по отмене ctx
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Infof("Hunt server listening on :%d", s.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		next(w, r)
	}
}

// handleWS обрабатывает подключение к ленте событий
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(s.Hub, s.Game, conn)

	go client.writePump()
	go client.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, "ok")
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Game.Status())
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Game.Summary())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, req api.SelectionRequest) {
	snapshot, err := s.Game.SelectHunter(r.Context(), req)
	if err != nil {
		logger.For("http").WithError(err).WithField("hunter", req.MinecraftUsername).Info("Selection rejected")
		writeError(w, selectionStatus(err), err)
		return
	}
	writeSuccess(w, fmt.Sprintf("%s selected as hunter (session %s)", req.MinecraftUsername, snapshot.SessionID))
}

// selectionStatus переводит отказ выбора в HTTP-код
func selectionStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNoActiveAttempt), errors.Is(err, domain.ErrTargetOffline):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAttemptPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrSessionInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Info())
}
