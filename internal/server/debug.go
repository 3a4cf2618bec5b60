package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"hunt-server/internal/domain"
	"hunt-server/internal/engine"
	"hunt-server/internal/live/sim"
	"hunt-server/internal/network"
	"hunt-server/pkg/api"
)

// WorldSource - слепок слотов миров
type WorldSource interface {
	Current() domain.WorldState
}

// DebugHandler дает доступ к внутреннему состоянию и управляет симуляцией
type DebugHandler struct {
	Service *engine.GameService
	Worlds  WorldSource
	Sim     *sim.Engine
	Hub     *network.Broadcaster
	HUD     *network.HUDPublisher
}

func NewDebugHandler(s *engine.GameService, worlds WorldSource, simulation *sim.Engine, hub *network.Broadcaster, hud *network.HUDPublisher) *DebugHandler {
	return &DebugHandler{Service: s, Worlds: worlds, Sim: simulation, Hub: hub, HUD: hud}
}

// RegisterRoutes регистрирует debug-эндпоинты
func (h *DebugHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug/state", enableCORS(h.handleState))
	mux.HandleFunc("POST /debug/attempt", enableCORS(withPayload(h.handleAttempt)))
	mux.HandleFunc("POST /debug/events", enableCORS(withPayload(h.handleEvent)))
}

type debugState struct {
	Game   domain.GameState   `json:"game"`
	Worlds domain.WorldState  `json:"worlds"`
	Sim    *sim.Snapshot      `json:"sim,omitempty"`
	Status api.StatusResponse `json:"status"`

	Subscribers int `json:"subscribers"`
	HUDSessions int `json:"hudSessions"`
}

// /debug/state - полный снимок игры, миров и симуляции
func (h *DebugHandler) handleState(w http.ResponseWriter, _ *http.Request) {
	state := debugState{
		Game:   h.Service.State(),
		Worlds: h.Worlds.Current(),
		Status: h.Service.Status(),
	}
	if h.Sim != nil {
		snap := h.Sim.Snapshot()
		state.Sim = &snap
	}
	if h.Hub != nil {
		state.Subscribers = h.Hub.SubscriberCount()
	}
	if h.HUD != nil {
		state.HUDSessions = h.HUD.Active()
	}
	writeJSON(w, http.StatusOK, state)
}

// /debug/attempt - ручное управление попыткой (аналог команды /hunt)
func (h *DebugHandler) handleAttempt(w http.ResponseWriter, r *http.Request, req api.DebugAttemptRequest) {
	ctx := r.Context()

	var (
		msg string
		err error
	)
	switch strings.ToUpper(req.Action) {
	case "START":
		var attempt domain.AttemptRecord
		attempt, err = h.Service.StartAttempt(ctx, req.Initiator)
		msg = fmt.Sprintf("attempt #%d started", attempt.AttemptNumber)
	case "END":
		var outcome domain.AttemptOutcome
		if outcome, err = domain.ParseAttemptOutcome(req.Outcome); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		var record domain.AttemptRecord
		record, err = h.Service.EndAttempt(ctx, outcome)
		msg = fmt.Sprintf("attempt #%d ended: %s", record.AttemptNumber, outcome)
	case "PAUSE":
		err = h.Service.PauseAttempt(ctx)
		msg = "attempt paused"
	case "RESUME":
		err = h.Service.ResumeAttempt(ctx)
		msg = "attempt resumed"
	}

	if err != nil {
		writeError(w, attemptStatus(err), err)
		return
	}
	writeSuccess(w, msg)
}

func attemptStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// /debug/events - имитация событий движка
func (h *DebugHandler) handleEvent(w http.ResponseWriter, _ *http.Request, req api.DebugEventRequest) {
	if h.Sim == nil {
		writeError(w, http.StatusNotImplemented, errors.New("live engine is not simulated"))
		return
	}

	var err error
	switch strings.ToUpper(req.Type) {
	case "JOIN":
		err = h.Sim.Join(req.Player)
	case "QUIT":
		err = h.Sim.Quit(req.Player)
	case "DEATH":
		err = h.Sim.Kill(req.Player, req.Killer)
	case "DRAGON":
		err = h.Sim.DefeatDragon(req.World)
	case "MOVE":
		err = h.Sim.Move(req.Player, domain.Location{World: req.World, X: req.X, Y: req.Y, Z: req.Z})
	}

	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeSuccess(w, strings.ToUpper(req.Type)+" dispatched")
}
