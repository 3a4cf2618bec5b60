package sim

import (
	"context"
	"fmt"
	"sort"

	"hunt-server/internal/domain"
	"hunt-server/internal/live"
)

const (
	maxHealth = 20.0
	maxFood   = 20
)

// Player - состояние игрока в симуляции
type Player struct {
	Name       string             `json:"name"`
	Online     bool               `json:"online"`
	Location   domain.Location    `json:"location"`
	Mode       string             `json:"mode"`
	Health     float64            `json:"health"`
	Food       int                `json:"food"`
	Saturation float64            `json:"saturation"`
	Exp        int                `json:"exp"`
	Inventory  []domain.ItemStack `json:"inventory"`
	Messages   []string           `json:"messages"`
	KickReason string             `json:"kickReason,omitempty"`
}

func (e *Engine) player(name string) (*Player, error) {
	p, ok := e.players[name]
	if !ok || !p.Online {
		return nil, fmt.Errorf("%w: %s", live.ErrPlayerOffline, name)
	}
	return p, nil
}

func (e *Engine) OnlinePlayers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.players))
	for name, p := range e.players {
		if p.Online {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (e *Engine) IsOnline(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[name]
	return ok && p.Online
}

func (e *Engine) PlayerLocation(name string) (domain.Location, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.player(name)
	if err != nil {
		return domain.Location{}, false
	}
	return p.Location, true
}

func (e *Engine) Teleport(_ context.Context, name string, to domain.Location) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.player(name)
	if err != nil {
		return err
	}
	if _, ok := e.worlds[to.World]; !ok {
		return fmt.Errorf("%w: %s", live.ErrWorldNotFound, to.World)
	}
	p.Location = to
	return nil
}

func (e *Engine) ResetVitals(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.player(name)
	if err != nil {
		return err
	}
	p.Health = maxHealth
	p.Food = maxFood
	p.Saturation = 5
	p.Exp = 0
	return nil
}

func (e *Engine) ClearInventory(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.player(name)
	if err != nil {
		return err
	}
	p.Inventory = nil
	return nil
}

func (e *Engine) GiveItems(_ context.Context, name string, items []domain.ItemStack) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.player(name)
	if err != nil {
		return err
	}
	p.Inventory = append(p.Inventory, items...)
	return nil
}

func (e *Engine) SetGameMode(_ context.Context, name string, mode domain.GameMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.player(name)
	if err != nil {
		return err
	}
	p.Mode = mode.String()
	return nil
}

// Kick отключает игрока. Как и в настоящем движке, слушатели получают OnPlayerQuit.
func (e *Engine) Kick(_ context.Context, name, reason string) error {
	e.mu.Lock()
	p, err := e.player(name)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	p.Online = false
	p.KickReason = reason
	listeners := e.snapshotListeners()
	e.mu.Unlock()

	for _, l := range listeners {
		l.OnPlayerQuit(name)
	}
	return nil
}

func (e *Engine) SetAllowed(_ context.Context, name string, allowed bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if allowed {
		e.allowed[name] = true
	} else {
		delete(e.allowed, name)
	}
	return nil
}

// IsAllowed - есть ли игрок в списке допуска
func (e *Engine) IsAllowed(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allowed[name]
}

func (e *Engine) SendMessage(_ context.Context, name, message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.player(name)
	if err != nil {
		return err
	}
	p.Messages = append(p.Messages, message)
	return nil
}

// Player возвращает копию состояния игрока
func (e *Engine) Player(name string) (Player, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.players[name]
	if !ok {
		return Player{}, false
	}
	cp := *p
	cp.Inventory = append([]domain.ItemStack(nil), p.Inventory...)
	cp.Messages = append([]string(nil), p.Messages...)
	return cp, true
}

func (e *Engine) snapshotListeners() []live.Listener {
	return append([]live.Listener(nil), e.listeners...)
}
