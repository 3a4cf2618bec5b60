package sim

import (
	"fmt"

	"hunt-server/internal/domain"
	"hunt-server/internal/live"
)

// Join подключает игрока. Новые игроки появляются на спавне мира по умолчанию,
// вернувшиеся - там, где вышли (если мир еще загружен).
func (e *Engine) Join(name string) error {
	e.mu.Lock()
	if e.allowList && !e.allowed[name] {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotAllowed, name)
	}

	p, ok := e.players[name]
	if !ok {
		p = &Player{
			Name:       name,
			Mode:       domain.GameModeSurvival.String(),
			Health:     maxHealth,
			Food:       maxFood,
			Saturation: 5,
		}
		e.players[name] = p
	}
	if p.Online {
		e.mu.Unlock()
		return nil
	}
	p.Online = true
	p.KickReason = ""
	if _, loaded := e.worlds[p.Location.World]; !loaded {
		if w, ok := e.worlds[e.defaultWorld]; ok {
			p.Location = w.spawn
		}
	}
	listeners := e.snapshotListeners()
	e.mu.Unlock()

	for _, l := range listeners {
		l.OnPlayerJoin(name)
	}
	return nil
}

// Quit - игрок вышел сам
func (e *Engine) Quit(name string) error {
	e.mu.Lock()
	p, err := e.player(name)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	p.Online = false
	listeners := e.snapshotListeners()
	e.mu.Unlock()

	for _, l := range listeners {
		l.OnPlayerQuit(name)
	}
	return nil
}

// Kill убивает игрока. killer может быть пустым (смерть от среды).
func (e *Engine) Kill(victim, killer string) error {
	e.mu.Lock()
	p, err := e.player(victim)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	p.Health = 0
	p.Inventory = nil
	listeners := e.snapshotListeners()
	e.mu.Unlock()

	for _, l := range listeners {
		l.OnPlayerDeath(victim, killer)
	}
	return nil
}

// DefeatDragon - победа над драконом в измерении End
func (e *Engine) DefeatDragon(world string) error {
	e.mu.Lock()
	if _, ok := e.worlds[world]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", live.ErrWorldNotFound, world)
	}
	listeners := e.snapshotListeners()
	e.mu.Unlock()

	for _, l := range listeners {
		l.OnDragonDefeated(world)
	}
	return nil
}

// Move перемещает игрока без событий (как обычная ходьба)
func (e *Engine) Move(name string, to domain.Location) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.player(name)
	if err != nil {
		return err
	}
	p.Location = to
	return nil
}

// Snapshot - состояние симуляции для debug-роутов
type Snapshot struct {
	Worlds  []domain.World `json:"worlds"`
	Players []Player       `json:"players"`
	Allowed []string       `json:"allowed"`
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Worlds:  make([]domain.World, 0, len(e.worlds)),
		Players: make([]Player, 0, len(e.players)),
		Allowed: make([]string, 0, len(e.allowed)),
	}
	for _, w := range e.worlds {
		snap.Worlds = append(snap.Worlds, w.handle())
	}
	for _, p := range e.players {
		cp := *p
		cp.Inventory = append([]domain.ItemStack(nil), p.Inventory...)
		cp.Messages = nil
		snap.Players = append(snap.Players, cp)
	}
	for name := range e.allowed {
		snap.Allowed = append(snap.Allowed, name)
	}
	return snap
}
