// Package sim - симулированный движок: миры хранятся в директориях
// контейнера (level.json на измерение), игроки живут в памяти.
// Используется сервером без реального движка и тестами.
package sim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"hunt-server/internal/domain"
	"hunt-server/internal/live"
	"hunt-server/pkg/logger"
	"hunt-server/pkg/terrain"

	"github.com/sirupsen/logrus"
)

const levelFile = "level.json"

// ErrNotAllowed - игрок не в списке допуска
var ErrNotAllowed = errors.New("player is not allowed on this server")

// levelData - содержимое level.json
type levelData struct {
	Name        string          `json:"name"`
	Seed        int64           `json:"seed"`
	Environment string          `json:"environment"`
	Flat        bool            `json:"flat"`
	CreatedAt   time.Time       `json:"createdAt"`
	Rules       live.WorldRules `json:"rules"`
}

type simWorld struct {
	level   levelData
	heights terrain.HeightMap
	spawn   domain.Location
	chunks  map[[2]int]struct{}
}

func (w *simWorld) handle() domain.World {
	return domain.World{
		Name:      w.level.Name,
		Seed:      w.level.Seed,
		Spawn:     w.spawn,
		CreatedAt: w.level.CreatedAt,
	}
}

// Engine реализует live.Engine
type Engine struct {
	container string

	mu           sync.Mutex
	worlds       map[string]*simWorld
	players      map[string]*Player
	allowed      map[string]bool
	allowList    bool
	defaultWorld string
	broadcasts   []string
	listeners    []live.Listener
}

var _ live.Engine = (*Engine)(nil)

type Option func(*Engine)

// WithAllowList включает проверку списка допуска при входе
func WithAllowList(enabled bool) Option {
	return func(e *Engine) { e.allowList = enabled }
}

// WithDefaultWorld - мир, в котором появляются новые игроки
func WithDefaultWorld(name string) Option {
	return func(e *Engine) { e.defaultWorld = name }
}

func New(container string, opts ...Option) *Engine {
	e := &Engine{
		container: container,
		worlds:    make(map[string]*simWorld),
		players:   make(map[string]*Player),
		allowed:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe регистрирует слушателя событий
func (e *Engine) Subscribe(l live.Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Engine) WorldContainer() string { return e.container }

func (e *Engine) CreateWorld(_ context.Context, spec live.WorldSpec) (domain.World, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.worlds[spec.Name]; ok {
		return domain.World{}, fmt.Errorf("%w: %s", live.ErrWorldExists, spec.Name)
	}

	level := levelData{
		Name:        spec.Name,
		Seed:        spec.Seed,
		Environment: spec.Environment.String(),
		Flat:        spec.Flat,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.writeLevel(level); err != nil {
		return domain.World{}, err
	}

	w := e.mount(level)
	logger.For("sim").WithFields(logrus.Fields{
		"world": spec.Name,
		"seed":  spec.Seed,
		"env":   spec.Environment,
	}).Debug("World created")
	return w.handle(), nil
}

// LoadWorld загружает существующий мир из контейнера
func (e *Engine) LoadWorld(_ context.Context, name string) (domain.World, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if w, ok := e.worlds[name]; ok {
		return w.handle(), nil
	}

	data, err := os.ReadFile(filepath.Join(e.container, name, levelFile))
	if errors.Is(err, os.ErrNotExist) {
		return domain.World{}, fmt.Errorf("%w: %s", live.ErrWorldNotFound, name)
	}
	if err != nil {
		return domain.World{}, fmt.Errorf("failed to read level %s: %w", name, err)
	}
	var level levelData
	if err := json.Unmarshal(data, &level); err != nil {
		return domain.World{}, fmt.Errorf("failed to parse level %s: %w", name, err)
	}
	return e.mount(level).handle(), nil
}

func (e *Engine) mount(level levelData) *simWorld {
	b := terrain.New(level.Seed)
	if level.Flat {
		b = b.Flat().WithSeaLevel(-61)
	}
	heights := b.Build()
	x, y, z := heights.SpawnPoint()

	w := &simWorld{
		level:   level,
		heights: heights,
		spawn:   domain.Location{World: level.Name, X: float64(x) + 0.5, Y: float64(y), Z: float64(z) + 0.5},
		chunks:  make(map[[2]int]struct{}),
	}
	e.worlds[level.Name] = w
	return w
}

// UnloadWorld выгружает мир. В мире не должно быть игроков.
func (e *Engine) UnloadWorld(_ context.Context, name string, save bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.worlds[name]
	if !ok {
		return fmt.Errorf("%w: %s", live.ErrWorldNotFound, name)
	}
	for _, p := range e.players {
		if p.Online && p.Location.World == name {
			return fmt.Errorf("cannot unload %s: player %s is still there", name, p.Name)
		}
	}
	if save {
		if err := e.writeLevel(w.level); err != nil {
			return err
		}
	}
	delete(e.worlds, name)
	return nil
}

func (e *Engine) LoadedWorlds() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.worlds))
	for name := range e.worlds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) ConfigureWorld(_ context.Context, name string, rules live.WorldRules) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.worlds[name]
	if !ok {
		return fmt.Errorf("%w: %s", live.ErrWorldNotFound, name)
	}
	w.level.Rules = rules
	return e.writeLevel(w.level)
}

func (e *Engine) SetDaylightCycle(_ context.Context, name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.worlds[name]
	if !ok {
		return fmt.Errorf("%w: %s", live.ErrWorldNotFound, name)
	}
	w.level.Rules.DaylightCycle = enabled
	return nil
}

// Rules возвращает текущие правила мира (для тестов и debug)
func (e *Engine) Rules(name string) (live.WorldRules, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.worlds[name]
	if !ok {
		return live.WorldRules{}, false
	}
	return w.level.Rules, true
}

func (e *Engine) PreloadChunk(_ context.Context, world string, cx, cz int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.worlds[world]
	if !ok {
		return fmt.Errorf("%w: %s", live.ErrWorldNotFound, world)
	}
	if size := w.level.Rules.BorderSize; size > 0 {
		limit := int(size/2)/terrain.ChunkSize + 1
		if cx > limit || cx < -limit || cz > limit || cz < -limit {
			return fmt.Errorf("%w: [%d,%d]", live.ErrChunkOutOfWorld, cx, cz)
		}
	}
	w.chunks[[2]int{cx, cz}] = struct{}{}
	return nil
}

// LoadedChunks - число предзагруженных чанков мира
func (e *Engine) LoadedChunks(world string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if w, ok := e.worlds[world]; ok {
		return len(w.chunks)
	}
	return 0
}

func (e *Engine) HighestBlockY(world string, x, z int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.worlds[world]
	if !ok {
		return 0, fmt.Errorf("%w: %s", live.ErrWorldNotFound, world)
	}
	return w.heights.HeightAt(x, z), nil
}

func (e *Engine) Broadcast(_ context.Context, message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.broadcasts = append(e.broadcasts, message)
	for _, p := range e.players {
		if p.Online {
			p.Messages = append(p.Messages, message)
		}
	}
	return nil
}

// Broadcasts возвращает копию всех широковещательных сообщений
func (e *Engine) Broadcasts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.broadcasts...)
}

func (e *Engine) writeLevel(level levelData) error {
	dir := filepath.Join(e.container, level.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create world dir %s: %w", dir, err)
	}
	data, err := json.MarshalIndent(level, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, levelFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write level %s: %w", level.Name, err)
	}
	return nil
}
