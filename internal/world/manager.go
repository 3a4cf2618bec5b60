package world

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hunt-server/internal/dispatch"
	"hunt-server/internal/domain"
	"hunt-server/internal/live"
	"hunt-server/pkg/logger"

	"github.com/sirupsen/logrus"
)

// Config - параметры жизненного цикла миров
type Config struct {
	LobbyName      string
	InstancePrefix string
	PreloadRadius  int // В чанках вокруг спавна
	BorderSize     float64
	UnloadSettle   time.Duration
}

const lobbyMessage = "The attempt is over. Returning to the lobby..."

// Manager владеет тремя слотами миров (лобби / активный / следующий).
// Снимок меняется только здесь: чтение через атомарный указатель,
// запись под mu.
type Manager struct {
	cfg    Config
	engine live.Engine
	queue  *dispatch.WorldQueue
	bg     *dispatch.Background
	now    func() time.Time
	log    *logrus.Entry

	state atomic.Pointer[domain.WorldState]

	mu      sync.Mutex
	pregen  *pregenJob
	jobSeq  uint64
	highest int // Последний выданный номер инстанса
}

func NewManager(cfg Config, engine live.Engine, queue *dispatch.WorldQueue, bg *dispatch.Background) *Manager {
	m := &Manager{
		cfg:    cfg,
		engine: engine,
		queue:  queue,
		bg:     bg,
		now:    time.Now,
		log:    logger.For("world"),
	}
	m.state.Store(&domain.WorldState{})
	return m
}

// Current возвращает текущий снимок
func (m *Manager) Current() domain.WorldState {
	return *m.state.Load()
}

// IsNextReady - есть ли сгенерированный следующий мир
func (m *Manager) IsNextReady() bool {
	return m.state.Load().Next != nil
}

// swap публикует новый снимок. Вызывается только под mu.
func (m *Manager) swap(s domain.WorldState) {
	m.state.Store(&s)
}

// Initialize загружает (или создает) лобби, удаляет хвосты прошлых запусков
// и запускает первую прегенерацию.
func (m *Manager) Initialize(ctx context.Context) error {
	var lobby domain.World
	err := m.queue.Do(ctx, func(ctx context.Context) error {
		w, err := m.engine.LoadWorld(ctx, m.cfg.LobbyName)
		if errors.Is(err, live.ErrWorldNotFound) {
			m.log.WithField("world", m.cfg.LobbyName).Info("Creating lobby world")
			w, err = m.engine.CreateWorld(ctx, live.WorldSpec{
				Name:        m.cfg.LobbyName,
				Seed:        m.now().UnixMilli(),
				Environment: live.EnvironmentNormal,
				Flat:        true,
			})
		}
		if err != nil {
			return err
		}
		lobby = w
		return m.engine.ConfigureWorld(ctx, w.Name, live.WorldRules{
			Difficulty:   live.DifficultyPeaceful,
			BorderSize:   0,
			BorderCenter: w.Spawn,
		})
	})
	if err != nil {
		return domain.ResourceErrorf(err, "initialize lobby")
	}

	// Лобби живет только в overworld
	lobbySubs := []string{m.cfg.LobbyName + domain.NetherSuffix, m.cfg.LobbyName + domain.EndSuffix}
	if err := m.teardown(ctx, lobbySubs, 0); err != nil {
		m.log.WithError(err).Warn("Failed to remove lobby sub-dimensions")
	}
	if err := m.cleanupStaleInstances(ctx); err != nil {
		m.log.WithError(err).Warn("Failed to clean up stale instances")
	}

	m.mu.Lock()
	m.swap(domain.WorldState{Lobby: &lobby})
	m.mu.Unlock()

	m.log.WithField("lobby", lobby.Name).Info("World manager initialized")
	m.PregenerateNext()
	return nil
}

// cleanupStaleInstances удаляет директории инстансов, оставшиеся от прошлых запусков
func (m *Manager) cleanupStaleInstances(ctx context.Context) error {
	entries, err := os.ReadDir(m.engine.WorldContainer())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var stale []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), m.cfg.InstancePrefix) {
			stale = append(stale, e.Name())
		}
	}
	if len(stale) == 0 {
		return nil
	}
	m.log.WithField("count", len(stale)).Info("Removing stale world instances")
	return m.teardown(ctx, stale, 0)
}

// ActivateNext делает следующий мир активным. Если следующего мира нет,
// генерирует его синхронно (деградированный путь). Мир, оставшийся активным
// после победы, освобождается: игроки уходят в лобби, файлы удаляются.
func (m *Manager) ActivateNext(ctx context.Context) (domain.WorldState, int64, error) {
	prev := m.state.Load().Active
	next := m.state.Load().Next
	if next == nil {
		m.log.Warn("No pregenerated world available, generating synchronously")
		m.cancelPregeneration()

		w, created, err := m.generate(ctx)
		if err != nil {
			if len(created) > 0 {
				m.bg.Go("teardown:degraded", func(ctx context.Context) error {
					return m.teardown(ctx, created, m.cfg.UnloadSettle)
				})
			}
			return m.Current(), 0, domain.ResourceErrorf(err, "generate world")
		}
		next = &w
	}

	err := m.queue.Do(ctx, func(ctx context.Context) error {
		if err := m.engine.SetDaylightCycle(ctx, next.Name, true); err != nil {
			return err
		}
		if err := m.engine.ConfigureWorld(ctx, next.Name, m.rules(next.Spawn, true)); err != nil {
			return err
		}
		if prev != nil {
			m.evacuate(ctx, *prev)
		}
		return nil
	})
	if err != nil {
		return m.Current(), 0, domain.ResourceErrorf(err, "configure world %s", next.Name)
	}

	m.mu.Lock()
	updated := m.state.Load().WithActiveWorld(next)
	m.swap(updated)
	m.mu.Unlock()

	if prev != nil && prev.Name != next.Name {
		dims := prev.Dimensions()
		m.bg.Go("teardown:"+prev.Name, func(ctx context.Context) error {
			return m.teardown(ctx, dims, m.cfg.UnloadSettle)
		})
	}

	m.log.WithFields(logrus.Fields{
		"world": next.Name,
		"seed":  next.Seed,
	}).Info("World activated")
	return updated, next.Seed, nil
}

// evacuate отправляет в лобби всех, кто остался в измерениях мира.
// Только в контексте мира.
func (m *Manager) evacuate(ctx context.Context, w domain.World) {
	lobby := m.state.Load().Lobby
	if lobby == nil {
		return
	}
	dims := w.Dimensions()
	for _, name := range m.engine.OnlinePlayers() {
		if loc, ok := m.engine.PlayerLocation(name); ok && slices.Contains(dims, loc.World) {
			m.sendToLobby(ctx, name, lobby.Spawn)
		}
	}
}

// ResetWorld возвращает всех в лобби, запускает генерацию следующего мира
// и асинхронно удаляет активный: сначала выгрузка, потом удаление файлов.
func (m *Manager) ResetWorld(ctx context.Context) error {
	lobby := m.state.Load().Lobby
	if lobby == nil {
		return domain.InvalidStatef("world manager is not initialized")
	}

	err := m.queue.Do(ctx, func(ctx context.Context) error {
		for _, name := range m.engine.OnlinePlayers() {
			m.sendToLobby(ctx, name, lobby.Spawn)
		}
		return nil
	})
	if err != nil {
		m.log.WithError(err).Warn("Failed to move players to lobby")
	}

	m.PregenerateNext()

	m.mu.Lock()
	st := m.state.Load()
	active := st.Active
	m.swap(st.WithoutActiveWorld())
	m.mu.Unlock()

	if active == nil {
		return nil
	}
	dims := active.Dimensions()
	m.bg.Go("teardown:"+active.Name, func(ctx context.Context) error {
		return m.teardown(ctx, dims, m.cfg.UnloadSettle)
	})
	return nil
}

func (m *Manager) sendToLobby(ctx context.Context, name string, spawn domain.Location) {
	log := m.log.WithField("player", name)
	if err := m.engine.Teleport(ctx, name, spawn); err != nil {
		log.WithError(err).Warn("Failed to teleport player to lobby")
		return
	}
	if err := m.engine.SetGameMode(ctx, name, domain.GameModeAdventure); err != nil {
		log.WithError(err).Debug("Failed to set lobby game mode")
	}
	if err := m.engine.ResetVitals(ctx, name); err != nil {
		log.WithError(err).Debug("Failed to reset vitals")
	}
	if err := m.engine.SendMessage(ctx, name, lobbyMessage); err != nil {
		log.WithError(err).Debug("Failed to message player")
	}
}

// Shutdown отменяет генерацию в процессе
func (m *Manager) Shutdown() {
	m.cancelPregeneration()
	m.log.Info("World manager stopped")
}

// rules - правила игрового инстанса
func (m *Manager) rules(spawn domain.Location, daylight bool) live.WorldRules {
	return live.WorldRules{
		Difficulty:    live.DifficultyHard,
		Hardcore:      true,
		DaylightCycle: daylight,
		WeatherCycle:  true,
		MobSpawning:   true,
		Announcements: false,
		BorderSize:    m.cfg.BorderSize,
		BorderCenter:  spawn,
	}
}

// instanceNumber разбирает номер из имени hardcore_N
func (m *Manager) instanceNumber(name string) (int, bool) {
	if !strings.HasPrefix(name, m.cfg.InstancePrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, m.cfg.InstancePrefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// nextInstanceName выдает имя больше любого загруженного и любого выданного ранее.
// Вызывается в контексте мира, чтобы скан и создание не разошлись.
func (m *Manager) nextInstanceName() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range m.engine.LoadedWorlds() {
		if n, ok := m.instanceNumber(name); ok && n > m.highest {
			m.highest = n
		}
	}
	m.highest++
	return fmt.Sprintf("%s%d", m.cfg.InstancePrefix, m.highest)
}

func (m *Manager) worldDir(name string) string {
	return filepath.Join(m.engine.WorldContainer(), name)
}
