// Package live описывает границу с живым игровым движком.
// Все изменяющие методы Engine вызываются только из контекста мира
// (dispatch.WorldQueue): движок не допускает параллельных мутаций.
package live

import (
	"context"
	"errors"

	"hunt-server/internal/domain"
)

var (
	ErrWorldNotFound   = errors.New("world not found")
	ErrWorldExists     = errors.New("world already exists")
	ErrPlayerOffline   = errors.New("player is not online")
	ErrChunkOutOfWorld = errors.New("chunk outside world border")
)

// Environment - тип измерения
type Environment uint8

const (
	EnvironmentNormal Environment = iota
	EnvironmentNether
	EnvironmentEnd
)

var environmentToString = map[Environment]string{
	EnvironmentNormal: "NORMAL",
	EnvironmentNether: "NETHER",
	EnvironmentEnd:    "THE_END",
}

func (e Environment) String() string {
	if val, ok := environmentToString[e]; ok {
		return val
	}
	return "UNKNOWN"
}

// Difficulty - сложность мира
type Difficulty uint8

const (
	DifficultyPeaceful Difficulty = iota
	DifficultyEasy
	DifficultyNormal
	DifficultyHard
)

func (d Difficulty) String() string {
	switch d {
	case DifficultyPeaceful:
		return "PEACEFUL"
	case DifficultyEasy:
		return "EASY"
	case DifficultyNormal:
		return "NORMAL"
	case DifficultyHard:
		return "HARD"
	}
	return "UNKNOWN"
}

// WorldSpec - параметры создания измерения
type WorldSpec struct {
	Name        string
	Seed        int64
	Environment Environment
	Flat        bool
}

// WorldRules - правила мира (сложность, граница, игровые правила)
type WorldRules struct {
	Difficulty    Difficulty      `json:"difficulty"`
	Hardcore      bool            `json:"hardcore"`
	DaylightCycle bool            `json:"daylightCycle"`
	WeatherCycle  bool            `json:"weatherCycle"`
	MobSpawning   bool            `json:"mobSpawning"`
	Announcements bool            `json:"announcements"`
	BorderSize    float64         `json:"borderSize"` // 0 - без границы
	BorderCenter  domain.Location `json:"borderCenter"`
}

// Engine - операции живого движка, которые нужны ядру
type Engine interface {
	// Миры
	CreateWorld(ctx context.Context, spec WorldSpec) (domain.World, error)
	LoadWorld(ctx context.Context, name string) (domain.World, error)
	UnloadWorld(ctx context.Context, name string, save bool) error
	LoadedWorlds() []string
	WorldContainer() string
	ConfigureWorld(ctx context.Context, name string, rules WorldRules) error
	SetDaylightCycle(ctx context.Context, name string, enabled bool) error
	PreloadChunk(ctx context.Context, world string, cx, cz int) error
	HighestBlockY(world string, x, z int) (int, error)

	// Игроки
	OnlinePlayers() []string
	IsOnline(name string) bool
	PlayerLocation(name string) (domain.Location, bool)
	Teleport(ctx context.Context, name string, to domain.Location) error
	ResetVitals(ctx context.Context, name string) error
	ClearInventory(ctx context.Context, name string) error
	GiveItems(ctx context.Context, name string, items []domain.ItemStack) error
	SetGameMode(ctx context.Context, name string, mode domain.GameMode) error
	Kick(ctx context.Context, name, reason string) error

	// Доступ и сообщения
	SetAllowed(ctx context.Context, name string, allowed bool) error
	Broadcast(ctx context.Context, message string) error
	SendMessage(ctx context.Context, name, message string) error
}

// Listener получает события движка (вход/выход/смерть игроков, победа над драконом).
// Вызывается из контекста мира, поэтому реализация не должна блокироваться.
type Listener interface {
	OnPlayerJoin(name string)
	OnPlayerQuit(name string)
	OnPlayerDeath(name, killer string)
	OnDragonDefeated(world string)
}
