package domain

import (
	"math"
	"time"
)

// Суффиксы дополнительных измерений. Каждое игровое измерение хранится
// в собственной директории: <name>, <name>_nether, <name>_the_end.
const (
	NetherSuffix = "_nether"
	EndSuffix    = "_the_end"
)

// Location - точка в конкретном мире
type Location struct {
	World string  `json:"world"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
}

// BlockX/BlockZ - координаты блока (для логов и поиска высоты)
func (l Location) BlockX() int { return int(math.Floor(l.X)) }
func (l Location) BlockY() int { return int(math.Floor(l.Y)) }
func (l Location) BlockZ() int { return int(math.Floor(l.Z)) }

// DistanceTo возвращает расстояние в блоках. Для разных миров - +Inf.
func (l Location) DistanceTo(other Location) float64 {
	if l.World != other.World {
		return math.Inf(1)
	}
	dx, dy, dz := l.X-other.X, l.Y-other.Y, l.Z-other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// World - ссылка на загруженный экземпляр мира. Только для чтения:
// создает и удаляет миры исключительно world.Manager.
type World struct {
	Name      string    `json:"name"`
	Seed      int64     `json:"seed"`
	Spawn     Location  `json:"spawn"`
	CreatedAt time.Time `json:"createdAt"`
}

// Dimensions возвращает имена всех измерений мира (overworld, nether, end)
func (w World) Dimensions() []string {
	return []string{w.Name, w.Name + NetherSuffix, w.Name + EndSuffix}
}

// WorldState - снимок трех слотов миров.
//
// Инварианты:
//   - PregenerationInProgress => Next == nil
//   - активация мира всегда очищает Next
type WorldState struct {
	Lobby                   *World `json:"lobby"`
	Active                  *World `json:"active,omitempty"`
	Next                    *World `json:"next,omitempty"`
	PregenerationInProgress bool   `json:"pregenerationInProgress"`
}

func (s WorldState) WithActiveWorld(w *World) WorldState {
	s.Active = w
	s.Next = nil
	return s
}

func (s WorldState) WithoutActiveWorld() WorldState {
	s.Active = nil
	return s
}

func (s WorldState) WithNextWorld(w *World) WorldState {
	s.Next = w
	s.PregenerationInProgress = false
	return s
}

func (s WorldState) WithPregenerationStarted() WorldState {
	s.Next = nil
	s.PregenerationInProgress = true
	return s
}

func (s WorldState) WithPregenerationFailed() WorldState {
	s.PregenerationInProgress = false
	return s
}
