package terrain

import (
	"math"
	"math/rand"
)

// Константы генерации рельефа
const (
	DefaultSeaLevel  = 63
	DefaultAmplitude = 24
	DefaultCellSize  = 32 // Шаг решетки шума в блоках
	MinHeight        = -64
	MaxHeight        = 319
	ChunkSize        = 16
)

// HeightMap - детерминированная карта высот по сиду.
// Одинаковый сид всегда дает одинаковый рельеф.
type HeightMap struct {
	seed      int64
	seaLevel  int
	amplitude int
	cellSize  int
	flat      bool
}

// Builder предоставляет fluent API для настройки рельефа
type Builder struct {
	h HeightMap
}

// New создает builder рельефа для сида
func New(seed int64) *Builder {
	return &Builder{h: HeightMap{
		seed:      seed,
		seaLevel:  DefaultSeaLevel,
		amplitude: DefaultAmplitude,
		cellSize:  DefaultCellSize,
	}}
}

// WithSeaLevel задает базовую высоту
func (b *Builder) WithSeaLevel(level int) *Builder {
	b.h.seaLevel = level
	return b
}

// WithAmplitude задает максимальное отклонение от базовой высоты
func (b *Builder) WithAmplitude(amplitude int) *Builder {
	b.h.amplitude = amplitude
	return b
}

// Flat делает мир плоским (лобби)
func (b *Builder) Flat() *Builder {
	b.h.flat = true
	return b
}

func (b *Builder) Build() HeightMap {
	if b.h.cellSize <= 0 {
		b.h.cellSize = DefaultCellSize
	}
	return b.h
}

func (h HeightMap) Seed() int64 { return h.seed }

// HeightAt возвращает Y самого высокого твердого блока в колонке (x, z)
func (h HeightMap) HeightAt(x, z int) int {
	if h.flat {
		return h.seaLevel
	}

	// Две октавы value noise
	n := h.noise(x, z, h.cellSize)*0.75 + h.noise(x, z, h.cellSize/4+1)*0.25
	y := h.seaLevel + int(math.Round(n*float64(h.amplitude)))

	if y < MinHeight {
		return MinHeight
	}
	if y > MaxHeight {
		return MaxHeight
	}
	return y
}

// SpawnPoint возвращает точку появления по сиду: около начала координат,
// как у ванильного мира.
func (h HeightMap) SpawnPoint() (x, y, z int) {
	rng := rand.New(rand.NewSource(h.seed))
	x = rng.Intn(2*ChunkSize) - ChunkSize
	z = rng.Intn(2*ChunkSize) - ChunkSize
	return x, h.HeightAt(x, z) + 1, z
}

// ChunkOf возвращает координаты чанка для блока
func ChunkOf(blockX, blockZ int) (cx, cz int) {
	return floorDiv(blockX, ChunkSize), floorDiv(blockZ, ChunkSize)
}

// noise - билинейно интерполированный шум в диапазоне [-1, 1]
func (h HeightMap) noise(x, z, cell int) float64 {
	gx, gz := floorDiv(x, cell), floorDiv(z, cell)
	fx := float64(x-gx*cell) / float64(cell)
	fz := float64(z-gz*cell) / float64(cell)

	v00 := h.lattice(gx, gz)
	v10 := h.lattice(gx+1, gz)
	v01 := h.lattice(gx, gz+1)
	v11 := h.lattice(gx+1, gz+1)

	sx, sz := smooth(fx), smooth(fz)
	top := v00 + (v10-v00)*sx
	bottom := v01 + (v11-v01)*sx
	return top + (bottom-top)*sz
}

// lattice - псевдослучайное значение узла решетки (хеш сида и координат)
func (h HeightMap) lattice(gx, gz int) float64 {
	v := uint64(h.seed) ^ uint64(int64(gx))*0x9E3779B97F4A7C15 ^ uint64(int64(gz))*0xC2B2AE3D27D4EB4F
	v ^= v >> 33
	v *= 0xFF51AFD7ED558CCD
	v ^= v >> 33
	v *= 0xC4CEB9FE1A85EC53
	v ^= v >> 33
	return float64(v%2000001)/1000000 - 1
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
