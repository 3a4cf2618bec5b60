package engine

import (
	"math"
	"math/rand"

	"hunt-server/internal/domain"
)

// HeightFunc возвращает Y самого высокого твердого блока в колонке
type HeightFunc func(x, z int) (int, error)

// SpawnPoint выбирает точку на расстоянии [r/2, r) от центра под случайным
// углом. Охотник появляется на блок выше поверхности.
func SpawnPoint(rng *rand.Rand, center domain.Location, radius int, height HeightFunc) (domain.Location, error) {
	minDist := float64(radius) / 2
	dist := minDist + rng.Float64()*(float64(radius)-minDist)
	angle := rng.Float64() * 2 * math.Pi

	x := center.X + math.Cos(angle)*dist
	z := center.Z + math.Sin(angle)*dist

	y, err := height(int(math.Floor(x)), int(math.Floor(z)))
	if err != nil {
		return domain.Location{}, err
	}

	// Центр блока, чтобы не застрять в соседнем
	return domain.Location{
		World: center.World,
		X:     math.Floor(x) + 0.5,
		Y:     float64(y + 1),
		Z:     math.Floor(z) + 0.5,
	}, nil
}
