package domain

import "fmt"

// ItemStack - предмет и его количество (материал в формате движка, например DIAMOND_SWORD)
type ItemStack struct {
	Material string `json:"material"`
	Amount   int    `json:"amount"`
}

func (i ItemStack) String() string {
	return fmt.Sprintf("%s x%d", i.Material, i.Amount)
}

// GameMode - режим игры актора
type GameMode uint8

const (
	GameModeSurvival GameMode = iota
	GameModeAdventure
	GameModeSpectator
)

func (m GameMode) String() string {
	switch m {
	case GameModeSurvival:
		return "SURVIVAL"
	case GameModeAdventure:
		return "ADVENTURE"
	case GameModeSpectator:
		return "SPECTATOR"
	}
	return "UNKNOWN"
}
