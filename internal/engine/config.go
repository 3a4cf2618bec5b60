package engine

import (
	"time"

	"hunt-server/internal/config"
)

// Config хранит параметры игры, которые нужны оркестратору и сессиям
type Config struct {
	StreamerName string

	JoinTimeout     time.Duration
	HuntDuration    time.Duration
	DeathEndDelay   time.Duration
	VictoryEndDelay time.Duration

	SpawnRadius       int
	Loadout           LoadoutConfig
	ImmediateReselect bool

	// Seed - зерно генератора точек спавна и наборов предметов
	Seed int64
}

// LoadoutConfig - пулы предметов "MATERIAL[:amount]" по категориям
type LoadoutConfig struct {
	Armor            []string
	Items            []string
	Weapons          []string
	ItemsPerCategory int
}

// NewConfig собирает конфиг движка из общего конфига (случайный сид)
func NewConfig(c config.Config) Config {
	return Config{
		StreamerName:    c.StreamerName,
		JoinTimeout:     c.Timing.JoinTimeout,
		HuntDuration:    c.Timing.HuntDuration,
		DeathEndDelay:   c.Timing.DeathEndDelay,
		VictoryEndDelay: c.Timing.VictoryEndDelay,
		SpawnRadius:     c.Spawn.RadiusBlocks,
		Loadout: LoadoutConfig{
			Armor:            c.Loadout.Armor,
			Items:            c.Loadout.Items,
			Weapons:          c.Loadout.Weapons,
			ItemsPerCategory: c.Loadout.ItemsPerCategory,
		},
		ImmediateReselect: c.NoShow.ImmediateReselect,
		Seed:              time.Now().UnixNano(),
	}
}
