package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config хранит все параметры запуска сервера охоты.
// Значения читаются из окружения (и необязательного .env файла).
type Config struct {
	StreamerName string `env:"HUNT_STREAMER_NAME,required"`
	DataDir      string `env:"HUNT_DATA_DIR" envDefault:"data"`

	API     APIConfig     `envPrefix:"HUNT_API_"`
	Timing  TimingConfig  `envPrefix:"HUNT_TIMING_"`
	Spawn   SpawnConfig   `envPrefix:"HUNT_SPAWN_"`
	Loadout LoadoutConfig `envPrefix:"HUNT_LOADOUT_"`
	NoShow  NoShowConfig  `envPrefix:"HUNT_NOSHOW_"`
	World   WorldConfig   `envPrefix:"HUNT_WORLD_"`
	Log     LogConfig     `envPrefix:"LOG_"`
}

type APIConfig struct {
	Port                  int           `env:"PORT" envDefault:"8080"`
	WebhookURL            string        `env:"WEBHOOK_URL" envDefault:"http://localhost:3000/webhook"`
	WebhookConnectTimeout time.Duration `env:"WEBHOOK_CONNECT_TIMEOUT" envDefault:"3s"`
	WebhookRequestTimeout time.Duration `env:"WEBHOOK_REQUEST_TIMEOUT" envDefault:"5s"`
	EnableDebug           bool          `env:"DEBUG_ROUTES" envDefault:"false"`
}

type TimingConfig struct {
	JoinTimeout  time.Duration `env:"JOIN_TIMEOUT" envDefault:"2m"`
	HuntDuration time.Duration `env:"HUNT_DURATION" envDefault:"15m"`
	// Задержки перед завершением попытки (даем зрителям увидеть момент)
	DeathEndDelay   time.Duration `env:"DEATH_END_DELAY" envDefault:"3s"`
	VictoryEndDelay time.Duration `env:"VICTORY_END_DELAY" envDefault:"10s"`
	HUDInterval     time.Duration `env:"HUD_INTERVAL" envDefault:"1s"`
}

type SpawnConfig struct {
	RadiusBlocks int `env:"RADIUS_BLOCKS" envDefault:"200"`
}

// LoadoutConfig - пулы предметов в формате "MATERIAL[:amount]"
type LoadoutConfig struct {
	Armor            []string `env:"ARMOR" envSeparator:"," envDefault:"IRON_HELMET,IRON_CHESTPLATE,IRON_LEGGINGS,IRON_BOOTS,CHAINMAIL_CHESTPLATE"`
	Items            []string `env:"ITEMS" envSeparator:"," envDefault:"COOKED_BEEF:16,GOLDEN_APPLE:2,ENDER_PEARL:4,COBBLESTONE:32,WATER_BUCKET"`
	Weapons          []string `env:"WEAPONS" envSeparator:"," envDefault:"IRON_SWORD,STONE_AXE,BOW,ARROW:32,CROSSBOW"`
	ItemsPerCategory int      `env:"ITEMS_PER_CATEGORY" envDefault:"2"`
}

type NoShowConfig struct {
	ImmediateReselect bool `env:"IMMEDIATE_RESELECT" envDefault:"true"`
}

type WorldConfig struct {
	ContainerDir   string        `env:"CONTAINER_DIR" envDefault:"worlds"`
	LobbyName      string        `env:"LOBBY_NAME" envDefault:"lobby"`
	InstancePrefix string        `env:"INSTANCE_PREFIX" envDefault:"hardcore_"`
	PreloadRadius  int           `env:"PRELOAD_RADIUS" envDefault:"5"`
	BorderSize     float64       `env:"BORDER_SIZE" envDefault:"10000"`
	UnloadSettle   time.Duration `env:"UNLOAD_SETTLE" envDefault:"2s"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// Load читает .env (если он есть) и парсит окружение в Config
func Load(envFiles ...string) (Config, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadDotEnv подгружает .env файлы. Отсутствующий файл - не ошибка:
// в контейнере все переменные приходят из окружения.
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

// Validate проверяет значения, которые env не может проверить сам
func (c Config) Validate() error {
	var errs []error
	if c.StreamerName == "" {
		errs = append(errs, errors.New("streamer name must be set"))
	}
	if c.Timing.JoinTimeout <= 0 {
		errs = append(errs, errors.New("join timeout must be positive"))
	}
	if c.Timing.HuntDuration <= 0 {
		errs = append(errs, errors.New("hunt duration must be positive"))
	}
	if c.Spawn.RadiusBlocks <= 0 {
		errs = append(errs, errors.New("spawn radius must be positive"))
	}
	if c.Loadout.ItemsPerCategory < 0 {
		errs = append(errs, errors.New("items per category cannot be negative"))
	}
	if c.World.PreloadRadius < 0 {
		errs = append(errs, errors.New("preload radius cannot be negative"))
	}
	if c.World.InstancePrefix == "" || c.World.LobbyName == "" {
		errs = append(errs, errors.New("world names must be set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// HistoryFile - путь к файлу истории попыток
func (c Config) HistoryFile() string {
	return filepath.Join(c.DataDir, "attempt_history.json")
}

// Default возвращает конфиг со значениями по умолчанию без чтения окружения.
// Используется в тестах и инструментах.
func Default(streamer string) Config {
	cfg := Config{StreamerName: streamer}
	_ = env.ParseWithOptions(&cfg, env.Options{Environment: map[string]string{
		"HUNT_STREAMER_NAME": streamer,
	}})
	return cfg
}
