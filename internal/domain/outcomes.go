package domain

import (
	"fmt"
	"strings"
)

// AttemptOutcome - итог попытки (забега) целиком
type AttemptOutcome uint8

const (
	AttemptInProgress AttemptOutcome = iota
	AttemptCancelled
	AttemptDeath
	AttemptVictory
)

// Маппинг для конвертации JSON -> Domain
var attemptStringToOutcome = map[string]AttemptOutcome{
	"IN_PROGRESS": AttemptInProgress,
	"CANCELLED":   AttemptCancelled,
	"DEATH":       AttemptDeath,
	"VICTORY":     AttemptVictory,
}

// Маппинг для логов Domain -> String
var attemptOutcomeToString = map[AttemptOutcome]string{
	AttemptInProgress: "IN_PROGRESS",
	AttemptCancelled:  "CANCELLED",
	AttemptDeath:      "DEATH",
	AttemptVictory:    "VICTORY",
}

// ParseAttemptOutcome конвертирует строку в AttemptOutcome.
// Принимает также короткие формы из команды /hunt end (cancel, death, victory).
func ParseAttemptOutcome(s string) (AttemptOutcome, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	if upper == "CANCEL" {
		upper = "CANCELLED"
	}
	if val, ok := attemptStringToOutcome[upper]; ok {
		return val, nil
	}
	return AttemptInProgress, fmt.Errorf("unknown attempt outcome %q", s)
}

// String реализует интерфейс Stringer (для fmt.Printf)
func (o AttemptOutcome) String() string {
	if val, ok := attemptOutcomeToString[o]; ok {
		return val
	}
	return "UNKNOWN"
}

// Label - человекочитаемое название для сообщений в чате
func (o AttemptOutcome) Label() string {
	switch o {
	case AttemptCancelled:
		return "Cancelled"
	case AttemptDeath:
		return "Death"
	case AttemptVictory:
		return "Victory"
	default:
		return "In Progress"
	}
}

func (o AttemptOutcome) MarshalText() ([]byte, error) {
	val, ok := attemptOutcomeToString[o]
	if !ok {
		return nil, fmt.Errorf("invalid attempt outcome %d", o)
	}
	return []byte(val), nil
}

func (o *AttemptOutcome) UnmarshalText(b []byte) error {
	val, ok := attemptStringToOutcome[string(b)]
	if !ok {
		return fmt.Errorf("unknown attempt outcome %q", string(b))
	}
	*o = val
	return nil
}

// EncounterOutcome - чем закончилась одна сессия охотника
type EncounterOutcome uint8

const (
	EncounterCancelled EncounterOutcome = iota
	EncounterDied
	EncounterDisconnected
	EncounterHuntTimeout
	EncounterJoinTimeout
	EncounterKilledTarget
)

var encounterStringToOutcome = map[string]EncounterOutcome{
	"CANCELLED":     EncounterCancelled,
	"DIED":          EncounterDied,
	"DISCONNECTED":  EncounterDisconnected,
	"HUNT_TIMEOUT":  EncounterHuntTimeout,
	"JOIN_TIMEOUT":  EncounterJoinTimeout,
	"KILLED_TARGET": EncounterKilledTarget,
}

var encounterOutcomeToString = map[EncounterOutcome]string{
	EncounterCancelled:    "CANCELLED",
	EncounterDied:         "DIED",
	EncounterDisconnected: "DISCONNECTED",
	EncounterHuntTimeout:  "HUNT_TIMEOUT",
	EncounterJoinTimeout:  "JOIN_TIMEOUT",
	EncounterKilledTarget: "KILLED_TARGET",
}

// ParseEncounterOutcome конвертирует строку в EncounterOutcome
func ParseEncounterOutcome(s string) (EncounterOutcome, error) {
	if val, ok := encounterStringToOutcome[strings.ToUpper(s)]; ok {
		return val, nil
	}
	return EncounterCancelled, fmt.Errorf("unknown encounter outcome %q", s)
}

func (o EncounterOutcome) String() string {
	if val, ok := encounterOutcomeToString[o]; ok {
		return val
	}
	return "UNKNOWN"
}

func (o EncounterOutcome) MarshalText() ([]byte, error) {
	val, ok := encounterOutcomeToString[o]
	if !ok {
		return nil, fmt.Errorf("invalid encounter outcome %d", o)
	}
	return []byte(val), nil
}

func (o *EncounterOutcome) UnmarshalText(b []byte) error {
	val, ok := encounterStringToOutcome[string(b)]
	if !ok {
		return fmt.Errorf("unknown encounter outcome %q", string(b))
	}
	*o = val
	return nil
}
