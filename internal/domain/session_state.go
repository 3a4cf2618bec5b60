package domain

import (
	"fmt"
	"time"
)

// SessionPhase - фаза сессии охотника. Движение только вперед:
// WaitingForJoin -> Active -> Ended, либо WaitingForJoin -> Ended.
type SessionPhase uint8

const (
	PhaseWaitingForJoin SessionPhase = iota
	PhaseActive
	PhaseEnded
)

var phaseToString = map[SessionPhase]string{
	PhaseWaitingForJoin: "WAITING_FOR_JOIN",
	PhaseActive:         "ACTIVE",
	PhaseEnded:          "ENDED",
}

func (p SessionPhase) String() string {
	if val, ok := phaseToString[p]; ok {
		return val
	}
	return "UNKNOWN"
}

func (p SessionPhase) MarshalText() ([]byte, error) {
	val, ok := phaseToString[p]
	if !ok {
		return nil, fmt.Errorf("invalid session phase %d", p)
	}
	return []byte(val), nil
}

// SessionState - размеченное объединение (tagged union) состояний сессии.
// Набор заполненных полей зависит от Phase:
//   - WaitingForJoin: ничего
//   - Active:         JoinedAt, Spawn
//   - Ended:          EndedAt, Outcome, JoinedAt (если охотник успел зайти)
type SessionState struct {
	Phase    SessionPhase     `json:"phase"`
	JoinedAt *time.Time       `json:"joinedAt,omitempty"`
	Spawn    *Location        `json:"spawn,omitempty"`
	EndedAt  *time.Time       `json:"endedAt,omitempty"`
	Outcome  EncounterOutcome `json:"outcome"`
}

func WaitingForJoin() SessionState {
	return SessionState{Phase: PhaseWaitingForJoin}
}

func ActiveSession(joinedAt time.Time, spawn Location) SessionState {
	return SessionState{Phase: PhaseActive, JoinedAt: &joinedAt, Spawn: &spawn}
}

func EndedSession(endedAt time.Time, outcome EncounterOutcome, joinedAt *time.Time) SessionState {
	return SessionState{Phase: PhaseEnded, EndedAt: &endedAt, Outcome: outcome, JoinedAt: joinedAt}
}

func (s SessionState) IsEnded() bool { return s.Phase == PhaseEnded }
