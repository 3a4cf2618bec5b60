package domain

import "time"

// SessionSnapshot - публичный слепок активной сессии охотника.
// Хранится в GameState, чтобы слушатели событий (вход/выход игроков)
// могли узнать охотника без обращения к самой сессии.
type SessionSnapshot struct {
	SessionID       string    `json:"sessionId"`
	HunterQueueName string    `json:"hunterQueueName"`
	HunterActorName string    `json:"hunterActorName"`
	StartedAt       time.Time `json:"startedAt"`
	ExpiresAt       time.Time `json:"expiresAt"` // Дедлайн на вход
	HunterJoined    bool      `json:"hunterJoined"`
}

// GameState - снимок состояния игры. Никогда не изменяется на месте,
// каждый переход создает новую копию (copy-on-write).
//
// Инварианты:
//   - CurrentAttempt != nil  <=>  Active
//   - ActiveSession != nil   =>   Active && !Paused
type GameState struct {
	CurrentAttempt *AttemptRecord   `json:"currentAttempt,omitempty"`
	History        []AttemptRecord  `json:"history"`
	ActiveSession  *SessionSnapshot `json:"activeSession,omitempty"`
	Active         bool             `json:"active"`
	Paused         bool             `json:"paused"`
}

// NewGameState создает стартовое состояние с загруженной историей
func NewGameState(history []AttemptRecord) GameState {
	h := make([]AttemptRecord, len(history))
	copy(h, history)
	return GameState{History: h}
}

// CurrentAttemptNumber возвращает номер текущей попытки (0, false если нет)
func (s GameState) CurrentAttemptNumber() (int, bool) {
	if s.CurrentAttempt == nil {
		return 0, false
	}
	return s.CurrentAttempt.AttemptNumber, true
}

func (s GameState) WithNewAttempt(a AttemptRecord) GameState {
	s.CurrentAttempt = &a
	s.ActiveSession = nil
	s.Active = true
	s.Paused = false
	return s
}

// WithEndedAttempt завершает текущую попытку и переносит ее в историю
func (s GameState) WithEndedAttempt(outcome AttemptOutcome, at time.Time) GameState {
	if s.CurrentAttempt == nil {
		return s
	}
	ended := s.CurrentAttempt.WithEnd(outcome, at)

	history := make([]AttemptRecord, 0, len(s.History)+1)
	history = append(history, s.History...)
	s.History = append(history, ended)

	s.CurrentAttempt = nil
	s.ActiveSession = nil
	s.Active = false
	s.Paused = false
	return s
}

func (s GameState) WithEncounter(e Encounter) GameState {
	if s.CurrentAttempt == nil {
		return s
	}
	updated := s.CurrentAttempt.WithEncounter(e)
	s.CurrentAttempt = &updated
	return s
}

func (s GameState) WithSession(snapshot SessionSnapshot) GameState {
	s.ActiveSession = &snapshot
	return s
}

func (s GameState) WithoutSession() GameState {
	s.ActiveSession = nil
	return s
}

// WithPaused ставит игру на паузу. Активная сессия при этом снимается.
func (s GameState) WithPaused() GameState {
	s.ActiveSession = nil
	s.Paused = true
	return s
}

func (s GameState) WithResumed() GameState {
	s.Paused = false
	return s
}

// Consistent проверяет инварианты снимка (используется в тестах и debug-роутах)
func (s GameState) Consistent() bool {
	if (s.CurrentAttempt != nil) != s.Active {
		return false
	}
	if s.ActiveSession != nil && (!s.Active || s.Paused) {
		return false
	}
	return true
}
