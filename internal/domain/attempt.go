package domain

import "time"

// Encounter - запись об одной сессии охотника. Создается ровно один раз,
// когда сессия переходит в Ended, и дописывается в текущую попытку.
type Encounter struct {
	EndedAt         time.Time        `json:"endedAt"`
	JoinedAt        *time.Time       `json:"joinedAt,omitempty"`
	HunterQueueName string           `json:"hunterQueueName"` // Имя в очереди (чат)
	HunterActorName string           `json:"hunterActorName"` // Имя персонажа в мире
	Outcome         EncounterOutcome `json:"outcome"`
}

// AttemptRecord - один забег от старта до финала.
// Значение неизменяемое: WithEnd и WithEncounter возвращают копию.
type AttemptRecord struct {
	AttemptNumber int            `json:"attemptNumber"`
	Seed          int64          `json:"seed"`
	StartedAt     time.Time      `json:"startedAt"`
	EndedAt       *time.Time     `json:"endedAt,omitempty"`
	Outcome       AttemptOutcome `json:"outcome"`
	StreamerName  string         `json:"streamerName"`
	WorldName     string         `json:"worldName"`
	Encounters    []Encounter    `json:"encounters"`
}

// NewAttempt создает попытку в состоянии IN_PROGRESS
func NewAttempt(number int, seed int64, startedAt time.Time, streamer, world string) AttemptRecord {
	return AttemptRecord{
		AttemptNumber: number,
		Seed:          seed,
		StartedAt:     startedAt,
		Outcome:       AttemptInProgress,
		StreamerName:  streamer,
		WorldName:     world,
		Encounters:    []Encounter{},
	}
}

// WithEnd фиксирует время окончания и итог
func (a AttemptRecord) WithEnd(outcome AttemptOutcome, at time.Time) AttemptRecord {
	a.EndedAt = &at
	a.Outcome = outcome
	a.Encounters = cloneEncounters(a.Encounters)
	return a
}

// WithEncounter возвращает копию с добавленной встречей
func (a AttemptRecord) WithEncounter(e Encounter) AttemptRecord {
	encounters := make([]Encounter, 0, len(a.Encounters)+1)
	encounters = append(encounters, a.Encounters...)
	a.Encounters = append(encounters, e)
	return a
}

// DurationSeconds возвращает длительность попытки, если она завершена
func (a AttemptRecord) DurationSeconds() (int64, bool) {
	if a.EndedAt == nil {
		return 0, false
	}
	return int64(a.EndedAt.Sub(a.StartedAt) / time.Second), true
}

// CountEncounters считает встречи с указанным итогом
func (a AttemptRecord) CountEncounters(outcome EncounterOutcome) int {
	n := 0
	for _, e := range a.Encounters {
		if e.Outcome == outcome {
			n++
		}
	}
	return n
}

func cloneEncounters(in []Encounter) []Encounter {
	out := make([]Encounter, len(in))
	copy(out, in)
	return out
}
