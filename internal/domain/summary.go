package domain

// AttemptSummary - агрегированная статистика по завершенным попыткам.
// Длительности nil, если нет ни одной попытки с обоими таймстемпами.
type AttemptSummary struct {
	AverageDurationSeconds *int64 `json:"averageDurationSeconds"`
	Cancelled              int    `json:"cancelled"`
	Deaths                 int    `json:"deaths"`
	HunterKills            int    `json:"hunterKills"` // Встречи с итогом KILLED_TARGET
	LongestAttemptSeconds  *int64 `json:"longestAttemptSeconds"`
	ShortestAttemptSeconds *int64 `json:"shortestAttemptSeconds"`
	TotalAttempts          int    `json:"totalAttempts"`
	TotalHunterEncounters  int    `json:"totalHunterEncounters"`
	Victories              int    `json:"victories"`
}
