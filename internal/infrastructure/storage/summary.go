package storage

import "hunt-server/internal/domain"

// Summarize считает статистику по завершенным попыткам (IN_PROGRESS пропускаются)
func Summarize(history []domain.AttemptRecord) domain.AttemptSummary {
	var (
		summary   domain.AttemptSummary
		durations []int64
	)

	for _, a := range history {
		if a.Outcome == domain.AttemptInProgress {
			continue
		}
		summary.TotalAttempts++

		switch a.Outcome {
		case domain.AttemptCancelled:
			summary.Cancelled++
		case domain.AttemptDeath:
			summary.Deaths++
		case domain.AttemptVictory:
			summary.Victories++
		}

		summary.TotalHunterEncounters += len(a.Encounters)
		summary.HunterKills += a.CountEncounters(domain.EncounterKilledTarget)

		if d, ok := a.DurationSeconds(); ok {
			durations = append(durations, d)
		}
	}

	if len(durations) == 0 {
		return summary
	}

	var total int64
	longest, shortest := durations[0], durations[0]
	for _, d := range durations {
		total += d
		longest = max(longest, d)
		shortest = min(shortest, d)
	}
	avg := total / int64(len(durations))

	summary.AverageDurationSeconds = &avg
	summary.LongestAttemptSeconds = &longest
	summary.ShortestAttemptSeconds = &shortest
	return summary
}
