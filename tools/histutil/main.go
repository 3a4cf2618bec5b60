package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"hunt-server/internal/domain"
	"hunt-server/internal/infrastructure/storage"
)

func main() {
	if len(os.Args) < 3 {
		printHelp()
		return
	}

	store := storage.NewHistoryStore(os.Args[2])
	history := store.Load(context.Background())

	switch os.Args[1] {
	case "summary":
		printSummary(storage.Summarize(history))
	case "list":
		printList(history)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(storage.Summarize(history)); err != nil {
			fmt.Printf("Failed to encode summary: %v\n", err)
			os.Exit(1)
		}
	default:
		printHelp()
	}
}

func printSummary(s domain.AttemptSummary) {
	fmt.Printf("Attempts:   %d (victories %d, deaths %d, cancelled %d)\n", s.TotalAttempts, s.Victories, s.Deaths, s.Cancelled)
	fmt.Printf("Encounters: %d (hunter kills %d)\n", s.TotalHunterEncounters, s.HunterKills)
	fmt.Printf("Average:    %s\n", seconds(s.AverageDurationSeconds))
	fmt.Printf("Shortest:   %s\n", seconds(s.ShortestAttemptSeconds))
	fmt.Printf("Longest:    %s\n", seconds(s.LongestAttemptSeconds))
}

func printList(history []domain.AttemptRecord) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTARTED\tOUTCOME\tDURATION\tENCOUNTERS\tWORLD")
	for _, a := range history {
		duration := "-"
		if d, ok := a.DurationSeconds(); ok {
			duration = (time.Duration(d) * time.Second).String()
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			a.AttemptNumber,
			a.StartedAt.Local().Format("2006-01-02 15:04"),
			a.Outcome,
			duration,
			len(a.Encounters),
			a.WorldName,
		)
	}
	_ = w.Flush()
}

func seconds(v *int64) string {
	if v == nil {
		return "-"
	}
	return (time.Duration(*v) * time.Second).String()
}

func printHelp() {
	fmt.Println(`History Utility - просмотр истории попыток
Commands:
  summary <file>   - агрегаты по завершенным попыткам
  list <file>      - таблица всех попыток
  json <file>      - агрегаты в JSON (как /api/hunt/summary)`)
}
