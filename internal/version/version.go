package version

import (
	"fmt"
	"runtime"
	"time"
)

// Заполняются через -ldflags при сборке
var (
	BuildDate   string // YYYY-MM-DD (UTC)
	BuildCommit string
	BuildBranch string
	BuildCI     string
)

// Номер сборки - число дней от начала проекта
var buildEpoch = time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)

// VersionInfo - метаданные сборки для /version
type VersionInfo struct {
	Service    string `json:"service"`
	BuildID    int    `json:"buildId"`
	BuildDate  string `json:"buildDate,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Branch     string `json:"branch,omitempty"`
	CI         string `json:"ci,omitempty"`
	GoVersion  string `json:"goVersion"`
	Calculated bool   `json:"calculated"`
	Error      string `json:"error,omitempty"`
}

// BuildIDFor считает номер сборки для даты YYYY-MM-DD
func BuildIDFor(date string) (int, error) {
	if date == "" {
		return 0, fmt.Errorf("build date is empty")
	}

	t, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("invalid build date %q: %w", date, err)
	}
	if t.Before(buildEpoch) {
		return 0, fmt.Errorf("build date %s is before epoch", date)
	}

	// Обе даты в UTC, поэтому целое число суток
	return int(t.Sub(buildEpoch).Hours() / 24), nil
}

// CalculateBuildID считает номер текущей сборки
func CalculateBuildID() (int, error) {
	return BuildIDFor(BuildDate)
}

// Info возвращает метаданные сборки. Безопасно вызывать в любой момент.
func Info() VersionInfo {
	info := VersionInfo{
		Service:   "hunt-server",
		BuildDate: BuildDate,
		Commit:    BuildCommit,
		Branch:    BuildBranch,
		CI:        BuildCI,
		GoVersion: runtime.Version(),
	}

	id, err := CalculateBuildID()
	if err != nil {
		info.Error = err.Error()
		return info
	}
	info.BuildID = id
	info.Calculated = true
	return info
}

// String - строка для лога при старте
func String() string {
	info := Info()
	if !info.Calculated {
		return fmt.Sprintf("hunt-server build unknown (%s), %s", info.Error, info.GoVersion)
	}

	return fmt.Sprintf(
		"hunt-server build %d (%s) commit[%s] branch[%s] ci[%s] %s",
		info.BuildID,
		info.BuildDate,
		coalesce(info.Commit, "unknown"),
		coalesce(info.Branch, "unknown"),
		coalesce(info.CI, "local"),
		info.GoVersion,
	)
}

func coalesce(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
