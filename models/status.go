package models

import (
	"math"
	"sort"
)

// StatusSummary is the aggregate of a set of progress stages.
type StatusSummary struct {
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
	Total      int    `json:"total"`
	Completed  int    `json:"completed"`
	InProgress int    `json:"in_progress"`
}

// AppStatus is the derived state of an application.
type AppStatus struct {
	StatusSummary
	CurrentStage string                   `json:"current_stage"`
	Categories   map[string]StatusSummary `json:"categories"`
}

var categoryRank = map[string]int{
	CategoryApplication: 0,
	CategoryVisa:        1,
}

// IsValidStageStatus reports whether s is one of the three stage statuses.
func IsValidStageStatus(s string) bool {
	return s == StageNotStarted || s == StageInProgress || s == StageCompleted
}

// CalculateAppStatus derives overall and per-category status from stages.
// Completed stages count fully toward progress and in-progress stages count
// half. Unknown statuses are treated as Not Started.
func CalculateAppStatus(stages []ProgressStage) AppStatus {
	ordered := make([]ProgressStage, len(stages))
	copy(ordered, stages)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := rank(ordered[i].Category), rank(ordered[j].Category)
		if ri != rj {
			return ri < rj
		}
		return ordered[i].SortOrder < ordered[j].SortOrder
	})

	out := AppStatus{Categories: map[string]StatusSummary{}}
	byCat := map[string][]ProgressStage{}
	for _, s := range ordered {
		byCat[s.Category] = append(byCat[s.Category], s)
		if out.CurrentStage == "" && s.Status != StageCompleted {
			out.CurrentStage = s.Name
		}
	}
	out.StatusSummary = summarize(ordered)
	for cat, list := range byCat {
		out.Categories[cat] = summarize(list)
	}
	return out
}

func summarize(stages []ProgressStage) StatusSummary {
	sum := StatusSummary{Status: StageNotStarted, Total: len(stages)}
	if sum.Total == 0 {
		return sum
	}
	for _, s := range stages {
		switch s.Status {
		case StageCompleted:
			sum.Completed++
		case StageInProgress:
			sum.InProgress++
		}
	}
	weighted := float64(sum.Completed) + 0.5*float64(sum.InProgress)
	sum.Progress = int(math.Round(weighted / float64(sum.Total) * 100))

	switch {
	case sum.Completed == sum.Total:
		sum.Status = StageCompleted
	case sum.Completed+sum.InProgress == 0:
		sum.Status = StageNotStarted
	default:
		sum.Status = StageInProgress
	}
	return sum
}

func rank(category string) int {
	if r, ok := categoryRank[category]; ok {
		return r
	}
	return len(categoryRank)
}
