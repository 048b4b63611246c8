package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stage(cat, name string, order int, status string) ProgressStage {
	return ProgressStage{Category: cat, Name: name, SortOrder: order, Status: status}
}

func TestCalculateAppStatusEmpty(t *testing.T) {
	got := CalculateAppStatus(nil)
	assert.Equal(t, StageNotStarted, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, "", got.CurrentStage)
	assert.Empty(t, got.Categories)
}

func TestCalculateAppStatusMixed(t *testing.T) {
	stages := []ProgressStage{
		stage(CategoryVisa, "Visa Application", 1, StageNotStarted),
		stage(CategoryApplication, "Offer Letter", 2, StageInProgress),
		stage(CategoryApplication, "Document Collection", 1, StageCompleted),
		stage(CategoryVisa, "Visa Decision", 2, StageNotStarted),
	}

	got := CalculateAppStatus(stages)

	assert.Equal(t, StageInProgress, got.Status)
	// (1 + 0.5) / 4 = 37.5% -> 38
	assert.Equal(t, 38, got.Progress)
	assert.Equal(t, 1, got.Completed)
	assert.Equal(t, 1, got.InProgress)
	assert.Equal(t, "Offer Letter", got.CurrentStage)

	app := got.Categories[CategoryApplication]
	assert.Equal(t, StageInProgress, app.Status)
	assert.Equal(t, 75, app.Progress)

	visa := got.Categories[CategoryVisa]
	assert.Equal(t, StageNotStarted, visa.Status)
	assert.Equal(t, 0, visa.Progress)
}

func TestCalculateAppStatusCompleted(t *testing.T) {
	stages := []ProgressStage{
		stage(CategoryApplication, "A", 1, StageCompleted),
		stage(CategoryVisa, "B", 1, StageCompleted),
	}
	got := CalculateAppStatus(stages)
	assert.Equal(t, StageCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "", got.CurrentStage)
}

func TestCalculateAppStatusCurrentStageCrossesCategory(t *testing.T) {
	stages := []ProgressStage{
		stage(CategoryApplication, "A", 1, StageCompleted),
		stage(CategoryApplication, "B", 2, StageCompleted),
		stage(CategoryVisa, "C", 1, StageNotStarted),
	}
	got := CalculateAppStatus(stages)
	assert.Equal(t, StageInProgress, got.Status)
	assert.Equal(t, "C", got.CurrentStage)
	assert.Equal(t, StageCompleted, got.Categories[CategoryApplication].Status)
}

func TestCalculateAppStatusUnknownStatusCountsAsNotStarted(t *testing.T) {
	got := CalculateAppStatus([]ProgressStage{stage(CategoryApplication, "A", 1, "Blocked")})
	assert.Equal(t, StageNotStarted, got.Status)
	assert.Equal(t, 0, got.Progress)
	assert.Equal(t, "A", got.CurrentStage)
}

func TestCalculateAppStatusDoesNotReorderInput(t *testing.T) {
	stages := []ProgressStage{
		stage(CategoryVisa, "V", 1, StageNotStarted),
		stage(CategoryApplication, "A", 1, StageNotStarted),
	}
	CalculateAppStatus(stages)
	assert.Equal(t, "V", stages[0].Name)
}

func TestIsValidStageStatus(t *testing.T) {
	assert.True(t, IsValidStageStatus(StageInProgress))
	assert.False(t, IsValidStageStatus("Done"))
}

func TestAppointmentEndsAt(t *testing.T) {
	a := Appointment{}
	assert.Equal(t, a.StartsAt.Add(30*time.Minute), a.EndsAt())
}
