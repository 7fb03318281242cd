package utils

import (
	"sort"

	"odcrm/models"
)

// NextStep returns the sequence step the prospect should receive next: the
// step immediately after the last sent one, or step 1 if nothing was sent.
// Nil when the prospect is in a terminal status or past the final step.
func NextStep(steps []models.SequenceStep, prospect *models.Prospect) *models.SequenceStep {
	if prospect.InTerminalStatus() || len(steps) == 0 {
		return nil
	}

	sorted := make([]models.SequenceStep, len(steps))
	copy(sorted, steps)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StepNumber < sorted[j].StepNumber
	})

	want := prospect.LastSentStep() + 1
	for i := range sorted {
		if sorted[i].StepNumber == want {
			return &sorted[i]
		}
	}
	return nil
}
