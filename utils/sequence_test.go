package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"odcrm/models"
)

func threeSteps() []models.SequenceStep {
	// Deliberately out of order: NextStep must sort by step number.
	return []models.SequenceStep{
		{StepNumber: 3, SubjectTemplate: "s3"},
		{StepNumber: 1, SubjectTemplate: "s1"},
		{StepNumber: 2, SubjectTemplate: "s2"},
	}
}

func TestNextStepAdvancesCursor(t *testing.T) {
	steps := threeSteps()

	pending := &models.Prospect{LastStatus: models.ProspectStatusPending}
	got := NextStep(steps, pending)
	assert.NotNil(t, got)
	assert.Equal(t, 1, got.StepNumber)

	afterFirst := &models.Prospect{LastStatus: models.StepSentStatus(1)}
	got = NextStep(steps, afterFirst)
	assert.NotNil(t, got)
	assert.Equal(t, 2, got.StepNumber)

	afterLast := &models.Prospect{LastStatus: models.StepSentStatus(3)}
	assert.Nil(t, NextStep(steps, afterLast))
}

func TestNextStepTerminalStatuses(t *testing.T) {
	steps := threeSteps()
	for _, status := range []string{
		models.ProspectStatusReplied,
		models.ProspectStatusBounced,
		models.ProspectStatusUnsubscribed,
		models.ProspectStatusSuppressed,
	} {
		prospect := &models.Prospect{LastStatus: status}
		assert.Nil(t, NextStep(steps, prospect), "status %s must end the sequence", status)
	}
}

func TestNextStepEmptySequence(t *testing.T) {
	prospect := &models.Prospect{LastStatus: models.ProspectStatusPending}
	assert.Nil(t, NextStep(nil, prospect))
}

func TestParseStepSentStatus(t *testing.T) {
	assert.Equal(t, 1, models.ParseStepSentStatus("step1_sent"))
	assert.Equal(t, 10, models.ParseStepSentStatus("step10_sent"))
	assert.Equal(t, 0, models.ParseStepSentStatus("pending"))
	assert.Equal(t, 0, models.ParseStepSentStatus("step_sent"))
	assert.Equal(t, 0, models.ParseStepSentStatus("stepX_sent"))
}
