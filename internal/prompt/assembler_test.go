package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nalahealth/coach/pkg/models"
)

func sampleExamples() []models.RetrievedExample {
	return []models.RetrievedExample{
		{
			Example: models.CoachingExample{
				ParticipantResponse: "I keep skipping my morning walks when it rains.",
				CoachResponse:       "What has helped you stay active on days the weather works against you?",
				Category:            "physical_activity",
				GoalType:            "consistency",
			},
			Similarity: 0.8731,
		},
		{
			Example: models.CoachingExample{
				ParticipantResponse: "I snack late at night without noticing.",
				CoachResponse:       "What do those evenings usually look like for you?",
				Category:            "nutrition",
				GoalType:            "awareness",
			},
			Similarity: 0.61,
		},
	}
}

func TestBuildSystemPromptDeterministic(t *testing.T) {
	a := NewAssembler(10)
	examples := sampleExamples()

	first := a.BuildSystemPrompt(examples)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, a.BuildSystemPrompt(examples))
	}
}

func TestBuildSystemPromptRendersExamples(t *testing.T) {
	a := NewAssembler(10)
	got := a.BuildSystemPrompt(sampleExamples())

	assert.Contains(t, got, "Example 1 (similarity: 0.87):")
	assert.Contains(t, got, "Example 2 (similarity: 0.61):")
	assert.Contains(t, got, "Participant: I keep skipping my morning walks when it rains.")
	assert.Contains(t, got, "Context: physical_activity | Goal: consistency")
	assert.NotContains(t, got, noExamplesLine)

	// Order of examples is preserved as given.
	assert.Less(t, strings.Index(got, "Example 1"), strings.Index(got, "Example 2"))
}

func TestBuildSystemPromptNoExamples(t *testing.T) {
	a := NewAssembler(10)
	got := a.BuildSystemPrompt(nil)

	assert.Contains(t, got, noExamplesLine)
	assert.Contains(t, got, "[SESSION_COMPLETE]")
}

func TestBuildMessagesWindow(t *testing.T) {
	a := NewAssembler(3)

	history := []models.Turn{
		{Role: models.RoleUser, Content: "turn 1"},
		{Role: models.RoleAssistant, Content: "turn 2"},
		{Role: models.RoleUser, Content: "turn 3"},
		{Role: models.RoleAssistant, Content: "turn 4"},
	}

	msgs := a.BuildMessages(history, "latest")
	assert.Len(t, msgs, 4)
	assert.Equal(t, "turn 2", msgs[0].Content)
	assert.Equal(t, "turn 3", msgs[1].Content)
	assert.Equal(t, "turn 4", msgs[2].Content)
	assert.Equal(t, "latest", msgs[3].Content)
	assert.Equal(t, "user", msgs[3].Role)
}

func TestBuildMessagesSkipsSystemTurns(t *testing.T) {
	a := NewAssembler(10)

	history := []models.Turn{
		{Role: models.RoleSystem, Content: "internal note"},
		{Role: models.RoleUser, Content: "hello"},
	}

	msgs := a.BuildMessages(history, "next")
	assert.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)
}

func TestBuildMessagesEmptyHistory(t *testing.T) {
	a := NewAssembler(10)

	msgs := a.BuildMessages(nil, "first message")
	assert.Len(t, msgs, 1)
	assert.Equal(t, "first message", msgs[0].Content)
}
