// Package prompt assembles the system prompt and message window sent to
// completion providers. Assembly is deterministic: the same inputs always
// produce byte-identical output.
package prompt

import (
	"fmt"
	"strings"

	"github.com/nalahealth/coach/pkg/models"
)

const basePersona = `You are a supportive, empathetic health coach helping participants work through a structured behavior-change program. You listen carefully, reflect what the participant says, and guide them toward their own insights rather than lecturing. Keep responses warm, concise, and grounded in what the participant has actually shared.

When the participant has worked through the goals of the current session, append the marker [SESSION_COMPLETE] to the very end of your response. Do not mention the marker or explain it.`

const noExamplesLine = "No relevant examples found in the database."

// Assembler builds provider-ready prompts from retrieved examples and
// conversation history.
type Assembler struct {
	historyWindow int
}

// NewAssembler returns an assembler that includes at most historyWindow
// prior turns in each request. A non-positive window disables history.
func NewAssembler(historyWindow int) *Assembler {
	return &Assembler{historyWindow: historyWindow}
}

// BuildSystemPrompt renders the coach persona followed by the retrieved
// coaching examples in the order given. Examples are numbered from 1 and
// rendered with a fixed layout so identical inputs yield identical prompts.
func (a *Assembler) BuildSystemPrompt(examples []models.RetrievedExample) string {
	var b strings.Builder
	b.WriteString(basePersona)
	b.WriteString("\n\nHere are examples of effective coaching exchanges to guide your tone and approach:\n\n")

	if len(examples) == 0 {
		b.WriteString(noExamplesLine)
		return b.String()
	}

	for i, ex := range examples {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Example %d (similarity: %.2f):\n", i+1, ex.Similarity)
		fmt.Fprintf(&b, "Participant: %s\n", ex.Example.ParticipantResponse)
		fmt.Fprintf(&b, "Coach: %s\n", ex.Example.CoachResponse)
		fmt.Fprintf(&b, "Context: %s | Goal: %s", ex.Example.Category, ex.Example.GoalType)
	}
	return b.String()
}

// BuildMessages returns the chat window for a generation request: the most
// recent turns of history in chronological order, capped at the configured
// window, followed by the incoming user message.
func (a *Assembler) BuildMessages(history []models.Turn, userMessage string) []models.ChatMessage {
	window := history
	if a.historyWindow > 0 && len(window) > a.historyWindow {
		window = window[len(window)-a.historyWindow:]
	}

	messages := make([]models.ChatMessage, 0, len(window)+1)
	for _, turn := range window {
		if turn.Role != models.RoleUser && turn.Role != models.RoleAssistant {
			continue
		}
		messages = append(messages, models.ChatMessage{Role: string(turn.Role), Content: turn.Content})
	}
	return append(messages, models.ChatMessage{Role: string(models.RoleUser), Content: userMessage})
}
