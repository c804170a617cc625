package models

// CoachingExample is one historical coaching exchange used for retrieval
// grounding. Rows are read-only during normal operation and populated
// out-of-band by the seeding tool.
type CoachingExample struct {
	ID                  string    `json:"id"`
	ParticipantResponse string    `json:"participant_response"`
	CoachResponse       string    `json:"coach_response"`
	Category            string    `json:"category"`
	GoalType            string    `json:"goal_type"`
	Embedding           []float32 `json:"-"` // embedding of the participant utterance
}

// RetrievedExample pairs a coaching example with its similarity to a query.
type RetrievedExample struct {
	Example    CoachingExample `json:"example"`
	Similarity float64         `json:"similarity"`
}
