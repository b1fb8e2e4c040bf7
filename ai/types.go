package ai

// Prompt is a single-turn chat request.
type Prompt struct {
	// System sets the assistant's role. Optional.
	System string

	// User carries the question, usually preceded by retrieved context.
	User string
}
