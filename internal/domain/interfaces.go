package domain

import "context"

// Embedder converts texts into vectors. Output is index-aligned with input.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a chat completion from a system and a user message.
type Generator interface {
	Complete(ctx context.Context, system, user string, temperature float32) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
