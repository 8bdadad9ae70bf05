package domain

// IndexEntry is one persisted tuple in a collection.
type IndexEntry struct {
	ID       string
	Vector   []float32
	Document string
	Metadata map[string]any
}

// Hit is a query result. Distance is nil when the index did not report one.
type Hit struct {
	ID       string
	Text     string
	Metadata ChunkMetadata
	Distance *float64
}

// Context is one entry handed to the answer generator.
type Context struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// Answer is the generator output together with the contexts it was given,
// in citation order.
type Answer struct {
	Answer   string    `json:"answer"`
	Contexts []Context `json:"contexts"`
}

// Citation is the user-facing reference for one hit.
type Citation struct {
	Doc      int           `json:"doc"`
	Metadata ChunkMetadata `json:"metadata"`
	Distance *float64      `json:"distance,omitempty"`
}
