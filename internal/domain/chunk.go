package domain

import "strconv"

// ChunkType is the retrieval-level kind of a chunk.
type ChunkType string

const (
	ChunkText     ChunkType = "text"
	ChunkTable    ChunkType = "table"
	ChunkFigure   ChunkType = "figure"
	ChunkEquation ChunkType = "equation"
)

// ChunkMetadata carries the structural fields stored alongside every chunk.
type ChunkMetadata struct {
	Source    string    `json:"source"`
	Section   string    `json:"section,omitempty"`
	PageStart int       `json:"page_start"`
	PageEnd   int       `json:"page_end"`
	Type      ChunkType `json:"type"`
	Caption   string    `json:"caption,omitempty"`
}

// Chunk is the unit of retrieval.
type Chunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkID builds the "{source}-{kind}-{ordinal}" identifier.
func ChunkID(source string, kind ChunkType, ordinal int) string {
	return source + "-" + string(kind) + "-" + strconv.Itoa(ordinal)
}

// Map flattens the metadata into the scalar map stored by vector indexes.
// Optional fields are omitted when empty.
func (m ChunkMetadata) Map() map[string]any {
	out := map[string]any{
		"source":     m.Source,
		"page_start": m.PageStart,
		"page_end":   m.PageEnd,
		"type":       string(m.Type),
	}
	if m.Section != "" {
		out["section"] = m.Section
	}
	if m.Caption != "" {
		out["caption"] = m.Caption
	}
	return out
}

// MetadataFromMap parses a stored metadata map. Missing or mistyped fields
// are left at their zero value.
func MetadataFromMap(m map[string]any) ChunkMetadata {
	var md ChunkMetadata
	if m == nil {
		return md
	}
	md.Source = stringField(m, "source")
	md.Section = stringField(m, "section")
	md.Type = ChunkType(stringField(m, "type"))
	md.Caption = stringField(m, "caption")
	if md.Caption == "" {
		md.Caption = stringField(m, "caption_html")
	}
	md.PageStart = intField(m, "page_start")
	md.PageEnd = intField(m, "page_end")
	return md
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return 0
}
