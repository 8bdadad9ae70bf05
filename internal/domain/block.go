package domain

import (
	"encoding/json"
	"strings"
)

// BlockType is the kind of a block produced by the extraction service.
type BlockType int

const (
	BlockUnknown BlockType = iota
	BlockHeading
	BlockParagraph
	BlockTable
	BlockFigure
	BlockEquation
)

var blockTypeNames = map[BlockType]string{
	BlockUnknown:   "unknown",
	BlockHeading:   "heading",
	BlockParagraph: "paragraph",
	BlockTable:     "table",
	BlockFigure:    "figure",
	BlockEquation:  "equation",
}

// ParseBlockType maps an extractor type string to a BlockType.
// Anything it does not recognise becomes BlockUnknown.
func ParseBlockType(s string) BlockType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "heading":
		return BlockHeading
	case "paragraph":
		return BlockParagraph
	case "table":
		return BlockTable
	case "figure":
		return BlockFigure
	case "equation":
		return BlockEquation
	default:
		return BlockUnknown
	}
}

func (t BlockType) String() string {
	if name, ok := blockTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsAtomic reports whether blocks of this type become exactly one chunk.
func (t BlockType) IsAtomic() bool {
	return t == BlockTable || t == BlockFigure || t == BlockEquation
}

// ChunkType returns the chunk type for an atomic block type.
func (t BlockType) ChunkType() (ChunkType, bool) {
	switch t {
	case BlockTable:
		return ChunkTable, true
	case BlockFigure:
		return ChunkFigure, true
	case BlockEquation:
		return ChunkEquation, true
	}
	return "", false
}

// RawBlock is one unit of extracted content.
type RawBlock struct {
	Type       BlockType
	RawType    string
	PageNumber int
	Section    string
	Text       string
	Caption    string
}

type rawBlockJSON struct {
	Type        string `json:"type"`
	PageNumber  int    `json:"page_number"`
	Section     string `json:"section,omitempty"`
	Text        string `json:"text"`
	Caption     string `json:"caption,omitempty"`
	CaptionHTML string `json:"caption_html,omitempty"`
}

// UnmarshalJSON decodes the extractor wire format. Page numbers below 1 are
// normalised to 1 and caption_html is accepted as an alias of caption.
func (b *RawBlock) UnmarshalJSON(data []byte) error {
	var raw rawBlockJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	caption := raw.Caption
	if caption == "" {
		caption = raw.CaptionHTML
	}
	page := raw.PageNumber
	if page < 1 {
		page = 1
	}
	*b = RawBlock{
		Type:       ParseBlockType(raw.Type),
		RawType:    raw.Type,
		PageNumber: page,
		Section:    raw.Section,
		Text:       raw.Text,
		Caption:    caption,
	}
	return nil
}

// MarshalJSON writes the block back in the extractor wire format.
func (b RawBlock) MarshalJSON() ([]byte, error) {
	typ := b.RawType
	if typ == "" || b.Type != BlockUnknown {
		typ = b.Type.String()
	}
	return json.Marshal(rawBlockJSON{
		Type:       typ,
		PageNumber: b.PageNumber,
		Section:    b.Section,
		Text:       b.Text,
		Caption:    b.Caption,
	})
}
