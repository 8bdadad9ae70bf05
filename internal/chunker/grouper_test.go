package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
)

func para(section string, page int, text string) domain.RawBlock {
	return domain.RawBlock{Type: domain.BlockParagraph, Section: section, PageNumber: page, Text: text}
}

func TestGroupParagraphs_SplitsOnSectionChange(t *testing.T) {
	blocks := []domain.RawBlock{
		para("Intro", 1, "one"),
		para("Intro", 2, "two"),
		{Type: domain.BlockHeading, Section: "Methods", PageNumber: 2, Text: "Methods"},
		para("Methods", 3, "three"),
		para("Intro", 4, "four"),
		para("", 4, "five"),
		para("", 5, "six"),
	}

	groups := GroupParagraphs(blocks)

	require.Len(t, groups, 4)
	assert.Equal(t, TextGroup{Section: "Intro", Pages: []int{1, 2}, Text: "one\n\ntwo"}, groups[0])
	assert.Equal(t, TextGroup{Section: "Methods", Pages: []int{3}, Text: "three"}, groups[1])
	assert.Equal(t, TextGroup{Section: "Intro", Pages: []int{4}, Text: "four"}, groups[2])
	assert.Equal(t, TextGroup{Section: "", Pages: []int{4, 5}, Text: "five\n\nsix"}, groups[3])
}

func TestGroupParagraphs_PagesDedupedAndSorted(t *testing.T) {
	groups := GroupParagraphs([]domain.RawBlock{
		para("S", 3, "a"),
		para("S", 1, "b"),
		para("S", 3, "c"),
		para("S", 2, "d"),
	})

	require.Len(t, groups, 1)
	assert.Equal(t, []int{1, 2, 3}, groups[0].Pages)
	first, last := groups[0].PageRange()
	assert.Equal(t, 1, first)
	assert.Equal(t, 3, last)
}

func TestGroupParagraphs_EmptyInput(t *testing.T) {
	assert.Empty(t, GroupParagraphs(nil))
	assert.Empty(t, GroupParagraphs([]domain.RawBlock{{Type: domain.BlockTable, PageNumber: 1, Text: "t"}}))
}

func TestGroupParagraphs_GroupCountMatchesSectionRuns(t *testing.T) {
	sections := []string{"a", "a", "b", "b", "b", "a", "c", "c", ""}
	var blocks []domain.RawBlock
	for i, s := range sections {
		blocks = append(blocks, para(s, i+1, s))
	}

	runs := 1
	for i := 1; i < len(sections); i++ {
		if sections[i] != sections[i-1] {
			runs++
		}
	}
	assert.Len(t, GroupParagraphs(blocks), runs)
}
