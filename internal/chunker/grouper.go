package chunker

import (
	"sort"

	"pdfrag/internal/domain"
)

// TextGroup is a run of consecutive paragraphs sharing one section value.
type TextGroup struct {
	Section string
	Pages   []int
	Text    string
}

// PageRange returns the first and last page of the group.
func (g TextGroup) PageRange() (int, int) {
	if len(g.Pages) == 0 {
		return 1, 1
	}
	return g.Pages[0], g.Pages[len(g.Pages)-1]
}

// GroupParagraphs partitions the paragraph blocks into TextGroups at every
// change of section. Other block types are ignored.
func GroupParagraphs(blocks []domain.RawBlock) []TextGroup {
	var groups []TextGroup
	var cur *TextGroup
	for _, b := range blocks {
		if b.Type != domain.BlockParagraph {
			continue
		}
		if cur == nil || cur.Section != b.Section {
			if cur != nil {
				groups = append(groups, *cur)
			}
			cur = &TextGroup{Section: b.Section, Pages: []int{b.PageNumber}, Text: b.Text}
			continue
		}
		cur.Pages = append(cur.Pages, b.PageNumber)
		if cur.Text != "" {
			cur.Text += "\n\n"
		}
		cur.Text += b.Text
	}
	if cur != nil {
		groups = append(groups, *cur)
	}
	for i := range groups {
		groups[i].Pages = uniqueSorted(groups[i].Pages)
	}
	return groups
}

func uniqueSorted(pages []int) []int {
	seen := make(map[int]struct{}, len(pages))
	out := make([]int, 0, len(pages))
	for _, p := range pages {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
