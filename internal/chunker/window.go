package chunker

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxSize = 1000
	DefaultOverlap = 200
	charsPerUnit   = 4
)

// Window is one chunk-sized slice of a text, covering tokens [Start, End).
type Window struct {
	Start int
	End   int
	Text  string
}

// EstimateSize approximates model tokens as ceil(chars / 4).
func EstimateSize(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerUnit - 1) / charsPerUnit
}

type span struct{ s, e int }

// tokenize returns the byte spans of the whitespace-separated words of text.
func tokenize(text string) []span {
	var spans []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				spans = append(spans, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}

// Windows splits text into word windows whose estimated size stays within
// maxSize, each window holding at least one word. Consecutive windows share
// up to overlap words. Window text keeps the original whitespace between
// words.
func Windows(text string, maxSize, overlap int) ([]Window, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if overlap < 0 {
		overlap = 0
	}
	spans := tokenize(text)
	n := len(spans)
	var out []Window
	start := 0
	for start < n {
		end := grow(text, spans, start, maxSize)
		out = append(out, Window{Start: start, End: end, Text: text[spans[start].s:spans[end-1].e]})
		if end >= n {
			break
		}
		next := nextStart(start, end, overlap)
		// next must move forward and must not skip a token.
		if next <= start || next > end {
			return nil, fmt.Errorf("window state: next start %d outside (%d, %d]", next, start, end)
		}
		start = next
	}
	return out, nil
}

// grow extends a window from start one word at a time while it fits.
func grow(text string, spans []span, start, maxSize int) int {
	end := start + 1
	for end < len(spans) {
		if EstimateSize(text[spans[start].s:spans[end].e]) > maxSize {
			break
		}
		end++
	}
	return end
}

// nextStart steps back overlap words from end. The step-back is capped at
// half the current window so consecutive windows never share more than half
// their words, and next always lands after start.
func nextStart(start, end, overlap int) int {
	ov := min(overlap, (end-start)/2)
	return max(end-ov, start+1)
}
