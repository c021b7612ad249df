package textproc

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ChunkSeparator joins sentence fragments inside a chunk. The ellipsis reads
// as a short pause to the engine rather than spoken text, which is why it is
// preferred over a bare period here.
const ChunkSeparator = " … "

// sentenceDelimiterPattern splits rewritten text into candidate fragments at
// sentence boundaries.
const sentenceDelimiterPattern = `[.!?\n]+`

var sentenceDelimiterRegexp = regexp.MustCompile(sentenceDelimiterPattern)

// Chunk splits text into an ordered sequence of segments of roughly maxLength
// characters, each a whole number of sentences wherever possible. maxLength
// counts runes and must be at least 1.
//
// Fragments are accumulated greedily: a fragment joins the current chunk as
// long as the accumulated rune count plus one position for the join stays
// within maxLength (equality is allowed). Text whose total length fits within
// maxLength therefore always comes back as exactly one chunk. A single
// sentence that alone exceeds maxLength becomes its own oversized chunk;
// sentences are never split mid-way, trading strict length compliance for
// linguistic integrity. Output order matches input order and no fragment is
// dropped or duplicated. Empty input yields no chunks.
func Chunk(text string, maxLength int) []string {
	fragments := sentenceDelimiterRegexp.Split(text, -1)

	var (
		chunks  []string
		current string
	)

	for _, fragment := range fragments {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}

		if current == "" {
			current = fragment

			continue
		}

		if utf8.RuneCountInString(current)+utf8.RuneCountInString(fragment)+1 > maxLength {
			chunks = append(chunks, current)
			current = fragment

			continue
		}

		current = current + ChunkSeparator + fragment
	}

	if current != "" {
		chunks = append(chunks, current)
	}

	return chunks
}
