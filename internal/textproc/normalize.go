// Package textproc provides the text preparation pipeline for speech synthesis.
//
// The Coqui CLI is sentence-sensitive: curly punctuation, exotic whitespace and
// long unbroken input all degrade or truncate its output. This package
// canonicalizes raw text, rewrites sentence boundaries into explicit breaks,
// and splits the result into bounded, sentence-respecting chunks.
package textproc

import (
	"regexp"
	"strings"
)

// spaceRunPattern matches runs of ASCII space, tab and the Unicode space
// variants the CLI mishandles (NBSP, thin, hair, zero-width, narrow NBSP,
// medium mathematical, ideographic).
const spaceRunPattern = "[ \t   ​  　]+"

var spaceRunRegexp = regexp.MustCompile(spaceRunPattern)

// quoteReplacer maps typographic quotes to their straight ASCII forms.
var quoteReplacer = strings.NewReplacer(
	"“", `"`,
	"”", `"`,
	"‘", "'",
	"’", "'",
)

// Normalize canonicalizes quotes and whitespace so the downstream regex-based
// rewriting behaves predictably. It is total over all input and idempotent:
// normalizing twice yields the same result as once.
//
// Leading and trailing whitespace is deliberately preserved; trimming is the
// rewriter's job.
func Normalize(text string) string {
	if text == "" {
		return text
	}

	text = quoteReplacer.Replace(text)

	return spaceRunRegexp.ReplaceAllString(text, " ")
}
