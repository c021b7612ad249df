package textproc

import (
	"regexp"
	"sort"
	"strings"
)

// Protection markers. They stand in for periods that must survive the
// sentence-break substitution and are restored verbatim at the end.
const (
	decimalMarker = "<DECIMAL>"
	dotMarker     = "<DOT>"
)

// Rewrite pipeline patterns.
const (
	decimalPattern      = `(\d)` + `\.` + `(\d)`
	ellipsisPattern     = "…|\\.\\.\\."
	lineBreakRunPattern = `\n{2,}`
	horizontalWSPattern = "[ \t]+"
)

var (
	decimalRegexp      = regexp.MustCompile(decimalPattern)
	ellipsisRegexp     = regexp.MustCompile(ellipsisPattern)
	lineBreakRunRegexp = regexp.MustCompile(lineBreakRunPattern)
	horizontalWSRegexp = regexp.MustCompile(horizontalWSPattern)
)

// DefaultAbbreviations lists the Portuguese abbreviations whose trailing
// period is not a sentence boundary.
var DefaultAbbreviations = []string{
	"Sr.", "Sra.", "Dr.", "Dra.", "Prof.", "Profa.", "etc.", "p.ex.", "e.g.",
}

// Rewriter converts sentence-final punctuation into explicit line breaks while
// protecting periods that are part of decimal numbers or configured
// abbreviations. The rewrite is a fixed, ordered rule sequence; each rule is
// independently testable and their precedence is part of the contract.
type Rewriter struct {
	abbreviationReplacer *strings.Replacer
	restoreReplacer      *strings.Replacer
}

// NewRewriter creates a rewriter protecting the given abbreviations.
// Abbreviations are applied longest-first so that e.g. "Profa." is never
// half-matched by "Prof.".
func NewRewriter(abbreviations []string) *Rewriter {
	ordered := make([]string, len(abbreviations))
	copy(ordered, abbreviations)
	sort.Slice(ordered, func(i, j int) bool {
		return len(ordered[i]) > len(ordered[j])
	})

	pairs := make([]string, 0, len(ordered)*2)
	for _, abbreviation := range ordered {
		pairs = append(
			pairs,
			abbreviation,
			strings.ReplaceAll(abbreviation, ".", dotMarker),
		)
	}

	return &Rewriter{
		abbreviationReplacer: strings.NewReplacer(pairs...),
		restoreReplacer:      strings.NewReplacer(decimalMarker, ".", dotMarker, "."),
	}
}

// Rewrite runs the full rule sequence:
//
//  1. normalize quotes and whitespace
//  2. protect decimal periods (digit.digit)
//  3. protect configured abbreviations
//  4. replace ellipses with a line break
//  5. replace every remaining sentence-final period with a line break
//  6. collapse repeated breaks and horizontal whitespace, trim
//  7. restore the protected periods
//
// The function is total: any input, including text with no punctuation at all,
// comes back as-is modulo the substitutions above.
func (r *Rewriter) Rewrite(text string) string {
	text = Normalize(text)
	if text == "" {
		return text
	}

	text = decimalRegexp.ReplaceAllString(text, "$1"+decimalMarker+"$2")
	text = r.abbreviationReplacer.Replace(text)
	text = ellipsisRegexp.ReplaceAllString(text, "\n")
	text = breakSentencePeriods(text)

	text = lineBreakRunRegexp.ReplaceAllString(text, "\n")
	text = horizontalWSRegexp.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	return r.restoreReplacer.Replace(text)
}

// breakSentencePeriods replaces each remaining period with a line break unless
// the period sits immediately between two digits. Protected periods were
// already swapped for markers, so everything left is treated as sentence-final.
func breakSentencePeriods(text string) string {
	runes := []rune(text)

	var builder strings.Builder

	builder.Grow(len(text))

	for i, r := range runes {
		if r != '.' {
			builder.WriteRune(r)

			continue
		}

		digitBefore := i > 0 && isASCIIDigit(runes[i-1])
		digitAfter := i+1 < len(runes) && isASCIIDigit(runes[i+1])

		if digitBefore && digitAfter {
			builder.WriteRune('.')
		} else {
			builder.WriteRune('\n')
		}
	}

	return builder.String()
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
