// Package textproc_test tests the text preparation pipeline.
package textproc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ttsforge/coqui-api/internal/textproc"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "curly double quotes",
			input:    "ele disse “olá” ontem",
			expected: "ele disse \"olá\" ontem",
		},
		{
			name:     "curly single quotes",
			input:    "it’s ‘fine’",
			expected: "it's 'fine'",
		},
		{
			name:     "non-breaking space",
			input:    "um dois",
			expected: "um dois",
		},
		{
			name:     "typographic spaces collapse",
			input:    "a   b 　c",
			expected: "a b c",
		},
		{
			name:     "tab and space runs",
			input:    "a \t  b",
			expected: "a b",
		},
		{
			name:     "leading and trailing whitespace preserved",
			input:    " hello ",
			expected: " hello ",
		},
		{
			name:     "newlines untouched",
			input:    "a\nb",
			expected: "a\nb",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, textproc.Normalize(testCase.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	samples := []string{
		"",
		"plain ascii text",
		"curvas “aqui” e ‘ali’",
		"espaços estranhos e　largos",
		"  mixed \t whitespace   runs  ",
		"multilínea\ncom\nquebras",
	}

	for _, sample := range samples {
		once := textproc.Normalize(sample)
		twice := textproc.Normalize(once)
		assert.Equal(t, once, twice, "normalize must be idempotent for %q", sample)
	}
}

func TestNormalizeNeverLeavesDoubleSpaces(t *testing.T) {
	t.Parallel()

	samples := []string{
		"a  b   c",
		"a  b",
		"a     b",
		"\t\t tabs \t",
	}

	for _, sample := range samples {
		normalized := textproc.Normalize(sample)
		assert.NotContains(t, normalized, "  ")
		assert.NotContains(t, normalized, " ")
		assert.NotContains(t, normalized, "“")
		assert.NotContains(t, normalized, "”")
	}
}
