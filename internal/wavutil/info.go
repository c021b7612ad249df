package wavutil

import (
	"fmt"
	"os"
	"regexp"

	"github.com/go-audio/wav"
)

// wordPattern matches the word tokens used for the X-Word-Count header.
const wordPattern = `\b\w+\b`

var wordRegexp = regexp.MustCompile(wordPattern)

// Duration returns the playable length of a WAV file in seconds.
func Duration(path string) (float64, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return 0, fmt.Errorf("failed to open wav file %s: %w", path, openErr)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := wav.NewDecoder(file)

	duration, durationErr := decoder.Duration()
	if durationErr != nil {
		return 0, fmt.Errorf("failed to read duration of %s: %w", path, durationErr)
	}

	return duration.Seconds(), nil
}

// CountWords returns a heuristic word count of the synthesized text.
func CountWords(text string) int {
	return len(wordRegexp.FindAllString(text, -1))
}
