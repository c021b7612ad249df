// Package synth_test tests the per-request orchestration pipeline.
package synth_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ttsforge/coqui-api/internal/core"
	"github.com/ttsforge/coqui-api/internal/engine"
	"github.com/ttsforge/coqui-api/internal/synth"
	"github.com/ttsforge/coqui-api/internal/textproc"
)

const (
	testSampleRate = 16000
	testBitDepth   = 16
)

type engineCall struct {
	text   string
	params core.SynthesisParams
}

// mockEngine produces small real wav segments so multi-chunk requests can be
// concatenated, and can be told to fail on the n-th invocation.
type mockEngine struct {
	t          *testing.T
	segmentDir string
	failOnCall int // 1-based, 0 means never
	calls      []engineCall
}

func (m *mockEngine) SynthesizeChunk(
	_ context.Context,
	text string,
	params core.SynthesisParams,
) (string, error) {
	m.calls = append(m.calls, engineCall{text: text, params: params})

	if m.failOnCall == len(m.calls) {
		return "", &engine.SynthesisError{Output: "mock engine failure", Err: engine.ErrNoOutput}
	}

	segment := filepath.Join(m.segmentDir, fmt.Sprintf("segment-%04d.wav", len(m.calls)))
	writeSegmentWav(m.t, segment, 160)

	return segment, nil
}

func writeSegmentWav(t *testing.T, path string, frames int) {
	t.Helper()

	file, err := os.Create(path)
	require.NoError(t, err)

	encoder := wav.NewEncoder(file, testSampleRate, testBitDepth, 1, 1)

	samples := make([]int, frames)
	for i := range samples {
		samples[i] = i % 1000
	}

	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: testSampleRate},
		Data:           samples,
		SourceBitDepth: testBitDepth,
	}

	require.NoError(t, encoder.Write(buffer))
	require.NoError(t, encoder.Close())
	require.NoError(t, file.Close())
}

func newSpeaker(t *testing.T, mock *mockEngine) (*synth.Speaker, string) {
	t.Helper()

	log, err := logger.New(t.TempDir(), "synth-test.log")
	require.NoError(t, err)

	outputDir := t.TempDir()
	rewriter := textproc.NewRewriter(textproc.DefaultAbbreviations)

	return synth.New(mock, rewriter, outputDir, log), outputDir
}

func TestSpeakSingleChunkReturnsSegmentDirectly(t *testing.T) {
	t.Parallel()

	mock := &mockEngine{t: t, segmentDir: t.TempDir()}
	speaker, _ := newSpeaker(t, mock)

	artifact, err := speaker.Speak(
		context.Background(),
		"Hello world.",
		core.SynthesisParams{},
		true,
	)
	require.NoError(t, err)

	require.Len(t, mock.calls, 1)
	assert.Equal(t, "Hello world", mock.calls[0].text)

	_, statErr := os.Stat(artifact)
	assert.NoError(t, statErr)
}

func TestSpeakEmptyTextIsValidationError(t *testing.T) {
	t.Parallel()

	mock := &mockEngine{t: t, segmentDir: t.TempDir()}
	speaker, outputDir := newSpeaker(t, mock)

	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := speaker.Speak(context.Background(), text, core.SynthesisParams{}, true)
		require.ErrorIs(t, err, synth.ErrEmptyText)
	}

	assert.Empty(t, mock.calls, "no subprocess may be invoked for empty text")

	entries, readErr := os.ReadDir(outputDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "no file may be created for rejected requests")
}

func TestSpeakPunctuationOnlyTextIsValidationError(t *testing.T) {
	t.Parallel()

	mock := &mockEngine{t: t, segmentDir: t.TempDir()}
	speaker, _ := newSpeaker(t, mock)

	_, err := speaker.Speak(context.Background(), "... !!! ...", core.SynthesisParams{}, true)
	require.ErrorIs(t, err, synth.ErrEmptyText)
	assert.Empty(t, mock.calls)
}

func TestSpeakFailureOnSoleChunkLeavesNoOutput(t *testing.T) {
	t.Parallel()

	mock := &mockEngine{t: t, segmentDir: t.TempDir(), failOnCall: 1}
	speaker, outputDir := newSpeaker(t, mock)

	_, err := speaker.Speak(context.Background(), "Hello world.", core.SynthesisParams{}, true)
	require.Error(t, err)

	var synthesisErr *engine.SynthesisError
	require.ErrorAs(t, err, &synthesisErr)

	entries, readErr := os.ReadDir(outputDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestSpeakMultiChunkConcatenatesInOrder(t *testing.T) {
	t.Parallel()

	mock := &mockEngine{t: t, segmentDir: t.TempDir()}
	speaker, outputDir := newSpeaker(t, mock)

	// Cloning params force the 300-char ceiling; three ~250-char sentences
	// cannot fit a single chunk.
	text := strings.Repeat("a", 250) + ". " +
		strings.Repeat("b", 250) + ". " +
		strings.Repeat("c", 150) + "."

	params := core.SynthesisParams{SpeakerWav: filepath.Join(t.TempDir(), "ref.wav")}

	artifact, err := speaker.Speak(context.Background(), text, params, true)
	require.NoError(t, err)
	assert.Equal(t, outputDir, filepath.Dir(artifact))

	require.GreaterOrEqual(t, len(mock.calls), 2)

	// Chunks must arrive at the engine in input order.
	var recovered strings.Builder
	for _, call := range mock.calls {
		recovered.WriteString(call.text)
	}

	assert.Contains(t, recovered.String(), strings.Repeat("a", 250))
	aIndex := strings.Index(recovered.String(), strings.Repeat("a", 250))
	bIndex := strings.Index(recovered.String(), strings.Repeat("b", 250))
	cIndex := strings.Index(recovered.String(), strings.Repeat("c", 150))
	assert.Less(t, aIndex, bIndex)
	assert.Less(t, bIndex, cIndex)

	// All intermediate segments must be gone, only the artifact remains.
	segmentEntries, readErr := os.ReadDir(mock.segmentDir)
	require.NoError(t, readErr)
	assert.Empty(t, segmentEntries)

	_, statErr := os.Stat(artifact)
	assert.NoError(t, statErr)
}

func TestSpeakMidSequenceFailureCleansProducedSegments(t *testing.T) {
	t.Parallel()

	mock := &mockEngine{t: t, segmentDir: t.TempDir(), failOnCall: 2}
	speaker, outputDir := newSpeaker(t, mock)

	text := strings.Repeat("a", 250) + ". " +
		strings.Repeat("b", 250) + ". " +
		strings.Repeat("c", 150) + "."
	params := core.SynthesisParams{SpeakerWav: filepath.Join(t.TempDir(), "ref.wav")}

	_, err := speaker.Speak(context.Background(), text, params, true)
	require.Error(t, err)
	require.Len(t, mock.calls, 2, "synthesis must stop at the failing chunk")

	segmentEntries, readErr := os.ReadDir(mock.segmentDir)
	require.NoError(t, readErr)
	assert.Empty(t, segmentEntries, "produced segments must be deleted on failure")

	outputEntries, readErr := os.ReadDir(outputDir)
	require.NoError(t, readErr)
	assert.Empty(t, outputEntries, "no partial artifact may remain")
}

func TestSpeakRewriteModeControlsAbbreviationHandling(t *testing.T) {
	t.Parallel()

	input := "Dr. Silva chegou"

	// Full rewrite protects the abbreviation, so the chunker sees one
	// sentence.
	fullMock := &mockEngine{t: t, segmentDir: t.TempDir()}
	fullSpeaker, _ := newSpeaker(t, fullMock)

	_, err := fullSpeaker.Speak(context.Background(), input, core.SynthesisParams{}, true)
	require.NoError(t, err)
	require.Len(t, fullMock.calls, 1)
	assert.Equal(t, "Dr. Silva chegou", fullMock.calls[0].text)

	// Normalize-only leaves the period for the chunker to split on.
	normMock := &mockEngine{t: t, segmentDir: t.TempDir()}
	normSpeaker, _ := newSpeaker(t, normMock)

	_, err = normSpeaker.Speak(context.Background(), input, core.SynthesisParams{}, false)
	require.NoError(t, err)
	require.Len(t, normMock.calls, 1)
	assert.Equal(t, "Dr"+textproc.ChunkSeparator+"Silva chegou", normMock.calls[0].text)
}
