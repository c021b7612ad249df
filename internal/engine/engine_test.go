package engine_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ttsforge/coqui-api/internal/core"
	"github.com/ttsforge/coqui-api/internal/engine"
)

const stubPermissions = 0o700

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "engine-test.log")
	require.NoError(t, err)

	return log
}

// writeStub writes an executable shell script standing in for the tts binary.
func writeStub(t *testing.T, dir, script string) string {
	t.Helper()

	path := filepath.Join(dir, "tts-stub.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), stubPermissions))

	return path
}

// stubThatWritesOutput emits a fake wav file at the path given via --out_path.
const stubThatWritesOutput = `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--out_path" ]; then out="$a"; fi
  prev="$a"
done
printf 'fake-wav-data' > "$out"
exit 0
`

const stubThatFails = `#!/bin/sh
echo "model exploded" >&2
exit 1
`

const stubThatWritesNothing = `#!/bin/sh
exit 0
`

const stubThatWritesEmptyFile = `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--out_path" ]; then out="$a"; fi
  prev="$a"
done
: > "$out"
exit 0
`

const stubThatSleeps = `#!/bin/sh
sleep 5
exit 0
`

// retryStubTemplate records every invocation's arguments to a file and fails
// whenever the pt-br language is requested.
const retryStubTemplate = `#!/bin/sh
echo "$@" >> %q
out=""
prev=""
lang=""
for a in "$@"; do
  if [ "$prev" = "--out_path" ]; then out="$a"; fi
  if [ "$prev" = "--language_idx" ]; then lang="$a"; fi
  prev="$a"
done
if [ "$lang" = "pt-br" ]; then
  echo "unsupported language" >&2
  exit 1
fi
printf 'fake-wav-data' > "$out"
exit 0
`

func newEngine(t *testing.T, stub string, opts engine.Options) (*engine.Engine, string) {
	t.Helper()

	outputDir := t.TempDir()
	opts.Binary = stub
	opts.OutputDir = outputDir

	return engine.New(opts, newTestLogger(t)), outputDir
}

func TestSynthesizeChunkSuccess(t *testing.T) {
	t.Parallel()

	stub := writeStub(t, t.TempDir(), stubThatWritesOutput)
	eng, outputDir := newEngine(t, stub, engine.Options{})

	segment, err := eng.SynthesizeChunk(
		context.Background(),
		"Hello world",
		core.SynthesisParams{},
	)
	require.NoError(t, err)
	assert.Equal(t, outputDir, filepath.Dir(segment))

	data, readErr := os.ReadFile(segment)
	require.NoError(t, readErr)
	assert.NotEmpty(t, data)
}

func TestSynthesizeChunkFailureCarriesDiagnostics(t *testing.T) {
	t.Parallel()

	stub := writeStub(t, t.TempDir(), stubThatFails)
	eng, outputDir := newEngine(t, stub, engine.Options{})

	_, err := eng.SynthesizeChunk(
		context.Background(),
		"Hello world",
		core.SynthesisParams{Model: "tts_models/pt/cv/vits"},
	)
	require.Error(t, err)

	var synthesisErr *engine.SynthesisError
	require.ErrorAs(t, err, &synthesisErr)
	assert.Contains(t, synthesisErr.Output, "model exploded")

	assertNoFilesLeft(t, outputDir)
}

func TestSynthesizeChunkMissingOutputIsFailure(t *testing.T) {
	t.Parallel()

	stub := writeStub(t, t.TempDir(), stubThatWritesNothing)
	eng, outputDir := newEngine(t, stub, engine.Options{})

	_, err := eng.SynthesizeChunk(
		context.Background(),
		"Hello world",
		core.SynthesisParams{Model: "tts_models/pt/cv/vits"},
	)
	require.ErrorIs(t, err, engine.ErrNoOutput)

	assertNoFilesLeft(t, outputDir)
}

func TestSynthesizeChunkEmptyOutputIsFailure(t *testing.T) {
	t.Parallel()

	stub := writeStub(t, t.TempDir(), stubThatWritesEmptyFile)
	eng, outputDir := newEngine(t, stub, engine.Options{})

	_, err := eng.SynthesizeChunk(
		context.Background(),
		"Hello world",
		core.SynthesisParams{Model: "tts_models/pt/cv/vits"},
	)
	require.ErrorIs(t, err, engine.ErrNoOutput)

	assertNoFilesLeft(t, outputDir)
}

func TestSynthesizeChunkTimeout(t *testing.T) {
	t.Parallel()

	stub := writeStub(t, t.TempDir(), stubThatSleeps)
	eng, outputDir := newEngine(t, stub, engine.Options{
		StandardTimeout: 100 * time.Millisecond,
	})

	_, err := eng.SynthesizeChunk(
		context.Background(),
		"Hello world",
		core.SynthesisParams{Model: "tts_models/pt/cv/vits"},
	)
	require.Error(t, err)

	var timeoutErr *engine.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)

	assertNoFilesLeft(t, outputDir)
}

func TestSynthesizeChunkRetriesRegionalPortugueseOnce(t *testing.T) {
	t.Parallel()

	stubDir := t.TempDir()
	recordPath := filepath.Join(stubDir, "invocations.log")
	stub := writeStub(t, stubDir, fmt.Sprintf(retryStubTemplate, recordPath))

	eng, _ := newEngine(t, stub, engine.Options{})

	segment, err := eng.SynthesizeChunk(
		context.Background(),
		"Bom dia",
		core.SynthesisParams{
			Model:    engine.DefaultModel,
			Language: "pt-br",
		},
	)
	require.NoError(t, err)

	data, readErr := os.ReadFile(segment)
	require.NoError(t, readErr)
	assert.NotEmpty(t, data)

	record, recordErr := os.ReadFile(recordPath)
	require.NoError(t, recordErr)

	invocations := strings.Split(strings.TrimSpace(string(record)), "\n")
	require.Len(t, invocations, 2, "exactly two subprocess invocations expected")
	assert.Contains(t, invocations[0], "pt-br")
	assert.NotContains(t, invocations[1], "pt-br")
	assert.Contains(t, invocations[1], "--language_idx pt")
}

func TestSynthesizeChunkDoesNotRetryNonCloningModel(t *testing.T) {
	t.Parallel()

	stubDir := t.TempDir()
	recordPath := filepath.Join(stubDir, "invocations.log")
	stub := writeStub(t, stubDir, fmt.Sprintf(retryStubTemplate, recordPath))

	eng, _ := newEngine(t, stub, engine.Options{})

	_, err := eng.SynthesizeChunk(
		context.Background(),
		"Bom dia",
		core.SynthesisParams{
			Model:    "tts_models/pt/cv/vits",
			Language: "pt-br",
		},
	)
	require.Error(t, err)

	var synthesisErr *engine.SynthesisError
	require.True(t, errors.As(err, &synthesisErr))

	record, recordErr := os.ReadFile(recordPath)
	require.NoError(t, recordErr)

	invocations := strings.Split(strings.TrimSpace(string(record)), "\n")
	assert.Len(t, invocations, 1, "non-cloning models must never retry")
}

func assertNoFilesLeft(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial output may remain in %s", dir)
}
