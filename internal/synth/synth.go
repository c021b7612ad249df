// Package synth sequences the per-request synthesis pipeline: validate,
// rewrite, chunk, synthesize each chunk in order, reassemble.
package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/ttsforge/coqui-api/internal/core"
	"github.com/ttsforge/coqui-api/internal/engine"
	"github.com/ttsforge/coqui-api/internal/textproc"
	"github.com/ttsforge/coqui-api/internal/wavutil"
)

const artifactExtension = ".wav"

// ErrEmptyText indicates that the request text was empty, whitespace-only, or
// contained no speakable sentence at all.
var ErrEmptyText = errors.New("text cannot be empty")

// Speaker implements core.Speaker on top of a chunk-level engine.
type Speaker struct {
	engine    core.Engine
	rewriter  *textproc.Rewriter
	outputDir string
	log       *logger.Logger
}

// New creates a Speaker writing artifacts into outputDir.
func New(
	chunkEngine core.Engine,
	rewriter *textproc.Rewriter,
	outputDir string,
	log *logger.Logger,
) *Speaker {
	return &Speaker{
		engine:    chunkEngine,
		rewriter:  rewriter,
		outputDir: outputDir,
		log:       log,
	}
}

// Speak synthesizes text into a single audio artifact and returns its path.
//
// fullRewrite selects the amount of linguistic preprocessing: the voice
// cloning entry point rewrites sentence boundaries completely, the generic
// entry point only normalizes. Chunk synthesis is strictly sequential; the
// engine holds its model weights in one process and parallel invocations from
// one request would contend for them, while sequential execution keeps
// concatenation ordering trivial. Any chunk failure deletes every segment
// already produced for this request and aborts it: no partial audio is ever
// returned.
func (s *Speaker) Speak(
	ctx context.Context,
	text string,
	params core.SynthesisParams,
	fullRewrite bool,
) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}

	params = engine.Resolve(params)

	prepared := textproc.Normalize(text)
	if fullRewrite {
		prepared = s.rewriter.Rewrite(text)
	}

	chunks := textproc.Chunk(prepared, engine.MaxChunkLength(params))
	if len(chunks) == 0 {
		// Punctuation-only input rewrites down to nothing speakable.
		return "", ErrEmptyText
	}

	if len(chunks) == 1 {
		segment, synthErr := s.engine.SynthesizeChunk(ctx, chunks[0], params)
		if synthErr != nil {
			return "", fmt.Errorf("failed to synthesize text: %w", synthErr)
		}

		return segment, nil
	}

	return s.speakChunked(ctx, chunks, params)
}

// speakChunked synthesizes multiple chunks in order and merges the segments
// into a freshly named artifact.
func (s *Speaker) speakChunked(
	ctx context.Context,
	chunks []string,
	params core.SynthesisParams,
) (string, error) {
	s.log.Info("Splitting synthesis into %d chunks", len(chunks))

	segments := make([]string, 0, len(chunks))

	for chunkIndex, chunk := range chunks {
		s.log.Info("Processing chunk %d/%d (len=%d)", chunkIndex+1, len(chunks), len(chunk))

		segment, synthErr := s.engine.SynthesizeChunk(ctx, chunk, params)
		if synthErr != nil {
			s.removeSegments(segments)

			return "", fmt.Errorf(
				"failed to process chunk %d/%d: %w",
				chunkIndex+1, len(chunks), synthErr,
			)
		}

		segments = append(segments, segment)
	}

	artifact := filepath.Join(s.outputDir, uuid.NewString()+artifactExtension)

	s.log.Info("Concatenating %d segments into %s", len(segments), artifact)

	concatErr := wavutil.Concatenate(segments, artifact)
	if concatErr != nil {
		s.removeSegments(segments)

		return "", fmt.Errorf("failed to concatenate segments: %w", concatErr)
	}

	return artifact, nil
}

func (s *Speaker) removeSegments(segments []string) {
	for _, segment := range segments {
		removeErr := os.Remove(segment)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			s.log.Warn("Failed to remove segment '%s': %v", segment, removeErr)
		}
	}
}
