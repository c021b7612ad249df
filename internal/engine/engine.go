package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/ttsforge/coqui-api/internal/core"
)

// CLI flag names of the Coqui tts binary.
const (
	flagText       = "--text"
	flagOutPath    = "--out_path"
	flagModelName  = "--model_name"
	flagSpeakerIdx = "--speaker_idx"
	flagLanguage   = "--language_idx"
	flagSpeakerWav = "--speaker_wav"
	flagUseCUDA    = "--use_cuda"
)

const (
	ttsHomeEnv       = "TTS_HOME"
	segmentExtension = ".wav"
)

// ErrNoOutput indicates that the subprocess exited successfully but produced
// no usable audio file.
var ErrNoOutput = errors.New("engine produced no output file")

// TimeoutError reports that one engine invocation exceeded its allotted time.
// The partial output file, if any, has already been deleted.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("synthesis timed out after %s", e.Timeout)
}

// SynthesisError reports a failed engine invocation together with the
// subprocess's combined diagnostic output.
type SynthesisError struct {
	Output string
	Err    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v - output: %s", e.Err, e.Output)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// Options configures the subprocess invoker.
type Options struct {
	// Binary is the tts executable to run.
	Binary string

	// TTSHome is exported as TTS_HOME so the CLI finds its model cache.
	TTSHome string

	// OutputDir receives the per-chunk segment files.
	OutputDir string

	// UseCUDA appends --use_cuda to every invocation.
	UseCUDA bool

	// StandardTimeout bounds a plain synthesis run; CloningTimeout bounds a
	// voice-cloning run. Zero values fall back to the package defaults.
	StandardTimeout time.Duration
	CloningTimeout  time.Duration
}

// Engine implements core.Engine by invoking the Coqui CLI once per chunk.
type Engine struct {
	opts Options
	log  *logger.Logger
}

// New creates a subprocess-backed engine.
func New(opts Options, log *logger.Logger) *Engine {
	if opts.StandardTimeout <= 0 {
		opts.StandardTimeout = DefaultStandardTimeout
	}

	if opts.CloningTimeout <= 0 {
		opts.CloningTimeout = DefaultCloningTimeout
	}

	return &Engine{
		opts: opts,
		log:  log,
	}
}

// SynthesizeChunk runs the engine for one text chunk and returns the path of
// the produced segment file.
//
// Success requires a zero exit status and an existing, non-empty output file.
// A failed run deletes any partial output before returning. The only retry is
// the documented language fallback: when the model is the multilingual cloning
// model, the first attempt failed for a reason other than a timeout, and the
// resolved language is the regional "pt-br", a single second attempt is made
// with the base "pt" under the same timeout.
func (e *Engine) SynthesizeChunk(
	ctx context.Context,
	text string,
	params core.SynthesisParams,
) (string, error) {
	params = Resolve(params)

	outputPath := filepath.Join(e.opts.OutputDir, uuid.NewString()+segmentExtension)
	timeout := e.timeoutFor(params)

	e.log.Info(
		"Starting synthesis: model=%s, text_length=%d, cloning=%t",
		params.Model, len(text), params.Cloning(),
	)

	invokeErr := e.invoke(ctx, text, params, outputPath, timeout)
	if invokeErr == nil {
		return outputPath, nil
	}

	if !e.shouldRetryWithBaseLanguage(params, invokeErr) {
		return "", invokeErr
	}

	e.log.Info("Retrying synthesis with language_idx=%s", basePortuguese)

	params.Language = basePortuguese

	retryErr := e.invoke(ctx, text, params, outputPath, timeout)
	if retryErr != nil {
		return "", retryErr
	}

	return outputPath, nil
}

func (e *Engine) timeoutFor(params core.SynthesisParams) time.Duration {
	if params.Cloning() {
		return e.opts.CloningTimeout
	}

	return e.opts.StandardTimeout
}

// shouldRetryWithBaseLanguage checks the three retry conditions: cloning
// model, non-timeout failure, regional Portuguese language.
func (e *Engine) shouldRetryWithBaseLanguage(params core.SynthesisParams, invokeErr error) bool {
	if !IsMultilingualCloningModel(params.Model) {
		return false
	}

	var timeoutErr *TimeoutError
	if errors.As(invokeErr, &timeoutErr) {
		return false
	}

	return params.Language == regionalPortuguese
}

// invoke runs one subprocess and classifies the outcome. Any failure deletes
// the output file before returning.
func (e *Engine) invoke(
	ctx context.Context,
	text string,
	params core.SynthesisParams,
	outputPath string,
	timeout time.Duration,
) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := e.buildArgs(text, params, outputPath)

	// #nosec G204 -- the binary comes from configuration, arguments from the
	// resolved parameter set.
	cmd := exec.CommandContext(runCtx, e.opts.Binary, args...)
	cmd.Env = e.buildEnv()

	output, runErr := cmd.CombinedOutput()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		e.removePartialOutput(outputPath)
		e.log.Error("Synthesis timed out after %s", timeout)

		return &TimeoutError{Timeout: timeout}
	}

	if runErr != nil {
		e.removePartialOutput(outputPath)

		return &SynthesisError{Output: string(output), Err: runErr}
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil || info.Size() == 0 {
		e.removePartialOutput(outputPath)

		return &SynthesisError{Output: string(output), Err: ErrNoOutput}
	}

	e.log.Info("Synthesis successful: %s (%d bytes)", outputPath, info.Size())

	return nil
}

func (e *Engine) buildArgs(text string, params core.SynthesisParams, outputPath string) []string {
	args := []string{
		flagText, text,
		flagOutPath, outputPath,
		flagModelName, params.Model,
	}

	if params.SpeakerIdx != "" {
		args = append(args, flagSpeakerIdx, params.SpeakerIdx)
	}

	if params.Language != "" {
		args = append(args, flagLanguage, params.Language)
	}

	if params.SpeakerWav != "" {
		args = append(args, flagSpeakerWav, params.SpeakerWav)
	}

	if e.opts.UseCUDA {
		args = append(args, flagUseCUDA)
	}

	return args
}

func (e *Engine) buildEnv() []string {
	env := os.Environ()
	if e.opts.TTSHome != "" {
		env = append(env, ttsHomeEnv+"="+e.opts.TTSHome)
	}

	return env
}

func (e *Engine) removePartialOutput(outputPath string) {
	removeErr := os.Remove(outputPath)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		e.log.Warn("Failed to remove partial output '%s': %v", outputPath, removeErr)
	}
}
