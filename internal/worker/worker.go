// Package worker provides a NATS worker that processes synthesis jobs.
//
// The worker is an alternate ingestion path next to the HTTP API: peers drop
// request text (and optionally a reference voice sample) into the object
// store, publish a job, and receive the object-store key of the finished
// audio artifact as the reply.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/ttsforge/coqui-api/internal/core"
	"github.com/ttsforge/coqui-api/internal/wavutil"
)

// handleJobTimeout bounds one complete job. Every chunk of a long cloning
// request has to fit, so it sits far above the single-invocation timeouts.
const handleJobTimeout = 30 * time.Minute

const (
	audioKeyExtension      = ".wav"
	referenceFilePattern   = "reference-*.wav"
	errFmtReferenceCleanup = "Failed to remove reference sample '%s': %v"
	errFmtArtifactCleanup  = "Failed to remove uploaded artifact '%s': %v"
)

// ErrTextKeyEmpty indicates a job without a text key.
var ErrTextKeyEmpty = errors.New("text key cannot be empty")

// SynthesisJob is the payload published to the jobs subject.
type SynthesisJob struct {
	TextKey      string `json:"text_key"`
	Model        string `json:"model_name,omitempty"`
	SpeakerIdx   string `json:"speaker_idx,omitempty"`
	Language     string `json:"language_idx,omitempty"`
	ReferenceKey string `json:"reference_key,omitempty"`
}

// SynthesisResult is the reply sent back for a completed job.
type SynthesisResult struct {
	AudioKey        string  `json:"audio_key"`
	DurationSeconds float64 `json:"duration_seconds"`
	WordCount       int     `json:"word_count"`
}

// NatsWorker listens for synthesis jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	speaker        core.Speaker
	workDir        string
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. workDir receives the
// short-lived reference sample files downloaded for cloning jobs.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	speaker core.Speaker,
	workDir string,
	log *logger.Logger,
) (*NatsWorker, error) {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		speaker:        speaker,
		workDir:        workDir,
		log:            log,
	}, nil
}

// Run starts the worker and listens for jobs until ctx is done.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleJobTimeout)
	defer cancel()

	job, parseErr := parseJob(msg)
	if parseErr != nil {
		w.log.Error("Failed to parse synthesis job: %v", parseErr)

		return
	}

	result, processErr := w.processJob(ctx, job)
	if processErr != nil {
		w.log.Error("Failed to process synthesis job for key '%s': %v", job.TextKey, processErr)

		return
	}

	replyErr := w.publishResult(msg, result)
	if replyErr != nil {
		w.log.Error("Failed to publish result for key '%s': %v", job.TextKey, replyErr)
	}
}

// processJob downloads the job inputs, runs the synthesis pipeline and
// uploads the finished artifact.
func (w *NatsWorker) processJob(ctx context.Context, job *SynthesisJob) (*SynthesisResult, error) {
	textData, downloadErr := w.store.Download(ctx, job.TextKey)
	if downloadErr != nil {
		return nil, fmt.Errorf(
			"failed to download text for key '%s': %w",
			job.TextKey, downloadErr,
		)
	}

	params := core.SynthesisParams{
		Model:      job.Model,
		SpeakerIdx: job.SpeakerIdx,
		Language:   job.Language,
	}

	if job.ReferenceKey != "" {
		referencePath, referenceErr := w.fetchReferenceSample(ctx, job.ReferenceKey)
		if referenceErr != nil {
			return nil, referenceErr
		}

		defer w.removeLocalFile(referencePath, errFmtReferenceCleanup)

		params.SpeakerWav = referencePath
	}

	text := string(textData)

	// Cloning jobs get the full sentence rewrite, generic jobs only the
	// normalization, mirroring the two HTTP entry points.
	artifact, speakErr := w.speaker.Speak(ctx, text, params, params.Cloning())
	if speakErr != nil {
		return nil, fmt.Errorf("failed to synthesize job text: %w", speakErr)
	}

	defer w.removeLocalFile(artifact, errFmtArtifactCleanup)

	audioData, readErr := os.ReadFile(artifact)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read artifact '%s': %w", artifact, readErr)
	}

	audioKey := uuid.NewString() + audioKeyExtension

	uploadErr := w.store.Upload(ctx, audioKey, audioData)
	if uploadErr != nil {
		return nil, fmt.Errorf("failed to upload audio for key '%s': %w", audioKey, uploadErr)
	}

	durationSeconds, durationErr := wavutil.Duration(artifact)
	if durationErr != nil {
		w.log.Warn("Failed to read artifact duration: %v", durationErr)
	}

	return &SynthesisResult{
		AudioKey:        audioKey,
		DurationSeconds: durationSeconds,
		WordCount:       wavutil.CountWords(text),
	}, nil
}

// fetchReferenceSample materializes the reference voice blob as a local file
// for the engine's --speaker_wav flag.
func (w *NatsWorker) fetchReferenceSample(ctx context.Context, key string) (string, error) {
	data, downloadErr := w.store.Download(ctx, key)
	if downloadErr != nil {
		return "", fmt.Errorf(
			"failed to download reference sample '%s': %w",
			key, downloadErr,
		)
	}

	file, createErr := os.CreateTemp(w.workDir, referenceFilePattern)
	if createErr != nil {
		return "", fmt.Errorf("failed to create reference sample file: %w", createErr)
	}

	_, writeErr := file.Write(data)

	closeErr := file.Close()
	if writeErr != nil {
		w.removeLocalFile(file.Name(), errFmtReferenceCleanup)

		return "", fmt.Errorf("failed to write reference sample: %w", writeErr)
	}

	if closeErr != nil {
		w.removeLocalFile(file.Name(), errFmtReferenceCleanup)

		return "", fmt.Errorf("failed to close reference sample: %w", closeErr)
	}

	return file.Name(), nil
}

func (w *NatsWorker) publishResult(msg *nats.Msg, result *SynthesisResult) error {
	replyData, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal result: %w", marshalErr)
	}

	respondErr := msg.Respond(replyData)
	if respondErr != nil {
		return fmt.Errorf("failed to respond with result: %w", respondErr)
	}

	return nil
}

func (w *NatsWorker) removeLocalFile(path, warnFormat string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		w.log.Warn(warnFormat, path, removeErr)
	}
}

func parseJob(msg *nats.Msg) (*SynthesisJob, error) {
	var job SynthesisJob

	unmarshalErr := json.Unmarshal(msg.Data, &job)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", unmarshalErr)
	}

	if job.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	return &job, nil
}
