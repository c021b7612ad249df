// Package core defines the shared interfaces and parameter types of the
// synthesis pipeline.
package core

import "context"

// SynthesisParams describes one synthesis request to the external engine.
// Zero values mean "unspecified"; the engine's derivation rules resolve them
// to concrete defaults before any subprocess is started.
type SynthesisParams struct {
	// Model is the Coqui model identifier, e.g.
	// "tts_models/multilingual/multi-dataset/xtts_v2".
	Model string

	// SpeakerIdx selects a named speaker for multi-speaker models.
	SpeakerIdx string

	// Language is the language code passed to multilingual models.
	Language string

	// SpeakerWav is a path to a reference voice sample; when set, the engine
	// runs in voice-cloning mode.
	SpeakerWav string
}

// Cloning reports whether the request conditions the engine on a reference
// voice sample.
func (p SynthesisParams) Cloning() bool {
	return p.SpeakerWav != ""
}

// Engine runs the external synthesis process for exactly one text chunk and
// returns the path of the produced audio segment.
type Engine interface {
	SynthesizeChunk(ctx context.Context, text string, params SynthesisParams) (string, error)
}

// Speaker turns a full request text into one playable audio artifact.
type Speaker interface {
	Speak(ctx context.Context, text string, params SynthesisParams, fullRewrite bool) (string, error)
}

// ObjectStore is the contract for the blob store used by the NATS worker to
// exchange request text and produced audio.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}
