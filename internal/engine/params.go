// Package engine drives the external Coqui "tts" CLI: it resolves synthesis
// parameters, runs one subprocess per text chunk with a bounded timeout, and
// applies the single documented language-fallback retry.
package engine

import (
	"strings"
	"time"

	"github.com/ttsforge/coqui-api/internal/core"
)

// Model and parameter defaults. XTTS v2 is the multilingual cloning model; it
// refuses to run without a speaker and a language, so both get defaults when
// the caller leaves them unset.
const (
	DefaultModel           = "tts_models/multilingual/multi-dataset/xtts_v2"
	DefaultSpeaker         = "Aaron Dreschner"
	DefaultLanguage        = "en"
	DefaultCloningLanguage = "pt"

	multilingualCloningMarker = "xtts_v2"
)

// Language codes involved in the fallback retry. XTTS v2 rejects the regional
// Brazilian code on some releases; the base code is always accepted.
const (
	regionalPortuguese = "pt-br"
	basePortuguese     = "pt"
)

// Chunk-size ceilings. The cloning model is more failure-prone on long input,
// so it gets the smaller ceiling.
const (
	StandardMaxChunkLength = 500
	CloningMaxChunkLength  = 300
)

// Default invocation timeouts. Voice cloning conditions the model on the
// reference sample and is markedly slower.
const (
	DefaultStandardTimeout = 240 * time.Second
	DefaultCloningTimeout  = 600 * time.Second
)

// IsMultilingualCloningModel reports whether the model identifier names the
// multilingual cloning model, case-insensitively.
func IsMultilingualCloningModel(model string) bool {
	return strings.Contains(strings.ToLower(model), multilingualCloningMarker)
}

// Resolve derives a fully determined parameter set from a possibly partial
// one. It is a pure function: the returned set is what the subprocess will be
// invoked with, and no further defaulting happens at invocation time.
func Resolve(params core.SynthesisParams) core.SynthesisParams {
	if params.Model == "" {
		params.Model = DefaultModel
	}

	if IsMultilingualCloningModel(params.Model) {
		if params.SpeakerIdx == "" && !params.Cloning() {
			params.SpeakerIdx = DefaultSpeaker
		}

		if params.Language == "" && !params.Cloning() {
			params.Language = DefaultLanguage
		}
	}

	if params.Cloning() && params.Language == "" {
		params.Language = DefaultCloningLanguage
	}

	return params
}

// MaxChunkLength returns the chunk-size ceiling for the given parameters.
func MaxChunkLength(params core.SynthesisParams) int {
	if params.Cloning() {
		return CloningMaxChunkLength
	}

	return StandardMaxChunkLength
}
