// Package catalog maintains the read-mostly model catalog obtained from the
// Coqui CLI.
//
// The catalog is populated lazily by a single subprocess run per process
// lifetime. Its state is explicit (unpopulated, populated, failed) rather than
// sentinel-encoded; a failed population attempt is remembered and reported on
// every later call instead of being retried.
package catalog

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
)

const (
	listModelsFlag = "--list_models"
	ttsHomeEnv     = "TTS_HOME"

	// DefaultListTimeout bounds the one population attempt. The first run may
	// touch the network for catalog metadata, so it is generous.
	DefaultListTimeout = 180 * time.Second

	modelPrefix = "tts_models/"
)

// Lines of the raw listing that carry no model entry.
const (
	skipPrefixNameFormat = "Name format:"
	skipPrefixSeparator  = "="
	skipPrefixPath       = "Path"
)

// Languages treated as Portuguese for the filtered listing.
var portugueseLanguages = map[string]struct{}{
	"pt":         {},
	"pt-br":      {},
	"pt_br":      {},
	"portuguese": {},
}

const multilingualLanguage = "multilingual"

// state is the population tri-state.
type state int

const (
	stateUnpopulated state = iota
	statePopulated
	stateFailed
)

// ModelInfo is one parsed entry of the model listing.
type ModelInfo struct {
	Name     string `json:"model_name"`
	Language string `json:"language"`
	Dataset  string `json:"dataset"`
	Type     string `json:"model_type"`
}

// Catalog owns the lazily populated model listing. It is safe for concurrent
// use and passed by reference to the HTTP layer.
type Catalog struct {
	mu      sync.Mutex
	current state
	raw     string
	models  []ModelInfo
	lastErr error

	binary  string
	ttsHome string
	timeout time.Duration
	log     *logger.Logger
}

// New creates an unpopulated catalog backed by the given CLI binary.
func New(binary, ttsHome string, timeout time.Duration, log *logger.Logger) *Catalog {
	if timeout <= 0 {
		timeout = DefaultListTimeout
	}

	return &Catalog{
		binary:  binary,
		ttsHome: ttsHome,
		timeout: timeout,
		log:     log,
	}
}

// Raw returns the unparsed model listing, populating the catalog on first use.
func (c *Catalog) Raw(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	populateErr := c.ensurePopulatedLocked(ctx)
	if populateErr != nil {
		return "", populateErr
	}

	return c.raw, nil
}

// Models returns the parsed model listing, populating the catalog on first
// use.
func (c *Catalog) Models(ctx context.Context) ([]ModelInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	populateErr := c.ensurePopulatedLocked(ctx)
	if populateErr != nil {
		return nil, populateErr
	}

	return c.models, nil
}

// Portuguese returns the Portuguese-specific and multilingual models.
func (c *Catalog) Portuguese(ctx context.Context) (portuguese, multilingual []ModelInfo, err error) {
	models, modelsErr := c.Models(ctx)
	if modelsErr != nil {
		return nil, nil, modelsErr
	}

	for _, model := range models {
		language := strings.ToLower(model.Language)

		if _, ok := portugueseLanguages[language]; ok {
			portuguese = append(portuguese, model)

			continue
		}

		if language == multilingualLanguage {
			multilingual = append(multilingual, model)
		}
	}

	return portuguese, multilingual, nil
}

// ensurePopulatedLocked performs the single population attempt. The caller
// must hold c.mu.
func (c *Catalog) ensurePopulatedLocked(ctx context.Context) error {
	switch c.current {
	case statePopulated:
		return nil
	case stateFailed:
		return c.lastErr
	case stateUnpopulated:
	}

	c.log.Info("Fetching model listing from %s", c.binary)

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// #nosec G204 -- the binary comes from configuration.
	cmd := exec.CommandContext(runCtx, c.binary, listModelsFlag)

	env := os.Environ()
	if c.ttsHome != "" {
		env = append(env, ttsHomeEnv+"="+c.ttsHome)
	}

	cmd.Env = env

	output, runErr := cmd.Output()
	if runErr != nil {
		c.current = stateFailed
		c.lastErr = fmt.Errorf("failed to list models: %w", runErr)
		c.log.Error("Model listing failed: %v", runErr)

		return c.lastErr
	}

	c.raw = string(output)
	c.models = ParseModels(c.raw)
	c.current = statePopulated

	c.log.Info("Model catalog populated: %d models", len(c.models))

	return nil
}

// ParseModels parses the raw `tts --list_models` output into structured
// entries. Lines that do not name a tts_models entry are skipped.
func ParseModels(output string) []ModelInfo {
	var models []ModelInfo

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		if line == "" ||
			strings.HasPrefix(line, skipPrefixNameFormat) ||
			strings.HasPrefix(line, skipPrefixSeparator) ||
			strings.HasPrefix(line, skipPrefixPath) {
			continue
		}

		colonIndex := strings.Index(line, ":")
		if colonIndex < 0 || !strings.Contains(line, modelPrefix) {
			continue
		}

		name := strings.TrimSpace(line[colonIndex+1:])
		if !strings.HasPrefix(name, modelPrefix) {
			continue
		}

		parts := strings.Split(name, "/")
		if len(parts) < 3 {
			continue
		}

		models = append(models, ModelInfo{
			Name:     name,
			Language: parts[1],
			Dataset:  parts[2],
			Type:     "tts",
		})
	}

	return models
}
