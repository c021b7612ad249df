// Command coqui-client is a small command line client for the coqui-api
// HTTP service.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

// Flag descriptions.
const (
	flagURLDesc      = "Base URL of the coqui-api service"
	flagTextDesc     = "Text to convert to speech"
	flagOutputDesc   = "Output file path (.wav)"
	flagModelDesc    = "TTS model name (service default when empty)"
	flagSpeakerDesc  = "Speaker index for multi-speaker models"
	flagLanguageDesc = "Language index for multilingual models"
	flagCloneDesc    = "Use the cloned voice endpoint"
	flagHealthDesc   = "Check service health and exit"
)

// Flag names.
const (
	flagURL      = "url"
	flagText     = "text"
	flagOutput   = "output"
	flagModel    = "model"
	flagSpeaker  = "speaker-idx"
	flagLanguage = "language-idx"
	flagClone    = "clone"
	flagHealth   = "health"
)

// Messages.
const (
	errTextRequired   = "--text must be provided"
	errServiceHealthy = "Service is healthy"
	logGenerated      = "Generated: %s (duration %ss, %s words)\n"
)

const (
	defaultBaseURL    = "http://localhost:8000"
	defaultOutputFile = "output.wav"
	healthTimeout     = 10 * time.Second
	synthesisTimeout  = 15 * time.Minute
	outputFilePerms   = 0o600
)

var errUnexpectedStatus = errors.New("unexpected response status")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	url      string
	text     string
	output   string
	model    string
	speaker  string
	language string
	clone    bool
	health   bool
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()

	if flags.health {
		return checkHealth(flags.url)
	}

	if flags.text == "" {
		flag.Usage()

		return errors.New(errTextRequired)
	}

	return synthesize(flags)
}

func parseFlags() appFlags {
	var flags appFlags
	flag.StringVar(&flags.url, flagURL, defaultBaseURL, flagURLDesc)
	flag.StringVar(&flags.text, flagText, "", flagTextDesc)
	flag.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flag.StringVar(&flags.model, flagModel, "", flagModelDesc)
	flag.StringVar(&flags.speaker, flagSpeaker, "", flagSpeakerDesc)
	flag.StringVar(&flags.language, flagLanguage, "", flagLanguageDesc)
	flag.BoolVar(&flags.clone, flagClone, false, flagCloneDesc)
	flag.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flag.Parse()

	return flags
}

func checkHealth(baseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	request, requestErr := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if requestErr != nil {
		return fmt.Errorf("failed to build health request: %w", requestErr)
	}

	response, doErr := http.DefaultClient.Do(request)
	if doErr != nil {
		return fmt.Errorf("health check failed: %w", doErr)
	}

	defer closeBody(response.Body)

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", errUnexpectedStatus, response.Status)
	}

	fmt.Println(errServiceHealthy)

	return nil
}

func synthesize(flags appFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), synthesisTimeout)
	defer cancel()

	endpoint, payload := buildRequest(flags)

	body, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal request: %w", marshalErr)
	}

	request, requestErr := http.NewRequestWithContext(
		ctx, http.MethodPost, flags.url+endpoint, bytes.NewReader(body),
	)
	if requestErr != nil {
		return fmt.Errorf("failed to build synthesis request: %w", requestErr)
	}

	request.Header.Set("Content-Type", "application/json")

	response, doErr := http.DefaultClient.Do(request)
	if doErr != nil {
		return fmt.Errorf("synthesis request failed: %w", doErr)
	}

	defer closeBody(response.Body)

	if response.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(response.Body)

		return fmt.Errorf("%w: %s: %s", errUnexpectedStatus, response.Status, detail)
	}

	audio, readErr := io.ReadAll(response.Body)
	if readErr != nil {
		return fmt.Errorf("failed to read audio response: %w", readErr)
	}

	writeErr := os.WriteFile(flags.output, audio, outputFilePerms)
	if writeErr != nil {
		return fmt.Errorf("failed to write output file: %w", writeErr)
	}

	fmt.Printf(
		logGenerated,
		flags.output,
		response.Header.Get("X-Audio-Duration"),
		response.Header.Get("X-Word-Count"),
	)

	return nil
}

// buildRequest picks the endpoint and payload for the requested mode. The
// cloning endpoint only accepts text; the service supplies the reference
// sample and model.
func buildRequest(flags appFlags) (string, map[string]string) {
	if flags.clone {
		return "/synthesize/clone_voice", map[string]string{"text": flags.text}
	}

	payload := map[string]string{"text": flags.text}
	if flags.model != "" {
		payload["model_name"] = flags.model
	}

	if flags.speaker != "" {
		payload["speaker_idx"] = flags.speaker
	}

	if flags.language != "" {
		payload["language_idx"] = flags.language
	}

	return "/synthesize", payload
}

func closeBody(body io.ReadCloser) {
	closeErr := body.Close()
	if closeErr != nil {
		log.Printf("failed to close response body: %v", closeErr)
	}
}
