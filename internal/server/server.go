// Package server exposes the synthesis pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/book-expert/logger"
	"github.com/gin-gonic/gin"
	"github.com/ttsforge/coqui-api/internal/catalog"
	"github.com/ttsforge/coqui-api/internal/core"
	"github.com/ttsforge/coqui-api/internal/synth"
	"github.com/ttsforge/coqui-api/internal/wavutil"
)

const (
	serviceName    = "coqui-tts-api"
	serviceVersion = "1.0.0"

	wavMediaType        = "audio/wav"
	wavGlob             = "*.wav"
	headerAudioDuration = "X-Audio-Duration"
	headerWordCount     = "X-Word-Count"

	detailEmptyText        = "Text cannot be empty"
	detailReferenceMissing = "Reference voice audio not found. " +
		"Please add your reference audio file before cloning."
	logSnippetLength = 50
)

// ModelCatalog is the slice of the model catalog the handlers need.
type ModelCatalog interface {
	Raw(ctx context.Context) (string, error)
	Portuguese(ctx context.Context) ([]catalog.ModelInfo, []catalog.ModelInfo, error)
}

// TTSRequest is the body of the generic synthesis endpoint.
type TTSRequest struct {
	Text        string `json:"text"`
	ModelName   string `json:"model_name"`
	SpeakerIdx  string `json:"speaker_idx"`
	LanguageIdx string `json:"language_idx"`
}

// TextRequest is the body of the voice cloning endpoint.
type TextRequest struct {
	Text string `json:"text"`
}

// Server wires the HTTP surface to the synthesis pipeline.
type Server struct {
	speaker            core.Speaker
	models             ModelCatalog
	outputDir          string
	referenceVoicePath string
	log                *logger.Logger
}

// New creates a Server. referenceVoicePath is the fixed location of the
// reference sample used by the cloning endpoint.
func New(
	speaker core.Speaker,
	models ModelCatalog,
	outputDir string,
	referenceVoicePath string,
	log *logger.Logger,
) *Server {
	return &Server{
		speaker:            speaker,
		models:             models,
		outputDir:          outputDir,
		referenceVoicePath: referenceVoicePath,
		log:                log,
	}
}

// Handler builds the gin router with all routes registered.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", s.handleRoot)
	router.GET("/health", s.handleHealth)
	router.GET("/models", s.handleModels)
	router.GET("/models/portuguese", s.handlePortugueseModels)
	router.POST("/synthesize", s.handleSynthesize)
	router.POST("/synthesize/clone_voice", s.handleCloneVoice)
	router.DELETE("/cleanup", s.handleCleanup)

	return router
}

func (s *Server) handleRoot(ginCtx *gin.Context) {
	ginCtx.JSON(http.StatusOK, gin.H{
		"message": "CoquiTTS API Server",
		"version": serviceVersion,
		"endpoints": gin.H{
			"/models":                 "List all available TTS models",
			"/models/portuguese":      "List Portuguese TTS models",
			"/synthesize":             "Synthesize speech from text",
			"/synthesize/clone_voice": "Synthesize speech using your cloned voice (Brazilian Portuguese)",
			"/cleanup":                "Delete generated audio files",
		},
	})
}

func (s *Server) handleHealth(ginCtx *gin.Context) {
	ginCtx.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
	})
}

// handleModels returns the engine's model listing verbatim. The raw listing
// is plain text, so a failure degrades to a JSON warning instead of an error.
func (s *Server) handleModels(ginCtx *gin.Context) {
	listing, err := s.models.Raw(ginCtx.Request.Context())
	if err != nil {
		s.log.Warn("Model listing unavailable: %v", err)
		ginCtx.JSON(http.StatusOK, gin.H{
			"status":  "warning",
			"message": fmt.Sprintf("Model listing unavailable: %v", err),
			"models":  []string{},
			"count":   0,
		})

		return
	}

	ginCtx.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(listing))
}

func (s *Server) handlePortugueseModels(ginCtx *gin.Context) {
	portuguese, multilingual, err := s.models.Portuguese(ginCtx.Request.Context())
	if err != nil {
		s.log.Warn("Portuguese model listing unavailable: %v", err)
		ginCtx.JSON(http.StatusOK, gin.H{
			"status":  "warning",
			"message": fmt.Sprintf("Model listing unavailable: %v", err),
			"models":  []catalog.ModelInfo{},
			"count":   0,
		})

		return
	}

	combined := make([]catalog.ModelInfo, 0, len(portuguese)+len(multilingual))
	combined = append(combined, portuguese...)
	combined = append(combined, multilingual...)

	s.log.Info(
		"Found %d Portuguese-specific and %d multilingual models",
		len(portuguese), len(multilingual),
	)
	ginCtx.JSON(http.StatusOK, gin.H{
		"models":              combined,
		"count":               len(combined),
		"portuguese_specific": len(portuguese),
		"multilingual":        len(multilingual),
		"status":              "success",
	})
}

func (s *Server) handleSynthesize(ginCtx *gin.Context) {
	var request TTSRequest

	bindErr := ginCtx.ShouldBindJSON(&request)
	if bindErr != nil {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"detail": bindErr.Error()})

		return
	}

	if strings.TrimSpace(request.Text) == "" {
		s.log.Warn("Synthesis request rejected: empty text")
		ginCtx.JSON(http.StatusBadRequest, gin.H{"detail": detailEmptyText})

		return
	}

	s.log.Info(
		"Starting synthesis: text='%s...', model=%s",
		snippet(request.Text), request.ModelName,
	)

	params := core.SynthesisParams{
		Model:      request.ModelName,
		SpeakerIdx: request.SpeakerIdx,
		Language:   request.LanguageIdx,
		SpeakerWav: "",
	}

	artifact, speakErr := s.speaker.Speak(ginCtx.Request.Context(), request.Text, params, false)
	if speakErr != nil {
		s.respondSynthesisError(ginCtx, "Synthesis failed", speakErr)

		return
	}

	s.log.Info("Synthesis completed successfully: %s", artifact)
	s.serveArtifact(ginCtx, artifact, "synthesis_", request.Text)
}

func (s *Server) handleCloneVoice(ginCtx *gin.Context) {
	var request TextRequest

	bindErr := ginCtx.ShouldBindJSON(&request)
	if bindErr != nil {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"detail": bindErr.Error()})

		return
	}

	if strings.TrimSpace(request.Text) == "" {
		s.log.Warn("Voice cloning synthesis request rejected: empty text")
		ginCtx.JSON(http.StatusBadRequest, gin.H{"detail": detailEmptyText})

		return
	}

	_, statErr := os.Stat(s.referenceVoicePath)
	if statErr != nil {
		s.log.Error("Reference audio not found: %s", s.referenceVoicePath)
		ginCtx.JSON(http.StatusNotFound, gin.H{"detail": detailReferenceMissing})

		return
	}

	s.log.Info(
		"Starting voice cloning synthesis: text='%s...', reference=%s",
		snippet(request.Text), s.referenceVoicePath,
	)

	params := core.SynthesisParams{
		Model:      "",
		SpeakerIdx: "",
		Language:   "",
		SpeakerWav: s.referenceVoicePath,
	}

	artifact, speakErr := s.speaker.Speak(ginCtx.Request.Context(), request.Text, params, true)
	if speakErr != nil {
		s.respondSynthesisError(ginCtx, "Voice cloning synthesis failed", speakErr)

		return
	}

	s.log.Info("Voice cloning synthesis completed successfully: %s", artifact)
	s.serveArtifact(ginCtx, artifact, "cloned_voice_synthesis_", request.Text)
}

// handleCleanup deletes produced artifacts in bulk. Files that cannot be
// removed, for example because they are still being served, are skipped.
func (s *Server) handleCleanup(ginCtx *gin.Context) {
	matches, globErr := filepath.Glob(filepath.Join(s.outputDir, wavGlob))
	if globErr != nil {
		ginCtx.JSON(http.StatusInternalServerError, gin.H{"detail": globErr.Error()})

		return
	}

	deletedCount := 0

	var bytesFreed int64

	for _, path := range matches {
		info, statErr := os.Stat(path)
		if statErr != nil {
			continue
		}

		removeErr := os.Remove(path)
		if removeErr != nil {
			s.log.Warn("Cleanup skipped file '%s': %v", path, removeErr)

			continue
		}

		deletedCount++
		bytesFreed += info.Size()

		s.log.Info("Deleted audio file: %s (%d bytes)", path, info.Size())
	}

	s.log.Info("Cleanup completed: %d files, %d bytes freed", deletedCount, bytesFreed)
	ginCtx.JSON(http.StatusOK, gin.H{
		"message":       fmt.Sprintf("Cleaned up %d audio files", deletedCount),
		"files_deleted": deletedCount,
		"bytes_freed":   bytesFreed,
	})
}

// serveArtifact streams the finished wav as an attachment with the duration
// and word count headers.
func (s *Server) serveArtifact(ginCtx *gin.Context, artifact, filenamePrefix, text string) {
	durationSeconds, durationErr := wavutil.Duration(artifact)
	if durationErr != nil {
		s.log.Warn("Failed to read artifact duration for '%s': %v", artifact, durationErr)
	}

	stem := strings.TrimSuffix(filepath.Base(artifact), filepath.Ext(artifact))

	ginCtx.Header(headerAudioDuration, strconv.FormatFloat(durationSeconds, 'f', 3, 64))
	ginCtx.Header(headerWordCount, strconv.Itoa(wavutil.CountWords(text)))
	ginCtx.Header("Content-Type", wavMediaType)
	ginCtx.FileAttachment(artifact, filenamePrefix+stem+".wav")
}

func (s *Server) respondSynthesisError(ginCtx *gin.Context, prefix string, err error) {
	if errors.Is(err, synth.ErrEmptyText) {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"detail": detailEmptyText})

		return
	}

	message := fmt.Sprintf("%s: %v", prefix, err)
	s.log.Error("%s", message)
	ginCtx.JSON(http.StatusInternalServerError, gin.H{"detail": message})
}

// snippet shortens text for log lines, cutting on a rune boundary.
func snippet(text string) string {
	if len(text) <= logSnippetLength {
		return text
	}

	runes := []rune(text)
	if len(runes) <= logSnippetLength {
		return text
	}

	return string(runes[:logSnippetLength])
}
