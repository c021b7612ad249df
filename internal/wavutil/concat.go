// Package wavutil provides WAV reassembly and audio metadata helpers.
//
// Per-chunk synthesis produces one WAV file per chunk; this package merges
// them back into a single artifact without re-encoding, gaps or fades, and
// derives the duration/word-count metadata the HTTP layer reports.
package wavutil

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

// File permissions for artifacts.
const artifactFilePermissions = 0o600

// Static errors.
var (
	// ErrNoSegments indicates that an empty segment list was passed to the
	// concatenator. This is a caller error, never a runtime condition.
	ErrNoSegments = errors.New("no audio segments to concatenate")

	// ErrFormatMismatch indicates that a segment's audio format differs from
	// the first segment's.
	ErrFormatMismatch = errors.New("audio segment format mismatch")

	// ErrInvalidWav indicates that a segment is not a readable WAV file.
	ErrInvalidWav = errors.New("invalid wav file")
)

// segmentFormat is the authoritative format taken from the first segment.
type segmentFormat struct {
	numChans       uint16
	bitDepth       uint16
	sampleRate     uint32
	wavAudioFormat uint16
}

// Concatenate merges the ordered segment files into a single WAV at
// destination and deletes the inputs.
//
// A single segment is copied byte-for-byte. With multiple segments the first
// segment's channel count, bit depth and sample rate become the output format
// and every later segment must match it exactly; raw sample frames are
// appended in input order with no silence insertion and no resampling.
//
// Input deletion is best-effort: after a successful write, failures to remove
// a segment are swallowed so cleanup never masks a successful merge. On any
// write or format error the inputs are left in place for the caller's
// failure-path cleanup.
func Concatenate(segments []string, destination string) error {
	if len(segments) == 0 {
		return ErrNoSegments
	}

	if len(segments) == 1 {
		copyErr := copyFile(segments[0], destination)
		if copyErr != nil {
			return copyErr
		}

		removeSegments(segments)

		return nil
	}

	mergeErr := mergeSegments(segments, destination)
	if mergeErr != nil {
		return mergeErr
	}

	removeSegments(segments)

	return nil
}

func mergeSegments(segments []string, destination string) error {
	output, createErr := os.Create(destination)
	if createErr != nil {
		return fmt.Errorf("failed to create output file %s: %w", destination, createErr)
	}

	format, firstErr := readFormat(segments[0])
	if firstErr != nil {
		closeAndRemove(output, destination)

		return firstErr
	}

	encoder := wav.NewEncoder(
		output,
		int(format.sampleRate),
		int(format.bitDepth),
		int(format.numChans),
		int(format.wavAudioFormat),
	)

	for _, segment := range segments {
		appendErr := appendSegment(encoder, segment, format)
		if appendErr != nil {
			closeAndRemove(output, destination)

			return appendErr
		}
	}

	encodeErr := encoder.Close()
	if encodeErr != nil {
		closeAndRemove(output, destination)

		return fmt.Errorf("failed to finalize output file %s: %w", destination, encodeErr)
	}

	closeErr := output.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to close output file %s: %w", destination, closeErr)
	}

	return nil
}

// readFormat reads the WAV header of the first segment to establish the
// authoritative output format.
func readFormat(path string) (segmentFormat, error) {
	file, openErr := os.Open(path)
	if openErr != nil {
		return segmentFormat{}, fmt.Errorf("failed to open segment %s: %w", path, openErr)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()

	if decoder.Err() != nil || decoder.SampleRate == 0 {
		return segmentFormat{}, fmt.Errorf("%w: %s", ErrInvalidWav, path)
	}

	return segmentFormat{
		numChans:       decoder.NumChans,
		bitDepth:       decoder.BitDepth,
		sampleRate:     decoder.SampleRate,
		wavAudioFormat: decoder.WavAudioFormat,
	}, nil
}

// appendSegment writes one segment's raw sample frames to the encoder,
// verbatim and in order.
func appendSegment(encoder *wav.Encoder, path string, format segmentFormat) error {
	file, openErr := os.Open(path)
	if openErr != nil {
		return fmt.Errorf("failed to open segment %s: %w", path, openErr)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := wav.NewDecoder(file)

	buffer, decodeErr := decoder.FullPCMBuffer()
	if decodeErr != nil {
		return fmt.Errorf("failed to decode segment %s: %w", path, decodeErr)
	}

	if decoder.NumChans != format.numChans ||
		decoder.BitDepth != format.bitDepth ||
		decoder.SampleRate != format.sampleRate {
		return fmt.Errorf(
			"%w: %s has %d ch/%d bit/%d Hz, expected %d ch/%d bit/%d Hz",
			ErrFormatMismatch,
			path,
			decoder.NumChans, decoder.BitDepth, decoder.SampleRate,
			format.numChans, format.bitDepth, format.sampleRate,
		)
	}

	writeErr := encoder.Write(buffer)
	if writeErr != nil {
		return fmt.Errorf("failed to write segment %s frames: %w", path, writeErr)
	}

	return nil
}

func copyFile(source, destination string) error {
	data, readErr := os.ReadFile(source)
	if readErr != nil {
		return fmt.Errorf("failed to read segment %s: %w", source, readErr)
	}

	writeErr := os.WriteFile(destination, data, artifactFilePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write artifact %s: %w", destination, writeErr)
	}

	return nil
}

// removeSegments deletes segment files, ignoring failures.
func removeSegments(segments []string) {
	for _, segment := range segments {
		_ = os.Remove(segment)
	}
}

func closeAndRemove(file io.Closer, path string) {
	_ = file.Close()
	_ = os.Remove(path)
}
