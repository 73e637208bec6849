package transcode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mrxnn/meetscribe/internal/recorder"
)

// ErrEmptyAudio indicates the recorded blob carries zero bytes
var ErrEmptyAudio = errors.New("recorded audio is empty")

// DecodeError wraps a container decoding failure
type DecodeError struct {
	Err error
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode audio: %v", e.Err)
}

// Unwrap returns the underlying decoder error
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoded holds raw floating-point samples per channel at the container's
// native channel count and sample rate.
type Decoded struct {
	Channels   [][]float32
	SampleRate int
}

// Decoder is the collaborator that decodes a compressed container into raw
// PCM planes. Close releases the decoding context and must be called on both
// success and failure paths.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*Decoded, error)
	Close() error
}

// Transcoder converts recorded blobs into canonical uncompressed WAV files
// acceptable to the transcription engine.
type Transcoder struct {
	newDecoder func() (Decoder, error)
	logger     *slog.Logger
}

// New creates a transcoder. newDecoder opens a fresh decoding context per
// conversion.
func New(newDecoder func() (Decoder, error), logger *slog.Logger) *Transcoder {
	return &Transcoder{
		newDecoder: newDecoder,
		logger:     logger,
	}
}

// ToWAV decodes the recorded container into raw PCM and re-encodes it as a
// canonical 16-bit WAV file.
func (t *Transcoder) ToWAV(ctx context.Context, blob recorder.Blob) ([]byte, error) {
	if len(blob.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	decoder, err := t.newDecoder()
	if err != nil {
		return nil, fmt.Errorf("failed to open decoder: %w", err)
	}
	defer func() {
		if cerr := decoder.Close(); cerr != nil {
			t.logger.Warn("Decoder close reported error", slog.String("error", cerr.Error()))
		}
	}()

	start := time.Now()

	decoded, err := decoder.Decode(ctx, blob.Data)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	if len(decoded.Channels) == 0 || len(decoded.Channels[0]) == 0 {
		return nil, &DecodeError{Err: fmt.Errorf("decoder produced no samples")}
	}

	wav, err := EncodeWAV(decoded.Channels, decoded.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode WAV: %w", err)
	}

	t.logger.Info("Transcoded recording to WAV",
		slog.Int("input_bytes", len(blob.Data)),
		slog.Int("output_bytes", len(wav)),
		slog.Int("channels", len(decoded.Channels)),
		slog.Int("sample_rate", decoded.SampleRate),
		slog.Duration("elapsed", time.Since(start)),
	)

	return wav, nil
}
