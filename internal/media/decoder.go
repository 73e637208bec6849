package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"

	"github.com/mrxnn/meetscribe/internal/transcode"
)

// FFmpegDecoder decodes a compressed audio container into raw PCM planes by
// shelling out to ffmpeg. One decoder handles one conversion; Close removes
// the temporary input file.
type FFmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger

	tmpPath string
}

// NewFFmpegDecoder creates a decoder, verifying the ffmpeg and ffprobe
// binaries are reachable.
func NewFFmpegDecoder(logger *slog.Logger) (*FFmpegDecoder, error) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &FFmpegDecoder{
		ffmpegPath:  ffmpeg,
		ffprobePath: ffprobe,
		logger:      logger,
	}, nil
}

type probeOutput struct {
	Streams []struct {
		Channels   int    `json:"channels"`
		SampleRate string `json:"sample_rate"`
	} `json:"streams"`
}

// Decode writes the blob to a temporary file, probes its audio layout, and
// decodes it to raw float32 planes at the container's native channel count
// and sample rate.
func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte) (*transcode.Decoded, error) {
	tmp, err := os.CreateTemp("", "meetscribe-decode-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	d.tmpPath = tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	channels, sampleRate, err := d.probe(ctx)
	if err != nil {
		return nil, err
	}

	interleaved, err := d.decodePCM(ctx, channels, sampleRate)
	if err != nil {
		return nil, err
	}

	return &transcode.Decoded{
		Channels:   deinterleave(interleaved, channels),
		SampleRate: sampleRate,
	}, nil
}

// probe reads the audio stream's channel count and sample rate
func (d *FFmpegDecoder) probe(ctx context.Context) (channels, sampleRate int, err error) {
	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=channels,sample_rate",
		"-of", "json",
		d.tmpPath,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if len(probe.Streams) == 0 {
		return 0, 0, fmt.Errorf("no audio stream in recording")
	}

	channels = probe.Streams[0].Channels
	sampleRate, err = strconv.Atoi(probe.Streams[0].SampleRate)
	if err != nil || channels < 1 || sampleRate < 1 {
		return 0, 0, fmt.Errorf("invalid audio layout: channels=%d sample_rate=%q",
			channels, probe.Streams[0].SampleRate)
	}

	return channels, sampleRate, nil
}

// decodePCM decodes the container to interleaved little-endian float32 PCM
func (d *FFmpegDecoder) decodePCM(ctx context.Context, channels, sampleRate int) ([]float32, error) {
	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", d.tmpPath,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
		"pipe:1",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	raw, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w: %s", err, stderr.String())
	}

	samples := make([]float32, len(raw)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		samples[i] = math.Float32frombits(bits)
	}

	return samples, nil
}

// deinterleave splits interleaved samples into per-channel planes
func deinterleave(interleaved []float32, channels int) [][]float32 {
	frames := len(interleaved) / channels
	planes := make([][]float32, channels)
	for ch := range planes {
		planes[ch] = make([]float32, frames)
		for i := 0; i < frames; i++ {
			planes[ch][i] = interleaved[i*channels+ch]
		}
	}
	return planes
}

// Close removes the temporary input file
func (d *FFmpegDecoder) Close() error {
	if d.tmpPath == "" {
		return nil
	}

	err := os.Remove(d.tmpPath)
	d.tmpPath = ""
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp file: %w", err)
	}
	return nil
}
