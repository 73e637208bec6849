package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"

	"github.com/mrxnn/meetscribe/internal/capture"
	"github.com/mrxnn/meetscribe/internal/config"
)

// trackBufferFrames is the per-track frame channel depth. Deep enough to ride
// out scheduler hiccups without the capture process blocking.
const trackBufferFrames = 16

// PulseDevices implements the platform capture layer over PulseAudio via
// ffmpeg. System audio comes from the configured monitor (loopback) device,
// the microphone from the configured input device.
type PulseDevices struct {
	ffmpegPath string
	cfg        config.CaptureConfig
	logger     *slog.Logger
}

// NewPulseDevices creates the device layer, verifying ffmpeg is reachable
func NewPulseDevices(cfg config.CaptureConfig, logger *slog.Logger) (*PulseDevices, error) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	return &PulseDevices{
		ffmpegPath: ffmpeg,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// ListCaptureSources enumerates capturable system sources. With PulseAudio
// the capturable surface is the configured monitor device.
func (p *PulseDevices) ListCaptureSources(_ context.Context) ([]capture.Source, error) {
	if p.cfg.SystemDevice == "" {
		return nil, nil
	}

	return []capture.Source{
		{
			ID:   p.cfg.SystemDevice,
			Name: fmt.Sprintf("Screen audio (%s)", p.cfg.SystemDevice),
		},
	}, nil
}

// OpenSourceStream opens system-audio capture of the given source
func (p *PulseDevices) OpenSourceStream(_ context.Context, sourceID string) (*capture.Stream, error) {
	return p.openDevice(sourceID, "system:"+sourceID)
}

// OpenMicStream opens microphone capture
func (p *PulseDevices) OpenMicStream(_ context.Context) (*capture.Stream, error) {
	return p.openDevice(p.cfg.MicDevice, "mic:"+p.cfg.MicDevice)
}

// openDevice spawns an ffmpeg capture process for the given pulse device and
// wraps its raw PCM output in a single-track stream. The process lives until
// the track is stopped or the device goes away.
func (p *PulseDevices) openDevice(device, streamID string) (*capture.Stream, error) {
	cmd := exec.Command(p.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "pulse",
		"-i", device,
		"-ac", "1",
		"-ar", strconv.Itoa(p.cfg.SampleRate),
		"-f", "f32le",
		"pipe:1",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open capture pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start capture of %s: %w", device, err)
	}

	track := capture.NewTrack(capture.KindAudio, trackBufferFrames, func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	})

	go p.pumpFrames(stdout, track, cmd, device)

	p.logger.Info("Capture started",
		slog.String("device", device),
		slog.Int("sample_rate", p.cfg.SampleRate),
		slog.Int("frame_size", p.cfg.FrameSize),
	)

	return capture.NewStream(streamID, track), nil
}

// pumpFrames reads fixed-size raw PCM frames from the capture process and
// pushes them onto the track until the process exits or the track stops.
func (p *PulseDevices) pumpFrames(r io.Reader, track *capture.Track, cmd *exec.Cmd, device string) {
	defer func() {
		track.Stop()
		cmd.Wait()
	}()

	buf := make([]byte, p.cfg.FrameSize*4)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err != io.EOF && !track.Stopped() {
				p.logger.Warn("Capture read ended",
					slog.String("device", device),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		frame := make([]float32, p.cfg.FrameSize)
		for i := range frame {
			frame[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		}

		if !track.Push(frame) {
			return
		}
	}
}
