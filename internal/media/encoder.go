package media

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"sync"

	"github.com/mrxnn/meetscribe/internal/capture"
)

// encoderChunkSize caps one chunk callback's payload
const encoderChunkSize = 32 * 1024

// OpusEncoder compresses a live mono stream into a WebM/Opus byte sequence
// by piping raw PCM through ffmpeg. Chunks are emitted as the container
// muxer produces them; Stop flushes the encoder before returning.
type OpusEncoder struct {
	ffmpegPath string
	sampleRate int
	bitrate    string
	logger     *slog.Logger

	mu         sync.Mutex
	cmd        *exec.Cmd
	stopPump   chan struct{}
	pumpDone   chan struct{}
	readerDone chan struct{}
}

// NewOpusEncoder creates an encoder for mono input at the given sample rate
func NewOpusEncoder(sampleRate int, logger *slog.Logger) (*OpusEncoder, error) {
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	return &OpusEncoder{
		ffmpegPath: ffmpeg,
		sampleRate: sampleRate,
		bitrate:    "32k",
		logger:     logger,
	}, nil
}

// Start begins encoding the stream's first audio track, delivering encoded
// chunks through onChunk from a background goroutine.
func (e *OpusEncoder) Start(stream *capture.Stream, onChunk func(chunk []byte)) error {
	tracks := stream.AudioTracks()
	if len(tracks) == 0 {
		return fmt.Errorf("stream %s has no audio track", stream.ID())
	}
	track := tracks[0]

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cmd != nil {
		return fmt.Errorf("encoder already started")
	}

	cmd := exec.Command(e.ffmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "f32le",
		"-ar", strconv.Itoa(e.sampleRate),
		"-ac", "1",
		"-i", "pipe:0",
		"-c:a", "libopus",
		"-b:a", e.bitrate,
		"-f", "webm",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open encoder input: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open encoder output: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start encoder: %w", err)
	}

	e.cmd = cmd
	e.stopPump = make(chan struct{})
	e.pumpDone = make(chan struct{})
	e.readerDone = make(chan struct{})

	go e.pump(track, stdin, e.stopPump, e.pumpDone)
	go e.read(stdout, onChunk, e.readerDone)

	return nil
}

// pump feeds raw PCM frames into the encoder until the track stops or Stop
// is called. Frames still buffered on the track are drained before the
// encoder's input closes, so the flush carries the trailing audio.
func (e *OpusEncoder) pump(track *capture.Track, stdin io.WriteCloser, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer stdin.Close()

	for {
		select {
		case <-stop:
			e.drainBuffered(track, stdin)
			return
		case <-track.Done():
			e.drainBuffered(track, stdin)
			return
		case frame := <-track.Frames():
			if err := e.writeFrame(stdin, frame); err != nil {
				return
			}
		}
	}
}

// drainBuffered writes the frames still queued on the track
func (e *OpusEncoder) drainBuffered(track *capture.Track, w io.Writer) {
	for {
		select {
		case frame := <-track.Frames():
			if err := e.writeFrame(w, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// writeFrame converts one sample frame to little-endian float32 PCM bytes
func (e *OpusEncoder) writeFrame(w io.Writer, frame []float32) error {
	buf := make([]byte, len(frame)*4)
	for i, s := range frame {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}

	if _, err := w.Write(buf); err != nil {
		e.logger.Warn("Encoder input write failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// read drains encoded container bytes and hands them to the chunk callback
func (e *OpusEncoder) read(stdout io.Reader, onChunk func([]byte), done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, encoderChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			onChunk(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

// Stop ends encoding and flushes buffered audio through the chunk callback
// before returning.
func (e *OpusEncoder) Stop() error {
	e.mu.Lock()
	cmd := e.cmd
	stopPump := e.stopPump
	pumpDone := e.pumpDone
	readerDone := e.readerDone
	e.cmd = nil
	e.stopPump = nil
	e.pumpDone = nil
	e.readerDone = nil
	e.mu.Unlock()

	if cmd == nil {
		return nil
	}

	close(stopPump)
	<-pumpDone

	// Input pipe is closed; the muxer writes its trailing data, then exits.
	// Wait for the reader so every flushed chunk reaches the callback.
	<-readerDone

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("encoder exited with error: %w", err)
	}

	return nil
}
