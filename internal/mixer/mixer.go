package mixer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mrxnn/meetscribe/internal/capture"
)

// Config contains gain settings for the mixing graph. System audio is left
// at unity by default; the microphone is boosted because captured system
// audio is typically much louder than a laptop microphone.
type Config struct {
	SystemGain float64
	MicGain    float64
}

// Mixer combines two live audio streams into one via a gain-and-sum graph
type Mixer struct {
	config Config
	logger *slog.Logger
}

// New creates a mixer with the given gain configuration
func New(config Config, logger *slog.Logger) *Mixer {
	if config.SystemGain <= 0 {
		config.SystemGain = 1.0
	}
	if config.MicGain <= 0 {
		config.MicGain = 2.0
	}

	return &Mixer{
		config: config,
		logger: logger,
	}
}

// Graph is a running audio processing graph: each input routes through a
// dedicated gain stage into one summing output track. It must be closed when
// recording stops; leaving it open leaks the underlying device handles.
type Graph struct {
	output *capture.Stream
	out    *capture.Track

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Mix wires the first audio track of each input stream through its gain
// stage into a single summed output stream containing exactly one audio
// track.
func (m *Mixer) Mix(system, mic *capture.Stream) (*Graph, error) {
	systemTracks := system.AudioTracks()
	if len(systemTracks) == 0 {
		return nil, fmt.Errorf("system stream %s has no audio tracks", system.ID())
	}

	micTracks := mic.AudioTracks()
	if len(micTracks) == 0 {
		return nil, fmt.Errorf("mic stream %s has no audio tracks", mic.ID())
	}

	ctx, cancel := context.WithCancel(context.Background())

	out := capture.NewTrack(capture.KindAudio, 8, nil)
	graph := &Graph{
		output: capture.NewStream("mixed:"+system.ID()+"+"+mic.ID(), out),
		out:    out,
		cancel: cancel,
	}

	m.logger.Info("Mixing graph started",
		slog.String("system_stream", system.ID()),
		slog.String("mic_stream", mic.ID()),
		slog.Float64("system_gain", m.config.SystemGain),
		slog.Float64("mic_gain", m.config.MicGain),
	)

	graph.wg.Add(1)
	go func() {
		defer graph.wg.Done()
		m.runGraph(ctx, systemTracks[0], micTracks[0], out)
	}()

	return graph, nil
}

// runGraph pulls one frame from each live input per cycle, applies the gain
// stages, and sums into the output track. Ends when both inputs end or the
// graph is closed.
func (m *Mixer) runGraph(ctx context.Context, system, mic *capture.Track, out *capture.Track) {
	defer out.Stop()

	systemLive, micLive := true, true

	for systemLive || micLive {
		var systemFrame, micFrame []float32

		if systemLive {
			frame, ok := nextFrame(ctx, system)
			if !ok && frame == nil {
				if ctx.Err() != nil {
					return
				}
				systemLive = false
			}
			systemFrame = frame
		}

		if micLive {
			frame, ok := nextFrame(ctx, mic)
			if !ok && frame == nil {
				if ctx.Err() != nil {
					return
				}
				micLive = false
			}
			micFrame = frame
		}

		if systemFrame == nil && micFrame == nil {
			continue
		}

		mixed := sumFrames(systemFrame, m.config.SystemGain, micFrame, m.config.MicGain)
		if !out.Push(mixed) {
			return
		}
	}
}

// nextFrame blocks for the next frame on the track. Returns (nil, false)
// when the track has ended or the context is cancelled.
func nextFrame(ctx context.Context, t *capture.Track) ([]float32, bool) {
	select {
	case frame := <-t.Frames():
		return frame, true
	case <-t.Done():
		// Drain a frame that raced the stop, then report the track ended
		select {
		case frame := <-t.Frames():
			return frame, true
		default:
			return nil, false
		}
	case <-ctx.Done():
		return nil, false
	}
}

// sumFrames computes a[i]*gainA + b[i]*gainB per sample instant, padding the
// shorter input with silence.
func sumFrames(a []float32, gainA float64, b []float32, gainB float64) []float32 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}

	mixed := make([]float32, n)
	for i := range mixed {
		var sample float64
		if i < len(a) {
			sample += float64(a[i]) * gainA
		}
		if i < len(b) {
			sample += float64(b[i]) * gainB
		}
		mixed[i] = float32(sample)
	}

	return mixed
}

// Output returns the mixed stream containing exactly one audio track
func (g *Graph) Output() *capture.Stream {
	return g.output
}

// Close tears the graph down: the summing loop stops, the output track ends,
// and all nodes are released. Safe to call multiple times.
func (g *Graph) Close() error {
	g.closeOnce.Do(func() {
		g.cancel()
		// The summing loop may be blocked pushing into a full output buffer
		// when nothing downstream is draining; stopping the output track
		// first unblocks that push so the wait below can complete.
		g.out.Stop()
		g.wg.Wait()
	})

	return nil
}
