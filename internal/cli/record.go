package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mrxnn/meetscribe/internal/capture"
	"github.com/mrxnn/meetscribe/internal/fsstore"
	"github.com/mrxnn/meetscribe/internal/media"
	"github.com/mrxnn/meetscribe/internal/metrics"
	"github.com/mrxnn/meetscribe/internal/mixer"
	"github.com/mrxnn/meetscribe/internal/recorder"
	"github.com/mrxnn/meetscribe/internal/session"
	"github.com/mrxnn/meetscribe/internal/store"
	"github.com/mrxnn/meetscribe/internal/transcode"
	"github.com/mrxnn/meetscribe/internal/transcription"
)

func newRecordCommand(app *App) *cobra.Command {
	var micOnly bool

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a meeting, then transcribe it",
		Long: "Captures system audio and the microphone mixed into one track, " +
			"records until Enter or an interrupt signal, and transcribes the " +
			"result with the local whisper engine.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runRecord(cmd.Context(), micOnly)
		},
	}

	cmd.Flags().BoolVar(&micOnly, "mic-only", false, "record the microphone only, skip system audio")

	return cmd
}

// graphMixer adapts the concrete mixer to the session controller's interface
type graphMixer struct {
	m *mixer.Mixer
}

func (g graphMixer) Mix(system, mic *capture.Stream) (session.Graph, error) {
	graph, err := g.m.Mix(system, mic)
	if err != nil {
		return nil, err
	}
	return graph, nil
}

func (a *App) runRecord(ctx context.Context, micOnly bool) error {
	cfg := a.cfg
	logger := a.logger

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	if cfg.Metrics.Enabled {
		shutdown := serveMetrics(registry, cfg.Metrics.Address, logger)
		defer shutdown()
	}

	fs, err := fsstore.New(cfg.Storage.DataDir, logger)
	if err != nil {
		return err
	}

	meetings := store.New(fs, fs, fs, m, logger)
	if _, err := meetings.Load(ctx); err != nil {
		return err
	}

	devices, err := media.NewPulseDevices(cfg.Capture, logger)
	if err != nil {
		return err
	}

	encoder, err := media.NewOpusEncoder(cfg.Capture.SampleRate, logger)
	if err != nil {
		return err
	}

	engine, err := transcription.NewWhisperEngine(transcription.WhisperConfig{
		BinaryPath: cfg.Transcription.EnginePath,
		ModelPath:  cfg.Transcription.ModelPath,
		Language:   cfg.Transcription.Language,
		Timeout:    cfg.Transcription.GetTimeoutDuration(),
	})
	if err != nil {
		return err
	}
	transcriber := transcription.NewClient(engine, logger)

	transcoder := transcode.New(func() (transcode.Decoder, error) {
		return media.NewFFmpegDecoder(logger)
	}, logger)

	ctrl := session.NewController(session.Deps{
		Acquirer: capture.NewAcquirer(devices, logger),
		Mixer:    graphMixer{m: mixer.New(mixer.Config{SystemGain: cfg.Mixer.SystemGain, MicGain: cfg.Mixer.MicGain}, logger)},
		NewRecorder: func() session.Recorder {
			return recorder.New(encoder, cfg.Recorder.MIMEType, logger)
		},
		Transcoder:  transcoder,
		Transcriber: transcriber,
		Saver:       fs,
		Registrar:   fs,
		Meetings:    meetings,
		Metrics:     m,
		Logger:      logger,
	})
	defer ctrl.Close()

	if micOnly {
		if err := ctrl.SetMode(session.ModeMicOnly); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	if warning := ctrl.Status().Warning; warning != "" {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
	}

	fmt.Println("Recording... press Enter or Ctrl-C to stop.")
	waitForStop(ctx)

	progressCh, cancelSub := transcriber.Subscribe()
	go func() {
		for p := range progressCh {
			if p.Status == transcription.StatusTranscribing && p.Percent != nil {
				fmt.Fprintf(os.Stderr, "\rTranscribing... %3.0f%%", *p.Percent)
			}
		}
	}()

	// The pipeline keeps its own timeouts; stop must run even after Ctrl-C
	// cancelled the signal context.
	meeting, err := ctrl.Stop(context.Background())
	cancelSub()
	fmt.Fprintln(os.Stderr)

	if err != nil {
		ctrl.Acknowledge()
		return err
	}

	status := ctrl.Status()
	if meeting != nil {
		fmt.Printf("Saved meeting %s (%s)\n\n", meeting.ID, meeting.Title)
	}
	fmt.Println(status.Transcript)

	return nil
}

// waitForStop blocks until the user presses Enter or the context is cancelled
func waitForStop(ctx context.Context) {
	enter := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()

	select {
	case <-enter:
	case <-ctx.Done():
	}
}

// serveMetrics exposes the registry on /metrics and returns a shutdown func
func serveMetrics(registry *prometheus.Registry, address string, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: address, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return func() {
		srv.Shutdown(context.Background())
	}
}
