package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mrxnn/meetscribe/internal/capture"
	"github.com/mrxnn/meetscribe/internal/recorder"
	"github.com/mrxnn/meetscribe/internal/store"
	"github.com/mrxnn/meetscribe/internal/transcription"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type releaseCounter struct {
	count int
}

func (r *releaseCounter) stream(id string) *capture.Stream {
	track := capture.NewTrack(capture.KindAudio, 4, func() { r.count++ })
	return capture.NewStream(id, track)
}

type fakeAcquirer struct {
	releases *releaseCounter

	pairErr error
	micErr  error

	systemCalls int
	micCalls    int
}

func (f *fakeAcquirer) AcquireSystemAndMic(_ context.Context) (*capture.Pair, error) {
	f.systemCalls++
	if f.pairErr != nil {
		return nil, f.pairErr
	}
	return &capture.Pair{
		System: f.releases.stream("system"),
		Mic:    f.releases.stream("mic"),
	}, nil
}

func (f *fakeAcquirer) AcquireMic(_ context.Context) (*capture.Stream, error) {
	f.micCalls++
	if f.micErr != nil {
		return nil, f.micErr
	}
	return f.releases.stream("mic"), nil
}

type fakeGraph struct {
	output *capture.Stream
	closed int
}

func (g *fakeGraph) Output() *capture.Stream { return g.output }

func (g *fakeGraph) Close() error {
	g.closed++
	g.output.StopAll()
	return nil
}

type fakeMixer struct {
	graph *fakeGraph
	err   error
}

func (m *fakeMixer) Mix(_, _ *capture.Stream) (Graph, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.graph = &fakeGraph{
		output: capture.NewStream("mixed", capture.NewTrack(capture.KindAudio, 4, nil)),
	}
	return m.graph, nil
}

type fakeRecorder struct {
	blob    recorder.Blob
	stopErr error

	starts int
	stops  int
}

func (r *fakeRecorder) Start(_ *capture.Stream) error {
	r.starts++
	return nil
}

func (r *fakeRecorder) Stop() (recorder.Blob, error) {
	r.stops++
	if r.stopErr != nil {
		return recorder.Blob{}, r.stopErr
	}
	return r.blob, nil
}

type fakeTranscoder struct {
	wav   []byte
	err   error
	calls int
}

func (t *fakeTranscoder) ToWAV(_ context.Context, _ recorder.Blob) ([]byte, error) {
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	return t.wav, nil
}

type fakeTranscriber struct {
	result *transcription.Result
	err    error
	calls  int
}

func (t *fakeTranscriber) Transcribe(_ context.Context, _ string) (*transcription.Result, error) {
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	return t.result, nil
}

func (t *fakeTranscriber) Subscribe() (<-chan transcription.Progress, func()) {
	ch := make(chan transcription.Progress)
	return ch, func() { close(ch) }
}

type fakeSaver struct {
	path  string
	err   error
	calls int
}

func (s *fakeSaver) SaveEncodedAudio(_ context.Context, _ []byte) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.path, nil
}

type fakeRegistrar struct {
	info  store.RecordingInfo
	err   error
	calls int
}

func (r *fakeRegistrar) RegisterRecording(_ context.Context, _, _ string) (store.RecordingInfo, error) {
	r.calls++
	if r.err != nil {
		return store.RecordingInfo{}, r.err
	}
	return r.info, nil
}

type testRig struct {
	releases    *releaseCounter
	acquirer    *fakeAcquirer
	mixer       *fakeMixer
	recorder    *fakeRecorder
	transcoder  *fakeTranscoder
	transcriber *fakeTranscriber
	saver       *fakeSaver
	registrar   *fakeRegistrar
	ctrl        *Controller
}

func newTestRig() *testRig {
	releases := &releaseCounter{}

	rig := &testRig{
		releases:    releases,
		acquirer:    &fakeAcquirer{releases: releases},
		mixer:       &fakeMixer{},
		recorder:    &fakeRecorder{blob: recorder.Blob{Data: []byte("encoded"), MIMEType: "audio/webm"}},
		transcoder:  &fakeTranscoder{wav: []byte("RIFFwav")},
		transcriber: &fakeTranscriber{result: &transcription.Result{Text: "hello world"}},
		saver:       &fakeSaver{path: "/data/recordings/abc.wav"},
		registrar:   &fakeRegistrar{info: store.RecordingInfo{ID: "abc", Title: "Meeting", Date: time.Now()}},
	}

	rig.ctrl = NewController(Deps{
		Acquirer:     rig.acquirer,
		Mixer:        rig.mixer,
		NewRecorder:  func() Recorder { return rig.recorder },
		Transcoder:   rig.transcoder,
		Transcriber:  rig.transcriber,
		Saver:        rig.saver,
		Registrar:    rig.registrar,
		Logger:       testLogger(),
		TickInterval: 10 * time.Millisecond,
	})

	return rig
}

func TestStartRejectedWhileActive(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	if err := rig.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := rig.ctrl.Start(ctx); !errors.Is(err, ErrSessionActive) {
		t.Errorf("Expected ErrSessionActive, got %v", err)
	}

	status := rig.ctrl.Status()
	if status.State != StateRecording {
		t.Errorf("Expected state unchanged by rejected start, got %v", status.State)
	}

	if rig.recorder.starts != 1 {
		t.Errorf("Expected recorder started once, got %d", rig.recorder.starts)
	}

	rig.ctrl.Close()
}

func TestStopRunsFullPipeline(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	if err := rig.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	meeting, err := rig.ctrl.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if meeting != nil {
		// No store wired in the rig; registrar alone yields no meeting
		t.Errorf("Expected nil meeting without a store, got %+v", meeting)
	}

	if rig.transcoder.calls != 1 || rig.saver.calls != 1 || rig.transcriber.calls != 1 || rig.registrar.calls != 1 {
		t.Errorf("Expected each pipeline stage once, got transcode=%d save=%d transcribe=%d register=%d",
			rig.transcoder.calls, rig.saver.calls, rig.transcriber.calls, rig.registrar.calls)
	}

	status := rig.ctrl.Status()
	if status.State != StateIdle {
		t.Errorf("Expected Idle after successful stop, got %v", status.State)
	}
	if status.Transcript != "hello world" {
		t.Errorf("Expected transcript set, got %q", status.Transcript)
	}
	if status.Recording.IsRecording || status.Recording.IsTranscribing || status.Recording.RecordingDurationSeconds != 0 {
		t.Errorf("Expected recording state reset, got %+v", status.Recording)
	}

	if rig.releases.count != 2 {
		t.Errorf("Expected both acquired streams released, got %d releases", rig.releases.count)
	}
	if rig.mixer.graph.closed != 1 {
		t.Errorf("Expected mixing graph closed once, got %d", rig.mixer.graph.closed)
	}
}

func TestFallbackToMicOnlyIsSticky(t *testing.T) {
	rig := newTestRig()
	rig.acquirer.pairErr = fmt.Errorf("screen capture: %w", capture.ErrPermissionDenied)
	ctx := context.Background()

	if err := rig.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start must succeed via fallback, got %v", err)
	}

	status := rig.ctrl.Status()
	if status.State != StateRecording {
		t.Errorf("Expected Recording after fallback, got %v", status.State)
	}
	if status.Mode != ModeMicOnly {
		t.Errorf("Expected sticky mic-only mode, got %v", status.Mode)
	}
	if status.Warning == "" {
		t.Error("Expected a fallback warning, got none")
	}
	if status.Error != "" {
		t.Errorf("Expected error field reserved for failures, got %q", status.Error)
	}

	if _, err := rig.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The next session must not retry system capture
	if err := rig.ctrl.Start(ctx); err != nil {
		t.Fatalf("Second start failed: %v", err)
	}
	rig.ctrl.Close()

	if rig.acquirer.systemCalls != 1 {
		t.Errorf("Expected system capture attempted once, got %d", rig.acquirer.systemCalls)
	}
	if rig.acquirer.micCalls != 2 {
		t.Errorf("Expected mic acquired for both sessions, got %d", rig.acquirer.micCalls)
	}
}

func TestMicOnlyModeSkipsMixing(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	if err := rig.ctrl.SetMode(ModeMicOnly); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}

	if err := rig.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer rig.ctrl.Close()

	if rig.acquirer.systemCalls != 0 {
		t.Errorf("Expected no system capture in mic-only mode, got %d", rig.acquirer.systemCalls)
	}
	if rig.mixer.graph != nil {
		t.Error("Expected no mixing graph in mic-only mode")
	}
}

func TestEmptyRecordingFails(t *testing.T) {
	rig := newTestRig()
	rig.recorder.stopErr = recorder.ErrNoAudioCaptured
	ctx := context.Background()

	if err := rig.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err := rig.ctrl.Stop(ctx)
	if !errors.Is(err, recorder.ErrNoAudioCaptured) {
		t.Fatalf("Expected ErrNoAudioCaptured, got %v", err)
	}

	status := rig.ctrl.Status()
	if status.State != StateError {
		t.Errorf("Expected Error state, got %v", status.State)
	}
	if status.Error == "" {
		t.Error("Expected error message retained")
	}

	// Nothing may be persisted for an empty recording
	if rig.saver.calls != 0 {
		t.Errorf("Expected no file saved, got %d saves", rig.saver.calls)
	}
	if rig.transcoder.calls != 0 {
		t.Errorf("Expected no transcode attempt, got %d", rig.transcoder.calls)
	}

	if rig.releases.count != 2 {
		t.Errorf("Expected streams released despite failure, got %d releases", rig.releases.count)
	}
}

func TestTranscriptionFailureEntersErrorState(t *testing.T) {
	rig := newTestRig()
	rig.transcriber.err = fmt.Errorf("engine crashed")
	ctx := context.Background()

	if err := rig.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := rig.ctrl.Stop(ctx); err == nil {
		t.Fatal("Expected transcription failure to propagate")
	}

	status := rig.ctrl.Status()
	if status.State != StateError {
		t.Errorf("Expected Error state, got %v", status.State)
	}

	// The recording file itself was saved before the engine ran
	if rig.saver.calls != 1 {
		t.Errorf("Expected recording saved before transcription, got %d saves", rig.saver.calls)
	}

	if rig.releases.count != 2 {
		t.Errorf("Expected streams released, got %d releases", rig.releases.count)
	}
}

func TestErrorRetainedUntilNextStart(t *testing.T) {
	rig := newTestRig()
	rig.recorder.stopErr = recorder.ErrNoAudioCaptured
	ctx := context.Background()

	if err := rig.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := rig.ctrl.Stop(ctx); err == nil {
		t.Fatal("Expected stop to fail")
	}

	rig.ctrl.Acknowledge()

	status := rig.ctrl.Status()
	if status.State != StateIdle {
		t.Errorf("Expected Idle after acknowledge, got %v", status.State)
	}
	if status.Error == "" {
		t.Error("Expected error message still visible after acknowledge")
	}

	rig.recorder.stopErr = nil
	if err := rig.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start after error failed: %v", err)
	}
	defer rig.ctrl.Close()

	if rig.ctrl.Status().Error != "" {
		t.Error("Expected error message cleared by the next start")
	}
}

func TestStopWithoutRecordingIsNoOp(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	// Never started
	if _, err := rig.ctrl.Stop(ctx); err != nil {
		t.Errorf("Expected no-op stop, got %v", err)
	}

	if err := rig.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := rig.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Second stop after a completed session
	if _, err := rig.ctrl.Stop(ctx); err != nil {
		t.Errorf("Expected second stop to be a no-op, got %v", err)
	}

	if rig.recorder.stops != 1 {
		t.Errorf("Expected recorder stopped once, got %d", rig.recorder.stops)
	}
}

func TestCloseMidRecordingReleasesEverything(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	if err := rig.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := rig.ctrl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := rig.ctrl.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}

	if rig.releases.count != 2 {
		t.Errorf("Expected all streams released on close, got %d releases", rig.releases.count)
	}
	if rig.mixer.graph.closed == 0 {
		t.Error("Expected mixing graph closed")
	}

	if rig.ctrl.Status().State != StateIdle {
		t.Errorf("Expected Idle after close, got %v", rig.ctrl.Status().State)
	}
}

func TestDurationTicks(t *testing.T) {
	rig := newTestRig()
	ctx := context.Background()

	if err := rig.ctrl.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer rig.ctrl.Close()

	deadline := time.After(2 * time.Second)
	for rig.ctrl.Status().Recording.RecordingDurationSeconds == 0 {
		select {
		case <-deadline:
			t.Fatal("Duration never advanced")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
