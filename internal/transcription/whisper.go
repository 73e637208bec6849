package transcription

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// WhisperConfig configures the whisper.cpp command-line engine
type WhisperConfig struct {
	BinaryPath string
	ModelPath  string
	Language   string
	Timeout    time.Duration
}

// WhisperEngine invokes the whisper.cpp CLI as the offline transcription
// engine. The binary is separately installed and maintained; this wrapper
// only spawns it and relays its progress output.
type WhisperEngine struct {
	config WhisperConfig
}

// NewWhisperEngine creates an engine around an installed whisper.cpp binary
func NewWhisperEngine(config WhisperConfig) (*WhisperEngine, error) {
	if config.BinaryPath == "" {
		return nil, fmt.Errorf("binary path cannot be empty")
	}

	if config.ModelPath == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}

	return &WhisperEngine{config: config}, nil
}

// progress lines look like "whisper_print_progress_callback: progress =  35%"
var progressPattern = regexp.MustCompile(`progress\s*=\s*(\d+)%`)

// Transcribe runs the whisper binary against the WAV file and returns the
// transcript text from the engine's output file.
func (e *WhisperEngine) Transcribe(ctx context.Context, filePath string, progress func(Progress)) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	outPrefix := strings.TrimSuffix(filePath, filepath.Ext(filePath))

	args := []string{
		"-m", e.config.ModelPath,
		"-f", filePath,
		"-otxt",
		"-of", outPrefix,
		"--print-progress",
	}
	if e.config.Language != "" {
		args = append(args, "-l", e.config.Language)
	}

	cmd := exec.CommandContext(ctx, e.config.BinaryPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &EngineError{Err: fmt.Errorf("failed to open engine stderr: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &EngineError{Err: fmt.Errorf("failed to start engine: %w", err)}
	}

	diagnostic := relayProgress(stderr, progress)

	if err := cmd.Wait(); err != nil {
		return nil, &EngineError{
			Diagnostic: diagnostic,
			Err:        fmt.Errorf("engine exited abnormally: %w", err),
		}
	}

	transcriptPath := outPrefix + ".txt"
	text, err := os.ReadFile(transcriptPath)
	if err != nil {
		return nil, &EngineError{
			Diagnostic: diagnostic,
			Err:        fmt.Errorf("engine produced no transcript: %w", err),
		}
	}

	return &Result{
		Text:           strings.TrimSpace(string(text)),
		TranscriptPath: transcriptPath,
	}, nil
}

// relayProgress scans engine stderr, emitting a transcribing progress event
// per reported percentage, and returns the tail of the output as diagnostic
// text.
func relayProgress(r io.Reader, progress func(Progress)) string {
	const diagnosticLines = 20

	var tail []string
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := scanner.Text()

		tail = append(tail, line)
		if len(tail) > diagnosticLines {
			tail = tail[1:]
		}

		if m := progressPattern.FindStringSubmatch(line); m != nil {
			if pct, err := strconv.ParseFloat(m[1], 64); err == nil && progress != nil {
				progress(Progress{
					Status:  StatusTranscribing,
					Percent: &pct,
				})
			}
		}
	}

	return strings.Join(tail, "\n")
}
