package transcription

import (
	"strings"
	"testing"
)

func TestNewWhisperEngineValidation(t *testing.T) {
	if _, err := NewWhisperEngine(WhisperConfig{ModelPath: "m.bin"}); err == nil {
		t.Error("Expected error for empty binary path")
	}

	if _, err := NewWhisperEngine(WhisperConfig{BinaryPath: "whisper-cli"}); err == nil {
		t.Error("Expected error for empty model path")
	}

	if _, err := NewWhisperEngine(WhisperConfig{BinaryPath: "whisper-cli", ModelPath: "m.bin"}); err != nil {
		t.Errorf("Expected valid config accepted, got %v", err)
	}
}

func TestRelayProgressParsesPercentages(t *testing.T) {
	output := strings.Join([]string{
		"whisper_init_from_file_with_params_no_state: loading model",
		"whisper_print_progress_callback: progress =  35%",
		"some unrelated line",
		"whisper_print_progress_callback: progress = 100%",
	}, "\n")

	var percents []float64
	diagnostic := relayProgress(strings.NewReader(output), func(p Progress) {
		if p.Status != StatusTranscribing {
			t.Errorf("Expected transcribing status, got %s", p.Status)
		}
		if p.Percent != nil {
			percents = append(percents, *p.Percent)
		}
	})

	if len(percents) != 2 || percents[0] != 35 || percents[1] != 100 {
		t.Errorf("Expected progress [35 100], got %v", percents)
	}

	if !strings.Contains(diagnostic, "loading model") {
		t.Errorf("Expected diagnostic tail to keep engine output, got %q", diagnostic)
	}
}

func TestRelayProgressKeepsBoundedTail(t *testing.T) {
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, "noise line")
	}
	lines = append(lines, "final error: model corrupt")

	diagnostic := relayProgress(strings.NewReader(strings.Join(lines, "\n")), nil)

	if !strings.Contains(diagnostic, "final error: model corrupt") {
		t.Error("Expected last line kept in diagnostic tail")
	}
	if got := len(strings.Split(diagnostic, "\n")); got > 20 {
		t.Errorf("Expected diagnostic capped at 20 lines, got %d", got)
	}
}
