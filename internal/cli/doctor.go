package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
)

func newDoctorCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that external dependencies are installed and configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runDoctor()
		},
	}
}

type check struct {
	name string
	run  func() error
}

func (a *App) runDoctor() error {
	checks := []check{
		{"ffmpeg", func() error {
			_, err := exec.LookPath("ffmpeg")
			return err
		}},
		{"ffprobe", func() error {
			_, err := exec.LookPath("ffprobe")
			return err
		}},
		{"whisper engine", func() error {
			if _, err := exec.LookPath(a.cfg.Transcription.EnginePath); err == nil {
				return nil
			}
			_, err := os.Stat(a.cfg.Transcription.EnginePath)
			return err
		}},
		{"whisper model", func() error {
			_, err := os.Stat(a.cfg.Transcription.ModelPath)
			return err
		}},
		{"data directory", func() error {
			if err := os.MkdirAll(a.cfg.Storage.DataDir, 0o755); err != nil {
				return err
			}
			probe := filepath.Join(a.cfg.Storage.DataDir, ".doctor")
			if err := os.WriteFile(probe, nil, 0o644); err != nil {
				return err
			}
			return os.Remove(probe)
		}},
		{"chat API key", func() error {
			if a.cfg.Chat.APIKeyOrEnv() == "" {
				return fmt.Errorf("not set (config chat.api_key or MEETSCRIBE_API_KEY)")
			}
			return nil
		}},
	}

	failed := 0
	for _, c := range checks {
		if err := c.run(); err != nil {
			failed++
			fmt.Printf("FAIL  %-16s %v\n", c.name, err)
			continue
		}
		fmt.Printf("ok    %s\n", c.name)
	}

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}

	fmt.Println("All checks passed.")
	return nil
}
