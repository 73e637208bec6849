package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mrxnn/meetscribe/internal/config"
)

const (
	appName    = "meetscribe"
	appVersion = "1.0.0"
)

// App carries the configuration and logger shared by all commands
type App struct {
	configPath string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the meetscribe command tree
func NewRootCommand() *cobra.Command {
	app := &App{}

	root := &cobra.Command{
		Use:           appName,
		Short:         "Record meetings, transcribe them offline, and chat about them",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.initialize()
		},
	}

	root.PersistentFlags().StringVar(&app.configPath, "config", "", "path to configuration file")

	root.AddCommand(
		newRecordCommand(app),
		newMeetingsCommand(app),
		newChatCommand(app),
		newDoctorCommand(app),
	)

	return root
}

// initialize loads the configuration and builds the logger. Without an
// explicit --config it uses <data_dir>/config.yaml when present, otherwise
// built-in defaults.
func (a *App) initialize() error {
	cfg := config.Default()

	path := a.configPath
	if path == "" {
		candidate := filepath.Join(cfg.Storage.DataDir, "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	a.cfg = cfg
	a.logger = initLogger(cfg.Logging)

	return nil
}

// Execute runs the CLI and reports any error on stderr
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
