package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mrxnn/meetscribe/internal/fsstore"
	"github.com/mrxnn/meetscribe/internal/store"
)

func newMeetingsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "meetings",
		Short: "List recorded meetings, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runMeetings(cmd.Context())
		},
	}
}

func (a *App) runMeetings(ctx context.Context) error {
	_, meetings, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	list := meetings.Meetings()
	if len(list) == 0 {
		fmt.Println("No meetings recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDATE\tMESSAGES\tRECORDING\tTITLE")
	for _, meeting := range list {
		date := ""
		if !meeting.Date.IsZero() {
			date = meeting.Date.Format("2006-01-02 15:04")
		}

		recording := "yes"
		if !meeting.HasRecording {
			recording = "missing"
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			meeting.ID, date, meeting.MessageCount, recording, meeting.Title)
	}

	return w.Flush()
}

// openStore wires the filesystem layer and a loaded meeting store
func (a *App) openStore(ctx context.Context) (*fsstore.FS, *store.Store, error) {
	fs, err := fsstore.New(a.cfg.Storage.DataDir, a.logger)
	if err != nil {
		return nil, nil, err
	}

	meetings := store.New(fs, fs, fs, nil, a.logger)
	if _, err := meetings.Load(ctx); err != nil {
		return nil, nil, err
	}

	return fs, meetings, nil
}
