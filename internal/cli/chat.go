package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrxnn/meetscribe/internal/chat"
)

func newChatCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <meeting-id> [question]",
		Short: "Ask questions about a recorded meeting",
		Long: "Starts a chat grounded in the meeting's transcript. With a question " +
			"argument it answers once and exits; without one it runs an interactive " +
			"session until EOF.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := ""
			if len(args) > 1 {
				question = args[1]
			}
			return app.runChat(cmd.Context(), args[0], question)
		},
	}
}

func (a *App) runChat(ctx context.Context, meetingID, question string) error {
	_, meetings, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	if _, ok := meetings.Meeting(meetingID); !ok {
		return fmt.Errorf("unknown meeting: %s", meetingID)
	}

	client, err := chat.NewClient(chat.Config{
		Endpoint:    a.cfg.Chat.Endpoint,
		APIKey:      a.cfg.Chat.APIKeyOrEnv(),
		Model:       a.cfg.Chat.Model,
		Temperature: a.cfg.Chat.Temperature,
		Timeout:     a.cfg.Chat.GetTimeoutDuration(),
		MaxRetries:  a.cfg.Chat.MaxRetries,
	}, a.logger)
	if err != nil {
		return err
	}

	sess := chat.NewSession(meetings, client, nil, a.logger)

	if question != "" {
		reply, err := sess.Ask(ctx, meetingID, question)
		if err != nil {
			return err
		}
		fmt.Println(reply.Content)
		return nil
	}

	// Interactive loop; a failed turn keeps the session usable
	fmt.Println("Chatting about meeting", meetingID, "- empty line or Ctrl-D to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}

		reply, err := sess.Ask(ctx, meetingID, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		fmt.Println(reply.Content)
	}

	return scanner.Err()
}
