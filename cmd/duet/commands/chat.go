// ABOUTME: Chat command talks to the demon and the angel from the terminal
// ABOUTME: Supports one-shot messages, an interactive loop, and file attachments
package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/harper/duet/internal/agent"
	"github.com/harper/duet/internal/app"
	"github.com/harper/duet/internal/models"
	"github.com/spf13/cobra"
)

var (
	chatConversation string
	chatMode         string
	chatAttach       []string
)

// NewChatCmd creates the chat command
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the demon and the angel",
		Long: `Send a message and print the replies.

With a message argument the command answers once and exits. Without one it
opens an interactive session; type /mode <mode> to switch who answers and
/quit to leave. While the session is open the personas may speak up on
their own when you go quiet.

Modes: demon, angel, demon+angel, angel+demon, group.`,
		Example: `  # Ask the demon
  duet chat "what should I cook tonight?"

  # Let the director decide who talks
  duet chat --mode group "I got the job!"

  # Show them a picture
  duet chat --attach ./cat.png "look at him"

  # Interactive session
  duet chat --conversation kitchen`,
		RunE: runChat,
	}

	cmd.Flags().StringVarP(&chatConversation, "conversation", "c", "cli", "Conversation ID")
	cmd.Flags().StringVarP(&chatMode, "mode", "m", string(models.ModeDemon), "Who answers: demon, angel, demon+angel, angel+demon, group")
	cmd.Flags().StringArrayVarP(&chatAttach, "attach", "a", nil, "Attach a file (repeatable)")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	mode, err := models.ParseMode(chatMode)
	if err != nil {
		return err
	}
	if strings.TrimSpace(chatConversation) == "" {
		return errors.New("--conversation cannot be empty")
	}
	attachments, err := readAttachments(chatAttach)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	out := &syncWriter{w: cmd.OutOrStdout()}
	engine, err := openEngine(cfg, logger, app.Overrides{Outbox: printOutbox(out, chatConversation)})
	if err != nil {
		return fmt.Errorf("failed to start duet: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	oneShot := len(args) > 0 || len(attachments) > 0
	if !oneShot {
		if err := engine.Start(ctx); err != nil {
			_ = engine.Close(context.Background())
			return err
		}
	}

	var runErr error
	if oneShot {
		runErr = sendTurn(ctx, engine.Orchestrator, out, strings.Join(args, " "), attachments, mode)
	} else {
		runErr = chatLoop(ctx, engine.Orchestrator, cmd.InOrStdin(), out, mode)
	}

	if err := engine.Close(context.Background()); err != nil {
		logger.Sugar().Warnw("shutdown incomplete", "error", err)
	}
	return runErr
}

// chatLoop reads lines until EOF, /quit, or a restart request
func chatLoop(ctx context.Context, orch *agent.Orchestrator, in io.Reader, out *syncWriter, mode models.Mode) error {
	if !quiet {
		out.Printf("Talking to %s in %q. /mode <mode> switches, /quit leaves.\n", mode, chatConversation)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
				continue
			case line == "/quit" || line == "/exit":
				return nil
			case strings.HasPrefix(line, "/mode"):
				next, err := models.ParseMode(strings.TrimSpace(strings.TrimPrefix(line, "/mode")))
				if err != nil {
					out.Printf("%v\n", err)
					continue
				}
				mode = next
				out.Printf("Mode: %s\n", mode)
				continue
			}

			if err := sendTurn(ctx, orch, out, line, nil, mode); err != nil {
				if errors.Is(err, ErrRestartRequested) {
					return err
				}
				out.Printf("Error: %v\n", err)
			}
		}
	}
}

// sendTurn runs one turn and prints the replies
func sendTurn(ctx context.Context, orch *agent.Orchestrator, out *syncWriter, text string, attachments []models.Attachment, mode models.Mode) error {
	result, err := orch.ProcessTurn(ctx, chatConversation, text, attachments, mode)
	if err != nil {
		return err
	}

	if wantJSON() {
		out.mu.Lock()
		err = printJSON(out.w, result)
		out.mu.Unlock()
		if err != nil {
			return err
		}
	} else {
		printReplies(out, result)
	}

	if result.ShouldRestart {
		return ErrRestartRequested
	}
	return nil
}

func printReplies(out *syncWriter, result *agent.TurnResult) {
	if len(result.Replies) == 0 {
		for _, msg := range result.Messages {
			out.Printf("%s\n", msg)
		}
		return
	}
	for _, r := range result.Replies {
		out.Printf("%s: %s\n", speakerLabel(r.Speaker), r.Content)
	}
}

func speakerLabel(p models.Persona) string {
	switch p {
	case models.Demon:
		return "Demon"
	case models.Angel:
		return "Angel"
	}
	return string(p)
}

// printOutbox prints unsolicited replies for the conversation being shown
func printOutbox(out *syncWriter, shown string) agent.Outbox {
	return func(_ context.Context, conversationID string, replies []models.Reply) {
		for _, r := range replies {
			if conversationID == shown {
				out.Printf("%s: %s\n", speakerLabel(r.Speaker), r.Content)
			} else {
				out.Printf("[%s] %s: %s\n", conversationID, speakerLabel(r.Speaker), r.Content)
			}
		}
	}
}

// readAttachments loads files and guesses their MIME type
func readAttachments(paths []string) ([]models.Attachment, error) {
	out := make([]models.Attachment, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment: %w", err)
		}
		mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(p)))
		if mimeType == "" {
			mimeType = http.DetectContentType(data)
		}
		out = append(out, models.Attachment{Name: filepath.Base(p), MIMEType: mimeType, Data: data})
	}
	return out, nil
}

// syncWriter serialises turn output with idle-chat output
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Printf(f string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, f, args...)
}
