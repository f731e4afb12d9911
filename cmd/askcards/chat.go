package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalambet/askcards/internal/conversation"
	"github.com/kalambet/askcards/internal/verified"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation with the answering service.

Plain lines are questions. Commands:
` + chatHelp,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runChat(ctx, a, os.Stdin, cmd.OutOrStdout())
	},
}

// runChat runs the REPL unless a server already owns the collections.
func runChat(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	if err := ensureNotServing(ctx, a.cfg); err != nil {
		return err
	}
	return newSession(a, out).run(ctx, in)
}

const chatHelp = `  /cards         show the cards of the latest answer
  /bookmark N    bookmark (or un-bookmark) card N of the latest answer
  /bookmarks     list bookmarks grouped by question
  /save TITLE    save this conversation
  /history       show the whole conversation
  /help          show this help
  /quit          leave`

type session struct {
	app *app
	out io.Writer
}

func newSession(a *app, out io.Writer) *session {
	return &session{app: a, out: out}
}

func (s *session) run(ctx context.Context, in io.Reader) error {
	printMessage(s.out, s.app.log.Last(), s.app.bookmarks, s.app.cfg.Chat.ShowSites)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, colorize(colorBold, "› "))
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		if s.handleLine(ctx, scanner.Text()) {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handleLine executes one REPL line and reports whether the session should end.
func (s *session) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		s.ask(ctx, line)
		return false
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(s.out, chatHelp)
	case "/cards":
		s.showCards()
	case "/bookmark":
		s.toggleBookmark(arg)
	case "/bookmarks":
		printGroups(s.out, s.app.bookmarks.Groups())
	case "/save":
		s.save(arg)
	case "/history":
		for _, m := range s.app.log.Messages() {
			printMessage(s.out, m, s.app.bookmarks, s.app.cfg.Chat.ShowSites)
		}
	default:
		printWarning("unknown command %s (try /help)", name)
	}
	return false
}

func (s *session) ask(ctx context.Context, question string) {
	s.app.chat.SetInput(question)
	reply, ok := s.app.chat.SubmitInput(ctx)
	if !ok {
		printWarning("still waiting for the previous answer")
		return
	}
	printMessage(s.out, reply, s.app.bookmarks, s.app.cfg.Chat.ShowSites)
}

// latestAnswer returns the most recent assistant message.
func (s *session) latestAnswer() (conversation.Message, bool) {
	msgs := s.app.log.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == conversation.RoleAssistant {
			return msgs[i], true
		}
	}
	return conversation.Message{}, false
}

func (s *session) showCards() {
	m, ok := s.latestAnswer()
	if !ok || len(m.Cards) == 0 {
		fmt.Fprintln(s.out, "The latest answer has no cards.")
		return
	}
	printCards(s.out, m.Cards, s.app.bookmarks, s.app.cfg.Chat.ShowSites)
}

func (s *session) toggleBookmark(arg string) {
	m, _ := s.latestAnswer()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(m.Cards) {
		printWarning("usage: /bookmark N, where N is a card number from /cards")
		return
	}

	c := m.Cards[n-1]
	added, err := s.app.bookmarks.Toggle(c)
	if err != nil {
		printError("bookmark changed but not saved: %v", err)
		return
	}
	if added {
		printSuccess("Bookmarked: %s", c.Summary)
	} else {
		printSuccess("Removed bookmark: %s", c.Summary)
	}
}

func (s *session) save(title string) {
	c, err := s.app.conversations.Save(title, s.app.log)
	if errors.Is(err, verified.ErrEmptyTitle) {
		printWarning("usage: /save TITLE")
		return
	}
	if err != nil {
		printError("conversation kept but not saved to disk: %v", err)
		return
	}
	printSuccess("Saved %q (%s)", c.Title, c.ID)
}
