package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ashureev/chatbuddy/internal/app"
	"github.com/ashureev/chatbuddy/internal/chat"
	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/ashureev/chatbuddy/internal/identity"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const cliSessionID = "cli"

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat",
		Long: `Runs the chat service in-process and reads messages from stdin.

Commands:
  /persona [id]   list personas or switch to one (resets its history)
  /reset          start the current persona's conversation over
  /history        print the current conversation
  /status         show remote availability
  /reconnect      try to reach the remote model again
  /mood <text>    classify the mood of a message
  /quit           leave`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}
	cmd.Flags().String("user", os.Getenv("CHATBUDDY_USER"), "Anonymous user ID to resume (default: a new one)")
	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd)

	userID, _ := cmd.Flags().GetString("user")
	fresh := userID == ""
	if fresh {
		if userID, err = identity.GenerateAnonID(); err != nil {
			return err
		}
	} else if !identity.IsValidAnonID(userID) {
		return fmt.Errorf("invalid user id %q", userID)
	}

	a, err := app.New(cfg, chat.ChannelCLI, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	ctx = identity.NewContext(ctx, userID, cliSessionID)
	if err := identity.EnsureUser(ctx, a.Repository(), userID); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	a.Start(ctx)

	r := newREPL(a.Service(), userID, cmd.InOrStdin(), cmd.OutOrStdout())
	stopWatch := a.Monitor().Subscribe(r.printAvailability)
	defer stopWatch()

	if fresh {
		r.printf("%s\n", color.New(color.Faint).Sprintf("Resume this conversation later with: chatbuddy chat --user %s", userID))
	}
	return r.run(ctx)
}

// repl is the interactive loop. Output is serialized because availability
// changes are printed from the monitor goroutine.
type repl struct {
	svc       *chat.Service
	userID    string
	sessionID string
	in        *bufio.Scanner
	out       io.Writer

	mu         sync.Mutex
	lastStatus domain.AvailabilityStatus
}

func newREPL(svc *chat.Service, userID string, in io.Reader, out io.Writer) *repl {
	return &repl{
		svc:       svc,
		userID:    userID,
		sessionID: cliSessionID,
		in:        bufio.NewScanner(in),
		out:       out,

		lastStatus: domain.StatusOnline,
	}
}

func (r *repl) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, format, args...)
}

func (r *repl) run(ctx context.Context) error {
	p := r.svc.CurrentPersona(ctx, r.userID)
	r.printf("Chatting with %s. Type /help for commands.\n", personaColor(p.ID).Sprint(p.Name))
	r.printReply(p.ID, p.Greeting, false)

	for {
		r.printf("%s ", color.New(color.Bold).Sprint("you>"))
		if !r.in.Scan() {
			r.printf("\n")
			return r.in.Err()
		}
		quit, err := r.handle(ctx, r.in.Text())
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// handle runs one input line and reports whether the loop should stop.
func (r *repl) handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.send(ctx, line)
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		r.printf("Take care! 💛\n")
		return true, nil
	case "/help":
		r.printf("/persona [id]  /reset  /history  /status  /reconnect  /mood <text>  /quit\n")
	case "/persona":
		return false, r.persona(ctx, arg)
	case "/reset":
		id, err := r.svc.Reset(ctx, r.userID, r.sessionID)
		if err != nil {
			return false, err
		}
		p, _ := r.lookup(id)
		r.printNotice("Conversation cleared.")
		r.printReply(p.ID, p.Greeting, false)
	case "/history":
		return false, r.history(ctx)
	case "/status":
		r.printStatus(r.svc.Status())
	case "/reconnect":
		res := r.svc.Reconnect(ctx, r.userID, r.sessionID)
		for _, n := range res.Notices {
			r.printNotice(n.Text)
		}
	case "/mood":
		if arg == "" {
			r.printNotice("usage: /mood <text>")
			return false, nil
		}
		mood := r.svc.Sentiment(ctx, arg)
		r.printf("mood: %s (%s)\n", mood, mood.Label())
	default:
		r.printNotice(fmt.Sprintf("unknown command %s, try /help", name))
	}
	return false, nil
}

func (r *repl) send(ctx context.Context, text string) error {
	res, err := r.svc.Send(ctx, r.userID, r.sessionID, text)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			return nil
		}
		return err
	}
	r.printReply(res.Persona, res.Text, res.UsingFallback)
	for _, n := range res.Notices {
		r.printNotice(n.Text)
	}
	return nil
}

func (r *repl) persona(ctx context.Context, arg string) error {
	if arg == "" {
		current := r.svc.CurrentPersona(ctx, r.userID).ID
		for _, p := range r.svc.Personas() {
			marker := " "
			if p.ID == current {
				marker = "*"
			}
			r.printf("%s %s  %s\n", marker, personaColor(p.ID).Sprint(p.ID), p.Description)
		}
		return nil
	}

	p, applied, err := r.svc.SelectPersona(ctx, r.userID, r.sessionID, domain.PersonaID(arg))
	if err != nil {
		return err
	}
	if !applied {
		r.printNotice(fmt.Sprintf("No persona called %q, using %s.", arg, p.Name))
	}
	r.printReply(p.ID, p.Greeting, false)
	return nil
}

func (r *repl) history(ctx context.Context) error {
	id, turns, err := r.svc.History(ctx, r.userID)
	if err != nil {
		return err
	}
	// The first pair is the persona instruction and greeting.
	for i, t := range turns {
		if i == 0 {
			continue
		}
		if t.Role == domain.RoleUser {
			r.printf("%s %s\n", color.New(color.Bold).Sprint("you>"), t.Text)
			continue
		}
		r.printReply(id, t.Text, false)
	}
	return nil
}

func (r *repl) lookup(id domain.PersonaID) (domain.Persona, bool) {
	for _, p := range r.svc.Personas() {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Persona{ID: id}, false
}

func (r *repl) printReply(id domain.PersonaID, text string, fallback bool) {
	label := string(id)
	if fallback {
		label += " (backup)"
	}
	r.printf("%s %s\n", personaColor(id).Sprintf("%s>", label), text)
}

func (r *repl) printNotice(text string) {
	r.printf("%s\n", color.New(color.FgYellow, color.Italic).Sprint("· "+text))
}

func (r *repl) printStatus(s chat.Status) {
	line := fmt.Sprintf("remote: %s", s.Status)
	if s.Failures > 0 {
		line += fmt.Sprintf(", %d consecutive failures", s.Failures)
	}
	if !s.Backoff.Available {
		line += fmt.Sprintf(", next remote attempt after %s", s.Backoff.RetryAt.Format("15:04:05"))
	}
	r.printNotice(line)
	if s.Show && s.Text != "" {
		r.printNotice(s.Text)
	}
}

func (r *repl) printAvailability(state domain.AvailabilityState) {
	r.mu.Lock()
	changed := state.Status != r.lastStatus
	r.lastStatus = state.Status
	r.mu.Unlock()
	if !changed {
		return
	}
	switch state.Status {
	case domain.StatusOnline:
		r.printNotice("remote model is online")
	case domain.StatusOffline:
		r.printNotice("remote model is offline, using backup replies")
	}
}

func personaColor(id domain.PersonaID) *color.Color {
	switch id {
	case domain.PersonaEmpatheticListener:
		return color.New(color.FgHiBlue, color.Bold)
	case domain.PersonaMotivationalCoach:
		return color.New(color.FgHiYellow, color.Bold)
	default:
		return color.New(color.FgHiMagenta, color.Bold)
	}
}
