package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/strand-ai/strand/internal/agent"
	"github.com/strand-ai/strand/internal/config"
	"github.com/strand-ai/strand/internal/log"
	"github.com/strand-ai/strand/internal/session"
	"github.com/strand-ai/strand/internal/stream"
	"github.com/strand-ai/strand/internal/turn"
)

// sessionTitleLimit caps auto-generated titles taken from the first
// prompt.
const sessionTitleLimit = 48

var (
	chatAgentID    string
	chatNewSession bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with an agent in the terminal",
	Long: `Start an interactive session against the turn engine. The previous
session resumes unless --new is given; /help lists the in-session
commands.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatAgentID, "agent", "", "agent id from the roster (default: configured default agent)")
	chatCmd.Flags().BoolVar(&chatNewSession, "new", false, "start a fresh session instead of resuming")
	rootCmd.AddCommand(chatCmd)
}

// turnRunner runs one turn. *turn.Engine satisfies it.
type turnRunner interface {
	Run(ctx context.Context, input turn.Input) (turn.Result, error)
}

// chatStore is the slice of the session store the REPL needs.
// *session.Store satisfies it.
type chatStore interface {
	Create(ctx context.Context, params session.CreateParams) (session.Session, error)
	Get(ctx context.Context, id uuid.UUID) (session.Session, error)
	List(ctx context.Context, limit, offset int32) ([]session.Session, error)
	Rename(ctx context.Context, id uuid.UUID, title string) error
	History(ctx context.Context, sessionID uuid.UUID, limit int32) ([]agent.Message, error)
	RecentNotes(ctx context.Context, sessionID uuid.UUID, limit int32) ([]session.Note, error)
	AddNote(ctx context.Context, sessionID uuid.UUID, content string) (session.Note, error)
	AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []session.Message) error
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	spec := a.Config.DefaultAgentSpec()
	if chatAgentID != "" {
		var ok bool
		spec, ok = a.Config.AgentByID(chatAgentID)
		if !ok {
			return fmt.Errorf("agent %q is not configured", chatAgentID)
		}
	}

	sessionID, fresh, err := currentSession(ctx, a.Sessions, spec.ID, chatNewSession, a.Logger)
	if err != nil {
		return err
	}

	repl := &chatREPL{
		engine:    a.Engine,
		sessions:  a.Sessions,
		cfg:       a.Config,
		spec:      spec,
		sessionID: sessionID,
		titled:    !fresh,
		renderer:  newAnswerRenderer(),
		in:        os.Stdin,
		out:       os.Stdout,
		logger:    a.Logger,
	}
	return repl.run(ctx)
}

// currentSession resumes the session recorded in the state file, or
// creates a new one when there is none, it no longer exists, or the
// user asked for a fresh start. fresh reports whether the session was
// just created and still needs a title.
func currentSession(ctx context.Context, store chatStore, agentKey string, startNew bool, logger log.Logger) (uuid.UUID, bool, error) {
	baseDir, err := session.StateBaseDir()
	if err != nil {
		return uuid.Nil, false, err
	}

	if !startNew {
		current, err := session.LoadCurrentSessionID(baseDir)
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("load session state: %w", err)
		}
		if current != nil {
			_, err := store.Get(ctx, *current)
			if err == nil {
				return *current, false, nil
			}
			if !errors.Is(err, session.ErrNotFound) {
				return uuid.Nil, false, fmt.Errorf("validate current session: %w", err)
			}
		}
	}

	sess, err := store.Create(ctx, session.CreateParams{AgentKey: agentKey})
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("create session: %w", err)
	}
	if err := session.SaveCurrentSessionID(baseDir, sess.ID); err != nil {
		logger.Warn("save session state", "error", err)
	}
	return sess.ID, true, nil
}

// chatREPL is the interactive loop. Reader and writer are fields so
// tests can script input and inspect output.
type chatREPL struct {
	engine    turnRunner
	sessions  chatStore
	cfg       *config.Config
	spec      config.AgentSpec
	sessionID uuid.UUID

	// titled is false until the session has a name; the first prompt
	// becomes the title.
	titled bool

	renderer *answerRenderer
	in       io.Reader
	out      io.Writer
	logger   log.Logger
}

func (r *chatREPL) run(ctx context.Context) error {
	fmt.Fprintf(r.out, "strand %s | agent %s | session %s\n", Version, r.spec.ID, shortID(r.sessionID))
	fmt.Fprintln(r.out, "Type /help for commands, Ctrl+D to leave.")
	fmt.Fprintln(r.out)

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out, "\nbye")
			break
		}
		if ctx.Err() != nil {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if r.handleCommand(ctx, input) {
				break
			}
			continue
		}

		if err := r.runTurn(ctx, input); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			fmt.Fprintf(r.out, "error: %v\n\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// handleCommand dispatches a slash command and reports whether the
// REPL should exit.
func (r *chatREPL) handleCommand(ctx context.Context, input string) bool {
	parts := strings.Fields(input)

	switch parts[0] {
	case "/help":
		fmt.Fprintln(r.out, "Commands:")
		fmt.Fprintln(r.out, "  /help              show this help")
		fmt.Fprintln(r.out, "  /new               start a fresh session")
		fmt.Fprintln(r.out, "  /sessions          list recent sessions")
		fmt.Fprintln(r.out, "  /note <text>       pin a note onto this session")
		fmt.Fprintln(r.out, "  /notes             show pinned notes")
		fmt.Fprintln(r.out, "  /exit, /quit       leave")
		fmt.Fprintln(r.out)

	case "/new":
		sess, err := r.sessions.Create(ctx, session.CreateParams{AgentKey: r.spec.ID})
		if err != nil {
			fmt.Fprintf(r.out, "error: create session: %v\n\n", err)
			return false
		}
		r.sessionID = sess.ID
		r.titled = false
		if baseDir, err := session.StateBaseDir(); err == nil {
			if err := session.SaveCurrentSessionID(baseDir, sess.ID); err != nil {
				r.logger.Warn("save session state", "error", err)
			}
		}
		fmt.Fprintf(r.out, "new session %s\n\n", shortID(sess.ID))

	case "/sessions":
		sessions, err := r.sessions.List(ctx, 20, 0)
		if err != nil {
			fmt.Fprintf(r.out, "error: list sessions: %v\n\n", err)
			return false
		}
		if len(sessions) == 0 {
			fmt.Fprintln(r.out, "no sessions yet")
			fmt.Fprintln(r.out)
			return false
		}
		for _, sess := range sessions {
			marker := " "
			if sess.ID == r.sessionID {
				marker = "*"
			}
			fmt.Fprintf(r.out, "%s %s  %-40s %s\n", marker, shortID(sess.ID), titleOrUntitled(sess.Title), formatRelativeTime(sess.UpdatedAt))
		}
		fmt.Fprintln(r.out)

	case "/note":
		content := strings.TrimSpace(strings.TrimPrefix(input, "/note"))
		if content == "" {
			fmt.Fprintln(r.out, "usage: /note <text>")
			fmt.Fprintln(r.out)
			return false
		}
		if _, err := r.sessions.AddNote(ctx, r.sessionID, content); err != nil {
			fmt.Fprintf(r.out, "error: add note: %v\n\n", err)
			return false
		}
		fmt.Fprintln(r.out, "noted")
		fmt.Fprintln(r.out)

	case "/notes":
		notes, err := r.sessions.RecentNotes(ctx, r.sessionID, 20)
		if err != nil {
			fmt.Fprintf(r.out, "error: list notes: %v\n\n", err)
			return false
		}
		if len(notes) == 0 {
			fmt.Fprintln(r.out, "no notes on this session")
			fmt.Fprintln(r.out)
			return false
		}
		for _, n := range notes {
			fmt.Fprintf(r.out, "  %d. %s\n", n.ID, n.Content)
		}
		fmt.Fprintln(r.out)

	case "/exit", "/quit":
		fmt.Fprintln(r.out, "bye")
		return true

	default:
		fmt.Fprintf(r.out, "unknown command %s (try /help)\n\n", parts[0])
	}

	return false
}

// runTurn sends one prompt through the engine, printing tool activity
// as it happens and the rendered answer at the end.
func (r *chatREPL) runTurn(ctx context.Context, prompt string) error {
	history, err := r.sessions.History(ctx, r.sessionID, r.cfg.MaxHistoryMessages)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	var notes []string
	if recent, err := r.sessions.RecentNotes(ctx, r.sessionID, 10); err != nil {
		r.logger.Warn("load notes", "error", err, "session_id", r.sessionID)
	} else {
		notes = make([]string, len(recent))
		for i, n := range recent {
			notes[i] = n.Content
		}
	}

	seenTools := 0
	result, err := r.engine.Run(ctx, turn.Input{
		Prompt:       prompt,
		Notes:        notes,
		SessionID:    r.sessionID,
		Agent:        agent.FromSpec(r.spec, r.cfg),
		History:      history,
		StreamEvents: true,
		OnTools: func(tools []stream.ToolRef) {
			// The list only grows; print what is new since last time.
			for _, t := range tools[seenTools:] {
				fmt.Fprintf(r.out, "  · %s\n", t.Name)
			}
			seenTools = len(tools)
		},
	})
	if err != nil {
		if errors.Is(err, turn.ErrRateLimited) {
			return errors.New("rate limited, give it a moment")
		}
		return err
	}

	transcript := []session.Message{
		{Role: agent.RoleUser, Content: prompt},
		{Role: agent.RoleModel, Content: result.Response},
	}
	if err := r.sessions.AppendMessages(ctx, r.sessionID, transcript); err != nil {
		r.logger.Warn("append transcript", "error", err, "session_id", r.sessionID)
	}

	if !r.titled {
		if err := r.sessions.Rename(ctx, r.sessionID, truncateTitle(prompt)); err != nil {
			r.logger.Warn("title session", "error", err, "session_id", r.sessionID)
		}
		r.titled = true
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.renderer.Render(result.Response))
	if result.UsedFallback {
		fmt.Fprintln(r.out, "(answered without live agent events)")
	}
	fmt.Fprintln(r.out)
	return nil
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func titleOrUntitled(title string) string {
	if title == "" {
		return "(untitled)"
	}
	return title
}

// truncateTitle derives a session title from the first prompt, cutting
// on a rune boundary so multibyte text is never split.
func truncateTitle(prompt string) string {
	title := strings.Join(strings.Fields(prompt), " ")
	runes := []rune(title)
	if len(runes) <= sessionTitleLimit {
		return title
	}
	return string(runes[:sessionTitleLimit])
}
