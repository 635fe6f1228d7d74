// Package cli runs the interactive terminal chat.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/peterh/liner"

	"github.com/deepgram/glmchat/internal/domain/chat/models"
	"github.com/deepgram/glmchat/internal/logger"
	"github.com/deepgram/glmchat/internal/ui"
)

const (
	stopCommand  = "stop"
	clearCommand = "clear"

	// Apology is printed instead of a reply when generation fails.
	Apology = "An error occurred while generating text. The reply may have touched a filtered word."
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true)

	modelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	welcomeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))
)

// DefaultSampling is near-greedy decoding.
var DefaultSampling = models.SamplingParameters{TopP: 1, Temperature: 0.01}

// LineReader reads one line of user input. *liner.State satisfies it.
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// NewLineReader returns a terminal reader with line editing and input history.
func NewLineReader() LineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return line
}

// Options configures a Session.
type Options struct {
	ModelName string
	Sampling  models.SamplingParameters
	// ClearScreen wipes the terminal on "clear".
	ClearScreen func(w io.Writer)
}

// Session is one interactive conversation.
type Session struct {
	replier ui.Replier
	in      LineReader
	out     io.Writer
	opts    Options
	history []models.ConversationTurn
}

func NewSession(replier ui.Replier, in LineReader, out io.Writer, opts Options) *Session {
	if opts.ModelName == "" {
		opts.ModelName = "ChatGLM3-6B"
	}
	if opts.Sampling == (models.SamplingParameters{}) {
		opts.Sampling = DefaultSampling
	}
	if opts.ClearScreen == nil {
		opts.ClearScreen = func(w io.Writer) { termenv.NewOutput(w).ClearScreen() }
	}
	return &Session{replier: replier, in: in, out: out, opts: opts}
}

func (s *Session) welcome() string {
	return fmt.Sprintf("Welcome to the %s model. Type to chat, %q clears the history, %q exits.", s.opts.ModelName, clearCommand, stopCommand)
}

// Run reads queries until "stop", end of input or ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, welcomeStyle.Render(s.welcome()))

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		input, err := s.in.Prompt("\n" + promptStyle.Render("User: "))
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(s.out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		query := strings.TrimSpace(input)
		switch query {
		case "":
			continue
		case stopCommand:
			return nil
		case clearCommand:
			s.clear(ctx)
			continue
		}

		s.in.AppendHistory(input)
		s.ask(ctx, input)
	}
}

func (s *Session) clear(ctx context.Context) {
	if _, err := s.replier.ClearHistory(ctx); err != nil {
		logger.For(logger.CLI).Warn().Err(err).Msg("Failed to clear history")
	}
	s.history = nil
	s.opts.ClearScreen(s.out)
	fmt.Fprintln(s.out, welcomeStyle.Render(s.welcome()))
}

// ask streams the reply to query, printing only what each chunk adds. A
// failed turn is dropped from the local history.
func (s *Session) ask(ctx context.Context, query string) {
	fmt.Fprint(s.out, "\n"+modelStyle.Render(s.opts.ModelName+": "))

	turns := append(models.CloneTurns(s.history), models.NewTurn(query))
	printed := ""
	for chunk, err := range s.replier.StreamChat(ctx, turns, s.opts.Sampling) {
		if err != nil {
			logger.For(logger.CLI).Error().Err(err).Msg("Generation failed")
			fmt.Fprintln(s.out)
			fmt.Fprintln(s.out, errorStyle.Render(Apology))
			return
		}
		fmt.Fprint(s.out, newSuffix(printed, chunk))
		printed = chunk
	}
	fmt.Fprintln(s.out)

	turns[len(turns)-1] = turns[len(turns)-1].WithModel(printed)
	s.history = turns
}

// newSuffix returns the part of current not yet shown. A chunk that rewrites
// earlier text is printed on a fresh line in full.
func newSuffix(printed, current string) string {
	if strings.HasPrefix(current, printed) {
		return current[len(printed):]
	}
	return "\n" + current
}
