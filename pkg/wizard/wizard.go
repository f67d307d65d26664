// Package wizard collects an artifact spec interactively and creates it
// through a builder.
package wizard

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/jingkaihe/agentkit/pkg/artifact"
	"github.com/jingkaihe/agentkit/pkg/builder"
	"github.com/jingkaihe/agentkit/pkg/logger"
)

// ErrAborted is returned when the user cancels the wizard
var ErrAborted = errors.New("wizard aborted")

var previewStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("63")).
	Padding(0, 1)

var titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))

// Wizard walks the user through creating one artifact
type Wizard struct {
	builder    *builder.Builder
	defaults   Answers
	out        io.Writer
	accessible bool
	run        func(ctx context.Context, form *huh.Form) error
}

// Option configures a Wizard
type Option func(*Wizard)

// WithDefaults pre-fills the form
func WithDefaults(a Answers) Option {
	return func(w *Wizard) {
		w.defaults = a
	}
}

// WithOutput sets where the preview is printed
func WithOutput(out io.Writer) Option {
	return func(w *Wizard) {
		w.out = out
	}
}

// WithAccessible switches huh to its line based accessible mode
func WithAccessible(enabled bool) Option {
	return func(w *Wizard) {
		w.accessible = enabled
	}
}

// WithRunner replaces the function that runs each form
func WithRunner(run func(ctx context.Context, form *huh.Form) error) Option {
	return func(w *Wizard) {
		w.run = run
	}
}

// New returns a wizard creating artifacts with b
func New(b *builder.Builder, opts ...Option) *Wizard {
	w := &Wizard{
		builder:  b,
		defaults: Answers{Scope: string(artifact.ScopeProject)},
		out:      os.Stdout,
	}
	w.run = func(ctx context.Context, form *huh.Form) error {
		return form.WithAccessible(w.accessible).
			WithProgramOptions(tea.WithOutput(w.out)).
			RunWithContext(ctx)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func keyMap() *huh.KeyMap {
	km := huh.NewDefaultKeyMap()
	km.Quit = key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("ctrl+c/esc", "quit"),
	)
	return km
}

func (w *Wizard) runForm(ctx context.Context, form *huh.Form) error {
	err := w.run(ctx, form.WithKeyMap(keyMap()).WithTheme(huh.ThemeCharm()))
	if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, context.Canceled) {
		return ErrAborted
	}
	return err
}

// Run shows the form, previews the rendered artifact and creates it once
// confirmed
func (w *Wizard) Run(ctx context.Context) (*builder.Result, error) {
	kind := w.builder.Kind()
	answers := w.defaults

	if err := w.runForm(ctx, Form(kind, &answers)); err != nil {
		return nil, err
	}

	spec, err := answers.Spec(kind)
	if err != nil {
		return nil, err
	}
	if err := w.builder.Check(spec); err != nil {
		return nil, err
	}
	preview, err := w.builder.Preview(ctx, spec)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(w.out, titleStyle.Render(fmt.Sprintf("New %s %q (%s scope)", kind, answers.Name, answers.Scope)))
	fmt.Fprintln(w.out, previewStyle.Render(strings.TrimRight(preview, "\n")))

	if err := w.runForm(ctx, ConfirmForm(kind, &answers.Confirm)); err != nil {
		return nil, err
	}
	if !answers.Confirm {
		return nil, ErrAborted
	}

	logger.G(ctx).WithField("kind", kind).WithField("name", answers.Name).Debug("wizard confirmed")
	return w.builder.Create(ctx, spec, builder.CreateOptions{})
}
