// Package presenter writes user-facing CLI output. Diagnostics go through
// the logger; everything a user is meant to read goes through here.
package presenter

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// ColorMode selects whether output is colored
type ColorMode int

const (
	// ColorAuto lets the color package detect terminal support
	ColorAuto ColorMode = iota
	// ColorAlways forces colored output
	ColorAlways
	// ColorNever disables colored output
	ColorNever
)

// Presenter writes messages to stdout and errors to stderr
type Presenter struct {
	out   io.Writer
	err   io.Writer
	mode  ColorMode
	quiet bool
}

// New returns a Presenter on the process standard streams
func New() *Presenter {
	return NewWithOptions(os.Stdout, os.Stderr, ColorModeFromEnv())
}

// NewWithOptions returns a Presenter writing to the given streams
func NewWithOptions(out, errOut io.Writer, mode ColorMode) *Presenter {
	switch mode {
	case ColorAlways:
		color.NoColor = false
	case ColorNever:
		color.NoColor = true
	}
	return &Presenter{out: out, err: errOut, mode: mode}
}

// ColorModeFromEnv reads NO_COLOR and AGENTKIT_COLOR
func ColorModeFromEnv() ColorMode {
	if os.Getenv("NO_COLOR") != "" {
		return ColorNever
	}
	switch os.Getenv("AGENTKIT_COLOR") {
	case "always", "force":
		return ColorAlways
	case "never", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

// Error prints err to stderr, prefixed by what was being attempted.
// Errors are printed even in quiet mode.
func (p *Presenter) Error(err error, action string) {
	if err == nil {
		return
	}
	c := color.New(color.FgRed, color.Bold)
	if action != "" {
		c.Fprintf(p.err, "[ERROR] %s: %v\n", action, err)
		return
	}
	c.Fprintf(p.err, "[ERROR] %v\n", err)
}

// Success prints a confirmation line
func (p *Presenter) Success(format string, args ...any) {
	if p.quiet {
		return
	}
	color.New(color.FgGreen, color.Bold).Fprintf(p.out, "✓ %s\n", fmt.Sprintf(format, args...))
}

// Warning prints a warning line
func (p *Presenter) Warning(format string, args ...any) {
	if p.quiet {
		return
	}
	color.New(color.FgYellow, color.Bold).Fprintf(p.out, "⚠ %s\n", fmt.Sprintf(format, args...))
}

// Info prints an uncolored line
func (p *Presenter) Info(format string, args ...any) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s\n", fmt.Sprintf(format, args...))
}

// Section prints an underlined heading
func (p *Presenter) Section(title string) {
	if p.quiet {
		return
	}
	c := color.New(color.Bold)
	c.Fprintf(p.out, "%s\n", title)
	c.Fprintf(p.out, "%s\n", strings.Repeat("-", len(title)))
}

// Diff prints a unified diff, coloring added and removed lines
func (p *Presenter) Diff(diff string) {
	if p.quiet || diff == "" {
		return
	}
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	hunk := color.New(color.FgCyan)
	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			color.New(color.Bold).Fprint(p.out, line)
		case strings.HasPrefix(line, "@@"):
			hunk.Fprint(p.out, line)
		case strings.HasPrefix(line, "+"):
			added.Fprint(p.out, line)
		case strings.HasPrefix(line, "-"):
			removed.Fprint(p.out, line)
		default:
			fmt.Fprint(p.out, line)
		}
	}
	if !strings.HasSuffix(diff, "\n") {
		fmt.Fprintln(p.out)
	}
}

// Separator prints a horizontal rule
func (p *Presenter) Separator() {
	if p.quiet {
		return
	}
	color.New(color.Faint).Fprintf(p.out, "%s\n", strings.Repeat("-", 60))
}

// SetQuiet suppresses everything except errors
func (p *Presenter) SetQuiet(quiet bool) {
	p.quiet = quiet
}

// IsQuiet reports whether quiet mode is on
func (p *Presenter) IsQuiet() bool {
	return p.quiet
}

var std = New()

// Default returns the process-wide presenter
func Default() *Presenter { return std }

// Error reports err on the default presenter
func Error(err error, action string) { std.Error(err, action) }

// Success prints on the default presenter
func Success(format string, args ...any) { std.Success(format, args...) }

// Warning prints on the default presenter
func Warning(format string, args ...any) { std.Warning(format, args...) }

// Info prints on the default presenter
func Info(format string, args ...any) { std.Info(format, args...) }

// Section prints on the default presenter
func Section(title string) { std.Section(title) }

// Diff prints on the default presenter
func Diff(diff string) { std.Diff(diff) }

// Separator prints on the default presenter
func Separator() { std.Separator() }

// SetQuiet toggles quiet mode on the default presenter
func SetQuiet(quiet bool) { std.SetQuiet(quiet) }
