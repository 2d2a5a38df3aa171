// Package ui prints styled status lines and reads user input for the
// DevScript commands.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	ruleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Console writes user-facing output and reads prompts.
type Console struct {
	out    io.Writer
	errOut io.Writer
	in     *bufio.Reader

	// inFd is the terminal file descriptor for hidden input, or -1.
	inFd int
}

// New creates a console over the given streams. Errors go to out until
// WithErr sets a separate stream. Hidden input is only used when in is a
// terminal *os.File.
func New(in io.Reader, out io.Writer) *Console {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Console{out: out, errOut: out, in: bufio.NewReader(in), inFd: fd}
}

// Stdio returns a console on the process's standard streams.
func Stdio() *Console {
	return New(os.Stdin, os.Stdout).WithErr(os.Stderr)
}

// WithErr sends error output to w and returns the console.
func (c *Console) WithErr(w io.Writer) *Console {
	c.errOut = w
	return c
}

// Out returns the output writer.
func (c *Console) Out() io.Writer {
	return c.out
}

// ErrOut returns the error writer.
func (c *Console) ErrOut() io.Writer {
	return c.errOut
}

// Header prints a bold title followed by a rule.
func (c *Console) Header(title string) {
	_, _ = fmt.Fprintln(c.out, headerStyle.Render(title))
	c.Rule(len(title))
}

// Rule prints a horizontal line of width n.
func (c *Console) Rule(n int) {
	_, _ = fmt.Fprintln(c.out, ruleStyle.Render(strings.Repeat("-", n)))
}

// Success prints a confirmation.
func (c *Console) Success(format string, args ...interface{}) {
	_, _ = fmt.Fprintln(c.out, successStyle.Render("✅ "+fmt.Sprintf(format, args...)))
}

// Warn prints a warning.
func (c *Console) Warn(format string, args ...interface{}) {
	_, _ = fmt.Fprintln(c.out, warnStyle.Render("⚠️  "+fmt.Sprintf(format, args...)))
}

// Error prints an error message on the error stream.
func (c *Console) Error(format string, args ...interface{}) {
	_, _ = fmt.Fprintln(c.errOut, errorStyle.Render("Error: "+fmt.Sprintf(format, args...)))
}

// ProgramStderr prints a child program's captured stderr under an
// "Error:" label on the error stream.
func (c *Console) ProgramStderr(text string) {
	_, _ = fmt.Fprintln(c.errOut, errorStyle.Render("Error:"))
	_, _ = fmt.Fprint(c.errOut, text)
	if !strings.HasSuffix(text, "\n") {
		_, _ = fmt.Fprintln(c.errOut)
	}
}

// Info prints a progress line.
func (c *Console) Info(format string, args ...interface{}) {
	_, _ = fmt.Fprintln(c.out, infoStyle.Render(fmt.Sprintf(format, args...)))
}

// Field prints "label: value".
func (c *Console) Field(label string, value interface{}) {
	_, _ = fmt.Fprintf(c.out, "%s %v\n", labelStyle.Render(label+":"), value)
}

// Println prints unstyled text, e.g. program output or generated code.
func (c *Console) Println(text string) {
	_, _ = fmt.Fprintln(c.out, text)
}

// Prompt prints a question and returns the trimmed answer. An empty answer
// yields def.
func (c *Console) Prompt(question, def string) (string, error) {
	if def != "" {
		_, _ = fmt.Fprintf(c.out, "%s [%s]: ", question, def)
	} else {
		_, _ = fmt.Fprintf(c.out, "%s: ", question)
	}

	line, err := c.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

// PromptSecret reads a value without echo when attached to a terminal and
// falls back to a plain line read for piped input.
func (c *Console) PromptSecret(question string) (string, error) {
	_, _ = fmt.Fprintf(c.out, "%s: ", question)

	if c.inFd >= 0 {
		secret, err := term.ReadPassword(c.inFd)
		_, _ = fmt.Fprintln(c.out)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}

	return c.readLine()
}

func (c *Console) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
