package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/agent462/sshdoctor/internal/config"
	"github.com/agent462/sshdoctor/internal/credcache"
)

// TerminalPrompter collects credentials and retry decisions on the
// controlling terminal. Passwords are read with echo disabled.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer

	// ReadPassword substitutes the no-echo read in tests. Nil reads
	// from the real terminal.
	ReadPassword func() (string, error)

	reader *bufio.Reader
}

// NewTerminalPrompter builds a prompter over stdin/stderr. Prompts go
// to stderr so piped stdout stays clean.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

func (p *TerminalPrompter) Password(target config.Target) (string, error) {
	fmt.Fprintf(p.Out, "Password for %s: ", target)
	pw, err := p.readPassword()
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return pw, nil
}

func (p *TerminalPrompter) KeyPath(target config.Target) (string, error) {
	fmt.Fprintf(p.Out, "Path to private key for %s: ", target)
	line, err := p.readLine()
	if err != nil {
		return "", fmt.Errorf("read key path: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (p *TerminalPrompter) ChooseMethod(target config.Target, methods []credcache.Type) (credcache.Type, error) {
	fmt.Fprintf(p.Out, "Authentication options for %s:\n", target)
	for i, m := range methods {
		fmt.Fprintf(p.Out, "  %d) %s\n", i+1, m)
	}
	fmt.Fprintf(p.Out, "Choice [1]: ")

	line, err := p.readLine()
	if err != nil {
		return "", fmt.Errorf("read choice: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return methods[0], nil
	}

	var choice int
	if _, err := fmt.Sscanf(line, "%d", &choice); err != nil || choice < 1 || choice > len(methods) {
		return "", fmt.Errorf("invalid choice %q", line)
	}
	return methods[choice-1], nil
}

// ConfirmRetry defaults to yes: a bare return means retry.
func (p *TerminalPrompter) ConfirmRetry(target config.Target, attempt int) (bool, error) {
	fmt.Fprintf(p.Out, "Retry %s (attempt %d)? [Y/n] ", target, attempt)
	line, err := p.readLine()
	if err != nil {
		return false, fmt.Errorf("read confirmation: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return true, nil
	}
	return false, nil
}

func (p *TerminalPrompter) readPassword() (string, error) {
	if p.ReadPassword != nil {
		return p.ReadPassword()
	}
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (p *TerminalPrompter) readLine() (string, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}
