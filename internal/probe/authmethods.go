package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agent462/sshdoctor/internal/config"
)

// Strategy is the recommended authentication approach for a target,
// reduced from the methods its server advertises.
type Strategy string

const (
	StrategyPasswordOnly Strategy = "password-only"
	StrategyKeyOnly      Strategy = "key-only"
	StrategyMultiple     Strategy = "multiple-methods"
	StrategyUnknown      Strategy = "unknown"
)

// AuthStrategy describes the authentication methods a server will
// accept. Callers must treat StrategyUnknown as "assume nothing, ask
// the user".
type AuthStrategy struct {
	Strategy         Strategy
	PrimaryMethod    string
	FallbackMethods  []string
	ShouldPromptUser bool
}

// MethodParser extracts the server's advertised authentication methods
// from SSH client diagnostic output. The default understands OpenSSH
// "ssh -v" stderr; stricter parsers can be substituted without touching
// the rest of the engine.
type MethodParser interface {
	Methods(output string) []string
}

// RunSSH invokes the system SSH client and returns its diagnostic
// output (stderr). The command is expected to fail, since automatic
// authentication is disabled; only invocation-level failures (missing
// binary, context cancellation) are reported as errors.
type RunSSH func(ctx context.Context, args []string) (string, error)

// Detector probes a server for its supported authentication methods
// without completing authentication. Detection is advisory: every
// failure degrades to StrategyUnknown, never to an error.
type Detector struct {
	Run     RunSSH       // nil: exec the system ssh client
	Parser  MethodParser // nil: OpenSSHParser
	HasKeys func() bool  // reports whether local key material exists
	Log     *logrus.Logger
	Timeout time.Duration
}

// Detect asks the target to enumerate its authentication methods and
// reduces the result to a single recommended strategy.
func (d *Detector) Detect(ctx context.Context, target config.Target) AuthStrategy {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"-v",
		"-o", "BatchMode=yes",
		"-o", "PreferredAuthentications=none",
		"-o", "StrictHostKeyChecking=no",
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(timeout.Seconds())),
		"-p", fmt.Sprintf("%d", target.Port),
		fmt.Sprintf("%s@%s", target.User, target.Host),
		"exit",
	}

	output, err := d.run(ctx, args)
	if err != nil {
		d.debugf("auth method probe failed for %s: %v", target, err)
		return AuthStrategy{Strategy: StrategyUnknown, ShouldPromptUser: true}
	}

	methods := d.parser().Methods(output)
	strategy := Reduce(methods, d.hasKeys())
	d.debugf("auth methods for %s: %v -> %s", target, methods, strategy.Strategy)
	return strategy
}

// Reduce maps a list of advertised methods to a strategy. Priority:
// publickey is preferred as the primary method whenever present;
// keyboard-interactive counts as password capability.
func Reduce(methods []string, hasKeys bool) AuthStrategy {
	var recognized []string
	seen := make(map[string]bool)
	for _, m := range methods {
		m = strings.TrimSpace(strings.ToLower(m))
		switch m {
		case "publickey", "password", "keyboard-interactive":
			if !seen[m] {
				seen[m] = true
				recognized = append(recognized, m)
			}
		}
	}

	hasPubkey := seen["publickey"]
	hasPassword := seen["password"] || seen["keyboard-interactive"]

	switch {
	case !hasPubkey && !hasPassword:
		return AuthStrategy{Strategy: StrategyUnknown, ShouldPromptUser: true}
	case hasPubkey && !hasPassword:
		return AuthStrategy{
			Strategy:         StrategyKeyOnly,
			PrimaryMethod:    "publickey",
			FallbackMethods:  remaining(recognized, "publickey"),
			ShouldPromptUser: !hasKeys,
		}
	case hasPassword && !hasPubkey:
		return AuthStrategy{
			Strategy:         StrategyPasswordOnly,
			PrimaryMethod:    "password",
			FallbackMethods:  remaining(recognized, "password"),
			ShouldPromptUser: true,
		}
	default:
		return AuthStrategy{
			Strategy:         StrategyMultiple,
			PrimaryMethod:    "publickey",
			FallbackMethods:  remaining(recognized, "publickey"),
			ShouldPromptUser: !hasKeys,
		}
	}
}

// PasswordCapable reports whether the strategy permits a password
// attempt. Unknown strategies are treated as capable, since the server
// was never successfully asked.
func (s AuthStrategy) PasswordCapable() bool {
	switch s.Strategy {
	case StrategyPasswordOnly, StrategyMultiple, StrategyUnknown:
		return true
	}
	return false
}

func remaining(methods []string, primary string) []string {
	var rest []string
	for _, m := range methods {
		if m != primary {
			rest = append(rest, m)
		}
	}
	return rest
}

// OpenSSHParser parses OpenSSH verbose output for the method
// enumeration line, falling back to the "Permission denied (...)"
// summary when verbose logging was unavailable.
type OpenSSHParser struct{}

// Methods implements MethodParser.
func (OpenSSHParser) Methods(output string) []string {
	const continueMarker = "authentications that can continue:"
	const deniedMarker = "permission denied ("

	var methods []string
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		if i := strings.Index(lower, continueMarker); i >= 0 {
			methods = append(methods, splitMethodList(line[i+len(continueMarker):])...)
			continue
		}
		if i := strings.Index(lower, deniedMarker); i >= 0 {
			rest := line[i+len(deniedMarker):]
			if j := strings.IndexByte(rest, ')'); j >= 0 {
				methods = append(methods, splitMethodList(rest[:j])...)
			}
		}
	}
	return methods
}

func splitMethodList(s string) []string {
	var methods []string
	for _, m := range strings.Split(s, ",") {
		m = strings.TrimSpace(m)
		if m != "" {
			methods = append(methods, m)
		}
	}
	return methods
}

func (d *Detector) run(ctx context.Context, args []string) (string, error) {
	if d.Run != nil {
		return d.Run(ctx, args)
	}
	return runSystemSSH(ctx, args)
}

// runSystemSSH invokes the installed ssh binary. The authentication
// failure exit status is expected and not treated as an error; only a
// missing binary or a cancelled context is.
func runSystemSSH(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, "ssh", args...)
	var stderr bytes.Buffer
	cmd.Stdout = nil
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var execErr *exec.Error
		if ctx.Err() != nil {
			return stderr.String(), ctx.Err()
		}
		if errors.As(err, &execErr) {
			return "", fmt.Errorf("ssh client unavailable: %w", err)
		}
	}
	return stderr.String(), nil
}

func (d *Detector) parser() MethodParser {
	if d.Parser != nil {
		return d.Parser
	}
	return OpenSSHParser{}
}

func (d *Detector) hasKeys() bool {
	if d.HasKeys != nil {
		return d.HasKeys()
	}
	return false
}

func (d *Detector) debugf(format string, args ...interface{}) {
	if d.Log != nil {
		d.Log.Debugf(format, args...)
	}
}
