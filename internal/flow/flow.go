// Package flow drives credential resolution as an explicit state
// machine: probe, classify the failure, collect a new credential when
// that can help, and loop until success or the attempt budget runs out.
package flow

import (
	"fmt"
	"time"

	"github.com/agent462/sshdoctor/internal/config"
	"github.com/agent462/sshdoctor/internal/credcache"
	"github.com/agent462/sshdoctor/internal/diagnose"
	"github.com/agent462/sshdoctor/internal/probe"
)

// State identifies where a target currently sits in the resolution
// state machine.
type State string

const (
	StateInit               State = "INIT"
	StateProbing            State = "PROBING"
	StateNetworkFailed      State = "NETWORK_FAILED"
	StatePortFailed         State = "PORT_FAILED"
	StateAuthFailed         State = "AUTH_FAILED"
	StateSucceeded          State = "SUCCEEDED"
	StateAwaitingCredential State = "AWAITING_CREDENTIAL"
	StateExhausted          State = "EXHAUSTED"
)

// MaxPasswordAttempts bounds password prompts independently of the
// outer retry budget. Typos are common and should not consume the
// budget reserved for network flakiness.
const MaxPasswordAttempts = 3

// ErrPasswordAttemptsExceeded reports that the password sub-limit was
// hit. Its message names the exact count.
var ErrPasswordAttemptsExceeded = fmt.Errorf("password rejected after %d attempts", MaxPasswordAttempts)

// Prompter collects credentials and retry decisions from the user.
// Implementations decide how the interaction is rendered; the state
// machine only consumes the values.
type Prompter interface {
	// Password asks for a password for the target.
	Password(target config.Target) (string, error)
	// KeyPath asks for the path to a private key file.
	KeyPath(target config.Target) (string, error)
	// ChooseMethod asks which credential type to supply next.
	ChooseMethod(target config.Target, methods []credcache.Type) (credcache.Type, error)
	// ConfirmRetry asks whether to retry; the default answer is yes.
	ConfirmRetry(target config.Target, attempt int) (bool, error)
}

// Flow is the per-target credential resolution state machine. It is
// driven from a single flow of control; no locking is needed.
type Flow struct {
	cache    *credcache.Cache
	prompter Prompter
	ttl      time.Duration

	state            State
	passwordAttempts int
}

// New builds a Flow over the given session cache and prompt
// collaborator. ttl bounds how long collected credentials stay cached;
// zero uses the cache default.
func New(cache *credcache.Cache, prompter Prompter, ttl time.Duration) *Flow {
	return &Flow{cache: cache, prompter: prompter, ttl: ttl, state: StateInit}
}

// State reports the current machine state.
func (f *Flow) State() State {
	return f.state
}

// PasswordAttempts reports how many passwords have been prompted for
// so far.
func (f *Flow) PasswordAttempts() int {
	return f.passwordAttempts
}

// Begin marks the start of a probe pass.
func (f *Flow) Begin() {
	f.state = StateProbing
}

// Observe transitions the machine on a finished diagnostic pass.
// Network and port failures are terminal here; only the retry loop
// above decides whether the whole probe runs again, since no
// credential change can fix them. An authentication failure moves to
// AWAITING_CREDENTIAL only when interactive; otherwise it is terminal
// for the current call.
func (f *Flow) Observe(diag diagnose.Diagnostics, interactive bool) State {
	switch {
	case diag.OverallSuccess:
		f.state = StateSucceeded
	case diag.PrimaryIssue == diagnose.IssueNetwork:
		f.state = StateNetworkFailed
	case diag.PrimaryIssue == diagnose.IssuePort:
		f.state = StatePortFailed
	case diag.PrimaryIssue == diagnose.IssueAuth:
		switch {
		case diag.Auth.Reason == diagnose.ReasonHostKeyMismatch:
			// A new credential cannot fix a host key problem.
			f.state = StateAuthFailed
		case !interactive:
			f.state = StateAuthFailed
		case diag.Auth.Reason == diagnose.ReasonPasswordIncorrect && f.passwordAttempts >= MaxPasswordAttempts:
			f.state = StateExhausted
		default:
			f.state = StateAwaitingCredential
		}
	default:
		f.state = StateProbing
	}
	return f.state
}

// AwaitCredential collects one new credential, guided by the detected
// auth strategy: a password-only server goes straight to a password
// prompt, a key-only server to a key path prompt, anything else to a
// method choice. The credential is written to the session cache before
// the retry so a crash mid-retry does not lose what the user typed.
func (f *Flow) AwaitCredential(target config.Target, strategy *probe.AuthStrategy) error {
	if f.state != StateAwaitingCredential {
		return fmt.Errorf("await credential in state %s", f.state)
	}

	credType := credcache.TypePassword
	switch {
	case strategy == nil:
		chosen, err := f.prompter.ChooseMethod(target, []credcache.Type{credcache.TypePassword, credcache.TypeKey})
		if err != nil {
			return err
		}
		credType = chosen
	case strategy.Strategy == probe.StrategyPasswordOnly:
		// No menu; the server leaves only one choice.
	case strategy.Strategy == probe.StrategyKeyOnly:
		credType = credcache.TypeKey
	default:
		chosen, err := f.prompter.ChooseMethod(target, []credcache.Type{credcache.TypePassword, credcache.TypeKey})
		if err != nil {
			return err
		}
		credType = chosen
	}

	var value string
	switch credType {
	case credcache.TypePassword:
		if f.passwordAttempts >= MaxPasswordAttempts {
			f.state = StateExhausted
			return ErrPasswordAttemptsExceeded
		}
		f.passwordAttempts++
		pw, err := f.prompter.Password(target)
		if err != nil {
			return err
		}
		value = pw
	case credcache.TypeKey:
		path, err := f.prompter.KeyPath(target)
		if err != nil {
			return err
		}
		value = path
	default:
		return fmt.Errorf("unknown credential type %q", credType)
	}

	f.cache.Store(target.Host, target.User, credType, value, f.ttl)
	f.state = StateProbing
	return nil
}

// Exhaust marks the machine exhausted after the outer attempt budget
// is spent.
func (f *Flow) Exhaust() {
	f.state = StateExhausted
}
