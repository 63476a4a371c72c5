package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agent462/sshdoctor/internal/config"
	"github.com/agent462/sshdoctor/internal/credcache"
	"github.com/agent462/sshdoctor/internal/diagnose"
)

// Diagnoser runs one full diagnostic pass against a target.
type Diagnoser interface {
	Diagnose(ctx context.Context, target config.Target, opts diagnose.Options) diagnose.Diagnostics
}

// Persister records a successfully used credential beyond the process
// lifetime. It is called at most once per resolved target and its
// failure is logged, never propagated.
type Persister func(target config.Target, cred credcache.Credential) error

// Policy bounds a resolution run.
type Policy struct {
	// MaxAttempts caps how many diagnostic passes may run.
	MaxAttempts int
	// Interactive permits prompting. When false the run never blocks
	// on input: authentication failures are terminal on first sight
	// and retries pause for Backoff instead of asking.
	Interactive bool
	// Backoff is the pause between non-interactive retries.
	Backoff time.Duration
}

// DefaultPolicy matches the interactive CLI defaults.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Interactive: true, Backoff: 2 * time.Second}
}

// Outcome is the terminal classification of a resolution run.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeNetworkFailed Outcome = "network"
	OutcomePortFailed    Outcome = "port"
	OutcomeAuthFailed    Outcome = "authentication"
	OutcomeCancelled     Outcome = "cancelled-by-user"
	OutcomeExhausted     Outcome = "exhausted"
)

// Result is the terminal state of one target's resolution run.
type Result struct {
	Target      config.Target
	Outcome     Outcome
	Attempts    int
	Diagnostics diagnose.Diagnostics
	Message     string
}

// Success reports whether the run ended with a working credential.
func (r Result) Success() bool {
	return r.Outcome == OutcomeSuccess
}

// Orchestrator loops diagnostic passes under a Policy, feeding each
// outcome through the credential resolution state machine.
type Orchestrator struct {
	Engine   Diagnoser
	Cache    *credcache.Cache
	Prompter Prompter
	Persist  Persister
	Policy   Policy
	CacheTTL time.Duration
	Log      *logrus.Logger

	// Sleep substitutes the backoff pause in tests. Nil uses
	// time.Sleep.
	Sleep func(time.Duration)
}

// Attempt resolves a single target: at most Policy.MaxAttempts
// diagnostic passes run, whatever mix of network and authentication
// failures occurs in between. The only error return paths are a
// prompter failure and context cancellation; every diagnostic outcome
// is folded into the Result.
func (o *Orchestrator) Attempt(ctx context.Context, target config.Target) (Result, error) {
	policy := o.policy()
	f := New(o.Cache, o.Prompter, o.CacheTTL)

	res := Result{Target: target}
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			if policy.Interactive {
				ok, err := o.Prompter.ConfirmRetry(target, attempt)
				if err != nil {
					return res, err
				}
				if !ok {
					res.Outcome = OutcomeCancelled
					res.Message = fmt.Sprintf("retry of %s cancelled by user after %d attempt(s)", target, res.Attempts)
					return res, nil
				}
			} else {
				select {
				case <-ctx.Done():
					return res, ctx.Err()
				case <-o.after(policy.Backoff):
				}
			}
		}

		f.Begin()
		res.Attempts = attempt
		res.Diagnostics = o.Engine.Diagnose(ctx, target, diagnose.Options{})

		switch f.Observe(res.Diagnostics, policy.Interactive) {
		case StateSucceeded:
			res.Outcome = OutcomeSuccess
			o.persist(target, res.Diagnostics)
			return res, nil

		case StateNetworkFailed, StatePortFailed:
			res.Outcome = OutcomeNetworkFailed
			if f.State() == StatePortFailed {
				res.Outcome = OutcomePortFailed
			}
			res.Message = res.Diagnostics.DetailedMessage
			// A failure that cannot succeed on retry ends the run
			// now; anything else burns another attempt.
			if d := res.Diagnostics.Detail; d != nil && !d.Retryable {
				return res, nil
			}

		case StateAuthFailed:
			res.Outcome = OutcomeAuthFailed
			res.Message = res.Diagnostics.DetailedMessage
			if !policy.Interactive && res.Diagnostics.Auth.Reason != diagnose.ReasonHostKeyMismatch {
				res.Message = "authentication failed and credentials cannot be prompted for in non-interactive mode"
			}
			return res, nil

		case StateAwaitingCredential:
			if err := f.AwaitCredential(target, res.Diagnostics.AuthStrategy); err != nil {
				if errors.Is(err, ErrPasswordAttemptsExceeded) {
					res.Outcome = OutcomeExhausted
					res.Message = err.Error()
					return res, nil
				}
				return res, err
			}

		case StateExhausted:
			res.Outcome = OutcomeExhausted
			res.Message = ErrPasswordAttemptsExceeded.Error()
			return res, nil
		}
	}

	f.Exhaust()
	res.Outcome = OutcomeExhausted
	res.Message = fmt.Sprintf("giving up on %s after %d attempt(s)", target, policy.MaxAttempts)
	return res, nil
}

// AttemptAll resolves targets sequentially: each target runs to a
// terminal state before the next begins, which bounds socket use and
// keeps interactive output readable.
func (o *Orchestrator) AttemptAll(ctx context.Context, targets []config.Target) ([]Result, error) {
	results := make([]Result, 0, len(targets))
	for _, target := range targets {
		res, err := o.Attempt(ctx, target)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (o *Orchestrator) persist(target config.Target, diag diagnose.Diagnostics) {
	if o.Persist == nil {
		return
	}

	var cred credcache.Credential
	if o.Cache != nil {
		if c, ok := o.Cache.Get(target.Host, target.User); ok {
			cred = c
		}
	}
	if cred.Type == "" {
		switch {
		case diag.Auth.KeyPath != "":
			cred = credcache.Credential{Type: credcache.TypeKey, Value: diag.Auth.KeyPath}
		case diag.Auth.Method == "password":
			cred = credcache.Credential{Type: credcache.TypePassword}
		default:
			return
		}
	}

	if err := o.Persist(target, cred); err != nil && o.Log != nil {
		o.Log.Warnf("persist credential for %s: %v", target, err)
	}
}

func (o *Orchestrator) policy() Policy {
	p := o.Policy
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	return p
}

func (o *Orchestrator) after(d time.Duration) <-chan time.Time {
	if o.Sleep != nil {
		o.Sleep(d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
	return time.After(d)
}
