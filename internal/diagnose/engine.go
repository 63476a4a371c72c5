package diagnose

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/agent462/sshdoctor/internal/classify"
	"github.com/agent462/sshdoctor/internal/config"
	"github.com/agent462/sshdoctor/internal/credcache"
	"github.com/agent462/sshdoctor/internal/probe"
)

// Options adjusts a single diagnostic pass.
type Options struct {
	// SuppressDebug silences per-stage debug logging for this pass.
	SuppressDebug bool
}

// Engine runs the staged diagnostic pipeline. Zero-value fields fall
// back to production defaults, so tests can substitute any subset.
type Engine struct {
	Prober     *probe.Prober
	Detector   *probe.Detector
	Auth       Authenticator
	Cache      *credcache.Cache
	Classifier classify.SSHClassifier
	Log        *logrus.Logger
	KeyFiles   func(config.Target) []string
}

// NewEngine builds an Engine wired with production components.
func NewEngine(cache *credcache.Cache, log *logrus.Logger) *Engine {
	return &Engine{
		Prober:     &probe.Prober{},
		Detector:   &probe.Detector{Log: log},
		Auth:       &SSHAuthenticator{},
		Cache:      cache,
		Classifier: classify.NewSSHClassifier(),
		Log:        log,
		KeyFiles:   DefaultKeyFiles,
	}
}

// Diagnose performs one full diagnostic pass: connectivity, then
// auth-method detection, then actual authentication. The pipeline
// short-circuits at the first failing stage; stages after it retain
// their "not tested" state.
func (e *Engine) Diagnose(ctx context.Context, target config.Target, opts Options) Diagnostics {
	diag := Diagnostics{Target: target, PrimaryIssue: IssueNone}

	e.debugf(opts, "probing connectivity to %s", target)
	diag.Connectivity = e.prober().Connectivity(ctx, target.Host, target.Port)

	if !diag.Connectivity.DNSOK {
		diag.PrimaryIssue = IssueNetwork
		diag.Detail = diag.Connectivity.Detail
		diag.DetailedMessage = detailedMessage(diag.Detail)
		e.debugf(opts, "dns stage failed for %s: %s", target, diag.DetailedMessage)
		return diag
	}
	if !diag.Connectivity.PortOK {
		diag.PrimaryIssue = IssuePort
		diag.Detail = diag.Connectivity.Detail
		diag.DetailedMessage = detailedMessage(diag.Detail)
		e.debugf(opts, "port stage failed for %s: %s", target, diag.DetailedMessage)
		return diag
	}

	strategy := e.detector(target).Detect(ctx, target)
	diag.AuthStrategy = &strategy
	e.debugf(opts, "auth strategy for %s: %s", target, strategy.Strategy)

	e.authenticate(ctx, target, &diag, opts)

	if diag.Auth.Success {
		diag.OverallSuccess = true
	} else {
		diag.PrimaryIssue = IssueAuth
	}
	return diag
}

// authenticate tries credential sources in order: the session cache,
// the SSH agent, then local key files. It fills diag.Auth.
func (e *Engine) authenticate(ctx context.Context, target config.Target, diag *Diagnostics, opts Options) {
	diag.Auth.Tested = true
	strategy := *diag.AuthStrategy

	var (
		keyRejected   bool
		keyFormatErr  bool
		passwordTried bool
		triedKeyPath  string
		lastDetail    *classify.Detail
	)

	// 1. Session-cached credential.
	if e.Cache != nil {
		if cred, ok := e.Cache.Get(target.Host, target.User); ok {
			switch cred.Type {
			case credcache.TypePassword:
				e.debugf(opts, "trying cached password for %s", target)
				err := e.Auth.TryPassword(ctx, target, cred.Value)
				if err == nil {
					diag.Auth.Success = true
					diag.Auth.Method = "password"
					return
				}
				passwordTried = true
				e.Cache.Clear(target.Host, target.User)
				d := e.Classifier.Classify(err, "")
				lastDetail = &d
				if d.Category == classify.CategoryHostKey {
					e.failAuth(diag, ReasonHostKeyMismatch, &d)
					return
				}
			case credcache.TypeKey:
				e.debugf(opts, "trying cached key %s for %s", cred.Value, target)
				err := e.Auth.TryKey(ctx, target, cred.Value)
				if err == nil {
					diag.Auth.Success = true
					diag.Auth.Method = "key"
					diag.Auth.KeyPath = cred.Value
					return
				}
				triedKeyPath = cred.Value
				e.Cache.Clear(target.Host, target.User)
				switch {
				case errors.Is(err, ErrKeyMissing):
					// The file vanished since it was cached; move on.
				case errors.Is(err, ErrKeyFormat):
					keyFormatErr = true
				default:
					d := e.Classifier.Classify(err, "")
					lastDetail = &d
					if d.Category == classify.CategoryHostKey {
						e.failAuth(diag, ReasonHostKeyMismatch, &d)
						return
					}
					keyRejected = true
				}
			}
		}
	}

	// 2. SSH agent.
	err := e.Auth.TryAgent(ctx, target)
	if err == nil {
		diag.Auth.Success = true
		diag.Auth.Method = "agent"
		return
	}
	if !errors.Is(err, ErrAgentUnavailable) {
		d := e.Classifier.Classify(err, "")
		lastDetail = &d
		if d.Category == classify.CategoryHostKey {
			e.failAuth(diag, ReasonHostKeyMismatch, &d)
			return
		}
		keyRejected = true
	}

	// 3. Local key files, most common algorithms first.
	for _, keyPath := range e.keyFiles(target) {
		if keyPath == triedKeyPath {
			continue
		}
		e.debugf(opts, "trying key %s for %s", keyPath, target)
		err := e.Auth.TryKey(ctx, target, keyPath)
		if err == nil {
			diag.Auth.Success = true
			diag.Auth.Method = "key"
			diag.Auth.KeyPath = keyPath
			return
		}
		switch {
		case errors.Is(err, ErrKeyMissing):
			// Absent key files are not a rejection; evaluate the
			// next source instead of reporting a spurious failure.
			continue
		case errors.Is(err, ErrKeyFormat):
			keyFormatErr = true
			continue
		}
		d := e.Classifier.Classify(err, "")
		lastDetail = &d
		if d.Category == classify.CategoryHostKey {
			e.failAuth(diag, ReasonHostKeyMismatch, &d)
			return
		}
		keyRejected = true
		// A server that only takes passwords will reject every key;
		// don't burn a round trip per remaining candidate.
		if strategy.Strategy == probe.StrategyPasswordOnly {
			break
		}
	}

	// 4. Password capability.
	if strategy.PasswordCapable() {
		if passwordTried {
			e.failAuth(diag, ReasonPasswordIncorrect, lastDetail)
		} else {
			e.failAuth(diag, ReasonPasswordRequired, lastDetail)
		}
		return
	}

	switch {
	case keyRejected:
		e.failAuth(diag, ReasonKeyRejected, lastDetail)
	case keyFormatErr:
		e.failAuth(diag, ReasonKeyFormat, lastDetail)
	case passwordTried:
		e.failAuth(diag, ReasonPasswordDisabled, lastDetail)
	default:
		e.failAuth(diag, ReasonKeyNotFound, lastDetail)
	}
}

// failAuth records a failed authentication stage.
func (e *Engine) failAuth(diag *Diagnostics, reason AuthReason, detail *classify.Detail) {
	diag.Auth.Reason = reason
	diag.Auth.Message = authMessage(reason, diag)
	diag.Detail = detail
	if detail != nil {
		diag.DetailedMessage = authMessage(reason, diag) + "\n" + detailedMessage(detail)
	} else {
		diag.DetailedMessage = authMessage(reason, diag)
	}
}

func authMessage(reason AuthReason, diag *Diagnostics) string {
	target := diag.Target
	switch reason {
	case ReasonPasswordRequired:
		return fmt.Sprintf("no usable key material for %s; the server accepts password authentication", target)
	case ReasonPasswordIncorrect:
		return fmt.Sprintf("the password for %s was rejected", target)
	case ReasonPasswordDisabled:
		return fmt.Sprintf("the server at %s does not accept password authentication", target)
	case ReasonKeyRejected:
		return fmt.Sprintf("the server at %s rejected every offered key", target)
	case ReasonKeyNotFound:
		return fmt.Sprintf("no usable key material found for %s and the server does not accept passwords", target)
	case ReasonKeyFormat:
		return fmt.Sprintf("a local key file for %s could not be read or parsed", target)
	case ReasonHostKeyMismatch:
		return fmt.Sprintf("host key verification failed for %s", target)
	}
	return fmt.Sprintf("authentication failed for %s", target)
}

func (e *Engine) prober() *probe.Prober {
	if e.Prober != nil {
		return e.Prober
	}
	return &probe.Prober{}
}

func (e *Engine) detector(target config.Target) *probe.Detector {
	d := e.Detector
	if d == nil {
		d = &probe.Detector{Log: e.Log}
	}
	if d.HasKeys == nil {
		d.HasKeys = func() bool { return HasLocalKeyMaterial(target) }
	}
	return d
}

func (e *Engine) keyFiles(target config.Target) []string {
	if e.KeyFiles != nil {
		return e.KeyFiles(target)
	}
	return DefaultKeyFiles(target)
}

func (e *Engine) debugf(opts Options, format string, args ...interface{}) {
	if opts.SuppressDebug || e.Log == nil {
		return
	}
	e.Log.Debugf(format, args...)
}
