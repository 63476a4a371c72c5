package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/agent462/sshdoctor/internal/config"
	"github.com/agent462/sshdoctor/internal/credcache"
	"github.com/agent462/sshdoctor/internal/diagnose"
	"github.com/agent462/sshdoctor/internal/flow"
	"github.com/agent462/sshdoctor/internal/probe"
)

var checkCmd = &cobra.Command{
	Use:   "check [user@]host[:port] ...",
	Short: "Run a one-shot diagnostic pass against one or more targets",
	Long: `Check probes each target once, without retries or prompting,
and reports the first failing stage: DNS, TCP, or authentication.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	targets, err := config.ResolveTargets(cfg, args)
	if err != nil {
		return err
	}

	engine := newEngine(cfg, credcache.New())
	reporter := &Reporter{JSON: jsonOutput, Color: !jsonOutput}

	worst := ExitOK
	for _, target := range targets {
		diag := engine.Diagnose(cmd.Context(), target, diagnose.Options{})
		fmt.Fprint(os.Stdout, reporter.Report(diag))

		code := checkExit(diag)
		if code > worst {
			worst = code
		}
	}

	if worst != ExitOK {
		return &exitError{code: worst}
	}
	return nil
}

func checkExit(diag diagnose.Diagnostics) int {
	switch diag.PrimaryIssue {
	case diagnose.IssueNone:
		return ExitOK
	case diagnose.IssueNetwork, diagnose.IssuePort:
		return ExitNetwork
	default:
		return ExitAuth
	}
}

// newEngine builds the diagnostic engine shared by check and connect,
// with the configured timeouts applied to every stage.
func newEngine(cfg *config.Config, cache *credcache.Cache) *diagnose.Engine {
	engine := diagnose.NewEngine(cache, log)
	engine.Prober = &probe.Prober{Timeout: cfg.Defaults.ProbeTimeout.Duration}
	engine.Detector = &probe.Detector{Log: log, Timeout: cfg.Defaults.ProbeTimeout.Duration}

	auth := &diagnose.SSHAuthenticator{Timeout: cfg.Defaults.AuthTimeout.Duration}
	if insecure {
		auth.HostKeyCallback = ssh.InsecureIgnoreHostKey()
	}
	engine.Auth = auth
	return engine
}

// newOrchestrator builds the retry loop shared by connect and batch
// resolution.
func newOrchestrator(cfg *config.Config, cache *credcache.Cache, persist flow.Persister) *flow.Orchestrator {
	policy := flow.Policy{
		MaxAttempts: cfg.Defaults.MaxAttempts,
		Interactive: !nonInteractive,
		Backoff:     cfg.Defaults.Backoff.Duration,
	}

	return &flow.Orchestrator{
		Engine:   newEngine(cfg, cache),
		Cache:    cache,
		Prompter: NewTerminalPrompter(),
		Persist:  persist,
		Policy:   policy,
		CacheTTL: cfg.Defaults.CacheTTL.Duration,
		Log:      log,
	}
}
