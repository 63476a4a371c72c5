package cli

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agent462/sshdoctor/internal/config"
	"github.com/agent462/sshdoctor/internal/credcache"
)

var (
	connectMaxAttempts int
	connectHandover    bool
	connectRemember    bool
)

var connectCmd = &cobra.Command{
	Use:   "connect [user@]host[:port]",
	Short: "Resolve a working credential for a target, prompting as needed",
	Long: `Connect diagnoses the target and, when authentication fails,
prompts for new credentials and retries until it succeeds or the
attempt budget runs out. With --ssh it hands the resolved session over
to the system SSH client.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().IntVar(&connectMaxAttempts, "max-attempts", 0, "override the configured retry budget")
	connectCmd.Flags().BoolVar(&connectHandover, "ssh", false, "exec the system ssh client after a successful resolution")
	connectCmd.Flags().BoolVar(&connectRemember, "remember", false, "record the working auth method for future runs")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	targets, err := config.ResolveTargets(cfg, args)
	if err != nil {
		return err
	}
	target := targets[0]

	cache := credcache.New()
	var persist func(config.Target, credcache.Credential) error
	if connectRemember {
		persist = NewCredentialStore("").Record
	}

	o := newOrchestrator(cfg, cache, persist)
	if connectMaxAttempts > 0 {
		o.Policy.MaxAttempts = connectMaxAttempts
	}

	res, err := o.Attempt(cmd.Context(), target)
	if err != nil {
		return err
	}

	reporter := &Reporter{JSON: jsonOutput, Color: !jsonOutput}
	fmt.Fprint(os.Stdout, reporter.ReportResult(res))

	if !res.Success() {
		return &exitError{code: exitFor(res.Outcome)}
	}
	if connectHandover {
		return execSystemSSH(target, res.Diagnostics.Auth.KeyPath)
	}
	return nil
}

// execSystemSSH replaces sshdoctor with an interactive ssh session
// using whatever the resolution learned about the target.
func execSystemSSH(target config.Target, keyPath string) error {
	sshPath, err := exec.LookPath("ssh")
	if err != nil {
		return fmt.Errorf("ssh client not found in PATH: %w", err)
	}

	sshArgs := []string{"-p", strconv.Itoa(target.Port)}
	if keyPath != "" {
		sshArgs = append(sshArgs, "-i", keyPath)
	}
	sshArgs = append(sshArgs, fmt.Sprintf("%s@%s", target.User, target.Host))

	c := exec.Command(sshPath, sshArgs...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("ssh session: %w", err)
	}
	return nil
}
