// Package cli wires the diagnostic engine, the resolution flow, and
// the terminal prompts into the sshdoctor command tree.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/agent462/sshdoctor/internal/config"
	"github.com/agent462/sshdoctor/internal/flow"
)

// Exit codes, stable for scripting.
const (
	ExitOK        = 0
	ExitNetwork   = 1
	ExitAuth      = 2
	ExitUsage     = 3
	ExitCancelled = 130
)

var (
	cfgFile        string
	verbose        bool
	insecure       bool
	nonInteractive bool
	jsonOutput     bool

	log = logrus.New()

	rootCmd = &cobra.Command{
		Use:   "sshdoctor",
		Short: "Diagnose SSH connection and authentication problems",
		Long: `sshdoctor probes a target in stages: DNS resolution, TCP
reachability, then authentication, and reports the first failing stage
with a precise classification and remediation suggestions instead of a
single opaque error.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetOutput(os.Stderr)
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			} else {
				log.SetLevel(logrus.WarnLevel)
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.config/sshdoctor/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "skip host key verification")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; fail fast on authentication errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit machine-readable JSON output")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(sweepCmd)
}

// Execute runs the command tree and maps the outcome to a process
// exit code. Only main decides whether the process ends; nothing
// below this layer calls os.Exit.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return ExitOK
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.message != "" {
			fmt.Fprintln(os.Stderr, exit.message)
		}
		return exit.code
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	return ExitUsage
}

// exitError carries a specific exit code up through cobra without a
// process-terminating call inside command logic.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }

// exitFor maps a terminal resolution outcome to an exit code.
func exitFor(outcome flow.Outcome) int {
	switch outcome {
	case flow.OutcomeSuccess:
		return ExitOK
	case flow.OutcomeNetworkFailed, flow.OutcomePortFailed:
		return ExitNetwork
	case flow.OutcomeAuthFailed, flow.OutcomeExhausted:
		return ExitAuth
	case flow.OutcomeCancelled:
		return ExitCancelled
	}
	return ExitUsage
}

// loadConfig reads the configuration, tolerating a missing default
// file but not an explicitly named one.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	return config.LoadDefault()
}
