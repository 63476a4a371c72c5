package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agent462/sshdoctor/internal/sweep"
)

var (
	sweepPort     int
	sweepOpenOnly bool
	sweepTimeout  time.Duration
)

var sweepCmd = &cobra.Command{
	Use:   "sweep CIDR",
	Short: "Probe a CIDR range for reachable SSH daemons",
	Long: `Sweep dials every usable address in the range and reports which
ones have an SSH daemon listening, including the server banner when
one is offered.`,
	Args: cobra.ExactArgs(1),
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().IntVarP(&sweepPort, "port", "p", 22, "port to probe")
	sweepCmd.Flags().BoolVar(&sweepOpenOnly, "open-only", false, "only report hosts with the port open")
	sweepCmd.Flags().DurationVar(&sweepTimeout, "timeout", time.Second, "per-host dial timeout")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	scanner := &sweep.Scanner{
		Concurrency: cfg.Defaults.Concurrency,
		Timeout:     sweepTimeout,
		OpenOnly:    sweepOpenOnly,
	}

	hosts, err := scanner.Scan(cmd.Context(), args[0], sweepPort)
	if err != nil {
		return err
	}

	reporter := &Reporter{JSON: jsonOutput, Color: !jsonOutput}
	fmt.Fprint(os.Stdout, reporter.ReportSweep(hosts))
	return nil
}
