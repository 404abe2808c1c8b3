package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// startupParams is shared by every subcommand: where the report goes, where
// trace output goes, and how chatty the structured logs are.
type startupParams struct {
	verbose   bool
	logLevel  string
	traceFile string

	out   *log.Logger
	trace *log.Logger

	stdout    io.Writer
	stderr    io.Writer
	traceSink io.WriteCloser
}

// openTrace points sp.trace at the trace file, or at nothing if none was
// requested. Callers must closeTrace.
func (sp *startupParams) openTrace() error {
	if len(sp.traceFile) < 1 {
		sp.trace = log.New(io.Discard, "", 0)
		return nil
	}

	f, err := os.Create(sp.traceFile)
	if err != nil {
		return errors.Wrapf(err, "Could not create trace file %s", sp.traceFile)
	}
	sp.traceSink = f
	sp.trace = log.New(f, "", 0)
	return nil
}

func (sp *startupParams) closeTrace() error {
	if sp.traceSink == nil {
		return nil
	}
	err := sp.traceSink.Close()
	sp.traceSink = nil
	return errors.Wrap(err, "Could not close trace file")
}

// newRootCmd builds the command tree writing its report to stdout and logs
// to stderr
func newRootCmd(stdout io.Writer, stderr io.Writer) *cobra.Command {
	sp := &startupParams{
		stdout: stdout,
		stderr: stderr,
		out:    log.New(stdout, "", 0),
	}

	root := &cobra.Command{
		Use:   "dsem",
		Short: "Bayesian hierarchical AR(1) models fit with Hamiltonian Monte Carlo",
		Long: `dsem fits a two-level dynamic structural equation model to panel
time series: each subject follows an AR(1) process whose mean, residual
dispersion and autoregression deviate from population values.

Among other features:

  - Reads data as JSON/YAML records, CSV (wide or long) or plain text
  - NUTS or static HMC with windowed warmup adaptation
  - Split and rank-normalized R-hat, bulk and tail ESS
  - Simulation from known values and recovery scoring
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&sp.verbose, "verbose", "v", false, "Verbose logging (same as --log-level debug)")
	root.PersistentFlags().StringVar(&sp.logLevel, "log-level", "warn", "Structured log level: debug, info, warn, error")

	root.AddCommand(newFitCmd(sp))
	root.AddCommand(newSimulateCmd(sp))
	root.AddCommand(newGraphCmd(sp))
	return root
}

// Execute runs the command line. This is called by main.main().
func Execute() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
