package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/dsem/config"
	"github.com/CraigKelly/dsem/ctxlog"
	"github.com/CraigKelly/dsem/diagnostics"
	"github.com/CraigKelly/dsem/model"
	"github.com/CraigKelly/dsem/posterior"
	"github.com/CraigKelly/dsem/sampler"
)

type fitParams struct {
	dataFile    string
	configFile  string
	saveConfig  string
	truthFile   string
	chains      int
	warmup      int
	samples     int
	seed        int64
	init        string
	algorithm   string
	metric      string
	gradient    string
	checkGrad   bool
	monitor     bool
	monitorAddr string
}

func newFitCmd(sp *startupParams) *cobra.Command {
	fp := &fitParams{}

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Sample the posterior for a dataset and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFit(cmd, sp, fp)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&fp.dataFile, "data", "d", "", "Dataset file (.json, .yaml, .csv, .txt)")
	f.StringVarP(&fp.configFile, "config", "c", "", "YAML config file (defaults are used for anything missing)")
	f.StringVar(&fp.saveConfig, "save-config", "", "Write the effective configuration (file plus flags) to this YAML file")
	f.StringVar(&fp.truthFile, "truth", "", "Generating values written by simulate; scores recovery")
	f.StringVarP(&sp.traceFile, "trace", "t", "", "Write every retained draw to this CSV file")
	f.IntVar(&fp.chains, "chains", 0, "Number of chains")
	f.IntVar(&fp.warmup, "warmup", 0, "Warmup iterations per chain")
	f.IntVar(&fp.samples, "samples", 0, "Sampling iterations per chain")
	f.Int64VarP(&fp.seed, "seed", "r", 0, "Random seed")
	f.StringVar(&fp.init, "init", "", "Init strategy: zero or random-jitter")
	f.StringVar(&fp.algorithm, "algorithm", "", "Sampler: nuts or hmc")
	f.StringVar(&fp.metric, "metric", "", "Mass matrix: diag or dense")
	f.StringVar(&fp.gradient, "gradient", "", "Gradient: analytic or finite-difference")
	f.BoolVar(&fp.checkGrad, "check-gradient", false, "Compare analytic and finite-difference gradients at the origin before sampling")
	f.BoolVar(&fp.monitor, "monitor", false, "Serve progress on HTTP (expvar)")
	f.StringVar(&fp.monitorAddr, "monitor-addr", ":8000", "Address for --monitor")
	cmd.MarkFlagRequired("data")

	return cmd
}

// loadConfig reads the config file and applies any flags given explicitly
func loadConfig(cmd *cobra.Command, fp *fitParams) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(fp.configFile)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("chains") {
		cfg.Chains = fp.chains
	}
	if f.Changed("warmup") {
		cfg.WarmupIterations = fp.warmup
	}
	if f.Changed("samples") {
		cfg.SamplingIterations = fp.samples
	}
	if f.Changed("seed") {
		cfg.Seed = fp.seed
	}
	if f.Changed("init") {
		cfg.InitStrategy = fp.init
	}
	if f.Changed("algorithm") {
		cfg.Algorithm = fp.algorithm
	}
	if f.Changed("metric") {
		cfg.Metric = fp.metric
	}
	if f.Changed("gradient") {
		cfg.Gradient = fp.gradient
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid configuration")
	}
	if len(fp.saveConfig) > 0 {
		if err := cfg.Save(fp.saveConfig); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func runFit(cmd *cobra.Command, sp *startupParams, fp *fitParams) error {
	// Configuration is checked before any data is touched
	cfg, err := loadConfig(cmd, fp)
	if err != nil {
		return err
	}

	level := sp.logLevel
	if sp.verbose {
		level = "debug"
	}
	logger, err := ctxlog.New(sp.stderr, level)
	if err != nil {
		return err
	}

	var truth *model.Truth
	if len(fp.truthFile) > 0 {
		truth, err = model.NewTruthFromFile(fp.truthFile)
		if err != nil {
			return err
		}
	}

	sp.out.Printf("Reading data from %s\n", fp.dataFile)
	data, err := model.NewDatasetFromFile(fp.dataFile)
	if err != nil {
		return err
	}
	mod, err := model.NewModel(data, cfg.ModelPriors())
	if err != nil {
		return err
	}
	sp.out.Printf("Data has %d subjects x %d observations; model has %d parameters\n", data.NSubj, data.NObs, mod.Dim())
	if constant := mod.ConstantSubjects(); len(constant) > 0 {
		sp.out.Printf("Constant series (0-based subjects %v): fit on their level only\n", constant)
	}
	if fp.checkGrad {
		ev, err := posterior.NewEvaluator(mod)
		if err != nil {
			return err
		}
		diff, err := ev.GradientError(make([]float64, ev.Dim()))
		if err != nil {
			return errors.Wrap(err, "Gradient check failed")
		}
		sp.out.Printf("Max absolute gradient error at the origin: %.3g\n", diff)
	}

	sp.out.Printf("Sampler %s, %d chains x (%d warmup + %d samples), seed %d\n",
		cfg.Algorithm, cfg.Chains, cfg.WarmupIterations, cfg.SamplingIterations, cfg.Seed)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx = ctxlog.WithLogger(ctx, logger)

	var mon *monitor
	if fp.monitor {
		mon = newMonitor(fp.monitorAddr, sp.stderr)
		mon.Chains.Set(int64(cfg.Chains))
		mon.WarmupIterations.Set(int64(cfg.WarmupIterations))
		mon.SamplingIterations.Set(int64(cfg.SamplingIterations))
		if err := mon.Start(); err != nil {
			return err
		}
		defer mon.Stop()
	}

	var progress sampler.ProgressFunc
	if mon != nil {
		progress = mon.Progress
	}

	fit, runErr := diagnostics.Run(ctx, mod, cfg, progress)
	if fit == nil {
		return runErr
	}
	if runErr != nil && errors.Cause(runErr) == context.Canceled {
		sp.out.Printf("Interrupted: reporting %d completed chains\n", len(fit.Chains))
	}

	report(sp, fit)

	if truth != nil {
		results, err := diagnostics.Recovery(fit, *truth)
		if err != nil {
			return err
		}
		sp.out.Printf("\nRecovery against %s\n", fp.truthFile)
		for _, r := range results {
			sp.out.Println(r.String())
		}
	}

	if err := sp.openTrace(); err != nil {
		return err
	}
	if len(sp.traceFile) > 0 {
		sp.out.Printf("Writing %d chains of draws to %s\n", len(fit.Draws), sp.traceFile)
		if err := fit.WriteTrace(sp.trace.Writer()); err != nil {
			sp.closeTrace()
			return err
		}
	}
	if err := sp.closeTrace(); err != nil {
		return err
	}

	return runErr
}

// report prints the summary table, divergences and warnings
func report(sp *startupParams, fit *diagnostics.Fit) {
	sp.out.Printf("\nRun %s finished in %v\n", fit.RunID, fit.Elapsed)
	sp.out.Println(diagnostics.Header())
	for _, s := range fit.Summaries {
		sp.out.Println(s.String())
	}

	if ll, err := fit.SubjectLogLik(); err == nil && len(ll) > 1 {
		sp.out.Printf("\nSubject log likelihood at posterior mean: %.4g\n", ll)
	}

	sp.out.Printf("\nDivergences: %d %v\n", fit.Divergences, fit.ChainDivergences)
	sp.out.Printf("Step sizes: %v\n", fit.StepSizes)

	if fit.Converged() {
		sp.out.Printf("No convergence warnings\n")
		return
	}
	sp.out.Printf("%d convergence warnings:\n", len(fit.Warnings))
	for _, w := range fit.Warnings {
		sp.out.Printf("  WARNING %s\n", w.String())
	}
}
