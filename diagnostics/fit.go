package diagnostics

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/CraigKelly/dsem/config"
	"github.com/CraigKelly/dsem/ctxlog"
	"github.com/CraigKelly/dsem/model"
	"github.com/CraigKelly/dsem/posterior"
	"github.com/CraigKelly/dsem/rand"
	"github.com/CraigKelly/dsem/sampler"
)

// Fit is the output record of a run: the retained draws of every completed
// chain, their per-iteration statistics, and the summaries and warnings
// computed from them.
type Fit struct {
	RunID            string               `json:"run_id"`
	Names            []string             `json:"names"`
	Chains           []int                `json:"chains"` // ids of the chains that completed
	Draws            [][][]float64        `json:"draws"`  // chain x iteration x parameter, natural scale
	Stats            [][]sampler.Stats    `json:"-"`
	Summaries        []Summary            `json:"summaries"`
	Divergences      int                  `json:"divergences"`
	ChainDivergences []int                `json:"chain_divergences"`
	StepSizes        []float64            `json:"step_sizes"`
	Warnings         []ConvergenceWarning `json:"warnings"`
	Config           config.Config        `json:"config"`
	Elapsed          time.Duration        `json:"elapsed"`

	layout *model.Layout
	data   *model.Dataset
}

// chainOptions maps the run configuration onto one chain's options
func chainOptions(cfg *config.Config, ev *posterior.Evaluator) sampler.Options {
	return sampler.Options{
		Warmup:        cfg.WarmupIterations,
		Samples:       cfg.SamplingIterations,
		TargetAccept:  cfg.TargetAcceptance,
		Algorithm:     cfg.Algorithm,
		MaxTreeDepth:  cfg.MaxTreeDepth,
		LeapfrogSteps: cfg.LeapfrogSteps,
		MaxDeltaH:     cfg.MaxDeltaH,
		Metric:        cfg.Metric,
		InitStrategy:  cfg.InitStrategy,
		InitRadius:    cfg.InitRadius,
		Constrain:     ev.Constrain,
	}
}

// Run samples the model with cfg.Chains independent chains in parallel and
// summarizes the result once all of them finish. Each chain's random stream
// depends only on the seed and the chain index, so a run is reproducible
// whatever the scheduling.
//
// progress, if not nil, is called from every chain goroutine and must be
// safe for concurrent use.
//
// If ctx is cancelled the chains that already completed are still returned
// as a Fit, together with the context error. Any other chain failure aborts
// the run.
func Run(ctx context.Context, mod *model.Model, cfg *config.Config, progress sampler.ProgressFunc) (*Fit, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Invalid configuration")
	}

	ev, err := posterior.NewEvaluator(mod)
	if err != nil {
		return nil, err
	}

	var target sampler.Target = ev
	if cfg.Gradient == config.GradientFiniteDifference {
		target = &posterior.FiniteDifference{Evaluator: ev}
	}

	var init []float64
	if len(cfg.InitValues) > 0 {
		init, err = mod.Layout.Unconstrain(cfg.InitValues)
		if err != nil {
			return nil, errors.Wrap(err, "Invalid init_values")
		}
	}

	runID := uuid.NewString()
	logger := ctxlog.FromContext(ctx).With("run", runID)
	start := time.Now()

	chains := make([]*sampler.Chain, cfg.Chains)
	for c := range chains {
		gen, err := rand.NewChainGenerator(cfg.Seed, c)
		if err != nil {
			return nil, err
		}
		opts := chainOptions(cfg, ev)
		opts.Logger = logger
		opts.Progress = progress
		opts.Init = init

		chains[c], err = sampler.NewChain(c, target, opts, gen)
		if err != nil {
			return nil, err
		}
	}

	if constant := mod.ConstantSubjects(); len(constant) > 0 {
		logger.Warn("constant series: level only, autoregression left to its prior", "subjects", constant)
	}

	logger.Info("sampling started", "chains", cfg.Chains, "dim", ev.Dim(),
		"warmup", cfg.WarmupIterations, "samples", cfg.SamplingIterations, "algorithm", cfg.Algorithm, "gradient", cfg.Gradient)

	traces := make([]*sampler.Trace, len(chains))
	g, gctx := errgroup.WithContext(ctx)
	for c, ch := range chains {
		g.Go(func() error {
			tr, err := ch.Run(gctx)
			if err != nil {
				return err
			}
			traces[c] = tr
			return nil
		})
	}
	runErr := g.Wait()

	if runErr != nil && ctx.Err() == nil {
		return nil, errors.Wrap(runErr, "Sampling failed")
	}

	fit := newFit(runID, mod, cfg, traces)
	fit.Elapsed = time.Since(start)

	if runErr != nil {
		fit.Warnings = append(fit.Warnings, ConvergenceWarning{
			Kind:      WarnCancelled,
			Value:     float64(len(fit.Chains)),
			Threshold: float64(cfg.Chains),
		})
		logger.Warn("sampling cancelled", "completed_chains", len(fit.Chains))
		return fit, errors.Wrap(ctx.Err(), "Sampling cancelled")
	}

	logger.Info("sampling finished", "elapsed", fit.Elapsed, "divergences", fit.Divergences, "warnings", len(fit.Warnings))
	return fit, nil
}

// newFit assembles the completed traces (nil entries are skipped) and
// computes summaries and warnings
func newFit(runID string, mod *model.Model, cfg *config.Config, traces []*sampler.Trace) *Fit {
	fit := &Fit{
		RunID:  runID,
		Names:  mod.Layout.Names(),
		Config: *cfg,
		layout: mod.Layout,
		data:   mod.Data,
	}

	for _, tr := range traces {
		if tr == nil {
			continue
		}
		fit.Chains = append(fit.Chains, tr.Chain)
		fit.Draws = append(fit.Draws, tr.Draws)
		fit.Stats = append(fit.Stats, tr.Stats)
		fit.ChainDivergences = append(fit.ChainDivergences, tr.Divergences)
		fit.StepSizes = append(fit.StepSizes, tr.StepSize)
		fit.Divergences += tr.Divergences
	}

	completed := *cfg
	completed.Chains = len(fit.Chains)
	minESS := completed.MinESS()

	fit.Summaries = make([]Summary, len(fit.Names))
	for j, name := range fit.Names {
		fit.Summaries[j] = Summarize(name, fit.column(j))
		if fit.primary(j) && len(fit.Chains) > 0 {
			fit.Warnings = append(fit.Warnings, Check(fit.Summaries[j], cfg.RHatThreshold, minESS)...)
		}
	}

	if fit.Divergences > 0 {
		fit.Warnings = append(fit.Warnings, ConvergenceWarning{
			Kind:  WarnDivergence,
			Value: float64(fit.Divergences),
		})
	}
	return fit
}

// primary parameters (fixed effects and random-effect scales) are the ones
// convergence is judged on
func (f *Fit) primary(j int) bool {
	return j < 2*model.NumEffects
}

func (f *Fit) column(j int) [][]float64 {
	out := make([][]float64, len(f.Draws))
	for c, draws := range f.Draws {
		out[c] = make([]float64, len(draws))
		for i, d := range draws {
			out[c][i] = d[j]
		}
	}
	return out
}

// Column returns the per-chain draws of the named parameter
func (f *Fit) Column(name string) ([][]float64, error) {
	j := f.layout.IndexOf(name)
	if j < 0 {
		return nil, errors.Errorf("Unknown parameter %s", name)
	}
	return f.column(j), nil
}

// Summary returns the summary of the named parameter
func (f *Fit) Summary(name string) (Summary, error) {
	j := f.layout.IndexOf(name)
	if j < 0 {
		return Summary{}, errors.Errorf("Unknown parameter %s", name)
	}
	return f.Summaries[j], nil
}

// Params unpacks one retained draw
func (f *Fit) Params(chain int, iter int) *model.Params {
	return f.layout.Unpack(f.Draws[chain][iter])
}

// SubjectLogLik is each subject's AR(1) log likelihood evaluated at the
// posterior mean. A subject far below the rest is poorly described by the
// shared fixed effects.
func (f *Fit) SubjectLogLik() ([]float64, error) {
	if len(f.Chains) == 0 {
		return nil, errors.New("No completed chains")
	}

	means := make([]float64, len(f.Summaries))
	for j, s := range f.Summaries {
		means[j] = s.Mean
	}
	p := f.layout.Unpack(means)

	out := make([]float64, len(f.data.Y))
	for i, s := range p.Subjects() {
		lp, err := model.SubjectLogLikelihood(f.data.Y[i], s)
		if err != nil {
			return nil, errors.Wrapf(err, "Subject %d", i+1)
		}
		out[i] = lp
	}
	return out, nil
}

// Converged is true when there are no warnings at all
func (f *Fit) Converged() bool {
	return len(f.Warnings) == 0
}

// WriteTrace writes every retained draw as CSV: chain, iteration, the
// sampler statistics, then one column per parameter
func (f *Fit) WriteTrace(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{"chain", "iter", "lp", "accept_stat", "step_size", "tree_depth", "n_leapfrog", "divergent", "energy"}
	header = append(header, f.Names...)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "Could not write trace header")
	}

	ff := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	row := make([]string, len(header))
	for c, draws := range f.Draws {
		for i, d := range draws {
			st := f.Stats[c][i]
			row[0] = strconv.Itoa(f.Chains[c])
			row[1] = strconv.Itoa(i)
			row[2] = ff(st.LogP)
			row[3] = ff(st.AcceptStat)
			row[4] = ff(st.StepSize)
			row[5] = strconv.Itoa(st.TreeDepth)
			row[6] = strconv.Itoa(st.NumLeapfrog)
			row[7] = strconv.FormatBool(st.Divergent)
			row[8] = ff(st.Energy)
			for j, v := range d {
				row[9+j] = ff(v)
			}
			if err := cw.Write(row); err != nil {
				return errors.Wrap(err, "Could not write trace row")
			}
		}
	}

	cw.Flush()
	return errors.Wrap(cw.Error(), "Could not flush trace")
}
