package sampler

import (
	"context"
	"io"
	"log/slog"
	"math"

	"github.com/pkg/errors"

	"github.com/CraigKelly/dsem/rand"
)

// Algorithm names accepted in Options
const (
	AlgorithmNUTS = "nuts"
	AlgorithmHMC  = "hmc"
)

// Init strategies accepted in Options
const (
	InitZero   = "zero"
	InitJitter = "random-jitter"
)

// Phase is where a chain is in its life
type Phase int

// Chain phases: adapting, then sampling with frozen tuning, then finished
const (
	Warmup Phase = iota
	Sampling
	Done
)

func (p Phase) String() string {
	switch p {
	case Warmup:
		return "warmup"
	case Sampling:
		return "sampling"
	case Done:
		return "done"
	}
	return "unknown"
}

// ProgressFunc observes each completed iteration of a chain
type ProgressFunc func(chain int, phase Phase, iter int, st Stats)

// Options configure a single chain
type Options struct {
	Warmup        int
	Samples       int
	TargetAccept  float64
	Algorithm     string // AlgorithmNUTS or AlgorithmHMC
	MaxTreeDepth  int
	LeapfrogSteps int
	MaxDeltaH     float64
	Metric        string // MetricDiag or MetricDense
	InitStrategy  string // InitZero or InitJitter
	InitRadius    float64
	Init          []float64 // explicit unconstrained start; overrides InitStrategy

	// Constrain maps a draw before it is recorded. Nil records theta as is.
	Constrain func(theta []float64, dst []float64) []float64

	// Progress is called after every iteration. It must not block.
	Progress ProgressFunc

	Logger *slog.Logger
}

// DefaultOptions are the usual NUTS settings
func DefaultOptions() Options {
	return Options{
		Warmup:        1000,
		Samples:       1000,
		TargetAccept:  0.8,
		Algorithm:     AlgorithmNUTS,
		MaxTreeDepth:  10,
		LeapfrogSteps: 16,
		MaxDeltaH:     1000,
		Metric:        MetricDiag,
		InitStrategy:  InitJitter,
		InitRadius:    2,
	}
}

// Trace is everything a chain retains: one draw and one Stats per sampling
// iteration, plus the frozen tuning.
type Trace struct {
	Chain             int
	Draws             [][]float64
	Stats             []Stats
	StepSize          float64
	InvMetric         []float64 // diagonal of the adapted inverse metric
	Divergences       int       // sampling-phase divergences
	WarmupDivergences int
	Phase             Phase
}

// Chain is one independent Markov chain. It owns its state, generator and
// adaptation statistics; only the target is shared.
type Chain struct {
	ID     int
	target Target
	opts   Options
	gen    *rand.Generator
	metric Metric
	kernel Kernel
	ham    *hamiltonian
	state  *State
	eps    float64
	trace  *Trace
	log    *slog.Logger
}

// NewChain validates the options, picks a starting point and returns a
// chain ready to Run
func NewChain(id int, target Target, opts Options, gen *rand.Generator) (*Chain, error) {
	if target == nil {
		return nil, errors.New("No target supplied")
	}
	if gen == nil {
		return nil, errors.New("No random generator supplied")
	}
	if opts.Warmup < 0 || opts.Samples < 1 {
		return nil, errors.Errorf("Invalid iteration counts warmup=%d samples=%d", opts.Warmup, opts.Samples)
	}
	if !(opts.TargetAccept > 0 && opts.TargetAccept < 1) {
		return nil, errors.Errorf("Target acceptance %v must be in (0, 1)", opts.TargetAccept)
	}

	dim := target.Dim()
	metric, err := NewMetric(opts.Metric, dim)
	if err != nil {
		return nil, err
	}

	var kernel Kernel
	switch opts.Algorithm {
	case AlgorithmNUTS, "":
		kernel, err = NewNUTS(target, metric, opts.MaxTreeDepth, opts.MaxDeltaH)
	case AlgorithmHMC:
		kernel, err = NewStaticHMC(target, metric, opts.LeapfrogSteps, opts.MaxDeltaH)
	default:
		err = errors.Errorf("Unknown algorithm %q", opts.Algorithm)
	}
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Chain{
		ID:     id,
		target: target,
		opts:   opts,
		gen:    gen,
		metric: metric,
		kernel: kernel,
		ham:    newHamiltonian(target, metric),
		state:  NewState(dim),
		eps:    1,
		log:    logger.With("chain", id),
		trace: &Trace{
			Chain: id,
			Draws: make([][]float64, 0, opts.Samples),
			Stats: make([]Stats, 0, opts.Samples),
			Phase: Warmup,
		},
	}

	if err := c.initialize(); err != nil {
		return nil, errors.Wrapf(err, "Chain %d could not be initialized", id)
	}
	return c, nil
}

// maxInitTries bounds the search for a finite starting point
const maxInitTries = 100

func (c *Chain) initialize() error {
	z := c.state
	dim := len(z.Q)

	if c.opts.Init != nil {
		if len(c.opts.Init) != dim {
			return errors.Errorf("Init has %d values, expected %d", len(c.opts.Init), dim)
		}
		copy(z.Q, c.opts.Init)
		return errors.Wrap(c.ham.init(z), "Explicit init is not finite")
	}

	switch c.opts.InitStrategy {
	case InitZero:
		for i := range z.Q {
			z.Q[i] = 0
		}
		return errors.Wrap(c.ham.init(z), "Zero init is not finite")

	case InitJitter, "":
		radius := c.opts.InitRadius
		if radius <= 0 {
			radius = 2
		}
		var err error
		for try := 0; try < maxInitTries; try++ {
			for i := range z.Q {
				z.Q[i] = c.gen.Uniform(-radius, radius)
			}
			if err = c.ham.init(z); err == nil {
				return nil
			}
			if fatal(err) {
				return err
			}
		}
		return errors.Wrapf(err, "No finite init found in %d tries", maxInitTries)
	}

	return errors.Errorf("Unknown init strategy %q", c.opts.InitStrategy)
}

// Position returns a copy of the chain's current unconstrained position
func (c *Chain) Position() []float64 {
	return append([]float64(nil), c.state.Q...)
}

// Run performs warmup then sampling. The context is checked at every
// iteration boundary; a cancelled chain returns the context error and no
// trace.
func (c *Chain) Run(ctx context.Context) (*Trace, error) {
	var err error
	c.eps, err = c.ham.findStepSize(c.state, c.eps, c.gen)
	if err != nil {
		return nil, errors.Wrapf(err, "Chain %d", c.ID)
	}

	if err := c.warmup(ctx); err != nil {
		return nil, err
	}

	c.trace.Phase = Sampling
	c.trace.StepSize = c.eps
	c.trace.InvMetric = c.metric.InverseDiagonal()
	c.log.Debug("warmup complete", "step_size", c.eps, "warmup_divergences", c.trace.WarmupDivergences)

	for iter := 0; iter < c.opts.Samples; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "Chain %d cancelled during sampling", c.ID)
		}

		st, err := c.kernel.Transition(c.state, c.eps, c.gen)
		if err != nil {
			return nil, errors.Wrapf(err, "Chain %d sampling iteration %d", c.ID, iter)
		}
		if st.Divergent {
			c.trace.Divergences++
		}

		c.record(st)
		if c.opts.Progress != nil {
			c.opts.Progress(c.ID, Sampling, iter, st)
		}
	}

	c.trace.Phase = Done
	c.log.Info("chain finished", "draws", len(c.trace.Draws), "divergences", c.trace.Divergences, "step_size", c.eps)
	return c.trace, nil
}

func (c *Chain) warmup(ctx context.Context) error {
	if c.opts.Warmup < 1 {
		return nil
	}

	da := NewDualAveraging(c.opts.TargetAccept)
	da.Restart(c.eps)
	windows := NewWindows(c.opts.Warmup, len(c.state.Q))

	for iter := 0; iter < c.opts.Warmup; iter++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "Chain %d cancelled during warmup", c.ID)
		}

		st, err := c.kernel.Transition(c.state, c.eps, c.gen)
		if err != nil {
			return errors.Wrapf(err, "Chain %d warmup iteration %d", c.ID, iter)
		}
		if st.Divergent {
			c.trace.WarmupDivergences++
		}
		if c.opts.Progress != nil {
			c.opts.Progress(c.ID, Warmup, iter, st)
		}

		c.eps = da.Learn(st.AcceptStat)

		window := windows.Observe(c.state.Q)
		if window == nil {
			continue
		}

		if err := c.metric.Update(window); err != nil {
			// Keep the previous metric; the step size search below still runs
			c.log.Warn("metric update skipped", "iter", iter, "err", err)
		}
		c.eps, err = c.ham.findStepSize(c.state, c.eps, c.gen)
		if err != nil {
			return errors.Wrapf(err, "Chain %d warmup iteration %d", c.ID, iter)
		}
		da.Restart(c.eps)
		c.log.Debug("metric updated", "iter", iter, "window", len(window), "step_size", c.eps, "drift", windows.LastDrift)
	}

	c.eps = da.Final()
	if math.IsNaN(c.eps) || c.eps <= 0 || math.IsInf(c.eps, 0) {
		return errors.Errorf("Chain %d adapted to an unusable step size %v", c.ID, c.eps)
	}
	return nil
}

func (c *Chain) record(st Stats) {
	var draw []float64
	if c.opts.Constrain != nil {
		draw = c.opts.Constrain(c.state.Q, nil)
	} else {
		draw = append([]float64(nil), c.state.Q...)
	}
	c.trace.Draws = append(c.trace.Draws, draw)
	c.trace.Stats = append(c.trace.Stats, st)
}
