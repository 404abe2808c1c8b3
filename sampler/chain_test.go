package sampler

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/dsem/posterior"
	"github.com/CraigKelly/dsem/rand"
)

// gaussian is an independent normal target with the given means and sds
type gaussian struct {
	mean []float64
	sd   []float64
}

func (g *gaussian) Dim() int { return len(g.mean) }

func (g *gaussian) Evaluate(theta []float64, grad []float64) (float64, error) {
	lp := 0.0
	for i := range theta {
		z := (theta[i] - g.mean[i]) / g.sd[i]
		lp -= 0.5 * z * z
		if grad != nil {
			grad[i] = -z / g.sd[i]
		}
	}
	return lp, nil
}

// walled is a standard normal that reports a numerical error past |x| > 2
type walled struct{ gaussian }

func (w *walled) Evaluate(theta []float64, grad []float64) (float64, error) {
	for i, x := range theta {
		if math.Abs(x) > 2 {
			return math.Inf(-1), &posterior.NumericalError{LogP: math.Inf(-1), Index: i}
		}
	}
	return w.gaussian.Evaluate(theta, grad)
}

// broken fails hard after a number of evaluations
type broken struct {
	gaussian
	calls int
	limit int
}

func (b *broken) Evaluate(theta []float64, grad []float64) (float64, error) {
	b.calls++
	if b.calls > b.limit {
		return 0, errors.New("backend went away")
	}
	return b.gaussian.Evaluate(theta, grad)
}

func stdNormal(dim int) *gaussian {
	g := &gaussian{mean: make([]float64, dim), sd: make([]float64, dim)}
	for i := range g.sd {
		g.sd[i] = 1
	}
	return g
}

func column(draws [][]float64, j int) []float64 {
	col := make([]float64, len(draws))
	for i, d := range draws {
		col[i] = d[j]
	}
	return col
}

func runChain(t *testing.T, target Target, opts Options, seed int64) *Trace {
	gen, err := rand.NewChainGenerator(seed, 0)
	require.NoError(t, err)
	ch, err := NewChain(0, target, opts, gen)
	require.NoError(t, err)
	tr, err := ch.Run(context.Background())
	require.NoError(t, err)
	return tr
}

func TestPhaseString(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("warmup", Warmup.String())
	assert.Equal("sampling", Sampling.String())
	assert.Equal("done", Done.String())
	assert.Equal("unknown", Phase(42).String())
}

func TestNewChainErrors(t *testing.T) {
	assert := assert.New(t)
	gen, err := rand.NewGenerator(1)
	assert.NoError(err)

	good := DefaultOptions()
	target := stdNormal(2)

	_, err = NewChain(0, nil, good, gen)
	assert.Error(err)
	_, err = NewChain(0, target, good, nil)
	assert.Error(err)

	bad := good
	bad.Samples = 0
	_, err = NewChain(0, target, bad, gen)
	assert.Error(err)

	bad = good
	bad.TargetAccept = 1
	_, err = NewChain(0, target, bad, gen)
	assert.Error(err)

	bad = good
	bad.Algorithm = "gibbs"
	_, err = NewChain(0, target, bad, gen)
	assert.Error(err)

	bad = good
	bad.Metric = "riemann"
	_, err = NewChain(0, target, bad, gen)
	assert.Error(err)

	bad = good
	bad.InitStrategy = "prior"
	_, err = NewChain(0, target, bad, gen)
	assert.Error(err)

	bad = good
	bad.Init = []float64{1}
	_, err = NewChain(0, target, bad, gen)
	assert.Error(err)
}

func TestChainInit(t *testing.T) {
	assert := assert.New(t)
	gen, err := rand.NewGenerator(3)
	assert.NoError(err)

	opts := DefaultOptions()
	opts.InitStrategy = InitZero
	ch, err := NewChain(0, stdNormal(3), opts, gen)
	assert.NoError(err)
	assert.Equal([]float64{0, 0, 0}, ch.Position())

	opts.Init = []float64{0.5, -0.5, 1}
	ch, err = NewChain(0, stdNormal(3), opts, gen)
	assert.NoError(err)
	assert.Equal([]float64{0.5, -0.5, 1}, ch.Position())

	opts = DefaultOptions()
	opts.InitRadius = 1.5
	ch, err = NewChain(0, stdNormal(3), opts, gen)
	assert.NoError(err)
	for _, q := range ch.Position() {
		assert.True(q >= -1.5 && q <= 1.5)
	}

	// Nothing within radius 100 of zero is finite except a tiny sliver, so
	// jitter retries must give up
	opts.InitRadius = 100
	w := &walled{*stdNormal(40)}
	_, err = NewChain(0, w, opts, gen)
	assert.Error(err)
}

func TestChainStandardNormal(t *testing.T) {
	for _, alg := range []string{AlgorithmNUTS, AlgorithmHMC} {
		t.Run(alg, func(t *testing.T) {
			assert := assert.New(t)

			opts := DefaultOptions()
			opts.Algorithm = alg
			opts.LeapfrogSteps = 3
			opts.Warmup = 500
			opts.Samples = 2000

			tr := runChain(t, stdNormal(3), opts, 11)
			assert.Equal(Done, tr.Phase)
			assert.Len(tr.Draws, 2000)
			assert.Len(tr.Stats, 2000)
			assert.True(tr.StepSize > 0)
			assert.Len(tr.InvMetric, 3)
			assert.Equal(0, tr.Divergences)

			for j := 0; j < 3; j++ {
				mean, sd := stat.MeanStdDev(column(tr.Draws, j), nil)
				assert.InDelta(0, mean, 0.2)
				assert.InDelta(1, sd, 0.2)
			}

			accept := 0.0
			for _, st := range tr.Stats {
				accept += st.AcceptStat
				assert.Equal(tr.StepSize, st.StepSize)
			}
			assert.InDelta(0.8, accept/float64(len(tr.Stats)), 0.15)
		})
	}
}

func TestChainScaledDiagMetric(t *testing.T) {
	assert := assert.New(t)

	target := &gaussian{mean: []float64{3, -2}, sd: []float64{10, 0.1}}
	opts := DefaultOptions()
	opts.Samples = 1000

	tr := runChain(t, target, opts, 5)
	// Adapted inverse metric tracks the posterior variances
	assert.InEpsilon(100, tr.InvMetric[0], 0.5)
	assert.InEpsilon(0.01, tr.InvMetric[1], 0.5)

	assert.InDelta(3, stat.Mean(column(tr.Draws, 0), nil), 1.5)
	assert.InDelta(-2, stat.Mean(column(tr.Draws, 1), nil), 0.02)
}

// correlated is a bivariate normal with unit variances and correlation rho
type correlated struct{ rho float64 }

func (c *correlated) Dim() int { return 2 }

func (c *correlated) Evaluate(theta []float64, grad []float64) (float64, error) {
	x, y := theta[0], theta[1]
	k := 1 / (1 - c.rho*c.rho)
	lp := -0.5 * k * (x*x - 2*c.rho*x*y + y*y)
	if grad != nil {
		grad[0] = -k * (x - c.rho*y)
		grad[1] = -k * (y - c.rho*x)
	}
	return lp, nil
}

func TestChainDenseMetric(t *testing.T) {
	assert := assert.New(t)

	opts := DefaultOptions()
	opts.Metric = MetricDense
	opts.Samples = 2000

	tr := runChain(t, &correlated{rho: 0.95}, opts, 21)
	x, y := column(tr.Draws, 0), column(tr.Draws, 1)
	assert.InDelta(0.95, stat.Correlation(x, y, nil), 0.05)
	assert.InDelta(0, stat.Mean(x, nil), 0.25)
	assert.InDelta(1, stat.Variance(x, nil), 0.3)
}

func TestChainDivergences(t *testing.T) {
	assert := assert.New(t)

	opts := DefaultOptions()
	opts.Warmup = 200
	opts.Samples = 500
	opts.InitStrategy = InitZero

	tr := runChain(t, &walled{*stdNormal(2)}, opts, 9)
	assert.Len(tr.Draws, 500)
	assert.True(tr.Divergences+tr.WarmupDivergences > 0)

	divergent := 0
	for i, d := range tr.Draws {
		for _, x := range d {
			assert.True(math.Abs(x) <= 2)
		}
		if tr.Stats[i].Divergent {
			divergent++
		}
	}
	assert.Equal(tr.Divergences, divergent)
}

func TestChainFatalError(t *testing.T) {
	assert := assert.New(t)
	gen, err := rand.NewGenerator(1)
	assert.NoError(err)

	b := &broken{gaussian: *stdNormal(2), limit: 50}
	ch, err := NewChain(0, b, DefaultOptions(), gen)
	assert.NoError(err)

	tr, err := ch.Run(context.Background())
	assert.Nil(tr)
	assert.Error(err)
	assert.Contains(err.Error(), "backend went away")
}

func TestChainCancel(t *testing.T) {
	assert := assert.New(t)
	gen, err := rand.NewGenerator(1)
	assert.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	opts := DefaultOptions()
	opts.Progress = func(chain int, phase Phase, iter int, st Stats) {
		if phase == Warmup && iter == 10 {
			cancel()
		}
	}

	ch, err := NewChain(0, stdNormal(2), opts, gen)
	assert.NoError(err)
	tr, err := ch.Run(ctx)
	assert.Nil(tr)
	assert.Error(err)
	assert.Equal(context.Canceled, errors.Cause(err))
}

func TestChainDeterministic(t *testing.T) {
	assert := assert.New(t)

	opts := DefaultOptions()
	opts.Warmup = 150
	opts.Samples = 100

	a := runChain(t, &correlated{rho: 0.5}, opts, 77)
	b := runChain(t, &correlated{rho: 0.5}, opts, 77)
	assert.Equal(a.Draws, b.Draws)
	assert.Equal(a.StepSize, b.StepSize)

	c := runChain(t, &correlated{rho: 0.5}, opts, 78)
	assert.NotEqual(a.Draws, c.Draws)
}

func TestChainConstrainAndProgress(t *testing.T) {
	assert := assert.New(t)

	iters := map[Phase]int{}
	opts := DefaultOptions()
	opts.Warmup = 50
	opts.Samples = 40
	opts.Constrain = func(theta []float64, dst []float64) []float64 {
		if dst == nil {
			dst = make([]float64, len(theta))
		}
		for i, x := range theta {
			dst[i] = math.Exp(x)
		}
		return dst
	}
	opts.Progress = func(chain int, phase Phase, iter int, st Stats) {
		iters[phase]++
	}

	tr := runChain(t, stdNormal(2), opts, 4)
	assert.Equal(50, iters[Warmup])
	assert.Equal(40, iters[Sampling])
	for _, d := range tr.Draws {
		assert.True(d[0] > 0 && d[1] > 0)
	}
}
