package diagnostics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CraigKelly/dsem/rand"
)

func TestRHatMixed(t *testing.T) {
	assert := assert.New(t)

	gen, err := rand.NewGenerator(3)
	assert.NoError(err)

	chains := iidChains(gen, 4, 1000, 0)
	assert.InDelta(1, RHat(chains), 0.01)
	assert.InDelta(1, SplitRHat(chains), 0.01)
	assert.InDelta(1, RankRHat(chains), 0.01)
}

func TestRHatUnmixed(t *testing.T) {
	assert := assert.New(t)

	gen, err := rand.NewGenerator(4)
	assert.NoError(err)

	// Each chain stuck around a different mean
	chains := iidChains(gen, 4, 500, 2)
	assert.True(RHat(chains) > 1.5)
	assert.True(RankRHat(chains) > 1.5)

	// Same location, different scale: only the folded part sees it
	scaled := iidChains(gen, 4, 2000, 0)
	for i := range scaled[0] {
		scaled[0][i] *= 4
	}
	assert.True(RankRHat(scaled) > 1.05)
	assert.True(RankRHat(scaled) > SplitRHat(RankNormalize(scaled)))

	// A single drifting chain is caught by splitting
	drift := make([]float64, 1000)
	for i := range drift {
		drift[i] = float64(i)/100 + gen.NormFloat64()
	}
	assert.True(SplitRHat([][]float64{drift}) > 1.5)
}

// Averaged over repetitions, R-hat of well-mixed chains moves toward 1 as
// the chains get longer
func TestRHatApproachesOne(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping repeated R-hat runs in short mode")
	}
	assert := assert.New(t)

	gen, err := rand.NewGenerator(5)
	assert.NoError(err)

	excess := func(n int) float64 {
		total := 0.0
		for rep := 0; rep < 50; rep++ {
			total += math.Abs(SplitRHat(iidChains(gen, 4, n, 0)) - 1)
		}
		return total / 50
	}

	short, medium, long := excess(20), excess(200), excess(2000)
	assert.True(short > medium, "%v <= %v", short, medium)
	assert.True(medium > long, "%v <= %v", medium, long)
	assert.True(long < 0.005)
}

func TestRankNormalize(t *testing.T) {
	assert := assert.New(t)

	chains := [][]float64{{3, 1, 2}, {2, 5, 4}}
	z := RankNormalize(chains)
	assert.Len(z, 2)
	assert.Len(z[1], 3)

	// Ties share a score and order is preserved
	assert.Equal(z[0][2], z[1][0])
	assert.True(z[0][1] < z[0][2])
	assert.True(z[0][2] < z[0][0])
	assert.True(z[0][0] < z[1][2])
	assert.True(z[1][2] < z[1][1])

	// Scores are symmetric about the middle rank
	assert.InDelta(0, z[0][1]+z[1][1], 1e-9)
}

func TestRHatDegenerate(t *testing.T) {
	assert := assert.New(t)

	assert.True(math.IsNaN(RHat([][]float64{{1, 2, 3}})))
	assert.True(math.IsNaN(RHat([][]float64{{1}, {2}})))
	assert.True(math.IsNaN(RHat([][]float64{{1, 2, 3}, {1, 2}})))
	assert.True(math.IsNaN(RHat([][]float64{{1, 1, 1}, {1, 1, 1}})))
	assert.True(math.IsNaN(RankRHat([][]float64{{1, 1, 1, 1}, {1, 1, 1, 1}})))
}
