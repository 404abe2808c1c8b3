package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func windowEnds(w *Windows) ([]int, []int) {
	var ends, sizes []int
	for i := 0; i < w.NumWarmup; i++ {
		if win := w.Observe([]float64{float64(i)}); win != nil {
			ends = append(ends, i)
			sizes = append(sizes, len(win))
		}
	}
	return ends, sizes
}

func TestWindowsDefault(t *testing.T) {
	assert := assert.New(t)

	w := NewWindows(1000, 1)
	assert.True(w.Enabled)
	assert.Equal(75, w.InitBuffer)
	assert.Equal(50, w.TermBuffer)

	ends, sizes := windowEnds(w)
	assert.Equal([]int{99, 149, 249, 449, 949}, ends)
	assert.Equal([]int{25, 50, 100, 200, 500}, sizes)
}

func TestWindowsDraws(t *testing.T) {
	assert := assert.New(t)

	w := NewWindows(1000, 1)
	var first [][]float64
	for i := 0; i < 100; i++ {
		if win := w.Observe([]float64{float64(i)}); win != nil {
			first = win
		}
	}
	// The first slow window covers iterations 75..99, oldest first
	assert.Len(first, 25)
	assert.Equal(75.0, first[0][0])
	assert.Equal(99.0, first[24][0])
}

func TestWindowsShortWarmup(t *testing.T) {
	assert := assert.New(t)

	w := NewWindows(100, 2)
	assert.True(w.Enabled)
	assert.Equal(15, w.InitBuffer)
	assert.Equal(10, w.TermBuffer)
	assert.Equal(75, w.BaseWindow)

	ends, sizes := windowEnds(w)
	assert.Equal([]int{89}, ends)
	assert.Equal([]int{75}, sizes)
}

func TestWindowsDisabled(t *testing.T) {
	assert := assert.New(t)

	w := NewWindows(19, 1)
	assert.False(w.Enabled)
	ends, _ := windowEnds(w)
	assert.Empty(ends)

	w = NewWindows(0, 1)
	assert.False(w.Enabled)
}

func TestWindowsDrift(t *testing.T) {
	assert := assert.New(t)

	// Draws that keep moving: the halves of each window differ
	w := NewWindows(1000, 1)
	for i := 0; i < 150; i++ {
		w.Observe([]float64{float64(i)})
	}
	// Window closing at 149 holds exactly 50 draws
	assert.True(w.LastDrift > 0.5)

	// Stationary alternating draws barely drift
	w = NewWindows(1000, 2)
	for i := 0; i < 150; i++ {
		v := float64(i % 2)
		w.Observe([]float64{v, 3})
	}
	assert.InDelta(0, w.LastDrift, 0.1)
}
