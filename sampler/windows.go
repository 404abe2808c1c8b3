package sampler

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/CraigKelly/dsem/buffer"
)

// Default warmup window sizes: a fast initial buffer for step size only,
// doubling slow windows for the metric, and a fast terminal buffer.
const (
	DefaultInitBuffer = 75
	DefaultTermBuffer = 50
	DefaultBaseWindow = 25
)

// Windows schedules metric adaptation during warmup. Draws inside a slow
// window are collected; at the end of each window the metric is re-estimated
// and the next window is twice as long, with the last window stretched to
// meet the terminal buffer.
type Windows struct {
	NumWarmup  int
	InitBuffer int
	TermBuffer int
	BaseWindow int
	Enabled    bool

	// LastDrift is halfDrift of the most recently closed window
	LastDrift float64

	counter    int
	windowSize int
	nextWindow int
	draws      *buffer.CircularDraws
}

// NewWindows lays out the schedule for numWarmup iterations of a dim-sized
// parameter vector
func NewWindows(numWarmup int, dim int) *Windows {
	w := &Windows{
		NumWarmup:  numWarmup,
		InitBuffer: DefaultInitBuffer,
		TermBuffer: DefaultTermBuffer,
		BaseWindow: DefaultBaseWindow,
		Enabled:    numWarmup >= 20,
	}

	if w.Enabled && w.InitBuffer+w.BaseWindow+w.TermBuffer > numWarmup {
		w.InitBuffer = int(0.15 * float64(numWarmup))
		w.TermBuffer = int(0.1 * float64(numWarmup))
		w.BaseWindow = numWarmup - (w.InitBuffer + w.TermBuffer)
	}

	w.windowSize = w.BaseWindow
	w.nextWindow = w.InitBuffer + w.windowSize - 1
	w.draws = buffer.NewCircularDraws(w.windowSize, dim)
	return w
}

func (w *Windows) inWindow() bool {
	return w.Enabled &&
		w.counter >= w.InitBuffer &&
		w.counter < w.NumWarmup-w.TermBuffer &&
		w.counter != w.NumWarmup
}

func (w *Windows) endOfWindow() bool {
	return w.Enabled && w.counter == w.nextWindow && w.counter != w.NumWarmup
}

func (w *Windows) computeNext() {
	last := w.NumWarmup - w.TermBuffer - 1
	if w.nextWindow == last {
		return
	}

	w.windowSize *= 2
	w.nextWindow = w.counter + w.windowSize
	if w.nextWindow == last {
		return
	}

	// Boundary of the following window, not the window just computed
	if w.nextWindow+2*w.windowSize >= w.NumWarmup-w.TermBuffer {
		w.nextWindow = last
	}
}

// Observe records the draw from one warmup iteration. When a slow window
// closes it returns the window's draws (oldest first) for re-estimating the
// metric; otherwise it returns nil.
func (w *Windows) Observe(q []float64) [][]float64 {
	if w.inWindow() {
		w.draws.Add(q)
	}

	if !w.endOfWindow() {
		w.counter++
		return nil
	}

	w.computeNext()
	w.LastDrift = halfDrift(w.draws)
	rows := w.draws.Rows()
	window := make([][]float64, len(rows))
	for i, r := range rows {
		window[i] = append([]float64(nil), r...)
	}

	w.draws = buffer.NewCircularDraws(w.nextWindow-w.counter, w.draws.Dim)
	w.counter++
	return window
}

// halfDrift is the largest difference, in posterior standard deviations,
// between the means of the older and newer halves of a full window. A large
// value means the chain was still travelling when the window closed. It is
// NaN unless the window filled its buffer exactly.
func halfDrift(d *buffer.CircularDraws) float64 {
	if !d.Full() {
		return math.NaN()
	}

	first := make([]float64, d.Dim)
	second := make([]float64, d.Dim)
	n := 0
	for it := d.FirstHalf(); it.Next(); n++ {
		floats.Add(first, it.Value())
	}
	for it := d.SecondHalf(); it.Next(); {
		floats.Add(second, it.Value())
	}

	drift := 0.0
	var col []float64
	for j := range first {
		col = d.Column(j, col)
		sd := stat.StdDev(col, nil)
		if sd > 0 {
			drift = math.Max(drift, math.Abs(first[j]-second[j])/float64(n)/sd)
		}
	}
	return drift
}
