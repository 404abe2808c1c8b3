package sampler

import "math"

// DualAveraging tunes the log step size so the mean acceptance statistic
// approaches Delta (Nesterov dual averaging with the usual NUTS constants).
type DualAveraging struct {
	Delta float64 // target acceptance
	Gamma float64
	Kappa float64
	T0    float64
	Mu    float64 // shrinkage point for log step size

	counter float64
	sBar    float64
	xBar    float64
}

// NewDualAveraging returns an adapter targeting the given acceptance rate
func NewDualAveraging(delta float64) *DualAveraging {
	return &DualAveraging{
		Delta: delta,
		Gamma: 0.05,
		Kappa: 0.75,
		T0:    10,
		Mu:    math.Log(10),
	}
}

// Restart forgets the averaging history, centring on log(10 * eps)
func (d *DualAveraging) Restart(eps float64) {
	d.counter = 0
	d.sBar = 0
	d.xBar = 0
	d.Mu = math.Log(10 * eps)
}

// Learn takes the acceptance statistic of the last transition and returns
// the next step size to try
func (d *DualAveraging) Learn(acceptStat float64) float64 {
	d.counter++
	if acceptStat > 1 {
		acceptStat = 1
	}
	if math.IsNaN(acceptStat) {
		acceptStat = 0
	}

	eta := 1.0 / (d.counter + d.T0)
	d.sBar = (1-eta)*d.sBar + eta*(d.Delta-acceptStat)

	x := d.Mu - d.sBar*math.Sqrt(d.counter)/d.Gamma
	xEta := math.Pow(d.counter, -d.Kappa)
	d.xBar = (1-xEta)*d.xBar + xEta*x

	return math.Exp(x)
}

// Final is the averaged step size frozen at the end of warmup
func (d *DualAveraging) Final() float64 {
	return math.Exp(d.xBar)
}
