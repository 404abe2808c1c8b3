package cmd

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/CraigKelly/dsem/model"
	"github.com/CraigKelly/dsem/rand"
)

type simulateParams struct {
	subjects  int
	obs       int
	gamma     string
	tau       string
	seed      int64
	outFile   string
	truthFile string
}

func newSimulateCmd(sp *startupParams) *cobra.Command {
	p := &simulateParams{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Write a synthetic dataset drawn from known generating values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(sp, p)
		},
	}

	f := cmd.Flags()
	f.IntVar(&p.subjects, "subjects", 20, "Number of subjects")
	f.IntVar(&p.obs, "obs", 50, "Observations per subject")
	f.StringVar(&p.gamma, "gamma", "0,1,0.35", "Fixed effects: mean, log dispersion, autoregression")
	f.StringVar(&p.tau, "tau", "0.5,0.3,0.2", "Random-effect standard deviations")
	f.Int64VarP(&p.seed, "seed", "r", 1, "Random seed")
	f.StringVarP(&p.outFile, "out", "o", "", "Dataset file to write (.json or .yaml)")
	f.StringVar(&p.truthFile, "truth-out", "", "Also write the generating values here (for fit --truth)")
	cmd.MarkFlagRequired("out")

	return cmd
}

// parseTriple reads "a,b,c"
func parseTriple(s string) ([model.NumEffects]float64, error) {
	var out [model.NumEffects]float64
	parts := strings.Split(s, ",")
	if len(parts) != model.NumEffects {
		return out, errors.Errorf("Expected %d comma-separated values, got %q", model.NumEffects, s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, errors.Wrapf(err, "Bad value %q in %q", p, s)
		}
		out[i] = v
	}
	return out, nil
}

func runSimulate(sp *startupParams, p *simulateParams) error {
	var truth model.Truth
	var err error
	if truth.Gamma, err = parseTriple(p.gamma); err != nil {
		return errors.Wrap(err, "--gamma")
	}
	if truth.Tau, err = parseTriple(p.tau); err != nil {
		return errors.Wrap(err, "--tau")
	}

	gen, err := rand.NewGenerator(p.seed)
	if err != nil {
		return err
	}

	data, _, err := model.Simulate(gen, truth, p.subjects, p.obs)
	if err != nil {
		return err
	}

	if err := data.WriteFile(p.outFile); err != nil {
		return err
	}
	sp.out.Printf("Wrote %d subjects x %d observations to %s\n", data.NSubj, data.NObs, p.outFile)

	if len(p.truthFile) > 0 {
		if err := truth.WriteFile(p.truthFile); err != nil {
			return err
		}
		sp.out.Printf("Wrote generating values to %s\n", p.truthFile)
	}
	return nil
}
