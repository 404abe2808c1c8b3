// Package config holds the options for a sampling run, read from YAML
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/CraigKelly/dsem/model"
	"github.com/CraigKelly/dsem/sampler"
)

// Enum values for the string options
const (
	InitZero   = sampler.InitZero
	InitJitter = sampler.InitJitter

	AlgorithmNUTS = sampler.AlgorithmNUTS
	AlgorithmHMC  = sampler.AlgorithmHMC

	MetricDiag  = sampler.MetricDiag
	MetricDense = sampler.MetricDense

	GradientAnalytic         = "analytic"
	GradientFiniteDifference = "finite-difference"
)

// Config is everything a fit needs besides the data
type Config struct {
	Chains             int     `yaml:"chains" json:"chains"`
	WarmupIterations   int     `yaml:"warmup_iterations" json:"warmup_iterations"`
	SamplingIterations int     `yaml:"sampling_iterations" json:"sampling_iterations"`
	TargetAcceptance   float64 `yaml:"target_acceptance" json:"target_acceptance"`
	Seed               int64   `yaml:"seed" json:"seed"`
	InitStrategy       string  `yaml:"init_strategy" json:"init_strategy"`
	InitRadius         float64 `yaml:"init_radius" json:"init_radius"`

	// InitValues is a natural-scale starting point for every chain, in
	// parameter order. It overrides InitStrategy.
	InitValues []float64 `yaml:"init_values,omitempty" json:"init_values,omitempty"`

	Algorithm     string  `yaml:"algorithm" json:"algorithm"`
	MaxTreeDepth  int     `yaml:"max_tree_depth" json:"max_tree_depth"`
	LeapfrogSteps int     `yaml:"leapfrog_steps" json:"leapfrog_steps"`
	Metric        string  `yaml:"metric" json:"metric"`
	MaxDeltaH     float64 `yaml:"max_delta_h" json:"max_delta_h"`
	Gradient      string  `yaml:"gradient" json:"gradient"`

	RHatThreshold float64 `yaml:"rhat_threshold" json:"rhat_threshold"`
	MinESSRatio   float64 `yaml:"min_ess_ratio" json:"min_ess_ratio"`

	Priors PriorsConfig `yaml:"priors" json:"priors"`
}

// PriorsConfig sets the scales of the hyperpriors
type PriorsConfig struct {
	GammaSD  float64 `yaml:"gamma_sd" json:"gamma_sd"`
	TauScale float64 `yaml:"tau_scale" json:"tau_scale"`
}

// Default returns the standard settings
func Default() *Config {
	opts := sampler.DefaultOptions()
	priors := model.DefaultPriors()
	return &Config{
		Chains:             4,
		WarmupIterations:   opts.Warmup,
		SamplingIterations: opts.Samples,
		TargetAcceptance:   opts.TargetAccept,
		Seed:               1,
		InitStrategy:       opts.InitStrategy,
		InitRadius:         opts.InitRadius,
		Algorithm:          opts.Algorithm,
		MaxTreeDepth:       opts.MaxTreeDepth,
		LeapfrogSteps:      opts.LeapfrogSteps,
		Metric:             opts.Metric,
		MaxDeltaH:          opts.MaxDeltaH,
		Gradient:           GradientAnalytic,
		RHatThreshold:      1.01,
		MinESSRatio:        0.1,
		Priors: PriorsConfig{
			GammaSD:  priors.GammaSD,
			TauScale: priors.TauScale,
		},
	}
}

// ModelPriors converts the prior scales for model.NewModel
func (c *Config) ModelPriors() model.Priors {
	return model.Priors{GammaSD: c.Priors.GammaSD, TauScale: c.Priors.TauScale}
}

// Parse reads YAML over the defaults, so a file only names what it changes
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "Failed to parse config")
	}
	return cfg, nil
}

// Load reads and parses a config file. The result is not validated: flags
// may still override it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to read config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "Config file %s", path)
	}
	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults when path is empty or
// does not exist
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Save writes the config as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "Failed to marshal config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0644), "Failed to write config")
}

// Validate fails on anything that would make a run meaningless
func (c *Config) Validate() error {
	if c.Chains < 1 {
		return errors.Errorf("chains must be >= 1, got %d", c.Chains)
	}
	if c.WarmupIterations < 0 {
		return errors.Errorf("warmup_iterations must be >= 0, got %d", c.WarmupIterations)
	}
	if c.SamplingIterations < 1 {
		return errors.Errorf("sampling_iterations must be >= 1, got %d", c.SamplingIterations)
	}
	if !(c.TargetAcceptance > 0 && c.TargetAcceptance < 1) {
		return errors.Errorf("target_acceptance must be in (0, 1), got %v", c.TargetAcceptance)
	}

	switch c.InitStrategy {
	case InitZero, InitJitter:
	default:
		return errors.Errorf("init_strategy must be %s or %s, got %q", InitZero, InitJitter, c.InitStrategy)
	}
	if c.InitStrategy == InitJitter && !(c.InitRadius > 0) {
		return errors.Errorf("init_radius must be positive, got %v", c.InitRadius)
	}

	switch c.Algorithm {
	case AlgorithmNUTS:
		if c.MaxTreeDepth < 1 {
			return errors.Errorf("max_tree_depth must be >= 1, got %d", c.MaxTreeDepth)
		}
	case AlgorithmHMC:
		if c.LeapfrogSteps < 1 {
			return errors.Errorf("leapfrog_steps must be >= 1, got %d", c.LeapfrogSteps)
		}
	default:
		return errors.Errorf("algorithm must be %s or %s, got %q", AlgorithmNUTS, AlgorithmHMC, c.Algorithm)
	}

	switch c.Metric {
	case MetricDiag, MetricDense:
	default:
		return errors.Errorf("metric must be %s or %s, got %q", MetricDiag, MetricDense, c.Metric)
	}

	switch c.Gradient {
	case GradientAnalytic, GradientFiniteDifference:
	default:
		return errors.Errorf("gradient must be %s or %s, got %q", GradientAnalytic, GradientFiniteDifference, c.Gradient)
	}

	if !(c.MaxDeltaH > 0) {
		return errors.Errorf("max_delta_h must be positive, got %v", c.MaxDeltaH)
	}
	if !(c.RHatThreshold > 1) {
		return errors.Errorf("rhat_threshold must be > 1, got %v", c.RHatThreshold)
	}
	if c.MinESSRatio < 0 || c.MinESSRatio > 1 {
		return errors.Errorf("min_ess_ratio must be in [0, 1], got %v", c.MinESSRatio)
	}
	if !(c.Priors.GammaSD > 0) {
		return errors.Errorf("priors.gamma_sd must be positive, got %v", c.Priors.GammaSD)
	}
	if !(c.Priors.TauScale > 0) {
		return errors.Errorf("priors.tau_scale must be positive, got %v", c.Priors.TauScale)
	}
	return nil
}

// TotalDraws is the number of retained draws across all chains
func (c *Config) TotalDraws() int {
	return c.Chains * c.SamplingIterations
}

// MinESS is the effective sample size below which a parameter is flagged:
// MinESSRatio of the total draws, but at least 100 per chain unless that is
// more than the run produced
func (c *Config) MinESS() float64 {
	total := float64(c.TotalDraws())
	min := c.MinESSRatio * total
	floor := 100 * float64(c.Chains)
	if floor > total {
		floor = total
	}
	if min < floor {
		min = floor
	}
	return min
}
