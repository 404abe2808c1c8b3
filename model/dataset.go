package model

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Dataset is the panel of observations: NSubj subjects each observed at NObs
// time points. Y is indexed [subject][time]. A Dataset is read-only once
// constructed and is safe to share between chains.
type Dataset struct {
	NSubj int
	NObs  int
	Y     [][]float64
}

// NewDataset validates and copies the given observations
func NewDataset(nSubj int, nObs int, y [][]float64) (*Dataset, error) {
	if nSubj < 1 {
		return nil, domainErrorf("N_subj must be >= 1, got %d", nSubj)
	}
	if nObs < 2 {
		return nil, domainErrorf("N_obs must be >= 2 so lag-1 terms exist, got %d", nObs)
	}
	if len(y) != nSubj {
		return nil, domainErrorf("Y has %d rows but N_subj is %d", len(y), nSubj)
	}

	d := &Dataset{
		NSubj: nSubj,
		NObs:  nObs,
		Y:     make([][]float64, nSubj),
	}
	for i, row := range y {
		if len(row) != nObs {
			return nil, domainErrorf("Y is ragged: subject %d has %d observations, expected %d", i+1, len(row), nObs)
		}
		d.Y[i] = make([]float64, nObs)
		copy(d.Y[i], row)
	}

	if err := d.Check(); err != nil {
		return nil, err
	}
	return d, nil
}

// NewSingleSubject is the single-subject variant: Y is one flat series
func NewSingleSubject(y []float64) (*Dataset, error) {
	return NewDataset(1, len(y), [][]float64{y})
}

// NewDatasetFlat reshapes a row-major flat slice of NSubj*NObs values
func NewDatasetFlat(nSubj int, nObs int, flat []float64) (*Dataset, error) {
	if nSubj < 1 || nObs < 1 || len(flat) != nSubj*nObs {
		return nil, domainErrorf("Cannot reshape %d values into %d x %d", len(flat), nSubj, nObs)
	}
	y := make([][]float64, nSubj)
	for i := range y {
		y[i] = flat[i*nObs : (i+1)*nObs]
	}
	return NewDataset(nSubj, nObs, y)
}

// Check returns an error if any dataset invariant is violated
func (d *Dataset) Check() error {
	if d.NSubj < 1 {
		return domainErrorf("N_subj must be >= 1, got %d", d.NSubj)
	}
	if d.NObs < 2 {
		return domainErrorf("N_obs must be >= 2, got %d", d.NObs)
	}
	if len(d.Y) != d.NSubj {
		return domainErrorf("Y has %d rows but N_subj is %d", len(d.Y), d.NSubj)
	}
	for i, row := range d.Y {
		if len(row) != d.NObs {
			return domainErrorf("Subject %d has %d observations, expected %d", i+1, len(row), d.NObs)
		}
		for t, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return domainErrorf("Observation Y[%d][%d] is not finite (%v)", i+1, t+1, v)
			}
		}
	}
	return nil
}

// datasetRecord is the wire shape shared with the data-preparation side
type datasetRecord struct {
	NObs  int         `json:"N_obs" yaml:"N_obs"`
	NSubj int         `json:"N_subj" yaml:"N_subj"`
	Y     interface{} `json:"Y" yaml:"Y"`
}

func (d *Dataset) record() datasetRecord {
	rec := datasetRecord{NObs: d.NObs, NSubj: d.NSubj, Y: d.Y}
	if d.NSubj == 1 {
		rec.Y = d.Y[0]
	}
	return rec
}

// MarshalJSON writes the {N_obs, N_subj, Y} record. A single subject is
// written with a flat Y.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.record())
}

// MarshalYAML is the YAML form of the same record
func (d *Dataset) MarshalYAML() (interface{}, error) {
	return d.record(), nil
}

// WriteFile saves the dataset as YAML for a .yaml/.yml name, else as JSON
func (d *Dataset) WriteFile(filename string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(d)
	default:
		data, err = json.MarshalIndent(d, "", "  ")
	}
	if err != nil {
		return errors.Wrap(err, "Could not encode dataset")
	}
	return errors.Wrapf(os.WriteFile(filename, data, 0644), "Could not WRITE dataset to %s", filename)
}
