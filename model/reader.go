package model

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Reader implementors instantiate a dataset from a byte stream
type Reader interface {
	ReadDataset(data []byte) (*Dataset, error)
}

// ReaderFor picks a reader from a file extension
func ReaderFor(filename string) (Reader, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json", ".yaml", ".yml":
		return RecordReader{}, nil
	case ".csv":
		return CSVReader{}, nil
	case ".txt", ".dat":
		return TextReader{}, nil
	}
	return nil, errors.Errorf("No dataset reader for file %s", filename)
}

// NewDatasetFromFile reads a dataset, choosing the reader by extension
func NewDatasetFromFile(filename string) (*Dataset, error) {
	r, err := ReaderFor(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not READ dataset from %s", filename)
	}

	return NewDatasetFromBuffer(r, data)
}

// NewDatasetFromBuffer creates a dataset from the given pre-read data
func NewDatasetFromBuffer(r Reader, data []byte) (*Dataset, error) {
	d, err := r.ReadDataset(data)
	if err != nil {
		return nil, errors.Wrapf(err, "Could not PARSE dataset")
	}

	if err = d.Check(); err != nil {
		return nil, errors.Wrapf(err, "Parsed dataset is not valid")
	}

	return d, nil
}

// RecordReader reads the {N_obs, N_subj, Y} record. JSON is a subset of
// YAML, so one decoder serves both. Y may be a flat list (one subject) or a
// list of rows.
type RecordReader struct{}

// ReadDataset implements the Reader interface
func (r RecordReader) ReadDataset(data []byte) (*Dataset, error) {
	var rec struct {
		NObs  int       `yaml:"N_obs"`
		NSubj int       `yaml:"N_subj"`
		Y     yaml.Node `yaml:"Y"`
	}
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "Invalid dataset record")
	}
	if rec.Y.Kind != yaml.SequenceNode {
		return nil, domainErrorf("Y must be a list")
	}

	nested := len(rec.Y.Content) > 0 && rec.Y.Content[0].Kind == yaml.SequenceNode
	if !nested {
		var flat []float64
		if err := rec.Y.Decode(&flat); err != nil {
			return nil, errors.Wrap(err, "Could not decode flat Y")
		}
		if rec.NSubj > 1 {
			return NewDatasetFlat(rec.NSubj, rec.NObs, flat)
		}
		if rec.NObs != 0 && rec.NObs != len(flat) {
			return nil, domainErrorf("N_obs is %d but Y has %d values", rec.NObs, len(flat))
		}
		return NewSingleSubject(flat)
	}

	var rows [][]float64
	if err := rec.Y.Decode(&rows); err != nil {
		return nil, errors.Wrap(err, "Could not decode Y rows")
	}
	return NewDataset(rec.NSubj, rec.NObs, rows)
}

// CSVReader reads either a wide table (one row per subject, one column per
// time point) or a long table with a header naming subject, time and y
// columns. A non-numeric first row in a wide table is treated as a header.
type CSVReader struct{}

// ReadDataset implements the Reader interface
func (r CSVReader) ReadDataset(data []byte) (*Dataset, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "Invalid CSV")
		}
		records = append(records, rec)
	}
	if len(records) < 1 {
		return nil, domainErrorf("No rows found in CSV")
	}

	if cols, ok := longHeader(records[0]); ok {
		return readLong(records[1:], cols)
	}

	if _, err := strconv.ParseFloat(strings.TrimSpace(records[0][0]), 64); err != nil {
		records = records[1:] // header
	}

	rows := make([][]float64, len(records))
	for i, rec := range records {
		rows[i] = make([]float64, len(rec))
		for j, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "Row %d column %d", i+1, j+1)
			}
			rows[i][j] = v
		}
	}
	if len(rows) < 1 {
		return nil, domainErrorf("No data rows found in CSV")
	}
	return NewDataset(len(rows), len(rows[0]), rows)
}

// longHeader finds the subject/time/y columns in a header row
func longHeader(header []string) ([3]int, bool) {
	cols := [3]int{-1, -1, -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "subject", "id":
			cols[0] = i
		case "time", "t":
			cols[1] = i
		case "y", "value":
			cols[2] = i
		}
	}
	return cols, cols[0] >= 0 && cols[1] >= 0 && cols[2] >= 0
}

func readLong(records [][]string, cols [3]int) (*Dataset, error) {
	type obs struct {
		time float64
		y    float64
	}
	bySubject := make(map[string][]obs)
	var order []string

	for i, rec := range records {
		for _, c := range cols {
			if c >= len(rec) {
				return nil, domainErrorf("Row %d has %d fields", i+2, len(rec))
			}
		}
		subj := strings.TrimSpace(rec[cols[0]])
		tm, err := strconv.ParseFloat(strings.TrimSpace(rec[cols[1]]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Row %d time", i+2)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(rec[cols[2]]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Row %d y", i+2)
		}
		if _, seen := bySubject[subj]; !seen {
			order = append(order, subj)
		}
		bySubject[subj] = append(bySubject[subj], obs{tm, y})
	}
	if len(order) < 1 {
		return nil, domainErrorf("No data rows found in CSV")
	}

	rows := make([][]float64, len(order))
	for i, subj := range order {
		series := bySubject[subj]
		sort.SliceStable(series, func(a, b int) bool { return series[a].time < series[b].time })
		rows[i] = make([]float64, len(series))
		for t, o := range series {
			rows[i][t] = o.y
		}
	}
	return NewDataset(len(rows), len(rows[0]), rows)
}

// TextReader reads whitespace-delimited tokens: N_subj, N_obs, then the
// N_subj*N_obs observations in row-major order. Lines starting with 'c' are
// comments.
type TextReader struct{}

// ReadDataset implements the Reader interface
func (r TextReader) ReadDataset(data []byte) (*Dataset, error) {
	lines := strings.Split(string(data), "\n")
	kept := lines[:0]
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if len(ln) < 1 || ln[0] == 'c' {
			continue
		}
		kept = append(kept, ln)
	}

	fr := NewFieldReader(strings.Join(kept, "\n"))
	nSubj, err := fr.ReadInt()
	if err != nil {
		return nil, errors.Wrap(err, "Error reading N_subj")
	}
	nObs, err := fr.ReadInt()
	if err != nil {
		return nil, errors.Wrap(err, "Error reading N_obs")
	}
	if nSubj < 1 || nObs < 1 {
		return nil, domainErrorf("Invalid shape %d x %d", nSubj, nObs)
	}

	flat := make([]float64, nSubj*nObs)
	for i := range flat {
		flat[i], err = fr.ReadFloat()
		if err != nil {
			return nil, errors.Wrapf(err, "Error reading observation %d of %d", i+1, len(flat))
		}
	}
	if _, err := fr.Read(); err != io.EOF {
		return nil, domainErrorf("Found more than %d observations", len(flat))
	}

	return NewDatasetFlat(nSubj, nObs, flat)
}

// FieldReader is just a simple reader for basic file formats.
type FieldReader struct {
	Pos    int
	Fields []string
}

// NewFieldReader constructs a new field reader around the given data
func NewFieldReader(data string) *FieldReader {
	return &FieldReader{0, strings.Fields(data)}
}

// Read returns the next space-delimited field/token
func (fr *FieldReader) Read() (string, error) {
	if fr.Pos >= len(fr.Fields) {
		return "", io.EOF
	}
	p := fr.Pos
	fr.Pos++
	return fr.Fields[p], nil
}

// ReadInt reads the next token as an int
func (fr *FieldReader) ReadInt() (int, error) {
	s, err := fr.Read()
	if err != nil {
		return 0, err
	}

	i, err := strconv.ParseInt(s, 10, 0)
	return int(i), err
}

// ReadFloat reads the next token as a float
func (fr *FieldReader) ReadFloat() (float64, error) {
	s, err := fr.Read()
	if err != nil {
		return 0, err
	}

	return strconv.ParseFloat(s, 64)
}
