package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/charges.report/internal/fsutil"
	"github.com/banshee-data/charges.report/internal/monitoring"
)

// LoadOptions controls parsing of the input table.
type LoadOptions struct {
	// Delimiter between fields. Zero means ','.
	Delimiter rune
}

// LoadFile opens path through fsys and parses it with Load.
func LoadFile(fsys fsutil.FileSystem, path string, opts LoadOptions) (*Dataset, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	ds, err := Load(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Load parses a delimited table with a header row. Only the known columns
// are kept; unknown columns are ignored. The required columns must be in
// the header.
func Load(r io.Reader, opts LoadOptions) (*Dataset, error) {
	cr := csv.NewReader(r)
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty input: no header row")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	var columns []string
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, known := numericColumns[name]; !known {
			if _, known = categoricalColumns[name]; !known {
				continue
			}
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q in header", name)
		}
		index[name] = i
		columns = append(columns, name)
	}
	for _, req := range RequiredColumns {
		if _, ok := index[req]; !ok {
			return nil, fmt.Errorf("%w: %q not in header", ErrMissingColumn, req)
		}
	}

	ds := &Dataset{Columns: columns}
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		obs, err := parseRecord(record, index)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ds.Rows = append(ds.Rows, obs)
	}

	monitoring.Logf("loaded %d observations (%d columns)", len(ds.Rows), len(columns))
	return ds, nil
}

func parseRecord(record []string, index map[string]int) (Observation, error) {
	obs := Observation{
		Age:      math.NaN(),
		BMI:      math.NaN(),
		Children: math.NaN(),
		Charges:  math.NaN(),
	}
	for col, i := range index {
		cell := strings.TrimSpace(record[i])
		if isMissing(cell) {
			continue
		}
		switch col {
		case ColAge, ColBMI, ColChildren, ColCharges:
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return obs, fmt.Errorf("column %q: invalid number %q", col, cell)
			}
			switch col {
			case ColAge:
				obs.Age = v
			case ColBMI:
				obs.BMI = v
			case ColChildren:
				obs.Children = v
			case ColCharges:
				obs.Charges = v
			}
		case ColSex:
			obs.Sex = cell
		case ColSmoker:
			obs.Smoker = cell
		case ColRegion:
			obs.Region = cell
		}
	}
	return obs, nil
}

func isMissing(cell string) bool {
	switch strings.ToLower(cell) {
	case "", "na", "nan", "null":
		return true
	}
	return false
}
