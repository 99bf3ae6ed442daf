/*
Copyright © 2020 the lesdata authors.
This file is part of lesdata.

lesdata is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

lesdata is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with lesdata.  If not, see <http://www.gnu.org/licenses/>.
*/

package lesdata

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// OpenDataset reads every numeric variable of the NetCDF file at path
// into memory. The file is closed before OpenDataset returns. Values
// equal to a variable's _FillValue or missing_value attribute are
// replaced with NaN. Character variables are skipped.
func OpenDataset(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("lesdata: opening dataset: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("lesdata: opening dataset: %w", err)
	}
	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("lesdata: reading netcdf header of %s: %v", path, err)
	}
	nrec := int(ff.Header.NumRecs(fi.Size()))

	d := NewDataset(path)
	for _, a := range ff.Header.Attributes("") {
		d.Attributes[a] = ff.Header.GetAttribute("", a)
	}
	for _, v := range ff.Header.Variables() {
		data, err := readNCF(ff, v, nrec)
		if err != nil {
			return nil, fmt.Errorf("lesdata: reading %s: %v", path, err)
		}
		if data == nil {
			continue
		}
		attrs := make(map[string]interface{})
		for _, a := range ff.Header.Attributes(v) {
			attrs[a] = ff.Header.GetAttribute(v, a)
		}
		for _, a := range []string{"_FillValue", "missing_value"} {
			if fill, ok := firstFloat(attrs[a]); ok {
				for i, val := range data.Elements {
					if val == fill {
						data.Elements[i] = math.NaN()
					}
				}
			}
		}
		d.AddVariable(v, ff.Header.Dimensions(v), attrs, data)
	}
	return d, nil
}

// readNCF reads all of variable pol out of netcdf file ff, converted
// to float64. nrec is the number of records in the file. It returns
// nil data for character variables.
func readNCF(ff *cdf.File, pol string, nrec int) (*sparse.DenseArray, error) {
	if _, ok := ff.Header.ZeroValue(pol, 0).(string); ok {
		return nil, nil
	}
	dims := append([]int(nil), ff.Header.Lengths(pol)...)
	if ff.Header.IsRecordVariable(pol) {
		dims[0] = nrec
	}
	data := sparse.ZerosDense(dims...)
	if len(data.Elements) == 0 {
		return data, nil
	}
	start, end := make([]int, len(dims)), make([]int, len(dims))
	for i, l := range dims {
		end[i] = l - 1
	}
	r := ff.Reader(pol, start, end)
	buf := r.Zero(len(data.Elements))
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("read netcdf variable %s: %v", pol, err)
	}
	switch b := buf.(type) {
	case []float64:
		copy(data.Elements, b)
	case []float32:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	case []int32:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	case []int16:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	case []uint8:
		for i, val := range b {
			data.Elements[i] = float64(val)
		}
	default:
		return nil, fmt.Errorf("netcdf variable %s has unsupported type %T", pol, buf)
	}
	return data, nil
}

// firstFloat returns the first element of a numeric attribute value.
func firstFloat(a interface{}) (float64, bool) {
	switch v := a.(type) {
	case []float64:
		if len(v) > 0 {
			return v[0], true
		}
	case []float32:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case []int32:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case []int16:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	}
	return 0, false
}

// writableAttribute reports whether a can be stored as a netcdf
// attribute.
func writableAttribute(a interface{}) bool {
	switch a.(type) {
	case string, []float64, []float32, []int32, []int16, []uint8:
		return true
	}
	return false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Write writes d to netcdf file w. All variables are stored as
// doubles, so fill value attributes are dropped and missing values stay
// NaN.
func (d *Dataset) Write(w *os.File) error {
	dims, lengths, err := d.dimensions()
	if err != nil {
		return err
	}
	for i, l := range lengths {
		if l == 0 {
			return fmt.Errorf("lesdata: writing %s: dimension %s is empty", d.Name, dims[i])
		}
	}
	h := cdf.NewHeader(dims, lengths)
	for _, a := range sortedKeys(d.Attributes) {
		if val := d.Attributes[a]; writableAttribute(val) {
			h.AddAttribute("", a, val)
		}
	}
	for _, name := range d.names {
		v := d.vars[name]
		h.AddVariable(name, v.Dims, []float64{0})
		for _, a := range sortedKeys(v.Attributes) {
			if a == "_FillValue" || a == "missing_value" {
				continue
			}
			if val := v.Attributes[a]; writableAttribute(val) {
				h.AddAttribute(name, a, val)
			}
		}
	}
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return err
	}
	for _, name := range d.names {
		if err = writeNCF(f, name, d.vars[name].Data); err != nil {
			return fmt.Errorf("lesdata: writing variable %s to netcdf file: %v", name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}

func writeNCF(f *cdf.File, name string, data *sparse.DenseArray) error {
	// Check that data matches dimensions.
	n := 1
	for _, v := range data.Shape {
		n *= v
	}
	if len(data.Elements) != n {
		return fmt.Errorf("dims are %d but array length is %d", n, len(data.Elements))
	}
	w := f.Writer(name, nil, nil)
	nw, err := w.Write(data.Elements)
	if err == io.EOF && nw == n {
		// The writer reports EOF once it fills the variable.
		return nil
	}
	return err
}
