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

// Package lesdata loads the NetCDF output of large-eddy simulations and
// derives new variables from it for plotting.
//
// A Simulation lazily reads and caches the datasets found in a run
// folder. An Analysis, bound to one Simulation and one variable,
// filters that variable by cloud region, renames its size-bin
// coordinate to a canonical name and packs the tail bins together.
// Every derived variable is written back into the dataset the
// Simulation caches; Analyses built on the same Simulation share that
// dataset and see each other's results. Nothing here is safe for
// concurrent use.
package lesdata

import (
	"fmt"
	"sort"

	"github.com/ctessum/sparse"
)

// Version is the version of lesdata.
const Version = "0.1.0"

// TimeDim is the name of the time dimension and coordinate.
const TimeDim = "time"

// Variable is a named field on a set of named dimensions.
type Variable struct {
	Name       string
	Dims       []string               // dimension names, outermost first
	Attributes map[string]interface{} // NetCDF attributes
	Data       *sparse.DenseArray
}

// DimIndex returns the position of dim in v.Dims, or -1.
func (v *Variable) DimIndex(dim string) int {
	for i, d := range v.Dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// Units returns the units attribute of v, if there is one.
func (v *Variable) Units() string {
	u, _ := v.Attributes["units"].(string)
	return u
}

// Dataset is an in-memory table of variables, typically read from
// one NetCDF file. A variable whose only dimension has the same name as
// the variable is the coordinate of that dimension.
type Dataset struct {
	// Name is the path of the file the dataset was read from.
	Name string

	// Attributes holds the global attributes.
	Attributes map[string]interface{}

	names []string
	vars  map[string]*Variable
}

// NewDataset returns an empty dataset.
func NewDataset(name string) *Dataset {
	return &Dataset{
		Name:       name,
		Attributes: make(map[string]interface{}),
		vars:       make(map[string]*Variable),
	}
}

// AddVariable adds data for a new variable to d, replacing any
// existing variable with the same name.
func (d *Dataset) AddVariable(name string, dims []string, attrs map[string]interface{}, data *sparse.DenseArray) {
	if len(dims) != len(data.Shape) {
		panic(fmt.Errorf("lesdata: variable %s has %d dimensions but data is %d-d", name, len(dims), len(data.Shape)))
	}
	if attrs == nil {
		attrs = make(map[string]interface{})
	}
	if _, ok := d.vars[name]; !ok {
		d.names = append(d.names, name)
	}
	d.vars[name] = &Variable{
		Name:       name,
		Dims:       append([]string(nil), dims...),
		Attributes: attrs,
		Data:       data,
	}
}

// Var returns the named variable.
func (d *Dataset) Var(name string) (*Variable, error) {
	v, ok := d.vars[name]
	if !ok {
		return nil, fmt.Errorf("lesdata: %s in %s: %w", name, d.Name, ErrVariableNotFound)
	}
	return v, nil
}

// Has reports whether d holds a variable with the given name.
func (d *Dataset) Has(name string) bool {
	_, ok := d.vars[name]
	return ok
}

// Variables returns the variable names in the order they were added.
func (d *Dataset) Variables() []string {
	return append([]string(nil), d.names...)
}

// IsCoord reports whether name is a coordinate variable.
func (d *Dataset) IsCoord(name string) bool {
	v, ok := d.vars[name]
	return ok && len(v.Dims) == 1 && v.Dims[0] == name
}

// Coords returns the dimensions of the named variable that have
// coordinate variables, in dimension order.
func (d *Dataset) Coords(name string) ([]string, error) {
	v, err := d.Var(name)
	if err != nil {
		return nil, err
	}
	var coords []string
	for _, dim := range v.Dims {
		if d.IsCoord(dim) {
			coords = append(coords, dim)
		}
	}
	return coords, nil
}

// Values returns a copy of the values of a one-dimensional variable.
func (d *Dataset) Values(name string) ([]float64, error) {
	v, err := d.Var(name)
	if err != nil {
		return nil, err
	}
	if len(v.Dims) != 1 {
		return nil, fmt.Errorf("lesdata: %s in %s is %d-d, not 1-d", name, d.Name, len(v.Dims))
	}
	return append([]float64(nil), v.Data.Elements...), nil
}

// DimLen returns the length of dimension dim, taken from the first
// variable that uses it, or -1 if no variable does.
func (d *Dataset) DimLen(dim string) int {
	for _, name := range d.names {
		v := d.vars[name]
		if i := v.DimIndex(dim); i >= 0 {
			return v.Data.Shape[i]
		}
	}
	return -1
}

// Rename renames dimension oldDim of variable name to newDim. The
// coordinate of oldDim is copied to newDim if newDim has no coordinate
// yet; other variables on oldDim are left alone.
func (d *Dataset) Rename(name, oldDim, newDim string) error {
	v, err := d.Var(name)
	if err != nil {
		return err
	}
	i := v.DimIndex(oldDim)
	if i < 0 {
		return fmt.Errorf("lesdata: %s in %s has no dimension %s", name, d.Name, oldDim)
	}
	dims := append([]string(nil), v.Dims...)
	dims[i] = newDim
	v.Dims = dims
	if d.IsCoord(oldDim) && !d.Has(newDim) {
		c := d.vars[oldDim]
		d.AddVariable(newDim, []string{newDim}, copyAttributes(c.Attributes), c.Data.Copy())
	}
	return nil
}

// ScaleCoord multiplies every value of the named variable by factor,
// in place.
func (d *Dataset) ScaleCoord(name string, factor float64) error {
	v, err := d.Var(name)
	if err != nil {
		return err
	}
	for i := range v.Data.Elements {
		v.Data.Elements[i] *= factor
	}
	return nil
}

// IselTime returns a view of d narrowed to the time indices begin
// through end, inclusive. Variables without a time dimension are
// shared with d.
func (d *Dataset) IselTime(begin, end int) (*Dataset, error) {
	n := d.DimLen(TimeDim)
	if n < 0 {
		return nil, fmt.Errorf("lesdata: %s has no %s dimension", d.Name, TimeDim)
	}
	if begin > end {
		begin, end = end, begin
	}
	if begin < 0 || end >= n {
		return nil, fmt.Errorf("lesdata: time indices [%d, %d] outside of %s with %d times", begin, end, d.Name, n)
	}
	o := NewDataset(d.Name)
	o.Attributes = d.Attributes
	for _, name := range d.names {
		v := d.vars[name]
		axis := v.DimIndex(TimeDim)
		if axis < 0 {
			o.names = append(o.names, name)
			o.vars[name] = v
			continue
		}
		o.AddVariable(name, v.Dims, v.Attributes, sliceAxis(v.Data, axis, begin, end))
	}
	return o, nil
}

// Subset returns a dataset holding the named variables and the
// coordinates of their dimensions. Variables are shared with d.
func (d *Dataset) Subset(names ...string) (*Dataset, error) {
	o := NewDataset(d.Name)
	o.Attributes = d.Attributes
	keep := make(map[string]bool)
	for _, name := range names {
		v, err := d.Var(name)
		if err != nil {
			return nil, err
		}
		keep[name] = true
		for _, dim := range v.Dims {
			if d.IsCoord(dim) {
				keep[dim] = true
			}
		}
	}
	for _, name := range d.names {
		if keep[name] {
			o.names = append(o.names, name)
			o.vars[name] = d.vars[name]
		}
	}
	return o, nil
}

// dimensions returns the names and lengths of every dimension used in
// d, sorted by name. Conflicting lengths are an error.
func (d *Dataset) dimensions() ([]string, []int, error) {
	lengths := make(map[string]int)
	for _, name := range d.names {
		v := d.vars[name]
		for i, dim := range v.Dims {
			l := v.Data.Shape[i]
			if ll, ok := lengths[dim]; ok && ll != l {
				return nil, nil, fmt.Errorf("lesdata: dimension %s has length %d for %s but %d elsewhere", dim, l, name, ll)
			}
			lengths[dim] = l
		}
	}
	dims := make([]string, 0, len(lengths))
	for dim := range lengths {
		dims = append(dims, dim)
	}
	sort.Strings(dims)
	out := make([]int, len(dims))
	for i, dim := range dims {
		out[i] = lengths[dim]
	}
	return dims, out, nil
}

func copyAttributes(a map[string]interface{}) map[string]interface{} {
	o := make(map[string]interface{}, len(a))
	for k, v := range a {
		o[k] = v
	}
	return o
}
