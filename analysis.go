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
	"math"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
)

// Canonical size-bin coordinate names.
const (
	SizeBinA = "SizeBinA"
	SizeBinB = "SizeBinB"
)

// DefaultLimit is the mixing ratio [kg/kg] above which a layer counts as
// containing liquid or ice.
const DefaultLimit = 1e-6

// Profile and series variables used to locate the cloud.
const (
	heightDim    = "zt"   // vertical coordinate of the profile dataset [m]
	liquidVar    = "P_rl" // liquid water mixing ratio profile
	iceVar       = "P_ri" // ice mixing ratio profile
	cloudTopVar  = "zc"   // cloud top height in the series dataset [m]
	cloudBaseVar = "zb"   // cloud base height in the series dataset [m]
)

// Raw size-bin coordinate names, tried in order. Category A bins are
// aerosol, cloud and ice; category B adds precipitation.
var (
	sizeBinAAliases = []string{"aea", "cla", "ica"}
	sizeBinBAliases = []string{"aeb", "clb", "icb", "prb"}
)

// Analysis derives new variables from one variable of a Simulation.
// It works on the simulation's profile dataset, or on an auxiliary
// dataset if one is selected with WithAuxiliary. Results are written
// into that dataset under new names.
//
// At most one filter runs per Analysis. RenameSizeBinA, RenameSizeBinB
// and Pack act on the filtered variable.
type Analysis struct {
	Simulation *Simulation
	Variable   string

	// FilteredName is the name of the filtered variable.
	FilteredName string
	// SizeBinName is the canonical size-bin coordinate of the
	// filtered variable, once renamed.
	SizeBinName string
	// PackedName is the name of the packed variable.
	PackedName string
	// GroupedBinName is the coordinate of the packed variable.
	GroupedBinName string

	auxKey   string
	filtered bool
}

// NewAnalysis returns an Analysis of variable in sim.
func NewAnalysis(sim *Simulation, variable string) *Analysis {
	return &Analysis{Simulation: sim, Variable: variable}
}

// WithAuxiliary makes a work on the auxiliary dataset key instead of
// the profile dataset.
func (a *Analysis) WithAuxiliary(key string) *Analysis {
	a.auxKey = key
	return a
}

// Dataset returns the dataset a reads from and writes to.
func (a *Analysis) Dataset() (*Dataset, error) {
	ds, _, err := a.Simulation.working(a.auxKey)
	return ds, err
}

func (a *Analysis) log() logrus.FieldLogger {
	return a.Simulation.log().WithField("variable", a.Variable)
}

// FilterAboveCloud averages the variable vertically over the layers
// above cloud top and returns the name of the result.
func (a *Analysis) FilterAboveCloud() (string, error) {
	return a.filter("AboveCloud", func(ds *Dataset, v *Variable, zAxis int, hours bool) (*sparse.DenseArray, error) {
		zt, err := ds.Values(heightDim)
		if err != nil {
			return nil, err
		}
		zc, err := a.seriesAtProfileTimes(ds, hours, cloudTopVar)
		if err != nil {
			return nil, err
		}
		tAxis, err := timeAxis(v)
		if err != nil {
			return nil, err
		}
		return meanAxis(v.Data, zAxis, func(idx []int) bool {
			return zt[idx[zAxis]] > zc[idx[tAxis]]
		}), nil
	})
}

// FilterBelowCloud averages the variable vertically over the layers
// below cloud base whose liquid mixing ratio is below limit.
func (a *Analysis) FilterBelowCloud(limit float64) (string, error) {
	return a.filter("BelowCloud", func(ds *Dataset, v *Variable, zAxis int, hours bool) (*sparse.DenseArray, error) {
		zt, err := ds.Values(heightDim)
		if err != nil {
			return nil, err
		}
		zb, err := a.seriesAtProfileTimes(ds, hours, cloudBaseVar)
		if err != nil {
			return nil, err
		}
		rl, err := profileField(ds, liquidVar)
		if err != nil {
			return nil, err
		}
		tAxis, err := timeAxis(v)
		if err != nil {
			return nil, err
		}
		return meanAxis(v.Data, zAxis, func(idx []int) bool {
			t, k := idx[tAxis], idx[zAxis]
			return rl(t, k) < limit && zt[k] < zb[t]
		}), nil
	})
}

// FilterInCloud averages the variable vertically over the layers whose
// liquid and ice mixing ratios both exceed limit.
func (a *Analysis) FilterInCloud(limit float64) (string, error) {
	return a.filter("InCloud", func(ds *Dataset, v *Variable, zAxis int, _ bool) (*sparse.DenseArray, error) {
		rl, err := profileField(ds, liquidVar)
		if err != nil {
			return nil, err
		}
		ri, err := profileField(ds, iceVar)
		if err != nil {
			return nil, err
		}
		tAxis, err := timeAxis(v)
		if err != nil {
			return nil, err
		}
		return meanAxis(v.Data, zAxis, func(idx []int) bool {
			t, k := idx[tAxis], idx[zAxis]
			return rl(t, k) > limit && ri(t, k) > limit
		}), nil
	})
}

// FilterAtHeight selects the variable at the layer nearest to height.
func (a *Analysis) FilterAtHeight(height float64) (string, error) {
	return a.filter("AtHeight", func(ds *Dataset, v *Variable, zAxis int, _ bool) (*sparse.DenseArray, error) {
		zt, err := ds.Values(heightDim)
		if err != nil {
			return nil, err
		}
		k := NearestIndex(zt, height)
		if k < 0 {
			return nil, fmt.Errorf("lesdata: empty %s coordinate: %w", heightDim, ErrInsufficientData)
		}
		return takeAxis(v.Data, zAxis, k), nil
	})
}

type filterFunc func(ds *Dataset, v *Variable, zAxis int, hours bool) (*sparse.DenseArray, error)

// filter runs f once and stores its result as Variable_filteredBy<mode>.
// Later calls only log a warning.
func (a *Analysis) filter(mode string, f filterFunc) (string, error) {
	if a.filtered {
		a.log().WithFields(logrus.Fields{
			"filtered": a.FilteredName,
			"mode":     mode,
		}).Warn(ErrAlreadyFiltered)
		return a.FilteredName, nil
	}
	ds, hours, err := a.Simulation.working(a.auxKey)
	if err != nil {
		return "", err
	}
	v, err := ds.Var(a.Variable)
	if err != nil {
		return "", err
	}
	zAxis := v.DimIndex(heightDim)
	if zAxis < 0 {
		return "", fmt.Errorf("lesdata: filtering %s of simulation %s: no %s dimension", a.Variable, a.Simulation.Label, heightDim)
	}
	data, err := f(ds, v, zAxis, hours)
	if err != nil {
		return "", fmt.Errorf("lesdata: filtering %s of simulation %s by %s: %w", a.Variable, a.Simulation.Label, mode, err)
	}
	name := a.Variable + "_filteredBy" + mode
	ds.AddVariable(name, dropDim(v.Dims, zAxis), copyAttributes(v.Attributes), data)
	a.FilteredName = name
	a.filtered = true
	a.log().WithField("filtered", name).Debug("filtered variable")
	return name, nil
}

// seriesAtProfileTimes returns series variable name at the series time
// nearest to each time of the profile dataset ps.
func (a *Analysis) seriesAtProfileTimes(ps *Dataset, psHours bool, name string) ([]float64, error) {
	ts, err := a.Simulation.Series()
	if err != nil {
		return nil, err
	}
	tsTime, err := timeSeconds(ts, a.Simulation.slots[Series].hours)
	if err != nil {
		return nil, err
	}
	psTime, err := timeSeconds(ps, psHours)
	if err != nil {
		return nil, err
	}
	vals, err := ts.Values(name)
	if err != nil {
		return nil, err
	}
	if len(vals) != len(tsTime) {
		return nil, fmt.Errorf("lesdata: series variable %s has %d values for %d times", name, len(vals), len(tsTime))
	}
	out := make([]float64, len(psTime))
	for i, t := range psTime {
		j := NearestIndex(tsTime, t)
		if j < 0 {
			return nil, fmt.Errorf("lesdata: no series time matches profile time %g for %s: %w", t, name, ErrInsufficientData)
		}
		out[i] = vals[j]
	}
	return out, nil
}

// profileField returns an accessor by time and height index for a
// (time, zt) profile variable.
func profileField(ds *Dataset, name string) (func(t, k int) float64, error) {
	v, err := ds.Var(name)
	if err != nil {
		return nil, err
	}
	ti, zi := v.DimIndex(TimeDim), v.DimIndex(heightDim)
	if len(v.Dims) != 2 || ti < 0 || zi < 0 {
		return nil, fmt.Errorf("lesdata: %s has dimensions %v, want (%s, %s)", name, v.Dims, TimeDim, heightDim)
	}
	idx := make([]int, 2)
	return func(t, k int) float64 {
		idx[ti], idx[zi] = t, k
		return v.Data.Get(idx...)
	}, nil
}

func timeAxis(v *Variable) (int, error) {
	i := v.DimIndex(TimeDim)
	if i < 0 {
		return -1, fmt.Errorf("lesdata: %s has no %s dimension", v.Name, TimeDim)
	}
	return i, nil
}

func dropDim(dims []string, axis int) []string {
	o := make([]string, 0, len(dims)-1)
	o = append(o, dims[:axis]...)
	return append(o, dims[axis+1:]...)
}

// RenameSizeBinA renames the category A size-bin coordinate of the
// filtered variable (aea, cla or ica, in that order) to SizeBinA.
func (a *Analysis) RenameSizeBinA() error {
	return a.renameSizeBin(SizeBinA, sizeBinAAliases)
}

// RenameSizeBinB renames the category B size-bin coordinate of the
// filtered variable (aeb, clb, icb or prb, in that order) to SizeBinB.
func (a *Analysis) RenameSizeBinB() error {
	return a.renameSizeBin(SizeBinB, sizeBinBAliases)
}

func (a *Analysis) renameSizeBin(canonical string, aliases []string) error {
	if !a.filtered {
		return fmt.Errorf("lesdata: renaming size bins of %s in simulation %s: %w", a.Variable, a.Simulation.Label, ErrNotFiltered)
	}
	ds, err := a.Dataset()
	if err != nil {
		return err
	}
	v, err := ds.Var(a.FilteredName)
	if err != nil {
		return err
	}
	if v.DimIndex(canonical) >= 0 {
		a.SizeBinName = canonical
		return nil
	}
	for _, alias := range aliases {
		if v.DimIndex(alias) < 0 {
			continue
		}
		if err := checkSameCoord(ds, alias, canonical); err != nil {
			return err
		}
		if err := ds.Rename(a.FilteredName, alias, canonical); err != nil {
			return err
		}
		a.SizeBinName = canonical
		return nil
	}
	return fmt.Errorf("lesdata: variable %s of simulation %s has dimensions %v, none of %v for %s: %w",
		a.FilteredName, a.Simulation.Label, v.Dims, aliases, canonical, ErrNoMatchingCoordinate)
}

// checkSameCoord makes sure an existing canonical coordinate agrees
// with the raw coordinate about to be renamed onto it.
func checkSameCoord(ds *Dataset, raw, canonical string) error {
	if !ds.IsCoord(raw) || !ds.IsCoord(canonical) {
		return nil
	}
	r, _ := ds.Values(raw)
	c, _ := ds.Values(canonical)
	if len(r) != len(c) {
		return fmt.Errorf("lesdata: coordinate %s has %d bins but %s has %d", raw, len(r), canonical, len(c))
	}
	for i := range r {
		if r[i] != c[i] {
			return fmt.Errorf("lesdata: coordinate %s differs from %s at bin %d", raw, canonical, i)
		}
	}
	return nil
}

// Pack keeps the first packing size bins of the filtered, renamed
// variable and sums all later bins into one tail bin, giving
// packing+1 bins. It returns the name of the packed variable.
// packing must be at least 0 and less than the number of bins minus 1.
func (a *Analysis) Pack(packing int) (string, error) {
	if !a.filtered {
		return "", fmt.Errorf("lesdata: packing %s in simulation %s: %w", a.Variable, a.Simulation.Label, ErrNotFiltered)
	}
	if a.SizeBinName == "" {
		return "", fmt.Errorf("lesdata: packing %s in simulation %s: size bin coordinate has not been renamed", a.FilteredName, a.Simulation.Label)
	}
	ds, err := a.Dataset()
	if err != nil {
		return "", err
	}
	v, err := ds.Var(a.FilteredName)
	if err != nil {
		return "", err
	}
	axis := v.DimIndex(a.SizeBinName)
	if axis < 0 {
		return "", fmt.Errorf("lesdata: %s has no dimension %s", a.FilteredName, a.SizeBinName)
	}
	centers, err := ds.Values(a.SizeBinName)
	if err != nil {
		return "", err
	}
	edges, err := PackedBinEdges(centers, packing)
	if err != nil {
		return "", fmt.Errorf("lesdata: packing %s in simulation %s: %w", a.FilteredName, a.Simulation.Label, err)
	}
	group := make([]int, len(centers))
	for j, c := range centers {
		group[j] = binIndex(edges, c)
	}
	ngroups := len(edges) - 1

	grouped := fmt.Sprintf("%s_packed%d", a.SizeBinName, packing)
	lower := sparse.ZerosDense(ngroups)
	copy(lower.Elements, edges[:ngroups])
	ds.AddVariable(grouped, []string{grouped}, map[string]interface{}{
		"long_name": "lower edge of packed " + a.SizeBinName + " bin",
		"edges":     append([]float64(nil), edges...),
	}, lower)

	dims := append([]string(nil), v.Dims...)
	dims[axis] = grouped
	name := a.FilteredName + "_packed"
	ds.AddVariable(name, dims, copyAttributes(v.Attributes), groupSumAxis(v.Data, axis, group, ngroups))

	a.PackedName, a.GroupedBinName = name, grouped
	return name, nil
}

// Proportions writes the element-wise sum of the equally shaped
// variables parts under total, and the share of each part in that sum
// under "<part>_fraction". Shares of a zero total are NaN.
func Proportions(ds *Dataset, total string, parts ...string) error {
	if len(parts) == 0 {
		return fmt.Errorf("lesdata: proportions of no variables: %w", ErrInsufficientData)
	}
	vars := make([]*Variable, len(parts))
	for i, p := range parts {
		v, err := ds.Var(p)
		if err != nil {
			return err
		}
		if i > 0 && !sameDims(v, vars[0]) {
			return fmt.Errorf("lesdata: proportions: %s has dimensions %v but %s has %v", p, v.Dims, parts[0], vars[0].Dims)
		}
		vars[i] = v
	}
	sum := sparse.ZerosDense(vars[0].Data.Shape...)
	for _, v := range vars {
		sum.AddDense(v.Data)
	}
	ds.AddVariable(total, vars[0].Dims, copyAttributes(vars[0].Attributes), sum)
	for _, v := range vars {
		frac := sparse.ZerosDense(sum.Shape...)
		for i, s := range sum.Elements {
			if s == 0 {
				frac.Elements[i] = math.NaN()
				continue
			}
			frac.Elements[i] = v.Data.Elements[i] / s
		}
		ds.AddVariable(v.Name+"_fraction", v.Dims, map[string]interface{}{"units": "1"}, frac)
	}
	return nil
}

func sameDims(a, b *Variable) bool {
	if len(a.Dims) != len(b.Dims) {
		return false
	}
	for i := range a.Dims {
		if a.Dims[i] != b.Dims[i] || a.Data.Shape[i] != b.Data.Shape[i] {
			return false
		}
	}
	return true
}
