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

package lesutil

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/lesdata"
)

// DeriveOptions holds the settings of one run of the derived-variable
// pipeline.
type DeriveOptions struct {
	// Variables are the variables to derive new variables from.
	Variables []string

	// Mode is the vertical filter: InCloud, AboveCloud, BelowCloud or
	// AtHeight.
	Mode string

	// Limit is the mixing ratio threshold of the cloud filters [kg/kg].
	Limit float64

	// Height is the height of the AtHeight filter [m].
	Height float64

	// SizeBin is the size bin category, "A" or "B". Renaming and
	// packing are skipped if it is empty.
	SizeBin string

	// Packing is the number of leading size bins to keep separate.
	// Packing is skipped if it is negative.
	Packing int

	// Total, if not empty, is the name under which the sum of the
	// derived variables is stored.
	Total string

	// Hours converts time coordinates to hours before slicing.
	Hours bool

	// TimeStart and TimeEnd bound the times kept. Slicing is skipped
	// if TimeStart is negative.
	TimeStart, TimeEnd float64

	// Auxiliary maps keys to auxiliary file names.
	Auxiliary map[string]string

	// Target is the auxiliary dataset to work on, or "" for the
	// profile dataset.
	Target string
}

// Derive runs the derived-variable pipeline on sim and returns the
// working dataset along with the names of the final derived variables.
func Derive(sim *lesdata.Simulation, o *DeriveOptions) (*lesdata.Dataset, []string, error) {
	if len(o.Variables) == 0 {
		return nil, nil, fmt.Errorf("lesdata: there are no variables to derive. Please fill in the Variable configuration and try again")
	}
	filter, err := filterFunc(o)
	if err != nil {
		return nil, nil, err
	}
	switch strings.ToUpper(o.SizeBin) {
	case "", "A", "B":
	default:
		return nil, nil, fmt.Errorf("lesdata: the SizeBin variable needs to be set to A, B or nothing, "+
			"but is currently set to `%s`", o.SizeBin)
	}
	if err = setAuxiliary(sim, o.Auxiliary); err != nil {
		return nil, nil, err
	}

	// Read the datasets before converting or slicing them.
	if o.Target == "" {
		if _, err = sim.Profile(); err != nil {
			return nil, nil, err
		}
	}
	if o.Mode == "AboveCloud" || o.Mode == "BelowCloud" {
		if _, err = sim.Series(); err != nil {
			return nil, nil, err
		}
	}
	if o.Hours {
		if err = sim.NormalizeTimeToHours(); err != nil {
			return nil, nil, err
		}
	}
	if o.TimeStart >= 0 {
		for _, k := range []lesdata.Kind{lesdata.Profile, lesdata.Series} {
			if !sim.Loaded(k) {
				continue
			}
			if err = sim.SliceByTime(k, o.TimeStart, o.TimeEnd); err != nil {
				return nil, nil, err
			}
		}
		if err = sim.SliceAuxiliaryByTime(o.TimeStart, o.TimeEnd); err != nil {
			return nil, nil, err
		}
	}

	var names []string
	var ds *lesdata.Dataset
	for _, v := range o.Variables {
		a := lesdata.NewAnalysis(sim, v)
		if o.Target != "" {
			a.WithAuxiliary(o.Target)
		}
		name, err := filter(a)
		if err != nil {
			return nil, nil, err
		}
		if o.SizeBin != "" {
			switch strings.ToUpper(o.SizeBin) {
			case "A":
				err = a.RenameSizeBinA()
			case "B":
				err = a.RenameSizeBinB()
			}
			if err != nil {
				return nil, nil, err
			}
			if o.Packing >= 0 {
				if name, err = a.Pack(o.Packing); err != nil {
					return nil, nil, err
				}
			}
		}
		names = append(names, name)
		if ds, err = a.Dataset(); err != nil {
			return nil, nil, err
		}
	}
	if o.Total != "" && len(names) > 1 {
		if err = lesdata.Proportions(ds, o.Total, names...); err != nil {
			return nil, nil, err
		}
		names = append(names, o.Total)
	}
	sim.Log.WithFields(logrus.Fields{
		"simulation": sim.Label,
		"mode":       o.Mode,
	}).Debugf("derived %v", names)
	return ds, names, nil
}

// filterFunc returns the filter selected by o.Mode.
func filterFunc(o *DeriveOptions) (func(*lesdata.Analysis) (string, error), error) {
	switch o.Mode {
	case "InCloud":
		return func(a *lesdata.Analysis) (string, error) { return a.FilterInCloud(o.Limit) }, nil
	case "AboveCloud":
		return func(a *lesdata.Analysis) (string, error) { return a.FilterAboveCloud() }, nil
	case "BelowCloud":
		return func(a *lesdata.Analysis) (string, error) { return a.FilterBelowCloud(o.Limit) }, nil
	case "AtHeight":
		return func(a *lesdata.Analysis) (string, error) { return a.FilterAtHeight(o.Height) }, nil
	}
	return nil, fmt.Errorf("lesdata: the Mode variable needs to be set to InCloud, AboveCloud, "+
		"BelowCloud or AtHeight, but is currently set to `%s`", o.Mode)
}

// Info writes the resolved datasets of sim and their variables to w.
// Datasets that cannot be found are reported, not returned as errors.
func Info(w io.Writer, sim *lesdata.Simulation, auxiliary []string) error {
	fmt.Fprintf(w, "Simulation %s (%s)\n", sim.Label, sim.Folder)
	for _, k := range []lesdata.Kind{lesdata.Grid, lesdata.Profile, lesdata.Series} {
		ds, err := sim.Dataset(k)
		if err != nil {
			fmt.Fprintf(w, "\n%s: %v\n", k, err)
			continue
		}
		if err := printDataset(w, k.String(), ds); err != nil {
			return err
		}
	}
	for _, key := range auxiliary {
		ds, err := sim.Auxiliary(key)
		if err != nil {
			return err
		}
		if err := printDataset(w, key, ds); err != nil {
			return err
		}
	}
	return nil
}

func printDataset(w io.Writer, title string, ds *lesdata.Dataset) error {
	fmt.Fprintf(w, "\n%s: %s\n", title, ds.Name)
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, name := range ds.Variables() {
		v, err := ds.Var(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "  %s\t(%s)\t%v\t%s\n", name, strings.Join(v.Dims, ", "), v.Data.Shape, v.Units())
	}
	return tw.Flush()
}
