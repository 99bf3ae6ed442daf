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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/lesdata"
	"github.com/spf13/cast"
)

// SimulationEntry describes one simulation in a registry file.
type SimulationEntry struct {
	ID        string
	Folder    string
	Label     string
	Color     string
	Zorder    int
	LineWidth *float64
}

// Registry lists the available simulations. It is read from a TOML
// file holding one [[Simulation]] table per simulation.
type Registry struct {
	Simulation []SimulationEntry

	// dir is the directory relative folders are resolved against.
	dir string
}

// ReadRegistry reads the registry file at path.
func ReadRegistry(path string) (*Registry, error) {
	path = os.ExpandEnv(path)
	r := new(Registry)
	if _, err := toml.DecodeFile(path, r); err != nil {
		return nil, fmt.Errorf("lesdata: reading simulation registry: %v", err)
	}
	r.dir = filepath.Dir(path)
	seen := make(map[string]bool)
	for _, e := range r.Simulation {
		if e.ID == "" {
			return nil, fmt.Errorf("lesdata: simulation registry %s has an entry without an ID", path)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("lesdata: simulation registry %s lists %s more than once", path, e.ID)
		}
		seen[e.ID] = true
	}
	return r, nil
}

// New returns the simulation with the given ID.
func (r *Registry) New(id string) (*lesdata.Simulation, error) {
	for _, e := range r.Simulation {
		if e.ID != id {
			continue
		}
		folder := os.ExpandEnv(e.Folder)
		if !filepath.IsAbs(folder) {
			folder = filepath.Join(r.dir, folder)
		}
		label := e.Label
		if label == "" {
			label = e.ID
		}
		s := lesdata.NewSimulation(folder, label, e.Color)
		if e.Zorder != 0 {
			s.Zorder = e.Zorder
		}
		s.LineWidth = e.LineWidth
		return s, nil
	}
	return nil, fmt.Errorf("lesdata: no simulation %q in the registry", id)
}

// loadSimulation returns the simulation chosen in cfg.
func loadSimulation(cfg *viper.Viper) (*lesdata.Simulation, error) {
	id := cfg.GetString("Simulation")
	if id == "" {
		return nil, fmt.Errorf("lesdata: you need to choose a simulation with the Simulation configuration variable")
	}
	r, err := ReadRegistry(cfg.GetString("Simulations"))
	if err != nil {
		return nil, err
	}
	return r.New(id)
}

// setAuxiliary reads the auxiliary datasets of sim.
func setAuxiliary(sim *lesdata.Simulation, aux map[string]string) error {
	for _, key := range sortedKeys(aux) {
		if err := sim.SetAuxiliary(key, os.ExpandEnv(aux[key])); err != nil {
			return err
		}
	}
	return nil
}

// setLogger configures the standard logger to print messages at or
// above level.
func setLogger(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("lesdata: invalid LogLevel: %v", err)
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return nil
}

// deriveOptions collects the options of the derive command from cfg.
func deriveOptions(cfg *viper.Viper) (*DeriveOptions, error) {
	vars, err := cast.ToStringSliceE(cfg.Get("Variable"))
	if err != nil {
		return nil, fmt.Errorf("lesdata: invalid Variable: %v", err)
	}
	aux, err := getStringMapString("Auxiliary", cfg)
	if err != nil {
		return nil, err
	}
	return &DeriveOptions{
		Variables: vars,
		Mode:      cfg.GetString("Mode"),
		Limit:     cfg.GetFloat64("Limit"),
		Height:    cfg.GetFloat64("Height"),
		SizeBin:   cfg.GetString("SizeBin"),
		Packing:   cfg.GetInt("Packing"),
		Total:     cfg.GetString("Total"),
		Hours:     cfg.GetBool("Hours"),
		TimeStart: cfg.GetFloat64("TimeStart"),
		TimeEnd:   cfg.GetFloat64("TimeEnd"),
		Auxiliary: aux,
		Target:    cfg.GetString("Target"),
	}, nil
}

// checkOutputFile makes sure that the output file is specified and its
// directory exists, and expand any environment variables.
func checkOutputFile(f string) (string, error) {
	if f == "" {
		return "", fmt.Errorf(`you need to specify an output file configuration variable (for example: OutputFile="output.nc")`)
	}
	f = os.ExpandEnv(f)
	outdir := filepath.Dir(f)
	if _, err := os.Stat(outdir); err != nil {
		return f, fmt.Errorf("lesdata: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// getStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func getStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if v == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("lesdata: invalid %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("lesdata: invalid type for %s: %#v", varName, i)
	}
}

// writeDataset writes ds to a new NetCDF file at path.
func writeDataset(ds *lesdata.Dataset, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("lesdata: creating output file: %v", err)
	}
	if err := ds.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("lesdata: writing output file: %v", err)
	}
	return f.Close()
}
