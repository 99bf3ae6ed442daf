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

// Package lesutil contains the command-line interface of lesdata.
package lesutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/lesdata"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to lesdata.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogLevel",
			usage: `
              LogLevel is the minimum level of log messages to print:
              one of panic, fatal, error, warning, info or debug.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Simulations",
			usage: `
              Simulations is the path to the TOML file listing the available
              simulations. Each [[Simulation]] entry has an ID, a Folder holding
              the simulation output and the Label, Color, Zorder and LineWidth
              used to draw it. Relative folders are relative to the file. The
              path can include environment variables.`,
			defaultVal: "simulations.toml",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Simulation",
			usage: `
              Simulation is the ID of the simulation to work on.`,
			shorthand:  "s",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{infoCmd.Flags(), deriveCmd.Flags(), entrainmentCmd.Flags()},
		},
		{
			name: "Auxiliary",
			usage: `
              Auxiliary maps keys to the names of auxiliary NetCDF files in the
              simulation folder, for example {"spectra":"run.spectra.nc"}.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{infoCmd.Flags(), deriveCmd.Flags()},
		},
		{
			name: "Target",
			usage: `
              Target is the key of the auxiliary dataset to derive variables in.
              If it is empty, the profile dataset is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "Variable",
			usage: `
              Variable lists the variables to derive new variables from.`,
			shorthand:  "v",
			defaultVal: []string{"P_Nabb"},
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "Mode",
			usage: `
              Mode is the vertical filter to apply: InCloud, AboveCloud,
              BelowCloud or AtHeight.`,
			shorthand:  "m",
			defaultVal: "InCloud",
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "Limit",
			usage: `
              Limit is the liquid and ice mixing ratio [kg/kg] above which a
              layer counts as cloudy.`,
			defaultVal: lesdata.DefaultLimit,
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "Height",
			usage: `
              Height is the height [m] used by the AtHeight filter.`,
			defaultVal: 0.,
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "SizeBin",
			usage: `
              SizeBin is the size bin category of the variables, A or B. The
              raw size bin coordinate is renamed to SizeBinA or SizeBinB. If
              SizeBin is empty, no renaming or packing is done.`,
			defaultVal: "B",
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "Packing",
			usage: `
              Packing is the number of leading size bins to keep. All later bins
              are summed into one. A negative value turns packing off.`,
			shorthand:  "p",
			defaultVal: -1,
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "Total",
			usage: `
              If Total is not empty and more than one variable is derived, the
              sum of the derived variables is written under this name together
              with each variable's fraction of it.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "Hours",
			usage: `
              Hours specifies whether to convert time coordinates from seconds
              to hours before slicing.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "TimeStart",
			usage: `
              TimeStart is the first time to keep, in the time unit in use. If
              it is negative, all times are kept.`,
			defaultVal: -1.,
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "TimeEnd",
			usage: `
              TimeEnd is the last time to keep, in the time unit in use.`,
			defaultVal: -1.,
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
		{
			name: "Divergence",
			usage: `
              Divergence is the large-scale divergence [1/s] used to compute the
              entrainment velocity.`,
			defaultVal: lesdata.DefaultDivergence,
			flagsets:   []*pflag.FlagSet{entrainmentCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path to the NetCDF file the working dataset is
              written to. It can include environment variables.`,
			shorthand:  "o",
			defaultVal: "lesdata_output.nc",
			flagsets:   []*pflag.FlagSet{deriveCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("LESDATA")
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, option.defaultVal.([]string), option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
			case int:
				set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				set.StringP(option.name, option.shorthand, b.String(), option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(infoCmd)
	Root.AddCommand(deriveCmd)
	Root.AddCommand(entrainmentCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(os.ExpandEnv(cfgpath))
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("lesdata: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "lesdata",
	Short: "Derive plotting variables from large-eddy simulation output.",
	Long: `lesdata reads the NetCDF output of large-eddy simulations and derives
new variables from it: vertically filtered fields, renamed and packed
size-bin distributions, proportions and entrainment velocities.

Simulations are listed in a TOML file given by --Simulations and chosen
with --Simulation. Configuration can be changed by using a configuration
file (and providing the path to the file using the --config flag), by using
command-line arguments, or by setting environment variables in the format
'LESDATA_var' where 'var' is the name of the variable to be set.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		if err := setConfig(); err != nil {
			return err
		}
		return setLogger(Cfg.GetString("LogLevel"))
	},
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of lesdata.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("lesdata v%s\n", lesdata.Version)
	},
	DisableAutoGenTag: true,
}

// infoCmd lists the datasets of a simulation.
var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "List the datasets of a simulation.",
	Long: `info resolves the grid, profile and series datasets of the simulation
given by --Simulation, along with any auxiliary datasets, and lists their
variables.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sim, err := loadSimulation(Cfg)
		if err != nil {
			return err
		}
		aux, err := getStringMapString("Auxiliary", Cfg)
		if err != nil {
			return err
		}
		if err := setAuxiliary(sim, aux); err != nil {
			return err
		}
		return Info(cmd.OutOrStdout(), sim, sortedKeys(aux))
	},
	DisableAutoGenTag: true,
}

// deriveCmd runs the derived-variable pipeline and saves the result.
var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Derive new variables.",
	Long: `derive filters the given variables of a simulation vertically, renames
their size bin coordinate, optionally packs the larger size bins together
and writes the dataset holding the results to OutputFile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sim, err := loadSimulation(Cfg)
		if err != nil {
			return err
		}
		o, err := deriveOptions(Cfg)
		if err != nil {
			return err
		}
		outputFile, err := checkOutputFile(Cfg.GetString("OutputFile"))
		if err != nil {
			return err
		}
		ds, names, err := Derive(sim, o)
		if err != nil {
			return err
		}
		if err := writeDataset(ds, outputFile); err != nil {
			return err
		}
		sim.Log.WithField("file", outputFile).Infof("wrote %v", names)
		return nil
	},
	DisableAutoGenTag: true,
}

// entrainmentCmd prints the entrainment velocity of a simulation.
var entrainmentCmd = &cobra.Command{
	Use:   "entrainment",
	Short: "Print the entrainment velocity.",
	Long: `entrainment prints the entrainment velocity [m/s] of the simulation
given by --Simulation at each time [h] of its series dataset but the first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sim, err := loadSimulation(Cfg)
		if err != nil {
			return err
		}
		hours, we, err := sim.Entrainment(Cfg.GetFloat64("Divergence"))
		if err != nil {
			return err
		}
		cmd.Printf("%10s %14s\n", "time [h]", "w_e [m/s]")
		for i, h := range hours {
			cmd.Printf("%10.3f %14.6e\n", h, we[i])
		}
		return nil
	},
	DisableAutoGenTag: true,
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
