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
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Kind is the kind of a primary simulation dataset.
type Kind int

const (
	// Grid is the full-resolution spatio-temporal field snapshot.
	Grid Kind = iota
	// Profile holds vertical profile statistics by time (".ps" files).
	Profile
	// Series holds scalar diagnostics by time (".ts" files).
	Series
)

// DefaultDivergence is the large-scale divergence [1/s] used for
// entrainment when none is given.
const DefaultDivergence = 5e-6

// secondsPerHour converts the model time coordinate, in seconds, to hours.
const secondsPerHour = 3600.

func (k Kind) String() string {
	switch k {
	case Grid:
		return "grid"
	case Profile:
		return "profile"
	case Series:
		return "series"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// marker returns the file name suffix that identifies the kind, or ""
// for Grid, which is identified by carrying no marker.
func (k Kind) marker() string {
	switch k {
	case Profile:
		return "ps"
	case Series:
		return "ts"
	}
	return ""
}

// ParseKind returns the kind with the given name.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{Grid, Profile, Series} {
		if s == k.String() {
			return k, nil
		}
	}
	return 0, fmt.Errorf("lesdata: invalid dataset kind %q", s)
}

// datasetSlot is one lazily loaded primary dataset.
type datasetSlot struct {
	loaded bool
	hours  bool // time coordinate already converted to hours
	ds     *Dataset
}

// Simulation is one model run, identified by its output folder, with
// the metadata used to draw it.
//
// Datasets are read on first access and cached for the life of the
// Simulation. The cached dataset is shared, not copied: every Analysis
// built on the Simulation writes its derived variables into it.
// Callers must serialize all access to a Simulation.
type Simulation struct {
	Folder    string
	Label     string
	Color     string
	Zorder    int
	LineWidth *float64 // nil for the default line width

	// Log receives status messages. It defaults to the standard
	// logrus logger.
	Log logrus.FieldLogger

	slots      [3]datasetSlot
	auxiliary  map[string]*Dataset
	auxHours   bool            // auxiliary datasets are kept in hours
	auxInHours map[string]bool // per auxiliary dataset: time already in hours
}

// NewSimulation returns a simulation for the run in folder. No files
// are read until a dataset is requested.
func NewSimulation(folder, label, color string) *Simulation {
	return &Simulation{
		Folder:    folder,
		Label:     label,
		Color:     color,
		Zorder:    1,
		Log:       logrus.StandardLogger(),
		auxiliary:  make(map[string]*Dataset),
		auxInHours: make(map[string]bool),
	}
}

func (s *Simulation) log() logrus.FieldLogger {
	if s.Log == nil {
		s.Log = logrus.StandardLogger()
	}
	return s.Log.WithField("simulation", s.Label)
}

func (s *Simulation) slot(k Kind) (*datasetSlot, error) {
	if k < Grid || k > Series {
		return nil, fmt.Errorf("lesdata: invalid dataset kind %d", int(k))
	}
	return &s.slots[k], nil
}

// Dataset returns the dataset of the given kind, reading it from the
// simulation folder on the first call. It fails with
// ErrDatasetNotFound if no file in the folder matches the kind.
func (s *Simulation) Dataset(k Kind) (*Dataset, error) {
	sl, err := s.slot(k)
	if err != nil {
		return nil, err
	}
	if sl.loaded {
		return sl.ds, nil
	}
	file, err := s.resolve(k)
	if err != nil {
		return nil, err
	}
	ds, err := OpenDataset(file)
	if err != nil {
		return nil, fmt.Errorf("lesdata: loading %s dataset of simulation %s: %w", k, s.Label, err)
	}
	s.log().WithFields(logrus.Fields{"kind": k.String(), "file": file}).Debug("loaded dataset")
	sl.loaded, sl.hours, sl.ds = true, false, ds
	return ds, nil
}

// Grid returns the full-resolution field dataset.
func (s *Simulation) Grid() (*Dataset, error) { return s.Dataset(Grid) }

// Profile returns the vertical profile statistics dataset.
func (s *Simulation) Profile() (*Dataset, error) { return s.Dataset(Profile) }

// Series returns the time series diagnostics dataset.
func (s *Simulation) Series() (*Dataset, error) { return s.Dataset(Series) }

// SetDataset installs ds as the dataset of kind k, replacing any
// cached one. The time coordinate of ds is assumed to be in seconds.
func (s *Simulation) SetDataset(k Kind, ds *Dataset) error {
	sl, err := s.slot(k)
	if err != nil {
		return err
	}
	sl.loaded, sl.hours, sl.ds = true, false, ds
	return nil
}

// Loaded reports whether the dataset of kind k is resident.
func (s *Simulation) Loaded(k Kind) bool {
	sl, err := s.slot(k)
	return err == nil && sl.loaded
}

// suffixes returns the dot-separated parts of a file name after the
// first one, e.g. [ps nc] for "run.ps.nc".
func suffixes(name string) []string {
	parts := strings.Split(name, ".")
	if len(parts) < 2 || parts[0] == "" {
		return nil
	}
	return parts[1:]
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

// resolve returns the path of the file holding the dataset of kind k.
// Files are considered in name order and the first match wins.
func (s *Simulation) resolve(k Kind) (string, error) {
	files, err := ioutil.ReadDir(s.Folder)
	if err != nil {
		return "", fmt.Errorf("lesdata: %s dataset of simulation %s: %v: %w", k, s.Label, err, ErrDatasetNotFound)
	}
	var matches []string
	for _, fi := range files {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), ".nc") {
			continue
		}
		sfx := suffixes(fi.Name())
		if m := k.marker(); m != "" {
			if !contains(sfx, m) {
				continue
			}
		} else if contains(sfx, Profile.marker()) || contains(sfx, Series.marker()) {
			continue
		}
		matches = append(matches, filepath.Join(s.Folder, fi.Name()))
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("lesdata: no %s file in %s for simulation %s: %w", k, s.Folder, s.Label, ErrDatasetNotFound)
	}
	if len(matches) > 1 {
		s.log().WithFields(logrus.Fields{"kind": k.String(), "ignored": matches[1:]}).Warn("more than one candidate file; using the first")
	}
	return matches[0], nil
}

// SetAuxiliary reads the named file in the simulation folder and
// caches it as the auxiliary dataset key.
func (s *Simulation) SetAuxiliary(key, filename string) error {
	ds, err := OpenDataset(filepath.Join(s.Folder, filename))
	if err != nil {
		return fmt.Errorf("lesdata: auxiliary dataset %s of simulation %s: %w", key, s.Label, err)
	}
	s.UpdateAuxiliary(key, ds)
	return nil
}

// UpdateAuxiliary caches ds as the auxiliary dataset key. The time
// coordinate of ds is assumed to be in seconds; it is converted to
// hours right away if the auxiliary datasets have already been
// normalized.
func (s *Simulation) UpdateAuxiliary(key string, ds *Dataset) {
	if s.auxiliary == nil {
		s.auxiliary = make(map[string]*Dataset)
	}
	if s.auxInHours == nil {
		s.auxInHours = make(map[string]bool)
	}
	s.auxiliary[key] = ds
	s.auxInHours[key] = s.auxHours && toHours(ds)
}

// Auxiliary returns the auxiliary dataset key. It fails with
// ErrKeyNotFound if the dataset has not been set.
func (s *Simulation) Auxiliary(key string) (*Dataset, error) {
	ds, ok := s.auxiliary[key]
	if !ok {
		return nil, fmt.Errorf("lesdata: auxiliary dataset %q of simulation %s: %w", key, s.Label, ErrKeyNotFound)
	}
	return ds, nil
}

// NormalizeTimeToHours divides the time coordinate of every resident
// dataset by 3600, once. Datasets loaded later keep seconds until the
// next call, except auxiliary datasets, which are converted as they are
// added once any auxiliary dataset has been normalized. Datasets
// without a time coordinate are left alone.
func (s *Simulation) NormalizeTimeToHours() error {
	for k := range s.slots {
		sl := &s.slots[k]
		if !sl.loaded || sl.hours {
			continue
		}
		sl.hours = toHours(sl.ds)
	}
	if len(s.auxiliary) > 0 {
		s.auxHours = true
		for key, ds := range s.auxiliary {
			if !s.auxInHours[key] {
				s.auxInHours[key] = toHours(ds)
			}
		}
	}
	return nil
}

// toHours converts the time coordinate of ds from seconds to hours and
// reports whether ds has one.
func toHours(ds *Dataset) bool {
	if !ds.Has(TimeDim) {
		return false
	}
	return ds.ScaleCoord(TimeDim, 1/secondsPerHour) == nil
}

// SliceByTime narrows the dataset of kind k to the times nearest to
// start and end, inclusive, and caches the narrowed dataset in place of
// the original. start and end are in the dataset's current time unit.
func (s *Simulation) SliceByTime(k Kind, start, end float64) error {
	ds, err := s.Dataset(k)
	if err != nil {
		return err
	}
	sliced, err := sliceByTime(ds, start, end)
	if err != nil {
		return fmt.Errorf("lesdata: slicing %s dataset of simulation %s: %w", k, s.Label, err)
	}
	s.slots[k].ds = sliced
	return nil
}

// SliceAuxiliaryByTime narrows every auxiliary dataset that has a time
// coordinate like SliceByTime.
func (s *Simulation) SliceAuxiliaryByTime(start, end float64) error {
	for key, ds := range s.auxiliary {
		if !ds.Has(TimeDim) {
			continue
		}
		sliced, err := sliceByTime(ds, start, end)
		if err != nil {
			return fmt.Errorf("lesdata: slicing auxiliary dataset %s of simulation %s: %w", key, s.Label, err)
		}
		s.auxiliary[key] = sliced
	}
	return nil
}

func sliceByTime(ds *Dataset, start, end float64) (*Dataset, error) {
	t, err := ds.Values(TimeDim)
	if err != nil {
		return nil, err
	}
	return ds.IselTime(NearestIndex(t, start), NearestIndex(t, end))
}

// timeSeconds returns the time coordinate of ds in seconds, undoing the
// hours conversion if it has been applied.
func timeSeconds(ds *Dataset, hours bool) ([]float64, error) {
	t, err := ds.Values(TimeDim)
	if err != nil {
		return nil, err
	}
	if hours {
		for i := range t {
			t[i] *= secondsPerHour
		}
	}
	return t, nil
}

// working returns the profile dataset, or the auxiliary dataset key if
// key is not empty, along with whether its time is in hours.
func (s *Simulation) working(key string) (*Dataset, bool, error) {
	if key != "" {
		ds, err := s.Auxiliary(key)
		return ds, s.auxInHours[key], err
	}
	ds, err := s.Profile()
	return ds, s.slots[Profile].hours, err
}

// Entrainment returns the entrainment velocity [m/s] at the second and
// later series times, computed from the inversion height zi1_bar as
// dz/dt + divergence*z. Times are returned in hours.
func (s *Simulation) Entrainment(divergence float64) (hours, we []float64, err error) {
	ts, err := s.Series()
	if err != nil {
		return nil, nil, err
	}
	t, err := timeSeconds(ts, s.slots[Series].hours)
	if err != nil {
		return nil, nil, err
	}
	z, err := ts.Values("zi1_bar")
	if err != nil {
		return nil, nil, err
	}
	if len(z) != len(t) || len(t) < 2 {
		return nil, nil, fmt.Errorf("lesdata: entrainment of simulation %s from %d times: %w", s.Label, len(t), ErrInsufficientData)
	}
	hours = make([]float64, len(t)-1)
	we = make([]float64, len(t)-1)
	for i := 1; i < len(t); i++ {
		hours[i-1] = t[i] / secondsPerHour
		we[i-1] = (z[i]-z[i-1])/(t[i]-t[i-1]) + divergence*z[i]
	}
	return hours, we, nil
}

// NormalisedHeight maps height h onto a scale that is -1 at the
// surface, 0 at cloud base and 1 at cloud top, linear in between and
// extrapolated above the cloud.
func NormalisedHeight(h, cloudBase, cloudTop float64) float64 {
	if h < cloudBase {
		return h/cloudBase - 1
	}
	return (h - cloudBase) / (cloudTop - cloudBase)
}
