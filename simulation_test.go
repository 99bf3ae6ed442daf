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
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"gonum.org/v1/gonum/floats"
)

const tolerance = 1e-10

// Test fixture layout. The profile variable P_Nabb has the value
// 100*t + 10*b + k at time index t, bin b and height k, so every
// filter result can be checked by hand.
var (
	testProfileTime = []float64{0, 3600, 7200}
	testZt          = []float64{100, 300, 500, 700}
	testAeb         = []float64{10, 20, 30, 40}
	testRl          = []float64{0, 1e-3, 1e-3, 0}
	testRi          = []float64{0, 1e-5, 1e-5, 1e-5}
	testSeriesTime  = []float64{0, 1800, 3600, 5400, 7200}
	testZi          = []float64{500, 536, 572, 608, 644}
)

const (
	testCloudBase = 200.
	testCloudTop  = 600.
)

func testProfile() *Dataset {
	nt, nb, nz := len(testProfileTime), len(testAeb), len(testZt)
	ds := NewDataset("run.ps.nc")
	ds.AddVariable(TimeDim, []string{TimeDim}, map[string]interface{}{"units": "s"}, dense(testProfileTime, nt))
	ds.AddVariable("zt", []string{"zt"}, map[string]interface{}{"units": "m"}, dense(testZt, nz))
	ds.AddVariable("aeb", []string{"aeb"}, map[string]interface{}{"units": "m"}, dense(testAeb, nb))

	rl := dense(nil, nt, nz)
	ri := dense(nil, nt, nz)
	for t := 0; t < nt; t++ {
		for k := 0; k < nz; k++ {
			rl.Set(testRl[k], t, k)
			ri.Set(testRi[k], t, k)
		}
	}
	ds.AddVariable("P_rl", []string{TimeDim, "zt"}, map[string]interface{}{"units": "kg/kg"}, rl)
	ds.AddVariable("P_ri", []string{TimeDim, "zt"}, map[string]interface{}{"units": "kg/kg"}, ri)

	n := dense(nil, nt, nb, nz)
	for t := 0; t < nt; t++ {
		for b := 0; b < nb; b++ {
			for k := 0; k < nz; k++ {
				n.Set(float64(100*t+10*b+k), t, b, k)
			}
		}
	}
	ds.AddVariable("P_Nabb", []string{TimeDim, "aeb", "zt"}, map[string]interface{}{"units": "#/kg"}, n)
	return ds
}

func testSeries() *Dataset {
	nt := len(testSeriesTime)
	ds := NewDataset("run.ts.nc")
	ds.AddVariable(TimeDim, []string{TimeDim}, map[string]interface{}{"units": "s"}, dense(testSeriesTime, nt))
	zb, zc := dense(nil, nt), dense(nil, nt)
	for i := 0; i < nt; i++ {
		zb.Elements[i] = testCloudBase
		zc.Elements[i] = testCloudTop
	}
	ds.AddVariable("zb", []string{TimeDim}, map[string]interface{}{"units": "m"}, zb)
	ds.AddVariable("zc", []string{TimeDim}, map[string]interface{}{"units": "m"}, zc)
	ds.AddVariable("zi1_bar", []string{TimeDim}, map[string]interface{}{"units": "m"}, dense(testZi, nt))
	return ds
}

func testGrid() *Dataset {
	ds := NewDataset("run.nc")
	ds.AddVariable(TimeDim, []string{TimeDim}, nil, dense(testProfileTime, 3))
	ds.AddVariable("zt", []string{"zt"}, nil, dense(testZt, 4))
	ds.AddVariable("theta", []string{TimeDim, "zt"}, map[string]interface{}{"units": "K"}, dense(nil, 3, 4))
	return ds
}

func writeTestFile(t *testing.T, ds *Dataset, path string) {
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := ds.Write(f); err != nil {
		t.Fatal(err)
	}
}

// testFolder writes a simulation folder holding a grid, profile and
// series file plus an auxiliary profile file. The caller must remove it.
func testFolder(t *testing.T) string {
	dir, err := ioutil.TempDir("", "lesdata")
	if err != nil {
		t.Fatal(err)
	}
	writeTestFile(t, testGrid(), filepath.Join(dir, "run.nc"))
	writeTestFile(t, testProfile(), filepath.Join(dir, "run.ps.nc"))
	writeTestFile(t, testSeries(), filepath.Join(dir, "run.ts.nc"))
	writeTestFile(t, testProfile(), filepath.Join(dir, "spectra.nc"))
	if err := ioutil.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a dataset"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestSimulationLazyLoad(t *testing.T) {
	dir := testFolder(t)
	defer os.RemoveAll(dir)

	s := NewSimulation(dir, "run", "red")
	if s.Zorder != 1 || s.LineWidth != nil {
		t.Errorf("defaults: zorder %d, line width %v", s.Zorder, s.LineWidth)
	}
	for _, k := range []Kind{Grid, Profile, Series} {
		if s.Loaded(k) {
			t.Errorf("%s loaded before first access", k)
		}
	}
	ps, err := s.Profile()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(ps.Name) != "run.ps.nc" {
		t.Errorf("profile read from %s", ps.Name)
	}
	if !s.Loaded(Profile) || s.Loaded(Series) {
		t.Error("only the profile should be loaded")
	}
	ps2, err := s.Profile()
	if err != nil {
		t.Fatal(err)
	}
	if ps != ps2 {
		t.Error("second access returned a different dataset")
	}

	ts, err := s.Series()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(ts.Name) != "run.ts.nc" {
		t.Errorf("series read from %s", ts.Name)
	}
	grid, err := s.Grid()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(grid.Name) != "run.nc" {
		t.Errorf("grid read from %s", grid.Name)
	}
	if !grid.Has("theta") {
		t.Error("grid missing theta")
	}
}

func TestSimulationDatasetNotFound(t *testing.T) {
	dir, err := ioutil.TempDir("", "lesdata")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	writeTestFile(t, testSeries(), filepath.Join(dir, "run.ts.nc"))

	s := NewSimulation(dir, "run", "blue")
	if _, err := s.Profile(); !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("have error %v, want ErrDatasetNotFound", err)
	}
	if _, err := s.Grid(); !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("have error %v, want ErrDatasetNotFound", err)
	}
	if _, err := s.Series(); err != nil {
		t.Error(err)
	}

	s = NewSimulation(filepath.Join(dir, "missing"), "run", "blue")
	if _, err := s.Series(); !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("have error %v, want ErrDatasetNotFound", err)
	}
}

func TestSuffixes(t *testing.T) {
	tests := map[string][]string{
		"run.ps.nc": {"ps", "nc"},
		"run.nc":    {"nc"},
		"run":       nil,
		".hidden":   nil,
	}
	for name, want := range tests {
		have := suffixes(name)
		if len(have) != len(want) {
			t.Errorf("%s: have %v, want %v", name, have, want)
			continue
		}
		for i := range want {
			if have[i] != want[i] {
				t.Errorf("%s: have %v, want %v", name, have, want)
			}
		}
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{Grid, Profile, Series} {
		kk, err := ParseKind(k.String())
		if err != nil {
			t.Fatal(err)
		}
		if kk != k {
			t.Errorf("have %s, want %s", kk, k)
		}
	}
	if _, err := ParseKind("spectra"); err == nil {
		t.Error("no error for invalid kind")
	}
}

func TestSimulationAuxiliary(t *testing.T) {
	dir := testFolder(t)
	defer os.RemoveAll(dir)

	s := NewSimulation(dir, "run", "red")
	if _, err := s.Auxiliary("spectra"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("have error %v, want ErrKeyNotFound", err)
	}
	if err := s.SetAuxiliary("spectra", "spectra.nc"); err != nil {
		t.Fatal(err)
	}
	aux, err := s.Auxiliary("spectra")
	if err != nil {
		t.Fatal(err)
	}
	if !aux.Has("P_Nabb") {
		t.Error("auxiliary dataset missing P_Nabb")
	}
	if err := s.SetAuxiliary("other", "missing.nc"); err == nil {
		t.Error("no error for missing auxiliary file")
	}

	replacement := NewDataset("replacement")
	s.UpdateAuxiliary("spectra", replacement)
	if aux, _ = s.Auxiliary("spectra"); aux != replacement {
		t.Error("auxiliary dataset not replaced")
	}
}

func TestNormalizeTimeToHours(t *testing.T) {
	s := NewSimulation("unused", "run", "red")
	if err := s.SetDataset(Profile, testProfile()); err != nil {
		t.Fatal(err)
	}
	s.UpdateAuxiliary("spectra", testProfile())

	for i := 0; i < 2; i++ {
		if err := s.NormalizeTimeToHours(); err != nil {
			t.Fatal(err)
		}
	}
	ps, _ := s.Profile()
	tt, _ := ps.Values(TimeDim)
	if !floats.EqualApprox(tt, []float64{0, 1, 2}, tolerance) {
		t.Errorf("profile time %v", tt)
	}
	aux, _ := s.Auxiliary("spectra")
	tt, _ = aux.Values(TimeDim)
	if !floats.EqualApprox(tt, []float64{0, 1, 2}, tolerance) {
		t.Errorf("auxiliary time %v", tt)
	}

	// A dataset loaded after the conversion is converted on the next call.
	if err := s.SetDataset(Series, testSeries()); err != nil {
		t.Fatal(err)
	}
	if err := s.NormalizeTimeToHours(); err != nil {
		t.Fatal(err)
	}
	ts, _ := s.Series()
	tt, _ = ts.Values(TimeDim)
	if !floats.EqualApprox(tt, []float64{0, 0.5, 1, 1.5, 2}, tolerance) {
		t.Errorf("series time %v", tt)
	}
	tt, _ = ps.Values(TimeDim)
	if !floats.EqualApprox(tt, []float64{0, 1, 2}, tolerance) {
		t.Errorf("profile time converted twice: %v", tt)
	}
}

func TestSliceByTime(t *testing.T) {
	s := NewSimulation("unused", "run", "red")
	if err := s.SetDataset(Series, testSeries()); err != nil {
		t.Fatal(err)
	}
	if err := s.SliceByTime(Series, 1700, 5000); err != nil {
		t.Fatal(err)
	}
	ts, _ := s.Series()
	tt, _ := ts.Values(TimeDim)
	if !floats.EqualApprox(tt, []float64{1800, 3600, 5400}, tolerance) {
		t.Errorf("sliced time %v", tt)
	}
	zi, _ := ts.Values("zi1_bar")
	if !floats.Equal(zi, []float64{536, 572, 608}) {
		t.Errorf("sliced zi1_bar %v", zi)
	}

	s.UpdateAuxiliary("spectra", testProfile())
	if err := s.SliceAuxiliaryByTime(3600, 7200); err != nil {
		t.Fatal(err)
	}
	aux, _ := s.Auxiliary("spectra")
	v, _ := aux.Var("P_Nabb")
	if v.Data.Shape[0] != 2 {
		t.Errorf("sliced auxiliary shape %v", v.Data.Shape)
	}
	if have := v.Data.Get(0, 1, 2); have != 112 {
		t.Errorf("sliced auxiliary value %g, want 112", have)
	}
}

func TestEntrainment(t *testing.T) {
	s := NewSimulation("unused", "run", "red")
	if err := s.SetDataset(Series, testSeries()); err != nil {
		t.Fatal(err)
	}
	const div = 1.5e-6
	check := func() {
		hours, we, err := s.Entrainment(div)
		if err != nil {
			t.Fatal(err)
		}
		if !floats.EqualApprox(hours, []float64{0.5, 1, 1.5, 2}, tolerance) {
			t.Errorf("hours %v", hours)
		}
		for i, w := range we {
			want := 36./1800 + div*testZi[i+1]
			if !floats.EqualWithinAbsOrRel(w, want, tolerance, tolerance) {
				t.Errorf("we[%d] = %g, want %g", i, w, want)
			}
		}
	}
	check()
	// The result does not depend on the time unit.
	if err := s.NormalizeTimeToHours(); err != nil {
		t.Fatal(err)
	}
	check()

	short := NewDataset("short")
	short.AddVariable(TimeDim, []string{TimeDim}, nil, dense([]float64{0}, 1))
	short.AddVariable("zi1_bar", []string{TimeDim}, nil, dense([]float64{500}, 1))
	if err := s.SetDataset(Series, short); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Entrainment(div); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("have error %v, want ErrInsufficientData", err)
	}
}

func TestNormalisedHeight(t *testing.T) {
	tests := []struct{ h, want float64 }{
		{h: 0, want: -1},
		{h: 100, want: -0.5},
		{h: 200, want: 0},
		{h: 400, want: 0.5},
		{h: 600, want: 1},
		{h: 800, want: 1.5},
	}
	for _, test := range tests {
		if have := NormalisedHeight(test.h, 200, 600); !floats.EqualWithinAbsOrRel(have, test.want, tolerance, tolerance) {
			t.Errorf("NormalisedHeight(%g) = %g, want %g", test.h, have, test.want)
		}
	}
}

func TestNormalizeTimeWithoutTimeAuxiliary(t *testing.T) {
	s := NewSimulation("unused", "run", "red")
	s.UpdateAuxiliary("a", testProfile())
	heights := NewDataset("heights")
	heights.AddVariable("zt", []string{"zt"}, nil, dense(testZt, len(testZt)))
	s.UpdateAuxiliary("b", heights)

	for i := 0; i < 3; i++ {
		if err := s.NormalizeTimeToHours(); err != nil {
			t.Fatal(err)
		}
	}
	a, _ := s.Auxiliary("a")
	tt, _ := a.Values(TimeDim)
	if !floats.EqualApprox(tt, []float64{0, 1, 2}, tolerance) {
		t.Errorf("auxiliary time %v, want [0 1 2]", tt)
	}
	b, _ := s.Auxiliary("b")
	if b.Has(TimeDim) {
		t.Error("time coordinate added to dataset without one")
	}
	zt, _ := b.Values("zt")
	if !floats.Equal(zt, testZt) {
		t.Errorf("heights changed: %v", zt)
	}
}

func TestUpdateAuxiliaryAfterNormalize(t *testing.T) {
	s := NewSimulation("unused", "run", "red")
	s.UpdateAuxiliary("spectra", testProfile())
	if err := s.NormalizeTimeToHours(); err != nil {
		t.Fatal(err)
	}
	s.UpdateAuxiliary("late", testProfile())
	late, _ := s.Auxiliary("late")
	tt, _ := late.Values(TimeDim)
	if !floats.EqualApprox(tt, []float64{0, 1, 2}, tolerance) {
		t.Errorf("late auxiliary time %v, want [0 1 2]", tt)
	}
	// Later calls leave it alone.
	if err := s.NormalizeTimeToHours(); err != nil {
		t.Fatal(err)
	}
	tt, _ = late.Values(TimeDim)
	if !floats.EqualApprox(tt, []float64{0, 1, 2}, tolerance) {
		t.Errorf("late auxiliary time converted twice: %v", tt)
	}
}

func TestSimulationGridFirstMatch(t *testing.T) {
	dir, err := ioutil.TempDir("", "lesdata")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	// An auxiliary file that sorts before the grid file is a grid
	// candidate too. The first one in name order wins.
	writeTestFile(t, testProfile(), filepath.Join(dir, "a_spectra.nc"))
	writeTestFile(t, testGrid(), filepath.Join(dir, "run.nc"))
	writeTestFile(t, testProfile(), filepath.Join(dir, "run.ps.nc"))
	writeTestFile(t, testSeries(), filepath.Join(dir, "run.ts.nc"))

	logger, hook := logtest.NewNullLogger()
	s := NewSimulation(dir, "run", "red")
	s.Log = logger
	grid, err := s.Grid()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(grid.Name) != "a_spectra.nc" {
		t.Errorf("grid read from %s, want a_spectra.nc", grid.Name)
	}
	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("no warning logged")
	}
	if entry.Level != logrus.WarnLevel {
		t.Errorf("logged at level %s, want warning", entry.Level)
	}
	ignored, _ := entry.Data["ignored"].([]string)
	if len(ignored) != 1 || filepath.Base(ignored[0]) != "run.nc" {
		t.Errorf("ignored files %v", entry.Data["ignored"])
	}

	// The profile and series are unaffected.
	hook.Reset()
	ps, err := s.Profile()
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(ps.Name) != "run.ps.nc" {
		t.Errorf("profile read from %s", ps.Name)
	}
	if len(hook.AllEntries()) != 0 {
		t.Errorf("unexpected log entries: %v", hook.AllEntries())
	}
}
