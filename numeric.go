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

	"gonum.org/v1/gonum/floats"
)

// NearestIndex returns the index of the element of series closest to v.
// Ties go to the first occurrence. The series does not need to be
// sorted. NearestIndex returns -1 for an empty series.
func NearestIndex(series []float64, v float64) int {
	idx := -1
	best := math.Inf(1)
	for i, s := range series {
		if d := math.Abs(s - v); d < best {
			best = d
			idx = i
		}
	}
	return idx
}

// BinEdges returns the len(centers)+1 edges of the bins with the given
// centers. Centers are sorted first. Inner edges are the midpoints
// between neighbouring centers; the outer edges lie one neighbouring
// spacing outside the first and last centers.
func BinEdges(centers []float64) ([]float64, error) {
	n := len(centers)
	if n < 2 {
		return nil, fmt.Errorf("lesdata: bin edges from %d centers: %w", n, ErrInsufficientData)
	}
	c := make([]float64, n)
	copy(c, centers)
	inds := make([]int, n)
	floats.Argsort(c, inds)

	edges := make([]float64, n+1)
	edges[0] = c[0] - (c[1] - c[0])
	for i := 1; i < n; i++ {
		edges[i] = (c[i-1] + c[i]) / 2
	}
	edges[n] = c[n-1] + (c[n-1] - c[n-2])
	return edges, nil
}

// PackedBinEdges returns the edges that keep the first packing bins
// and collapse every bin from index packing onward into one tail bin:
// edges 0 through packing followed by the last edge.
func PackedBinEdges(centers []float64, packing int) ([]float64, error) {
	edges, err := BinEdges(centers)
	if err != nil {
		return nil, err
	}
	n := len(centers)
	if packing < 0 || packing >= n-1 {
		return nil, fmt.Errorf("lesdata: packing %d of %d bins: %w", packing, n, ErrPackingRange)
	}
	packed := make([]float64, 0, packing+2)
	packed = append(packed, edges[:packing+1]...)
	return append(packed, edges[n]), nil
}

// NearestMask returns a mask over full that is true at the index
// nearest to each of targets.
func NearestMask(full, targets []float64) []bool {
	mask := make([]bool, len(full))
	for _, t := range targets {
		if i := NearestIndex(full, t); i >= 0 {
			mask[i] = true
		}
	}
	return mask
}

// RelativeChange returns data divided by base. If base is zero, the
// first non-zero element of data is used instead. It fails with
// ErrInsufficientData if there is no such element.
func RelativeChange(data []float64, base float64) ([]float64, error) {
	if base == 0 {
		for _, v := range data {
			if v != 0 && !math.IsNaN(v) {
				base = v
				break
			}
		}
	}
	if base == 0 || math.IsNaN(base) {
		return nil, fmt.Errorf("lesdata: relative change of %d values without a non-zero base: %w", len(data), ErrInsufficientData)
	}
	out := make([]float64, len(data))
	copy(out, data)
	floats.Scale(1/base, out)
	return out, nil
}

// binIndex returns the group of edges that v falls into, with the
// last group closed on the right, or -1 if v is outside the edges.
func binIndex(edges []float64, v float64) int {
	last := len(edges) - 2
	for g := 0; g <= last; g++ {
		if v >= edges[g] && (v < edges[g+1] || (g == last && v <= edges[g+1])) {
			return g
		}
	}
	return -1
}
