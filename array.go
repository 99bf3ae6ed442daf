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
	"math"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/stat"
)

// unravel sets idx to the multi-dimensional index of the
// row-major flat index i in an array of the given shape.
func unravel(shape []int, i int, idx []int) {
	for k := len(shape) - 1; k >= 0; k-- {
		idx[k] = i % shape[k]
		i /= shape[k]
	}
}

// dropAxis returns shape (or an index) without the given axis.
func dropAxis(s []int, axis int) []int {
	o := make([]int, 0, len(s)-1)
	o = append(o, s[:axis]...)
	return append(o, s[axis+1:]...)
}

// sliceAxis returns a copy of a restricted to indices begin through
// end, inclusive, along axis.
func sliceAxis(a *sparse.DenseArray, axis, begin, end int) *sparse.DenseArray {
	shape := append([]int(nil), a.Shape...)
	shape[axis] = end - begin + 1
	out := sparse.ZerosDense(shape...)
	idx := make([]int, len(shape))
	for i := range out.Elements {
		unravel(shape, i, idx)
		idx[axis] += begin
		out.Elements[i] = a.Get(idx...)
	}
	return out
}

// takeAxis returns the elements of a at index k along axis, with that
// axis removed.
func takeAxis(a *sparse.DenseArray, axis, k int) *sparse.DenseArray {
	outShape := dropAxis(a.Shape, axis)
	out := sparse.ZerosDense(outShape...)
	idx := make([]int, len(a.Shape))
	for i, v := range a.Elements {
		unravel(a.Shape, i, idx)
		if idx[axis] != k {
			continue
		}
		out.Elements[flatIndex(outShape, dropAxis(idx, axis))] = v
	}
	return out
}

// meanAxis averages a along axis, using only the elements for which
// keep returns true and skipping NaN. keep receives the full index of
// each element. Positions with nothing left to average are NaN.
func meanAxis(a *sparse.DenseArray, axis int, keep func(idx []int) bool) *sparse.DenseArray {
	outShape := dropAxis(a.Shape, axis)
	out := sparse.ZerosDense(outShape...)
	vals := make([][]float64, len(out.Elements))
	idx := make([]int, len(a.Shape))
	for i, v := range a.Elements {
		if math.IsNaN(v) {
			continue
		}
		unravel(a.Shape, i, idx)
		if !keep(idx) {
			continue
		}
		j := flatIndex(outShape, dropAxis(idx, axis))
		vals[j] = append(vals[j], v)
	}
	for j, v := range vals {
		if len(v) == 0 {
			out.Elements[j] = math.NaN()
			continue
		}
		out.Elements[j] = stat.Mean(v, nil)
	}
	return out
}

// groupSumAxis sums a along axis into ngroups groups, where group[k]
// is the group of index k along axis; negative groups are dropped.
// NaN values are skipped.
func groupSumAxis(a *sparse.DenseArray, axis int, group []int, ngroups int) *sparse.DenseArray {
	shape := append([]int(nil), a.Shape...)
	shape[axis] = ngroups
	out := sparse.ZerosDense(shape...)
	idx := make([]int, len(a.Shape))
	for i, v := range a.Elements {
		if math.IsNaN(v) {
			continue
		}
		unravel(a.Shape, i, idx)
		g := group[idx[axis]]
		if g < 0 {
			continue
		}
		idx[axis] = g
		out.AddVal(v, idx...)
	}
	return out
}

// flatIndex is the inverse of unravel.
func flatIndex(shape, idx []int) int {
	i := 0
	for k, n := range shape {
		i = i*n + idx[k]
	}
	return i
}
