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

import "errors"

var (
	// ErrDatasetNotFound is returned when no file in a simulation folder
	// resolves to the requested dataset kind.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrKeyNotFound is returned when an auxiliary dataset is requested
	// before it has been set.
	ErrKeyNotFound = errors.New("auxiliary dataset key not found")

	// ErrVariableNotFound is returned when a dataset has no variable
	// with the requested name.
	ErrVariableNotFound = errors.New("variable not found")

	// ErrNoMatchingCoordinate is returned when none of the known raw
	// size-bin coordinate names is present on a variable.
	ErrNoMatchingCoordinate = errors.New("no matching size bin coordinate")

	// ErrAlreadyFiltered marks a repeated filter call on one Analysis.
	// It is logged, not returned.
	ErrAlreadyFiltered = errors.New("variable already filtered")

	// ErrNotFiltered is returned by operations that read the filtered
	// variable before any filter has run.
	ErrNotFiltered = errors.New("variable has not been filtered")

	// ErrInsufficientData is returned when fewer than two bin centers
	// are available for edge synthesis.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrPackingRange is returned when a packing parameter would not
	// leave at least one bin to collapse.
	ErrPackingRange = errors.New("packing out of range")
)
