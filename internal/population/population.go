// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines Collection, the handle the compiler receives for each
// side of a connection request.
//
// Why an immutable handle?
//
// Populations are created by the simulator, not by this module. The compiler
// only ever reads two facts from them: how many elements there are (to check
// parameter array shapes) and whether they carry spatial metadata (to decide
// whether a masked or kernel-based request is legal). Keeping the id slice
// private and copying on the way in and out guarantees that one compile call
// cannot change what another call sees.
package population

import (
	"fmt"
	"slices"

	"github.com/vk/wiregrid/internal/specerr"
)

// Spatial describes where the elements of a population sit. Either Shape
// (grid layout) or Positions (free layout) is set.
type Spatial struct {
	Shape     []int
	Extent    []float64
	Center    []float64
	Positions [][]float64
}

// Collection is an ordered, immutable sequence of element identifiers.
type Collection struct {
	ids     []uint64
	spatial *Spatial
}

// NewRange creates a collection of n consecutive identifiers starting at
// first.
func NewRange(first uint64, n int, spatial *Spatial) (*Collection, error) {
	if first == 0 {
		return nil, fmt.Errorf("population ids start at 1, got first id 0")
	}
	if n < 0 {
		return nil, fmt.Errorf("population size must be non-negative, got %d", n)
	}
	ids := make([]uint64, n)
	for i := range ids {
		ids[i] = first + uint64(i)
	}
	return &Collection{ids: ids, spatial: spatial}, nil
}

// FromIDs converts a raw identifier list into a collection. Identifiers
// must be positive and strictly increasing; anything else fails with a
// TypeKind error.
func FromIDs(raw []int64) (*Collection, error) {
	ids := make([]uint64, len(raw))
	for i, id := range raw {
		if id <= 0 {
			return nil, specerr.Typef("population", "", "identifier %d at position %d is not a positive integer", id, i)
		}
		if i > 0 && id <= raw[i-1] {
			return nil, specerr.Typef("population", "", "identifiers must be strictly increasing, got %d after %d", id, raw[i-1])
		}
		ids[i] = uint64(id)
	}
	return &Collection{ids: ids}, nil
}

// Len returns the number of elements.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ids)
}

// IDs returns a copy of the identifiers in order.
func (c *Collection) IDs() []uint64 {
	if c == nil {
		return nil
	}
	return slices.Clone(c.ids)
}

// At returns the identifier at position i, or 0 when i is out of range.
// Identifiers start at 1, so 0 never names an element.
func (c *Collection) At(i int) uint64 {
	if i < 0 || i >= c.Len() {
		return 0
	}
	return c.ids[i]
}

// Contains reports whether id is part of the collection.
func (c *Collection) Contains(id uint64) bool {
	if c == nil {
		return false
	}
	_, found := slices.BinarySearch(c.ids, id)
	return found
}

// Spatial returns the spatial descriptor, or nil.
func (c *Collection) Spatial() *Spatial {
	if c == nil {
		return nil
	}
	return c.spatial
}

// HasSpatial reports whether the collection carries spatial metadata.
func (c *Collection) HasSpatial() bool {
	return c.Spatial() != nil
}

// String renders the collection compactly, e.g. "1..20 (spatial)".
func (c *Collection) String() string {
	if c.Len() == 0 {
		return "<empty>"
	}
	s := fmt.Sprintf("%d..%d", c.ids[0], c.ids[len(c.ids)-1])
	if c.HasSpatial() {
		s += " (spatial)"
	}
	return s
}
