package planner

import (
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
)

// SearchSets maps set names to the domain ids they allow. Names are case
// insensitive. Bitmaps are read-only once built and shared by queries.
type SearchSets struct {
	sets map[string]*roaring.Bitmap
}

// NewSearchSets builds the registry from configured domain lists.
func NewSearchSets(named map[string][]uint32) *SearchSets {
	s := &SearchSets{sets: make(map[string]*roaring.Bitmap, len(named))}
	for name, domains := range named {
		bm := roaring.BitmapOf(domains...)
		bm.RunOptimize()
		s.sets[strings.ToLower(name)] = bm
	}
	return s
}

// Lookup returns the domains of the named set.
func (s *SearchSets) Lookup(name string) (*roaring.Bitmap, bool) {
	bm, ok := s.sets[strings.ToLower(name)]
	return bm, ok
}

// Names lists the configured sets.
func (s *SearchSets) Names() []string {
	names := make([]string, 0, len(s.sets))
	for n := range s.sets {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
