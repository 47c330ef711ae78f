package ids

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// TermFlag describes where in a document a keyword occurred. The flags form
// the first value word of a full-index posting.
type TermFlag uint64

const (
	TermFlagTitle TermFlag = 1 << iota
	TermFlagHeading
	TermFlagSubjects
	TermFlagURLDomain
	TermFlagURLPath
	TermFlagNamesWords
	TermFlagExternalLink
	TermFlagSite
)

// PriorityMask selects postings that also go into the priority index.
const PriorityMask = TermFlagTitle | TermFlagHeading | TermFlagSubjects | TermFlagURLDomain | TermFlagURLPath

// Has reports whether all bits in o are set.
func (f TermFlag) Has(o TermFlag) bool { return f&o == o }

// Any reports whether any bit in o is set.
func (f TermFlag) Any(o TermFlag) bool { return f&o != 0 }

// TermID hashes a normalised keyword into the id space used by lexicons.
func TermID(keyword string) uint64 {
	return xxhash.Sum64String(strings.ToLower(keyword))
}

// HTMLFeature is a bit in the per-document feature mask.
type HTMLFeature uint32

const (
	FeatureMedia HTMLFeature = 1 << iota
	FeatureJS
	FeatureAffiliateLink
	FeatureTracking
	FeatureCookies
	FeatureAds
	FeatureShortDocument
)
