// Package ids defines the bit layouts shared by every index file: combined
// document ids, the per-document metadata word, per-term flag words and
// keyword hashing.
package ids

import "fmt"

// Combined document id layout, most significant bit first:
//
//	[63..57] rank bias   (7 bits, sort-order only)
//	[56..26] domain id   (31 bits)
//	[25..0]  doc ordinal (26 bits)
const (
	ordinalBits = 26
	domainBits  = 31
	rankBits    = 7

	ordinalMask = (1 << ordinalBits) - 1
	domainMask  = (1 << domainBits) - 1
	rankMask    = (1 << rankBits) - 1

	domainShift = ordinalBits
	rankShift   = ordinalBits + domainBits

	// MaxOrdinal is the largest document ordinal that fits in a combined id.
	MaxOrdinal = ordinalMask
	// MaxDomainID is the largest encodable domain id.
	MaxDomainID = domainMask
	// MaxRank is the largest encodable rank bias.
	MaxRank = rankMask
)

// EncodeID packs a domain id and a document ordinal. The result carries no
// rank bias.
func EncodeID(domainID uint32, ordinal uint32) (uint64, error) {
	if uint64(domainID) > domainMask {
		return 0, fmt.Errorf("domain id %d exceeds %d bits", domainID, domainBits)
	}
	if uint64(ordinal) > ordinalMask {
		return 0, fmt.Errorf("document ordinal %d exceeds %d bits", ordinal, ordinalBits)
	}
	return uint64(domainID)<<domainShift | uint64(ordinal), nil
}

// MustEncodeID is EncodeID for ids known to be in range.
func MustEncodeID(domainID uint32, ordinal uint32) uint64 {
	id, err := EncodeID(domainID, ordinal)
	if err != nil {
		panic(err)
	}
	return id
}

// AddRank sets the rank bias of id, replacing any existing bias. Ranks
// outside [0, MaxRank] are clamped.
func AddRank(id uint64, rank int) uint64 {
	if rank < 0 {
		rank = 0
	}
	if rank > rankMask {
		rank = rankMask
	}
	return RemoveRank(id) | uint64(rank)<<rankShift
}

// RemoveRank strips the rank bias, leaving the id the forward index is keyed on.
func RemoveRank(id uint64) uint64 {
	return id &^ (rankMask << rankShift)
}

// DomainID extracts the domain id.
func DomainID(id uint64) uint32 {
	return uint32((id >> domainShift) & domainMask)
}

// Ordinal extracts the per-domain document ordinal.
func Ordinal(id uint64) uint32 {
	return uint32(id & ordinalMask)
}

// Rank extracts the rank bias.
func Rank(id uint64) int {
	return int((id >> rankShift) & rankMask)
}
