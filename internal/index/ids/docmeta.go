package ids

// DocMeta is the fixed-size metadata word stored per document in the
// forward index.
//
//	[63..56] domain rank bucket
//	[55..48] year offset from YearBase (0 = unknown)
//	[47..40] content size bucket
//	[39..32] quality (signed)
//	[31..0]  document flags
type DocMeta uint64

// YearBase is the earliest representable publication year.
const YearBase = 1995

// DocFlag is a bit in the low 32 bits of DocMeta.
type DocFlag uint32

const (
	DocFlagJavascript DocFlag = 1 << iota
	DocFlagPlainText
	DocFlagGeneratorCMS
	DocFlagUsesCookies
	DocFlagAdvertising
)

// NewDocMeta packs the metadata fields. Out-of-range values are clamped.
func NewDocMeta(rank int, year int, sizeBucket int, quality int, flags DocFlag) DocMeta {
	yearOff := 0
	if year > YearBase {
		yearOff = clamp(year-YearBase, 0, 255)
	}
	return DocMeta(uint64(clamp(rank, 0, 255))<<56 |
		uint64(yearOff)<<48 |
		uint64(clamp(sizeBucket, 0, 255))<<40 |
		uint64(uint8(int8(clamp(quality, -128, 127))))<<32 |
		uint64(flags))
}

// Rank returns the domain rank bucket.
func (m DocMeta) Rank() int { return int(m >> 56 & 0xff) }

// Year returns the publication year, or 0 when unknown.
func (m DocMeta) Year() int {
	off := int(m >> 48 & 0xff)
	if off == 0 {
		return 0
	}
	return YearBase + off
}

// SizeBucket returns the content size bucket.
func (m DocMeta) SizeBucket() int { return int(m >> 40 & 0xff) }

// Quality returns the signed quality score.
func (m DocMeta) Quality() int { return int(int8(uint8(m >> 32 & 0xff))) }

// Flags returns the document flag bits.
func (m DocMeta) Flags() DocFlag { return DocFlag(uint32(m)) }

// HasFlag reports whether all bits in f are set.
func (m DocMeta) HasFlag(f DocFlag) bool { return m.Flags()&f == f }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
