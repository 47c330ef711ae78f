package journal

import (
	"encoding/binary"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/ids"
)

// Span is a byte range describing a structural region of the source
// document, such as its title or a heading.
type Span struct {
	Code  byte   `json:"code"`
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

const (
	SpanTitle   byte = 't'
	SpanHeading byte = 'h'
	SpanCode    byte = 'c'
	SpanAnchor  byte = 'a'
)

// Keyword is one term occurrence summary within a document.
type Keyword struct {
	TermID    uint64       `json:"term_id"`
	Flags     ids.TermFlag `json:"flags"`
	Positions []uint32     `json:"positions"`
}

// Document is one journal record: everything construction needs to place
// a document in the forward and reverse indexes.
type Document struct {
	DomainID uint32          `json:"domain_id"`
	Ordinal  uint32          `json:"ordinal"`
	Language string          `json:"language"`
	Meta     ids.DocMeta     `json:"meta"`
	Features ids.HTMLFeature `json:"features"`
	Size     uint32          `json:"size"`
	Spans    []Span          `json:"spans"`
	Keywords []Keyword       `json:"keywords"`
}

// ID is the combined document id without rank bias.
func (d Document) ID() (uint64, error) {
	return ids.EncodeID(d.DomainID, d.Ordinal)
}

func (d Document) validate() error {
	if _, err := d.ID(); err != nil {
		return err
	}
	if d.Language == "" {
		return fmt.Errorf("document %d/%d has no language", d.DomainID, d.Ordinal)
	}
	for _, kw := range d.Keywords {
		for i := 1; i < len(kw.Positions); i++ {
			if kw.Positions[i] <= kw.Positions[i-1] {
				return fmt.Errorf("document %d/%d term %d: positions not increasing", d.DomainID, d.Ordinal, kw.TermID)
			}
		}
	}
	return nil
}

func (d Document) appendTo(b []byte) []byte {
	b = binary.AppendUvarint(b, uint64(d.DomainID))
	b = binary.AppendUvarint(b, uint64(d.Ordinal))
	b = binary.AppendUvarint(b, uint64(len(d.Language)))
	b = append(b, d.Language...)
	b = binary.LittleEndian.AppendUint64(b, uint64(d.Meta))
	b = binary.AppendUvarint(b, uint64(d.Features))
	b = binary.AppendUvarint(b, uint64(d.Size))

	b = binary.AppendUvarint(b, uint64(len(d.Spans)))
	for _, s := range d.Spans {
		b = append(b, s.Code)
		b = binary.AppendUvarint(b, uint64(s.Start))
		b = binary.AppendUvarint(b, uint64(s.End))
	}

	b = binary.AppendUvarint(b, uint64(len(d.Keywords)))
	for _, kw := range d.Keywords {
		b = binary.LittleEndian.AppendUint64(b, kw.TermID)
		b = binary.AppendUvarint(b, uint64(kw.Flags))
		b = binary.AppendUvarint(b, uint64(len(kw.Positions)))
		var prev uint32
		for _, p := range kw.Positions {
			b = binary.AppendUvarint(b, uint64(p-prev))
			prev = p
		}
	}
	return b
}

type decoder struct {
	b   []byte
	err error
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.b)
	if n <= 0 {
		d.err = fmt.Errorf("bad varint")
		return 0
	}
	d.b = d.b[n:]
	return v
}

func (d *decoder) u64() uint64 {
	if d.err != nil {
		return 0
	}
	if len(d.b) < 8 {
		d.err = fmt.Errorf("short fixed word")
		return 0
	}
	v := binary.LittleEndian.Uint64(d.b)
	d.b = d.b[8:]
	return v
}

func (d *decoder) bytes(n uint64) []byte {
	if d.err != nil {
		return nil
	}
	if uint64(len(d.b)) < n {
		d.err = fmt.Errorf("short byte run of %d", n)
		return nil
	}
	v := d.b[:n]
	d.b = d.b[n:]
	return v
}

// count reads a length prefix, bounded by the remaining payload so a
// corrupt record cannot force a huge allocation.
func (d *decoder) count() int {
	n := d.uvarint()
	if d.err == nil && n > uint64(len(d.b)) {
		d.err = fmt.Errorf("count %d exceeds remaining %d bytes", n, len(d.b))
		return 0
	}
	return int(n)
}

func decodeDocument(payload []byte) (Document, error) {
	d := &decoder{b: payload}
	var doc Document
	doc.DomainID = uint32(d.uvarint())
	doc.Ordinal = uint32(d.uvarint())
	doc.Language = string(d.bytes(d.uvarint()))
	doc.Meta = ids.DocMeta(d.u64())
	doc.Features = ids.HTMLFeature(d.uvarint())
	doc.Size = uint32(d.uvarint())

	if n := d.count(); n > 0 {
		doc.Spans = make([]Span, n)
		for i := range doc.Spans {
			code := d.bytes(1)
			if d.err != nil {
				break
			}
			doc.Spans[i] = Span{Code: code[0], Start: uint32(d.uvarint()), End: uint32(d.uvarint())}
		}
	}
	if n := d.count(); n > 0 {
		doc.Keywords = make([]Keyword, n)
		for i := range doc.Keywords {
			kw := Keyword{TermID: d.u64(), Flags: ids.TermFlag(d.uvarint())}
			if np := d.count(); np > 0 {
				kw.Positions = make([]uint32, np)
				var prev uint32
				for j := range kw.Positions {
					prev += uint32(d.uvarint())
					kw.Positions[j] = prev
				}
			}
			doc.Keywords[i] = kw
			if d.err != nil {
				break
			}
		}
	}
	if d.err != nil {
		return Document{}, d.err
	}
	if len(d.b) != 0 {
		return Document{}, fmt.Errorf("%d trailing bytes", len(d.b))
	}
	return doc, nil
}
