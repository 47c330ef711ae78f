package skiplist

import "fmt"

// Pointer is a decoded forward pointer.
type Pointer struct {
	Value  uint64
	Target int64
}

// BlockInfo describes one block of a list.
type BlockInfo struct {
	Offset       int64
	NumKeys      int
	Flags        uint8
	ValueOrdinal uint64
	MinKey       uint64
	MaxKey       uint64
	Pointers     []Pointer
}

func (b BlockInfo) String() string {
	return fmt.Sprintf("block@%d keys=%d flags=%#x ordinal=%d range=[%d,%d] pointers=%d",
		b.Offset, b.NumKeys, b.Flags, b.ValueOrdinal, b.MinKey, b.MaxKey, len(b.Pointers))
}

// Blocks decodes every block header of the list rooted at root, in order.
func (f *File) Blocks(root int64) ([]BlockInfo, error) {
	var out []BlockInfo
	off := root
	for {
		h, err := f.header(off)
		if err != nil {
			return out, err
		}
		info := BlockInfo{
			Offset:       off,
			NumKeys:      h.numKeys,
			Flags:        h.flags,
			ValueOrdinal: h.valueOrdinal,
		}
		if h.numKeys > 0 {
			info.MinKey = f.key(h, 0)
			info.MaxKey = f.key(h, h.numKeys-1)
		}
		for i := 0; i < h.numPointers; i++ {
			info.Pointers = append(info.Pointers, Pointer{Value: f.pointer(h, i), Target: h.target(i)})
		}
		out = append(out, info)
		if h.last() {
			return out, nil
		}
		off = h.next()
	}
}

// Verify checks the structural invariants of a list: keys strictly
// increase across blocks, every non-terminal block has a forward pointer,
// and each pointer's value equals the highest key of its target block.
func (f *File) Verify(root int64) error {
	blocks, err := f.Blocks(root)
	if err != nil {
		return err
	}
	byOffset := make(map[int64]BlockInfo, len(blocks))
	for _, b := range blocks {
		byOffset[b.Offset] = b
	}
	var prev uint64
	for i, b := range blocks {
		if b.NumKeys == 0 && len(blocks) > 1 {
			return fmt.Errorf("%w: empty block %d in multi-block list", ErrCorrupt, i)
		}
		if i > 0 && b.MinKey <= prev {
			return fmt.Errorf("%w: block %d starts at %d after %d", ErrCorrupt, i, b.MinKey, prev)
		}
		prev = b.MaxKey
		if b.Flags&FlagEndOfBlock == 0 && len(b.Pointers) == 0 {
			return fmt.Errorf("%w: non-terminal block %d without forward pointers", ErrCorrupt, i)
		}
		for j, p := range b.Pointers {
			t, ok := byOffset[p.Target]
			if !ok {
				return fmt.Errorf("%w: block %d pointer %d targets %d outside the list", ErrCorrupt, i, j, p.Target)
			}
			if t.MaxKey != p.Value {
				return fmt.Errorf("%w: block %d pointer %d holds %d, target max is %d", ErrCorrupt, i, j, p.Value, t.MaxKey)
			}
		}
	}
	return nil
}

// Blocks decodes the block headers of l.
func (l *List) Blocks() ([]BlockInfo, error) { return l.file.Blocks(l.root) }

// Verify checks the structural invariants of l.
func (l *List) Verify() error { return l.file.Verify(l.root) }
