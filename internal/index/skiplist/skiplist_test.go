package skiplist

import (
	"bytes"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/index/query"
)

func randomKeys(rng *rand.Rand, n int) []uint64 {
	keys := make([]uint64, n)
	next := uint64(rng.Intn(100))
	for i := range keys {
		next += 1 + uint64(rng.Intn(8))
		keys[i] = next
	}
	return keys
}

func writeList(t *testing.T, keys, values []uint64, recordSize int) (*File, int64) {
	t.Helper()
	var docs, vals bytes.Buffer
	w, err := NewWriter(&docs, &vals, recordSize)
	require.NoError(t, err)
	root, err := w.WriteData(keys, values, 0, len(keys))
	require.NoError(t, err)
	return NewFile(docs.Bytes(), vals.Bytes(), recordSize), root
}

func readAll(t *testing.T, l *List, batch int) []uint64 {
	t.Helper()
	var out []uint64
	buf := query.NewBuffer(batch)
	for l.HasMore() {
		buf.Reset()
		require.NoError(t, l.GetKeys(buf))
		out = append(out, buf.Copy()...)
	}
	return out
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, n := range []int{0, 1, 2, rootCapacity - 1, rootCapacity, rootCapacity + 1,
		rootCapacity + nonRootCapacity, rootCapacity + nonRootCapacity + 1, 5000, 100000} {
		keys := randomKeys(rng, n)
		f, root := writeList(t, keys, nil, 0)

		got := readAll(t, f.List(root), 333)
		if n == 0 {
			assert.Empty(t, got)
			continue
		}
		assert.Equal(t, keys, got, "n=%d", n)
		require.NoError(t, f.Verify(root), "n=%d", n)
	}
}

func TestWriteData_RejectsUnsortedKeys(t *testing.T) {
	w, err := NewWriter(&bytes.Buffer{}, nil, 0)
	require.NoError(t, err)
	_, err = w.WriteData([]uint64{1, 3, 3}, nil, 0, 3)
	assert.Error(t, err)
	_, err = w.WriteData([]uint64{1, 2}, nil, 1, 5)
	assert.Error(t, err)
}

func TestWriteData_SingleBlockListsDoNotStraddle(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	var docs bytes.Buffer
	w, err := NewWriter(&docs, nil, 0)
	require.NoError(t, err)

	type written struct {
		root int64
		keys []uint64
	}
	var lists []written
	for i := 0; i < 200; i++ {
		keys := randomKeys(rng, 1+rng.Intn(rootCapacity))
		root, err := w.WriteData(keys, nil, 0, len(keys))
		require.NoError(t, err)
		size := int64(HeaderSize + len(keys)*wordSize)
		assert.LessOrEqual(t, root%BlockSize+size, int64(BlockSize))
		lists = append(lists, written{root, keys})
	}
	f := NewFile(docs.Bytes(), nil, 0)
	for _, l := range lists {
		assert.Equal(t, l.keys, readAll(t, f.List(l.root), 64))
	}
}

func TestMultipleListsShareFile(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	var docs, vals bytes.Buffer
	w, err := NewWriter(&docs, &vals, 2)
	require.NoError(t, err)

	sets := [][]uint64{randomKeys(rng, 10), randomKeys(rng, 3000), randomKeys(rng, 7), randomKeys(rng, 1200)}
	roots := make([]int64, len(sets))
	for i, keys := range sets {
		values := make([]uint64, 2*len(keys))
		for j, k := range keys {
			values[2*j] = k + uint64(i)
			values[2*j+1] = uint64(i)
		}
		roots[i], err = w.WriteData(keys, values, 0, len(keys))
		require.NoError(t, err)
	}

	f := NewFile(docs.Bytes(), vals.Bytes(), 2)
	for i, keys := range sets {
		l := f.List(roots[i])
		assert.Equal(t, keys, readAll(t, l, 100))

		out := make([]uint64, 2*len(keys))
		require.NoError(t, f.List(roots[i]).GetAllValues(keys, out))
		for j, k := range keys {
			assert.Equal(t, k+uint64(i), out[2*j])
			assert.Equal(t, uint64(i), out[2*j+1])
		}

		buf := query.NewBufferOf(keys...)
		require.NoError(t, f.List(roots[i]).RetainData(buf))
		assert.Equal(t, keys, buf.Copy())
	}
}

func intersect(keys, candidates []uint64) (in, out []uint64) {
	set := make(map[uint64]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	in, out = []uint64{}, []uint64{}
	for _, c := range candidates {
		if _, ok := set[c]; ok {
			in = append(in, c)
		} else {
			out = append(out, c)
		}
	}
	return in, out
}

func randomCandidates(rng *rand.Rand, keys []uint64, n int) []uint64 {
	seen := make(map[uint64]struct{}, n)
	limit := uint64(200)
	if len(keys) > 0 {
		limit = keys[len(keys)-1] + 50
	}
	for len(seen) < n {
		var c uint64
		if len(keys) > 0 && rng.Intn(2) == 0 {
			c = keys[rng.Intn(len(keys))]
		} else {
			c = uint64(rng.Int63n(int64(limit)))
		}
		seen[c] = struct{}{}
	}
	out := make([]uint64, 0, n)
	for c := range seen {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

func TestRetainRejectData_Randomized(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for round := 0; round < 40; round++ {
		keys := randomKeys(rng, rng.Intn(20000))
		f, root := writeList(t, keys, nil, 0)
		candidates := randomCandidates(rng, keys, 1+rng.Intn(2000))
		wantIn, wantOut := intersect(keys, candidates)

		buf := query.NewBufferOf(candidates...)
		require.NoError(t, f.List(root).RetainData(buf))
		assert.Equal(t, wantIn, buf.Copy(), "round %d", round)

		buf = query.NewBufferOf(candidates...)
		require.NoError(t, f.List(root).RejectData(buf))
		assert.Equal(t, wantOut, buf.Copy(), "round %d", round)
	}
}

func TestRetainData_ResumesAcrossBatches(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	keys := randomKeys(rng, 30000)
	f, root := writeList(t, keys, nil, 0)
	candidates := randomCandidates(rng, keys, 5000)
	wantIn, _ := intersect(keys, candidates)

	l := f.List(root)
	got := []uint64{}
	for start := 0; start < len(candidates); start += 256 {
		buf := query.NewBufferOf(candidates[start:min(start+256, len(candidates))]...)
		require.NoError(t, l.RetainData(buf))
		got = append(got, buf.Copy()...)
	}
	assert.Equal(t, wantIn, got)

	// A batch below the cursor restarts from the root.
	buf := query.NewBufferOf(keys[0], keys[2])
	require.NoError(t, l.RetainData(buf))
	assert.Equal(t, []uint64{keys[0], keys[2]}, buf.Copy())
}

func TestRetainRejectData_BlockBoundaries(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	keys := randomKeys(rng, 4000)
	f, root := writeList(t, keys, nil, 0)
	blocks, err := f.Blocks(root)
	require.NoError(t, err)
	require.Greater(t, len(blocks), 3)

	seen := map[uint64]struct{}{}
	var candidates []uint64
	add := func(v uint64) {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			candidates = append(candidates, v)
		}
	}
	for _, b := range blocks {
		add(b.MinKey - 1)
		add(b.MinKey)
		add(b.MaxKey - 1)
		add(b.MaxKey)
		add(b.MaxKey + 1)
	}
	slices.Sort(candidates)
	wantIn, wantOut := intersect(keys, candidates)

	buf := query.NewBufferOf(candidates...)
	require.NoError(t, f.List(root).RetainData(buf))
	assert.Equal(t, wantIn, buf.Copy())

	buf = query.NewBufferOf(candidates...)
	require.NoError(t, f.List(root).RejectData(buf))
	assert.Equal(t, wantOut, buf.Copy())

	// Each block max on its own, one list reused.
	l := f.List(root)
	for _, b := range blocks {
		buf := query.NewBufferOf(b.MaxKey)
		require.NoError(t, l.RetainData(buf))
		assert.Equal(t, []uint64{b.MaxKey}, buf.Copy())
	}
}

func TestRetainData_EmptyList(t *testing.T) {
	f, root := writeList(t, nil, nil, 0)
	buf := query.NewBufferOf(1, 2, 3)
	require.NoError(t, f.List(root).RetainData(buf))
	assert.True(t, buf.IsEmpty())

	buf = query.NewBufferOf(1, 2, 3)
	require.NoError(t, f.List(root).RejectData(buf))
	assert.Equal(t, []uint64{1, 2, 3}, buf.Copy())
}

func TestGetAllValues(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	keys := randomKeys(rng, 2000)
	values := make([]uint64, 2*len(keys))
	for i, k := range keys {
		values[2*i] = k * 3
		values[2*i+1] = k*5 + 1
	}
	f, root := writeList(t, keys, values, 2)
	rpb := recordsPerValueBlock(2)

	// Two keys in adjacent value blocks, one absent key, and a repeat of
	// the first block, out of order.
	lookup := []uint64{keys[rpb], keys[rpb-1], keys[0] - 1, keys[3], keys[rpb+1]}
	out := make([]uint64, 2*len(lookup))
	l := f.List(root)
	require.NoError(t, l.GetAllValues(lookup, out))

	for i, k := range lookup {
		if k == keys[0]-1 {
			assert.Zero(t, out[2*i])
			assert.Zero(t, out[2*i+1])
			continue
		}
		assert.Equal(t, k*3, out[2*i])
		assert.Equal(t, k*5+1, out[2*i+1])
	}
	assert.Equal(t, 2, l.ValueBlockReads())

	all := make([]uint64, 2*len(keys))
	l = f.List(root)
	require.NoError(t, l.GetAllValues(keys, all))
	assert.Equal(t, values, all)
	assert.Equal(t, (len(keys)+rpb-1)/rpb, l.ValueBlockReads())
}

func TestGetAllValues_CompactList(t *testing.T) {
	keys := []uint64{4, 8, 15, 16, 23, 42}
	f, root := writeList(t, keys, nil, 0)
	blocks, err := f.Blocks(root)
	require.NoError(t, err)
	assert.NotZero(t, blocks[0].Flags&FlagCompact)
	require.NoError(t, f.List(root).GetAllValues(keys, nil))
}

func TestForwardPointerLayout(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	for _, n := range []int{rootCapacity + 1, 20000, 100000} {
		keys := randomKeys(rng, n)
		f, root := writeList(t, keys, nil, 0)
		require.NoError(t, f.Verify(root))

		blocks, err := f.Blocks(root)
		require.NoError(t, err)
		require.Equal(t, numBlocks(n), len(blocks))
		for b, info := range blocks {
			assert.Equal(t, pointerCount(b, len(blocks)), len(info.Pointers), "n=%d block=%d", n, b)
			for i, p := range info.Pointers {
				target := b + stride(i)
				assert.Equal(t, root+int64(target)*BlockSize, p.Target)
				assert.Equal(t, blocks[target].MaxKey, p.Value)
			}
			if b < len(blocks)-1 {
				assert.Zero(t, info.Flags&FlagEndOfBlock)
				assert.NotEmpty(t, info.Pointers)
			} else {
				assert.NotZero(t, info.Flags&FlagEndOfBlock)
			}
		}
		// Root pointer count grows with the list, bounded.
		assert.LessOrEqual(t, len(blocks[0].Pointers), MaxRootPointers)
	}
}

func TestContains(t *testing.T) {
	keys := randomKeys(rand.New(rand.NewSource(9)), 3000)
	f, root := writeList(t, keys, nil, 0)
	ok, err := f.List(root).Contains(keys[2500])
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.List(root).Contains(keys[2500] + 1)
	require.NoError(t, err)
	assert.Equal(t, slices.Contains(keys, keys[2500]+1), ok)
}

func TestHeader_RejectsOutOfRange(t *testing.T) {
	f := NewFile(make([]byte, 8), nil, 0)
	_, err := f.Blocks(0)
	assert.ErrorIs(t, err, ErrCorrupt)
}
