package cache

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pierrec/lz4/v4"

	"github.com/Adithya-Monish-Kumar-K/search-index-core/internal/searcher/executor"
	pkgredis "github.com/Adithya-Monish-Kumar-K/search-index-core/pkg/redis"
)

// Shared entries are JSON compressed as one LZ4 block behind an 8-byte
// header: uncompressed size, then compressed size, zero when the payload
// is stored raw.
const headerSize = 8

func encode(resp *executor.Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= len(data) {
		out := make([]byte, headerSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[headerSize:], data)
		return out, nil
	}
	out := make([]byte, headerSize+n)
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(n))
	copy(out[headerSize:], compressed[:n])
	return out, nil
}

func decode(data []byte) (*executor.Response, error) {
	if len(data) < headerSize {
		return nil, errors.New("entry too small for header")
	}
	size := binary.LittleEndian.Uint32(data[0:])
	compressedSize := binary.LittleEndian.Uint32(data[4:])
	body := data[headerSize:]

	var raw []byte
	if compressedSize == 0 {
		if uint32(len(body)) != size {
			return nil, fmt.Errorf("raw entry is %d bytes, header says %d", len(body), size)
		}
		raw = body
	} else {
		if uint32(len(body)) != compressedSize {
			return nil, fmt.Errorf("compressed entry is %d bytes, header says %d", len(body), compressedSize)
		}
		raw = make([]byte, size)
		n, err := lz4.UncompressBlock(body, raw)
		if err != nil {
			return nil, err
		}
		if uint32(n) != size {
			return nil, errors.New("decompressed size mismatch")
		}
	}
	var resp executor.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RedisStore adapts a Redis client to Store and Purger.
type RedisStore struct {
	Client *pkgredis.Client
}

func (s RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, found, err := s.Client.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrMiss
	}
	return data, nil
}

func (s RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Client.Set(ctx, key, value, ttl)
}

func (s RedisStore) PurgeExcept(ctx context.Context, prefix, keep string) (int, error) {
	return s.Client.PurgeExcept(ctx, prefix, keep)
}
