// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package codec defines the external-collaborator interfaces the archive
// orchestrator depends on for decompression, compression and string
// hashing, plus swappable default implementations of each. The real
// opaque Hash40 algorithm and a production-grade zstd codec are treated
// as external collaborators by the core; the defaults here exist so the
// module is usable standalone, not as a faithful reimplementation of
// either.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Decompressor is the process-wide, swappable collaborator the archive
// orchestrator delegates decompression to.
type Decompressor interface {
	// Decompress returns the fully decompressed contents of data.
	Decompress(data []byte) ([]byte, error)
	// DecompressWithSize decompresses data into a buffer pre-sized to size,
	// avoiding a reallocation when the decompressed size is already known
	// from a table header.
	DecompressWithSize(data []byte, size int) ([]byte, error)
}

// Compressor is the process-wide, swappable collaborator the write path
// delegates compression to. Only exercised when compression is enabled.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Hasher is the opaque string-hashing collaborator; every hash in the
// manifest is produced by this algorithm. The real algorithm is out of
// scope for this module; the default placeholderHasher is an FNV-derived
// 40-bit hash, documented as such, not a faithful port.
type Hasher interface {
	Hash(s string) uint64
}

// The process-wide decompressor. Swappable at runtime; readers take the
// shared side of the lock for the duration of a single decompress call.
var (
	activeMu           sync.RWMutex
	activeDecompressor Decompressor = ZstdCodec{}
)

// SetDecompressor swaps the process-wide decompressor every Shared()
// handle delegates to.
func SetDecompressor(d Decompressor) {
	activeMu.Lock()
	activeDecompressor = d
	activeMu.Unlock()
}

// Shared returns a Decompressor handle backed by the process-wide
// decompressor, so a swap via SetDecompressor is picked up by every
// engine already holding the handle.
func Shared() Decompressor { return sharedDecompressor{} }

type sharedDecompressor struct{}

func (sharedDecompressor) Decompress(data []byte) ([]byte, error) {
	activeMu.RLock()
	defer activeMu.RUnlock()
	return activeDecompressor.Decompress(data)
}

func (sharedDecompressor) DecompressWithSize(data []byte, size int) ([]byte, error) {
	activeMu.RLock()
	defer activeMu.RUnlock()
	return activeDecompressor.DecompressWithSize(data, size)
}

// ZstdCodec is the default Decompressor/Compressor backed by
// github.com/klauspost/compress/zstd.
type ZstdCodec struct{}

// Decompress decompresses data with no prior knowledge of its final size.
func (ZstdCodec) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("codec: zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("codec: zstd decompress: %w", err)
	}
	return out, nil
}

// DecompressWithSize decompresses data into a buffer pre-allocated to size.
func (z ZstdCodec) DecompressWithSize(data []byte, size int) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("codec: zstd reader: %w", err)
	}
	defer dec.Close()
	out := make([]byte, 0, size)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, dec); err != nil {
		return nil, fmt.Errorf("codec: zstd decompress: %w", err)
	}
	return buf.Bytes(), nil
}

// Compress compresses data at the default compression level.
func (ZstdCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("codec: zstd writer: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return nil, fmt.Errorf("codec: zstd compress: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("codec: zstd compress: %w", err)
	}
	return buf.Bytes(), nil
}

// placeholderHasher is the default Hasher: a simple FNV-1a derivative
// truncated to 40 bits. It is NOT the real opaque algorithm the on-disk
// format was actually hashed with; callers operating on real archives must
// substitute the genuine implementation via Options.
type placeholderHasher struct{}

// NewPlaceholderHasher returns the default, non-authoritative Hasher.
func NewPlaceholderHasher() Hasher { return placeholderHasher{} }

// Hash computes a 40-bit FNV-1a-derived digest of s. See placeholderHasher.
func (placeholderHasher) Hash(s string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h & 0x000000FFFFFFFFFF
}
