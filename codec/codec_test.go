// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"testing"
)

func TestZstdRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("packaged table bytes "), 64)

	c := ZstdCodec{}
	compressed, err := c.Compress(payload)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	out, err := c.Decompress(compressed)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("decompressed bytes differ from input")
	}

	sized, err := c.DecompressWithSize(compressed, len(payload))
	if err != nil {
		t.Fatalf("DecompressWithSize: %v", err)
	}
	if !bytes.Equal(sized, payload) {
		t.Fatal("size-hinted decompression differs from input")
	}
}

func TestSharedDecompressorIsSwappable(t *testing.T) {
	defer SetDecompressor(ZstdCodec{})

	SetDecompressor(identityCodec{})
	raw := []byte{1, 2, 3}
	out, err := Shared().Decompress(raw)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Fatal("swap did not take effect on an existing Shared handle")
	}
}

type identityCodec struct{}

func (identityCodec) Decompress(data []byte) ([]byte, error) { return data, nil }
func (identityCodec) DecompressWithSize(data []byte, _ int) ([]byte, error) {
	return data, nil
}

func TestPlaceholderHasherIs40Bits(t *testing.T) {
	h := NewPlaceholderHasher()
	for _, s := range []string{"", "a", "a/b/c.bin", "some/long/path/with/segments.nutexb"} {
		if got := h.Hash(s); got&^uint64(0xFFFFFFFFFF) != 0 {
			t.Fatalf("Hash(%q) = %#x exceeds 40 bits", s, got)
		}
	}
	if h.Hash("a/b.bin") == h.Hash("a/c.bin") {
		t.Fatal("distinct paths should not collide in the test corpus")
	}
}
