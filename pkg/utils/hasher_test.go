package utils

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"strings"
	"testing"

	"github.com/cosmos/btcutil/base58"
	"lukechampine.com/blake3"
)

func TestChunkSizeFor(t *testing.T) {
	const (
		kib = 1 << 10
		mib = 1 << 20
	)

	cases := []struct {
		name  string
		input int64
		want  int64
	}{
		{"zero", 0, 512 * kib},
		{"under4MiB", 3*mib + 512*kib, 512 * kib},
		{"exact4MiB", 4 * mib, 512 * kib},
		{"justOver4MiB", 4*mib + 1, 1 * mib},
		{"exact32MiB", 32 * mib, 1 * mib},
		{"justOver32MiB", 32*mib + 1, 2 * mib},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := chunkSizeFor(tc.input); got != tc.want {
				t.Fatalf("chunkSizeFor(%d) = %d, want %d", tc.input, got, tc.want)
			}
		})
	}
}

func TestBlake3Hash(t *testing.T) {
	t.Parallel()

	msg := []byte(strings.Repeat("weave data", 1024))
	want := blake3.Sum256(msg)

	if got := Blake3Hash(msg); !bytes.Equal(got, want[:]) {
		t.Fatalf("hash mismatch")
	}
	if got := ContentKey(msg); got != base58.Encode(want[:]) {
		t.Fatalf("content key mismatch: %s", got)
	}
}

func TestHashAllSha256(t *testing.T) {
	t.Parallel()

	a, b := []byte("left"), []byte("right")
	ha, hb := sha256.Sum256(a), sha256.Sum256(b)
	want := sha256.Sum256(append(ha[:], hb[:]...))

	if got := HashAllSha256(a, b); got != want {
		t.Fatalf("tagged hash mismatch")
	}
	// no messages hashes the empty concatenation
	if got := HashAllSha256(); got != sha256.Sum256(nil) {
		t.Fatalf("empty tagged hash mismatch")
	}
}

func TestHashAllSha384(t *testing.T) {
	t.Parallel()

	tag, body := []byte("blob5"), []byte("hello")
	ht, hb := sha512.Sum384(tag), sha512.Sum384(body)
	want := sha512.Sum384(append(ht[:], hb[:]...))

	if got := HashAllSha384(tag, body); got != want {
		t.Fatalf("tagged hash mismatch")
	}
}

func TestZstdRoundTrip(t *testing.T) {
	t.Parallel()

	for _, in := range [][]byte{nil, []byte("x"), bytes.Repeat([]byte("chunk"), 10000)} {
		c, err := ZstdCompress(in)
		if err != nil {
			t.Fatalf("compress: %v", err)
		}
		out, err := ZstdDecompress(c)
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		if !bytes.Equal(in, out) {
			t.Fatalf("round trip mismatch for %d bytes", len(in))
		}
	}
}
