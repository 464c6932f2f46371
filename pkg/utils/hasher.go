package utils

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"

	"github.com/cosmos/btcutil/base58"
	"lukechampine.com/blake3"
)

// Sha256 returns SHA-256 of msg.
func Sha256(msg []byte) [sha256.Size]byte {
	return sha256.Sum256(msg)
}

// Sha384 returns SHA-384 of msg.
func Sha384(msg []byte) [sha512.Size384]byte {
	return sha512.Sum384(msg)
}

// HashAllSha256 hashes every message independently and then hashes the
// concatenation of those digests: SHA256(SHA256(m0) || SHA256(m1) || ...).
func HashAllSha256(msgs ...[]byte) [sha256.Size]byte {
	h := sha256.New()
	for _, m := range msgs {
		sum := sha256.Sum256(m)
		h.Write(sum[:])
	}
	var out [sha256.Size]byte
	h.Sum(out[:0])
	return out
}

// HashAllSha384 is the SHA-384 counterpart of HashAllSha256.
func HashAllSha384(msgs ...[]byte) [sha512.Size384]byte {
	h := sha512.New384()
	for _, m := range msgs {
		sum := sha512.Sum384(m)
		h.Write(sum[:])
	}
	var out [sha512.Size384]byte
	h.Sum(out[:0])
	return out
}

// chunkSizeFor returns the write size used when feeding large buffers to
// BLAKE3, based on the total input size.
func chunkSizeFor(total int64) int64 {
	switch {
	case total <= 4<<20: // ≤ 4 MiB
		return 512 << 10
	case total <= 32<<20: // ≤ 32 MiB
		return 1 << 20
	default:
		return 2 << 20
	}
}

// Blake3Hash returns the 32-byte BLAKE3 hash of msg.
func Blake3Hash(msg []byte) []byte {
	h := blake3.New(32, nil)
	msgLen := int64(len(msg))
	chunk := chunkSizeFor(msgLen)
	for off := int64(0); off < msgLen; off += chunk {
		end := off + chunk
		if end > msgLen {
			end = msgLen
		}
		h.Write(msg[off:end])
	}
	return h.Sum(nil)
}

// ContentKey returns the base58 BLAKE3 digest of msg. It identifies input
// buffers locally (caches, in-flight guards) and is never part of the wire
// format.
func ContentKey(msg []byte) string {
	return base58.Encode(Blake3Hash(msg))
}

// HexOf returns the hex encoding of b.
func HexOf(b []byte) string {
	return hex.EncodeToString(b)
}
