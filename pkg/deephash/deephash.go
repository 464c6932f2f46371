// Package deephash computes the recursive SHA-384 digest that transactions
// are signed over. It is independent of the chunk tree in pkg/merkle.
//
// Blobs hash as tagged_hash384(["blob"+len, bytes]); lists fold their
// children into an accumulator seeded with SHA384("list"+count). Nesting is
// walked with an explicit stack, so depth is bounded only by memory.
package deephash

import (
	"crypto/sha512"
	"strconv"

	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/LumeraProtocol/weave/pkg/utils"
)

// Size is the length of a deep hash digest.
const Size = sha512.Size384

// Item is a Blob or a List.
type Item interface {
	isItem()
}

// Blob is a leaf byte string.
type Blob []byte

// List is an ordered sequence of items.
type List []Item

func (Blob) isItem() {}
func (List) isItem() {}

// String returns the blob holding s.
func String(s string) Blob { return Blob(s) }

// Hash returns the deep hash of item. A nil item anywhere in the structure
// fails with ErrInvariant.
func Hash(item Item) ([Size]byte, error) {
	switch v := item.(type) {
	case Blob:
		return hashBlob(v), nil
	case List:
		return hashList(v)
	default:
		return [Size]byte{}, errors.Errorf("%w: deep hash item is nil", errors.ErrInvariant)
	}
}

func hashBlob(b Blob) [Size]byte {
	tag := "blob" + strconv.Itoa(len(b))
	return utils.HashAllSha384([]byte(tag), b)
}

func listSeed(n int) [Size]byte {
	return utils.Sha384([]byte("list" + strconv.Itoa(n)))
}

// fold returns SHA384(acc || child).
func fold(acc, child [Size]byte) [Size]byte {
	var buf [2 * Size]byte
	copy(buf[:Size], acc[:])
	copy(buf[Size:], child[:])
	return utils.Sha384(buf[:])
}

type frame struct {
	list List
	next int
	acc  [Size]byte
}

func hashList(root List) ([Size]byte, error) {
	stack := []frame{{list: root, acc: listSeed(len(root))}}
	for {
		top := &stack[len(stack)-1]

		if top.next == len(top.list) {
			done := top.acc
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return done, nil
			}
			parent := &stack[len(stack)-1]
			parent.acc = fold(parent.acc, done)
			continue
		}

		child := top.list[top.next]
		top.next++
		switch v := child.(type) {
		case Blob:
			top.acc = fold(top.acc, hashBlob(v))
		case List:
			// top is invalidated by the append below
			stack = append(stack, frame{list: v, acc: listSeed(len(v))})
		default:
			return [Size]byte{}, errors.Errorf("%w: nil item at position %d of a %d-item list (depth %d)",
				errors.ErrInvariant, top.next-1, len(top.list), len(stack)-1)
		}
	}
}
