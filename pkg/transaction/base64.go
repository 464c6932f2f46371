package transaction

import (
	"encoding/base64"
	"unicode/utf8"
	"unsafe"

	"github.com/LumeraProtocol/weave/pkg/errors"
	json "github.com/json-iterator/go"
)

// Base64 holds the raw bytes of a binary field. Its text form is base64url
// without padding.
type Base64 []byte

func init() {
	// nil and empty values both encode as "" instead of null
	json.RegisterTypeEncoderFunc("transaction.Base64", func(ptr unsafe.Pointer, stream *json.Stream) {
		stream.WriteString((*(*Base64)(ptr)).String())
	}, func(ptr unsafe.Pointer) bool {
		return len(*(*Base64)(ptr)) == 0
	})
	json.RegisterTypeDecoderFunc("transaction.Base64", func(ptr unsafe.Pointer, iter *json.Iterator) {
		if iter.WhatIsNext() == json.NilValue {
			iter.ReadNil()
			*(*Base64)(ptr) = nil
			return
		}
		b, err := ParseBase64(iter.ReadString())
		if err != nil {
			iter.ReportError("decode base64url", err.Error())
			return
		}
		*(*Base64)(ptr) = b
	})
}

// ParseBase64 decodes a base64url string without padding.
func ParseBase64(s string) (Base64, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Errorf("%w: base64url %q: %w", errors.ErrEncoding, truncate(s, 16), err)
	}
	return b, nil
}

// FromUTF8String returns the bytes of s.
func FromUTF8String(s string) Base64 { return Base64(s) }

// String returns the base64url form of b.
func (b Base64) String() string { return base64.RawURLEncoding.EncodeToString(b) }

// ToUTF8String interprets b as UTF-8 text.
func (b Base64) ToUTF8String() (string, error) {
	if !utf8.Valid(b) {
		return "", errors.Errorf("%w: %d bytes are not valid UTF-8", errors.ErrEncoding, len(b))
	}
	return string(b), nil
}

// MarshalText implements encoding.TextMarshaler.
func (b Base64) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Base64) UnmarshalText(text []byte) error {
	v, err := ParseBase64(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
