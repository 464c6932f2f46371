package errors

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorfKeepsKind(t *testing.T) {
	err := Errorf("%w: branch record 2 is short", ErrInvalidProof)
	require.True(t, Is(err, ErrInvalidProof))
	require.False(t, Is(err, ErrSigning))
	require.Equal(t, "invalid proof: branch record 2 is short", err.Error())
}

func TestWrap(t *testing.T) {
	require.Nil(t, Wrap(nil, "ignored"))

	err := Wrap(ErrEncoding, "decode tag name")
	require.True(t, Is(err, ErrEncoding))
	require.Equal(t, "decode tag name: encoding error", err.Error())
}

func TestErrorStack(t *testing.T) {
	require.Empty(t, ErrorStack(nil))

	err := New("boom")
	stack := ErrorStack(err)
	require.True(t, strings.Contains(stack, "boom"))
	require.Contains(t, stack, "errors_test.go")
}
