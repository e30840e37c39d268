package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenCounterEmptyString(t *testing.T) {
	tc := NewTokenCounter()
	require.Equal(t, 0, tc.Count(""))
}

func TestTokenCounterNonEmptyPositive(t *testing.T) {
	tc := NewTokenCounter()
	n := tc.Count("the quick brown fox jumps over the lazy dog")
	require.Greater(t, n, 0)
}

func TestTokenCounterLongerTextMoreTokens(t *testing.T) {
	tc := NewTokenCounter()
	short := tc.Count("hello world")
	long := tc.Count("hello world this is a much longer sentence with many more words in it")
	require.Greater(t, long, short)
}
