package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWordFilter(t *testing.T) {
	t.Parallel()

	filter := NewWordFilter([]string{"Bad", " ", "욕설"})

	require.True(t, filter.Contains("verybadname"))
	require.True(t, filter.Contains("B.A.D"))
	require.True(t, filter.Contains("이건욕설임"))
	require.False(t, filter.Contains("goodname"))

	var empty *WordFilter
	require.False(t, empty.Contains("bad"))
	require.False(t, NewWordFilter(nil).Contains("bad"))
}
