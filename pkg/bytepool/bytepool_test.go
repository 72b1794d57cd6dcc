package bytepool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetPut(t *testing.T) {
	bp := New(4096)
	b := bp.Get()
	require.Len(t, *b, 4096)

	*b = (*b)[:10]
	bp.Put(b)

	b = bp.Get()
	require.Len(t, *b, 4096)

	foreign := make([]byte, 12)
	bp.Put(&foreign)
	require.Equal(t, 4096, bp.Len())
}
