package stop

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGroupAggregatesErrors(t *testing.T) {
	g := NewGroup()
	g.AddFunc(func() Result { return AlreadyStopped })
	g.AddFunc(func() Result {
		c := make(Channel)
		go c.Done(nil, errors.New("listener closed twice"))
		return c.Result()
	})
	g.Add(nil)

	errs := g.Stop().Wait()
	require.Len(t, errs, 1)
	require.EqualError(t, errs[0], "listener closed twice")
}

func TestEmptyGroup(t *testing.T) {
	require.Empty(t, NewGroup().Stop().Wait())
}
