package replica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpaqueApplyAndDiff(t *testing.T) {
	a := NewOpaque()
	require.NoError(t, a.ApplyUpdate([]byte("u1")))
	require.NoError(t, a.ApplyUpdate([]byte("u2")))

	b := NewOpaque()
	diff := a.Diff(b.StateVector())
	updates, err := SplitBatch(diff)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	for _, u := range updates {
		require.NoError(t, b.ApplyUpdate(u))
	}

	assert.Equal(t, a.StateVector(), b.StateVector())
}

func TestOpaqueDiffIsIncremental(t *testing.T) {
	a := NewOpaque()
	require.NoError(t, a.ApplyUpdate([]byte("u1")))
	sv := a.StateVector()
	require.NoError(t, a.ApplyUpdate([]byte("u2")))

	diff := a.Diff(sv)
	updates, err := SplitBatch(diff)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, []byte("u2"), updates[0])
}

func TestOpaqueApplyUpdateRejectsEmpty(t *testing.T) {
	a := NewOpaque()
	assert.ErrorIs(t, a.ApplyUpdate(nil), ErrEmptyUpdate)
	assert.ErrorIs(t, a.ApplyUpdate([]byte{}), ErrEmptyUpdate)
}

func TestOpaqueDiffWithUnknownStateVectorOverShares(t *testing.T) {
	a := NewOpaque()
	require.NoError(t, a.ApplyUpdate([]byte("u1")))

	diff := a.Diff([]byte("garbage"))
	updates, err := SplitBatch(diff)
	require.NoError(t, err)
	require.Len(t, updates, 1, "an unparseable state vector falls back to sharing everything")
}
