package cluster

import (
	"testing"

	"cytosort/pkg/errdefs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAssignment(t *testing.T, ids []string, labels []int) *Assignment {
	t.Helper()
	a := NewAssignment()
	require.NoError(t, a.SetAll(ids, labels))
	return a
}

func TestAssignmentSetAll(t *testing.T) {
	a := seedAssignment(t,
		[]string{"a", "b", "c", "d"},
		[]int{0, 0, 1, 2},
	)

	assert.Equal(t, 4, a.Len())
	assert.Equal(t, []int{0, 1, 2}, a.Labels())
	assert.Equal(t, []string{"a", "b"}, a.Members(0))

	label, ok := a.Label("c")
	require.True(t, ok)
	assert.Equal(t, 1, label)

	t.Run("LengthMismatch", func(t *testing.T) {
		err := NewAssignment().SetAll([]string{"a"}, []int{0, 1})
		assert.ErrorIs(t, err, errdefs.ErrConfig)
	})
}

func TestAssignmentSplit(t *testing.T) {
	a := seedAssignment(t,
		[]string{"a", "b", "c", "d", "e"},
		[]int{0, 0, 0, 0, 1},
	)

	// Split label 0 into two sub-clusters.
	err := a.ApplySplit(0, []string{"a", "b", "c", "d"}, []int{0, 0, 1, 1})
	require.NoError(t, err)

	// The original label is fully retired.
	assert.Empty(t, a.Members(0))

	// All four members are distributed over exactly two fresh labels.
	labelA, _ := a.Label("a")
	labelB, _ := a.Label("b")
	labelC, _ := a.Label("c")
	labelD, _ := a.Label("d")
	assert.Equal(t, labelA, labelB)
	assert.Equal(t, labelC, labelD)
	assert.NotEqual(t, labelA, labelC)
	assert.NotEqual(t, 0, labelA)
	assert.NotEqual(t, 0, labelC)

	// The untouched label survives and every image still has one label.
	labelE, ok := a.Label("e")
	require.True(t, ok)
	assert.Equal(t, 1, labelE)
	assert.Equal(t, 5, a.Len())
}

func TestAssignmentSplitErrors(t *testing.T) {
	t.Run("IncompleteCoverage", func(t *testing.T) {
		a := seedAssignment(t, []string{"a", "b", "c"}, []int{0, 0, 0})
		err := a.ApplySplit(0, []string{"a", "b"}, []int{0, 1})
		assert.ErrorIs(t, err, errdefs.ErrState)
		// Failed split leaves the table untouched.
		assert.Equal(t, []string{"a", "b", "c"}, a.Members(0))
	})

	t.Run("EmptyLabel", func(t *testing.T) {
		a := seedAssignment(t, []string{"a"}, []int{0})
		err := a.ApplySplit(7, []string{"a"}, []int{0})
		assert.ErrorIs(t, err, errdefs.ErrState)
	})

	t.Run("WrongLabel", func(t *testing.T) {
		a := seedAssignment(t, []string{"a", "b"}, []int{0, 1})
		err := a.ApplySplit(0, []string{"b"}, []int{0})
		assert.ErrorIs(t, err, errdefs.ErrState)
	})
}

func TestAssignmentMerge(t *testing.T) {
	a := seedAssignment(t,
		[]string{"a", "b", "c", "d", "e"},
		[]int{0, 0, 1, 1, 2},
	)

	newLabel, err := a.Merge(0, 1)
	require.NoError(t, err)

	// The merged label holds exactly the members of the sources.
	assert.Equal(t, []string{"a", "b", "c", "d"}, a.Members(newLabel))
	assert.Empty(t, a.Members(0))
	assert.Empty(t, a.Members(1))
	assert.Equal(t, []int{2, newLabel}, a.Labels())
}

func TestAssignmentMergeErrors(t *testing.T) {
	a := seedAssignment(t, []string{"a", "b"}, []int{0, 1})

	_, err := a.Merge(0)
	assert.ErrorIs(t, err, errdefs.ErrState)

	_, err = a.Merge(0, 0)
	assert.ErrorIs(t, err, errdefs.ErrState)

	_, err = a.Merge(0, 9)
	assert.ErrorIs(t, err, errdefs.ErrState)
}

func TestFreshLabelsNeverReused(t *testing.T) {
	a := seedAssignment(t, []string{"a", "b", "c", "d"}, []int{0, 0, 1, 1})

	merged, err := a.Merge(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, merged)

	require.NoError(t, a.ApplySplit(merged, []string{"a", "b", "c", "d"}, []int{0, 0, 1, 1}))
	for _, label := range a.Labels() {
		assert.Greater(t, label, merged)
	}
}
