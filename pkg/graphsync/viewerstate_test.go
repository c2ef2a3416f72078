package graphsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valuegraph/engine/pkg/model"
)

func snapshotWithNode(rev int64) model.Snapshot {
	return model.Snapshot{
		Revision: rev,
		Nodes: []*model.GraphNode{{
			ID: "n1", Kind: model.KindDriver, Label: "seed",
			Status: model.StatusActive, Stage: model.StageCommitment,
		}},
	}
}

func TestViewerStateStartsUnsynced(t *testing.T) {
	v := NewViewerState()
	assert.False(t, v.Synced())
	assert.Equal(t, int64(0), v.Revision())

	// Deltas before the first snapshot are ignored.
	applied, err := v.HandleDelta(model.RemoveNode("n1"), 0, 1)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestViewerStateSnapshotThenDelta(t *testing.T) {
	v := NewViewerState()
	require.NoError(t, v.HandleSnapshot(snapshotWithNode(3)))
	assert.True(t, v.Synced())
	assert.Equal(t, int64(3), v.Revision())

	applied, err := v.HandleDelta(model.AddNode(&model.GraphNode{
		ID: "n2", Kind: model.KindOutcome, Label: "next",
		Status: model.StatusActive, Stage: model.StageCommitment,
	}), 3, 4)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(4), v.Revision())
	assert.Len(t, v.Graph().Nodes, 2)
}

func TestViewerStateDetectsGap(t *testing.T) {
	v := NewViewerState()
	require.NoError(t, v.HandleSnapshot(snapshotWithNode(3)))

	// A delta parented off revision 5 means revision 4 was missed.
	applied, err := v.HandleDelta(model.RemoveNode("n1"), 5, 6)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.False(t, v.Synced())
	assert.Equal(t, int64(3), v.Revision(), "gap must not move the revision")

	// Still unsynced: even a correctly parented delta is refused until a
	// fresh snapshot arrives.
	applied, err = v.HandleDelta(model.RemoveNode("n1"), 3, 4)
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, v.HandleSnapshot(snapshotWithNode(7)))
	assert.True(t, v.Synced())
	assert.Equal(t, int64(7), v.Revision())
}

func TestViewerStateDivergenceIsAnError(t *testing.T) {
	v := NewViewerState()
	require.NoError(t, v.HandleSnapshot(snapshotWithNode(1)))

	// Correctly parented but locally inapplicable: the copies diverged.
	applied, err := v.HandleDelta(model.RemoveNode("ghost"), 1, 2)
	require.Error(t, err)
	assert.False(t, applied)
	assert.False(t, v.Synced())
}

func TestViewerStateRejectsBadSnapshot(t *testing.T) {
	v := NewViewerState()
	err := v.HandleSnapshot(model.Snapshot{
		Revision: 1,
		Edges: []*model.GraphEdge{{
			ID: "e1", SourceID: "a", TargetID: "b",
			Kind: model.EdgeCausal, Strength: 0.5,
		}},
	})
	require.Error(t, err)
	assert.False(t, v.Synced())
}
