package differ

import (
	"testing"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id string, modified int64) models.Item {
	return models.Item{ID: id, Modified: modified, Created: modified}
}

func ids(items []models.Item) []string {
	result := make([]string, 0, len(items))
	for _, i := range items {
		result = append(result, i.ID)
	}
	return result
}

func TestCollectNewItems(t *testing.T) {
	local := []models.Item{item("a", 1), item("b", 1)}
	remote := []models.Item{item("b", 1), item("c", 1), item("d", 1)}

	assert.ElementsMatch(t, []string{"c", "d"}, ids(CollectNewItems(local, remote)))
	assert.ElementsMatch(t, []string{"a"}, ids(CollectNewItems(remote, local)))
	assert.Empty(t, CollectNewItems(local, nil))
}

func TestCollectModifiedItems_StrictlyGreaterOnly(t *testing.T) {
	current := []models.Item{item("a", 10), item("b", 10), item("c", 10)}
	updated := []models.Item{item("a", 10), item("b", 11), item("c", 9)}

	got, err := CollectModifiedItems(current, updated)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(got))
}

func TestCollectModifiedItems_SizeMismatch(t *testing.T) {
	_, err := CollectModifiedItems([]models.Item{item("a", 1)}, nil)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestCollectModifiedItems_IDSetMismatch(t *testing.T) {
	current := []models.Item{item("a", 1), item("b", 1)}
	updated := []models.Item{item("a", 1), item("x", 1)}

	_, err := CollectModifiedItems(current, updated)
	assert.ErrorIs(t, err, common.ErrInvalidState)
}

func TestDifferentiate_DisjointSetsPartitionExactly(t *testing.T) {
	local := []models.Item{item("a", 1), item("b", 2)}
	remote := []models.Item{item("c", 3), item("d", 4)}

	result, err := Differentiate(local, remote)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"c", "d"}, ids(result.NewForLocal))
	assert.ElementsMatch(t, []string{"a", "b"}, ids(result.NewForRemote))
	assert.Empty(t, result.ModifiedForLocal)
	assert.Empty(t, result.ModifiedForRemote)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(result.RemoteChangedItems()))
}

func TestDifferentiate_Scenario(t *testing.T) {
	// local {a@10, b@10}, remote {a@10, b@11, c@10}
	local := []models.Item{item("a", 10), item("b", 10)}
	remote := []models.Item{item("a", 10), item("b", 11), item("c", 10)}

	result, err := Differentiate(local, remote)
	require.NoError(t, err)

	assert.Equal(t, []string{"c"}, ids(result.NewForLocal))
	assert.Empty(t, result.NewForRemote)
	require.Len(t, result.ModifiedForLocal, 1)
	assert.Equal(t, "b", result.ModifiedForLocal[0].ID)
	assert.Equal(t, int64(11), result.ModifiedForLocal[0].Modified)
	assert.Empty(t, result.ModifiedForRemote)
	assert.Empty(t, result.RemoteChangedItems())
	assert.True(t, result.HasChanges())
}

func TestDifferentiate_EqualTimestampsNoChange(t *testing.T) {
	local := []models.Item{item("a", 10)}
	remote := []models.Item{item("a", 10)}

	result, err := Differentiate(local, remote)
	require.NoError(t, err)
	assert.False(t, result.HasChanges())
}

func TestDifferentiate_BothDirections(t *testing.T) {
	local := []models.Item{item("a", 20), item("b", 5)}
	remote := []models.Item{item("a", 10), item("b", 7)}

	result, err := Differentiate(local, remote)
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, ids(result.ModifiedForLocal))
	assert.Equal(t, []string{"a"}, ids(result.ModifiedForRemote))
	assert.Equal(t, []string{"a"}, ids(result.RemoteChangedItems()))
}

func TestDifferentiate_TombstonesPropagate(t *testing.T) {
	deleted := item("a", 30)
	deleted.Deleted = true
	local := []models.Item{deleted}
	remote := []models.Item{item("a", 10)}

	result, err := Differentiate(local, remote)
	require.NoError(t, err)
	require.Len(t, result.ModifiedForRemote, 1)
	assert.True(t, result.ModifiedForRemote[0].Deleted)
}
