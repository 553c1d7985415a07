package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/mintline/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract runs a suite of tests to verify that a StateStore implementation
// adheres to the defined interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	workflowID := "contract-test-workflow-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewWorkflowState(workflowID)
		state.Version = 3
		state.Stage = domain.StageReadyToSign
		state.History = append(state.History, domain.StagePreparing, domain.StageReadyToSign)
		state.Request = &domain.IssuanceRequest{
			Creator:     "GCREATOR",
			AssetCode:   "ABC",
			DisplayName: "Alpha",
			TotalSupply: "1000000",
			FeeBps:      1000,
		}
		require.NoError(t, state.SetDistributionAccount("GDIST"))
		require.NoError(t, state.SetTrustlineTxRef("trustline-tx"))

		err := store.Save(ctx, workflowID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, workflowID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, domain.StageReadyToSign, loaded.Stage)
		assert.Equal(t, int64(3), loaded.Version)
		assert.Equal(t, "GDIST", loaded.DistributionAccount)
		assert.Equal(t, "trustline-tx", loaded.TrustlineTxRef)
		require.NotNil(t, loaded.Request)
		assert.Equal(t, "ABC", loaded.Request.AssetCode)
		assert.Equal(t, state.History, loaded.History)
	})

	t.Run("Load returns a copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, workflowID)
		require.NoError(t, err)
		loaded.Stage = domain.StageSuccess

		again, err := store.Load(ctx, workflowID)
		require.NoError(t, err)
		assert.Equal(t, domain.StageReadyToSign, again.Stage)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+workflowID)
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, workflowID, domain.NewWorkflowState(workflowID))
		require.NoError(t, err)

		err = store.Delete(ctx, workflowID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, workflowID)
		assert.ErrorIs(t, err, domain.ErrWorkflowNotFound, "Load after Delete should return ErrWorkflowNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := workflowID + "-1"
		id2 := workflowID + "-2"
		_ = store.Save(ctx, id1, domain.NewWorkflowState(id1))
		_ = store.Save(ctx, id2, domain.NewWorkflowState(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
