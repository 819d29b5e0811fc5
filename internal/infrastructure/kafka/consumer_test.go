package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EricDistort/QuberX/internal/models"
)

type recordingInvalidator struct {
	ids  []int64
	fail map[int64]error
}

func (r *recordingInvalidator) InvalidateBalances(_ context.Context, id int64) error {
	r.ids = append(r.ids, id)
	return r.fail[id]
}

func TestConsumerHandle(t *testing.T) {
	t.Run("InvalidatesEveryAccount", func(t *testing.T) {
		inv := &recordingInvalidator{}
		c := &Consumer{invalidator: inv}
		payload, err := json.Marshal(models.LedgerEvent{ID: "e1", Type: models.EventTransferCommitted, AccountIDs: []int64{1, 2}})
		require.NoError(t, err)

		require.NoError(t, c.handle(context.Background(), payload))
		assert.Equal(t, []int64{1, 2}, inv.ids)
	})

	t.Run("ContinuesPastFailure", func(t *testing.T) {
		inv := &recordingInvalidator{fail: map[int64]error{1: errors.New("redis down")}}
		c := &Consumer{invalidator: inv}
		payload, err := json.Marshal(models.LedgerEvent{ID: "e2", AccountIDs: []int64{1, 2}})
		require.NoError(t, err)

		err = c.handle(context.Background(), payload)
		assert.ErrorContains(t, err, "redis down")
		assert.Equal(t, []int64{1, 2}, inv.ids)
	})

	t.Run("BadPayload", func(t *testing.T) {
		c := &Consumer{invalidator: &recordingInvalidator{}}
		assert.Error(t, c.handle(context.Background(), []byte("not json")))
	})
}
