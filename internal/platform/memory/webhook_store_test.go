package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artivo/restyle-api/internal/domain"
	"github.com/artivo/restyle-api/internal/store"
)

func TestWebhookSubscriberStore(t *testing.T) {
	ctx := context.Background()
	s := NewWebhookSubscriberStore()

	sub, err := domain.NewWebhookSubscriber(uuid.New(), "https://example.com/hooks", nil, "secret")
	require.NoError(t, err)

	require.NoError(t, s.Create(ctx, sub))
	assert.ErrorIs(t, s.Create(ctx, sub), store.ErrDuplicate)

	got, err := s.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.CallbackURL, got.CallbackURL)

	inactive, err := domain.NewWebhookSubscriber(uuid.New(), "https://example.com/other", nil, "")
	require.NoError(t, err)
	inactive.Active = false
	require.NoError(t, s.Create(ctx, inactive))

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, sub.ID, active[0].ID)

	require.NoError(t, s.Delete(ctx, sub.ID))
	assert.ErrorIs(t, s.Delete(ctx, sub.ID), store.ErrSubscriberNotFound)

	_, err = s.GetByID(ctx, sub.ID)
	assert.ErrorIs(t, err, store.ErrSubscriberNotFound)
}
