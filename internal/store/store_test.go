package store_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/loomworks/loom/internal/assert/helpers"
	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/pkg/api"
)

func withStore(t *testing.T, fn func(*store.Store)) {
	t.Helper()

	server, err := miniredis.Run()
	assert.NoError(t, err)
	defer server.Close()

	s := store.NewStore(config.RedisConfig{
		Addr:   server.Addr(),
		Prefix: "test",
	})
	defer func() { _ = s.Close() }()

	fn(s)
}

func TestPutAndGet(t *testing.T) {
	withStore(t, func(s *store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		wf := helpers.NewDiamondWorkflow("diamond")
		as.NoError(s.Put(ctx, wf))

		got, err := s.Get(ctx, "diamond")
		as.NoError(err)
		as.Equal(wf.ID, got.ID)
		as.Equal(wf.Name, got.Name)
		as.Len(got.Steps, 4)
		as.False(got.CreatedAt.IsZero())
		as.False(got.UpdatedAt.IsZero())
	})
}

func TestPutPreservesCreatedAt(t *testing.T) {
	withStore(t, func(s *store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		wf := helpers.NewDiamondWorkflow("diamond")
		as.NoError(s.Put(ctx, wf))

		first, err := s.Get(ctx, "diamond")
		as.NoError(err)

		updated := helpers.NewDiamondWorkflow("diamond")
		updated.Name = "Renamed"
		as.NoError(s.Put(ctx, updated))

		second, err := s.Get(ctx, "diamond")
		as.NoError(err)
		as.Equal("Renamed", second.Name)
		as.Equal(first.CreatedAt, second.CreatedAt)
	})
}

func TestGetNotFound(t *testing.T) {
	withStore(t, func(s *store.Store) {
		as := assert.New(t)

		_, err := s.Get(context.Background(), "missing")
		as.ErrorIs(err, store.ErrWorkflowNotFound)
	})
}

func TestDelete(t *testing.T) {
	withStore(t, func(s *store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		wf := helpers.NewDiamondWorkflow("diamond")
		as.NoError(s.Put(ctx, wf))
		as.NoError(s.Delete(ctx, "diamond"))

		_, err := s.Get(ctx, "diamond")
		as.ErrorIs(err, store.ErrWorkflowNotFound)

		as.ErrorIs(s.Delete(ctx, "diamond"), store.ErrWorkflowNotFound)
	})
}

func TestListOrdered(t *testing.T) {
	withStore(t, func(s *store.Store) {
		as := assert.New(t)
		ctx := context.Background()

		for _, id := range []api.WorkflowID{"charlie", "alpha", "bravo"} {
			as.NoError(s.Put(ctx, helpers.NewTestWorkflow(
				id, helpers.NewSimpleStep("a"),
			)))
		}

		workflows, err := s.List(ctx)
		as.NoError(err)
		as.Len(workflows, 3)
		as.Equal(api.WorkflowID("alpha"), workflows[0].ID)
		as.Equal(api.WorkflowID("bravo"), workflows[1].ID)
		as.Equal(api.WorkflowID("charlie"), workflows[2].ID)
	})
}

func TestListEmpty(t *testing.T) {
	withStore(t, func(s *store.Store) {
		as := assert.New(t)

		workflows, err := s.List(context.Background())
		as.NoError(err)
		as.Empty(workflows)
	})
}
