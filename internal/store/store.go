// Package store persists workflow definitions in Redis. Definitions are
// stored as JSON values with a companion set for listing.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/pkg/api"
)

// Store is a Redis-backed workflow definition store
type Store struct {
	client *redis.Client
	prefix string
}

var ErrWorkflowNotFound = errors.New("workflow not found")

// NewStore connects a workflow store to the configured Redis instance
func NewStore(cfg config.RedisConfig) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: cfg.Prefix,
	}
}

// Put stores a workflow definition, stamping creation and update times
func (s *Store) Put(ctx context.Context, wf *api.Workflow) error {
	now := time.Now().UTC()

	res := *wf
	if res.CreatedAt.IsZero() {
		existing, err := s.Get(ctx, res.ID)
		if err == nil {
			res.CreatedAt = existing.CreatedAt
		} else {
			res.CreatedAt = now
		}
	}
	res.UpdatedAt = now

	encoded, err := json.Marshal(&res)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.workflowKey(res.ID), encoded, 0)
	pipe.SAdd(ctx, s.indexKey(), string(res.ID))
	_, err = pipe.Exec(ctx)
	return err
}

// Get retrieves a workflow definition by ID
func (s *Store) Get(
	ctx context.Context, id api.WorkflowID,
) (*api.Workflow, error) {
	data, err := s.client.Get(ctx, s.workflowKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	var wf api.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// Delete removes a workflow definition
func (s *Store) Delete(ctx context.Context, id api.WorkflowID) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.workflowKey(id))
	pipe.SRem(ctx, s.indexKey(), string(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}
	return nil
}

// List returns every stored workflow definition, ordered by ID
func (s *Store) List(ctx context.Context) ([]*api.Workflow, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	res := make([]*api.Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := s.Get(ctx, api.WorkflowID(id))
		if errors.Is(err, ErrWorkflowNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		res = append(res, wf)
	}
	return res, nil
}

// Close releases the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) workflowKey(id api.WorkflowID) string {
	return fmt.Sprintf("%s:workflow:%s", s.prefix, id)
}

func (s *Store) indexKey() string {
	return fmt.Sprintf("%s:workflows", s.prefix)
}
