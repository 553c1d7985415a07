package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/mintline/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces workflow keys.
const DefaultPrefix = "mintline:workflow:"

// farFuture is the index score of snapshots that never expire (2100-01-01).
const farFuture = 4102444800

// Store implements ports.StateStore using Redis.
// Snapshots are JSON strings; an index ZSET scored by expiry backs List.
// Only settled workflows (IDLE or SUCCESS) expire. A workflow that holds a
// distribution account and has not finished is kept until it is deleted.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets how long snapshots of settled workflows are kept.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for snapshots.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(workflowID string) string {
	return s.prefix + workflowID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// expiry is the TTL of a snapshot in stage; zero keeps it.
func (s *Store) expiry(stage domain.Stage) time.Duration {
	if stage == domain.StageIdle || stage.Terminal() {
		return s.ttl
	}
	return 0
}

// Save persists the snapshot and refreshes its index entry.
func (s *Store) Save(ctx context.Context, workflowID string, state *domain.WorkflowState) error {
	if state.ID != "" && state.ID != workflowID {
		return fmt.Errorf("snapshot of workflow %q saved as %q", state.ID, workflowID)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	ttl := s.expiry(state.Stage)
	score := float64(farFuture)
	if ttl > 0 {
		score = float64(time.Now().Add(ttl).Unix())
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(workflowID), data, ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: workflowID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the snapshot.
func (s *Store) Load(ctx context.Context, workflowID string) (*domain.WorkflowState, error) {
	val, err := s.client.Get(ctx, s.key(workflowID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var state domain.WorkflowState
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return &state, nil
}

// Delete removes the snapshot and its index entry.
func (s *Store) Delete(ctx context.Context, workflowID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(workflowID))
	pipe.ZRem(ctx, s.indexKey(), workflowID)

	_, err := pipe.Exec(ctx)
	return err
}

// Prune drops index entries of snapshots that have expired and reports how many.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	n, err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", now).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired workflows: %w", err)
	}
	return n, nil
}

// List returns stored workflow IDs, pruning expired ones first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if _, err := s.Prune(ctx); err != nil {
		return nil, err
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	return ids, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
