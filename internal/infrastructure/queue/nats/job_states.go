package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
	"github.com/joseffiran/SilkRouteHelper-1/internal/infrastructure/resilience"
)

// JobStates keeps the latest state of every background job in a KV bucket.
type JobStates struct {
	kv       jetstream.KeyValue
	executor *resilience.Executor
}

func NewJobStates(ctx context.Context, q *Queue, bucket string, ttl time.Duration) (*JobStates, error) {
	if bucket == "" {
		bucket = "declaration_job_states"
	}
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		TTL:     ttl,
		History: 1,
		Storage: jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure kv bucket %s: %w", bucket, err)
	}
	return &JobStates{kv: kv, executor: q.executor}, nil
}

func (s *JobStates) Put(ctx context.Context, state domain.JobState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal job state: %w", err)
	}
	call := func(callCtx context.Context) error {
		if _, err := s.kv.Put(callCtx, state.JobID, payload); err != nil {
			return fmt.Errorf("kv put: %w", err)
		}
		return nil
	}
	if s.executor != nil {
		err = s.executor.Execute(ctx, "nats.kv_put", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

func (s *JobStates) Get(ctx context.Context, jobID string) (*domain.JobState, error) {
	get := func(callCtx context.Context) (jetstream.KeyValueEntry, error) {
		return s.kv.Get(callCtx, jobID)
	}
	var (
		entry jetstream.KeyValueEntry
		err   error
	)
	if s.executor != nil {
		entry, err = resilience.Call(ctx, s.executor, "nats.kv_get", get, classifyKVError)
	} else {
		entry, err = get(ctx)
	}
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get job state", fmt.Errorf("job_id=%s", jobID))
		}
		return nil, wrapTemporaryIfNeeded(fmt.Errorf("kv get: %w", err))
	}
	var state domain.JobState
	if err := json.Unmarshal(entry.Value(), &state); err != nil {
		return nil, fmt.Errorf("unmarshal job state: %w", err)
	}
	return &state, nil
}
