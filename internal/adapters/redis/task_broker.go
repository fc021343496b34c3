// Package redis provides the Redis-backed task broker and result backend for batch jobs.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/cyano-batch/internal/core"
	"github.com/target/cyano-batch/internal/domain/model"
)

const (
	defaultPrefix   = "cyano"
	defaultStateTTL = 24 * time.Hour
	// Dead letters beyond this many are trimmed.
	maxDeadLetters = 1000
)

// TaskBrokerOptions configures a TaskBroker.
type TaskBrokerOptions struct {
	Client   redis.UniversalClient // Required
	Prefix   string                // Key prefix, defaults to "cyano"
	StateTTL time.Duration         // Retention of task state and revocations
	Logger   *slog.Logger
	Now      func() time.Time
}

// TaskBroker queues batch tasks in a Redis list and tracks their state in per-task hashes.
//
// Keys carry the prefix as a Redis Cluster hash tag so the multi-key scripts
// and transactions always address a single slot:
//
//	{p}:tasks          list of JSON TaskMessage (LPUSH / BRPOP, FIFO)
//	{p}:task:<id>      hash {state, updated_at, payload, phase}, expires after StateTTL
//	{p}:revoked        set of revoked ids, advisory
//	{p}:revoked:<id>   revocation marker, authoritative, expires after StateTTL
//	{p}:dead           list of JSON DeadLetter
type TaskBroker struct {
	client   redis.UniversalClient
	keyspace string
	stateTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

var _ core.TaskBroker = (*TaskBroker)(nil)

// NewTaskBroker creates a TaskBroker.
func NewTaskBroker(opts TaskBrokerOptions) (*TaskBroker, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := strings.TrimSuffix(strings.TrimSpace(opts.Prefix), ":")
	if prefix == "" {
		prefix = defaultPrefix
	}
	ttl := opts.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &TaskBroker{
		client:   opts.Client,
		keyspace: hashTagged(prefix),
		stateTTL: ttl,
		logger:   logger.With("component", "task_broker"),
		now:      now,
	}, nil
}

// hashTagged wraps prefix in braces unless it already names a hash tag.
func hashTagged(prefix string) string {
	if open := strings.IndexByte(prefix, '{'); open >= 0 {
		if end := strings.IndexByte(prefix[open+1:], '}'); end > 0 {
			return prefix
		}
	}
	return "{" + prefix + "}"
}

func (b *TaskBroker) tasksKey() string            { return b.keyspace + ":tasks" }
func (b *TaskBroker) stateKey(id string) string   { return b.keyspace + ":task:" + id }
func (b *TaskBroker) revokedSetKey() string       { return b.keyspace + ":revoked" }
func (b *TaskBroker) revokedKey(id string) string { return b.keyspace + ":revoked:" + id }
func (b *TaskBroker) deadKey() string             { return b.keyspace + ":dead" }

func (b *TaskBroker) timestamp() string {
	return b.now().UTC().Format(time.RFC3339Nano)
}

func (b *TaskBroker) ttlSeconds() string {
	return strconv.Itoa(int(b.stateTTL.Seconds()))
}

// unavailable marks err as a broker connectivity failure.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrBrokerUnavailable, err)
}

// Ping checks connectivity for readiness probes.
func (b *TaskBroker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Submit records the task as RECEIVED and appends it to the queue in one MULTI/EXEC.
func (b *TaskBroker) Submit(ctx context.Context, msg *model.TaskMessage) error {
	if msg == nil {
		return errors.New("task message is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = b.now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	stateKey := b.stateKey(msg.JobID)
	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, stateKey,
			"state", string(model.JobStatusReceived),
			"updated_at", b.timestamp(),
			"payload", payload,
		)
		pipe.Expire(ctx, stateKey, b.stateTTL)
		pipe.LPush(ctx, b.tasksKey(), payload)
		return nil
	})
	if err != nil {
		return unavailable("submit task "+msg.JobID, err)
	}
	b.logger.DebugContext(ctx, "task submitted", "job_id", msg.JobID, "locations", len(msg.Locations))
	return nil
}

// Status returns the recorded state of the task; unknown or expired ids are PENDING.
func (b *TaskBroker) Status(ctx context.Context, jobID string) (model.TaskState, error) {
	state, err := b.client.HGet(ctx, b.stateKey(jobID), "state").Result()
	if errors.Is(err, redis.Nil) {
		return model.JobStatusPending, nil
	}
	if err != nil {
		return "", unavailable("task status", err)
	}
	s := model.JobStatus(state)
	if !s.Valid() {
		return model.JobStatusPending, nil
	}
	return s, nil
}

// cancelScript marks the task revoked and records REVOKED unless a worker has
// already started or finished it. Returns the resulting state.
var cancelScript = redis.NewScript(`
local s = redis.call('HGET', KEYS[1], 'state')
redis.call('SET', KEYS[2], '1', 'EX', ARGV[2])
redis.call('SADD', KEYS[3], ARGV[3])
if s == 'STARTED' or s == 'SUCCESS' or s == 'FAILURE' or s == 'REVOKED' then
  return s
end
redis.call('HSET', KEYS[1], 'state', 'REVOKED', 'updated_at', ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 'REVOKED'
`)

// Cancel revokes the task. Queued tasks are skipped by Reserve; running tasks are not interrupted.
func (b *TaskBroker) Cancel(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("job id is required")
	}
	state, err := cancelScript.Run(ctx, b.client,
		[]string{b.stateKey(jobID), b.revokedKey(jobID), b.revokedSetKey()},
		b.timestamp(), b.ttlSeconds(), jobID,
	).Text()
	if err != nil {
		return unavailable("cancel task "+jobID, err)
	}
	b.logger.DebugContext(ctx, "task revoked", "job_id", jobID, "state", state)
	return nil
}

// Reserve pops the next runnable task, waiting up to wait. Revoked tasks are
// dropped and undecodable payloads are dead-lettered; both keep the wait going.
func (b *TaskBroker) Reserve(ctx context.Context, wait time.Duration) (*model.TaskMessage, error) {
	deadline := b.now().Add(wait)
	for {
		remaining := deadline.Sub(b.now())
		if remaining < time.Second {
			// BRPOP timeouts have one second resolution; zero would block forever.
			remaining = time.Second
		}
		res, err := b.client.BRPop(ctx, remaining, b.tasksKey()).Result()
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The pop may have succeeded as the context ended; put it back for another worker.
			if err == nil && len(res) == 2 {
				b.requeue(res[1])
			}
			return nil, ctxErr
		}
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNoTasks
		}
		if err != nil {
			return nil, unavailable("reserve task", err)
		}
		if len(res) < 2 {
			continue
		}

		msg, ok, err := b.admit(ctx, res[1])
		if err != nil {
			return nil, err
		}
		if ok {
			return msg, nil
		}
		if !b.now().Before(deadline) {
			return nil, model.ErrNoTasks
		}
	}
}

func (b *TaskBroker) requeue(raw string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.client.RPush(ctx, b.tasksKey(), raw).Err(); err != nil {
		b.logger.ErrorContext(ctx, "failed to return popped task to the queue", "error", err)
	}
}

// admit decodes a popped payload and moves it to STARTED unless it was revoked.
// A Redis failure after the pop puts the payload back so the task is not lost.
func (b *TaskBroker) admit(ctx context.Context, raw string) (*model.TaskMessage, bool, error) {
	var msg model.TaskMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, false, b.deadLetter(ctx, raw, "decode: "+err.Error())
	}
	if err := msg.Validate(); err != nil {
		return nil, false, b.deadLetter(ctx, raw, err.Error())
	}

	revoked, err := b.client.Exists(ctx, b.revokedKey(msg.JobID)).Result()
	if err != nil {
		b.requeue(raw)
		return nil, false, unavailable("check revoked", err)
	}
	if revoked > 0 {
		b.logger.InfoContext(ctx, "skipping revoked task", "job_id", msg.JobID)
		if err := b.MarkState(ctx, msg.JobID, model.JobStatusRevoked); err != nil {
			b.requeue(raw)
			return nil, false, err
		}
		return nil, false, nil
	}

	if err := b.MarkState(ctx, msg.JobID, model.JobStatusStarted); err != nil {
		b.requeue(raw)
		return nil, false, err
	}
	return &msg, true, nil
}

// MarkState records state for the task and refreshes its retention.
// Terminal states drop the id from the advisory revoked set.
func (b *TaskBroker) MarkState(ctx context.Context, jobID string, state model.TaskState) error {
	if !state.Valid() {
		return fmt.Errorf("invalid task state %q", state)
	}
	key := b.stateKey(jobID)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "state", string(state), "updated_at", b.timestamp())
		pipe.Expire(ctx, key, b.stateTTL)
		if state.IsTerminal() {
			pipe.SRem(ctx, b.revokedSetKey(), jobID)
		}
		return nil
	})
	if err != nil {
		return unavailable("mark task state", err)
	}
	return nil
}

// Checkpoint records the last pipeline phase the worker completed for the task.
func (b *TaskBroker) Checkpoint(ctx context.Context, jobID string, phase model.TaskPhase) error {
	key := b.stateKey(jobID)
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "phase", string(phase), "updated_at", b.timestamp())
		pipe.Expire(ctx, key, b.stateTTL)
		return nil
	})
	if err != nil {
		return unavailable("checkpoint task", err)
	}
	return nil
}

// Phase returns the last recorded phase, or PhaseNone.
func (b *TaskBroker) Phase(ctx context.Context, jobID string) (model.TaskPhase, error) {
	phase, err := b.client.HGet(ctx, b.stateKey(jobID), "phase").Result()
	if errors.Is(err, redis.Nil) {
		return model.PhaseNone, nil
	}
	if err != nil {
		return model.PhaseNone, unavailable("task phase", err)
	}
	return model.TaskPhase(phase), nil
}

// heartbeatScript bumps updated_at only for tasks that still have state.
var heartbeatScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

// Heartbeat refreshes updated_at for a running task. Unknown ids are ignored.
func (b *TaskBroker) Heartbeat(ctx context.Context, jobID string) error {
	err := heartbeatScript.Run(ctx, b.client, []string{b.stateKey(jobID)}, b.timestamp(), b.ttlSeconds()).Err()
	if err != nil {
		return unavailable("task heartbeat", err)
	}
	return nil
}

// LastSeen returns the updated_at of the task, or the zero time when the broker
// no longer tracks it.
func (b *TaskBroker) LastSeen(ctx context.Context, jobID string) (time.Time, error) {
	raw, err := b.client.HGet(ctx, b.stateKey(jobID), "updated_at").Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, unavailable("task last seen", err)
	}
	seen, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse updated_at of %s: %w", jobID, err)
	}
	return seen, nil
}

// requeueScript re-enqueues the stored payload with the next attempt number.
// It refuses revoked and finished tasks.
var requeueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return redis.error_reply('revoked')
end
local s = redis.call('HGET', KEYS[1], 'state')
if s == 'SUCCESS' or s == 'FAILURE' or s == 'REVOKED' then
  return redis.error_reply('finished')
end
redis.call('HSET', KEYS[1], 'state', 'RETRY', 'updated_at', ARGV[2], 'payload', ARGV[1])
redis.call('EXPIRE', KEYS[1], ARGV[3])
redis.call('LPUSH', KEYS[3], ARGV[1])
return 'RETRY'
`)

// Requeue puts a task that is still tracked back on the queue with its attempt
// counter incremented, for operators recovering jobs stranded by a worker crash.
func (b *TaskBroker) Requeue(ctx context.Context, jobID string) (*model.TaskMessage, error) {
	raw, err := b.client.HGet(ctx, b.stateKey(jobID), "payload").Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("requeue %s: %w", jobID, model.ErrTaskNotFound)
	}
	if err != nil {
		return nil, unavailable("load task payload", err)
	}
	var msg model.TaskMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("decode stored task %s: %w", jobID, err)
	}
	msg.Attempt++
	msg.EnqueuedAt = b.now().UTC()
	payload, err := json.Marshal(&msg)
	if err != nil {
		return nil, fmt.Errorf("marshal task: %w", err)
	}

	err = requeueScript.Run(ctx, b.client,
		[]string{b.stateKey(jobID), b.revokedKey(jobID), b.tasksKey()},
		payload, b.timestamp(), b.ttlSeconds(),
	).Err()
	if err != nil {
		var rerr redis.Error
		if errors.As(err, &rerr) {
			return nil, fmt.Errorf("requeue %s: %w: %s", jobID, model.ErrTaskNotRequeueable, rerr.Error())
		}
		return nil, unavailable("requeue task", err)
	}
	b.logger.InfoContext(ctx, "task requeued", "job_id", jobID, "attempt", msg.Attempt)
	return &msg, nil
}

func (b *TaskBroker) deadLetter(ctx context.Context, raw, reason string) error {
	b.logger.WarnContext(ctx, "dead-lettering task payload", "reason", reason)
	entry, err := json.Marshal(model.DeadLetter{Payload: raw, Reason: reason, FailedAt: b.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	_, err = b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, b.deadKey(), entry)
		pipe.LTrim(ctx, b.deadKey(), 0, maxDeadLetters-1)
		return nil
	})
	if err != nil {
		return unavailable("dead letter", err)
	}
	return nil
}

// Stats reports queue depth, outstanding revocations and dead letters.
func (b *TaskBroker) Stats(ctx context.Context) (*model.QueueStats, error) {
	var queued, revoked, dead *redis.IntCmd
	_, err := b.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		queued = pipe.LLen(ctx, b.tasksKey())
		revoked = pipe.SCard(ctx, b.revokedSetKey())
		dead = pipe.LLen(ctx, b.deadKey())
		return nil
	})
	if err != nil {
		return nil, unavailable("queue stats", err)
	}
	return &model.QueueStats{
		Queued:      queued.Val(),
		Revoked:     revoked.Val(),
		DeadLetters: dead.Val(),
	}, nil
}

// DeadLetters returns up to limit of the most recent dead letters.
func (b *TaskBroker) DeadLetters(ctx context.Context, limit int64) ([]model.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := b.client.LRange(ctx, b.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, unavailable("list dead letters", err)
	}
	out := make([]model.DeadLetter, 0, len(raw))
	for _, r := range raw {
		var dl model.DeadLetter
		if err := json.Unmarshal([]byte(r), &dl); err != nil {
			dl = model.DeadLetter{Payload: r, Reason: "unreadable dead letter"}
		}
		out = append(out, dl)
	}
	return out, nil
}
