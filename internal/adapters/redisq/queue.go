// Package redisq implements the pipeline queue contract on Redis lists.
//
// Each queue keeps a ready list, an in-flight list, a per-message lease key
// with TTL, a receive-count hash, and a dead-letter list. Receive atomically
// moves a message to the in-flight list; a message stays invisible until it is
// deleted or its lease key expires, at which point ReclaimExpired either
// requeues it or dead-letters it after too many receives.
package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/citypulse/weather-pipeline/internal/core"
	apperrors "github.com/citypulse/weather-pipeline/internal/errors"
)

const defaultMaxReceives = 3

// Options configures a Queue.
type Options struct {
	// Name identifies the queue; keys are derived from it.
	Name string
	// MaxReceives is the receive count after which an expired-lease message is
	// dead-lettered instead of requeued. Defaults to 3.
	MaxReceives int
}

// Queue is a Redis-list-backed queue with lease semantics.
type Queue struct {
	client      redis.UniversalClient
	name        string
	maxReceives int
}

var _ core.Queue = (*Queue)(nil)

// New creates a Queue on the given Redis client.
func New(client redis.UniversalClient, opts Options) (*Queue, error) {
	if opts.Name == "" {
		return nil, errors.New("queue name is required")
	}
	maxReceives := opts.MaxReceives
	if maxReceives <= 0 {
		maxReceives = defaultMaxReceives
	}
	return &Queue{
		client:      client,
		name:        opts.Name,
		maxReceives: maxReceives,
	}, nil
}

func (q *Queue) readyKey() string    { return "q:" + q.name }
func (q *Queue) inflightKey() string { return "q:" + q.name + ":inflight" }
func (q *Queue) deadKey() string     { return "q:" + q.name + ":dead" }
func (q *Queue) recvKey() string     { return "q:" + q.name + ":recv" }
func (q *Queue) leaseKey(id string) string {
	return "q:" + q.name + ":lease:" + id
}

// Enqueue appends a message to the queue. A missing message ID is assigned.
func (q *Queue) Enqueue(ctx context.Context, msg *core.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	raw, err := encodeEnvelope(msg)
	if err != nil {
		return err
	}
	if pushErr := q.client.LPush(ctx, q.readyKey(), raw).Err(); pushErr != nil {
		return apperrors.Wrap(pushErr, apperrors.ErrCodeUnavailable,
			fmt.Sprintf("enqueue %s", q.name))
	}
	return nil
}

// Receive leases the next message for the given duration. Returns nil when the
// queue is empty.
func (q *Queue) Receive(ctx context.Context, lease time.Duration) (*core.Message, error) {
	if lease < time.Second {
		lease = time.Second
	}

	raw, err := q.client.LMove(ctx, q.readyKey(), q.inflightKey(), "RIGHT", "LEFT").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable,
			fmt.Sprintf("receive %s", q.name))
	}

	msg := &core.Message{}
	if unmarshalErr := json.Unmarshal([]byte(raw), msg); unmarshalErr != nil {
		// The envelope itself is corrupt; it cannot be handed to a consumer.
		// Move it straight to the dead-letter list.
		q.moveRawToDead(ctx, raw)
		return nil, apperrors.Wrap(unmarshalErr, apperrors.ErrCodeDecode,
			fmt.Sprintf("decode envelope on %s", q.name))
	}

	count, err := q.client.HIncrBy(ctx, q.recvKey(), msg.ID, 1).Result()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable,
			fmt.Sprintf("track receive count on %s", q.name))
	}
	msg.ReceiveCount = int(count)

	if leaseErr := q.client.Set(ctx, q.leaseKey(msg.ID), "1", lease).Err(); leaseErr != nil {
		return nil, apperrors.Wrap(leaseErr, apperrors.ErrCodeUnavailable,
			fmt.Sprintf("lease message on %s", q.name))
	}
	return msg, nil
}

// Delete acknowledges a received message, removing it permanently.
func (q *Queue) Delete(ctx context.Context, msg *core.Message) error {
	if msg == nil || msg.ID == "" {
		return errors.New("message with id is required")
	}
	raw, err := encodeEnvelope(msg)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.inflightKey(), 1, raw)
	pipe.Del(ctx, q.leaseKey(msg.ID))
	pipe.HDel(ctx, q.recvKey(), msg.ID)
	if _, execErr := pipe.Exec(ctx); execErr != nil {
		return apperrors.Wrap(execErr, apperrors.ErrCodeUnavailable,
			fmt.Sprintf("delete message on %s", q.name))
	}
	return nil
}

// ReclaimExpired scans the in-flight list for messages whose lease expired,
// requeueing them or dead-lettering those past the maximum receive count.
func (q *Queue) ReclaimExpired(ctx context.Context) (requeued, deadLettered int, err error) {
	raws, err := q.client.LRange(ctx, q.inflightKey(), 0, -1).Result()
	if err != nil {
		return 0, 0, apperrors.Wrap(err, apperrors.ErrCodeUnavailable,
			fmt.Sprintf("scan inflight on %s", q.name))
	}

	for _, raw := range raws {
		msg := &core.Message{}
		if unmarshalErr := json.Unmarshal([]byte(raw), msg); unmarshalErr != nil {
			q.moveRawToDead(ctx, raw)
			deadLettered++
			continue
		}

		leased, existsErr := q.client.Exists(ctx, q.leaseKey(msg.ID)).Result()
		if existsErr != nil {
			return requeued, deadLettered, apperrors.Wrap(existsErr, apperrors.ErrCodeUnavailable,
				fmt.Sprintf("check lease on %s", q.name))
		}
		if leased > 0 {
			continue
		}

		removed, remErr := q.client.LRem(ctx, q.inflightKey(), 1, raw).Result()
		if remErr != nil || removed == 0 {
			// Someone else reclaimed or deleted it first.
			continue
		}

		count, _ := q.client.HGet(ctx, q.recvKey(), msg.ID).Int()
		if count >= q.maxReceives {
			q.client.LPush(ctx, q.deadKey(), raw)
			q.client.HDel(ctx, q.recvKey(), msg.ID)
			deadLettered++
			continue
		}

		q.client.RPush(ctx, q.readyKey(), raw)
		requeued++
	}
	return requeued, deadLettered, nil
}

// DeadLetters returns up to limit dead-lettered messages for inspection.
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]*core.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	raws, err := q.client.LRange(ctx, q.deadKey(), 0, limit-1).Result()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable,
			fmt.Sprintf("read dead letters on %s", q.name))
	}

	msgs := make([]*core.Message, 0, len(raws))
	for _, raw := range raws {
		msg := &core.Message{}
		if unmarshalErr := json.Unmarshal([]byte(raw), msg); unmarshalErr != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Len reports the number of ready (not in-flight) messages.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.readyKey()).Result()
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeUnavailable,
			fmt.Sprintf("len %s", q.name))
	}
	return n, nil
}

// encodeEnvelope marshals the stable wire form of a message. ReceiveCount is
// tracked in a hash, not the stored envelope, so the encoded bytes stay
// identical across receives and LREM can match by value.
func encodeEnvelope(msg *core.Message) (string, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return string(raw), nil
}

func (q *Queue) moveRawToDead(ctx context.Context, raw string) {
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.inflightKey(), 1, raw)
	pipe.LPush(ctx, q.deadKey(), raw)
	_, _ = pipe.Exec(ctx)
}
