package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/localstack-samples/serverless-quiz-app/internal/domain"
)

const pollInterval = 100 * time.Millisecond

// Delivery is one received job. ID is the submission identifier, Count the
// number of times the job has been delivered so far (this delivery included).
type Delivery struct {
	ID      string
	Payload []byte
	Count   int
}

type Config struct {
	Redis  redis.UniversalClient
	Prefix string

	// Visibility is the lease window. A received job stays invisible for this
	// long; if it is neither acked nor nacked by then, it becomes
	// redeliverable again.
	Visibility time.Duration

	// MaxReceiveCount bounds delivery attempts. A job whose count exceeds it
	// moves to DeadLetter instead of being delivered. Zero or negative means
	// unbounded (used for the dead-letter queue itself).
	MaxReceiveCount int

	// DeadLetter receives a DeadLetterEvent payload for each exhausted job.
	// Nil means exhausted jobs are dropped after logging by the caller.
	DeadLetter *Queue

	// Clock is injectable for lease tests.
	Clock func() time.Time
}

// Queue is a durable at-least-once mailbox on Redis.
//
// Layout under Prefix: a pending LIST of job IDs, a leased ZSET scored by
// lease deadline, and payload / delivery-count / last-failure HASHes. The
// lease only approximates single ownership; consumers must stay idempotent.
type Queue struct {
	rdb    redis.UniversalClient
	prefix string

	visibility time.Duration
	maxReceive int
	dlq        *Queue
	clock      func() time.Time
}

func New(c Config) *Queue {
	if c.Visibility <= 0 {
		c.Visibility = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}

	return &Queue{
		rdb:        c.Redis,
		prefix:     c.Prefix,
		visibility: c.Visibility,
		maxReceive: c.MaxReceiveCount,
		dlq:        c.DeadLetter,
		clock:      c.Clock,
	}
}

func (q *Queue) pendingKey() string  { return q.prefix + ":pending" }
func (q *Queue) leasedKey() string   { return q.prefix + ":leased" }
func (q *Queue) payloadKey() string  { return q.prefix + ":payload" }
func (q *Queue) deliveryKey() string { return q.prefix + ":deliveries" }
func (q *Queue) reasonKey() string   { return q.prefix + ":reason" }

// Enqueue makes the job available for delivery. It returns only after Redis
// acknowledges the write, so a nil error means the job cannot be lost.
func (q *Queue) Enqueue(ctx context.Context, id string, payload []byte) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.payloadKey(), id, payload)
		p.RPush(ctx, q.pendingKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue %s: enqueue %s: %w", q.prefix, id, err)
	}

	return nil
}

// Receive waits up to wait for a job and leases it for the visibility window.
// It returns (nil, nil) when nothing became available: callers poll in a
// loop, so an empty queue is not an error. Expired leases are requeued on
// every poll, which is what turns a crashed consumer into a redelivery.
func (q *Queue) Receive(ctx context.Context, wait time.Duration) (*Delivery, error) {
	deadline := q.clock().Add(wait)

	for {
		if _, err := q.RequeueExpired(ctx); err != nil {
			return nil, err
		}

		d, err := q.tryReceive(ctx)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}

		if !q.clock().Before(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (q *Queue) tryReceive(ctx context.Context) (*Delivery, error) {
	for {
		id, err := q.rdb.LPop(ctx, q.pendingKey()).Result()
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("queue %s: pop: %w", q.prefix, err)
		}

		count, err := q.rdb.HIncrBy(ctx, q.deliveryKey(), id, 1).Result()
		if err != nil {
			return nil, fmt.Errorf("queue %s: count delivery %s: %w", q.prefix, id, err)
		}

		if q.exhausted(int(count)) {
			if err := q.deadLetter(ctx, id, int(count)); err != nil {
				return nil, err
			}
			continue
		}

		if err := q.rdb.ZAdd(ctx, q.leasedKey(), redis.Z{
			Score:  float64(q.clock().Add(q.visibility).UnixMilli()),
			Member: id,
		}).Err(); err != nil {
			return nil, fmt.Errorf("queue %s: lease %s: %w", q.prefix, id, err)
		}

		payload, err := q.rdb.HGet(ctx, q.payloadKey(), id).Result()
		if stderrors.Is(err, redis.Nil) {
			// Acked by a concurrent consumer between pop and here. Undo the
			// lease and the delivery count this pop recreated.
			q.rdb.ZRem(ctx, q.leasedKey(), id)
			q.rdb.HDel(ctx, q.deliveryKey(), id)
			q.rdb.HDel(ctx, q.reasonKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("queue %s: payload %s: %w", q.prefix, id, err)
		}

		return &Delivery{ID: id, Payload: []byte(payload), Count: int(count)}, nil
	}
}

// Ack removes the job permanently. Call only after its effects are durable.
func (q *Queue) Ack(ctx context.Context, id string) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, q.leasedKey(), id)
		p.LRem(ctx, q.pendingKey(), 0, id)
		p.HDel(ctx, q.payloadKey(), id)
		p.HDel(ctx, q.deliveryKey(), id)
		p.HDel(ctx, q.reasonKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue %s: ack %s: %w", q.prefix, id, err)
	}

	return nil
}

// Nack gives the job up. If delivery attempts remain it becomes redeliverable
// immediately; otherwise it moves to the dead-letter queue, so with a
// max receive count of 1 a single failure dead-letters the job right away.
func (q *Queue) Nack(ctx context.Context, id, reason string) error {
	if err := q.rdb.HSet(ctx, q.reasonKey(), id, reason).Err(); err != nil {
		return fmt.Errorf("queue %s: record failure %s: %w", q.prefix, id, err)
	}

	if err := q.rdb.ZRem(ctx, q.leasedKey(), id).Err(); err != nil {
		return fmt.Errorf("queue %s: release lease %s: %w", q.prefix, id, err)
	}

	count, err := q.deliveries(ctx, id)
	if err != nil {
		return err
	}

	if q.exhausted(count + 1) {
		return q.deadLetter(ctx, id, count)
	}

	if err := q.rdb.RPush(ctx, q.pendingKey(), id).Err(); err != nil {
		return fmt.Errorf("queue %s: requeue %s: %w", q.prefix, id, err)
	}

	return nil
}

// RequeueExpired returns jobs whose lease ran out to the pending list.
func (q *Queue) RequeueExpired(ctx context.Context) (int, error) {
	now := strconv.FormatInt(q.clock().UnixMilli(), 10)

	ids, err := q.rdb.ZRangeByScore(ctx, q.leasedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue %s: scan leases: %w", q.prefix, err)
	}

	requeued := 0
	for _, id := range ids {
		removed, err := q.rdb.ZRem(ctx, q.leasedKey(), id).Result()
		if err != nil {
			return requeued, fmt.Errorf("queue %s: reclaim %s: %w", q.prefix, id, err)
		}
		if removed == 0 {
			// Another consumer reclaimed or acked it first.
			continue
		}

		if err := q.rdb.RPush(ctx, q.pendingKey(), id).Err(); err != nil {
			return requeued, fmt.Errorf("queue %s: requeue %s: %w", q.prefix, id, err)
		}
		requeued++
	}

	return requeued, nil
}

// Depth reports the number of pending and leased jobs.
func (q *Queue) Depth(ctx context.Context) (pending, leased int64, err error) {
	pending, err = q.rdb.LLen(ctx, q.pendingKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("queue %s: pending depth: %w", q.prefix, err)
	}

	leased, err = q.rdb.ZCard(ctx, q.leasedKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("queue %s: leased depth: %w", q.prefix, err)
	}

	return pending, leased, nil
}

func (q *Queue) exhausted(count int) bool {
	return q.maxReceive > 0 && count > q.maxReceive
}

func (q *Queue) deliveries(ctx context.Context, id string) (int, error) {
	v, err := q.rdb.HGet(ctx, q.deliveryKey(), id).Result()
	if stderrors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("queue %s: deliveries %s: %w", q.prefix, id, err)
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("queue %s: deliveries %s: %w", q.prefix, id, err)
	}

	return n, nil
}

func (q *Queue) deadLetter(ctx context.Context, id string, count int) error {
	reason, err := q.rdb.HGet(ctx, q.reasonKey(), id).Result()
	if stderrors.Is(err, redis.Nil) {
		reason = "delivery attempts exhausted"
	} else if err != nil {
		return fmt.Errorf("queue %s: failure reason %s: %w", q.prefix, id, err)
	}

	if q.dlq != nil {
		ev := domain.DeadLetterEvent{
			SubmissionID:  id,
			Reason:        reason,
			DeliveryCount: count,
		}

		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("queue %s: marshal dead-letter event %s: %w", q.prefix, id, err)
		}

		if err := q.dlq.Enqueue(ctx, id, payload); err != nil {
			return err
		}
	}

	return q.Ack(ctx, id)
}
