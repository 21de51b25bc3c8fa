package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/streadway/amqp"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rich1707/Customer-Churn/pkg/types"
	"github.com/rich1707/Customer-Churn/server/internal/config"
	"github.com/rich1707/Customer-Churn/server/internal/history"
	"github.com/rich1707/Customer-Churn/server/internal/store"
)

// HealthService is the gRPC health service name reporting whether the
// receiver is consuming from the broker.
const HealthService = "churn.receiver"

const (
	backoffInitial = 500 * time.Millisecond
	backoffMax     = 30 * time.Second
)

// ErrInvalid marks a message that can never be processed. It is rejected
// without requeue.
var ErrInvalid = errors.New("invalid batch")

var errConnClosed = errors.New("connection closed by broker")

// Evaluator is the alert engine as seen by the receiver.
type Evaluator interface {
	Evaluate(b *types.Batch)
}

// consumer is the slice of an AMQP channel the receiver needs.
type consumer interface {
	Deliveries() <-chan amqp.Delivery
	NotifyClose() <-chan *amqp.Error
	Close() error
}

// dialFunc opens a consumer on queue. Injectable for tests.
type dialFunc func(ctx context.Context, url, queue string, prefetch int) (consumer, error)

// Receiver consumes batch messages from the broker queue. Each accepted batch
// is saved to history, stored as the source's latest state and evaluated
// against the alert rules.
type Receiver struct {
	cfg    config.BrokerConfig
	store  *store.Store
	hist   history.Repository
	alerts Evaluator
	health *health.Server
	dialFn dialFunc

	// requeueDelay pauses consumption after a transient failure so a down
	// database does not spin the queue.
	requeueDelay time.Duration

	consuming atomic.Bool
	accepted  atomic.Uint64
	rejected  atomic.Uint64
	requeued  atomic.Uint64
}

// Counts reports message outcomes since start.
type Counts struct {
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
	Requeued uint64 `json:"requeued"`
}

// New wires a Receiver. hist and hs may be nil.
func New(cfg config.BrokerConfig, st *store.Store, hist history.Repository, al Evaluator, hs *health.Server) *Receiver {
	if hist == nil {
		hist = history.Nop{}
	}
	return &Receiver{
		cfg:          cfg,
		store:        st,
		hist:         hist,
		alerts:       al,
		health:       hs,
		dialFn:       dialAMQP,
		requeueDelay: time.Second,
	}
}

// Consuming reports whether the receiver currently holds a broker connection.
func (r *Receiver) Consuming() bool { return r.consuming.Load() }

// Counts returns a snapshot of the message counters.
func (r *Receiver) Counts() Counts {
	return Counts{
		Accepted: r.accepted.Load(),
		Rejected: r.rejected.Load(),
		Requeued: r.requeued.Load(),
	}
}

// Handle decodes and processes one message body.
// Errors wrapping ErrInvalid are permanent; any other error is transient and
// the message should be redelivered.
func (r *Receiver) Handle(ctx context.Context, body []byte) error {
	var b types.Batch
	if err := json.Unmarshal(body, &b); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if b.Status == "" {
		b.Status = types.StatusOK
	}

	if err := r.hist.Save(ctx, &b); err != nil {
		return fmt.Errorf("save history: %w", err)
	}

	if !r.store.Put(&b) {
		slog.Debug("receiver: stale batch ignored",
			"source_id", b.SourceID, "batch", b.ID, "derived_at", b.DerivedAt)
		return nil
	}

	slog.Debug("receiver: batch stored",
		"source_id", b.SourceID,
		"batch", b.ID,
		"status", b.Status,
		"rows", b.Stats.Rows,
		"churn_rate", b.Stats.ChurnRate,
	)

	if r.alerts != nil {
		r.alerts.Evaluate(&b)
	}
	return nil
}

// Run consumes from the broker until ctx is cancelled, reconnecting with
// exponential backoff when the connection drops.
func (r *Receiver) Run(ctx context.Context) {
	defer r.setServing(false)
	wait := backoffInitial

	for {
		if ctx.Err() != nil {
			return
		}

		c, err := r.dialFn(ctx, r.cfg.URL(), r.cfg.Queue, r.cfg.Prefetch)
		if err != nil {
			slog.Error("receiver: dial failed, will retry",
				"queue", r.cfg.Queue, "err", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			wait = min(wait*2, backoffMax)
			continue
		}

		slog.Info("receiver: consuming", "queue", r.cfg.Queue, "prefetch", r.cfg.Prefetch)
		wait = backoffInitial
		r.setServing(true)

		err = r.consume(ctx, c)
		r.setServing(false)
		c.Close()

		if ctx.Err() != nil {
			return
		}
		slog.Warn("receiver: connection lost, will reconnect",
			"queue", r.cfg.Queue, "err", err, "retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

func (r *Receiver) consume(ctx context.Context, c consumer) error {
	deliveries := c.Deliveries()
	closed := c.NotifyClose()

	for {
		select {
		case <-ctx.Done():
			return nil

		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				return fmt.Errorf("%w: %v", errConnClosed, amqpErr)
			}
			return errConnClosed

		case d, ok := <-deliveries:
			if !ok {
				return errConnClosed
			}
			r.process(ctx, d)
		}
	}
}

// process handles one delivery and settles it with the broker.
func (r *Receiver) process(ctx context.Context, d amqp.Delivery) {
	err := r.Handle(ctx, d.Body)
	switch {
	case err == nil:
		r.accepted.Add(1)
		if ackErr := d.Ack(false); ackErr != nil {
			slog.Error("receiver: ack failed", "message_id", d.MessageId, "err", ackErr)
		}

	case errors.Is(err, ErrInvalid):
		r.rejected.Add(1)
		slog.Warn("receiver: rejecting message", "message_id", d.MessageId, "err", err)
		if nackErr := d.Nack(false, false); nackErr != nil {
			slog.Error("receiver: nack failed", "message_id", d.MessageId, "err", nackErr)
		}

	default:
		r.requeued.Add(1)
		slog.Error("receiver: processing failed, requeueing", "message_id", d.MessageId, "err", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			slog.Error("receiver: nack failed", "message_id", d.MessageId, "err", nackErr)
		}
		sleep(ctx, r.requeueDelay)
	}
}

func (r *Receiver) setServing(up bool) {
	r.consuming.Store(up)
	if r.health == nil {
		return
	}
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		st = healthpb.HealthCheckResponse_SERVING
	}
	r.health.SetServingStatus(HealthService, st)
}

// amqpConsumer reads from a queue with manual acknowledgement.
type amqpConsumer struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// dialAMQP connects to url, declares the durable queue, applies prefetch
// and starts a consumer.
func dialAMQP(_ context.Context, url, queue string, prefetch int) (consumer, error) {
	if url == "" {
		return nil, errors.New("broker url is empty")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	fail := func(err error) (consumer, error) {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fail(fmt.Errorf("declare queue %q: %w", queue, err))
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fail(fmt.Errorf("qos: %w", err))
	}
	deliveries, err := ch.Consume(
		queue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fail(fmt.Errorf("consume %q: %w", queue, err))
	}
	return &amqpConsumer{conn: conn, ch: ch, deliveries: deliveries}, nil
}

func (c *amqpConsumer) Deliveries() <-chan amqp.Delivery { return c.deliveries }

func (c *amqpConsumer) NotifyClose() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (c *amqpConsumer) Close() error {
	c.ch.Close()
	return c.conn.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
