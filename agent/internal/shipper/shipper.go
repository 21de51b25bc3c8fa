package shipper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/streadway/amqp"

	"github.com/rich1707/Customer-Churn/agent/internal/compute"
	"github.com/rich1707/Customer-Churn/agent/internal/config"
	"github.com/rich1707/Customer-Churn/agent/internal/metrics"
	"github.com/rich1707/Customer-Churn/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
)

// errConnClosed is returned by drain when the broker closes the connection.
var errConnClosed = errors.New("connection closed by broker")

// publisher is the slice of an AMQP channel the shipper needs.
type publisher interface {
	Publish(msg amqp.Publishing) error
	// NotifyClose fires once when the underlying connection goes away.
	NotifyClose() <-chan *amqp.Error
	Close() error
}

// dialFunc opens a publisher on queue. Injectable for tests.
type dialFunc func(ctx context.Context, url, queue string) (publisher, error)

// recorder receives one call per shipping outcome.
type recorder interface {
	Shipped(result string)
}

type nopRecorder struct{}

func (nopRecorder) Shipped(string) {}

// Shipper buffers derived batches and publishes them to the broker queue.
// Ship() is non-blocking; when the buffer is full the oldest batch is evicted.
// Run() must be called in a goroutine to drain the buffer and handle reconnection.
type Shipper struct {
	cfg    config.BrokerConfig
	buf    chan *types.Batch
	dialFn dialFunc
	rec    recorder
}

// New creates a Shipper for the agent config. m may be nil.
func New(cfg config.AgentConfig, m *metrics.Metrics) *Shipper {
	s := &Shipper{
		cfg:    cfg.Broker,
		buf:    make(chan *types.Batch, cfg.BufferSize),
		dialFn: dialAMQP,
		rec:    nopRecorder{},
	}
	if m != nil {
		s.rec = m
	}
	return s
}

// Ship converts a compute.Result to a batch message and enqueues it.
// If the buffer is full the oldest entry is evicted to make room.
func (s *Shipper) Ship(res *compute.Result) {
	b := toBatch(res)
	select {
	case s.buf <- b:
	default:
		select {
		case old := <-s.buf:
			s.rec.Shipped(metrics.ShipEvicted)
			slog.Warn("shipper: buffer full, evicted oldest batch",
				"evicted_source", old.SourceID, "source", b.SourceID, "buffer_cap", cap(s.buf))
		default:
		}
		s.buf <- b
	}
}

// Pending returns the number of batches waiting to be published.
func (s *Shipper) Pending() int { return len(s.buf) }

// Run drains the buffer, publishing batches to the broker.
// It reconnects with exponential backoff when the connection is lost.
// Run blocks until ctx is cancelled.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		pub, err := s.dialFn(ctx, s.cfg.URL(), s.cfg.Queue)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"queue", s.cfg.Queue,
				"err", err,
				"retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}

		slog.Info("shipper: connected", "queue", s.cfg.Queue)
		bo.reset()

		err = s.drain(ctx, pub)
		pub.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"queue", s.cfg.Queue,
			"err", err,
			"retry_in", wait)
		if !sleep(ctx, wait) {
			return
		}
	}
}

// drain publishes buffered batches until the connection fails or ctx is
// cancelled.
func (s *Shipper) drain(ctx context.Context, pub publisher) error {
	closed := pub.NotifyClose()

	for {
		select {
		case <-ctx.Done():
			return nil

		case amqpErr, ok := <-closed:
			if ok && amqpErr != nil {
				return fmt.Errorf("%w: %v", errConnClosed, amqpErr)
			}
			return errConnClosed

		case b := <-s.buf:
			body, err := json.Marshal(b)
			if err != nil {
				// The batch itself is bad; retrying cannot help.
				s.rec.Shipped(metrics.ShipDropped)
				slog.Error("shipper: cannot encode batch, discarding",
					"source", b.SourceID, "batch", b.ID, "err", err)
				continue
			}

			err = pub.Publish(amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				MessageId:    b.ID,
				Timestamp:    b.DerivedAt,
				Type:         "churn.batch",
				Body:         body,
			})
			if err != nil {
				select {
				case s.buf <- b:
					s.rec.Shipped(metrics.ShipRequeued)
				default:
					s.rec.Shipped(metrics.ShipDropped)
				}
				return fmt.Errorf("publish: %w", err)
			}

			s.rec.Shipped(metrics.ShipDelivered)
			slog.Debug("shipper: batch delivered",
				"source", b.SourceID, "batch", b.ID, "rows", b.Stats.Rows)
		}
	}
}

// amqpPublisher publishes to the default exchange, routed by queue name.
type amqpPublisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// dialAMQP connects to url, opens a channel and declares the durable queue.
func dialAMQP(_ context.Context, url, queue string) (publisher, error) {
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
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", queue, err)
	}
	return &amqpPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *amqpPublisher) Publish(msg amqp.Publishing) error {
	return p.ch.Publish("", p.queue, false, false, msg)
}

func (p *amqpPublisher) NotifyClose() <-chan *amqp.Error {
	return p.conn.NotifyClose(make(chan *amqp.Error, 1))
}

func (p *amqpPublisher) Close() error {
	p.ch.Close()
	return p.conn.Close()
}

// sleep waits for d or ctx, reporting false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// ±25% jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
