package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/flights-api/internal/logger"
	"github.com/iliyamo/flights-api/internal/metrics"
)

// LogFileName is the file, under the consumer's directory, that receives one
// line per consumed event.
const LogFileName = "flight_changes.log"

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// errMalformed marks messages that can never be processed. They are dropped
// instead of requeued.
var errMalformed = errors.New("malformed event")

// Consumer reads FlightChangedEvents from a durable queue and appends them
// to a log file. It reconnects with exponential backoff until its context is
// cancelled.
type Consumer struct {
	url     string
	queue   string
	dir     string
	log     logger.Logger
	metrics *metrics.Metrics

	mu sync.Mutex // serializes file appends
}

// NewConsumer returns a consumer for queue on the broker at url writing to
// dir. m may be nil.
func NewConsumer(url, queue, dir string, log logger.Logger, m *metrics.Metrics) *Consumer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Consumer{url: url, queue: queue, dir: dir, log: log.With("component", "flight-consumer"), metrics: m}
}

// Run blocks until ctx is done. Connection failures are logged and retried.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("failed to dial broker", "error", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = minBackoff

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

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

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleMessage(d.Body); err != nil {
				requeue := !errors.Is(err, errMalformed)
				c.log.Error("handle message failed", "error", err, "requeue", requeue)
				if !requeue {
					c.metrics.EventConsumed("rejected")
					_ = d.Nack(false, false)
					continue
				}
				c.metrics.EventConsumed("requeued")
				_ = d.Nack(false, true)
				if !sleep(ctx, minBackoff) {
					return ctx.Err()
				}
				continue
			}
			c.metrics.EventConsumed("ok")
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleMessage(body []byte) error {
	var ev FlightChangedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if ev.FlightID == 0 {
		return fmt.Errorf("%w: no flight_id", errMalformed)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.dir, LogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single newline-terminated log line.
func FormatLine(ev FlightChangedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Flight %s | flight_id=%d | log_id=%d | by=%q",
		ev.OccurredAt, ev.Action, ev.FlightID, ev.LogID, ev.ChangedBy)
	if ev.FlightNumber != "" {
		fmt.Fprintf(&b, " | number=%s", ev.FlightNumber)
	}
	if ev.Status != nil {
		fmt.Fprintf(&b, " | status=%q", *ev.Status)
	}
	if ev.SeatsAvailable != nil {
		b.WriteString(" | seats_available=" + strconv.FormatInt(*ev.SeatsAvailable, 10))
	}
	fmt.Fprintf(&b, " | summary=%q | event_id=%s\n", ev.Summary, ev.EventID)
	return b.String()
}
