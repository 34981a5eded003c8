package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"pipeline-validation/internal/orchestrator"
)

// JetStreamQueue dispatches execution tasks through a JetStream work queue
// stream. Workers share one durable consumer through a queue group, so each
// task is delivered to one worker at a time and redelivered until acked.
type JetStreamQueue struct {
	Conn    *nats.Conn
	JS      nats.JetStreamContext
	Stream  string
	Subject string
	Durable string
}

func NewJetStreamQueue(url, stream, subject, durable string) (*JetStreamQueue, error) {
	conn, err := nats.Connect(url, nats.Name("pipeline-validation"))
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, err
	}
	q := &JetStreamQueue{Conn: conn, JS: js, Stream: stream, Subject: subject, Durable: durable}
	if err := q.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *JetStreamQueue) ensureStream() error {
	_, err := q.JS.StreamInfo(q.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = q.JS.AddStream(&nats.StreamConfig{
		Name:      q.Stream,
		Subjects:  []string{q.Subject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	return err
}

func (q *JetStreamQueue) Close() {
	if q.Conn != nil {
		_ = q.Conn.Drain()
		q.Conn.Close()
	}
}

// Ping reports whether the NATS connection is usable.
func (q *JetStreamQueue) Ping() error {
	if q.Conn == nil || !q.Conn.IsConnected() {
		return errors.New("nats not connected")
	}
	return nil
}

func (q *JetStreamQueue) Enqueue(ctx context.Context, task orchestrator.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	_, err = q.JS.Publish(q.Subject, data, nats.Context(ctx), nats.MsgId(task.ExecutionID))
	return err
}

// Consume starts workers queue subscriptions that run handler for every
// task. A task is acked after the handler returns nil, nacked on error and
// terminated when its payload cannot be decoded.
func (q *JetStreamQueue) Consume(handler orchestrator.Handler, workers int, jobTimeout time.Duration, logger *slog.Logger) ([]*nats.Subscription, error) {
	if workers <= 0 {
		workers = 1
	}
	subs := make([]*nats.Subscription, 0, workers)
	for i := 0; i < workers; i++ {
		sub, err := q.JS.QueueSubscribe(q.Subject, q.Durable, func(msg *nats.Msg) {
			switch process(msg.Data, handler, jobTimeout, logger) {
			case ack:
				_ = msg.Ack()
			case nak:
				_ = msg.Nak()
			case term:
				_ = msg.Term()
			}
		},
			nats.Durable(q.Durable),
			nats.ManualAck(),
			nats.AckExplicit(),
			nats.AckWait(jobTimeout+30*time.Second),
			nats.BindStream(q.Stream),
		)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, fmt.Errorf("subscribe %s: %w", q.Subject, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

type disposition int

const (
	ack disposition = iota
	nak
	term
)

func process(data []byte, handler orchestrator.Handler, jobTimeout time.Duration, logger *slog.Logger) disposition {
	var task orchestrator.Task
	if err := json.Unmarshal(data, &task); err != nil || task.ExecutionID == "" {
		logger.Error("dropping malformed task", slog.String("payload", string(data)))
		return term
	}
	ctx := context.Background()
	if jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, jobTimeout)
		defer cancel()
	}
	if err := handler(ctx, task); err != nil {
		logger.Error("task failed, requesting redelivery", slog.String("execution_id", task.ExecutionID), slog.String("error", err.Error()))
		return nak
	}
	return ack
}
