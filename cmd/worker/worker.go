package main

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	pushTimeout = 10 * time.Second
	// maxPushElapsed bounds how long one event waits for Loki before the worker gives up and exits.
	maxPushElapsed = 24 * time.Hour
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type eventSink interface {
	PushEventJSON(ctx context.Context, rawJSON []byte) error
}

type worker struct {
	reader messageReader
	sink   eventSink
	log    *zap.Logger
	// initialRetry overrides the first Loki retry delay.
	initialRetry time.Duration
}

func newReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  1 * time.Second,
	})
}

// run moves messages until ctx ends. A message is committed once Loki accepted it, or once it
// failed for a reason retrying will not fix, so Loki outages do not drop events.
func (w *worker) run(ctx context.Context) {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("worker: kafka read error", zap.Error(err))
			continue
		}
		if !w.push(ctx, msg) {
			if ctx.Err() == nil {
				w.log.Error("worker: giving up on loki", zap.Int64("offset", msg.Offset))
			}
			return
		}
		if err := w.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			w.log.Warn("worker: kafka commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// push retries until Loki accepts msg. It returns false if ctx ended or maxPushElapsed passed first.
func (w *worker) push(ctx context.Context, msg kafka.Message) bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.retryInterval()
	b.MaxInterval = 30 * time.Second
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		defer cancel()
		err := w.sink.PushEventJSON(pushCtx, msg.Value)
		if err != nil && ctx.Err() == nil {
			w.log.Warn("worker: loki push failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(maxPushElapsed))
	return err == nil
}

func (w *worker) retryInterval() time.Duration {
	if w.initialRetry > 0 {
		return w.initialRetry
	}
	return 500 * time.Millisecond
}
