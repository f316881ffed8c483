package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

type flakySink struct {
	failures int
	pushed   [][]byte
}

func (s *flakySink) PushEventJSON(_ context.Context, raw []byte) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("loki unavailable")
	}
	s.pushed = append(s.pushed, raw)
	return nil
}

func TestWorker_PushesAndCommits(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reader := &fakeReader{
		msgs:   []kafka.Message{{Offset: 1, Value: []byte(`{"id":"a"}`)}, {Offset: 2, Value: []byte(`{"id":"b"}`)}},
		cancel: cancel,
	}
	sink := &flakySink{failures: 2}
	w := &worker{reader: reader, sink: sink, log: zap.NewNop(), initialRetry: time.Millisecond}

	w.run(ctx)

	assert.Equal(t, [][]byte{[]byte(`{"id":"a"}`), []byte(`{"id":"b"}`)}, sink.pushed)
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

func TestWorker_StopsWithoutCommitWhenLokiNeverRecovers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	reader := &fakeReader{msgs: []kafka.Message{{Offset: 7, Value: []byte(`{}`)}}, cancel: cancel}
	w := &worker{reader: reader, sink: &flakySink{failures: 1 << 30}, log: zap.NewNop(), initialRetry: time.Millisecond}

	w.run(ctx)

	assert.Empty(t, reader.committed)
}
