package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/errors"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      chan kafka.Message
	committed []int64
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type event struct {
	Name string `json:"name"`
}

func TestConsumerCommitsHandledAndPoisonMessages(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Offset: 1, Value: []byte(`{"name":"ok"}`)},
		kafka.Message{Offset: 2, Value: []byte(`not json`)},
		kafka.Message{Offset: 3, Value: []byte(`{"name":"transient"}`)},
		kafka.Message{Offset: 4, Value: []byte(`{"name":"last"}`)},
	)
	var mu sync.Mutex
	var seen []string
	handler := func(_ context.Context, _, value []byte) error {
		ev, err := DecodeJSON[event](value)
		if err != nil {
			return err
		}
		mu.Lock()
		seen = append(seen, ev.Name)
		mu.Unlock()
		if ev.Name == "transient" {
			return errors.New("downstream busy")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	c := newConsumer(reader, "cache-invalidate", handler)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 4}, reader.commits())
	mu.Lock()
	assert.Equal(t, []string{"ok", "transient", "last"}, seen)
	mu.Unlock()
	assert.True(t, reader.closed)
}

func TestDecodeJSONMarksInvalidInput(t *testing.T) {
	_, err := DecodeJSON[event]([]byte("{"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	ev, err := DecodeJSON[event]([]byte(`{"name":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", ev.Name)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "match-ingested")
	assert.Equal(t, "match-ingested", p.Topic())

	require.NoError(t, p.Publish(context.Background(), "NA1_1", event{Name: "Ahri"}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "NA1_1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"name":"Ahri"}`, string(w.msgs[0].Value))

	w.err = errors.New("broker down")
	assert.Error(t, p.Publish(context.Background(), "k", event{}))
	assert.Error(t, p.Publish(context.Background(), "k", func() {}))
}
