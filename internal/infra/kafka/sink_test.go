package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

func TestSinkKeepsPerKeyOrder(t *testing.T) {
	writer := &recordingWriter{}
	sink := newSink(writer, Options{Topic: "quiz_export", Workers: 3}, quietLogger())

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		for _, user := range []string{"u1", "u2", "u3"} {
			if err := sink.Export(ctx, user, []byte(fmt.Sprintf("%s-%02d", user, i))); err != nil {
				t.Fatalf("export: %v", err)
			}
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !writer.closed {
		t.Fatalf("expected writer to be closed")
	}

	perKey := map[string][]string{}
	for _, msg := range writer.messages() {
		perKey[string(msg.Key)] = append(perKey[string(msg.Key)], string(msg.Value))
	}
	for _, user := range []string{"u1", "u2", "u3"} {
		got := perKey[user]
		if len(got) != 20 {
			t.Fatalf("expected 20 records for %s, got %d", user, len(got))
		}
		for i, v := range got {
			if want := fmt.Sprintf("%s-%02d", user, i); v != want {
				t.Fatalf("record %d for %s out of order: %s", i, user, v)
			}
		}
	}
}

func TestSinkDropsWhenQueueIsFull(t *testing.T) {
	release := make(chan struct{})
	writer := &recordingWriter{block: release}
	sink := newSink(writer, Options{Topic: "quiz_export", Workers: 1, QueueSize: 1}, quietLogger())

	ctx := context.Background()
	var full bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			if err := sink.Export(ctx, "u1", []byte("x")); errors.Is(err, ErrQueueFull) {
				full = true
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("export blocked on a stalled writer")
	}
	if !full {
		t.Fatalf("expected a full queue to drop records")
	}

	close(release)
	_ = sink.Close()
	if err := sink.Export(ctx, "u1", []byte("late")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected export after close to fail, got %v", err)
	}
}

func TestSinkLogsWriteFailures(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker down")}
	sink := newSink(writer, Options{Topic: "quiz_export", Workers: 1}, quietLogger())

	if err := sink.Export(context.Background(), "u1", []byte("x")); err != nil {
		t.Fatalf("export must not surface delivery errors: %v", err)
	}
	_ = sink.Close()
	if len(writer.messages()) != 0 {
		t.Fatalf("failed writes must not be recorded")
	}
}

type recordingWriter struct {
	block  chan struct{}
	err    error
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.block != nil {
		<-w.block
	}
	if w.err != nil {
		return w.err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
