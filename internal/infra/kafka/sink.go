package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/sirupsen/logrus"
)

var (
	// ErrQueueFull is returned when a worker queue cannot take another record; the record is dropped.
	ErrQueueFull = errors.New("kafka sink: queue full")
	// ErrClosed is returned by Export after Close.
	ErrClosed = errors.New("kafka sink: closed")
)

// Options configures the producer and its worker pool.
type Options struct {
	Brokers      []string
	Topic        string
	Username     string
	Password     string
	Workers      int
	QueueSize    int
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 100
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	return o
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink publishes export records through a pool of workers. Records are sharded by key so that one user's
// records are written in order; different keys are written concurrently.
type Sink struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	log     logrus.FieldLogger

	shard  kafka.Hash
	shards []int
	queues []chan kafka.Message
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewSink builds a writer for opts.Topic and starts the worker pool.
func NewSink(opts Options, logger logrus.FieldLogger) *Sink {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	if opts.Username != "" {
		writer.Transport = &kafka.Transport{
			SASL: plain.Mechanism{
				Username: opts.Username,
				Password: opts.Password,
			},
		}
	}
	logger.WithFields(logrus.Fields{
		"brokers":  opts.Brokers,
		"topic":    opts.Topic,
		"username": opts.Username,
	}).Info("initializing export sink")
	return newSink(writer, opts, logger)
}

func newSink(writer messageWriter, opts Options, logger logrus.FieldLogger) *Sink {
	opts = opts.withDefaults()
	s := &Sink{
		writer:  writer,
		topic:   opts.Topic,
		timeout: opts.WriteTimeout,
		log:     logger.WithField("topic", opts.Topic),
		shards:  make([]int, opts.Workers),
		queues:  make([]chan kafka.Message, opts.Workers),
	}
	for i := range s.queues {
		s.shards[i] = i
		s.queues[i] = make(chan kafka.Message, opts.QueueSize)
		s.wg.Add(1)
		go s.worker(i)
	}
	return s
}

// Export enqueues a record without blocking. A full queue drops the record and reports ErrQueueFull.
func (s *Sink) Export(_ context.Context, key string, value []byte) error {
	msg := kafka.Message{Key: []byte(key), Value: value, Time: time.Now()}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.queues[s.shard.Balance(msg, s.shards...)] <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *Sink) worker(id int) {
	defer s.wg.Done()
	for msg := range s.queues[id] {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			s.log.WithFields(logrus.Fields{"worker": id, "key": string(msg.Key)}).WithError(err).Error("failed to publish export record")
			continue
		}
		s.log.WithFields(logrus.Fields{"worker": id, "key": string(msg.Key)}).Debug("published export record")
	}
}

// Close stops accepting records, drains the queues and closes the writer.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, q := range s.queues {
		close(q)
	}
	s.mu.Unlock()

	s.wg.Wait()
	err := s.writer.Close()
	s.log.Info("export sink shut down")
	return err
}
