package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"quiz-gateway/internal/domain"
)

// DefaultChannel is the store-wide channel every gateway instance publishes room events to.
const DefaultChannel = "quiz-gateway:rooms"

var errFanoutClosed = errors.New("redis fanout: closed")

// Fanout bridges room broadcasts between gateway instances over Redis pub/sub. Every instance, including
// the publisher, receives each event and re-emits it to its own local room members.
type Fanout struct {
	client     *redis.Client
	channel    string
	origin     string
	retryDelay time.Duration
	log        logrus.FieldLogger

	mu     sync.Mutex
	closed bool
	subs   map[*redis.PubSub]struct{}
	wg     sync.WaitGroup
}

func NewFanout(client *redis.Client, channel, origin string, logger logrus.FieldLogger) *Fanout {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Fanout{
		client:     client,
		channel:    channel,
		origin:     origin,
		retryDelay: 2 * time.Second,
		log:        logger.WithField("channel", channel),
		subs:       make(map[*redis.PubSub]struct{}),
	}
}

func (f *Fanout) Publish(ctx context.Context, event domain.RoomEvent) error {
	if event.Origin == "" {
		event.Origin = f.origin
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return f.client.Publish(ctx, f.channel, data).Err()
}

// Subscribe starts a subscriber that lives until ctx is done or the fanout is closed. It returns once the
// first subscription attempt has finished; a failed attempt is retried in the background on a fixed delay.
func (f *Fanout) Subscribe(ctx context.Context, handler func(domain.RoomEvent)) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errFanoutClosed
	}
	f.wg.Add(1)
	f.mu.Unlock()

	ready := make(chan struct{})
	go func() {
		defer f.wg.Done()
		f.run(ctx, handler, ready)
	}()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fanout) run(ctx context.Context, handler func(domain.RoomEvent), ready chan struct{}) {
	var once sync.Once
	signal := func() { once.Do(func() { close(ready) }) }
	defer signal()

	for {
		err := f.consume(ctx, handler, signal)
		if ctx.Err() != nil || f.isClosed() {
			return
		}
		f.log.WithError(err).Warnf("fanout subscription lost, retrying in %s", f.retryDelay)
		signal()
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.retryDelay):
		}
	}
}

func (f *Fanout) consume(ctx context.Context, handler func(domain.RoomEvent), ready func()) error {
	sub := f.client.Subscribe(ctx, f.channel)
	if !f.track(sub) {
		_ = sub.Close()
		return errFanoutClosed
	}
	defer f.untrack(sub)

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ready()
	f.log.Debug("fanout subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("redis fanout: subscription channel closed")
			}
			var event domain.RoomEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				f.log.WithError(err).Warn("dropping malformed room event")
				continue
			}
			handler(event)
		}
	}
}

func (f *Fanout) track(sub *redis.PubSub) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.subs[sub] = struct{}{}
	return true
}

func (f *Fanout) untrack(sub *redis.PubSub) {
	f.mu.Lock()
	_, ok := f.subs[sub]
	delete(f.subs, sub)
	f.mu.Unlock()
	if ok {
		_ = sub.Close()
	}
}

func (f *Fanout) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Close stops every subscriber and waits for them to exit.
func (f *Fanout) Close() error {
	f.mu.Lock()
	f.closed = true
	subs := make([]*redis.PubSub, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.subs = make(map[*redis.PubSub]struct{})
	f.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	f.wg.Wait()
	return nil
}
