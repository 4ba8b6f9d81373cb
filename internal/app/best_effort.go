package app

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// bestEffort runs detached side tasks (answer log, cache invalidation, export). Their outcome is logged and
// handed back on a buffered channel that callers may ignore.
type bestEffort struct {
	log     logrus.FieldLogger
	timeout time.Duration
	wg      sync.WaitGroup
}

func (b *bestEffort) Go(name string, fields logrus.Fields, fn func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		err := fn(ctx)
		if err != nil {
			b.log.WithFields(fields).WithError(err).Warnf("%s failed", name)
		}
		done <- err
	}()
	return done
}

// Wait blocks until every scheduled task has finished.
func (b *bestEffort) Wait() {
	b.wg.Wait()
}
