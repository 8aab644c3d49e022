// Package dispatch runs work that must outlive the HTTP request that
// triggered it, such as status queries and tenant webhook forwards.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Task func(ctx context.Context) error

type failure struct {
	name   string
	err    error
	fields []zap.Field
}

// Dispatcher gives every task a fresh context with its own timeout. Task
// errors are reported on a channel drained by a single logging goroutine.
type Dispatcher struct {
	log *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	errs    chan failure
	drained chan struct{}
	onError func(name string, err error)
}

func New(log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		log:     log,
		errs:    make(chan failure, 64),
		drained: make(chan struct{}),
	}
	go d.drain()
	return d
}

// OnError registers a hook called from the drain goroutine for each failed
// task. Must be set before the first Go call.
func (d *Dispatcher) OnError(fn func(name string, err error)) {
	d.onError = fn
}

func (d *Dispatcher) drain() {
	defer close(d.drained)
	for f := range d.errs {
		d.log.Error("detached task failed", append(f.fields, zap.String("task", f.name), zap.Error(f.err))...)
		if d.onError != nil {
			d.onError(f.name, f.err)
		}
	}
}

// Go starts task in the background. It returns false once Close has begun.
func (d *Dispatcher) Go(name string, timeout time.Duration, task Task, fields ...zap.Field) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("dispatcher closed, task dropped", append(fields, zap.String("task", name))...)
		return false
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := run(ctx, task); err != nil {
			d.errs <- failure{name: name, err: err, fields: fields}
		}
	}()
	return true
}

func run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return task(ctx)
}

// Close stops accepting tasks, waits for in-flight ones and flushes errors.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	close(d.errs)
	<-d.drained
}
