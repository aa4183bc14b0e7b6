// Package notification broadcasts order events to independent observers.
package notification

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Observer interface {
	Name() string
	Notify(ctx context.Context, n domain.Notification) error
}

// Recorder is told how each delivery went.
type Recorder interface {
	NotificationDelivered(observer string, kind domain.NotificationKind, err error)
}

type Fanout struct {
	inflight  sync.WaitGroup
	observers []Observer
	timeout   time.Duration
	recorder  Recorder
	logger    *zap.Logger
	tracer    trace.Tracer
}

func NewFanout(logger *zap.Logger, recorder Recorder, timeout time.Duration, observers ...Observer) *Fanout {
	return &Fanout{
		observers: observers,
		timeout:   timeout,
		recorder:  recorder,
		logger:    logger,
		tracer:    otel.Tracer("notification/fanout"),
	}
}

// Notify hands n to every observer concurrently and returns without waiting
// for them. Each observer gets its own timeout. Errors and panics are logged
// and never reach the caller or the other observers.
func (f *Fanout) Notify(ctx context.Context, n domain.Notification) {
	ctx, span := f.tracer.Start(context.WithoutCancel(ctx), "Fanout.Notify")

	span.SetAttributes(
		attribute.String("notification.kind", string(n.Kind)),
		attribute.Int64("order_id", n.OrderID),
		attribute.Int("observers", len(f.observers)),
	)

	var wg sync.WaitGroup
	for _, o := range f.observers {
		wg.Add(1)
		f.inflight.Add(1)
		go func() {
			defer f.inflight.Done()
			defer wg.Done()

			err := f.deliver(ctx, o, n)
			if f.recorder != nil {
				f.recorder.NotificationDelivered(o.Name(), n.Kind, err)
			}

			if err != nil {
				mylogger.Warn(
					ctx,
					f.logger,
					"Notification delivery failed",
					zap.String("observer", o.Name()),
					zap.String("kind", string(n.Kind)),
					zap.Int64("order_id", n.OrderID),
					zap.Error(err),
				)
			}
		}()
	}

	go func() {
		wg.Wait()
		span.End()
	}()
}

// Wait blocks until every delivery started so far has finished or ctx is done.
func (f *Fanout) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fanout) deliver(ctx context.Context, o Observer, n domain.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			mylogger.Error(
				ctx,
				f.logger,
				"Notification observer panicked",
				zap.String("observer", o.Name()),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)

			err = fmt.Errorf("observer %s panicked: %v", o.Name(), r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	return o.Notify(ctx, n)
}
