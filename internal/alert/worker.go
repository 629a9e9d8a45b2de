package alert

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iancossa/attendance-fullstack/internal/logging"
	"github.com/iancossa/attendance-fullstack/internal/queue"
)

const maxBackoff = time.Minute

// Worker drains queued alerts and hands them to a Sender, usually a Dispatcher.
// A failed alert waits Backoff, doubled per attempt up to a minute, before it is requeued.
type Worker struct {
	Queue       queue.Queue
	Sender      Sender
	MaxAttempts int
	Backoff     time.Duration
	Logger      logging.Logger
}

// delay is the wait before the given attempt is retried.
func (w *Worker) delay(attempts int) time.Duration {
	if w.Backoff <= 0 || attempts <= 0 {
		return 0
	}
	d := w.Backoff
	for i := 1; i < attempts && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// Run consumes with n concurrent handlers until ctx is done.
func (w *Worker) Run(ctx context.Context, n int) error {
	msgs, err := w.Queue.Consume(ctx)
	if err != nil {
		return err
	}
	if n <= 0 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range msgs {
				w.Handle(ctx, m)
			}
		}()
	}
	wg.Wait()
	return nil
}

// Handle delivers one queued alert. Transient failures are requeued after a delay until
// MaxAttempts; refused messages are dropped. Shutdown cuts the delay short.
func (w *Worker) Handle(ctx context.Context, qm queue.Message) {
	logger := w.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if qm.Type != queue.TypeAlert {
		logger.Warn("skipping queue message", map[string]interface{}{"id": qm.ID, "type": qm.Type})
		return
	}
	var msg Message
	if err := qm.Decode(&msg); err != nil {
		logger.Error("undecodable alert", err, map[string]interface{}{"id": qm.ID})
		return
	}

	err := w.Sender.Send(ctx, msg)
	if err == nil {
		return
	}
	fields := map[string]interface{}{"id": msg.ID, "channel": msg.Channel, "attempts": qm.Attempts + 1}
	if refused(err) {
		logger.Warn("alert dropped", err, fields)
		return
	}
	qm.Attempts++
	if qm.Attempts >= w.MaxAttempts {
		logger.Error("alert abandoned", err, fields)
		return
	}

	if d := w.delay(qm.Attempts); d > 0 {
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	// requeue even while shutting down
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.Queue.Publish(pubCtx, qm); err != nil {
		logger.Error("alert requeue failed", err, fields)
	}
}

func refused(err error) bool {
	return errors.Is(err, ErrPlaceholderRecipient) ||
		errors.Is(err, ErrNoRecipient) ||
		errors.Is(err, ErrUnknownChannel) ||
		errors.Is(err, ErrNoSender)
}
