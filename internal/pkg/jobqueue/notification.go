package jobqueue

import (
	"context"

	"github.com/ManuelReschke/TableFox/internal/pkg/notify"
)

// Dispatcher hands notifications to the queue so request handlers never wait
// on SMTP or the broker.
type Dispatcher struct {
	queue *Queue
}

func NewDispatcher(q *Queue) *Dispatcher {
	return &Dispatcher{queue: q}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg notify.Message) error {
	_, err := d.queue.Enqueue(ctx, JobTypeSendNotification, msg)
	return err
}

// NotificationHandler delivers queued notifications through sender.
func NotificationHandler(sender notify.Sender) Handler {
	return func(ctx context.Context, job *Job) error {
		var msg notify.Message
		if err := job.Decode(&msg); err != nil {
			return err
		}
		return sender.Send(ctx, msg)
	}
}
