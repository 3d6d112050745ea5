// Package notifytest provides a recording dispatcher for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/ManuelReschke/TableFox/internal/pkg/notify"
)

type Recorder struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *Recorder) Dispatch(ctx context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *Recorder) Send(ctx context.Context, msg notify.Message) error {
	return r.Dispatch(ctx, msg)
}

// Messages returns what was dispatched so far.
func (r *Recorder) Messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.msgs...)
}

// Count returns how many messages of kind were dispatched.
func (r *Recorder) Count(kind notify.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Kind == kind {
			n++
		}
	}
	return n
}
