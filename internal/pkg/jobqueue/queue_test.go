package jobqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TableFox/internal/pkg/cache"
	"github.com/ManuelReschke/TableFox/internal/pkg/notify"
)

const isolatedJobQueueTestRedisDB = 14

func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(nil, tt.workers)

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.False(t, queue.running)
		})
	}
}

func TestQueue_Backoff(t *testing.T) {
	queue := NewQueue(nil, 1)
	queue.retryBase = time.Second
	queue.retryMax = 5 * time.Second

	assert.Equal(t, time.Second, queue.backoff(1))
	assert.Equal(t, 2*time.Second, queue.backoff(2))
	assert.Equal(t, 4*time.Second, queue.backoff(3))
	assert.Equal(t, 5*time.Second, queue.backoff(4))
	assert.Equal(t, 5*time.Second, queue.backoff(20))
}

func TestJob_StateTransitions(t *testing.T) {
	now := time.Date(2026, 11, 20, 19, 0, 0, 0, time.UTC)
	job := &Job{Status: JobStatusPending, MaxAttempts: 2}

	job.MarkAsProcessing(now)
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed(now, "smtp down")
	assert.Equal(t, JobStatusRetrying, job.Status)
	assert.Equal(t, 1, job.Attempts)

	job.MarkAsFailed(now, "smtp down")
	assert.Equal(t, JobStatusDead, job.Status)
	assert.False(t, job.CanRetry())

	job.MarkAsCompleted(now)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
}

func TestJob_DecodeNotification(t *testing.T) {
	job := &Job{ID: "j1", Type: JobTypeSendNotification, Payload: []byte(`{"kind":"booking_confirmed","reference":"TF-ABC234"}`)}

	var msg notify.Message
	require.NoError(t, job.Decode(&msg))
	assert.Equal(t, "TF-ABC234", msg.Reference)

	job.Payload = []byte(`{`)
	assert.Error(t, job.Decode(&msg))
}

type captureSender struct {
	mu   sync.Mutex
	got  []notify.Message
	fail int
}

func (s *captureSender) Send(ctx context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return errors.New("smtp unavailable")
	}
	s.got = append(s.got, msg)
	return nil
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func fastQueue(t *testing.T, sender notify.Sender) *Queue {
	client := cache.NewIsolatedTestClient(t, isolatedJobQueueTestRedisDB)
	queue := NewQueue(client, 2)
	queue.retryBase = 10 * time.Millisecond
	queue.retryMax = 20 * time.Millisecond
	queue.tick = 10 * time.Millisecond
	queue.Handle(JobTypeSendNotification, NotificationHandler(sender))
	return queue
}

func TestQueue_RetriesThroughDelayedSet(t *testing.T) {
	sender := &captureSender{fail: 1}
	queue := fastQueue(t, sender)
	queue.Start()
	defer queue.Stop()

	dispatcher := NewDispatcher(queue)
	require.NoError(t, dispatcher.Dispatch(context.Background(), notify.Message{Kind: notify.KindBookingConfirmed, Reference: "TF-ABC234"}))

	// First attempt fails, the promoted retry delivers.
	assert.Eventually(t, func() bool { return sender.count() == 1 }, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		s, err := queue.Sizes(context.Background())
		return err == nil && s == Sizes{}
	}, 5*time.Second, 20*time.Millisecond)
}

func TestQueue_DeadLettersAfterMaxAttempts(t *testing.T) {
	sender := &captureSender{fail: DefaultMaxAttempts}
	queue := fastQueue(t, sender)
	queue.Start()
	defer queue.Stop()

	job, err := queue.Enqueue(context.Background(), JobTypeSendNotification, notify.Message{Kind: notify.KindBookingCancelled, Reference: "TF-DEAD22"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		s, err := queue.Sizes(context.Background())
		return err == nil && s.Dead == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, sender.count())

	dead, err := queue.DeadLetters(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, job.ID, dead[0].ID)
	assert.Equal(t, DefaultMaxAttempts, dead[0].Attempts)
	assert.Equal(t, "smtp unavailable", dead[0].ErrorMsg)
}

func TestQueue_RecoverStuck(t *testing.T) {
	client := cache.NewIsolatedTestClient(t, isolatedJobQueueTestRedisDB)
	queue := NewQueue(client, 1)
	ctx := context.Background()

	job, err := queue.Enqueue(ctx, JobTypeSendNotification, notify.Message{})
	require.NoError(t, err)
	dequeued, err := queue.dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, job.ID, dequeued.ID)
	dequeued.MarkAsProcessing(time.Now())
	queue.save(ctx, dequeued)

	assert.Zero(t, queue.recoverStuck(ctx, time.Hour, time.Now()))
	assert.Equal(t, 1, queue.recoverStuck(ctx, time.Hour, time.Now().Add(2*time.Hour)))

	s, err := queue.Sizes(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.Pending)
	assert.Zero(t, s.Processing)
}
