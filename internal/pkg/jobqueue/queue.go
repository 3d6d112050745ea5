package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/TableFox/internal/pkg/metrics"
)

const (
	keyPrefix     = "tablefox:jobs:"
	jobKeyPrefix  = keyPrefix + "job:"
	pendingKey    = keyPrefix + "pending"
	processingKey = keyPrefix + "processing"
	delayedKey    = keyPrefix + "delayed"
	deadKey       = keyPrefix + "dead"
	statsKey      = keyPrefix + "stats"

	DefaultMaxAttempts = 5
	// JobTTL bounds how long a job record outlives its last update. Dead
	// letters expire with it.
	JobTTL = 72 * time.Hour
)

// promoteScript moves delayed jobs whose retry time has come back onto the
// pending list in one step, so two servers never promote the same id twice.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// Handler runs one job. A returned error schedules a retry while attempts
// remain; after that the job is dead lettered.
type Handler func(ctx context.Context, job *Job) error

// Sizes is a snapshot of the queue lists.
type Sizes struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Dead       int64 `json:"dead"`
}

// Queue is a Redis backed work queue with delayed retries. Jobs survive a
// process restart: retries wait in a sorted set, not in timers.
type Queue struct {
	client   *redis.Client
	workers  int
	handlers map[JobType]Handler

	retryBase  time.Duration
	retryMax   time.Duration
	stuckAfter time.Duration
	tick       time.Duration
	now        func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = 3
	}
	return &Queue{
		client:     client,
		workers:    workers,
		handlers:   make(map[JobType]Handler),
		retryBase:  30 * time.Second,
		retryMax:   30 * time.Minute,
		stuckAfter: 10 * time.Minute,
		tick:       time.Second,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Handle registers the handler for a job type. Call before Start.
func (q *Queue) Handle(jobType JobType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	log.Infof("[JobQueue] Starting %d workers", q.workers)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(1)
	go q.maintain()
}

func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

// backoff doubles retryBase per failed attempt up to retryMax.
func (q *Queue) backoff(attempts int) time.Duration {
	d := q.retryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= q.retryMax {
			return q.retryMax
		}
	}
	return d
}

// maintain promotes due retries, recovers jobs orphaned in processing and
// publishes the list sizes.
func (q *Queue) maintain() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.tick)
	defer ticker.Stop()
	ctx := context.Background()
	lastSweep := q.now()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			now := q.now()
			if _, err := q.promoteDue(ctx, now); err != nil {
				log.Errorf("[JobQueue] Promoting delayed jobs failed: %v", err)
			}
			if now.Sub(lastSweep) >= time.Minute {
				lastSweep = now
				q.recoverStuck(ctx, q.stuckAfter, now)
				q.publishSizes(ctx)
			}
		}
	}
}

func (q *Queue) promoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.client, []string{delayedKey, pendingKey},
		strconv.FormatInt(now.UnixMilli(), 10), 100).Int()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Debugf("[JobQueue] Promoted %d delayed jobs", n)
	}
	return n, nil
}

// recoverStuck returns jobs that have been processing longer than maxAge,
// typically after a worker crash, to the pending list.
func (q *Queue) recoverStuck(ctx context.Context, maxAge time.Duration, now time.Time) int {
	ids, err := q.client.LRange(ctx, processingKey, 0, -1).Result()
	if err != nil {
		log.Errorf("[JobQueue] Reading processing list failed: %v", err)
		return 0
	}
	recovered := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil || job.Status != JobStatusProcessing || job.ProcessedAt == nil {
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Could not load job %s: %v", id, err)
			}
			_ = q.client.LRem(ctx, processingKey, 1, id).Err()
			continue
		}
		if now.Sub(*job.ProcessedAt) <= maxAge {
			continue
		}
		log.Warnf("[JobQueue] Recovering stuck job %s (type=%s), age=%s", job.ID, job.Type, now.Sub(*job.ProcessedAt))
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered after worker timeout"
		job.UpdatedAt = now
		q.save(ctx, job)

		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, processingKey, 1, id)
		pipe.RPush(ctx, pendingKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			log.Errorf("[JobQueue] Requeue of stuck job %s failed: %v", id, err)
			continue
		}
		recovered++
	}
	return recovered
}

func (q *Queue) publishSizes(ctx context.Context) {
	s, err := q.Sizes(ctx)
	if err != nil {
		return
	}
	metrics.JobQueueDepth.WithLabelValues("pending").Set(float64(s.Pending))
	metrics.JobQueueDepth.WithLabelValues("processing").Set(float64(s.Processing))
	metrics.JobQueueDepth.WithLabelValues("delayed").Set(float64(s.Delayed))
	metrics.JobQueueDepth.WithLabelValues("dead").Set(float64(s.Dead))
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		job, err := q.dequeue(ctx)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Worker %d: dequeue failed: %v", id, err)
				time.Sleep(time.Second)
			}
			continue
		}
		q.process(ctx, job)
	}
}

// Enqueue stores payload as a new job of jobType.
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload interface{}) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", jobType, err)
	}
	now := q.now()
	job := &Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Status:      JobStatusPending,
		Payload:     raw,
		CreatedAt:   now,
		UpdatedAt:   now,
		MaxAttempts: DefaultMaxAttempts,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, jobKeyPrefix+job.ID, data, JobTTL)
	pipe.LPush(ctx, pendingKey, job.ID)
	pipe.HIncrBy(ctx, statsKey, "enqueued", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Debugf("[JobQueue] Enqueued job %s (type=%s)", job.ID, job.Type)
	return job, nil
}

func (q *Queue) dequeue(ctx context.Context) (*Job, error) {
	id, err := q.client.BLMove(ctx, pendingKey, processingKey, "RIGHT", "LEFT", time.Second).Result()
	if err != nil {
		return nil, err
	}
	job, err := q.GetJob(ctx, id)
	if err != nil {
		q.client.LRem(ctx, processingKey, 1, id)
		return nil, fmt.Errorf("job data not found for ID %s: %w", id, err)
	}
	return job, nil
}

func (q *Queue) process(ctx context.Context, job *Job) {
	job.MarkAsProcessing(q.now())
	q.save(ctx, job)

	q.mu.Lock()
	handler, ok := q.handlers[job.Type]
	q.mu.Unlock()

	var err error
	if ok {
		err = handler(ctx, job)
	} else {
		err = fmt.Errorf("no handler for job type %s", job.Type)
	}

	now := q.now()
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, processingKey, 1, job.ID)

	if err == nil {
		job.MarkAsCompleted(now)
		pipe.Del(ctx, jobKeyPrefix+job.ID)
		pipe.HIncrBy(ctx, statsKey, string(JobStatusCompleted), 1)
	} else {
		job.MarkAsFailed(now, err.Error())
		data, merr := json.Marshal(job)
		if merr != nil {
			log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, merr)
		} else {
			pipe.Set(ctx, jobKeyPrefix+job.ID, data, JobTTL)
		}
		if job.Status == JobStatusRetrying {
			delay := q.backoff(job.Attempts)
			log.Warnf("[JobQueue] Job %s failed (attempt %d/%d), retrying in %s: %v", job.ID, job.Attempts, job.MaxAttempts, delay, err)
			pipe.ZAdd(ctx, delayedKey, redis.Z{Score: float64(now.Add(delay).UnixMilli()), Member: job.ID})
		} else {
			log.Errorf("[JobQueue] Job %s dead after %d attempts: %v", job.ID, job.Attempts, err)
			pipe.LPush(ctx, deadKey, job.ID)
			pipe.HIncrBy(ctx, statsKey, string(JobStatusDead), 1)
		}
	}

	if _, perr := pipe.Exec(ctx); perr != nil {
		log.Errorf("[JobQueue] Failed to settle job %s: %v", job.ID, perr)
	}
	metrics.Jobs.WithLabelValues(string(job.Type), string(job.Status)).Inc()
}

func (q *Queue) save(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, jobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job %s: %v", job.ID, err)
	}
}

func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (q *Queue) Sizes(ctx context.Context) (Sizes, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, pendingKey)
	processing := pipe.LLen(ctx, processingKey)
	delayed := pipe.ZCard(ctx, delayedKey)
	dead := pipe.LLen(ctx, deadKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Sizes{}, err
	}
	return Sizes{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		Delayed:    delayed.Val(),
		Dead:       dead.Val(),
	}, nil
}

// DeadLetters returns up to limit dead jobs, newest first. Records that
// already expired are skipped.
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]*Job, error) {
	ids, err := q.client.LRange(ctx, deadKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
