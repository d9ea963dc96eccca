package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/wellness-service/internal/domain"
	"github.com/spec-kit/wellness-service/internal/events"
	"github.com/spec-kit/wellness-service/internal/persistence"
)

const activityTTL = 30 * 24 * time.Hour

type activityJob struct {
	subject domain.SubjectRef
	seenAt  time.Time
}

// ActivityTracker records best-effort last-activity timestamps in Redis.
// Writes go through a bounded pool of workers instead of bare goroutines:
// a full queue drops the update with a warning, and write failures are
// logged, never fatal.
type ActivityTracker struct {
	jobs   chan activityJob
	redis  *persistence.Redis
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewActivityTracker starts the worker pool.
func NewActivityTracker(redis *persistence.Redis, logger *zap.Logger, workers, queueSize int) *ActivityTracker {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	t := &ActivityTracker{
		jobs:   make(chan activityJob, queueSize),
		redis:  redis,
		logger: logger,
	}
	for i := 0; i < workers; i++ {
		t.wg.Add(1)
		go t.run()
	}
	return t
}

// RegisterHandlers subscribes the tracker to subject-touching events.
func (t *ActivityTracker) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventSubjectVerified, t.handleEvent)
	dispatcher.Subscribe(events.EventVerificationSent, t.handleEvent)
	dispatcher.Subscribe(events.EventResetRequested, t.handleEvent)
}

// Touch enqueues a last-activity update for the subject.
func (t *ActivityTracker) Touch(subject domain.SubjectRef) {
	select {
	case t.jobs <- activityJob{subject: subject, seenAt: time.Now()}:
	default:
		t.logger.Warn("activity queue full, update dropped",
			zap.String("subject_id", subject.ID))
	}
}

// Close stops accepting jobs and waits for the workers to drain.
func (t *ActivityTracker) Close() {
	close(t.jobs)
	t.wg.Wait()
}

func (t *ActivityTracker) handleEvent(_ context.Context, event events.Event) error {
	if event.Subject.ID == "" {
		return nil
	}
	t.Touch(event.Subject)
	return nil
}

func (t *ActivityTracker) run() {
	defer t.wg.Done()
	for job := range t.jobs {
		t.record(job)
	}
}

func (t *ActivityTracker) record(job activityJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := "activity:" + string(job.subject.Type) + ":" + job.subject.ID
	if err := t.redis.Client.Set(ctx, key, job.seenAt.UTC().Format(time.RFC3339), activityTTL).Err(); err != nil {
		t.logger.Warn("activity timestamp write failed",
			zap.String("key", key), zap.Error(err))
	}
}
