package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bitwise74/share-api/internal/model"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

var (
	ErrQueueFull   = errors.New("mail queue full")
	ErrQueueClosed = errors.New("mail queue closed")
)

type MailJob struct {
	UserID  string
	Message *gomail.Message
}

// MailQueue sends mails on a fixed pool of workers and records the delivery
// status on the recipient's account
type MailQueue struct {
	jobs    chan *MailJob
	mailer  Mailer
	db      *gorm.DB
	workers int

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	pending atomic.Int32
}

func NewMailQueue(m Mailer, db *gorm.DB, size, workers int) *MailQueue {
	zap.L().Debug("Initializing mail queue", zap.Int("size", size), zap.Int("workers", workers))

	return &MailQueue{
		jobs:    make(chan *MailJob, size),
		mailer:  m,
		db:      db,
		workers: workers,
	}
}

func (q *MailQueue) StartWorkerPool() {
	for range q.workers {
		q.wg.Add(1)
		go q.worker()
	}
}

// Stop stops accepting jobs and waits for queued ones to be sent
func (q *MailQueue) Stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *MailQueue) Enqueue(job *MailJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.pending.Add(1)
		zap.L().Debug("New mail job enqueued", zap.Int32("enqueued", q.pending.Load()), zap.String("user_id", job.UserID))
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MailQueue) worker() {
	defer q.wg.Done()

	for job := range q.jobs {
		status := model.MailSent

		if err := q.mailer.Send(job.Message); err != nil {
			status = model.MailError
			zap.L().Error("Failed to send mail", zap.String("user_id", job.UserID), zap.Error(err))
		}

		q.pending.Add(-1)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := q.db.
			WithContext(ctx).
			Model(&model.User{}).
			Where("id = ?", job.UserID).
			Updates(map[string]any{
				"email_delivery_status": status,
				"last_mail_sent_at":     time.Now(),
			}).
			Error
		cancel()
		if err != nil {
			zap.L().Error("Failed to record mail delivery status", zap.String("user_id", job.UserID), zap.Error(err))
		}
	}
}
