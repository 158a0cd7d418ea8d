package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Deleter removes a message from a chat
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) bool
}

// Scheduler deletes messages after a delay. Pending deletions are
// dropped on Stop and do not survive a restart.
type Scheduler struct {
	deleter Deleter
	logger  *zap.Logger

	mu      sync.Mutex
	nextID  int
	timers  map[int]*time.Timer
	stopped bool
}

// New creates a scheduler deleting through deleter
func New(deleter Deleter, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		deleter: deleter,
		logger:  logger.Named("scheduler"),
		timers:  make(map[int]*time.Timer),
	}
}

// DeleteAfter schedules a message for deletion
func (s *Scheduler) DeleteAfter(chatID int64, messageID int, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.nextID++
	id := s.nextID
	s.timers[id] = time.AfterFunc(d, func() {
		if !s.deleter.DeleteMessage(context.Background(), chatID, messageID) {
			s.logger.Warn("Scheduled deletion failed",
				zap.Int64("chat_id", chatID),
				zap.Int("message_id", messageID),
			)
		}

		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
	})
}

// Pending returns the number of deletions not yet run
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending deletion
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
