package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Kind names the moderation action an event records
type Kind string

const (
	KindPurge      Kind = "purge"
	KindAdminPurge Kind = "admin_purge"
	KindAllBan     Kind = "allban"
)

// Event is one completed moderation action
type Event struct {
	Time     time.Time
	Kind     Kind
	ActorID  int64
	TargetID int64
	// Counters carry purge report figures. For bans Deleted counts the
	// groups the target was banned from and Failed the refusals.
	Purged  int
	Deleted int
	Failed  int
	Detail  string
}

// Journal records moderation events. Recording never affects the
// action itself; callers log and move on when it fails.
type Journal interface {
	Record(ctx context.Context, event Event) error
	Close() error
}

// Historian is implemented by journals that can be queried back
type Historian interface {
	// TargetHistory returns the latest events against a user, newest first
	TargetHistory(ctx context.Context, targetID int64, limit int) ([]Event, error)
}

// LogJournal writes events to the application log
type LogJournal struct {
	logger *zap.Logger
}

// NewLogJournal creates a journal backed by logger
func NewLogJournal(logger *zap.Logger) *LogJournal {
	return &LogJournal{logger: logger.Named("audit")}
}

// Record logs the event at info level
func (j *LogJournal) Record(ctx context.Context, event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	j.logger.Info("Moderation event",
		zap.String("kind", string(event.Kind)),
		zap.Time("time", event.Time),
		zap.Int64("actor_id", event.ActorID),
		zap.Int64("target_id", event.TargetID),
		zap.Int("purged", event.Purged),
		zap.Int("deleted", event.Deleted),
		zap.Int("failed", event.Failed),
		zap.String("detail", event.Detail),
	)
	return nil
}

// Close does nothing
func (j *LogJournal) Close() error {
	return nil
}
