// Package activity keeps the append-only, rate-limited trail of user
// actions, with real-time fan-out to listeners and bounded retention.
// Logging must never block or fail the primary user action: persistence
// errors roll the optimistic entry back and are swallowed.
package activity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/awraqsoft/munaqasat/internal/ident"
	"github.com/awraqsoft/munaqasat/internal/model/entity"
	"github.com/awraqsoft/munaqasat/internal/sse"
)

// Repository is the persistence surface the logger needs.
type Repository interface {
	Create(ctx context.Context, event *entity.ActivityEvent) error
	CountByCompany(ctx context.Context, companyID string) (int64, error)
	ListByCompany(ctx context.Context, companyID string, limit int) ([]entity.ActivityEvent, error)
	// IDsBeyondNewest returns the IDs of all events older than the
	// newest keep events, oldest last.
	IDsBeyondNewest(ctx context.Context, companyID string, keep int) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// Notifier fans events out to connected listeners.
type Notifier interface {
	Publish(ownerID, eventType string, payload interface{})
}

// Options tune rate limiting and retention.
type Options struct {
	// DuplicateWindow rejects an event when the same (type, description)
	// was recorded within it.
	DuplicateWindow time.Duration
	// MinGap rejects any event recorded too soon after the previous one,
	// a global brake on runaway logging loops.
	MinGap time.Duration
	// MaxEvents is the per-company retention bound.
	MaxEvents int
	// PruneBatch is how many events one delete batch removes.
	PruneBatch int
	// PrunePause separates delete batches so pruning cannot overwhelm
	// the backing store.
	PrunePause time.Duration
	// PruneInterval is the minimum time between pruning runs.
	PruneInterval time.Duration
}

func (o *Options) defaults() {
	if o.DuplicateWindow <= 0 {
		o.DuplicateWindow = 5 * time.Second
	}
	if o.MinGap <= 0 {
		o.MinGap = time.Second
	}
	if o.MaxEvents <= 0 {
		o.MaxEvents = 100
	}
	if o.PruneBatch <= 0 {
		o.PruneBatch = 25
	}
	if o.PrunePause <= 0 {
		o.PrunePause = 200 * time.Millisecond
	}
	if o.PruneInterval <= 0 {
		o.PruneInterval = time.Minute
	}
}

// Logger records activity events.
type Logger struct {
	repo   Repository
	notify Notifier
	log    *zap.Logger
	opts   Options

	mu        sync.Mutex
	lastAt    time.Time
	lastByKey map[string]time.Time

	pruneMu   sync.Mutex
	pruning   bool
	lastPrune map[string]time.Time
}

// NewLogger builds an activity logger. notify may be nil.
func NewLogger(repo Repository, notify Notifier, log *zap.Logger, opts Options) *Logger {
	opts.defaults()
	return &Logger{
		repo:      repo,
		notify:    notify,
		log:       log.Named("activity"),
		opts:      opts,
		lastByKey: make(map[string]time.Time),
		lastPrune: make(map[string]time.Time),
	}
}

// Record appends an event. It returns nil without error when the event
// is suppressed by rate limiting or when persistence failed; the caller
// never has to handle either case.
func (l *Logger) Record(ctx context.Context, actorID, companyID, eventType, description string, details entity.JSONB) *entity.ActivityEvent {
	now := time.Now()
	key := eventType + "\x00" + description

	l.mu.Lock()
	if !l.lastAt.IsZero() && now.Sub(l.lastAt) < l.opts.MinGap {
		l.mu.Unlock()
		l.log.Debug("event suppressed by global rate limit", zap.String("type", eventType))
		return nil
	}
	if at, ok := l.lastByKey[key]; ok && now.Sub(at) < l.opts.DuplicateWindow {
		l.mu.Unlock()
		l.log.Debug("duplicate event suppressed", zap.String("type", eventType))
		return nil
	}
	l.lastAt = now
	l.lastByKey[key] = now
	l.gcKeysLocked(now)
	l.mu.Unlock()

	event := &entity.ActivityEvent{
		ID:          ident.MustNew(ident.Activity),
		CompanyID:   companyID,
		ActorID:     actorID,
		Type:        eventType,
		Description: description,
		Details:     details,
		CreatedAt:   now,
	}

	// Optimistic broadcast before the write lands.
	if l.notify != nil {
		l.notify.Publish(actorID, sse.EventActivityRecorded, event)
	}

	if err := l.repo.Create(ctx, event); err != nil {
		l.log.Warn("persist event failed, rolling back",
			zap.String("type", eventType), zap.Error(err))
		if l.notify != nil {
			l.notify.Publish(actorID, sse.EventActivityRolledBack, map[string]string{"id": event.ID})
		}
		return nil
	}

	go l.pruneIfNeeded(companyID)
	return event
}

// gcKeysLocked drops stale duplicate-window entries; called with mu held.
func (l *Logger) gcKeysLocked(now time.Time) {
	if len(l.lastByKey) < 256 {
		return
	}
	for k, at := range l.lastByKey {
		if now.Sub(at) >= l.opts.DuplicateWindow {
			delete(l.lastByKey, k)
		}
	}
}

// Feed returns the newest events for a company.
func (l *Logger) Feed(ctx context.Context, companyID string, limit int) ([]entity.ActivityEvent, error) {
	if limit <= 0 || limit > l.opts.MaxEvents {
		limit = l.opts.MaxEvents
	}
	return l.repo.ListByCompany(ctx, companyID, limit)
}

func (l *Logger) pruneIfNeeded(companyID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := l.Prune(ctx, companyID); err != nil {
		l.log.Warn("prune failed", zap.String("company", companyID), zap.Error(err))
	}
}

// Prune enforces retention: when the company's event count exceeds the
// maximum it keeps the newest MaxEvents and deletes the remainder in
// small batches with a pause between them. Guarded against re-entrancy
// and against running more often than PruneInterval.
func (l *Logger) Prune(ctx context.Context, companyID string) (int, error) {
	l.pruneMu.Lock()
	if l.pruning {
		l.pruneMu.Unlock()
		return 0, nil
	}
	if last, ok := l.lastPrune[companyID]; ok && time.Since(last) < l.opts.PruneInterval {
		l.pruneMu.Unlock()
		return 0, nil
	}
	l.pruning = true
	l.lastPrune[companyID] = time.Now()
	l.pruneMu.Unlock()

	defer func() {
		l.pruneMu.Lock()
		l.pruning = false
		l.pruneMu.Unlock()
	}()

	count, err := l.repo.CountByCompany(ctx, companyID)
	if err != nil {
		return 0, err
	}
	if count <= int64(l.opts.MaxEvents) {
		return 0, nil
	}

	ids, err := l.repo.IDsBeyondNewest(ctx, companyID, l.opts.MaxEvents)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for start := 0; start < len(ids); start += l.opts.PruneBatch {
		end := start + l.opts.PruneBatch
		if end > len(ids) {
			end = len(ids)
		}
		if err := l.repo.DeleteByIDs(ctx, ids[start:end]); err != nil {
			return deleted, err
		}
		deleted += end - start
		if end < len(ids) {
			time.Sleep(l.opts.PrunePause)
		}
	}

	l.log.Info("pruned activity events",
		zap.String("company", companyID),
		zap.Int("deleted", deleted))
	return deleted, nil
}
