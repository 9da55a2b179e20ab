package activity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/awraqsoft/munaqasat/internal/model/entity"
	"github.com/awraqsoft/munaqasat/internal/sse"
)

type memRepo struct {
	mu        sync.Mutex
	events    []entity.ActivityEvent
	createErr error
}

func (r *memRepo) Create(ctx context.Context, event *entity.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.events = append(r.events, *event)
	return nil
}

func (r *memRepo) CountByCompany(ctx context.Context, companyID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.events {
		if e.CompanyID == companyID {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) sortedByCompany(companyID string) []entity.ActivityEvent {
	var out []entity.ActivityEvent
	for _, e := range r.events {
		if e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *memRepo) ListByCompany(ctx context.Context, companyID string, limit int) ([]entity.ActivityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sortedByCompany(companyID)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) IDsBeyondNewest(ctx context.Context, companyID string, keep int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sortedByCompany(companyID)
	var ids []string
	for i := keep; i < len(out); i++ {
		ids = append(ids, out[i].ID)
	}
	return ids, nil
}

func (r *memRepo) DeleteByIDs(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	kept := r.events[:0]
	for _, e := range r.events {
		if _, ok := drop[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	r.events = kept
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Publish(ownerID, eventType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func newTestLogger(repo Repository, notify Notifier) *Logger {
	return NewLogger(repo, notify, zap.NewNop(), Options{
		DuplicateWindow: 100 * time.Millisecond,
		MinGap:          20 * time.Millisecond,
		MaxEvents:       5,
		PruneBatch:      2,
		PrunePause:      time.Millisecond,
		PruneInterval:   time.Millisecond,
	})
}

func TestRecordPersistsAndBroadcasts(t *testing.T) {
	repo := &memRepo{}
	notify := &recorder{}
	l := newTestLogger(repo, notify)

	event := l.Record(context.Background(), "usr_1", "cmp_1", "tender_created", "created tender REF-001", nil)
	require.NotNil(t, event)
	assert.NotEmpty(t, event.ID)

	count, _ := repo.CountByCompany(context.Background(), "cmp_1")
	assert.EqualValues(t, 1, count)
	assert.Contains(t, notify.events, sse.EventActivityRecorded)
}

func TestRecordSuppressesDuplicateWithinWindow(t *testing.T) {
	repo := &memRepo{}
	l := newTestLogger(repo, nil)
	ctx := context.Background()

	first := l.Record(ctx, "usr_1", "cmp_1", "item_added", "added Cement", nil)
	require.NotNil(t, first)

	// Outside the global gap but inside the duplicate window.
	time.Sleep(30 * time.Millisecond)
	second := l.Record(ctx, "usr_1", "cmp_1", "item_added", "added Cement", nil)
	assert.Nil(t, second)

	count, _ := repo.CountByCompany(ctx, "cmp_1")
	assert.EqualValues(t, 1, count, "identical (type, description) within the window persists once")
}

func TestRecordGlobalMinGap(t *testing.T) {
	repo := &memRepo{}
	l := newTestLogger(repo, nil)
	ctx := context.Background()

	require.NotNil(t, l.Record(ctx, "usr_1", "cmp_1", "a", "first", nil))
	assert.Nil(t, l.Record(ctx, "usr_1", "cmp_1", "b", "different event, too soon", nil))
}

func TestRecordRollsBackOnPersistFailure(t *testing.T) {
	repo := &memRepo{createErr: errors.New("store down")}
	notify := &recorder{}
	l := newTestLogger(repo, notify)

	event := l.Record(context.Background(), "usr_1", "cmp_1", "tender_created", "created", nil)
	assert.Nil(t, event, "persistence failure is swallowed")

	notify.mu.Lock()
	defer notify.mu.Unlock()
	assert.Contains(t, notify.events, sse.EventActivityRecorded, "optimistic broadcast happens first")
	assert.Contains(t, notify.events, sse.EventActivityRolledBack)
}

func TestPruneKeepsNewest(t *testing.T) {
	repo := &memRepo{}
	l := newTestLogger(repo, nil)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 12; i++ {
		repo.events = append(repo.events, entity.ActivityEvent{
			ID:        entityID(i),
			CompanyID: "cmp_1",
			Type:      "seed",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	deleted, err := l.Prune(ctx, "cmp_1")
	require.NoError(t, err)
	assert.Equal(t, 7, deleted)

	remaining, _ := l.Feed(ctx, "cmp_1", 100)
	require.Len(t, remaining, 5)
	// The newest five survive.
	assert.Equal(t, entityID(11), remaining[0].ID)
	assert.Equal(t, entityID(7), remaining[4].ID)
}

func TestPruneRespectsMinInterval(t *testing.T) {
	repo := &memRepo{}
	l := NewLogger(repo, nil, zap.NewNop(), Options{
		MaxEvents:     5,
		PruneBatch:    10,
		PruneInterval: time.Hour,
	})
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		repo.events = append(repo.events, entity.ActivityEvent{
			ID:        entityID(i),
			CompanyID: "cmp_1",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
		})
	}

	deleted, err := l.Prune(ctx, "cmp_1")
	require.NoError(t, err)
	assert.Equal(t, 7, deleted)

	// A second run inside the interval is a no-op even though we are
	// back over the limit.
	for i := 100; i < 120; i++ {
		repo.events = append(repo.events, entity.ActivityEvent{
			ID:        entityID(i),
			CompanyID: "cmp_1",
			CreatedAt: time.Now(),
		})
	}
	deleted, err = l.Prune(ctx, "cmp_1")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func entityID(i int) string {
	return "act_" + string(rune('a'+i/26)) + string(rune('a'+i%26))
}
