package recon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/awraqsoft/munaqasat/internal/model/entity"
)

// ErrBusy is returned when a merge is requested while another phase is
// already running for the same tender.
var ErrBusy = errors.New("reconciliation already in progress")

// ItemSource supplies staged line items, normally the pending store.
type ItemSource interface {
	PendingItems(ctx context.Context, owner string) ([]entity.TenderItem, error)
	ClearPendingItems(ctx context.Context, owner string) error
}

// ItemSink loads and persists a tender's line items along with the
// recomputed estimated value.
type ItemSink interface {
	LoadItems(ctx context.Context, owner, tenderID string) ([]entity.TenderItem, error)
	SaveItems(ctx context.Context, owner, tenderID string, items []entity.TenderItem, total float64) error
}

// PriceSource resolves the current catalog price of a material by type
// dispatch.
type PriceSource interface {
	CurrentPrice(ctx context.Context, owner, materialType, materialID string) (float64, string, error)
}

// Notifier fans same-session events out to listeners.
type Notifier interface {
	Publish(ownerID, eventType string, payload interface{})
}

// Options tune the engine's timing windows.
type Options struct {
	// DebounceDelay is how long after the last change the auto-save
	// fires; every change restarts the timer.
	DebounceDelay time.Duration
	// LoadCooldown suppresses auto-save after a merge so it cannot race
	// ahead and re-persist a pre-merge snapshot.
	LoadCooldown time.Duration
	// DeleteCooldown suppresses auto-save after an item removal so a
	// stale in-memory state cannot resurrect the deleted item.
	DeleteCooldown time.Duration
}

func (o *Options) defaults() {
	if o.DebounceDelay <= 0 {
		o.DebounceDelay = 2 * time.Second
	}
	if o.LoadCooldown <= 0 {
		o.LoadCooldown = 3 * time.Second
	}
	if o.DeleteCooldown <= 0 {
		o.DeleteCooldown = 5 * time.Second
	}
}

// phase is the explicit state machine replacing the scattered
// load-in-progress / deletion-in-progress flags: every aggregate is in
// exactly one phase and transitions are guarded in one place.
type phase int

const (
	phaseIdle phase = iota
	phaseLoading
	phaseMerging
	phaseSaving
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseLoading:
		return "loading"
	case phaseMerging:
		return "merging"
	case phaseSaving:
		return "saving"
	default:
		return "unknown"
	}
}

// session is the per-tender reconciliation state.
type session struct {
	mu            sync.Mutex
	phase         phase
	owner         string
	tenderID      string
	items         []entity.TenderItem
	dirty         bool
	timer         *time.Timer
	cooldownUntil time.Time
}

// transition moves the session from one phase to another; it fails when
// the session is not in the expected phase.
func (s *session) transition(from, to phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != from {
		return false
	}
	s.phase = to
	return true
}

// Engine coordinates merging, auto-save and price refresh per tender.
type Engine struct {
	source ItemSource
	sink   ItemSink
	prices PriceSource
	notify Notifier
	log    *zap.Logger
	opts   Options

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// NewEngine builds a reconciliation engine. notify may be nil.
func NewEngine(source ItemSource, sink ItemSink, prices PriceSource, notify Notifier, log *zap.Logger, opts Options) *Engine {
	opts.defaults()
	return &Engine{
		source:   source,
		sink:     sink,
		prices:   prices,
		notify:   notify,
		log:      log.Named("recon"),
		opts:     opts,
		sessions: make(map[string]*session),
	}
}

func (e *Engine) session(owner, tenderID string) *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := owner + "/" + tenderID
	s, ok := e.sessions[key]
	if !ok {
		s = &session{owner: owner, tenderID: tenderID}
		e.sessions[key] = s
	}
	return s
}

// MergeResult reports the outcome of one staged-items merge.
type MergeResult struct {
	Items      []entity.TenderItem `json:"items"`
	Added      int                 `json:"added"`
	Collisions []Collision         `json:"collisions"`
	Total      float64             `json:"total"`
}

// MergeStaged pulls the staged items for the owner, merges them into
// the tender's list, persists the result and clears the staging area.
// The session walks Idle → Loading → Merging → Saving → Idle; a second
// merge during that walk gets ErrBusy.
func (e *Engine) MergeStaged(ctx context.Context, owner, tenderID string) (*MergeResult, error) {
	s := e.session(owner, tenderID)
	if !s.transition(phaseIdle, phaseLoading) {
		return nil, ErrBusy
	}
	// Any exit path must put the session back to Idle and start the
	// post-load cooldown.
	defer func() {
		s.mu.Lock()
		s.phase = phaseIdle
		s.cooldownUntil = time.Now().Add(e.opts.LoadCooldown)
		s.mu.Unlock()
	}()

	existing, err := e.sink.LoadItems(ctx, owner, tenderID)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	if !s.transition(phaseLoading, phaseMerging) {
		return nil, ErrBusy
	}
	staged, err := e.source.PendingItems(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load staged items: %w", err)
	}
	merged, collisions := Merge(existing, staged)
	total := Total(merged)

	if !s.transition(phaseMerging, phaseSaving) {
		return nil, ErrBusy
	}
	if err := e.sink.SaveItems(ctx, owner, tenderID, merged, total); err != nil {
		return nil, fmt.Errorf("save merged items: %w", err)
	}
	if err := e.source.ClearPendingItems(ctx, owner); err != nil {
		// Staging survives until the next merge; duplicate detection
		// makes a re-merge a no-op.
		e.log.Warn("clear staged items failed", zap.String("tender", tenderID), zap.Error(err))
	}

	s.mu.Lock()
	s.items = merged
	s.dirty = false
	s.mu.Unlock()

	added := len(merged) - len(existing)
	if e.notify != nil && (added > 0 || len(collisions) > 0) {
		e.notify.Publish(owner, "items_added", map[string]interface{}{
			"tender_id": tenderID,
			"added":     added,
		})
	}
	e.log.Info("merged staged items",
		zap.String("tender", tenderID),
		zap.Int("added", added),
		zap.Int("collisions", len(collisions)))

	return &MergeResult{Items: merged, Added: added, Collisions: collisions, Total: total}, nil
}

// SetQuantity updates an item's quantity in the working copy and
// schedules a debounced auto-save.
func (e *Engine) SetQuantity(ctx context.Context, owner, tenderID, itemID string, quantity float64) error {
	s := e.session(owner, tenderID)

	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		items, err := e.sink.LoadItems(ctx, owner, tenderID)
		if err != nil {
			return fmt.Errorf("load items: %w", err)
		}
		s.mu.Lock()
		if len(s.items) == 0 {
			s.items = items
		}
	}
	found := false
	for i := range s.items {
		if s.items[i].ID == itemID {
			s.items[i].Quantity = quantity
			s.items[i].TotalPrice = round2(quantity * s.items[i].UnitPrice)
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return fmt.Errorf("item %s: %w", itemID, errItemNotFound)
	}
	s.dirty = true
	s.mu.Unlock()

	e.scheduleFlush(s)
	return nil
}

var errItemNotFound = errors.New("line item not in working copy")

// DeleteItem removes an item, persists immediately and opens the delete
// cooldown so a queued auto-save cannot flush the pre-delete state back.
func (e *Engine) DeleteItem(ctx context.Context, owner, tenderID, itemID string) (*entity.TenderItem, error) {
	s := e.session(owner, tenderID)

	items, err := e.sink.LoadItems(ctx, owner, tenderID)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	var removed *entity.TenderItem
	kept := items[:0]
	for _, it := range items {
		if it.ID == itemID && removed == nil {
			deleted := it
			removed = &deleted
			continue
		}
		kept = append(kept, it)
	}
	if removed == nil {
		return nil, fmt.Errorf("item %s: %w", itemID, errItemNotFound)
	}

	if err := e.sink.SaveItems(ctx, owner, tenderID, kept, Total(kept)); err != nil {
		return nil, fmt.Errorf("save after delete: %w", err)
	}

	s.mu.Lock()
	s.items = kept
	s.dirty = false
	s.cooldownUntil = time.Now().Add(e.opts.DeleteCooldown)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	return removed, nil
}

// scheduleFlush (re)starts the debounce timer for the session.
func (e *Engine) scheduleFlush(s *session) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(e.opts.DebounceDelay, func() { e.flush(s) })
}

// flush is the auto-save. It skips when there is nothing dirty or when
// the working copy is empty (an empty flush during initial render must
// not clobber a non-empty persisted list). During cooldown windows and
// non-idle phases the dirty state stays queued and the timer is re-armed
// to fire once the window closes; a change the caller was told succeeded
// must eventually land even if no further change arrives.
func (e *Engine) flush(s *session) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	s.mu.Lock()
	if !s.dirty || len(s.items) == 0 {
		s.mu.Unlock()
		return
	}
	if wait := time.Until(s.cooldownUntil); wait > 0 || s.phase != phaseIdle {
		if wait <= 0 {
			wait = e.opts.DebounceDelay
		}
		if s.timer != nil {
			s.timer.Stop()
		}
		s.timer = time.AfterFunc(wait, func() { e.flush(s) })
		s.mu.Unlock()
		return
	}
	s.phase = phaseSaving
	items := make([]entity.TenderItem, len(s.items))
	copy(items, s.items)
	owner, tenderID := s.owner, s.tenderID
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := e.sink.SaveItems(ctx, owner, tenderID, items, Total(items))

	s.mu.Lock()
	s.phase = phaseIdle
	if err != nil {
		// Keep dirty; the next change reschedules the flush.
		e.log.Warn("auto-save failed", zap.String("tender", tenderID), zap.Error(err))
	} else {
		s.dirty = false
	}
	s.mu.Unlock()
}

// RefreshPrices re-fetches each item's current material price and
// recomputes unit/total where the source price changed, writing all
// changes back in a single batch. A lookup failure for one item is
// logged and the item passes through unchanged.
func (e *Engine) RefreshPrices(ctx context.Context, owner, tenderID string) (int, error) {
	items, err := e.sink.LoadItems(ctx, owner, tenderID)
	if err != nil {
		return 0, fmt.Errorf("load items: %w", err)
	}

	changed := 0
	for i := range items {
		it := &items[i]
		price, supplier, err := e.prices.CurrentPrice(ctx, owner, it.MaterialType, it.MaterialID)
		if err != nil {
			e.log.Warn("price lookup failed, keeping snapshot",
				zap.String("material", it.MaterialID),
				zap.String("type", it.MaterialType),
				zap.Error(err))
			continue
		}
		if price == it.UnitPrice {
			continue
		}
		it.UnitPrice = price
		it.TotalPrice = round2(it.Quantity * price)
		if supplier != "" {
			it.Supplier = supplier
		}
		changed++
	}
	if changed == 0 {
		return 0, nil
	}

	if err := e.sink.SaveItems(ctx, owner, tenderID, items, Total(items)); err != nil {
		return 0, fmt.Errorf("save refreshed items: %w", err)
	}

	s := e.session(owner, tenderID)
	s.mu.Lock()
	s.items = items
	s.dirty = false
	s.mu.Unlock()

	return changed, nil
}

// Close stops all pending auto-save timers.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	sessions := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		if s.timer != nil {
			s.timer.Stop()
		}
		s.mu.Unlock()
	}
}
