package recon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/awraqsoft/munaqasat/internal/model/entity"
)

type fakeSource struct {
	mu      sync.Mutex
	items   []entity.TenderItem
	cleared int
}

func (f *fakeSource) PendingItems(ctx context.Context, owner string) ([]entity.TenderItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.TenderItem(nil), f.items...), nil
}

func (f *fakeSource) ClearPendingItems(ctx context.Context, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
	f.cleared++
	return nil
}

type fakeSink struct {
	mu       sync.Mutex
	items    []entity.TenderItem
	total    float64
	saves    int
	loadHook func()
}

func (f *fakeSink) LoadItems(ctx context.Context, owner, tenderID string) ([]entity.TenderItem, error) {
	if f.loadHook != nil {
		f.loadHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.TenderItem(nil), f.items...), nil
}

func (f *fakeSink) SaveItems(ctx context.Context, owner, tenderID string, items []entity.TenderItem, total float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append([]entity.TenderItem(nil), items...)
	f.total = total
	f.saves++
	return nil
}

func (f *fakeSink) state() ([]entity.TenderItem, float64, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]entity.TenderItem(nil), f.items...), f.total, f.saves
}

type fakePrices struct {
	prices map[string]float64
	errs   map[string]error
}

func (f *fakePrices) CurrentPrice(ctx context.Context, owner, materialType, materialID string) (float64, string, error) {
	if err, ok := f.errs[materialID]; ok {
		return 0, "", err
	}
	return f.prices[materialID], "", nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Publish(ownerID, eventType string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func newTestEngine(source *fakeSource, sink *fakeSink, prices *fakePrices, notify Notifier) *Engine {
	return NewEngine(source, sink, prices, notify, zap.NewNop(), Options{
		DebounceDelay:  30 * time.Millisecond,
		LoadCooldown:   100 * time.Millisecond,
		DeleteCooldown: 200 * time.Millisecond,
	})
}

func TestMergeStagedPersistsAndClears(t *testing.T) {
	source := &fakeSource{items: []entity.TenderItem{
		item("itm_2", "raw_2", entity.MaterialTypeRaw, "Sand", 5, 10),
	}}
	sink := &fakeSink{items: []entity.TenderItem{
		item("itm_1", "raw_1", entity.MaterialTypeRaw, "Cement", 10, 25),
	}}
	notify := &fakeNotifier{}
	e := newTestEngine(source, sink, &fakePrices{}, notify)
	defer e.Close()

	res, err := e.MergeStaged(context.Background(), "usr_1", "tnd_1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 300.0, res.Total)

	saved, total, _ := sink.state()
	assert.Len(t, saved, 2)
	assert.Equal(t, 300.0, total)
	assert.Equal(t, 1, source.cleared)
	assert.Contains(t, notify.events, "items_added")
}

func TestMergeStagedQuantitySum(t *testing.T) {
	// Two staged items referencing the same material, quantities 2 and 3:
	// exactly one line item with quantity 5 after reconciliation.
	source := &fakeSource{items: []entity.TenderItem{
		item("itm_a", "raw_1", entity.MaterialTypeRaw, "Cement", 2, 25),
		item("itm_b", "raw_1", entity.MaterialTypeRaw, "Cement", 3, 25),
	}}
	sink := &fakeSink{}
	e := newTestEngine(source, sink, &fakePrices{}, nil)
	defer e.Close()

	res, err := e.MergeStaged(context.Background(), "usr_1", "tnd_1")
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 5.0, res.Items[0].Quantity)
	assert.Equal(t, 125.0, res.Total)
}

func TestMergeStagedRejectsReentry(t *testing.T) {
	source := &fakeSource{}
	sink := &fakeSink{}
	e := newTestEngine(source, sink, &fakePrices{}, nil)
	defer e.Close()

	var reentrant error
	sink.loadHook = func() {
		// Re-enter while the session is in the loading phase.
		sink.loadHook = nil
		_, reentrant = e.MergeStaged(context.Background(), "usr_1", "tnd_1")
	}

	_, err := e.MergeStaged(context.Background(), "usr_1", "tnd_1")
	require.NoError(t, err)
	assert.ErrorIs(t, reentrant, ErrBusy)
}

func TestDebouncedAutoSave(t *testing.T) {
	sink := &fakeSink{items: []entity.TenderItem{
		item("itm_1", "raw_1", entity.MaterialTypeRaw, "Cement", 10, 25),
	}}
	e := newTestEngine(&fakeSource{}, sink, &fakePrices{}, nil)
	defer e.Close()

	require.NoError(t, e.SetQuantity(context.Background(), "usr_1", "tnd_1", "itm_1", 12))
	require.NoError(t, e.SetQuantity(context.Background(), "usr_1", "tnd_1", "itm_1", 15))

	// Two changes inside the debounce window collapse into one save.
	time.Sleep(150 * time.Millisecond)
	saved, total, saves := sink.state()
	assert.Equal(t, 1, saves)
	require.Len(t, saved, 1)
	assert.Equal(t, 15.0, saved[0].Quantity)
	assert.Equal(t, 375.0, total)
}

func TestDeletedItemNotResurrectedByAutoSave(t *testing.T) {
	sink := &fakeSink{items: []entity.TenderItem{
		item("itm_1", "raw_1", entity.MaterialTypeRaw, "Cement", 10, 25),
		item("itm_2", "raw_2", entity.MaterialTypeRaw, "Sand", 5, 10),
	}}
	e := newTestEngine(&fakeSource{}, sink, &fakePrices{}, nil)
	defer e.Close()

	ctx := context.Background()
	// A quantity edit arms the debounced auto-save with the pre-delete
	// state...
	require.NoError(t, e.SetQuantity(ctx, "usr_1", "tnd_1", "itm_2", 7))
	// ...then the item is deleted before the timer fires.
	removed, err := e.DeleteItem(ctx, "usr_1", "tnd_1", "itm_2")
	require.NoError(t, err)
	assert.Equal(t, "itm_2", removed.ID)

	time.Sleep(150 * time.Millisecond)
	saved, _, _ := sink.state()
	require.Len(t, saved, 1)
	assert.Equal(t, "itm_1", saved[0].ID, "deleted item must not reappear in the persisted list")
}

func TestEditDuringCooldownEventuallyPersists(t *testing.T) {
	source := &fakeSource{items: []entity.TenderItem{
		item("itm_1", "raw_1", entity.MaterialTypeRaw, "Cement", 10, 25),
	}}
	sink := &fakeSink{}
	e := newTestEngine(source, sink, &fakePrices{}, nil)
	defer e.Close()

	ctx := context.Background()
	_, err := e.MergeStaged(ctx, "usr_1", "tnd_1")
	require.NoError(t, err)

	// The edit lands inside the post-merge cooldown and its debounce
	// timer fires while the window is still open. The save must be
	// retried after the window closes, not dropped.
	require.NoError(t, e.SetQuantity(ctx, "usr_1", "tnd_1", "itm_1", 99))

	time.Sleep(400 * time.Millisecond)
	saved, total, saves := sink.state()
	assert.Equal(t, 2, saves, "one save for the merge, one for the queued edit")
	require.Len(t, saved, 1)
	assert.Equal(t, 99.0, saved[0].Quantity)
	assert.Equal(t, 2475.0, total)
}

func TestFlushSkipsEmptyWorkingCopy(t *testing.T) {
	sink := &fakeSink{items: []entity.TenderItem{
		item("itm_1", "raw_1", entity.MaterialTypeRaw, "Cement", 10, 25),
	}}
	e := newTestEngine(&fakeSource{}, sink, &fakePrices{}, nil)
	defer e.Close()

	s := e.session("usr_1", "tnd_1")
	s.dirty = true // empty working copy during initial render
	e.flush(s)

	_, _, saves := sink.state()
	assert.Zero(t, saves, "an empty working copy must not clobber the persisted list")
}

func TestRefreshPrices(t *testing.T) {
	sink := &fakeSink{items: []entity.TenderItem{
		item("itm_1", "raw_1", entity.MaterialTypeRaw, "Cement", 10, 25),
		item("itm_2", "raw_2", entity.MaterialTypeRaw, "Sand", 4, 10),
		item("itm_3", "raw_3", entity.MaterialTypeRaw, "Gravel", 2, 15),
	}}
	prices := &fakePrices{
		prices: map[string]float64{"raw_1": 30, "raw_2": 10},
		errs:   map[string]error{"raw_3": errors.New("catalog unavailable")},
	}
	e := newTestEngine(&fakeSource{}, sink, prices, nil)
	defer e.Close()

	changed, err := e.RefreshPrices(context.Background(), "usr_1", "tnd_1")
	require.NoError(t, err)
	assert.Equal(t, 1, changed, "only raw_1 changed; raw_2 is unchanged, raw_3 failed")

	saved, total, saves := sink.state()
	assert.Equal(t, 1, saves, "all changes land in a single write")
	assert.Equal(t, 30.0, saved[0].UnitPrice)
	assert.Equal(t, 300.0, saved[0].TotalPrice)
	assert.Equal(t, 15.0, saved[2].UnitPrice, "failed lookup passes the item through unchanged")
	assert.Equal(t, 370.0, total)
}
