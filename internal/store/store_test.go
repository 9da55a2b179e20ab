package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/awraqsoft/munaqasat/internal/handler/testutil"
	"github.com/awraqsoft/munaqasat/internal/ident"
	"github.com/awraqsoft/munaqasat/internal/model/entity"
)

func newTenderStore(t *testing.T) *Store[entity.Tender, *entity.Tender] {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return New[entity.Tender, *entity.Tender](db, nil, zap.NewNop(), "tenders", ident.Tender)
}

func TestCreateStampsMetaAndCommits(t *testing.T) {
	s := newTenderStore(t)
	ctx := context.Background()

	ch := s.Create(ctx, "owner-1", &entity.Tender{Title: "Road works", ReferenceNo: "R-1"})

	first := <-ch
	if first.Phase != PhasePending {
		t.Fatalf("Expected first phase pending, got %s", first.Phase)
	}
	if first.Record.ID == "" || first.Record.Version != 1 || first.Record.OwnerID != "owner-1" {
		t.Fatalf("Pending record not stamped: %+v", first.Record.Meta)
	}

	second, ok := <-ch
	if !ok {
		t.Fatal("Expected a second phase on the channel")
	}
	if second.Phase != PhaseCommitted {
		t.Fatalf("Expected committed, got %s (err %v)", second.Phase, second.Err)
	}

	got, err := s.Get(ctx, "owner-1", first.Record.ID)
	if err != nil {
		t.Fatalf("Get after create: %v", err)
	}
	if got == nil || got.Title != "Road works" {
		t.Fatalf("Persisted record wrong: %+v", got)
	}
}

func TestUpdateBumpsVersionAndChecksOwnership(t *testing.T) {
	s := newTenderStore(t)
	ctx := context.Background()

	created, err := Await(s.Create(ctx, "owner-1", &entity.Tender{Title: "Original", ReferenceNo: "R-2"}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := Await(s.Update(ctx, "owner-1", created.ID, func(tn *entity.Tender) error {
		tn.Title = "Renamed"
		return nil
	}))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Expected version 2 after update, got %d", updated.Version)
	}
	if updated.Title != "Renamed" {
		t.Errorf("Expected renamed title, got %q", updated.Title)
	}

	if _, err := Await(s.Update(ctx, "owner-2", created.ID, func(tn *entity.Tender) error {
		tn.Title = "Hijacked"
		return nil
	})); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized for foreign owner, got %v", err)
	}

	if _, err := Await(s.Update(ctx, "owner-1", "tnd_missing", func(tn *entity.Tender) error {
		return nil
	})); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing id, got %v", err)
	}
}

func TestUpdateRollsBackOnMutateError(t *testing.T) {
	s := newTenderStore(t)
	ctx := context.Background()

	created, err := Await(s.Create(ctx, "owner-1", &entity.Tender{Title: "Before", ReferenceNo: "R-3"}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	boom := fmt.Errorf("mutate failed")
	ch := s.Update(ctx, "owner-1", created.ID, func(tn *entity.Tender) error {
		tn.Title = "Half changed"
		return boom
	})
	m := <-ch
	if m.Phase != PhaseRolledBack {
		t.Fatalf("Expected rollback phase, got %s", m.Phase)
	}
	if !errors.Is(m.Err, boom) {
		t.Fatalf("Expected mutate error, got %v", m.Err)
	}
	if m.Record == nil || m.Record.Title != "Before" {
		t.Fatalf("Rollback must carry the prior record, got %+v", m.Record)
	}

	got, err := s.Get(ctx, "owner-1", created.ID)
	if err != nil {
		t.Fatalf("Get after rollback: %v", err)
	}
	if got.Title != "Before" || got.Version != 1 {
		t.Errorf("Record must be untouched after rollback, got %q v%d", got.Title, got.Version)
	}
}

func TestDeleteRestorePurgeLifecycle(t *testing.T) {
	s := newTenderStore(t)
	ctx := context.Background()

	created, err := Await(s.Create(ctx, "owner-1", &entity.Tender{Title: "Disposable", ReferenceNo: "R-4"}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Purge before delete must refuse: only trashed records go away.
	if err := s.Purge(ctx, "owner-1", created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound purging a live record, got %v", err)
	}

	if _, err := Await(s.Delete(ctx, "owner-1", created.ID)); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// Soft-deleted records read as absent.
	got, err := s.Get(ctx, "owner-1", created.ID)
	if err != nil || got != nil {
		t.Fatalf("Expected (nil, nil) for deleted record, got (%v, %v)", got, err)
	}

	restored, err := s.Restore(ctx, "owner-1", created.ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.DeletedAt != nil {
		t.Fatal("Restore must clear the delete mark")
	}

	if _, err := Await(s.Delete(ctx, "owner-1", created.ID)); err != nil {
		t.Fatalf("Second delete: %v", err)
	}
	if err := s.Purge(ctx, "owner-2", created.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized purging foreign record, got %v", err)
	}
	if err := s.Purge(ctx, "owner-1", created.ID); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	var count int64
	s.DB().Model(&entity.Tender{}).Where("id = ?", created.ID).Count(&count)
	if count != 0 {
		t.Errorf("Expected row gone after purge, found %d", count)
	}
}

func TestListFallsBackToSnapshotWhenDatabaseUnreachable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rdb := testutil.SetupTestRedis(t)
	cache := NewCache(rdb, time.Minute, zap.NewNop())
	s := New[entity.Tender, *entity.Tender](db, cache, zap.NewNop(), "tenders", ident.Tender)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := Await(s.Create(ctx, "owner-1", &entity.Tender{
			Title:       fmt.Sprintf("Cached %d", i),
			ReferenceNo: fmt.Sprintf("C-%d", i),
		})); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("DB handle: %v", err)
	}
	sqlDB.Close()

	got, err := s.List(ctx, "owner-1", ListOptions{})
	if err != nil {
		t.Fatalf("List with database down: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 records from snapshot, got %d", len(got))
	}

	limited, err := s.List(ctx, "owner-1", ListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("Limited list with database down: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected snapshot fallback to honor the limit, got %d records", len(limited))
	}

	// No snapshot for this owner and no database either.
	if _, err := s.List(ctx, "owner-2", ListOptions{}); err == nil {
		t.Error("Expected an error when neither database nor snapshot can serve")
	}
}

func TestBatchAppliesMixedOperations(t *testing.T) {
	s := newTenderStore(t)
	ctx := context.Background()

	first, err := Await(s.Create(ctx, "owner-1", &entity.Tender{Title: "Keep", ReferenceNo: "B-1"}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := Await(s.Create(ctx, "owner-1", &entity.Tender{Title: "Drop", ReferenceNo: "B-2"}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	err = s.Batch(ctx, "owner-1", []Operation[entity.Tender, *entity.Tender]{
		{Kind: OpCreate, Record: &entity.Tender{Meta: entity.Meta{ID: ident.MustNew(ident.Tender)}, Title: "New", ReferenceNo: "B-3"}},
		{Kind: OpUpdate, ID: first.ID, Mutate: func(tn *entity.Tender) error {
			tn.Title = "Kept and renamed"
			return nil
		}},
		{Kind: OpDelete, ID: second.ID},
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}

	updated, err := s.Get(ctx, "owner-1", first.ID)
	if err != nil {
		t.Fatalf("Get after batch: %v", err)
	}
	if updated.Title != "Kept and renamed" || updated.Version != 2 {
		t.Errorf("Batch update not applied: %q v%d", updated.Title, updated.Version)
	}
	gone, err := s.Get(ctx, "owner-1", second.ID)
	if err != nil || gone != nil {
		t.Errorf("Expected batched delete to soft-delete, got (%v, %v)", gone, err)
	}
	live, err := s.List(ctx, "owner-1", ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(live) != 2 {
		t.Errorf("Expected 2 live records after batch, got %d", len(live))
	}
}

func TestBatchAbortsWholeBatchOnOwnershipViolation(t *testing.T) {
	s := newTenderStore(t)
	ctx := context.Background()

	mine, err := Await(s.Create(ctx, "owner-1", &entity.Tender{Title: "Mine", ReferenceNo: "V-1"}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	theirs, err := Await(s.Create(ctx, "owner-2", &entity.Tender{Title: "Theirs", ReferenceNo: "V-2"}))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	err = s.Batch(ctx, "owner-1", []Operation[entity.Tender, *entity.Tender]{
		{Kind: OpUpdate, ID: mine.ID, Mutate: func(tn *entity.Tender) error {
			tn.Title = "Should not land"
			return nil
		}},
		{Kind: OpDelete, ID: theirs.ID},
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized for foreign record in batch, got %v", err)
	}

	// The violation must leave every record untouched, including the
	// legitimate update ahead of it.
	got, err := s.Get(ctx, "owner-1", mine.ID)
	if err != nil {
		t.Fatalf("Get after aborted batch: %v", err)
	}
	if got.Title != "Mine" || got.Version != 1 {
		t.Errorf("Aborted batch must not apply partial writes, got %q v%d", got.Title, got.Version)
	}
	foreign, err := s.Get(ctx, "owner-2", theirs.ID)
	if err != nil || foreign == nil {
		t.Fatalf("Foreign record must survive the aborted batch: (%v, %v)", foreign, err)
	}
}

func TestListScopedToOwner(t *testing.T) {
	s := newTenderStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := Await(s.Create(ctx, "owner-1", &entity.Tender{
			Title:       fmt.Sprintf("Mine %d", i),
			ReferenceNo: fmt.Sprintf("M-%d", i),
		})); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := Await(s.Create(ctx, "owner-2", &entity.Tender{Title: "Theirs", ReferenceNo: "T-1"})); err != nil {
		t.Fatalf("Create: %v", err)
	}

	mine, err := s.List(ctx, "owner-1", ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(mine) != 3 {
		t.Errorf("Expected 3 owned records, got %d", len(mine))
	}
}
