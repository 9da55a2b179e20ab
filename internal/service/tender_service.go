package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/awraqsoft/munaqasat/internal/activity"
	"github.com/awraqsoft/munaqasat/internal/ident"
	"github.com/awraqsoft/munaqasat/internal/model/entity"
	"github.com/awraqsoft/munaqasat/internal/pending"
	"github.com/awraqsoft/munaqasat/internal/recon"
	"github.com/awraqsoft/munaqasat/internal/repository"
	"github.com/awraqsoft/munaqasat/internal/sse"
	"github.com/awraqsoft/munaqasat/internal/store"
)

// ErrDuplicateReference rejects a tender whose reference number is
// already used by another live tender of the same owner.
var ErrDuplicateReference = errors.New("reference number already in use")

// ErrInvalidStatus rejects an unknown tender status.
var ErrInvalidStatus = errors.New("invalid tender status")

var tenderStatuses = map[string]struct{}{
	entity.TenderStatusDraft:     {},
	entity.TenderStatusSubmitted: {},
	entity.TenderStatusActive:    {},
	entity.TenderStatusTracking:  {},
	entity.TenderStatusWon:       {},
	entity.TenderStatusLost:      {},
	entity.TenderStatusArchived:  {},
	entity.TenderStatusTrash:     {},
}

// TenderService owns the tender lifecycle and line-item operations. It
// doubles as the reconciliation engine's ItemSink.
type TenderService struct {
	tenders  *TenderStore
	repo     *repository.TenderRepository
	trash    *repository.TrashRepository
	pending  *pending.Store
	material *MaterialService
	activity *activity.Logger
	hub      *sse.Hub
	log      *zap.Logger
	engine   *recon.Engine
}

func NewTenderService(
	tenders *TenderStore,
	repo *repository.TenderRepository,
	trash *repository.TrashRepository,
	pendingStore *pending.Store,
	material *MaterialService,
	activityLog *activity.Logger,
	hub *sse.Hub,
	log *zap.Logger,
) *TenderService {
	return &TenderService{
		tenders:  tenders,
		repo:     repo,
		trash:    trash,
		pending:  pendingStore,
		material: material,
		activity: activityLog,
		hub:      hub,
		log:      log.Named("tender"),
	}
}

// CreateTenderRequest carries the caller-supplied tender fields.
type CreateTenderRequest struct {
	Title         string     `json:"title" binding:"required"`
	ReferenceNo   string     `json:"reference_no" binding:"required"`
	IssuingEntity string     `json:"issuing_entity"`
	Deadline      *time.Time `json:"deadline"`
}

// UpdateTenderRequest carries the mutable tender fields; empty values
// are left untouched.
type UpdateTenderRequest struct {
	Title         string     `json:"title"`
	ReferenceNo   string     `json:"reference_no"`
	IssuingEntity string     `json:"issuing_entity"`
	Deadline      *time.Time `json:"deadline"`
}

// Create builds a draft tender after checking reference uniqueness.
func (s *TenderService) Create(ctx context.Context, actor Actor, req *CreateTenderRequest) (*entity.Tender, error) {
	exists, err := s.repo.ReferenceExists(ctx, actor.ID, req.ReferenceNo, "")
	if err != nil {
		return nil, fmt.Errorf("check reference: %w", err)
	}
	if exists {
		return nil, ErrDuplicateReference
	}

	tender := &entity.Tender{
		Title:         req.Title,
		ReferenceNo:   req.ReferenceNo,
		IssuingEntity: req.IssuingEntity,
		Deadline:      req.Deadline,
		Status:        entity.TenderStatusDraft,
		Items:         entity.ItemList{},
	}
	created, err := store.Await(s.tenders.Create(ctx, actor.ID, tender))
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, actor.ID, actor.CompanyID, "tender_created",
		fmt.Sprintf("created tender %s", created.ReferenceNo), nil)
	return created, nil
}

// Update applies the non-empty request fields, re-checking reference
// uniqueness when the reference changes.
func (s *TenderService) Update(ctx context.Context, actor Actor, id string, req *UpdateTenderRequest) (*entity.Tender, error) {
	if req.ReferenceNo != "" {
		exists, err := s.repo.ReferenceExists(ctx, actor.ID, req.ReferenceNo, id)
		if err != nil {
			return nil, fmt.Errorf("check reference: %w", err)
		}
		if exists {
			return nil, ErrDuplicateReference
		}
	}

	return store.Await(s.tenders.Update(ctx, actor.ID, id, func(t *entity.Tender) error {
		if req.Title != "" {
			t.Title = req.Title
		}
		if req.ReferenceNo != "" {
			t.ReferenceNo = req.ReferenceNo
		}
		if req.IssuingEntity != "" {
			t.IssuingEntity = req.IssuingEntity
		}
		if req.Deadline != nil {
			t.Deadline = req.Deadline
		}
		return nil
	}))
}

// Get returns the tender, or nil when it does not exist.
func (s *TenderService) Get(ctx context.Context, actor Actor, id string) (*entity.Tender, error) {
	return s.tenders.Get(ctx, actor.ID, id)
}

// List returns the actor's tenders, newest first.
func (s *TenderService) List(ctx context.Context, actor Actor, limit int) ([]entity.Tender, error) {
	return s.tenders.List(ctx, actor.ID, store.ListOptions{Limit: limit, OrderBy: "created_at DESC"})
}

// Search filters the actor's tenders client-side.
func (s *TenderService) Search(ctx context.Context, actor Actor, term string) ([]entity.Tender, error) {
	return s.tenders.Search(ctx, actor.ID, term, "title", "reference_no", "issuing_entity")
}

// SetStatus moves a tender through its lifecycle.
func (s *TenderService) SetStatus(ctx context.Context, actor Actor, id, status string) (*entity.Tender, error) {
	if _, ok := tenderStatuses[status]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	var from string
	updated, err := store.Await(s.tenders.Update(ctx, actor.ID, id, func(t *entity.Tender) error {
		from = t.Status
		t.Status = status
		return nil
	}))
	if err != nil {
		return nil, err
	}

	s.activity.Record(ctx, actor.ID, actor.CompanyID, "tender_status_changed",
		fmt.Sprintf("tender %s: %s → %s", updated.ReferenceNo, from, status), nil)
	return updated, nil
}

// MoveToTrash parks a tender in the trash state and snapshots it for
// restore. Tenders are never hard-deleted.
func (s *TenderService) MoveToTrash(ctx context.Context, actor Actor, id string) error {
	tender, err := s.SetStatus(ctx, actor, id, entity.TenderStatusTrash)
	if err != nil {
		return err
	}

	trashID, err := ident.New(ident.Trash)
	if err != nil {
		return err
	}
	rec := &entity.TrashRecord{
		ID:          trashID,
		OwnerID:     actor.ID,
		SourceTable: s.tenders.Collection(),
		SourceID:    tender.ID,
		Payload:     entity.JSONB{"reference_no": tender.ReferenceNo, "title": tender.Title},
		DeletedBy:   actor.ID,
		CreatedAt:   time.Now(),
	}
	if err := s.trash.Create(ctx, rec); err != nil {
		// The tender is already in trash state; the snapshot is only a
		// convenience for the trash listing.
		s.log.Warn("trash snapshot failed", zap.String("tender", id), zap.Error(err))
	}
	return nil
}

// RestoreFromTrash puts a trashed tender back into draft.
func (s *TenderService) RestoreFromTrash(ctx context.Context, actor Actor, trashID string) (*entity.Tender, error) {
	rec, err := s.trash.FindByID(ctx, actor.ID, trashID)
	if err != nil {
		return nil, err
	}
	restored, err := s.SetStatus(ctx, actor, rec.SourceID, entity.TenderStatusDraft)
	if err != nil {
		return nil, err
	}
	if err := s.trash.Delete(ctx, trashID); err != nil {
		s.log.Warn("drop trash record failed", zap.String("trash", trashID), zap.Error(err))
	}
	s.hub.Publish(actor.ID, sse.EventItemRestored, map[string]string{
		"tender_id": restored.ID,
	})
	return restored, nil
}

// ListTrash returns every trash snapshot of the owner, newest first,
// regardless of which collection the source record came from.
func (s *TenderService) ListTrash(ctx context.Context, actor Actor) ([]entity.TrashRecord, error) {
	return s.trash.ListByOwner(ctx, actor.ID)
}

// StageItems snapshots prices for the given materials and places the
// resulting line items into the pending store, merging with anything
// already staged.
func (s *TenderService) StageItems(ctx context.Context, actor Actor, reqs []StageItemRequest) ([]entity.TenderItem, error) {
	items := make([]entity.TenderItem, 0, len(reqs))
	for _, req := range reqs {
		price, supplier, err := s.material.CurrentPrice(ctx, actor.ID, req.MaterialType, req.MaterialID)
		if err != nil {
			// Degrade per item: stage it without a price snapshot rather
			// than failing the whole batch.
			s.log.Warn("price snapshot failed while staging",
				zap.String("material", req.MaterialID), zap.Error(err))
		}
		id, err := ident.New(ident.TenderItem)
		if err != nil {
			return nil, err
		}
		qty := req.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, entity.TenderItem{
			ID:           id,
			MaterialID:   req.MaterialID,
			MaterialType: req.MaterialType,
			Name:         req.Name,
			Unit:         req.Unit,
			Quantity:     qty,
			UnitPrice:    price,
			TotalPrice:   qty * price,
			Supplier:     supplier,
			AddedAt:      time.Now().UnixMilli(),
		})
	}

	staged, err := s.pending.PendingItems(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	merged, _ := recon.Merge(staged, items)
	if err := s.pending.SetPendingItems(ctx, actor.ID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// StageItemRequest stages one material as a line item.
type StageItemRequest struct {
	MaterialID   string  `json:"material_id" binding:"required"`
	MaterialType string  `json:"material_type" binding:"required"`
	Name         string  `json:"name" binding:"required"`
	Unit         string  `json:"unit"`
	Quantity     float64 `json:"quantity"`
}

// MergeStaged reconciles the staged items into the tender.
func (s *TenderService) MergeStaged(ctx context.Context, actor Actor, tenderID string) (*recon.MergeResult, error) {
	res, err := s.engine.MergeStaged(ctx, actor.ID, tenderID)
	if err != nil {
		return nil, err
	}
	if res.Added > 0 {
		s.activity.Record(ctx, actor.ID, actor.CompanyID, "items_merged",
			fmt.Sprintf("added %d items to tender", res.Added), nil)
	}
	return res, nil
}

// SetItemQuantity edits a line item's quantity; persistence is
// debounced by the engine.
func (s *TenderService) SetItemQuantity(ctx context.Context, actor Actor, tenderID, itemID string, quantity float64) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	return s.engine.SetQuantity(ctx, actor.ID, tenderID, itemID, quantity)
}

// DeleteItem removes a line item, snapshots it to the trash and opens
// the engine's delete cooldown.
func (s *TenderService) DeleteItem(ctx context.Context, actor Actor, tenderID, itemID string) error {
	removed, err := s.engine.DeleteItem(ctx, actor.ID, tenderID, itemID)
	if err != nil {
		return err
	}

	trashID, err := ident.New(ident.Trash)
	if err != nil {
		return err
	}
	rec := &entity.TrashRecord{
		ID:          trashID,
		OwnerID:     actor.ID,
		SourceTable: "tender_items",
		SourceID:    removed.ID,
		Payload: entity.JSONB{
			"tender_id": tenderID,
			"item":      removed,
		},
		DeletedBy: actor.ID,
		CreatedAt: time.Now(),
	}
	if err := s.trash.Create(ctx, rec); err != nil {
		s.log.Warn("trash snapshot failed", zap.String("item", itemID), zap.Error(err))
	}

	s.activity.Record(ctx, actor.ID, actor.CompanyID, "item_deleted",
		fmt.Sprintf("removed %s from tender", removed.Name), nil)
	return nil
}

// RefreshPrices re-snapshots every line item's price from the catalog.
func (s *TenderService) RefreshPrices(ctx context.Context, actor Actor, tenderID string) (int, error) {
	changed, err := s.engine.RefreshPrices(ctx, actor.ID, tenderID)
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		s.activity.Record(ctx, actor.ID, actor.CompanyID, "prices_refreshed",
			fmt.Sprintf("refreshed %d line item prices", changed), nil)
	}
	return changed, nil
}

// AddCompetitor records a competitor's price on the tender.
func (s *TenderService) AddCompetitor(ctx context.Context, actor Actor, tenderID, name string, amount float64) (*entity.Tender, error) {
	return store.Await(s.tenders.Update(ctx, actor.ID, tenderID, func(t *entity.Tender) error {
		t.Competitors = append(t.Competitors, entity.CompetitorPrice{Name: name, Amount: amount})
		return nil
	}))
}

// Stats returns the actor's tender counts by status.
func (s *TenderService) Stats(ctx context.Context, actor Actor) (map[string]int64, error) {
	return s.repo.CountByStatus(ctx, actor.ID)
}

// LoadItems implements recon.ItemSink.
func (s *TenderService) LoadItems(ctx context.Context, owner, tenderID string) ([]entity.TenderItem, error) {
	tender, err := s.tenders.Get(ctx, owner, tenderID)
	if err != nil {
		return nil, err
	}
	if tender == nil {
		return nil, store.ErrNotFound
	}
	return tender.Items, nil
}

// SaveItems implements recon.ItemSink: the merged list and recomputed
// estimated value land in one versioned write.
func (s *TenderService) SaveItems(ctx context.Context, owner, tenderID string, items []entity.TenderItem, total float64) error {
	_, err := store.Await(s.tenders.Update(ctx, owner, tenderID, func(t *entity.Tender) error {
		t.Items = items
		t.EstimatedValue = total
		return nil
	}))
	return err
}
