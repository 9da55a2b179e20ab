package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/awraqsoft/munaqasat/internal/activity"
	"github.com/awraqsoft/munaqasat/internal/ident"
	"github.com/awraqsoft/munaqasat/internal/model/entity"
	"github.com/awraqsoft/munaqasat/internal/repository"
	"github.com/awraqsoft/munaqasat/internal/store"
)

// ErrDuplicateMaterial rejects a catalog entry whose (name, unit) pair
// already exists within the same type for the owner.
var ErrDuplicateMaterial = errors.New("material with this name and unit already exists")

// ErrUnknownMaterialType rejects a type tag outside the four catalogs.
var ErrUnknownMaterialType = errors.New("unknown material type")

var materialKinds = map[string]ident.Kind{
	entity.MaterialTypeRaw:          ident.RawMaterial,
	entity.MaterialTypeLocal:        ident.LocalProduct,
	entity.MaterialTypeForeign:      ident.ForeignProduct,
	entity.MaterialTypeManufactured: ident.ManufacturedProduct,
}

// MaterialService manages the four material catalogs and serves as the
// engine's price source.
type MaterialService struct {
	materials *MaterialStore
	trash     *repository.TrashRepository
	activity  *activity.Logger
	log       *zap.Logger
}

func NewMaterialService(materials *MaterialStore, trash *repository.TrashRepository, activityLog *activity.Logger, log *zap.Logger) *MaterialService {
	return &MaterialService{
		materials: materials,
		trash:     trash,
		activity:  activityLog,
		log:       log.Named("material"),
	}
}

// CreateMaterialRequest carries the caller-supplied catalog fields.
type CreateMaterialRequest struct {
	Type      string  `json:"type" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	Unit      string  `json:"unit"`
	BasePrice float64 `json:"base_price"`
	Supplier  string  `json:"supplier"`
}

// Create adds a catalog entry. The identifier prefix follows the
// material type, and (name, unit) must be unique within that type.
func (s *MaterialService) Create(ctx context.Context, actor Actor, req *CreateMaterialRequest) (*entity.Material, error) {
	kind, ok := materialKinds[req.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMaterialType, req.Type)
	}
	unit := req.Unit
	if unit == "" {
		unit = "pcs"
	}

	dup, err := s.nameExists(ctx, actor.ID, req.Type, req.Name, unit, "")
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, ErrDuplicateMaterial
	}

	id, err := ident.New(kind)
	if err != nil {
		return nil, err
	}
	mat := &entity.Material{
		Type:      req.Type,
		Name:      strings.TrimSpace(req.Name),
		Unit:      unit,
		BasePrice: req.BasePrice,
		Supplier:  req.Supplier,
		Quotes:    entity.QuoteList{},
	}
	mat.ID = id

	created, err := store.Await(s.materials.Create(ctx, actor.ID, mat))
	if err != nil {
		return nil, err
	}
	s.activity.Record(ctx, actor.ID, actor.CompanyID, "material_created",
		fmt.Sprintf("added %s to the catalog", created.Name), nil)
	return created, nil
}

// UpdateMaterialRequest carries the mutable catalog fields; zero values
// are left untouched except BasePrice, which is applied when set.
type UpdateMaterialRequest struct {
	Name      string   `json:"name"`
	Unit      string   `json:"unit"`
	BasePrice *float64 `json:"base_price"`
	Supplier  string   `json:"supplier"`
}

func (s *MaterialService) Update(ctx context.Context, actor Actor, id string, req *UpdateMaterialRequest) (*entity.Material, error) {
	if req.Name != "" || req.Unit != "" {
		current, err := s.materials.Get(ctx, actor.ID, id)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, store.ErrNotFound
		}
		name, unit := current.Name, current.Unit
		if req.Name != "" {
			name = req.Name
		}
		if req.Unit != "" {
			unit = req.Unit
		}
		dup, err := s.nameExists(ctx, actor.ID, current.Type, name, unit, id)
		if err != nil {
			return nil, err
		}
		if dup {
			return nil, ErrDuplicateMaterial
		}
	}

	return store.Await(s.materials.Update(ctx, actor.ID, id, func(m *entity.Material) error {
		if req.Name != "" {
			m.Name = strings.TrimSpace(req.Name)
		}
		if req.Unit != "" {
			m.Unit = req.Unit
		}
		if req.BasePrice != nil {
			m.BasePrice = *req.BasePrice
		}
		if req.Supplier != "" {
			m.Supplier = req.Supplier
		}
		return nil
	}))
}

// Get returns the material, or nil when it does not exist.
func (s *MaterialService) Get(ctx context.Context, actor Actor, id string) (*entity.Material, error) {
	return s.materials.Get(ctx, actor.ID, id)
}

// List returns the owner's catalog, optionally filtered to one type.
func (s *MaterialService) List(ctx context.Context, actor Actor, materialType string) ([]entity.Material, error) {
	all, err := s.materials.List(ctx, actor.ID, store.ListOptions{OrderBy: "name ASC"})
	if err != nil {
		return nil, err
	}
	if materialType == "" {
		return all, nil
	}
	if _, ok := materialKinds[materialType]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMaterialType, materialType)
	}
	filtered := all[:0]
	for _, m := range all {
		if m.Type == materialType {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

// Search filters the owner's catalog by name or supplier.
func (s *MaterialService) Search(ctx context.Context, actor Actor, term string) ([]entity.Material, error) {
	return s.materials.Search(ctx, actor.ID, term, "name", "supplier")
}

// AddQuote appends a supplier quote, replacing an existing quote from
// the same supplier.
func (s *MaterialService) AddQuote(ctx context.Context, actor Actor, id string, quote entity.SupplierQuote) (*entity.Material, error) {
	return store.Await(s.materials.Update(ctx, actor.ID, id, func(m *entity.Material) error {
		for i := range m.Quotes {
			if m.Quotes[i].Supplier == quote.Supplier {
				m.Quotes[i].Price = quote.Price
				return nil
			}
		}
		m.Quotes = append(m.Quotes, quote)
		return nil
	}))
}

// MoveToTrash soft-deletes a material and snapshots it for the trash
// listing.
func (s *MaterialService) MoveToTrash(ctx context.Context, actor Actor, id string) error {
	deleted, err := store.Await(s.materials.Delete(ctx, actor.ID, id))
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
		SourceTable: s.materials.Collection(),
		SourceID:    deleted.ID,
		Payload:     entity.JSONB{"name": deleted.Name, "type": deleted.Type},
		DeletedBy:   actor.ID,
		CreatedAt:   time.Now(),
	}
	if err := s.trash.Create(ctx, rec); err != nil {
		s.log.Warn("trash snapshot failed", zap.String("material", id), zap.Error(err))
	}

	s.activity.Record(ctx, actor.ID, actor.CompanyID, "material_deleted",
		fmt.Sprintf("moved %s to trash", deleted.Name), nil)
	return nil
}

// MoveManyToTrash soft-deletes several materials in one atomic batch
// and snapshots each for the trash listing. A missing or foreign ID
// aborts the whole batch with nothing written.
func (s *MaterialService) MoveManyToTrash(ctx context.Context, actor Actor, ids []string) error {
	mats := make([]*entity.Material, 0, len(ids))
	ops := make([]store.Operation[entity.Material, *entity.Material], 0, len(ids))
	for _, id := range ids {
		mat, err := s.materials.Get(ctx, actor.ID, id)
		if err != nil {
			return err
		}
		if mat == nil {
			return fmt.Errorf("material %s: %w", id, store.ErrNotFound)
		}
		mats = append(mats, mat)
		ops = append(ops, store.Operation[entity.Material, *entity.Material]{Kind: store.OpDelete, ID: id})
	}

	if err := s.materials.Batch(ctx, actor.ID, ops); err != nil {
		return err
	}

	for _, mat := range mats {
		rec := &entity.TrashRecord{
			ID:          ident.MustNew(ident.Trash),
			OwnerID:     actor.ID,
			SourceTable: s.materials.Collection(),
			SourceID:    mat.ID,
			Payload:     entity.JSONB{"name": mat.Name, "type": mat.Type},
			DeletedBy:   actor.ID,
			CreatedAt:   time.Now(),
		}
		if err := s.trash.Create(ctx, rec); err != nil {
			s.log.Warn("trash snapshot failed", zap.String("material", mat.ID), zap.Error(err))
		}
	}

	s.activity.Record(ctx, actor.ID, actor.CompanyID, "material_bulk_deleted",
		fmt.Sprintf("moved %d materials to trash", len(mats)), nil)
	return nil
}

// RestoreFromTrash brings a soft-deleted material back.
func (s *MaterialService) RestoreFromTrash(ctx context.Context, actor Actor, trashID string) (*entity.Material, error) {
	rec, err := s.trash.FindByID(ctx, actor.ID, trashID)
	if err != nil {
		return nil, err
	}
	restored, err := s.materials.Restore(ctx, actor.ID, rec.SourceID)
	if err != nil {
		return nil, err
	}
	if err := s.trash.Delete(ctx, trashID); err != nil {
		s.log.Warn("drop trash record failed", zap.String("trash", trashID), zap.Error(err))
	}
	return restored, nil
}

// Purge permanently deletes a trashed material.
func (s *MaterialService) Purge(ctx context.Context, actor Actor, trashID string) error {
	rec, err := s.trash.FindByID(ctx, actor.ID, trashID)
	if err != nil {
		return err
	}
	if err := s.materials.Purge(ctx, actor.ID, rec.SourceID); err != nil {
		return err
	}
	return s.trash.Delete(ctx, trashID)
}

// CurrentPrice resolves a material's effective catalog price and its
// cheapest supplier. The type tag must match the stored entry so a
// line item cannot silently cross catalogs.
func (s *MaterialService) CurrentPrice(ctx context.Context, owner, materialType, materialID string) (float64, string, error) {
	mat, err := s.materials.Get(ctx, owner, materialID)
	if err != nil {
		return 0, "", err
	}
	if mat == nil {
		return 0, "", fmt.Errorf("material %s: %w", materialID, store.ErrNotFound)
	}
	if materialType != "" && mat.Type != materialType {
		return 0, "", fmt.Errorf("material %s is %s, not %s: %w",
			materialID, mat.Type, materialType, ErrUnknownMaterialType)
	}
	return mat.EffectivePrice(), mat.CheapestSupplier(), nil
}

// nameExists reports whether another live material of the same type
// already uses the (name, unit) pair, case-insensitively.
func (s *MaterialService) nameExists(ctx context.Context, owner, materialType, name, unit, excludeID string) (bool, error) {
	all, err := s.materials.List(ctx, owner, store.ListOptions{})
	if err != nil {
		return false, err
	}
	name = strings.ToLower(strings.TrimSpace(name))
	unit = strings.ToLower(strings.TrimSpace(unit))
	for _, m := range all {
		if m.ID == excludeID || m.Type != materialType {
			continue
		}
		if strings.ToLower(strings.TrimSpace(m.Name)) == name &&
			strings.ToLower(strings.TrimSpace(m.Unit)) == unit {
			return true, nil
		}
	}
	return false, nil
}
