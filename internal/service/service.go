// Package service wires the domain operations on top of the generic
// store adapter, the pending store, the reconciliation engine and the
// activity logger. Services are constructed objects with explicit
// lifecycle, passed down through the handlers; nothing self-initializes
// from global state.
package service

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/awraqsoft/munaqasat/internal/activity"
	"github.com/awraqsoft/munaqasat/internal/config"
	"github.com/awraqsoft/munaqasat/internal/ident"
	"github.com/awraqsoft/munaqasat/internal/model/entity"
	"github.com/awraqsoft/munaqasat/internal/pending"
	"github.com/awraqsoft/munaqasat/internal/recon"
	"github.com/awraqsoft/munaqasat/internal/repository"
	"github.com/awraqsoft/munaqasat/internal/sse"
	"github.com/awraqsoft/munaqasat/internal/store"
)

// Store type aliases; the generic instantiations are a mouthful.
type (
	TenderStore   = store.Store[entity.Tender, *entity.Tender]
	MaterialStore = store.Store[entity.Material, *entity.Material]
	DocumentStore = store.Store[entity.Document, *entity.Document]
)

// Services is the service collection.
type Services struct {
	Auth     *AuthService
	Tender   *TenderService
	Material *MaterialService
	Document *DocumentService
	Activity *activity.Logger
	Pending  *pending.Store
	Hub      *sse.Hub

	engine *recon.Engine
}

// NewServices builds the full service graph. minioClient may be nil
// (uploads are then rejected); rdb is required.
func NewServices(db *gorm.DB, rdb *redis.Client, minioClient *minio.Client, repos *repository.Repositories, cfg *config.Config, log *zap.Logger) *Services {
	hub := sse.NewHub(log)
	cache := store.NewCache(rdb, cfg.Cache.SnapshotTTL, log)
	pendingStore := pending.New(rdb, cfg.Cache.PendingTTL, log)

	tenders := store.New[entity.Tender, *entity.Tender](db, cache, log, "tenders", ident.Tender)
	materials := store.New[entity.Material, *entity.Material](db, cache, log, "materials", ident.RawMaterial)
	documents := store.New[entity.Document, *entity.Document](db, cache, log, "documents", ident.Document)

	activityLog := activity.NewLogger(repos.Activity, hub, log, activity.Options{
		MaxEvents:     cfg.Activity.MaxEvents,
		PruneInterval: cfg.Activity.PruneInterval,
	})

	materialSvc := NewMaterialService(materials, repos.Trash, activityLog, log)
	tenderSvc := NewTenderService(tenders, repos.Tender, repos.Trash, pendingStore, materialSvc, activityLog, hub, log)

	engine := recon.NewEngine(pendingStore, tenderSvc, materialSvc, hub, log, recon.Options{
		DebounceDelay:  cfg.Recon.DebounceDelay,
		LoadCooldown:   cfg.Recon.LoadCooldown,
		DeleteCooldown: cfg.Recon.DeleteCooldown,
	})
	tenderSvc.engine = engine

	documentSvc := NewDocumentService(documents, tenders, repos.Trash, minioClient, cfg.MinIO.Bucket, activityLog, log)
	authSvc := NewAuthService(repos.User, rdb, cache, pendingStore, cfg, log)
	authSvc.OnSignIn(func(ownerID string) {
		// Warm the read-through snapshots so first reads after sign-in
		// can come from cache.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		tenders.WarmSnapshot(ctx, ownerID)
		materials.WarmSnapshot(ctx, ownerID)
		documents.WarmSnapshot(ctx, ownerID)
	})

	return &Services{
		Auth:     authSvc,
		Tender:   tenderSvc,
		Material: materialSvc,
		Document: documentSvc,
		Activity: activityLog,
		Pending:  pendingStore,
		Hub:      hub,
		engine:   engine,
	}
}

// Close releases background resources (auto-save timers).
func (s *Services) Close() {
	if s.engine != nil {
		s.engine.Close()
	}
}
