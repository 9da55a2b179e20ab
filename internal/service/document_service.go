package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/awraqsoft/munaqasat/internal/activity"
	"github.com/awraqsoft/munaqasat/internal/ident"
	"github.com/awraqsoft/munaqasat/internal/model/entity"
	"github.com/awraqsoft/munaqasat/internal/repository"
	"github.com/awraqsoft/munaqasat/internal/store"
)

// ErrStorageUnavailable is returned when object storage is not
// configured and an upload or download is requested.
var ErrStorageUnavailable = errors.New("object storage not configured")

// DocumentService manages uploaded file metadata and the object
// storage payloads behind it.
type DocumentService struct {
	documents   *DocumentStore
	tenders     *TenderStore
	trash       *repository.TrashRepository
	minioClient *minio.Client
	bucket      string
	activity    *activity.Logger
	log         *zap.Logger
}

func NewDocumentService(
	documents *DocumentStore,
	tenders *TenderStore,
	trash *repository.TrashRepository,
	minioClient *minio.Client,
	bucket string,
	activityLog *activity.Logger,
	log *zap.Logger,
) *DocumentService {
	return &DocumentService{
		documents:   documents,
		tenders:     tenders,
		trash:       trash,
		minioClient: minioClient,
		bucket:      bucket,
		activity:    activityLog,
		log:         log.Named("document"),
	}
}

// UploadRequest attaches the uploaded file to a related record.
type UploadRequest struct {
	RelatedType string
	RelatedID   string
}

// Upload stores the payload in object storage and records its metadata.
// When the upload relates to a tender, the tender's document reference
// list is updated in the same call.
func (s *DocumentService) Upload(ctx context.Context, actor Actor, req *UploadRequest, reader io.Reader, fileName string, fileSize int64, contentType string) (*entity.Document, error) {
	if s.minioClient == nil {
		return nil, ErrStorageUnavailable
	}

	objectPath := fmt.Sprintf("documents/%s/%s%s",
		time.Now().Format("2006/01/02"), uuid.New().String()[:8], filepath.Ext(fileName))
	_, err := s.minioClient.PutObject(ctx, s.bucket, objectPath, reader, fileSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}

	doc := &entity.Document{
		FileName:    fileName,
		FileSize:    fileSize,
		ContentType: contentType,
		ObjectPath:  objectPath,
		RelatedType: req.RelatedType,
		RelatedID:   req.RelatedID,
	}
	created, err := store.Await(s.documents.Create(ctx, actor.ID, doc))
	if err != nil {
		return nil, err
	}

	if req.RelatedType == "tender" && req.RelatedID != "" {
		_, err := store.Await(s.tenders.Update(ctx, actor.ID, req.RelatedID, func(t *entity.Tender) error {
			t.Documents = append(t.Documents, entity.DocumentRef{
				DocumentID: created.ID,
				FileName:   fileName,
			})
			return nil
		}))
		if err != nil {
			s.log.Warn("attach document reference failed",
				zap.String("tender", req.RelatedID), zap.Error(err))
		}
	}

	s.activity.Record(ctx, actor.ID, actor.CompanyID, "document_uploaded",
		fmt.Sprintf("uploaded %s", fileName), nil)
	return created, nil
}

// Get returns the document metadata, or nil when it does not exist.
func (s *DocumentService) Get(ctx context.Context, actor Actor, id string) (*entity.Document, error) {
	return s.documents.Get(ctx, actor.ID, id)
}

// List returns the owner's documents, optionally filtered by related
// record.
func (s *DocumentService) List(ctx context.Context, actor Actor, relatedType, relatedID string) ([]entity.Document, error) {
	all, err := s.documents.List(ctx, actor.ID, store.ListOptions{OrderBy: "created_at DESC"})
	if err != nil {
		return nil, err
	}
	if relatedType == "" && relatedID == "" {
		return all, nil
	}
	filtered := all[:0]
	for _, d := range all {
		if relatedType != "" && d.RelatedType != relatedType {
			continue
		}
		if relatedID != "" && d.RelatedID != relatedID {
			continue
		}
		filtered = append(filtered, d)
	}
	return filtered, nil
}

// Download streams the payload from object storage. The caller must
// close the reader.
func (s *DocumentService) Download(ctx context.Context, actor Actor, id string) (io.ReadCloser, *entity.Document, error) {
	if s.minioClient == nil {
		return nil, nil, ErrStorageUnavailable
	}
	doc, err := s.documents.Get(ctx, actor.ID, id)
	if err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, store.ErrNotFound
	}
	object, err := s.minioClient.GetObject(ctx, s.bucket, doc.ObjectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("fetch object: %w", err)
	}
	return object, doc, nil
}

// MoveToTrash soft-deletes the metadata; the object storage payload
// stays until a hard delete.
func (s *DocumentService) MoveToTrash(ctx context.Context, actor Actor, id string) error {
	deleted, err := store.Await(s.documents.Delete(ctx, actor.ID, id))
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
		SourceTable: s.documents.Collection(),
		SourceID:    deleted.ID,
		Payload:     entity.JSONB{"file_name": deleted.FileName, "object_path": deleted.ObjectPath},
		DeletedBy:   actor.ID,
		CreatedAt:   time.Now(),
	}
	if err := s.trash.Create(ctx, rec); err != nil {
		s.log.Warn("trash snapshot failed", zap.String("document", id), zap.Error(err))
	}

	s.activity.Record(ctx, actor.ID, actor.CompanyID, "document_deleted",
		fmt.Sprintf("moved %s to trash", deleted.FileName), nil)
	return nil
}

// RestoreFromTrash brings a soft-deleted document back.
func (s *DocumentService) RestoreFromTrash(ctx context.Context, actor Actor, trashID string) (*entity.Document, error) {
	rec, err := s.trash.FindByID(ctx, actor.ID, trashID)
	if err != nil {
		return nil, err
	}
	restored, err := s.documents.Restore(ctx, actor.ID, rec.SourceID)
	if err != nil {
		return nil, err
	}
	if err := s.trash.Delete(ctx, trashID); err != nil {
		s.log.Warn("drop trash record failed", zap.String("trash", trashID), zap.Error(err))
	}
	return restored, nil
}

// Purge permanently removes a trashed document and its object storage
// payload.
func (s *DocumentService) Purge(ctx context.Context, actor Actor, trashID string) error {
	rec, err := s.trash.FindByID(ctx, actor.ID, trashID)
	if err != nil {
		return err
	}

	if s.minioClient != nil {
		if path, ok := rec.Payload["object_path"].(string); ok && path != "" {
			if err := s.minioClient.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
				s.log.Warn("remove object failed", zap.String("path", path), zap.Error(err))
			}
		}
	}
	if err := s.documents.Purge(ctx, actor.ID, rec.SourceID); err != nil {
		return err
	}
	return s.trash.Delete(ctx, trashID)
}
