package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

type DocumentVersionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, version *types.DocumentVersion) (*types.DocumentVersion, error)
	MaxVersionNumber(ctx context.Context, tx *gorm.DB, documentID, documentType string) (int64, error)
	FindByContentHash(ctx context.Context, tx *gorm.DB, documentID, documentType, contentHash string) (*types.DocumentVersion, error)
	ListByDocument(ctx context.Context, tx *gorm.DB, documentID, documentType string, limit, offset int) ([]*types.DocumentVersion, error)
	CountByDocument(ctx context.Context, tx *gorm.DB, documentID, documentType string) (int64, error)
	GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.DocumentVersion, error)
}

type documentVersionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentVersionRepo(db *gorm.DB, baseLog *logger.Logger) DocumentVersionRepo {
	repoLog := baseLog.With("repo", "DocumentVersionRepo")
	return &documentVersionRepo{db: db, log: repoLog}
}

func (r *documentVersionRepo) Create(ctx context.Context, tx *gorm.DB, version *types.DocumentVersion) (*types.DocumentVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(version).Error; err != nil {
		return nil, err
	}
	return version, nil
}

func (r *documentVersionRepo) MaxVersionNumber(ctx context.Context, tx *gorm.DB, documentID, documentType string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var max *int64
	if err := transaction.WithContext(ctx).
		Model(&types.DocumentVersion{}).
		Where("document_id = ? AND document_type = ?", documentID, documentType).
		Select("MAX(version_number)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *documentVersionRepo) FindByContentHash(ctx context.Context, tx *gorm.DB, documentID, documentType, contentHash string) (*types.DocumentVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.DocumentVersion
	err := transaction.WithContext(ctx).
		Where("document_id = ? AND document_type = ? AND content_hash = ?", documentID, documentType, contentHash).
		Order("version_number DESC").
		First(&result).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *documentVersionRepo) ListByDocument(ctx context.Context, tx *gorm.DB, documentID, documentType string, limit, offset int) ([]*types.DocumentVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.DocumentVersion
	query := transaction.WithContext(ctx).
		Where("document_id = ? AND document_type = ?", documentID, documentType).
		Order("version_number DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentVersionRepo) CountByDocument(ctx context.Context, tx *gorm.DB, documentID, documentType string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.DocumentVersion{}).
		Where("document_id = ? AND document_type = ?", documentID, documentType).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *documentVersionRepo) GetByID(ctx context.Context, tx *gorm.DB, id string) (*types.DocumentVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.DocumentVersion
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Take(&result).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}
