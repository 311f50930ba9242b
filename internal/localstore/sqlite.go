package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// localBucket is one row per (documentID, documentType): a JSON blob with
// the retained versions, newest first.
type localBucket struct {
	DocumentID   string         `gorm:"column:document_id;primaryKey"`
	DocumentType string         `gorm:"column:document_type;primaryKey"`
	Versions     datatypes.JSON `gorm:"column:versions"`
	LastUpdated  time.Time      `gorm:"column:last_updated;not null"`
}

func (localBucket) TableName() string { return "local_version_buckets" }

// SqliteStore persists fallback buckets to the embedded sqlite database so
// locally captured versions survive a process restart.
type SqliteStore struct {
	db          *gorm.DB
	log         *logger.Logger
	maxVersions int
}

func NewSqliteStore(db *gorm.DB, maxVersions int, baseLog *logger.Logger) (*SqliteStore, error) {
	if maxVersions <= 0 {
		maxVersions = DefaultMaxVersions
	}
	if err := db.AutoMigrate(&localBucket{}); err != nil {
		return nil, fmt.Errorf("migrate local_version_buckets: %w", err)
	}
	return &SqliteStore{
		db:          db,
		log:         baseLog.With("component", "SqliteLocalStore"),
		maxVersions: maxVersions,
	}, nil
}

func (s *SqliteStore) Append(ctx context.Context, v *types.DocumentVersion) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row localBucket
		versions := []*types.DocumentVersion{}
		err := tx.Where("document_id = ? AND document_type = ?", v.DocumentID, v.DocumentType).
			Take(&row).Error
		switch {
		case err == nil:
			if unmarshalErr := json.Unmarshal(row.Versions, &versions); unmarshalErr != nil {
				s.log.Warn("Corrupt local bucket, resetting", "document_id", v.DocumentID, "error", unmarshalErr)
				versions = versions[:0]
			}
		case err == gorm.ErrRecordNotFound:
			// new bucket
		default:
			return err
		}

		versions = insertCapped(versions, v, s.maxVersions)
		raw, err := json.Marshal(versions)
		if err != nil {
			return fmt.Errorf("marshal local bucket: %w", err)
		}
		row = localBucket{
			DocumentID:   v.DocumentID,
			DocumentType: v.DocumentType,
			Versions:     raw,
			LastUpdated:  time.Now(),
		}
		return tx.Save(&row).Error
	})
}

func (s *SqliteStore) List(ctx context.Context, documentID, documentType string) ([]*types.DocumentVersion, error) {
	var row localBucket
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND document_type = ?", documentID, documentType).
		Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var versions []*types.DocumentVersion
	if err := json.Unmarshal(row.Versions, &versions); err != nil {
		return nil, fmt.Errorf("decode local bucket: %w", err)
	}
	return versions, nil
}

func (s *SqliteStore) FindByID(ctx context.Context, id string) (*types.DocumentVersion, error) {
	var rows []localBucket
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		var versions []*types.DocumentVersion
		if err := json.Unmarshal(row.Versions, &versions); err != nil {
			s.log.Warn("Skipping corrupt local bucket", "document_id", row.DocumentID, "error", err)
			continue
		}
		for _, v := range versions {
			if v.ID == id {
				return v, nil
			}
		}
	}
	return nil, ErrNotFound
}
