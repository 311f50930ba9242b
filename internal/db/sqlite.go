package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/utils"
)

// SqliteService opens the embedded database backing the local version
// fallback. It is intentionally independent from Postgres: it must keep
// working when the remote store is the thing that failed.
type SqliteService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSqliteService(log *logger.Logger) (*SqliteService, error) {
	serviceLog := log.With("service", "SqliteService")

	path := utils.GetEnv("LOCAL_STORE_PATH", "lessonforge_local.db", log)

	log.Info("Opening local sqlite store...", "path", path)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		log.Error("Failed to open local sqlite store", "error", err)
		return nil, fmt.Errorf("Failed to open local sqlite store: %w", err)
	}

	return &SqliteService{db: db, log: serviceLog}, nil
}

func (s *SqliteService) DB() *gorm.DB {
	return s.db
}
