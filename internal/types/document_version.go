package types

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ChangeType labels what triggered a version. It also drives save gating:
// auto saves are rate limited and deduplicated, manual/structural/restore
// saves always go through.
type ChangeType string

const (
	ChangeTypeAuto       ChangeType = "auto"
	ChangeTypeManual     ChangeType = "manual"
	ChangeTypeStructural ChangeType = "structural"
	ChangeTypeRestore    ChangeType = "restore"
)

// VersionOrigin tells whether a version row lives in the remote store or in
// the local fallback store. The durable signal is the ID prefix; Origin is
// the same fact as an explicit field so callers never have to inspect IDs.
type VersionOrigin string

const (
	OriginRemote VersionOrigin = "remote"
	OriginLocal  VersionOrigin = "local"
)

// LocalIDPrefix marks versions created while the remote store was down.
const LocalIDPrefix = "local-"

func OriginOf(id string) VersionOrigin {
	if strings.HasPrefix(id, LocalIDPrefix) {
		return OriginLocal
	}
	return OriginRemote
}

// DocumentVersion is an immutable snapshot of a document's content. Rows are
// only ever inserted; restore writes a new version instead of rewriting an
// old one. The single exception is local-store eviction at the bucket cap.
type DocumentVersion struct {
	ID                string         `gorm:"type:text;primaryKey" json:"id"`
	DocumentID        string         `gorm:"column:document_id;type:text;not null;index:idx_document_versions_key" json:"document_id"`
	DocumentType      string         `gorm:"column:document_type;type:text;not null;index:idx_document_versions_key" json:"document_type"`
	Category          string         `gorm:"column:category;type:text" json:"category,omitempty"`
	Title             string         `gorm:"column:title;type:text" json:"title"`
	Content           string         `gorm:"column:content;type:text;not null" json:"content"`
	ContentType       string         `gorm:"column:content_type;type:text" json:"content_type,omitempty"`
	VersionNumber     int64          `gorm:"column:version_number;not null;index:idx_document_versions_key" json:"version_number"`
	ContentHash       string         `gorm:"column:content_hash;type:text;not null;index" json:"content_hash"`
	ContentSize       int            `gorm:"column:content_size;not null;default:0" json:"content_size"`
	CreatedBy         string         `gorm:"column:created_by;type:text" json:"created_by,omitempty"`
	CreatedByType     string         `gorm:"column:created_by_type;type:text" json:"created_by_type,omitempty"`
	CreatedByName     string         `gorm:"column:created_by_name;type:text" json:"created_by_name,omitempty"`
	CreatedAt         time.Time      `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	ChangeType        ChangeType     `gorm:"column:change_type;type:text;not null;default:'auto'" json:"change_type"`
	ChangeDescription string         `gorm:"column:change_description;type:text" json:"change_description,omitempty"`
	Metadata          datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	Origin            VersionOrigin  `gorm:"-" json:"origin"`
}

func (DocumentVersion) TableName() string { return "document_versions" }

// DocKey is the compound key used for gate state, sessions and local buckets.
func DocKey(documentType, documentID string) string {
	return documentType + ":" + documentID
}
