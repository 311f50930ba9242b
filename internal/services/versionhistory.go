package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/lessonforge/lessonforge-backend/internal/ledger"
	"github.com/lessonforge/lessonforge-backend/internal/localstore"
	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/repos"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

var ErrVersionNotFound = errors.New("version not found")

type Attribution struct {
	CreatedBy     string `json:"created_by,omitempty"`
	CreatedByType string `json:"created_by_type,omitempty"`
	CreatedByName string `json:"created_by_name,omitempty"`
}

type SaveVersionInput struct {
	DocumentID        string
	DocumentType      string
	Category          string
	Title             string
	Content           string
	ContentType       string
	Attribution       Attribution
	ChangeType        types.ChangeType
	ChangeDescription string
	Metadata          map[string]any
	Force             bool
}

// SaveVersionResult is result-shaped on purpose: remote trouble degrades to
// the local store and still reports success, because either way the edit is
// not lost. The version's ID prefix (and Origin) is the only provenance
// signal.
type SaveVersionResult struct {
	Success bool                   `json:"success"`
	Skipped bool                   `json:"skipped,omitempty"`
	Version *types.DocumentVersion `json:"version,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

type HistoryQuery struct {
	DocumentID   string
	DocumentType string
	Limit        int
	Offset       int
}

type HistoryResult struct {
	Versions []*types.DocumentVersion `json:"versions"`
	Total    int64                    `json:"total"`
	Error    string                   `json:"error,omitempty"`
}

type VersionHistoryService interface {
	SaveVersion(ctx context.Context, input SaveVersionInput) SaveVersionResult
	GetVersionHistory(ctx context.Context, q HistoryQuery) HistoryResult
	GetVersion(ctx context.Context, id string) (*types.DocumentVersion, error)
	RestoreVersion(ctx context.Context, id string, attribution Attribution) SaveVersionResult
}

type VersionHistoryConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	DefaultPageSize int
}

func (c VersionHistoryConfig) withDefaults() VersionHistoryConfig {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = 20
	}
	return c
}

type versionHistoryService struct {
	log      *logger.Logger
	repo     repos.DocumentVersionRepo
	local    localstore.Store
	gate     *ledger.SaveGate
	state    *ledger.SessionState
	notifier VersionNotifier
	cfg      VersionHistoryConfig
	now      func() time.Time

	fallbackMu   sync.Mutex
	lastFallback int64
}

func NewVersionHistoryService(
	log *logger.Logger,
	repo repos.DocumentVersionRepo,
	local localstore.Store,
	gate *ledger.SaveGate,
	state *ledger.SessionState,
	notifier VersionNotifier,
	cfg VersionHistoryConfig,
) VersionHistoryService {
	return &versionHistoryService{
		log:      log.With("service", "VersionHistoryService"),
		repo:     repo,
		local:    local,
		gate:     gate,
		state:    state,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

func (s *versionHistoryService) SaveVersion(ctx context.Context, input SaveVersionInput) SaveVersionResult {
	// A controller may exist before its document is fully resolved; missing
	// keys are a silent no-op rather than an error.
	if strings.TrimSpace(input.DocumentID) == "" || strings.TrimSpace(input.DocumentType) == "" {
		return SaveVersionResult{Success: true, Skipped: true}
	}

	changeType := input.ChangeType
	if changeType == "" {
		changeType = types.ChangeTypeAuto
	}
	docKey := types.DocKey(input.DocumentType, input.DocumentID)

	if changeType == types.ChangeTypeAuto && !input.Force {
		if !s.gate.ShouldSave(docKey, input.Content, ledger.SaveOptions{ChangeType: changeType}) {
			return SaveVersionResult{Success: true, Skipped: true}
		}
	}

	contentHash := ledger.Fingerprint(input.Content)

	if s.repo == nil || s.state.RemoteDown() {
		return s.saveLocal(ctx, input, changeType, contentHash, s.fallbackVersionNumber(), "")
	}

	versionNumber := s.nextVersionNumber(ctx, input.DocumentID, input.DocumentType)

	if changeType == types.ChangeTypeAuto && !input.Force {
		rctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
		existing, err := s.repo.FindByContentHash(rctx, nil, input.DocumentID, input.DocumentType, contentHash)
		cancel()
		if err != nil {
			// The duplicate check is best effort; a slow read must not block
			// the save.
			s.log.Warn("Duplicate check failed, continuing with save", "docKey", docKey, "error", err)
		} else if existing != nil {
			return SaveVersionResult{Success: true, Skipped: true}
		}
	}

	version := s.buildVersion(input, changeType, contentHash, versionNumber, uuid.NewString(), types.OriginRemote)

	wctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	created, err := s.repo.Create(wctx, nil, version)
	cancel()
	if err != nil {
		s.log.Warn("Remote insert failed, degrading to local store for this session", "docKey", docKey, "error", err)
		s.state.MarkRemoteDown()
		if s.notifier != nil {
			s.notifier.RemoteDown(ctx, input.DocumentID, input.DocumentType)
		}
		return s.saveLocal(ctx, input, changeType, contentHash, versionNumber, err.Error())
	}

	created.Origin = types.OriginOf(created.ID)
	s.gate.Record(docKey, contentHash)
	if s.notifier != nil {
		s.notifier.VersionSaved(ctx, created)
	}
	s.log.Debug("Version saved", "docKey", docKey, "version_number", created.VersionNumber, "change_type", changeType)
	return SaveVersionResult{Success: true, Version: created}
}

func (s *versionHistoryService) saveLocal(ctx context.Context, input SaveVersionInput, changeType types.ChangeType, contentHash string, versionNumber int64, remoteErr string) SaveVersionResult {
	docKey := types.DocKey(input.DocumentType, input.DocumentID)
	version := s.buildVersion(input, changeType, contentHash, versionNumber, types.LocalIDPrefix+uuid.NewString(), types.OriginLocal)

	if err := s.local.Append(ctx, version); err != nil {
		s.log.Error("Local fallback write failed", "docKey", docKey, "error", err)
		return SaveVersionResult{Success: false, Error: fmt.Sprintf("local fallback write failed: %v", err)}
	}

	s.gate.Record(docKey, contentHash)
	if s.notifier != nil {
		s.notifier.VersionSaved(ctx, version)
	}
	s.log.Debug("Version saved to local fallback", "docKey", docKey, "version_number", version.VersionNumber)
	return SaveVersionResult{Success: true, Version: version, Error: remoteErr}
}

// nextVersionNumber reads max+1 from the remote store; on failure it falls
// back to a millisecond timestamp, which exceeds any plausible sequential
// counter and so can never collide with one.
func (s *versionHistoryService) nextVersionNumber(ctx context.Context, documentID, documentType string) int64 {
	rctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()
	max, err := s.repo.MaxVersionNumber(rctx, nil, documentID, documentType)
	if err != nil {
		s.log.Warn("Max version lookup failed, using timestamp fallback", "document_id", documentID, "error", err)
		return s.fallbackVersionNumber()
	}
	return max + 1
}

// fallbackVersionNumber is timestamp based but guarded so two fallback saves
// in the same millisecond still get strictly increasing numbers.
func (s *versionHistoryService) fallbackVersionNumber() int64 {
	s.fallbackMu.Lock()
	defer s.fallbackMu.Unlock()
	n := s.now().UnixMilli()
	if n <= s.lastFallback {
		n = s.lastFallback + 1
	}
	s.lastFallback = n
	return n
}

func (s *versionHistoryService) buildVersion(input SaveVersionInput, changeType types.ChangeType, contentHash string, versionNumber int64, id string, origin types.VersionOrigin) *types.DocumentVersion {
	var metadata datatypes.JSON
	if len(input.Metadata) > 0 {
		if raw, err := json.Marshal(input.Metadata); err == nil {
			metadata = raw
		} else {
			s.log.Warn("Dropping unserializable metadata", "document_id", input.DocumentID, "error", err)
		}
	}
	return &types.DocumentVersion{
		ID:                id,
		DocumentID:        input.DocumentID,
		DocumentType:      input.DocumentType,
		Category:          input.Category,
		Title:             input.Title,
		Content:           input.Content,
		ContentType:       input.ContentType,
		VersionNumber:     versionNumber,
		ContentHash:       contentHash,
		ContentSize:       len(input.Content),
		CreatedBy:         input.Attribution.CreatedBy,
		CreatedByType:     input.Attribution.CreatedByType,
		CreatedByName:     input.Attribution.CreatedByName,
		CreatedAt:         s.now(),
		ChangeType:        changeType,
		ChangeDescription: input.ChangeDescription,
		Metadata:          metadata,
		Origin:            origin,
	}
}

func (s *versionHistoryService) GetVersionHistory(ctx context.Context, q HistoryQuery) HistoryResult {
	if strings.TrimSpace(q.DocumentID) == "" || strings.TrimSpace(q.DocumentType) == "" {
		return HistoryResult{Versions: []*types.DocumentVersion{}}
	}
	if q.Limit <= 0 {
		q.Limit = s.cfg.DefaultPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	if s.repo == nil || s.state.RemoteDown() {
		return s.localHistory(ctx, q, "")
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var (
		total int64
		page  []*types.DocumentVersion
	)
	g, gctx := errgroup.WithContext(rctx)
	g.Go(func() error {
		var err error
		total, err = s.repo.CountByDocument(gctx, nil, q.DocumentID, q.DocumentType)
		return err
	})
	g.Go(func() error {
		var err error
		page, err = s.repo.ListByDocument(gctx, nil, q.DocumentID, q.DocumentType, q.Limit, q.Offset)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Warn("Remote history fetch failed, degrading to local store for this session", "document_id", q.DocumentID, "error", err)
		s.state.MarkRemoteDown()
		if s.notifier != nil {
			s.notifier.RemoteDown(ctx, q.DocumentID, q.DocumentType)
		}
		return s.localHistory(ctx, q, err.Error())
	}

	for _, v := range page {
		v.Origin = types.OriginOf(v.ID)
	}

	locals, err := s.local.List(ctx, q.DocumentID, q.DocumentType)
	if err != nil {
		s.log.Warn("Local store read failed during merge", "document_id", q.DocumentID, "error", err)
		locals = nil
	}
	// Local-only versions were never synced remotely, so every one of them
	// adds to the total.
	merged := mergeVersionLists(page, locals)
	return HistoryResult{Versions: merged, Total: total + int64(len(locals))}
}

func (s *versionHistoryService) localHistory(ctx context.Context, q HistoryQuery, remoteErr string) HistoryResult {
	locals, err := s.local.List(ctx, q.DocumentID, q.DocumentType)
	if err != nil {
		return HistoryResult{Versions: []*types.DocumentVersion{}, Error: err.Error()}
	}
	total := int64(len(locals))
	start := q.Offset
	if start > len(locals) {
		start = len(locals)
	}
	end := start + q.Limit
	if end > len(locals) {
		end = len(locals)
	}
	return HistoryResult{Versions: locals[start:end], Total: total, Error: remoteErr}
}

// mergeVersionLists is a stable two-way merge of two lists already ordered
// by version number descending, deduplicated by ID.
func mergeVersionLists(remote, local []*types.DocumentVersion) []*types.DocumentVersion {
	merged := make([]*types.DocumentVersion, 0, len(remote)+len(local))
	seen := make(map[string]bool, len(remote)+len(local))
	i, j := 0, 0
	for i < len(remote) && j < len(local) {
		if remote[i].VersionNumber >= local[j].VersionNumber {
			if !seen[remote[i].ID] {
				seen[remote[i].ID] = true
				merged = append(merged, remote[i])
			}
			i++
		} else {
			if !seen[local[j].ID] {
				seen[local[j].ID] = true
				merged = append(merged, local[j])
			}
			j++
		}
	}
	for ; i < len(remote); i++ {
		if !seen[remote[i].ID] {
			seen[remote[i].ID] = true
			merged = append(merged, remote[i])
		}
	}
	for ; j < len(local); j++ {
		if !seen[local[j].ID] {
			seen[local[j].ID] = true
			merged = append(merged, local[j])
		}
	}
	return merged
}

func (s *versionHistoryService) GetVersion(ctx context.Context, id string) (*types.DocumentVersion, error) {
	if strings.HasPrefix(id, types.LocalIDPrefix) {
		v, err := s.local.FindByID(ctx, id)
		if err == localstore.ErrNotFound {
			return nil, ErrVersionNotFound
		}
		if err != nil {
			return nil, err
		}
		v.Origin = types.OriginLocal
		return v, nil
	}

	if s.repo == nil {
		return nil, fmt.Errorf("remote store unavailable")
	}
	rctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()
	v, err := s.repo.GetByID(rctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("version lookup failed: %w", err)
	}
	if v == nil {
		return nil, ErrVersionNotFound
	}
	v.Origin = types.OriginOf(v.ID)
	return v, nil
}

func (s *versionHistoryService) RestoreVersion(ctx context.Context, id string, attribution Attribution) SaveVersionResult {
	target, err := s.GetVersion(ctx, id)
	if err != nil {
		return SaveVersionResult{Success: false, Error: err.Error()}
	}

	return s.SaveVersion(ctx, SaveVersionInput{
		DocumentID:        target.DocumentID,
		DocumentType:      target.DocumentType,
		Category:          target.Category,
		Title:             target.Title,
		Content:           target.Content,
		ContentType:       target.ContentType,
		Attribution:       attribution,
		ChangeType:        types.ChangeTypeRestore,
		ChangeDescription: fmt.Sprintf("Restored from version %d", target.VersionNumber),
		Force:             true,
	})
}
