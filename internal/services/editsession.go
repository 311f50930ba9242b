package services

import (
	"context"
	"sync"
	"time"

	"github.com/lessonforge/lessonforge-backend/internal/ledger"
	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

const (
	DefaultDebounceInterval = 2 * time.Second
	DefaultSessionPageSize  = 10
)

type EditSessionOptions struct {
	DebounceInterval time.Duration
	PageSize         int
	Title            string
	Category         string
	ContentType      string
	Attribution      Attribution
	OnRestore        func(v *types.DocumentVersion)
}

func (o EditSessionOptions) withDefaults() EditSessionOptions {
	if o.DebounceInterval <= 0 {
		o.DebounceInterval = DefaultDebounceInterval
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultSessionPageSize
	}
	return o
}

// EditSession tracks one open document: it watches pushed content, debounces
// automatic saves through the gate, and keeps the in-memory version list the
// UI renders. Saves happen on the debounce timer's goroutine; a push that
// lands while a save is in flight re-arms the timer and is picked up by the
// next cycle, because the gate's cached hash only moves after a successful
// save.
type EditSession struct {
	log  *logger.Logger
	svc  VersionHistoryService
	gate *ledger.SaveGate

	documentID   string
	documentType string
	docKey       string
	opts         EditSessionOptions

	mu                sync.Mutex
	liveContent       string
	versions          []*types.DocumentVersion
	totalVersions     int64
	offset            int
	loading           bool
	lastError         string
	hasUnsavedChanges bool
	autoSavePending   bool
	timer             *time.Timer
	closed            bool
}

type SessionSnapshot struct {
	DocumentID        string                   `json:"document_id"`
	DocumentType      string                   `json:"document_type"`
	Versions          []*types.DocumentVersion `json:"versions"`
	TotalVersions     int64                    `json:"total_versions"`
	HasMoreVersions   bool                     `json:"has_more_versions"`
	Loading           bool                     `json:"loading"`
	Error             string                   `json:"error,omitempty"`
	HasUnsavedChanges bool                     `json:"has_unsaved_changes"`
	AutoSavePending   bool                     `json:"auto_save_pending"`
}

func NewEditSession(
	baseLog *logger.Logger,
	svc VersionHistoryService,
	gate *ledger.SaveGate,
	documentType, documentID, initialContent string,
	opts EditSessionOptions,
) *EditSession {
	opts = opts.withDefaults()
	docKey := types.DocKey(documentType, documentID)
	s := &EditSession{
		log:          baseLog.With("component", "EditSession", "docKey", docKey),
		svc:          svc,
		gate:         gate,
		documentID:   documentID,
		documentType: documentType,
		docKey:       docKey,
		opts:         opts,
		liveContent:  initialContent,
	}
	// Baseline the gate with the opening content so the first edit is
	// compared against something known instead of always saving.
	gate.Seed(docKey, ledger.Fingerprint(initialContent))
	go s.Refresh(context.Background())
	return s
}

// PushContent feeds the latest editor content into the session. A change
// relative to the last saved hash (re)arms the trailing-edge debounce timer;
// only the content present once pushes stop for the full window gets saved.
func (s *EditSession) PushContent(content string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.liveContent = content
	s.mu.Unlock()

	hash := ledger.Fingerprint(content)
	if last, ok := s.gate.LastHash(s.docKey); ok && last == hash {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.hasUnsavedChanges = true
	s.autoSavePending = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.opts.DebounceInterval, s.fireAutoSave)
}

func (s *EditSession) fireAutoSave() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	content := s.liveContent
	s.timer = nil
	s.mu.Unlock()

	res := s.svc.SaveVersion(context.Background(), s.saveInput(content, types.ChangeTypeAuto, "", false))
	s.applySaveResult(res)
}

// SaveManualVersion checkpoints the current content immediately, bypassing
// the debounce timer.
func (s *EditSession) SaveManualVersion(ctx context.Context, description string) SaveVersionResult {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SaveVersionResult{Success: false, Error: "session closed"}
	}
	content := s.liveContent
	s.mu.Unlock()

	res := s.svc.SaveVersion(ctx, s.saveInput(content, types.ChangeTypeManual, description, false))
	s.applySaveResult(res)
	return res
}

// Restore writes the target version's content back as a brand-new version.
func (s *EditSession) Restore(ctx context.Context, versionID string) SaveVersionResult {
	res := s.svc.RestoreVersion(ctx, versionID, s.opts.Attribution)
	s.applySaveResult(res)
	if res.Success && res.Version != nil {
		s.mu.Lock()
		s.liveContent = res.Version.Content
		s.mu.Unlock()
		if s.opts.OnRestore != nil {
			s.opts.OnRestore(res.Version)
		}
	}
	return res
}

func (s *EditSession) applySaveResult(res SaveVersionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSavePending = false
	if !res.Success {
		s.lastError = res.Error
		return
	}
	s.lastError = res.Error
	s.hasUnsavedChanges = false
	if res.Version != nil {
		s.versions = append([]*types.DocumentVersion{res.Version}, s.versions...)
		s.totalVersions++
	}
}

// Refresh reloads the first history page and replaces the in-memory list.
func (s *EditSession) Refresh(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.loading = true
	pageSize := s.opts.PageSize
	s.mu.Unlock()

	res := s.svc.GetVersionHistory(ctx, HistoryQuery{
		DocumentID:   s.documentID,
		DocumentType: s.documentType,
		Limit:        pageSize,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	s.offset = 0
	if res.Error != "" {
		s.lastError = res.Error
	}
	s.versions = res.Versions
	s.totalVersions = res.Total
}

// LoadMore appends the next history page.
func (s *EditSession) LoadMore(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.loading {
		s.mu.Unlock()
		return
	}
	s.loading = true
	nextOffset := s.offset + s.opts.PageSize
	pageSize := s.opts.PageSize
	s.mu.Unlock()

	res := s.svc.GetVersionHistory(ctx, HistoryQuery{
		DocumentID:   s.documentID,
		DocumentType: s.documentType,
		Limit:        pageSize,
		Offset:       nextOffset,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if res.Error != "" {
		s.lastError = res.Error
	}
	s.offset = nextOffset
	s.versions = append(s.versions, res.Versions...)
	s.totalVersions = res.Total
}

// Close cancels any pending auto-save and clears the gate entry so a later
// open of the same document starts clean.
func (s *EditSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.gate.Forget(s.docKey)
}

func (s *EditSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := make([]*types.DocumentVersion, len(s.versions))
	copy(versions, s.versions)
	return SessionSnapshot{
		DocumentID:        s.documentID,
		DocumentType:      s.documentType,
		Versions:          versions,
		TotalVersions:     s.totalVersions,
		HasMoreVersions:   int64(len(versions)) < s.totalVersions,
		Loading:           s.loading,
		Error:             s.lastError,
		HasUnsavedChanges: s.hasUnsavedChanges,
		AutoSavePending:   s.autoSavePending,
	}
}

func (s *EditSession) saveInput(content string, changeType types.ChangeType, description string, force bool) SaveVersionInput {
	return SaveVersionInput{
		DocumentID:        s.documentID,
		DocumentType:      s.documentType,
		Category:          s.opts.Category,
		Title:             s.opts.Title,
		Content:           content,
		ContentType:       s.opts.ContentType,
		Attribution:       s.opts.Attribution,
		ChangeType:        changeType,
		ChangeDescription: description,
		Force:             force,
	}
}

// SessionManager owns the live edit sessions, keyed by docKey. Two editors
// opening the same document share one session, which is what keeps them from
// double auto-saving the same content.
type SessionManager struct {
	log      *logger.Logger
	svc      VersionHistoryService
	gate     *ledger.SaveGate
	defaults EditSessionOptions

	mu       sync.Mutex
	sessions map[string]*EditSession
}

func NewSessionManager(baseLog *logger.Logger, svc VersionHistoryService, gate *ledger.SaveGate, defaults EditSessionOptions) *SessionManager {
	return &SessionManager{
		log:      baseLog.With("service", "SessionManager"),
		svc:      svc,
		gate:     gate,
		defaults: defaults.withDefaults(),
		sessions: make(map[string]*EditSession),
	}
}

// Open returns the existing session for the document or creates one.
func (m *SessionManager) Open(documentType, documentID, initialContent string, opts EditSessionOptions) *EditSession {
	key := types.DocKey(documentType, documentID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[key]; ok {
		return existing
	}

	merged := m.defaults
	if opts.DebounceInterval > 0 {
		merged.DebounceInterval = opts.DebounceInterval
	}
	if opts.PageSize > 0 {
		merged.PageSize = opts.PageSize
	}
	if opts.Title != "" {
		merged.Title = opts.Title
	}
	if opts.Category != "" {
		merged.Category = opts.Category
	}
	if opts.ContentType != "" {
		merged.ContentType = opts.ContentType
	}
	if opts.Attribution != (Attribution{}) {
		merged.Attribution = opts.Attribution
	}
	if opts.OnRestore != nil {
		merged.OnRestore = opts.OnRestore
	}

	session := NewEditSession(m.log, m.svc, m.gate, documentType, documentID, initialContent, merged)
	m.sessions[key] = session
	m.log.Debug("Edit session opened", "docKey", key)
	return session
}

func (m *SessionManager) Get(documentType, documentID string) (*EditSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[types.DocKey(documentType, documentID)]
	return s, ok
}

// Close tears the session down and forgets it. Reports whether one existed.
func (m *SessionManager) Close(documentType, documentID string) bool {
	key := types.DocKey(documentType, documentID)
	m.mu.Lock()
	session, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if !ok {
		return false
	}
	session.Close()
	m.log.Debug("Edit session closed", "docKey", key)
	return true
}

func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*EditSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*EditSession)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
