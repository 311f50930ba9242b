package services

import (
	"context"
	"testing"
	"time"

	"github.com/lessonforge/lessonforge-backend/internal/ledger"
	"github.com/lessonforge/lessonforge-backend/internal/localstore"
	"github.com/lessonforge/lessonforge-backend/internal/logger"
	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// Session tests run against the real service with a fake remote repo and
// short real debounce windows.
func newSessionHarness(t *testing.T) (*SessionManager, *fakeVersionRepo) {
	t.Helper()
	state := ledger.NewSessionState()
	gate := ledger.NewSaveGate(state, 5*time.Second)
	repo := &fakeVersionRepo{}
	local := localstore.NewMemoryStore(20)
	svc := NewVersionHistoryService(logger.NewNop(), repo, local, gate, state, nil, VersionHistoryConfig{})
	mgr := NewSessionManager(logger.NewNop(), svc, gate, EditSessionOptions{
		DebounceInterval: 50 * time.Millisecond,
		Title:            "Test Lesson",
	})
	return mgr, repo
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDebounceTrailingEdgeSavesOnlyLastContent(t *testing.T) {
	mgr, repo := newSessionHarness(t)
	session := mgr.Open("lesson", "doc1", "initial", EditSessionOptions{
		DebounceInterval: 120 * time.Millisecond,
	})
	defer mgr.Close("lesson", "doc1")

	// Three pushes inside the window; only the last survives the debounce.
	session.PushContent("draft 1")
	time.Sleep(30 * time.Millisecond)
	session.PushContent("draft 2")
	time.Sleep(30 * time.Millisecond)
	session.PushContent("draft 3")

	waitFor(t, 2*time.Second, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.createCalls > 0
	})
	// Allow any spurious extra timer to fire.
	time.Sleep(200 * time.Millisecond)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.createCalls != 1 {
		t.Fatalf("want exactly one auto save, got %d", repo.createCalls)
	}
	if repo.rows[0].Content != "draft 3" {
		t.Fatalf("auto save must carry the last pushed content, got %q", repo.rows[0].Content)
	}
	if repo.rows[0].ChangeType != types.ChangeTypeAuto {
		t.Fatalf("debounced save change type: got %q", repo.rows[0].ChangeType)
	}
}

func TestPushMatchingLastSavedHashDoesNotArmTimer(t *testing.T) {
	mgr, repo := newSessionHarness(t)
	session := mgr.Open("lesson", "doc1", "initial", EditSessionOptions{})
	defer mgr.Close("lesson", "doc1")

	// Equal to the seeded baseline: no unsaved changes, no timer.
	session.PushContent("initial")
	snap := session.Snapshot()
	if snap.HasUnsavedChanges || snap.AutoSavePending {
		t.Fatalf("baseline push must not mark changes, got %+v", snap)
	}

	time.Sleep(150 * time.Millisecond)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.createCalls != 0 {
		t.Fatalf("baseline push must not save, got %d saves", repo.createCalls)
	}
}

func TestCloseCancelsPendingAutoSave(t *testing.T) {
	mgr, repo := newSessionHarness(t)
	session := mgr.Open("lesson", "doc1", "initial", EditSessionOptions{
		DebounceInterval: 100 * time.Millisecond,
	})

	session.PushContent("about to be abandoned")
	if !mgr.Close("lesson", "doc1") {
		t.Fatal("close must report the session existed")
	}

	time.Sleep(250 * time.Millisecond)
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.createCalls != 0 {
		t.Fatalf("teardown must cancel the pending auto save, got %d saves", repo.createCalls)
	}
	_ = session
}

func TestManualSaveBypassesDebounce(t *testing.T) {
	mgr, repo := newSessionHarness(t)
	session := mgr.Open("lesson", "doc1", "initial", EditSessionOptions{
		DebounceInterval: 10 * time.Second, // debounce would never fire in this test
	})
	defer mgr.Close("lesson", "doc1")

	session.PushContent("checkpoint me")
	res := session.SaveManualVersion(context.Background(), "checkpoint")
	if !res.Success || res.Version == nil {
		t.Fatalf("manual save: %+v", res)
	}
	if res.Version.ChangeType != types.ChangeTypeManual {
		t.Fatalf("manual change type: got %q", res.Version.ChangeType)
	}
	if res.Version.ChangeDescription != "checkpoint" {
		t.Fatalf("manual description: got %q", res.Version.ChangeDescription)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.createCalls != 1 {
		t.Fatalf("manual save must fire immediately, got %d saves", repo.createCalls)
	}
}

func TestOpenReturnsExistingSessionForSameDocument(t *testing.T) {
	mgr, _ := newSessionHarness(t)
	first := mgr.Open("lesson", "doc1", "initial", EditSessionOptions{})
	second := mgr.Open("lesson", "doc1", "other content", EditSessionOptions{})
	defer mgr.Close("lesson", "doc1")

	if first != second {
		t.Fatal("same docKey must share one session")
	}
	if other := mgr.Open("worksheet", "doc1", "initial", EditSessionOptions{}); other == first {
		t.Fatal("different documentType must get its own session")
	}
	mgr.Close("worksheet", "doc1")
}

func TestSessionEndToEndScenario(t *testing.T) {
	mgr, _ := newSessionHarness(t)
	session := mgr.Open("lesson", "doc1", "A", EditSessionOptions{
		DebounceInterval: 50 * time.Millisecond,
	})
	defer mgr.Close("lesson", "doc1")

	// Auto save after the debounce window.
	session.PushContent("AB")
	waitFor(t, 2*time.Second, func() bool {
		return session.Snapshot().TotalVersions >= 1
	})
	snap := session.Snapshot()
	v1 := snap.Versions[0]
	if v1.VersionNumber != 1 || v1.Content != "AB" || v1.ChangeType != types.ChangeTypeAuto {
		t.Fatalf("auto save: %+v", v1)
	}
	if snap.HasUnsavedChanges || snap.AutoSavePending {
		t.Fatalf("flags must clear after a successful auto save: %+v", snap)
	}

	// Manual checkpoint.
	session.PushContent("ABC")
	res := session.SaveManualVersion(context.Background(), "checkpoint")
	if !res.Success || res.Version.VersionNumber != 2 || res.Version.ChangeType != types.ChangeTypeManual {
		t.Fatalf("manual save: %+v", res)
	}
	if res.Version.ChangeDescription != "checkpoint" {
		t.Fatalf("manual description: got %q", res.Version.ChangeDescription)
	}

	// Restore the first version: new version, old content.
	restored := session.Restore(context.Background(), v1.ID)
	if !restored.Success || restored.Version == nil {
		t.Fatalf("restore: %+v", restored)
	}
	if restored.Version.VersionNumber != 3 || restored.Version.Content != "AB" {
		t.Fatalf("restore must create version 3 with content AB, got %+v", restored.Version)
	}
	if restored.Version.ChangeType != types.ChangeTypeRestore {
		t.Fatalf("restore change type: got %q", restored.Version.ChangeType)
	}

	session.Refresh(context.Background())
	snap = session.Snapshot()
	if snap.TotalVersions != 3 {
		t.Fatalf("want 3 versions, got %d", snap.TotalVersions)
	}
	for i, want := range []int64{3, 2, 1} {
		if snap.Versions[i].VersionNumber != want {
			t.Fatalf("history position %d: want %d, got %d", i, want, snap.Versions[i].VersionNumber)
		}
	}
	if snap.HasMoreVersions {
		t.Fatal("all versions loaded, HasMoreVersions must be false")
	}
}

func TestRestoreInvokesCallback(t *testing.T) {
	mgr, _ := newSessionHarness(t)
	var restoredContent string
	session := mgr.Open("lesson", "doc1", "A", EditSessionOptions{
		OnRestore: func(v *types.DocumentVersion) { restoredContent = v.Content },
	})
	defer mgr.Close("lesson", "doc1")

	session.PushContent("AB")
	res := session.SaveManualVersion(context.Background(), "seed")
	if !res.Success {
		t.Fatalf("seed save: %+v", res)
	}

	restored := session.Restore(context.Background(), res.Version.ID)
	if !restored.Success {
		t.Fatalf("restore: %+v", restored)
	}
	if restoredContent != "AB" {
		t.Fatalf("restore callback must receive the new version, got %q", restoredContent)
	}
}

func TestSessionErrorIsNonTerminal(t *testing.T) {
	mgr, repo := newSessionHarness(t)
	session := mgr.Open("lesson", "doc1", "A", EditSessionOptions{})
	defer mgr.Close("lesson", "doc1")

	// Break the restore target lookup; the session must stay usable.
	repo.setFailAll(true)
	res := session.Restore(context.Background(), "nonexistent-id")
	if res.Success {
		t.Fatal("restore against a broken remote must fail")
	}
	if session.Snapshot().Error == "" {
		t.Fatal("failure must surface through the error field")
	}

	repo.setFailAll(false)
	session.PushContent("AB")
	res = session.SaveManualVersion(context.Background(), "recovered")
	if !res.Success {
		t.Fatalf("session must keep working after an error: %+v", res)
	}
}
