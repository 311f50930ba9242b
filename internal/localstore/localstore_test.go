package localstore

import (
	"context"
	"fmt"
	"testing"

	"github.com/lessonforge/lessonforge-backend/internal/types"
)

func localVersion(docID string, n int64) *types.DocumentVersion {
	return &types.DocumentVersion{
		ID:            fmt.Sprintf("%sv-%s-%d", types.LocalIDPrefix, docID, n),
		DocumentID:    docID,
		DocumentType:  "lesson",
		Content:       fmt.Sprintf("content %d", n),
		VersionNumber: n,
		ChangeType:    types.ChangeTypeAuto,
		Origin:        types.OriginLocal,
	}
}

func TestMemoryStoreAppendAndList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	for i := int64(1); i <= 3; i++ {
		if err := store.Append(ctx, localVersion("doc1", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	got, err := store.List(ctx, "doc1", "lesson")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 versions, got %d", len(got))
	}
	for i, want := range []int64{3, 2, 1} {
		if got[i].VersionNumber != want {
			t.Fatalf("position %d: want version %d, got %d", i, want, got[i].VersionNumber)
		}
	}
}

func TestMemoryStoreEvictsOldestAtCap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(20)
	for i := int64(1); i <= 25; i++ {
		if err := store.Append(ctx, localVersion("doc1", i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	got, err := store.List(ctx, "doc1", "lesson")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("want exactly 20 retained, got %d", len(got))
	}
	if got[0].VersionNumber != 25 {
		t.Fatalf("newest must survive, got %d", got[0].VersionNumber)
	}
	if got[len(got)-1].VersionNumber != 6 {
		t.Fatalf("versions 1-5 must be evicted, oldest retained is %d", got[len(got)-1].VersionNumber)
	}
}

func TestMemoryStoreAppendIsIdempotentPerID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	v := localVersion("doc1", 1)
	if err := store.Append(ctx, v); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, v); err != nil {
		t.Fatalf("re-append: %v", err)
	}
	got, _ := store.List(ctx, "doc1", "lesson")
	if len(got) != 1 {
		t.Fatalf("duplicate ID must not be stored twice, got %d entries", len(got))
	}
}

func TestMemoryStoreBucketsAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	_ = store.Append(ctx, localVersion("doc1", 1))
	other := localVersion("doc2", 7)
	_ = store.Append(ctx, other)

	got, _ := store.List(ctx, "doc1", "lesson")
	if len(got) != 1 || got[0].VersionNumber != 1 {
		t.Fatalf("doc1 bucket polluted: %+v", got)
	}
	missing, _ := store.List(ctx, "doc3", "lesson")
	if len(missing) != 0 {
		t.Fatalf("unknown document must list empty, got %d", len(missing))
	}
}

func TestMemoryStoreFindByID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	v := localVersion("doc1", 2)
	_ = store.Append(ctx, v)

	got, err := store.FindByID(ctx, v.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Content != v.Content {
		t.Fatalf("want content %q, got %q", v.Content, got.Content)
	}

	if _, err := store.FindByID(ctx, "local-missing"); err != ErrNotFound {
		t.Fatalf("want ErrNotFound for missing ID, got %v", err)
	}
}
