package localstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lessonforge/lessonforge-backend/internal/types"
)

// DefaultMaxVersions caps how many versions a bucket retains. Oldest
// entries are evicted first on every write.
const DefaultMaxVersions = 20

var ErrNotFound = errors.New("version not found in local store")

// Store is the bounded fallback keyed by (documentID, documentType). Each
// bucket holds the most recent versions newest-first. Writes here only
// happen while the remote store is unavailable, so the cap trades history
// depth for a hard bound on local growth.
type Store interface {
	Append(ctx context.Context, v *types.DocumentVersion) error
	List(ctx context.Context, documentID, documentType string) ([]*types.DocumentVersion, error)
	FindByID(ctx context.Context, id string) (*types.DocumentVersion, error)
}

// insertCapped places v into a newest-first list by version number, drops
// duplicates by ID and trims to the cap.
func insertCapped(versions []*types.DocumentVersion, v *types.DocumentVersion, maxVersions int) []*types.DocumentVersion {
	for _, existing := range versions {
		if existing.ID == v.ID {
			return versions
		}
	}
	versions = append(versions, v)
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].VersionNumber > versions[j].VersionNumber
	})
	if maxVersions > 0 && len(versions) > maxVersions {
		versions = versions[:maxVersions]
	}
	return versions
}

type memoryBucket struct {
	versions    []*types.DocumentVersion
	lastUpdated time.Time
}

// MemoryStore is the in-process implementation. It backs tests and serves
// as the fallback of last resort when the sqlite file cannot be opened.
type MemoryStore struct {
	mu          sync.Mutex
	maxVersions int
	buckets     map[string]*memoryBucket
}

func NewMemoryStore(maxVersions int) *MemoryStore {
	if maxVersions <= 0 {
		maxVersions = DefaultMaxVersions
	}
	return &MemoryStore{
		maxVersions: maxVersions,
		buckets:     make(map[string]*memoryBucket),
	}
}

func (s *MemoryStore) Append(ctx context.Context, v *types.DocumentVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := types.DocKey(v.DocumentType, v.DocumentID)
	b, ok := s.buckets[key]
	if !ok {
		b = &memoryBucket{}
		s.buckets[key] = b
	}
	b.versions = insertCapped(b.versions, v, s.maxVersions)
	b.lastUpdated = time.Now()
	return nil
}

func (s *MemoryStore) List(ctx context.Context, documentID, documentType string) ([]*types.DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[types.DocKey(documentType, documentID)]
	if !ok {
		return nil, nil
	}
	out := make([]*types.DocumentVersion, len(b.versions))
	copy(out, b.versions)
	return out, nil
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*types.DocumentVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.buckets {
		for _, v := range b.versions {
			if v.ID == id {
				return v, nil
			}
		}
	}
	return nil, ErrNotFound
}
